package extractor

import (
	"context"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

// Slots is the completed set of structured fields the intake conversation
// exists to collect.
type Slots struct {
	Name     string
	Issue    string
	Category string
}

// Decision is the outcome of one extraction pass over a transcript: either
// the next prompt to send, or a completed slot set (Slots non-nil) signaling
// the conversation is ready to submit.
type Decision struct {
	Reply string
	Slots *Slots
}

// Complete reports whether all required slots were collected.
func (d Decision) Complete() bool {
	return d.Slots != nil
}

// RetryReply is the degraded response sent when extraction cannot produce a
// usable next step. The ticket is never submitted on such a turn.
const RetryReply = "Sorry, something went wrong on our end. Could you say that again?"

// Strategy decides the next step of an intake conversation from the ordered
// message history. Implementations are pure over the transcript: they never
// touch ticket or message state.
type Strategy interface {
	Decide(ctx context.Context, history []domain.Message) (Decision, error)
}
