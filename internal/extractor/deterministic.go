package extractor

import (
	"context"
	"strings"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

const (
	promptName     = "Sure! Let's get started. What's your full name?"
	promptIssue    = "Got it. Can you describe the issue you're experiencing?"
	promptCategory = "Thanks. What category best fits this issue? (e.g. Login, Billing, Tech)"
)

const (
	fallbackName     = "Unknown"
	fallbackIssue    = "Not provided"
	fallbackCategory = "Uncategorized"
)

var categoryKeywords = []string{"login", "billing", "tech"}

type deterministicStrategy struct{}

// NewDeterministic returns the keyword-driven fallback strategy. It walks the
// slots in strict order name -> issue -> category, advancing when the slot's
// tracking keyword appears anywhere in the lower-cased transcript. It is a
// heuristic, not language understanding: an early message that happens to
// contain a later keyword advances the ladder, which is accepted behavior for
// the no-LLM fallback.
func NewDeterministic() Strategy {
	return deterministicStrategy{}
}

func (deterministicStrategy) Decide(ctx context.Context, history []domain.Message) (Decision, error) {
	var b strings.Builder
	for _, msg := range history {
		b.WriteString(strings.ToLower(msg.Content))
		b.WriteString("\n")
	}
	transcript := b.String()

	seen := func(keywords ...string) bool {
		for _, kw := range keywords {
			if strings.Contains(transcript, kw) {
				return true
			}
		}
		return false
	}

	switch {
	case !seen("name"):
		return Decision{Reply: promptName}, nil
	case !seen("issue"):
		return Decision{Reply: promptIssue}, nil
	case !seen(categoryKeywords...):
		return Decision{Reply: promptCategory}, nil
	}

	slots := collectSlots(history)
	return Decision{Slots: &slots}, nil
}

// collectSlots scans user messages for slot values. Each slot falls back to a
// placeholder so a completed conversation always yields a full triple.
func collectSlots(history []domain.Message) Slots {
	slots := Slots{
		Name:     fallbackName,
		Issue:    fallbackIssue,
		Category: fallbackCategory,
	}

	for _, msg := range history {
		if msg.Role != domain.RoleUser {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		lower := strings.ToLower(content)

		if slots.Name == fallbackName && len(strings.Fields(content)) > 1 {
			slots.Name = content
		}
		if slots.Issue == fallbackIssue && strings.Contains(lower, "issue") {
			slots.Issue = content
		}
		if slots.Category == fallbackCategory {
			for _, kw := range categoryKeywords {
				if strings.Contains(lower, kw) {
					slots.Category = content
					break
				}
			}
		}
	}
	return slots
}
