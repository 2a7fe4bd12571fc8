package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

func messages(pairs ...[2]string) []domain.Message {
	out := make([]domain.Message, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, domain.Message{Role: domain.MessageRole(p[0]), Content: p[1]})
	}
	return out
}

func TestDeterministicAsksNameFirst(t *testing.T) {
	strategy := NewDeterministic()

	decision, err := strategy.Decide(context.Background(), messages(
		[2]string{"user", "Hi, I need some help"},
	))
	require.NoError(t, err)
	require.False(t, decision.Complete())
	require.Equal(t, promptName, decision.Reply)
}

func TestDeterministicWalksSlotLadder(t *testing.T) {
	strategy := NewDeterministic()
	ctx := context.Background()

	// Turn 1: the name answer moves the ladder to the issue prompt.
	history := messages([2]string{"user", "My name is John Smith"})
	decision, err := strategy.Decide(ctx, history)
	require.NoError(t, err)
	require.False(t, decision.Complete())
	require.Equal(t, promptIssue, decision.Reply)

	// Turn 2: the issue answer moves the ladder to the category prompt.
	history = append(history,
		domain.Message{Role: domain.RoleAssistant, Content: promptIssue},
		domain.Message{Role: domain.RoleUser, Content: "I have an issue accessing my account"},
	)
	decision, err = strategy.Decide(ctx, history)
	require.NoError(t, err)
	require.False(t, decision.Complete())
	require.Equal(t, promptCategory, decision.Reply)

	// Turn 3: the category answer completes the slot set.
	history = append(history,
		domain.Message{Role: domain.RoleAssistant, Content: promptCategory},
		domain.Message{Role: domain.RoleUser, Content: "Billing"},
	)
	decision, err = strategy.Decide(ctx, history)
	require.NoError(t, err)
	require.True(t, decision.Complete())
	require.Equal(t, "My name is John Smith", decision.Slots.Name)
	require.Equal(t, "I have an issue accessing my account", decision.Slots.Issue)
	require.Equal(t, "Billing", decision.Slots.Category)
}

func TestDeterministicAsksOneSlotAtATime(t *testing.T) {
	strategy := NewDeterministic()

	// A first message answering two slots still produces a single question,
	// for the first slot the keyword scan considers unfilled.
	decision, err := strategy.Decide(context.Background(), messages(
		[2]string{"user", "My name is John Smith and I have an issue"},
	))
	require.NoError(t, err)
	require.False(t, decision.Complete())
	require.Equal(t, promptCategory, decision.Reply)
}

func TestDeterministicFallbackValues(t *testing.T) {
	strategy := NewDeterministic()

	// All keywords present but no extractable values: single-word name,
	// keyword carried only by assistant prompts.
	history := messages(
		[2]string{"user", "name"},
		[2]string{"assistant", promptIssue},
		[2]string{"user", "issue"},
		[2]string{"assistant", promptCategory},
		[2]string{"user", "nothing"},
	)
	decision, err := strategy.Decide(context.Background(), history)
	require.NoError(t, err)
	require.True(t, decision.Complete())
	require.Equal(t, fallbackName, decision.Slots.Name)
	require.Equal(t, fallbackCategory, decision.Slots.Category)
}

func TestDeterministicIsPure(t *testing.T) {
	strategy := NewDeterministic()
	history := messages([2]string{"user", "Hello there"})

	first, err := strategy.Decide(context.Background(), history)
	require.NoError(t, err)
	second, err := strategy.Decide(context.Background(), history)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
