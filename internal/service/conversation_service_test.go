package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-intake/internal/domain"
	"github.com/spec-kit/ticket-intake/internal/events"
	"github.com/spec-kit/ticket-intake/internal/extractor"
	"github.com/spec-kit/ticket-intake/internal/repository"
)

type failingStrategy struct{}

func (failingStrategy) Decide(ctx context.Context, history []domain.Message) (extractor.Decision, error) {
	return extractor.Decision{}, errors.New("upstream timeout")
}

type fixture struct {
	tickets       repository.TicketRepository
	messages      repository.MessageRepository
	conversations *ConversationService
	published     *[]events.Event
}

func newFixture(t *testing.T, strategy extractor.Strategy) fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	tickets := repository.NewMemoryTicketRepository(store)
	messages := repository.NewMemoryMessageRepository(store)

	dispatcher := events.NewInMemoryDispatcher()
	published := &[]events.Event{}
	record := func(ctx context.Context, event events.Event) error {
		*published = append(*published, event)
		return nil
	}
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketSubmitted,
		events.EventTicketClosed,
		events.EventMessageAdded,
	} {
		dispatcher.Subscribe(eventType, record)
	}

	conversations := NewConversationService(ConversationDependencies{
		TicketRepo:  tickets,
		MessageRepo: messages,
		Strategy:    strategy,
		Dispatcher:  dispatcher,
		Logger:      zap.NewNop(),
	})
	return fixture{
		tickets:       tickets,
		messages:      messages,
		conversations: conversations,
		published:     published,
	}
}

func TestHandleUserMessageRejectsEmptyInput(t *testing.T) {
	f := newFixture(t, extractor.NewDeterministic())
	ctx := context.Background()

	_, err := f.conversations.HandleUserMessage(ctx, "   ")
	require.Error(t, err)

	// No side effects: no ticket, no messages, no events.
	open, err := f.tickets.FindOpen(ctx)
	require.NoError(t, err)
	require.Nil(t, open)
	require.Empty(t, *f.published)
}

func TestHandleUserMessageCreatesAndReusesOpenTicket(t *testing.T) {
	f := newFixture(t, extractor.NewDeterministic())
	ctx := context.Background()

	_, err := f.conversations.HandleUserMessage(ctx, "Hello")
	require.NoError(t, err)
	first, err := f.tickets.FindOpen(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	_, err = f.conversations.HandleUserMessage(ctx, "Anyone there?")
	require.NoError(t, err)
	second, err := f.tickets.FindOpen(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	history, err := f.messages.ListByTicket(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	require.Equal(t, domain.RoleUser, history[0].Role)
	require.Equal(t, domain.RoleAssistant, history[1].Role)
}

func TestThreeTurnConversationSubmitsTicket(t *testing.T) {
	f := newFixture(t, extractor.NewDeterministic())
	ctx := context.Background()

	reply, err := f.conversations.HandleUserMessage(ctx, "My name is John Smith")
	require.NoError(t, err)
	require.NotEqual(t, submittedReply, reply)

	reply, err = f.conversations.HandleUserMessage(ctx, "I have an issue accessing my account")
	require.NoError(t, err)
	require.NotEqual(t, submittedReply, reply)

	reply, err = f.conversations.HandleUserMessage(ctx, "Billing")
	require.NoError(t, err)
	require.Equal(t, submittedReply, reply)

	// The third turn promoted the ticket with all slots populated.
	submitted, err := f.tickets.ListByStatuses(ctx, []domain.TicketStatus{domain.TicketStatusSubmitted})
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	ticket := submitted[0]
	require.True(t, ticket.SlotsFilled())
	require.Equal(t, "My name is John Smith", *ticket.Name)
	require.Equal(t, "I have an issue accessing my account", *ticket.Issue)
	require.Equal(t, "Billing", *ticket.Category)

	// Next message starts a fresh conversation.
	_, err = f.conversations.HandleUserMessage(ctx, "Hello again")
	require.NoError(t, err)
	open, err := f.tickets.FindOpen(ctx)
	require.NoError(t, err)
	require.NotNil(t, open)
	require.NotEqual(t, ticket.ID, open.ID)
}

func TestHandleUserMessagePublishesLifecycleEvents(t *testing.T) {
	f := newFixture(t, extractor.NewDeterministic())
	ctx := context.Background()

	_, err := f.conversations.HandleUserMessage(ctx, "Hello")
	require.NoError(t, err)

	var types []events.EventType
	for _, event := range *f.published {
		types = append(types, event.Type)
	}
	require.Equal(t, []events.EventType{
		events.EventTicketCreated,
		events.EventMessageAdded,
		events.EventMessageAdded,
	}, types)
}

func TestExtractorFailureStillAnswersUser(t *testing.T) {
	f := newFixture(t, failingStrategy{})
	ctx := context.Background()

	reply, err := f.conversations.HandleUserMessage(ctx, "Hello")
	require.NoError(t, err)
	require.Equal(t, extractor.RetryReply, reply)

	// The user message is paired with an assistant reply and the ticket was
	// not promoted.
	open, err := f.tickets.FindOpen(ctx)
	require.NoError(t, err)
	require.NotNil(t, open)
	require.Equal(t, domain.TicketStatusOpen, open.Status)

	history, err := f.messages.ListByTicket(ctx, open.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, domain.RoleAssistant, history[1].Role)
	require.Equal(t, extractor.RetryReply, history[1].Content)
}
