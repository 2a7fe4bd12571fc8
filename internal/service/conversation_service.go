package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-intake/internal/domain"
	"github.com/spec-kit/ticket-intake/internal/events"
	"github.com/spec-kit/ticket-intake/internal/extractor"
	"github.com/spec-kit/ticket-intake/internal/repository"
	util "github.com/spec-kit/ticket-intake/pkg/util"
)

const submittedReply = "Thank you! Your support ticket has been submitted. Our team will reach out soon."

// ConversationService drives one intake turn: resolve the open ticket, log
// the user message, run slot extraction, promote the ticket when complete and
// always log an assistant reply.
type ConversationService struct {
	tickets    repository.TicketRepository
	messages   repository.MessageRepository
	strategy   extractor.Strategy
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// ConversationDependencies bundles collaborators for the orchestrator.
type ConversationDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.MessageRepository
	Strategy    extractor.Strategy
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewConversationService constructs the service.
func NewConversationService(deps ConversationDependencies) *ConversationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		strategy:   deps.Strategy,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// HandleUserMessage processes one inbound chat turn and returns the
// assistant's reply. Validation failures abort before any message is
// appended; once the user message is logged, every path appends a reply so
// no user message is left without a response.
func (s *ConversationService) HandleUserMessage(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", util.NewValidationError("message is required", nil)
	}

	ticket, created, err := s.tickets.CreateIfNoneOpen(ctx)
	if err != nil {
		return "", err
	}
	if created {
		publishEvent(ctx, s.dispatcher, events.Event{
			Type:     events.EventTicketCreated,
			TicketID: ticket.ID,
		})
	}

	userMsg, err := s.messages.Append(ctx, ticket.ID, domain.RoleUser, text)
	if err != nil {
		return "", err
	}
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventMessageAdded,
		TicketID: ticket.ID,
		Payload: events.MessageAddedPayload{
			MessageID:      userMsg.ID,
			Role:           userMsg.Role,
			ContentPreview: stringPreview(userMsg.Content, 120),
		},
	})

	history, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return "", err
	}

	reply := s.decideReply(ctx, ticket, history)

	assistantMsg, err := s.messages.Append(ctx, ticket.ID, domain.RoleAssistant, reply)
	if err != nil {
		return "", err
	}
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventMessageAdded,
		TicketID: ticket.ID,
		Payload: events.MessageAddedPayload{
			MessageID:      assistantMsg.ID,
			Role:           assistantMsg.Role,
			ContentPreview: stringPreview(assistantMsg.Content, 120),
		},
	})

	return reply, nil
}

// decideReply runs the extraction strategy and, when the slot set is
// complete, promotes the ticket. Delegate failures degrade to a retry reply
// so the turn still answers the user.
func (s *ConversationService) decideReply(ctx context.Context, ticket *domain.Ticket, history []domain.Message) string {
	decision, err := s.strategy.Decide(ctx, history)
	if err != nil {
		s.logger.Warn("slot extraction failed",
			zap.String("ticket_id", ticket.ID),
			zap.Error(util.NewExternalServiceError("extractor", err)),
		)
		return extractor.RetryReply
	}

	if !decision.Complete() {
		return decision.Reply
	}

	slots := decision.Slots
	if _, err := s.tickets.Submit(ctx, ticket.ID, slots.Name, slots.Issue, slots.Category); err != nil {
		s.logger.Error("ticket submission failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return extractor.RetryReply
	}
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketSubmitted,
		TicketID: ticket.ID,
		Payload: events.TicketSubmittedPayload{
			Name:     slots.Name,
			Issue:    slots.Issue,
			Category: slots.Category,
		},
	})
	return submittedReply
}
