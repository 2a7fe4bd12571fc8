package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-intake/internal/domain"
	"github.com/spec-kit/ticket-intake/internal/events"
	"github.com/spec-kit/ticket-intake/internal/repository"
)

// TicketService exposes the review-side ticket operations: listing, reading
// with messages, admin replies and closing.
type TicketService struct {
	tickets    repository.TicketRepository
	messages   repository.MessageRepository
	dispatcher events.Dispatcher
}

// TicketDependencies bundles repositories for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.MessageRepository
	Dispatcher  events.Dispatcher
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		dispatcher: deps.Dispatcher,
	}
}

// GetTicketWithMessages returns a ticket and its ordered thread.
func (s *TicketService) GetTicketWithMessages(ctx context.Context, ticketID string) (*domain.Ticket, []domain.Message, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, err
	}
	return ticket, msgs, nil
}

// ListTickets returns all tickets, most recent first.
func (s *TicketService) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	return s.tickets.List(ctx)
}

// ListTicketsByStatuses returns tickets in the given statuses, most recent first.
func (s *TicketService) ListTicketsByStatuses(ctx context.Context, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	return s.tickets.ListByStatuses(ctx, statuses)
}

// CloseTicket closes a submitted ticket. Closing an already closed ticket is
// a no-op success.
func (s *TicketService) CloseTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	before, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	alreadyClosed := before.Status == domain.TicketStatusClosed

	ticket, err := s.tickets.Close(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !alreadyClosed {
		closedAt := time.Now()
		if ticket.ClosedAt != nil {
			closedAt = *ticket.ClosedAt
		}
		publishEvent(ctx, s.dispatcher, events.Event{
			Type:     events.EventTicketClosed,
			TicketID: ticket.ID,
			Payload:  events.TicketClosedPayload{ClosedAt: closedAt},
		})
	}
	return ticket, nil
}

// PostAdminMessage appends an admin reply to a ticket thread.
func (s *TicketService) PostAdminMessage(ctx context.Context, ticketID, content string) (*domain.Message, error) {
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		return nil, err
	}
	msg, err := s.messages.Append(ctx, ticketID, domain.RoleAdmin, content)
	if err != nil {
		return nil, err
	}
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventMessageAdded,
		TicketID: ticketID,
		Payload: events.MessageAddedPayload{
			MessageID:      msg.ID,
			Role:           msg.Role,
			ContentPreview: stringPreview(msg.Content, 120),
		},
	})
	return msg, nil
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = dispatcher.Publish(ctx, event)
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
