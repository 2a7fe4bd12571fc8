package dto

import (
	"time"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

// ChatRequest payload for an intake turn. TicketID is optional: the server
// resumes the single open ticket or starts a new one either way.
type ChatRequest struct {
	Message  string `json:"message"`
	TicketID string `json:"ticket_id,omitempty"`
}

// ChatResponse carries the assistant's reply.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// CreateMessageRequest payload for admin replies.
type CreateMessageRequest struct {
	Content string `json:"content"`
}

// TicketSummary response for list views; no messages embedded.
type TicketSummary struct {
	ID        string              `json:"id"`
	Name      *string             `json:"name"`
	Issue     *string             `json:"issue"`
	Category  *string             `json:"category"`
	Status    domain.TicketStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	ClosedAt  *time.Time          `json:"closed_at,omitempty"`
}

// TicketDetailResponse provides a ticket with its ordered thread.
type TicketDetailResponse struct {
	TicketSummary
	Messages []MessageResponse `json:"messages"`
}

// MessageResponse represents one thread message.
type MessageResponse struct {
	ID        string             `json:"id"`
	TicketID  string             `json:"ticket_id"`
	Role      domain.MessageRole `json:"role"`
	Content   string             `json:"content"`
	CreatedAt time.Time          `json:"created_at"`
}

// FromTicket maps a domain ticket to its summary representation.
func FromTicket(ticket *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:        ticket.ID,
		Name:      ticket.Name,
		Issue:     ticket.Issue,
		Category:  ticket.Category,
		Status:    ticket.Status,
		CreatedAt: ticket.CreatedAt,
		UpdatedAt: ticket.UpdatedAt,
		ClosedAt:  ticket.ClosedAt,
	}
}

// FromMessage maps a domain message.
func FromMessage(msg *domain.Message) MessageResponse {
	return MessageResponse{
		ID:        msg.ID,
		TicketID:  msg.TicketID,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

// FromTicketWithMessages maps a ticket and its thread.
func FromTicketWithMessages(ticket *domain.Ticket, msgs []domain.Message) TicketDetailResponse {
	out := TicketDetailResponse{
		TicketSummary: FromTicket(ticket),
		Messages:      make([]MessageResponse, 0, len(msgs)),
	}
	for i := range msgs {
		out.Messages = append(out.Messages, FromMessage(&msgs[i]))
	}
	return out
}
