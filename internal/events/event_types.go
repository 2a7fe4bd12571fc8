package events

import (
	"time"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket_created"
	EventTicketSubmitted EventType = "ticket_submitted"
	EventTicketClosed    EventType = "ticket_closed"
	EventMessageAdded    EventType = "message_added"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketSubmittedPayload payload.
type TicketSubmittedPayload struct {
	Name     string `json:"name"`
	Issue    string `json:"issue"`
	Category string `json:"category"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	ClosedAt time.Time `json:"closed_at"`
}

// MessageAddedPayload payload.
type MessageAddedPayload struct {
	MessageID      string             `json:"message_id"`
	Role           domain.MessageRole `json:"role"`
	ContentPreview string             `json:"content_preview"`
}
