package domain

import "time"

// MessageRole indicates who authored a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleAdmin     MessageRole = "admin"
)

// Message captures a single turn in a ticket thread. Messages are
// append-only and totally ordered per ticket by CreatedAt.
type Message struct {
	ID        string
	TicketID  string
	Role      MessageRole
	Content   string
	CreatedAt time.Time
}
