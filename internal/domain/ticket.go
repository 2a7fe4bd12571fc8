package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen      TicketStatus = "OPEN"
	TicketStatusSubmitted TicketStatus = "SUBMITTED"
	TicketStatusClosed    TicketStatus = "CLOSED"
)

// Ticket is the aggregate for support requests produced by the intake
// conversation. The three slot fields are nil while the ticket is OPEN and
// all set once it is SUBMITTED or CLOSED; no partial fill is valid outside
// the OPEN state.
type Ticket struct {
	ID        string
	Name      *string
	Issue     *string
	Category  *string
	Status    TicketStatus
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

// SlotsFilled reports whether all three intake fields are present.
func (t *Ticket) SlotsFilled() bool {
	return t.Name != nil && t.Issue != nil && t.Category != nil
}
