package client

// Snapshot is the authoritative state of one ticket view: the ticket record
// and its ordered messages.
type Snapshot struct {
	Ticket   *Ticket
	Messages []Message
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{}
	if s.Ticket != nil {
		ticket := *s.Ticket
		out.Ticket = &ticket
	}
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages))
		copy(out.Messages, s.Messages)
	}
	return out
}

// TicketView is a local shadow of a ticket: the last confirmed snapshot plus
// at most one pending optimistic mutation with its rollback snapshot.
// Apply, Rollback and Commit are pure transformations; the caller owns
// serialization of mutations.
type TicketView struct {
	Confirmed Snapshot
	rollback  *Snapshot
}

// NewTicketView creates a view from a confirmed snapshot.
func NewTicketView(snapshot Snapshot) TicketView {
	return TicketView{Confirmed: snapshot.clone()}
}

// Pending reports whether an optimistic mutation is outstanding.
func (v TicketView) Pending() bool {
	return v.rollback != nil
}

// ApplyMessage optimistically appends a message. The pre-mutation snapshot is
// kept so Rollback can restore it exactly.
func (v TicketView) ApplyMessage(msg Message) TicketView {
	next := v.savingRollback()
	next.Confirmed.Messages = append(next.Confirmed.Messages, msg)
	return next
}

// ApplyClose optimistically flips the ticket status to CLOSED.
func (v TicketView) ApplyClose() TicketView {
	next := v.savingRollback()
	if next.Confirmed.Ticket != nil {
		next.Confirmed.Ticket.Status = "CLOSED"
	}
	return next
}

// Rollback restores the snapshot taken before the pending mutation. It is a
// no-op when nothing is pending.
func (v TicketView) Rollback() TicketView {
	if v.rollback == nil {
		return v
	}
	return TicketView{Confirmed: v.rollback.clone()}
}

// Commit discards the pending mutation and replaces the confirmed state with
// the authoritative snapshot fetched from the server.
func (v TicketView) Commit(fresh Snapshot) TicketView {
	return TicketView{Confirmed: fresh.clone()}
}

func (v TicketView) savingRollback() TicketView {
	next := TicketView{Confirmed: v.Confirmed.clone()}
	if v.rollback != nil {
		// A second optimistic apply keeps the original rollback point.
		rb := v.rollback.clone()
		next.rollback = &rb
	} else {
		rb := v.Confirmed.clone()
		next.rollback = &rb
	}
	return next
}
