package client

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Syncer keeps per-ticket views consistent with the server. Mutations are
// applied optimistically and rolled back on failure; starting a mutation
// cancels any in-flight refresh for the same ticket so a stale response
// cannot overwrite the optimistic state.
type Syncer struct {
	client *Client

	mu         sync.Mutex
	views      map[string]TicketView
	generation map[string]uint64
	cancels    map[string]context.CancelFunc
}

// NewSyncer creates a syncer over the given API client.
func NewSyncer(client *Client) *Syncer {
	return &Syncer{
		client:     client,
		views:      make(map[string]TicketView),
		generation: make(map[string]uint64),
		cancels:    make(map[string]context.CancelFunc),
	}
}

// View returns the current local view for a ticket.
func (s *Syncer) View(ticketID string) (TicketView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	view, ok := s.views[ticketID]
	return view, ok
}

// Forget drops the cached view, e.g. on navigation away.
func (s *Syncer) Forget(ticketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[ticketID]; ok {
		cancel()
		delete(s.cancels, ticketID)
	}
	delete(s.views, ticketID)
	delete(s.generation, ticketID)
}

// Refresh fetches authoritative state for a ticket. A refresh superseded by
// a newer refresh or mutation discards its response instead of applying it.
func (s *Syncer) Refresh(ctx context.Context, ticketID string) error {
	s.mu.Lock()
	if cancel, ok := s.cancels[ticketID]; ok {
		cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancels[ticketID] = cancel
	s.generation[ticketID]++
	gen := s.generation[ticketID]
	s.mu.Unlock()

	ticket, err := s.client.GetTicket(fetchCtx, ticketID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation[ticketID] != gen {
		// Superseded while in flight; the newer operation owns the view.
		return nil
	}
	delete(s.cancels, ticketID)
	if err != nil {
		return err
	}
	s.views[ticketID] = NewTicketView(snapshotOf(ticket))
	return nil
}

// SendAdminMessage optimistically appends an admin reply, then reconciles
// with the server. On failure the view is restored exactly and the error is
// returned for retry.
func (s *Syncer) SendAdminMessage(ctx context.Context, ticketID, content string) (*Message, error) {
	gen := s.beginMutation(ticketID, func(view TicketView) TicketView {
		return view.ApplyMessage(Message{
			ID:        uuid.NewString(),
			TicketID:  ticketID,
			Role:      "admin",
			Content:   content,
			CreatedAt: time.Now(),
		})
	})

	msg, err := s.client.PostAdminMessage(ctx, ticketID, content)
	if err != nil {
		s.rollback(ticketID)
		return nil, err
	}
	s.reconcile(ctx, ticketID, gen)
	return msg, nil
}

// SendUserMessage optimistically appends the user's message, submits the chat
// turn and reconciles. The returned reply is the assistant's response text.
// With an empty ticketID the server resolves or creates the conversation
// itself, so there is no cached view to patch or reconcile yet.
func (s *Syncer) SendUserMessage(ctx context.Context, ticketID, text string) (string, error) {
	if ticketID == "" {
		return s.client.SubmitUserMessage(ctx, "", text)
	}

	gen := s.beginMutation(ticketID, func(view TicketView) TicketView {
		return view.ApplyMessage(Message{
			ID:        uuid.NewString(),
			TicketID:  ticketID,
			Role:      "user",
			Content:   text,
			CreatedAt: time.Now(),
		})
	})

	reply, err := s.client.SubmitUserMessage(ctx, ticketID, text)
	if err != nil {
		s.rollback(ticketID)
		return "", err
	}
	s.reconcile(ctx, ticketID, gen)
	return reply, nil
}

// Close optimistically flips the local status to CLOSED, then reconciles.
func (s *Syncer) Close(ctx context.Context, ticketID string) (*Ticket, error) {
	gen := s.beginMutation(ticketID, func(view TicketView) TicketView {
		return view.ApplyClose()
	})

	ticket, err := s.client.CloseTicket(ctx, ticketID)
	if err != nil {
		s.rollback(ticketID)
		return nil, err
	}
	s.reconcile(ctx, ticketID, gen)
	return ticket, nil
}

// beginMutation cancels any in-flight refresh for the ticket, bumps the
// generation so stale responses are discarded, and applies the optimistic
// patch. The returned generation lets the caller's reconcile detect that it
// has been superseded.
func (s *Syncer) beginMutation(ticketID string, apply func(TicketView) TicketView) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[ticketID]; ok {
		cancel()
		delete(s.cancels, ticketID)
	}
	s.generation[ticketID]++
	s.views[ticketID] = apply(s.views[ticketID])
	return s.generation[ticketID]
}

func (s *Syncer) rollback(ticketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[ticketID] = s.views[ticketID].Rollback()
}

// reconcile refetches authoritative state after a confirmed mutation. A
// reconcile superseded by a newer mutation or refresh discards its snapshot;
// a failed refetch keeps the optimistic view and the next refresh converges it.
func (s *Syncer) reconcile(ctx context.Context, ticketID string, gen uint64) {
	ticket, err := s.client.GetTicket(ctx, ticketID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil || s.generation[ticketID] != gen {
		return
	}
	s.views[ticketID] = s.views[ticketID].Commit(snapshotOf(ticket))
}

func snapshotOf(ticket *Ticket) Snapshot {
	record := *ticket
	record.Messages = nil
	return Snapshot{
		Ticket:   &record,
		Messages: append([]Message(nil), ticket.Messages...),
	}
}
