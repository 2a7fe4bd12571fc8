package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-intake/internal/domain"
	util "github.com/spec-kit/ticket-intake/pkg/util"
)

// MemoryStore backs the in-memory repositories. It is used by tests and as
// the storage fallback when no POSTGRES_DSN is configured. One mutex guards
// both record types, which also gives the same per-ticket serialization the
// Postgres implementations get from row locks.
type MemoryStore struct {
	mu       sync.Mutex
	tickets  map[string]*domain.Ticket
	messages map[string][]domain.Message
	lastAt   map[string]time.Time
}

// NewMemoryStore initializes empty in-memory storage.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:  make(map[string]*domain.Ticket),
		messages: make(map[string][]domain.Message),
		lastAt:   make(map[string]time.Time),
	}
}

type memoryTicketRepository struct {
	store *MemoryStore
}

// NewMemoryTicketRepository builds a TicketRepository over the shared store.
func NewMemoryTicketRepository(store *MemoryStore) TicketRepository {
	return &memoryTicketRepository{store: store}
}

func (r *memoryTicketRepository) CreateIfNoneOpen(ctx context.Context) (*domain.Ticket, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if open := r.findOpenLocked(); open != nil {
		return copyTicket(open), false, nil
	}

	now := time.Now()
	ticket := &domain.Ticket{
		ID:        uuid.NewString(),
		Status:    domain.TicketStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.store.tickets[ticket.ID] = ticket
	return copyTicket(ticket), true, nil
}

func (r *memoryTicketRepository) FindOpen(ctx context.Context) (*domain.Ticket, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if open := r.findOpenLocked(); open != nil {
		return copyTicket(open), nil
	}
	return nil, nil
}

func (r *memoryTicketRepository) findOpenLocked() *domain.Ticket {
	for _, ticket := range r.store.tickets {
		if ticket.Status == domain.TicketStatusOpen {
			return ticket
		}
	}
	return nil
}

func (r *memoryTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	ticket, ok := r.store.tickets[id]
	if !ok {
		return nil, util.NewNotFound("ticket", map[string]any{"id": id})
	}
	return copyTicket(ticket), nil
}

func (r *memoryTicketRepository) Submit(ctx context.Context, id, name, issue, category string) (*domain.Ticket, error) {
	name = strings.TrimSpace(name)
	issue = strings.TrimSpace(issue)
	category = strings.TrimSpace(category)
	if name == "" || issue == "" || category == "" {
		return nil, util.NewValidationError("name, issue and category are required to submit", nil)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	ticket, ok := r.store.tickets[id]
	if !ok {
		return nil, util.NewNotFound("ticket", map[string]any{"id": id})
	}
	if ticket.Status != domain.TicketStatusOpen {
		return nil, util.NewValidationError("ticket cannot be submitted", map[string]any{"status": ticket.Status})
	}

	ticket.Name = &name
	ticket.Issue = &issue
	ticket.Category = &category
	ticket.Status = domain.TicketStatusSubmitted
	ticket.UpdatedAt = time.Now()
	return copyTicket(ticket), nil
}

func (r *memoryTicketRepository) Close(ctx context.Context, id string) (*domain.Ticket, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	ticket, ok := r.store.tickets[id]
	if !ok {
		return nil, util.NewNotFound("ticket", map[string]any{"id": id})
	}
	switch ticket.Status {
	case domain.TicketStatusClosed:
		// Idempotent close.
		return copyTicket(ticket), nil
	case domain.TicketStatusSubmitted:
		now := time.Now()
		ticket.Status = domain.TicketStatusClosed
		ticket.ClosedAt = &now
		ticket.UpdatedAt = now
		return copyTicket(ticket), nil
	default:
		return nil, util.NewValidationError("only submitted tickets can be closed", map[string]any{"status": ticket.Status})
	}
}

func (r *memoryTicketRepository) List(ctx context.Context) ([]domain.Ticket, error) {
	return r.ListByStatuses(ctx, nil)
}

func (r *memoryTicketRepository) ListByStatuses(ctx context.Context, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	wanted := make(map[domain.TicketStatus]bool, len(statuses))
	for _, status := range statuses {
		wanted[status] = true
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var result []domain.Ticket
	for _, ticket := range r.store.tickets {
		if len(wanted) > 0 && !wanted[ticket.Status] {
			continue
		}
		result = append(result, *copyTicket(ticket))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

type memoryMessageRepository struct {
	store *MemoryStore
}

// NewMemoryMessageRepository builds a MessageRepository over the shared store.
func NewMemoryMessageRepository(store *MemoryStore) MessageRepository {
	return &memoryMessageRepository{store: store}
}

func (r *memoryMessageRepository) Append(ctx context.Context, ticketID string, role domain.MessageRole, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, util.NewValidationError("message content is required", nil)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.tickets[ticketID]; !ok {
		return nil, util.NewNotFound("ticket", map[string]any{"id": ticketID})
	}

	// Bump past the per-ticket high-water mark so createdAt stays strictly
	// increasing even when appends land within clock resolution.
	now := time.Now()
	if last := r.store.lastAt[ticketID]; !now.After(last) {
		now = last.Add(time.Microsecond)
	}
	r.store.lastAt[ticketID] = now

	msg := domain.Message{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
	r.store.messages[ticketID] = append(r.store.messages[ticketID], msg)
	return &msg, nil
}

func (r *memoryMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	msgs := r.store.messages[ticketID]
	result := make([]domain.Message, len(msgs))
	copy(result, msgs)
	return result, nil
}

func copyTicket(t *domain.Ticket) *domain.Ticket {
	clone := *t
	if t.Name != nil {
		name := *t.Name
		clone.Name = &name
	}
	if t.Issue != nil {
		issue := *t.Issue
		clone.Issue = &issue
	}
	if t.Category != nil {
		category := *t.Category
		clone.Category = &category
	}
	if t.ClosedAt != nil {
		closedAt := *t.ClosedAt
		clone.ClosedAt = &closedAt
	}
	return &clone
}
