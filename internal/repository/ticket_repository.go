package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-intake/internal/domain"
	util "github.com/spec-kit/ticket-intake/pkg/util"
)

// TicketRepository encapsulates ticket persistence and enforces the
// OPEN -> SUBMITTED -> CLOSED state machine.
type TicketRepository interface {
	// CreateIfNoneOpen returns the single OPEN ticket, creating it when none
	// exists. The create is conditional at the storage layer so two
	// concurrent conversations cannot fork into separate open tickets.
	CreateIfNoneOpen(ctx context.Context) (*domain.Ticket, bool, error)
	// FindOpen returns the single OPEN ticket, or nil when none exists.
	FindOpen(ctx context.Context) (*domain.Ticket, error)
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// Submit fills all three slot fields and moves the ticket to SUBMITTED in
	// a single update. A blank field or a non-OPEN ticket is a validation
	// failure; the store never fills defaults.
	Submit(ctx context.Context, id, name, issue, category string) (*domain.Ticket, error)
	// Close moves a SUBMITTED ticket to CLOSED. Closing a CLOSED ticket is a
	// no-op success.
	Close(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context) ([]domain.Ticket, error)
	ListByStatuses(ctx context.Context, statuses []domain.TicketStatus) ([]domain.Ticket, error)
}

const ticketColumns = "id, name, issue, category, status, created_at, updated_at, closed_at"

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) CreateIfNoneOpen(ctx context.Context) (*domain.Ticket, bool, error) {
	// The partial unique index on status='OPEN' turns a creation race into a
	// conflict; the loser falls through to the lookup.
	const insert = `
        INSERT INTO tickets DEFAULT VALUES
        ON CONFLICT DO NOTHING
        RETURNING ` + ticketColumns

	for attempt := 0; attempt < 3; attempt++ {
		ticket, err := scanTicketRow(r.pool.QueryRow(ctx, insert))
		if err == nil {
			return ticket, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, err
		}
		existing, err := r.FindOpen(ctx)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
		// The open ticket was submitted between insert and lookup; retry.
	}
	return nil, false, util.NewConflict("unable to resolve open ticket", nil)
}

func (r *ticketRepository) FindOpen(ctx context.Context) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE status='OPEN'`
	ticket, err := scanTicketRow(r.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicketRow(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, util.NewNotFound("ticket", map[string]any{"id": id})
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) Submit(ctx context.Context, id, name, issue, category string) (*domain.Ticket, error) {
	name = strings.TrimSpace(name)
	issue = strings.TrimSpace(issue)
	category = strings.TrimSpace(category)
	if name == "" || issue == "" || category == "" {
		return nil, util.NewValidationError("name, issue and category are required to submit", nil)
	}

	const query = `
        UPDATE tickets SET name=$1, issue=$2, category=$3, status='SUBMITTED', updated_at=NOW()
        WHERE id=$4 AND status='OPEN'
        RETURNING ` + ticketColumns
	ticket, err := scanTicketRow(r.pool.QueryRow(ctx, query, name, issue, category, id))
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, util.NewValidationError("ticket cannot be submitted", map[string]any{"status": current.Status})
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) Close(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET status='CLOSED', closed_at=NOW(), updated_at=NOW()
        WHERE id=$1 AND status='SUBMITTED'
        RETURNING ` + ticketColumns
	ticket, err := scanTicketRow(r.pool.QueryRow(ctx, query, id))
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status == domain.TicketStatusClosed {
		// Idempotent close.
		return current, nil
	}
	return nil, util.NewValidationError("only submitted tickets can be closed", map[string]any{"status": current.Status})
}

func (r *ticketRepository) List(ctx context.Context) ([]domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListByStatuses(ctx context.Context, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	if len(statuses) == 0 {
		return r.List(ctx)
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE status IN (%s) ORDER BY created_at DESC`,
		ticketColumns, strings.Join(placeholders, ","))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTicketRow(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Name,
		&ticket.Issue,
		&ticket.Category,
		&ticket.Status,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicketRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
