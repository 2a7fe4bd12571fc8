package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-intake/internal/domain"
	util "github.com/spec-kit/ticket-intake/pkg/util"
)

// MessageRepository manages the append-only, time-ordered message log of a
// ticket. Appends for the same ticket are serialized so that assigned
// timestamps are strictly increasing.
type MessageRepository interface {
	Append(ctx context.Context, ticketID string, role domain.MessageRole, content string) (*domain.Message, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds the Postgres-backed message log.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Append(ctx context.Context, ticketID string, role domain.MessageRole, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, util.NewValidationError("message content is required", nil)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Locking the ticket row serializes concurrent appends for the same
	// ticket; timestamps for different tickets are assigned independently.
	var lockedID string
	err = tx.QueryRow(ctx, `SELECT id FROM tickets WHERE id=$1 FOR UPDATE`, ticketID).Scan(&lockedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, util.NewNotFound("ticket", map[string]any{"id": ticketID})
	}
	if err != nil {
		return nil, err
	}

	const insert = `
        INSERT INTO messages (ticket_id, role, content, created_at)
        SELECT $1, $2, $3, GREATEST(
            clock_timestamp(),
            COALESCE((SELECT MAX(created_at) FROM messages WHERE ticket_id=$1), 'epoch'::timestamptz) + interval '1 microsecond'
        )
        RETURNING id, created_at`

	msg := domain.Message{
		TicketID: ticketID,
		Role:     role,
		Content:  content,
	}
	if err := tx.QueryRow(ctx, insert, ticketID, role, content).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	const query = `
        SELECT id, ticket_id, role, content, created_at
        FROM messages WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.Role,
			&msg.Content,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
