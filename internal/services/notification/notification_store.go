package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajivgeraev/artbazaar-api/internal/db"
	"github.com/rajivgeraev/artbazaar-api/internal/models"
)

// PostgresStore хранит очередь в таблице email_notifications
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore создаёт хранилище очереди
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Insert(ctx context.Context, n *models.EmailNotification) error {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO email_notifications (id, recipient_id, template, subject, payload, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7)
	`, n.ID, n.RecipientID, n.Template, n.Subject, n.Payload, n.Status, n.CreatedAt)
	return err
}

func (s *PostgresStore) ListDeliverable(ctx context.Context, maxRetries, limit int) ([]models.EmailNotification, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, recipient_id, template, subject, payload, status, retry_count, last_error, sent_at, created_at
		FROM email_notifications
		WHERE status IN ('queued', 'failed') AND retry_count < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, maxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EmailNotification
	for rows.Next() {
		var n models.EmailNotification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Template, &n.Subject, &n.Payload,
			&n.Status, &n.RetryCount, &n.LastError, &n.SentAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		UPDATE email_notifications SET status = 'sent', sent_at = $2, last_error = NULL WHERE id = $1
	`, id, at)
	return err
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		UPDATE email_notifications
		SET status = 'failed', retry_count = retry_count + 1, last_error = $2
		WHERE id = $1
	`, id, reason)
	return err
}
