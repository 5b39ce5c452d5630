package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajivgeraev/artbazaar-api/internal/db"
	"github.com/rajivgeraev/artbazaar-api/internal/models"
)

const alertColumns = `id, alert_type, severity, title, message, offer_id, metadata,
	is_read, resolved, resolved_at, created_at`

// PostgresStore хранит уведомления в таблице admin_alerts
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore создаёт хранилище уведомлений
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanAlert(row pgx.Row) (*models.AdminAlert, error) {
	var a models.AdminAlert
	err := row.Scan(
		&a.ID,
		&a.AlertType,
		&a.Severity,
		&a.Title,
		&a.Message,
		&a.OfferID,
		&a.Metadata,
		&a.IsRead,
		&a.Resolved,
		&a.ResolvedAt,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) Insert(ctx context.Context, a *models.AdminAlert) error {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO admin_alerts (id, alert_type, severity, title, message, offer_id, metadata, is_read, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, false, $8)
	`, a.ID, a.AlertType, a.Severity, a.Title, a.Message, a.OfferID, a.Metadata, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert admin alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]models.AdminAlert, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	var conditions []string
	if filter.UnreadOnly {
		conditions = append(conditions, "is_read = false")
	}
	if filter.UnresolvedOnly {
		conditions = append(conditions, "resolved = false")
	}

	query := "SELECT " + alertColumns + " FROM admin_alerts"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT $1"

	rows, err := s.pool.Query(ctx, query, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query admin alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.AdminAlert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admin alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func (s *PostgresStore) MarkRead(ctx context.Context, id uuid.UUID) (*models.AdminAlert, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	return scanAlert(s.pool.QueryRow(ctx, `
		UPDATE admin_alerts SET is_read = true
		WHERE id = $1
		RETURNING `+alertColumns, id))
}

func (s *PostgresStore) Resolve(ctx context.Context, id uuid.UUID, at time.Time) (*models.AdminAlert, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	return scanAlert(s.pool.QueryRow(ctx, `
		UPDATE admin_alerts
		SET resolved = true, is_read = true, resolved_at = COALESCE(resolved_at, $2)
		WHERE id = $1
		RETURNING `+alertColumns, id, at))
}
