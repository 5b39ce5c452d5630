package offer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajivgeraev/artbazaar-api/internal/db"
	"github.com/rajivgeraev/artbazaar-api/internal/models"
)

const offerColumns = `id, artwork_id, buyer_id, seller_id, list_price_cents, offered_price_cents,
	status, enhanced_status, message, payment_link_id, payment_link_url, stripe_payment_intent_id,
	expires_at, payment_deadline, accepted_at, rejected_at, created_at, updated_at`

// PostgresStore хранит предложения в таблице offers
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore создаёт хранилище предложений
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanOffer(row pgx.Row) (*models.Offer, error) {
	var o models.Offer
	err := row.Scan(
		&o.ID, &o.ArtworkID, &o.BuyerID, &o.SellerID, &o.ListPriceCents, &o.OfferedPriceCents,
		&o.Status, &o.EnhancedStatus, &o.Message, &o.PaymentLinkID, &o.PaymentLinkURL, &o.StripePaymentIntentID,
		&o.ExpiresAt, &o.PaymentDeadline, &o.AcceptedAt, &o.RejectedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) Insert(ctx context.Context, o *models.Offer) error {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO offers (id, artwork_id, buyer_id, seller_id, list_price_cents, offered_price_cents,
			status, enhanced_status, message, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, o.ID, o.ArtworkID, o.BuyerID, o.SellerID, o.ListPriceCents, o.OfferedPriceCents,
		o.Status, o.EnhancedStatus, o.Message, o.ExpiresAt, o.CreatedAt)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	return scanOffer(s.pool.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
}

func (s *PostgresStore) ListForUser(ctx context.Context, userID uuid.UUID, role Role, status models.OfferStatus) ([]models.Offer, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	var who string
	switch role {
	case RoleBuyer:
		who = "buyer_id = $1"
	case RoleSeller:
		who = "seller_id = $1"
	default:
		who = "(buyer_id = $1 OR seller_id = $1)"
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+offerColumns+`
		FROM offers
		WHERE `+who+` AND ($2::text = '' OR status::text = $2)
		ORDER BY created_at DESC
		LIMIT 200
	`, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	defer rows.Close()

	offers := []models.Offer{}
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *o)
	}
	return offers, rows.Err()
}

func (s *PostgresStore) TransitionFromPending(ctx context.Context, id uuid.UUID, t Transition) (*models.Offer, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	offer, err := scanOffer(s.pool.QueryRow(ctx, `
		UPDATE offers
		SET status = $2,
		    enhanced_status = $3,
		    accepted_at = COALESCE($4, accepted_at),
		    rejected_at = COALESCE($5, rejected_at),
		    payment_deadline = COALESCE($6, payment_deadline),
		    updated_at = $7
		WHERE id = $1 AND status = 'pending'
		RETURNING `+offerColumns,
		id, t.Status, t.EnhancedStatus, t.AcceptedAt, t.RejectedAt, t.PaymentDeadline, t.At))
	if errors.Is(err, ErrOfferNotFound) {
		return nil, s.missingOrNotPending(ctx, id)
	}
	return offer, err
}

func (s *PostgresStore) SetPaymentLink(ctx context.Context, id uuid.UUID, linkID, linkURL string, at time.Time) (*models.Offer, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	offer, err := scanOffer(s.pool.QueryRow(ctx, `
		UPDATE offers
		SET payment_link_id = $2, payment_link_url = $3, updated_at = $4
		WHERE id = $1 AND status = 'accepted'
		RETURNING `+offerColumns, id, linkID, linkURL, at))
	if errors.Is(err, ErrOfferNotFound) {
		return nil, s.missingOrNotAccepted(ctx, id)
	}
	return offer, err
}

func (s *PostgresStore) SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string, at time.Time) (*models.Offer, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	offer, err := scanOffer(s.pool.QueryRow(ctx, `
		UPDATE offers
		SET stripe_payment_intent_id = $2, updated_at = $3
		WHERE id = $1 AND status = 'accepted'
		RETURNING `+offerColumns, id, intentID, at))
	if errors.Is(err, ErrOfferNotFound) {
		return nil, s.missingOrNotAccepted(ctx, id)
	}
	return offer, err
}

func (s *PostgresStore) SetEnhancedStatus(ctx context.Context, id uuid.UUID, status models.EnhancedStatus) error {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE offers SET enhanced_status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOfferNotFound
	}
	return nil
}

func (s *PostgresStore) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		UPDATE offers
		SET status = 'expired', enhanced_status = 'expired', updated_at = $1
		WHERE status = 'pending' AND expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var found bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM offers WHERE id = $1)`, id).Scan(&found)
	return found, err
}

func (s *PostgresStore) missingOrNotPending(ctx context.Context, id uuid.UUID) error {
	found, err := s.exists(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrOfferNotFound
	}
	return ErrOfferNotPending
}

func (s *PostgresStore) missingOrNotAccepted(ctx context.Context, id uuid.UUID) error {
	found, err := s.exists(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrOfferNotFound
	}
	return ErrOfferNotAccepted
}
