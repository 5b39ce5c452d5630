package escrow

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

const approvalColumns = `id, offer_id, buyer_id, seller_id,
	buyer_approved, buyer_approved_at, seller_approved, seller_approved_at,
	both_approved, funds_released, funds_released_at, stripe_transfer_id,
	total_amount_cents, platform_fee_cents, vat_cents, seller_amount_cents,
	approval_deadline, is_stalled, created_at, updated_at`

// PostgresStore хранит подтверждения в таблице escrow_approvals
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore создаёт хранилище эскроу
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanApproval(row pgx.Row) (*models.EscrowApproval, error) {
	var a models.EscrowApproval
	err := row.Scan(
		&a.ID, &a.OfferID, &a.BuyerID, &a.SellerID,
		&a.BuyerApproved, &a.BuyerApprovedAt, &a.SellerApproved, &a.SellerApprovedAt,
		&a.BothApproved, &a.FundsReleased, &a.FundsReleasedAt, &a.StripeTransferID,
		&a.TotalAmountCents, &a.PlatformFeeCents, &a.VATCents, &a.SellerAmountCents,
		&a.ApprovalDeadline, &a.IsStalled, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEscrowNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) Create(ctx context.Context, a *models.EscrowApproval) error {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO escrow_approvals (id, offer_id, buyer_id, seller_id,
			total_amount_cents, platform_fee_cents, vat_cents, seller_amount_cents,
			approval_deadline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, a.ID, a.OfferID, a.BuyerID, a.SellerID,
		a.TotalAmountCents, a.PlatformFeeCents, a.VATCents, a.SellerAmountCents,
		a.ApprovalDeadline, a.CreatedAt)
	return err
}

func (s *PostgresStore) GetByOffer(ctx context.Context, offerID uuid.UUID) (*models.EscrowApproval, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	return scanApproval(s.pool.QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM escrow_approvals WHERE offer_id = $1`, offerID))
}

func (s *PostgresStore) Approve(ctx context.Context, offerID uuid.UUID, party Party, at time.Time) (*models.EscrowApproval, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	var query string
	switch party {
	case PartyBuyer:
		query = `
			UPDATE escrow_approvals
			SET buyer_approved = true,
			    buyer_approved_at = COALESCE(buyer_approved_at, $2),
			    both_approved = seller_approved,
			    updated_at = $2
			WHERE offer_id = $1
			RETURNING ` + approvalColumns
	case PartySeller:
		query = `
			UPDATE escrow_approvals
			SET seller_approved = true,
			    seller_approved_at = COALESCE(seller_approved_at, $2),
			    both_approved = buyer_approved,
			    updated_at = $2
			WHERE offer_id = $1
			RETURNING ` + approvalColumns
	default:
		return nil, fmt.Errorf("unknown escrow party %q", party)
	}

	return scanApproval(s.pool.QueryRow(ctx, query, offerID, at))
}

func (s *PostgresStore) Release(ctx context.Context, offerID uuid.UUID, amounts models.EscrowAmounts, transferID *string, at time.Time) (*models.EscrowApproval, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	approval, err := scanApproval(s.pool.QueryRow(ctx, `
		UPDATE escrow_approvals
		SET funds_released = true,
		    funds_released_at = $2,
		    stripe_transfer_id = $3,
		    platform_fee_cents = $4,
		    vat_cents = $5,
		    seller_amount_cents = $6,
		    updated_at = $2
		WHERE offer_id = $1 AND both_approved AND NOT funds_released
		RETURNING `+approvalColumns,
		offerID, at, transferID, amounts.PlatformFeeCents, amounts.VATCents, amounts.SellerAmountCents))
	if errors.Is(err, ErrEscrowNotFound) {
		// строка есть, но условие не выполнено: параллельная выплата уже прошла
		return nil, ErrAlreadyReleased
	}
	return approval, err
}

func (s *PostgresStore) MarkStalled(ctx context.Context, now time.Time) ([]models.EscrowApproval, error) {
	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		UPDATE escrow_approvals
		SET is_stalled = true, updated_at = $1
		WHERE NOT funds_released AND NOT is_stalled AND approval_deadline < $1
		RETURNING `+approvalColumns, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stalled []models.EscrowApproval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		stalled = append(stalled, *a)
	}
	return stalled, rows.Err()
}
