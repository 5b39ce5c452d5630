package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajivgeraev/artbazaar-api/internal/db"
	"github.com/rajivgeraev/artbazaar-api/internal/models"
)

// Комиссия платформы и НДС на комиссию, в процентах
const (
	PlatformFeePercent = 20
	VATPercent         = 25
)

var (
	ErrInvalidAmount = errors.New("amount must not be negative")
	ErrFeeMismatch   = errors.New("fee breakdown does not add up to total")
)

// FeeCalculator раскладывает сумму сделки на комиссию, НДС и выплату продавцу
type FeeCalculator interface {
	Calculate(ctx context.Context, totalCents int64) (models.EscrowAmounts, error)
}

// CalculateEscrowAmounts считает разбивку в целых центах с округлением половины вверх.
// Выплата продавцу получается вычитанием, поэтому сумма частей всегда равна total.
func CalculateEscrowAmounts(totalCents int64) (models.EscrowAmounts, error) {
	if totalCents < 0 {
		return models.EscrowAmounts{}, ErrInvalidAmount
	}
	fee := percentOf(totalCents, PlatformFeePercent)
	vat := percentOf(fee, VATPercent)
	return models.EscrowAmounts{
		PlatformFeeCents:  fee,
		VATCents:          vat,
		SellerAmountCents: totalCents - fee - vat,
	}, nil
}

func percentOf(v, pct int64) int64 {
	return (v*pct + 50) / 100
}

// LocalFeeCalculator считает разбивку в процессе
type LocalFeeCalculator struct{}

func (LocalFeeCalculator) Calculate(_ context.Context, totalCents int64) (models.EscrowAmounts, error) {
	return CalculateEscrowAmounts(totalCents)
}

// PostgresFeeCalculator вызывает хранимую процедуру calculate_escrow_amounts
type PostgresFeeCalculator struct {
	pool *pgxpool.Pool
}

// NewPostgresFeeCalculator создаёт калькулятор поверх пула
func NewPostgresFeeCalculator(pool *pgxpool.Pool) *PostgresFeeCalculator {
	return &PostgresFeeCalculator{pool: pool}
}

func (c *PostgresFeeCalculator) Calculate(ctx context.Context, totalCents int64) (models.EscrowAmounts, error) {
	if totalCents < 0 {
		return models.EscrowAmounts{}, ErrInvalidAmount
	}

	ctx, cancel := db.GetContext(ctx)
	defer cancel()

	var amounts models.EscrowAmounts
	err := c.pool.QueryRow(ctx, `
		SELECT platform_fee_cents, vat_cents, seller_amount_cents
		FROM calculate_escrow_amounts($1)
	`, totalCents).Scan(&amounts.PlatformFeeCents, &amounts.VATCents, &amounts.SellerAmountCents)
	if err != nil {
		return models.EscrowAmounts{}, fmt.Errorf("failed to calculate escrow amounts: %w", err)
	}

	return checkAmounts(totalCents, amounts)
}

func checkAmounts(totalCents int64, amounts models.EscrowAmounts) (models.EscrowAmounts, error) {
	if amounts.Total() != totalCents ||
		amounts.PlatformFeeCents < 0 || amounts.VATCents < 0 || amounts.SellerAmountCents < 0 {
		return models.EscrowAmounts{}, fmt.Errorf("%w: total %d, got %+v", ErrFeeMismatch, totalCents, amounts)
	}
	return amounts, nil
}
