package escrow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/artbazaar-api/internal/models"
)

func TestCalculateEscrowAmounts(t *testing.T) {
	tests := []struct {
		total int64
		want  models.EscrowAmounts
	}{
		{total: 0, want: models.EscrowAmounts{}},
		{total: 1, want: models.EscrowAmounts{SellerAmountCents: 1}},
		{total: 3, want: models.EscrowAmounts{PlatformFeeCents: 1, SellerAmountCents: 2}},
		{total: 10, want: models.EscrowAmounts{PlatformFeeCents: 2, VATCents: 1, SellerAmountCents: 7}},
		{total: 13, want: models.EscrowAmounts{PlatformFeeCents: 3, VATCents: 1, SellerAmountCents: 9}},
		{total: 100, want: models.EscrowAmounts{PlatformFeeCents: 20, VATCents: 5, SellerAmountCents: 75}},
		{total: 1_000_000, want: models.EscrowAmounts{PlatformFeeCents: 200_000, VATCents: 50_000, SellerAmountCents: 750_000}},
	}

	for _, tt := range tests {
		got, err := CalculateEscrowAmounts(tt.total)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "total %d", tt.total)
	}
}

func TestCalculateEscrowAmountsAlwaysSumsToTotal(t *testing.T) {
	for total := int64(0); total <= 20_000; total++ {
		got, err := CalculateEscrowAmounts(total)
		require.NoError(t, err)
		if got.Total() != total || got.SellerAmountCents < 0 {
			t.Fatalf("bad breakdown for %d: %+v", total, got)
		}
	}
}

func TestCalculateEscrowAmountsRejectsNegative(t *testing.T) {
	_, err := CalculateEscrowAmounts(-1)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = LocalFeeCalculator{}.Calculate(context.Background(), -5)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCheckAmountsDetectsMismatch(t *testing.T) {
	_, err := checkAmounts(100, models.EscrowAmounts{PlatformFeeCents: 20, VATCents: 5, SellerAmountCents: 74})
	assert.ErrorIs(t, err, ErrFeeMismatch)

	got, err := checkAmounts(100, models.EscrowAmounts{PlatformFeeCents: 20, VATCents: 5, SellerAmountCents: 75})
	require.NoError(t, err)
	assert.Equal(t, int64(75), got.SellerAmountCents)
}
