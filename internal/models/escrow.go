package models

import (
	"time"

	"github.com/google/uuid"
)

// EscrowAmounts разбивка суммы сделки на комиссию, НДС и выплату продавцу
type EscrowAmounts struct {
	PlatformFeeCents  int64 `json:"platform_fee_cents"`
	VATCents          int64 `json:"vat_cents"`
	SellerAmountCents int64 `json:"seller_amount_cents"`
}

// Total возвращает сумму всех частей
func (a EscrowAmounts) Total() int64 {
	return a.PlatformFeeCents + a.VATCents + a.SellerAmountCents
}

// EscrowApproval отслеживает подтверждения покупателя и продавца по принятому предложению
type EscrowApproval struct {
	ID                uuid.UUID  `json:"id"`
	OfferID           uuid.UUID  `json:"offer_id"`
	BuyerID           uuid.UUID  `json:"buyer_id"`
	SellerID          uuid.UUID  `json:"seller_id"`
	BuyerApproved     bool       `json:"buyer_approved"`
	BuyerApprovedAt   *time.Time `json:"buyer_approved_at,omitempty"`
	SellerApproved    bool       `json:"seller_approved"`
	SellerApprovedAt  *time.Time `json:"seller_approved_at,omitempty"`
	BothApproved      bool       `json:"both_approved"`
	FundsReleased     bool       `json:"funds_released"`
	FundsReleasedAt   *time.Time `json:"funds_released_at,omitempty"`
	StripeTransferID  *string    `json:"stripe_transfer_id,omitempty"`
	TotalAmountCents  int64      `json:"total_amount_cents"`
	PlatformFeeCents  int64      `json:"platform_fee_cents"`
	VATCents          int64      `json:"vat_cents"`
	SellerAmountCents int64      `json:"seller_amount_cents"`
	ApprovalDeadline  *time.Time `json:"approval_deadline,omitempty"`
	IsStalled         bool       `json:"is_stalled"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Amounts возвращает сохранённую разбивку суммы
func (e *EscrowApproval) Amounts() EscrowAmounts {
	return EscrowAmounts{
		PlatformFeeCents:  e.PlatformFeeCents,
		VATCents:          e.VATCents,
		SellerAmountCents: e.SellerAmountCents,
	}
}
