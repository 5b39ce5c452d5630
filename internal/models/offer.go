package models

import (
	"time"

	"github.com/google/uuid"
)

// OfferStatus основной статус предложения цены
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
	OfferExpired  OfferStatus = "expired"
)

// EnhancedStatus детальная стадия предложения, включая оплату и эскроу
type EnhancedStatus string

const (
	StagePending          EnhancedStatus = "pending"
	StageAccepted         EnhancedStatus = "accepted"
	StageRejected         EnhancedStatus = "rejected"
	StageExpired          EnhancedStatus = "expired"
	StageWithdrawn        EnhancedStatus = "withdrawn"
	StagePaymentPending   EnhancedStatus = "payment_pending"
	StagePaymentFailed    EnhancedStatus = "payment_failed"
	StagePaidInEscrow     EnhancedStatus = "paid_in_escrow"
	StageAwaitingApproval EnhancedStatus = "awaiting_approval"
	StageCompleted        EnhancedStatus = "completed"
	StageRefunded         EnhancedStatus = "refunded"
)

// Offer представляет предложение цены покупателя продавцу за одну работу
type Offer struct {
	ID                    uuid.UUID      `json:"id"`
	ArtworkID             uuid.UUID      `json:"artwork_id"`
	BuyerID               uuid.UUID      `json:"buyer_id"`
	SellerID              uuid.UUID      `json:"seller_id"`
	ListPriceCents        int64          `json:"list_price_cents"`
	OfferedPriceCents     int64          `json:"offered_price_cents"`
	Status                OfferStatus    `json:"status"`
	EnhancedStatus        EnhancedStatus `json:"enhanced_status"`
	Message               *string        `json:"message,omitempty"`
	PaymentLinkID         *string        `json:"payment_link_id,omitempty"`
	PaymentLinkURL        *string        `json:"payment_link_url,omitempty"`
	StripePaymentIntentID *string        `json:"stripe_payment_intent_id,omitempty"`
	ExpiresAt             *time.Time     `json:"expires_at,omitempty"`
	PaymentDeadline       *time.Time     `json:"payment_deadline,omitempty"`
	AcceptedAt            *time.Time     `json:"accepted_at,omitempty"`
	RejectedAt            *time.Time     `json:"rejected_at,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// IsExpired сообщает, истёк ли срок ожидающего предложения
func (o *Offer) IsExpired(now time.Time) bool {
	return o.Status == OfferPending && o.ExpiresAt != nil && now.After(*o.ExpiresAt)
}

// DeviationPercent отклонение предложенной цены от цены в каталоге, в процентах
func (o *Offer) DeviationPercent() float64 {
	if o.ListPriceCents <= 0 {
		return 0
	}
	return float64(o.OfferedPriceCents-o.ListPriceCents) / float64(o.ListPriceCents) * 100
}
