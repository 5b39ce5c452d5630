package models

import (
	"time"

	"github.com/google/uuid"
)

type AlertType string

const (
	AlertPriceDeviation   AlertType = "price_deviation"
	AlertPaymentFailed    AlertType = "payment_failed"
	AlertAISpendThreshold AlertType = "ai_spend_threshold"
	AlertAISpendAnomaly   AlertType = "ai_spend_anomaly"
	AlertEscrowStalled    AlertType = "escrow_stalled"
)

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AdminAlert уведомление для администраторов о нештатной ситуации
type AdminAlert struct {
	ID         uuid.UUID      `json:"id"`
	AlertType  AlertType      `json:"alert_type"`
	Severity   AlertSeverity  `json:"severity"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	OfferID    *uuid.UUID     `json:"offer_id,omitempty"`
	Metadata   map[string]any `json:"metadata"`
	IsRead     bool           `json:"is_read"`
	Resolved   bool           `json:"resolved"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
