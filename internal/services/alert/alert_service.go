package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rajivgeraev/artbazaar-api/internal/metrics"
	"github.com/rajivgeraev/artbazaar-api/internal/models"
	"github.com/rajivgeraev/artbazaar-api/internal/websocket"
)

// Пороги отклонения предложенной цены от цены в каталоге, в процентах
const (
	DeviationWarningPercent  = 50.0
	DeviationCriticalPercent = 75.0
)

var ErrAlertNotFound = errors.New("alert not found")

// Filter параметры выборки уведомлений
type Filter struct {
	UnreadOnly     bool
	UnresolvedOnly bool
	Limit          int
}

// Store хранилище уведомлений администраторов
type Store interface {
	Insert(ctx context.Context, alert *models.AdminAlert) error
	List(ctx context.Context, filter Filter) ([]models.AdminAlert, error)
	MarkRead(ctx context.Context, id uuid.UUID) (*models.AdminAlert, error)
	Resolve(ctx context.Context, id uuid.UUID, at time.Time) (*models.AdminAlert, error)
}

// Pusher доставляет события подключённым администраторам
type Pusher interface {
	SendToAdmins(event websocket.Event)
}

// Service создаёт и обслуживает уведомления администраторов
type Service struct {
	store  Store
	pusher Pusher
	now    func() time.Time
}

// NewService создает новый экземпляр Service; pusher может быть nil
func NewService(store Store, pusher Pusher) *Service {
	return &Service{store: store, pusher: pusher, now: time.Now}
}

// Emit сохраняет уведомление и рассылает его администраторам онлайн
func (s *Service) Emit(ctx context.Context, alert *models.AdminAlert) (*models.AdminAlert, error) {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.Severity == "" {
		alert.Severity = models.SeverityInfo
	}
	if alert.Metadata == nil {
		alert.Metadata = map[string]any{}
	}
	alert.CreatedAt = s.now()

	if err := s.store.Insert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to insert alert: %w", err)
	}

	metrics.AlertsEmittedTotal.WithLabelValues(string(alert.AlertType), string(alert.Severity)).Inc()

	if s.pusher != nil {
		s.pusher.SendToAdmins(websocket.NewEvent(websocket.EventAlertCreated, uuidOrNil(alert.OfferID), alert))
	}
	return alert, nil
}

// emitQuietly используется детекторами: сбой записи уведомления не должен ломать основную операцию
func (s *Service) emitQuietly(ctx context.Context, alert *models.AdminAlert) {
	if _, err := s.Emit(ctx, alert); err != nil {
		slog.Error("Failed to emit admin alert",
			slog.String("type", string(alert.AlertType)),
			slog.Any("error", err))
	}
}

// PriceDeviation создаёт уведомление, если предложение аномально отличается от цены в каталоге.
// Возвращает true, если уведомление было создано.
func (s *Service) PriceDeviation(ctx context.Context, offer *models.Offer) bool {
	deviation := offer.DeviationPercent()
	abs := math.Abs(deviation)
	if offer.ListPriceCents <= 0 || abs < DeviationWarningPercent {
		return false
	}

	severity := models.SeverityWarning
	if abs >= DeviationCriticalPercent {
		severity = models.SeverityCritical
	}

	offerID := offer.ID
	s.emitQuietly(ctx, &models.AdminAlert{
		AlertType: models.AlertPriceDeviation,
		Severity:  severity,
		Title:     "Abnormal offer price",
		Message: fmt.Sprintf("Offer of %d cents deviates %.1f%% from list price %d cents",
			offer.OfferedPriceCents, deviation, offer.ListPriceCents),
		OfferID: &offerID,
		Metadata: map[string]any{
			"artwork_id":          offer.ArtworkID.String(),
			"list_price_cents":    offer.ListPriceCents,
			"offered_price_cents": offer.OfferedPriceCents,
			"deviation_percent":   math.Round(deviation*100) / 100,
		},
	})
	return true
}

// PaymentFailed сообщает о неудачной оплате по предложению
func (s *Service) PaymentFailed(ctx context.Context, offer *models.Offer, reason string) {
	offerID := offer.ID
	s.emitQuietly(ctx, &models.AdminAlert{
		AlertType: models.AlertPaymentFailed,
		Severity:  models.SeverityCritical,
		Title:     "Payment failed",
		Message:   fmt.Sprintf("Payment for offer %s failed: %s", offer.ID, reason),
		OfferID:   &offerID,
		Metadata: map[string]any{
			"buyer_id":            offer.BuyerID.String(),
			"offered_price_cents": offer.OfferedPriceCents,
			"reason":              reason,
		},
	})
}

// SpendThreshold сообщает о приближении к месячному бюджету на AI
func (s *Service) SpendThreshold(ctx context.Context, projectID string, spent, limit decimal.Decimal, percentUsed float64) {
	severity := models.SeverityWarning
	if percentUsed >= 100 {
		severity = models.SeverityCritical
	}
	s.emitQuietly(ctx, &models.AdminAlert{
		AlertType: models.AlertAISpendThreshold,
		Severity:  severity,
		Title:     "AI spend threshold reached",
		Message:   fmt.Sprintf("AI spend is at %.1f%% of the monthly budget (%s of %s)", percentUsed, spent.StringFixed(2), limit.StringFixed(2)),
		Metadata: map[string]any{
			"project_id":      projectID,
			"current_spend":   spent.String(),
			"limit":           limit.String(),
			"percentage_used": math.Round(percentUsed*100) / 100,
		},
	})
}

// SpendAnomaly сообщает о резком росте расходов на AI
func (s *Service) SpendAnomaly(ctx context.Context, projectID, kind, description string) {
	s.emitQuietly(ctx, &models.AdminAlert{
		AlertType: models.AlertAISpendAnomaly,
		Severity:  models.SeverityWarning,
		Title:     "AI spend anomaly",
		Message:   description,
		Metadata: map[string]any{
			"project_id": projectID,
			"anomaly":    kind,
		},
	})
}

// EscrowStalled сообщает о сделке, где стороны не подтвердили получение в срок
func (s *Service) EscrowStalled(ctx context.Context, approval *models.EscrowApproval) {
	offerID := approval.OfferID
	s.emitQuietly(ctx, &models.AdminAlert{
		AlertType: models.AlertEscrowStalled,
		Severity:  models.SeverityWarning,
		Title:     "Escrow approval stalled",
		Message:   fmt.Sprintf("Escrow for offer %s passed its approval deadline", approval.OfferID),
		OfferID:   &offerID,
		Metadata: map[string]any{
			"buyer_approved":     approval.BuyerApproved,
			"seller_approved":    approval.SellerApproved,
			"total_amount_cents": approval.TotalAmountCents,
		},
	})
}

// List возвращает уведомления по фильтру
func (s *Service) List(ctx context.Context, filter Filter) ([]models.AdminAlert, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.store.List(ctx, filter)
}

// MarkRead помечает уведомление прочитанным
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) (*models.AdminAlert, error) {
	return s.store.MarkRead(ctx, id)
}

// Resolve закрывает уведомление
func (s *Service) Resolve(ctx context.Context, id uuid.UUID) (*models.AdminAlert, error) {
	return s.store.Resolve(ctx, id, s.now())
}

func uuidOrNil(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
