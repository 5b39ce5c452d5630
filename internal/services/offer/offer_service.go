package offer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/artbazaar-api/internal/metrics"
	"github.com/rajivgeraev/artbazaar-api/internal/models"
	"github.com/rajivgeraev/artbazaar-api/internal/websocket"
)

// Сроки по умолчанию
const (
	DefaultOfferTTL      = 72 * time.Hour
	DefaultPaymentWindow = 48 * time.Hour
	maxMessageLength     = 1000
)

var (
	ErrOfferNotFound      = errors.New("offer not found")
	ErrUnauthorized       = errors.New("caller is not allowed to change this offer")
	ErrOfferNotPending    = errors.New("offer is not pending")
	ErrOfferNotAccepted   = errors.New("offer is not accepted")
	ErrInvalidPrice       = errors.New("offered price must be positive")
	ErrSelfOffer          = errors.New("cannot make an offer on your own artwork")
	ErrArtworkUnavailable = errors.New("artwork is not for sale")
	ErrMessageTooLong     = errors.New("message is too long")
	ErrInvalidInput       = errors.New("invalid input")
)

// Role выбирает, какие предложения пользователя возвращать
type Role string

const (
	RoleAll    Role = "all"
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Transition описывает переход из pending; пустые указатели не меняют поля
type Transition struct {
	Status          models.OfferStatus
	EnhancedStatus  models.EnhancedStatus
	AcceptedAt      *time.Time
	RejectedAt      *time.Time
	PaymentDeadline *time.Time
	At              time.Time
}

// Store хранилище предложений
type Store interface {
	Insert(ctx context.Context, offer *models.Offer) error
	Get(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	ListForUser(ctx context.Context, userID uuid.UUID, role Role, status models.OfferStatus) ([]models.Offer, error)
	// TransitionFromPending применяет переход, только если предложение ещё pending;
	// иначе возвращает ErrOfferNotPending
	TransitionFromPending(ctx context.Context, id uuid.UUID, t Transition) (*models.Offer, error)
	SetPaymentLink(ctx context.Context, id uuid.UUID, linkID, linkURL string, at time.Time) (*models.Offer, error)
	SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string, at time.Time) (*models.Offer, error)
	SetEnhancedStatus(ctx context.Context, id uuid.UUID, status models.EnhancedStatus) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// ArtworkReader читает работу из каталога
type ArtworkReader interface {
	GetArtwork(ctx context.Context, id uuid.UUID) (*models.Artwork, error)
}

// EscrowOpener открывает эскроу по принятому предложению
type EscrowOpener interface {
	CreateForOffer(ctx context.Context, offer *models.Offer) (*models.EscrowApproval, error)
}

// AlertEmitter уведомления администраторов, связанные с предложениями
type AlertEmitter interface {
	PriceDeviation(ctx context.Context, offer *models.Offer) bool
	PaymentFailed(ctx context.Context, offer *models.Offer, reason string)
}

// Notifier ставит письма в очередь
type Notifier interface {
	Enqueue(ctx context.Context, recipientID uuid.UUID, template, subject string, payload map[string]any) (*models.EmailNotification, error)
}

// Pusher доставляет события пользователям онлайн
type Pusher interface {
	SendToUser(userID string, event websocket.Event)
}

// Deps зависимости Service; Store и Artworks обязательны
type Deps struct {
	Store    Store
	Artworks ArtworkReader
	Escrow   EscrowOpener
	Alerts   AlertEmitter
	Notifier Notifier
	Pusher   Pusher
}

// Service жизненный цикл предложений цены
type Service struct {
	Deps
	offerTTL      time.Duration
	paymentWindow time.Duration
	now           func() time.Time
}

// NewService создает новый экземпляр Service
func NewService(deps Deps, offerTTL, paymentWindow time.Duration) *Service {
	if offerTTL <= 0 {
		offerTTL = DefaultOfferTTL
	}
	if paymentWindow <= 0 {
		paymentWindow = DefaultPaymentWindow
	}
	return &Service{
		Deps:          deps,
		offerTTL:      offerTTL,
		paymentWindow: paymentWindow,
		now:           time.Now,
	}
}

// CreateInput данные нового предложения
type CreateInput struct {
	ArtworkID         uuid.UUID `json:"artwork_id"`
	OfferedPriceCents int64     `json:"offered_price_cents"`
	Message           string    `json:"message"`
}

// CreateOffer создаёт предложение покупателя по цене работы
func (s *Service) CreateOffer(ctx context.Context, buyerID uuid.UUID, in CreateInput) (*models.Offer, error) {
	if in.OfferedPriceCents <= 0 {
		return nil, ErrInvalidPrice
	}
	message := strings.TrimSpace(in.Message)
	if len(message) > maxMessageLength {
		return nil, ErrMessageTooLong
	}

	artwork, err := s.Artworks.GetArtwork(ctx, in.ArtworkID)
	if err != nil {
		return nil, err
	}
	if artwork.Status != "" && artwork.Status != "active" {
		return nil, ErrArtworkUnavailable
	}

	sellerID := artwork.SellerID()
	if sellerID == buyerID || artwork.ArtistID == buyerID {
		return nil, ErrSelfOffer
	}

	now := s.now()
	expiresAt := now.Add(s.offerTTL)
	offer := &models.Offer{
		ID:                uuid.New(),
		ArtworkID:         artwork.ID,
		BuyerID:           buyerID,
		SellerID:          sellerID,
		ListPriceCents:    artwork.PriceCents,
		OfferedPriceCents: in.OfferedPriceCents,
		Status:            models.OfferPending,
		EnhancedStatus:    models.StagePending,
		ExpiresAt:         &expiresAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if message != "" {
		offer.Message = &message
	}

	if err := s.Store.Insert(ctx, offer); err != nil {
		return nil, fmt.Errorf("failed to insert offer: %w", err)
	}
	metrics.OfferTransitionsTotal.WithLabelValues(string(models.OfferPending)).Inc()

	if s.Alerts != nil {
		s.Alerts.PriceDeviation(ctx, offer)
	}

	s.notify(ctx, offer.SellerID, "offer_received", "You received a new offer", offer)
	s.push(offer.SellerID, websocket.EventOfferCreated, offer)

	slog.Info("Offer created",
		slog.String("offer_id", offer.ID.String()),
		slog.String("artwork_id", offer.ArtworkID.String()),
		slog.Int64("offered_price_cents", offer.OfferedPriceCents))
	return offer, nil
}

// AcceptOffer принимает предложение; доступно только продавцу
func (s *Service) AcceptOffer(ctx context.Context, offerID, sellerID uuid.UUID) (*models.Offer, error) {
	if _, err := s.pendingFor(ctx, offerID, func(o *models.Offer) bool { return o.SellerID == sellerID }); err != nil {
		return nil, err
	}

	now := s.now()
	deadline := now.Add(s.paymentWindow)
	offer, err := s.Store.TransitionFromPending(ctx, offerID, Transition{
		Status:          models.OfferAccepted,
		EnhancedStatus:  models.StagePaymentPending,
		AcceptedAt:      &now,
		PaymentDeadline: &deadline,
		At:              now,
	})
	if err != nil {
		return nil, err
	}
	metrics.OfferTransitionsTotal.WithLabelValues(string(models.OfferAccepted)).Inc()

	if s.Escrow != nil {
		if _, err := s.Escrow.CreateForOffer(ctx, offer); err != nil {
			slog.Error("Failed to open escrow for accepted offer",
				slog.String("offer_id", offer.ID.String()),
				slog.Any("error", err))
			return nil, fmt.Errorf("offer accepted but escrow was not opened: %w", err)
		}
	}

	s.notify(ctx, offer.BuyerID, "offer_accepted", "Your offer was accepted", offer)
	s.push(offer.BuyerID, websocket.EventOfferAccepted, offer)

	slog.Info("Offer accepted", slog.String("offer_id", offer.ID.String()))
	return offer, nil
}

// RejectOffer отклоняет предложение; доступно только продавцу
func (s *Service) RejectOffer(ctx context.Context, offerID, sellerID uuid.UUID) (*models.Offer, error) {
	if _, err := s.pendingFor(ctx, offerID, func(o *models.Offer) bool { return o.SellerID == sellerID }); err != nil {
		return nil, err
	}

	now := s.now()
	offer, err := s.Store.TransitionFromPending(ctx, offerID, Transition{
		Status:         models.OfferRejected,
		EnhancedStatus: models.StageRejected,
		RejectedAt:     &now,
		At:             now,
	})
	if err != nil {
		return nil, err
	}
	metrics.OfferTransitionsTotal.WithLabelValues(string(models.OfferRejected)).Inc()

	s.notify(ctx, offer.BuyerID, "offer_rejected", "Your offer was declined", offer)
	s.push(offer.BuyerID, websocket.EventOfferRejected, offer)
	return offer, nil
}

// WithdrawOffer отзывает предложение; доступно только покупателю
func (s *Service) WithdrawOffer(ctx context.Context, offerID, buyerID uuid.UUID) (*models.Offer, error) {
	if _, err := s.pendingFor(ctx, offerID, func(o *models.Offer) bool { return o.BuyerID == buyerID }); err != nil {
		return nil, err
	}

	offer, err := s.Store.TransitionFromPending(ctx, offerID, Transition{
		Status:         models.OfferExpired,
		EnhancedStatus: models.StageWithdrawn,
		At:             s.now(),
	})
	if err != nil {
		return nil, err
	}
	metrics.OfferTransitionsTotal.WithLabelValues(string(models.StageWithdrawn)).Inc()

	s.push(offer.SellerID, websocket.EventOfferWithdrawn, offer)
	return offer, nil
}

// pendingFor проверяет права и статус; просроченное предложение помечается expired
func (s *Service) pendingFor(ctx context.Context, offerID uuid.UUID, allowed func(*models.Offer) bool) (*models.Offer, error) {
	offer, err := s.Store.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !allowed(offer) {
		return nil, ErrUnauthorized
	}
	if offer.Status != models.OfferPending {
		return nil, ErrOfferNotPending
	}

	now := s.now()
	if offer.IsExpired(now) {
		if _, err := s.Store.TransitionFromPending(ctx, offerID, Transition{
			Status:         models.OfferExpired,
			EnhancedStatus: models.StageExpired,
			At:             now,
		}); err == nil {
			metrics.OfferTransitionsTotal.WithLabelValues(string(models.OfferExpired)).Inc()
		} else if !errors.Is(err, ErrOfferNotPending) {
			slog.Error("Failed to expire offer", slog.String("offer_id", offerID.String()), slog.Any("error", err))
		}
		return nil, ErrOfferNotPending
	}
	return offer, nil
}

// UpdateOfferPaymentLink сохраняет ссылку на оплату для принятого предложения
func (s *Service) UpdateOfferPaymentLink(ctx context.Context, offerID uuid.UUID, linkID, linkURL string) (*models.Offer, error) {
	if linkID == "" || linkURL == "" {
		return nil, fmt.Errorf("%w: payment link id and url are required", ErrInvalidInput)
	}
	return s.Store.SetPaymentLink(ctx, offerID, linkID, linkURL, s.now())
}

// UpdateOfferPaymentIntent сохраняет ID платёжного намерения для принятого предложения
func (s *Service) UpdateOfferPaymentIntent(ctx context.Context, offerID uuid.UUID, intentID string) (*models.Offer, error) {
	if intentID == "" {
		return nil, fmt.Errorf("%w: payment intent id is required", ErrInvalidInput)
	}
	return s.Store.SetPaymentIntent(ctx, offerID, intentID, s.now())
}

// MarkPaymentFailed отмечает неудачную оплату и уведомляет администраторов
func (s *Service) MarkPaymentFailed(ctx context.Context, offerID uuid.UUID, reason string) (*models.Offer, error) {
	offer, err := s.Store.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != models.OfferAccepted {
		return nil, ErrOfferNotAccepted
	}

	if err := s.Store.SetEnhancedStatus(ctx, offerID, models.StagePaymentFailed); err != nil {
		return nil, fmt.Errorf("failed to mark payment failed: %w", err)
	}
	offer.EnhancedStatus = models.StagePaymentFailed
	metrics.OfferTransitionsTotal.WithLabelValues(string(models.StagePaymentFailed)).Inc()

	if s.Alerts != nil {
		s.Alerts.PaymentFailed(ctx, offer, reason)
	}
	return offer, nil
}

// ExpireStaleOffers переводит просроченные pending-предложения в expired
func (s *Service) ExpireStaleOffers(ctx context.Context) (int64, error) {
	n, err := s.Store.ExpireStale(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale offers: %w", err)
	}
	if n > 0 {
		metrics.OfferTransitionsTotal.WithLabelValues(string(models.OfferExpired)).Add(float64(n))
		slog.Info("Expired stale offers", slog.Int64("count", n))
	}
	return n, nil
}

// GetOffer возвращает предложение участнику сделки
func (s *Service) GetOffer(ctx context.Context, offerID, userID uuid.UUID) (*models.Offer, error) {
	offer, err := s.Store.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.BuyerID != userID && offer.SellerID != userID {
		return nil, ErrUnauthorized
	}
	return offer, nil
}

// ListOffersForUser возвращает предложения пользователя как покупателя и/или продавца
func (s *Service) ListOffersForUser(ctx context.Context, userID uuid.UUID, role Role, status models.OfferStatus) ([]models.Offer, error) {
	switch role {
	case "", RoleAll:
		role = RoleAll
	case RoleBuyer, RoleSeller:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	switch status {
	case "", models.OfferPending, models.OfferAccepted, models.OfferRejected, models.OfferExpired:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.Store.ListForUser(ctx, userID, role, status)
}

func (s *Service) notify(ctx context.Context, recipient uuid.UUID, template, subject string, offer *models.Offer) {
	if s.Notifier == nil {
		return
	}
	payload := map[string]any{
		"offer_id":            offer.ID.String(),
		"artwork_id":          offer.ArtworkID.String(),
		"offered_price_cents": offer.OfferedPriceCents,
	}
	if _, err := s.Notifier.Enqueue(ctx, recipient, template, subject, payload); err != nil {
		slog.Error("Failed to enqueue offer email",
			slog.String("template", template),
			slog.Any("error", err))
	}
}

func (s *Service) push(userID uuid.UUID, eventType websocket.EventType, offer *models.Offer) {
	if s.Pusher == nil {
		return
	}
	s.Pusher.SendToUser(userID.String(), websocket.NewEvent(eventType, offer.ID, offer))
}
