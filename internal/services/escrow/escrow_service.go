package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/artbazaar-api/internal/metrics"
	"github.com/rajivgeraev/artbazaar-api/internal/models"
	"github.com/rajivgeraev/artbazaar-api/internal/websocket"
)

// DefaultApprovalWindow срок, за который стороны должны подтвердить сделку
const DefaultApprovalWindow = 14 * 24 * time.Hour

var (
	ErrEscrowNotFound  = errors.New("escrow approval not found")
	ErrUnauthorized    = errors.New("caller is not a party of this escrow")
	ErrNotBothApproved = errors.New("both parties must approve before release")
	ErrAlreadyReleased = errors.New("funds already released")
)

// Party сторона сделки, подтверждающая получение
type Party string

const (
	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
)

// Имена производных состояний эскроу
const (
	StateAwaitingBoth   = "awaiting_both"
	StateAwaitingBuyer  = "awaiting_buyer"
	StateAwaitingSeller = "awaiting_seller"
	StateBothApproved   = "both_approved"
	StateFundsReleased  = "funds_released"
)

// Store хранилище подтверждений эскроу
type Store interface {
	Create(ctx context.Context, approval *models.EscrowApproval) error
	GetByOffer(ctx context.Context, offerID uuid.UUID) (*models.EscrowApproval, error)
	// Approve ставит флаг стороны, сохраняя первую отметку времени, и пересчитывает both_approved
	Approve(ctx context.Context, offerID uuid.UUID, party Party, at time.Time) (*models.EscrowApproval, error)
	// Release отмечает выплату только если обе стороны подтвердили и выплаты ещё не было
	Release(ctx context.Context, offerID uuid.UUID, amounts models.EscrowAmounts, transferID *string, at time.Time) (*models.EscrowApproval, error)
	MarkStalled(ctx context.Context, now time.Time) ([]models.EscrowApproval, error)
}

// OfferStageUpdater меняет детальную стадию предложения
type OfferStageUpdater interface {
	SetEnhancedStatus(ctx context.Context, offerID uuid.UUID, status models.EnhancedStatus) error
}

// AlertEmitter уведомляет администраторов о зависших сделках
type AlertEmitter interface {
	EscrowStalled(ctx context.Context, approval *models.EscrowApproval)
}

// Pusher доставляет события пользователям онлайн
type Pusher interface {
	SendToUser(userID string, event websocket.Event)
}

// Notifier ставит письма в очередь
type Notifier interface {
	Enqueue(ctx context.Context, recipientID uuid.UUID, template, subject string, payload map[string]any) (*models.EmailNotification, error)
}

// Service конечный автомат подтверждений эскроу
type Service struct {
	store          Store
	fees           FeeCalculator
	offers         OfferStageUpdater
	alerts         AlertEmitter
	pusher         Pusher
	notifier       Notifier
	approvalWindow time.Duration
	now            func() time.Time
}

// Option настраивает необязательные зависимости Service
type Option func(*Service)

func WithAlerts(a AlertEmitter) Option { return func(s *Service) { s.alerts = a } }
func WithPusher(p Pusher) Option       { return func(s *Service) { s.pusher = p } }
func WithNotifier(n Notifier) Option   { return func(s *Service) { s.notifier = n } }
func WithOfferStages(o OfferStageUpdater) Option {
	return func(s *Service) { s.offers = o }
}

// WithApprovalWindow задаёт срок подтверждения; неположительное значение игнорируется
func WithApprovalWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.approvalWindow = d
		}
	}
}

// NewService создает новый экземпляр Service
func NewService(store Store, fees FeeCalculator, opts ...Option) *Service {
	s := &Service{
		store:          store,
		fees:           fees,
		approvalWindow: DefaultApprovalWindow,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State возвращает имя текущего состояния сделки
func State(a *models.EscrowApproval) string {
	switch {
	case a.FundsReleased:
		return StateFundsReleased
	case a.BuyerApproved && a.SellerApproved:
		return StateBothApproved
	case a.BuyerApproved:
		return StateAwaitingSeller
	case a.SellerApproved:
		return StateAwaitingBuyer
	default:
		return StateAwaitingBoth
	}
}

// Fees возвращает разбивку суммы без записи в базу
func (s *Service) Fees(ctx context.Context, totalCents int64) (models.EscrowAmounts, error) {
	return s.fees.Calculate(ctx, totalCents)
}

// CreateForOffer открывает эскроу по принятому предложению
func (s *Service) CreateForOffer(ctx context.Context, offer *models.Offer) (*models.EscrowApproval, error) {
	amounts, err := s.fees.Calculate(ctx, offer.OfferedPriceCents)
	if err != nil {
		return nil, err
	}

	now := s.now()
	deadline := now.Add(s.approvalWindow)
	approval := &models.EscrowApproval{
		ID:                uuid.New(),
		OfferID:           offer.ID,
		BuyerID:           offer.BuyerID,
		SellerID:          offer.SellerID,
		TotalAmountCents:  offer.OfferedPriceCents,
		PlatformFeeCents:  amounts.PlatformFeeCents,
		VATCents:          amounts.VATCents,
		SellerAmountCents: amounts.SellerAmountCents,
		ApprovalDeadline:  &deadline,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.store.Create(ctx, approval); err != nil {
		return nil, fmt.Errorf("failed to create escrow approval: %w", err)
	}

	slog.Info("Escrow opened",
		slog.String("offer_id", offer.ID.String()),
		slog.Int64("total_cents", approval.TotalAmountCents))
	return approval, nil
}

// Get возвращает эскроу, если вызывающий является стороной сделки или администратором
func (s *Service) Get(ctx context.Context, offerID, callerID uuid.UUID, isAdmin bool) (*models.EscrowApproval, error) {
	approval, err := s.store.GetByOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && callerID != approval.BuyerID && callerID != approval.SellerID {
		return nil, ErrUnauthorized
	}
	return approval, nil
}

// BuyerApprove подтверждение со стороны покупателя
func (s *Service) BuyerApprove(ctx context.Context, offerID, buyerID uuid.UUID) (*models.EscrowApproval, error) {
	return s.approveAs(ctx, offerID, buyerID, PartyBuyer)
}

// SellerApprove подтверждение со стороны продавца
func (s *Service) SellerApprove(ctx context.Context, offerID, sellerID uuid.UUID) (*models.EscrowApproval, error) {
	return s.approveAs(ctx, offerID, sellerID, PartySeller)
}

// Approve определяет сторону по вызывающему и ставит её подтверждение
func (s *Service) Approve(ctx context.Context, offerID, callerID uuid.UUID) (*models.EscrowApproval, error) {
	approval, err := s.store.GetByOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	switch callerID {
	case approval.BuyerID:
		return s.approve(ctx, approval, PartyBuyer)
	case approval.SellerID:
		return s.approve(ctx, approval, PartySeller)
	default:
		return nil, ErrUnauthorized
	}
}

func (s *Service) approveAs(ctx context.Context, offerID, callerID uuid.UUID, party Party) (*models.EscrowApproval, error) {
	approval, err := s.store.GetByOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if (party == PartyBuyer && callerID != approval.BuyerID) ||
		(party == PartySeller && callerID != approval.SellerID) {
		return nil, ErrUnauthorized
	}
	return s.approve(ctx, approval, party)
}

func (s *Service) approve(ctx context.Context, approval *models.EscrowApproval, party Party) (*models.EscrowApproval, error) {
	if approval.FundsReleased {
		return approval, nil
	}

	updated, err := s.store.Approve(ctx, approval.OfferID, party, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to approve escrow: %w", err)
	}

	if !approval.BuyerApproved && !approval.SellerApproved && s.offers != nil {
		// первое подтверждение переводит предложение в ожидание второй стороны
		if err := s.offers.SetEnhancedStatus(ctx, updated.OfferID, models.StageAwaitingApproval); err != nil {
			slog.Error("Failed to update offer stage",
				slog.String("offer_id", updated.OfferID.String()),
				slog.Any("error", err))
		}
	}

	event := websocket.NewEvent(websocket.EventEscrowApproved, updated.OfferID, stateOf(updated))
	s.push(updated, event)

	slog.Info("Escrow approved",
		slog.String("offer_id", updated.OfferID.String()),
		slog.String("party", string(party)),
		slog.Bool("both_approved", updated.BothApproved))
	return updated, nil
}

// ReleaseFunds выплачивает продавцу; требует подтверждения обеих сторон
func (s *Service) ReleaseFunds(ctx context.Context, offerID uuid.UUID, transferID string) (*models.EscrowApproval, error) {
	approval, err := s.store.GetByOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if approval.FundsReleased {
		return nil, ErrAlreadyReleased
	}
	if !approval.BothApproved {
		return nil, ErrNotBothApproved
	}

	amounts, err := s.fees.Calculate(ctx, approval.TotalAmountCents)
	if err != nil {
		return nil, err
	}

	var transfer *string
	if transferID != "" {
		transfer = &transferID
	}

	released, err := s.store.Release(ctx, offerID, amounts, transfer, s.now())
	if err != nil {
		return nil, err
	}

	metrics.EscrowReleasesTotal.Inc()

	if s.offers != nil {
		if err := s.offers.SetEnhancedStatus(ctx, offerID, models.StageCompleted); err != nil {
			slog.Error("Failed to complete offer after release",
				slog.String("offer_id", offerID.String()),
				slog.Any("error", err))
		}
	}

	s.push(released, websocket.NewEvent(websocket.EventFundsReleased, offerID, stateOf(released)))
	s.notifyRelease(ctx, released)

	slog.Info("Escrow funds released",
		slog.String("offer_id", offerID.String()),
		slog.Int64("seller_amount_cents", released.SellerAmountCents))
	return released, nil
}

// MarkStalled помечает сделки с истёкшим сроком подтверждения и уведомляет администраторов
func (s *Service) MarkStalled(ctx context.Context) (int, error) {
	stalled, err := s.store.MarkStalled(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to mark stalled escrows: %w", err)
	}
	if s.alerts != nil {
		for i := range stalled {
			s.alerts.EscrowStalled(ctx, &stalled[i])
		}
	}
	return len(stalled), nil
}

func (s *Service) push(approval *models.EscrowApproval, event websocket.Event) {
	if s.pusher == nil {
		return
	}
	s.pusher.SendToUser(approval.BuyerID.String(), event)
	s.pusher.SendToUser(approval.SellerID.String(), event)
}

func (s *Service) notifyRelease(ctx context.Context, approval *models.EscrowApproval) {
	if s.notifier == nil {
		return
	}
	payload := map[string]any{
		"offer_id":            approval.OfferID.String(),
		"seller_amount_cents": approval.SellerAmountCents,
	}
	if _, err := s.notifier.Enqueue(ctx, approval.SellerID, "funds_released", "Your payout has been released", payload); err != nil {
		slog.Error("Failed to enqueue release email", slog.Any("error", err))
	}
}

// stateView полезная нагрузка событий эскроу
type stateView struct {
	State    string                 `json:"state"`
	Approval *models.EscrowApproval `json:"approval"`
}

func stateOf(a *models.EscrowApproval) stateView {
	return stateView{State: State(a), Approval: a}
}
