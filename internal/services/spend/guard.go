package spend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rajivgeraev/artbazaar-api/internal/metrics"
	"github.com/rajivgeraev/artbazaar-api/internal/models"
)

// Причины отказа
const (
	ReasonDailyCap      = "Daily AI spend cap exceeded"
	ReasonWeeklyCap     = "Weekly AI spend cap exceeded"
	ReasonMonthlyBudget = "Monthly AI budget exceeded"
)

var (
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrMissingProject = errors.New("project_id is required")
)

var hundred = decimal.NewFromInt(100)

// Store журнал расходов на AI
type Store interface {
	Insert(ctx context.Context, entry *models.AISpendLog) error
	// SumSince сумма расходов с момента since; пустой projectID означает все проекты
	SumSince(ctx context.Context, projectID string, since time.Time) (decimal.Decimal, error)
	ListSince(ctx context.Context, projectID string, since time.Time) ([]models.AISpendLog, error)
	// GetAllocation возвращает nil без ошибки, если у проекта нет своего бюджета
	GetAllocation(ctx context.Context, projectID string) (*models.ProjectAllocation, error)
}

// AlertEmitter уведомления администраторов о расходах
type AlertEmitter interface {
	SpendThreshold(ctx context.Context, projectID string, spent, limit decimal.Decimal, percentUsed float64)
	SpendAnomaly(ctx context.Context, projectID, kind, description string)
}

// Decision результат проверки перед расходом
type Decision struct {
	Allowed        bool            `json:"allowed"`
	Reason         string          `json:"reason,omitempty"`
	CurrentSpend   decimal.Decimal `json:"current_spend"`
	Limit          decimal.Decimal `json:"limit"`
	PercentageUsed float64         `json:"percentage_used"`
}

// Summary текущие суммы расходов по периодам
type Summary struct {
	ProjectID     string          `json:"project_id,omitempty"`
	Daily         decimal.Decimal `json:"daily"`
	Weekly        decimal.Decimal `json:"weekly"`
	Monthly       decimal.Decimal `json:"monthly"`
	MonthlyBudget decimal.Decimal `json:"monthly_budget"`
}

// Guard проверяет лимиты расходов на AI
type Guard struct {
	store  Store
	alerts AlertEmitter
	now    func() time.Time
}

// NewGuard создаёт Guard; alerts может быть nil
func NewGuard(store Store, alerts AlertEmitter) *Guard {
	return &Guard{store: store, alerts: alerts, now: time.Now}
}

// Начала периодов в UTC: сутки, неделя с понедельника, месяц с первого числа
func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func weekStart(t time.Time) time.Time {
	d := dayStart(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func percent(part, whole decimal.Decimal) float64 {
	if !whole.IsPositive() {
		return 0
	}
	return part.Div(whole).Mul(hundred).InexactFloat64()
}

// CheckAllowed проверяет дневной, недельный и месячный лимиты по порядку
// и останавливается на первом превышении. Дневной и недельный лимиты общие
// для всех проектов, месячный считается по проекту.
func (g *Guard) CheckAllowed(ctx context.Context, settings models.FounderSettings, amount decimal.Decimal, projectID string) (Decision, error) {
	if amount.IsNegative() {
		return Decision{}, ErrInvalidAmount
	}

	now := g.now()

	daily, err := g.store.SumSince(ctx, "", dayStart(now))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to sum daily spend: %w", err)
	}
	if exceeds(daily, amount, settings.DailyCap) {
		return g.deny(ReasonDailyCap, daily, settings.DailyCap), nil
	}

	weekly, err := g.store.SumSince(ctx, "", weekStart(now))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to sum weekly spend: %w", err)
	}
	if exceeds(weekly, amount, settings.WeeklyCap) {
		return g.deny(ReasonWeeklyCap, weekly, settings.WeeklyCap), nil
	}

	monthly, err := g.store.SumSince(ctx, projectID, monthStart(now))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to sum monthly spend: %w", err)
	}
	budget, err := g.monthlyBudget(ctx, settings, projectID)
	if err != nil {
		return Decision{}, err
	}

	if settings.HardLimitEnabled {
		limit := budget.Mul(decimal.NewFromInt(1).Add(settings.BufferPercent.Div(hundred)))
		if exceeds(monthly, amount, limit) {
			return g.deny(ReasonMonthlyBudget, monthly, limit), nil
		}
	}

	after := monthly.Add(amount)
	decision := Decision{
		Allowed:        true,
		CurrentSpend:   monthly,
		Limit:          budget,
		PercentageUsed: percent(after, budget),
	}
	metrics.SpendDecisionsTotal.WithLabelValues("allowed").Inc()

	threshold := settings.AlertThresholdPercent.InexactFloat64()
	if g.alerts != nil && threshold > 0 && budget.IsPositive() &&
		percent(monthly, budget) < threshold && decision.PercentageUsed >= threshold {
		g.alerts.SpendThreshold(ctx, projectID, after, budget, decision.PercentageUsed)
	}

	return decision, nil
}

// exceeds сообщает, превысит ли расход лимит; лимит <= 0 означает отсутствие лимита
func exceeds(current, amount, limit decimal.Decimal) bool {
	return limit.IsPositive() && current.Add(amount).GreaterThan(limit)
}

func (g *Guard) deny(reason string, current, limit decimal.Decimal) Decision {
	metrics.SpendDecisionsTotal.WithLabelValues("denied").Inc()
	slog.Warn("AI spend denied",
		slog.String("reason", reason),
		slog.String("current", current.String()),
		slog.String("limit", limit.String()))
	return Decision{
		Allowed:        false,
		Reason:         reason,
		CurrentSpend:   current,
		Limit:          limit,
		PercentageUsed: percent(current, limit),
	}
}

func (g *Guard) monthlyBudget(ctx context.Context, settings models.FounderSettings, projectID string) (decimal.Decimal, error) {
	if projectID == "" {
		return settings.MonthlyBudget, nil
	}
	alloc, err := g.store.GetAllocation(ctx, projectID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load project allocation: %w", err)
	}
	if alloc != nil {
		return alloc.MonthlyAllocation, nil
	}
	return settings.MonthlyBudget, nil
}

// LogSpend записывает фактический расход
func (g *Guard) LogSpend(ctx context.Context, entry *models.AISpendLog) error {
	if entry.ProjectID == "" {
		return ErrMissingProject
	}
	if !entry.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Reason == "" {
		entry.Reason = "unspecified"
	}
	entry.CreatedAt = g.now().UTC()

	if err := g.store.Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to log AI spend: %w", err)
	}
	return nil
}

// Summary возвращает расходы за текущие сутки, неделю и месяц
func (g *Guard) Summary(ctx context.Context, settings models.FounderSettings, projectID string) (*Summary, error) {
	now := g.now()
	s := &Summary{ProjectID: projectID}

	var err error
	if s.Daily, err = g.store.SumSince(ctx, "", dayStart(now)); err != nil {
		return nil, err
	}
	if s.Weekly, err = g.store.SumSince(ctx, "", weekStart(now)); err != nil {
		return nil, err
	}
	if s.Monthly, err = g.store.SumSince(ctx, projectID, monthStart(now)); err != nil {
		return nil, err
	}
	if s.MonthlyBudget, err = g.monthlyBudget(ctx, settings, projectID); err != nil {
		return nil, err
	}
	return s, nil
}
