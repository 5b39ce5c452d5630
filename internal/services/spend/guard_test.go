package spend

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/artbazaar-api/internal/models"
)

type memoryStore struct {
	logs        []models.AISpendLog
	allocations map[string]decimal.Decimal
}

func (m *memoryStore) Insert(_ context.Context, e *models.AISpendLog) error {
	m.logs = append(m.logs, *e)
	return nil
}

func (m *memoryStore) matching(projectID string, since time.Time) []models.AISpendLog {
	var out []models.AISpendLog
	for _, l := range m.logs {
		if l.CreatedAt.Before(since) {
			continue
		}
		if projectID != "" && l.ProjectID != projectID {
			continue
		}
		out = append(out, l)
	}
	return out
}

func (m *memoryStore) SumSince(_ context.Context, projectID string, since time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, l := range m.matching(projectID, since) {
		total = total.Add(l.Amount)
	}
	return total, nil
}

func (m *memoryStore) ListSince(_ context.Context, projectID string, since time.Time) ([]models.AISpendLog, error) {
	return m.matching(projectID, since), nil
}

func (m *memoryStore) GetAllocation(_ context.Context, projectID string) (*models.ProjectAllocation, error) {
	if v, ok := m.allocations[projectID]; ok {
		return &models.ProjectAllocation{ProjectID: projectID, MonthlyAllocation: v}, nil
	}
	return nil, nil
}

func (m *memoryStore) add(project string, amount string, at time.Time) {
	m.logs = append(m.logs, models.AISpendLog{
		ProjectID: project,
		Amount:    decimal.RequireFromString(amount),
		CreatedAt: at,
	})
}

type alertRecorder struct {
	thresholds []float64
	anomalies  []string
}

func (a *alertRecorder) SpendThreshold(_ context.Context, _ string, _, _ decimal.Decimal, pct float64) {
	a.thresholds = append(a.thresholds, pct)
}

func (a *alertRecorder) SpendAnomaly(_ context.Context, _ string, kind, _ string) {
	a.anomalies = append(a.anomalies, kind)
}

// среда, 15 мая 2024
var wednesday = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

func settings() models.FounderSettings {
	return models.FounderSettings{
		DailyCap:              decimal.NewFromInt(50),
		WeeklyCap:             decimal.NewFromInt(250),
		MonthlyBudget:         decimal.NewFromInt(800),
		BufferPercent:         decimal.NewFromInt(10),
		HardLimitEnabled:      true,
		AlertThresholdPercent: decimal.NewFromInt(80),
	}
}

func newGuard(store *memoryStore, alerts *alertRecorder) *Guard {
	g := NewGuard(store, nil)
	if alerts != nil {
		g.alerts = alerts
	}
	g.now = func() time.Time { return wednesday }
	return g
}

func TestPeriodStarts(t *testing.T) {
	assert.Equal(t, time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), dayStart(wednesday))
	assert.Equal(t, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), weekStart(wednesday))
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), monthStart(wednesday))

	sunday := time.Date(2024, 5, 19, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), weekStart(sunday))

	copenhagen := time.FixedZone("CEST", 2*60*60)
	earlyMonday := time.Date(2024, 5, 13, 1, 0, 0, 0, copenhagen)
	assert.Equal(t, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), weekStart(earlyMonday))
}

func TestDailyCapIsCheckedFirst(t *testing.T) {
	store := &memoryStore{}
	store.add("p1", "45", wednesday.Add(-time.Hour))

	s := settings()
	s.WeeklyCap = decimal.NewFromInt(10)
	s.MonthlyBudget = decimal.NewFromInt(10)

	d, err := newGuard(store, nil).CheckAllowed(context.Background(), s, decimal.NewFromInt(10), "p1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDailyCap, d.Reason)
	assert.True(t, d.Limit.Equal(decimal.NewFromInt(50)))
	assert.True(t, d.CurrentSpend.Equal(decimal.NewFromInt(45)))
	assert.InDelta(t, 90.0, d.PercentageUsed, 1e-9)
}

func TestDailyAndWeeklyCapsSpanAllProjects(t *testing.T) {
	store := &memoryStore{}
	for _, project := range []string{"a", "b", "c"} {
		store.add(project, "45", wednesday.Add(-time.Hour))
	}

	d, err := newGuard(store, nil).CheckAllowed(context.Background(), settings(), decimal.NewFromInt(4), "d")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDailyCap, d.Reason)
	assert.True(t, d.CurrentSpend.Equal(decimal.NewFromInt(135)))

	weekly := &memoryStore{}
	for _, project := range []string{"a", "b", "c"} {
		weekly.add(project, "80", wednesday.AddDate(0, 0, -1))
	}
	d, err = newGuard(weekly, nil).CheckAllowed(context.Background(), settings(), decimal.NewFromInt(20), "d")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonWeeklyCap, d.Reason)
}

func TestWeeklyCap(t *testing.T) {
	store := &memoryStore{}
	store.add("p1", "240", wednesday.AddDate(0, 0, -2))

	d, err := newGuard(store, nil).CheckAllowed(context.Background(), settings(), decimal.NewFromInt(20), "p1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonWeeklyCap, d.Reason)
}

func TestMonthlyBudgetRespectsBufferAndHardLimit(t *testing.T) {
	store := &memoryStore{}
	store.add("p1", "105", time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC))

	s := settings()
	s.MonthlyBudget = decimal.NewFromInt(100)

	d, err := newGuard(store, nil).CheckAllowed(context.Background(), s, decimal.NewFromInt(4), "p1")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "109 is within the 10% buffer")

	d, err = newGuard(store, nil).CheckAllowed(context.Background(), s, decimal.NewFromInt(10), "p1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonMonthlyBudget, d.Reason)
	assert.True(t, d.Limit.Equal(decimal.NewFromInt(110)))

	s.HardLimitEnabled = false
	d, err = newGuard(store, nil).CheckAllowed(context.Background(), s, decimal.NewFromInt(10), "p1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.InDelta(t, 115.0, d.PercentageUsed, 1e-9)
}

func TestProjectAllocationOverridesBudget(t *testing.T) {
	store := &memoryStore{allocations: map[string]decimal.Decimal{"vision": decimal.NewFromInt(20)}}
	store.add("vision", "20", time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC))
	store.add("other", "500", time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC))

	s := settings()
	s.BufferPercent = decimal.Zero

	d, err := newGuard(store, nil).CheckAllowed(context.Background(), s, decimal.NewFromInt(1), "vision")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonMonthlyBudget, d.Reason)

	d, err = newGuard(store, nil).CheckAllowed(context.Background(), s, decimal.NewFromInt(1), "other")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestZeroCapMeansNoCap(t *testing.T) {
	store := &memoryStore{}
	store.add("p1", "1000", wednesday.Add(-time.Minute))

	s := settings()
	s.DailyCap = decimal.Zero
	s.WeeklyCap = decimal.Zero
	s.HardLimitEnabled = false

	d, err := newGuard(store, nil).CheckAllowed(context.Background(), s, decimal.NewFromInt(100), "p1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestThresholdAlertFiresOnCrossing(t *testing.T) {
	store := &memoryStore{}
	alerts := &alertRecorder{}
	store.add("p1", "500", time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC))

	s := settings()
	s.DailyCap = decimal.Zero
	s.WeeklyCap = decimal.Zero
	g := newGuard(store, alerts)

	d, err := g.CheckAllowed(context.Background(), s, decimal.NewFromInt(50), "p1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.InDelta(t, 68.75, d.PercentageUsed, 1e-9)
	assert.Empty(t, alerts.thresholds)

	d, err = g.CheckAllowed(context.Background(), s, decimal.NewFromInt(160), "p1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	require.Len(t, alerts.thresholds, 1)
	assert.InDelta(t, 82.5, alerts.thresholds[0], 1e-9)

	store.add("p1", "160", wednesday)
	_, err = g.CheckAllowed(context.Background(), s, decimal.NewFromInt(10), "p1")
	require.NoError(t, err)
	assert.Len(t, alerts.thresholds, 1, "already above threshold")
}

func TestLogSpendValidation(t *testing.T) {
	store := &memoryStore{}
	g := newGuard(store, nil)
	ctx := context.Background()

	assert.ErrorIs(t, g.LogSpend(ctx, &models.AISpendLog{Amount: decimal.NewFromInt(1)}), ErrMissingProject)
	assert.ErrorIs(t, g.LogSpend(ctx, &models.AISpendLog{ProjectID: "p1"}), ErrInvalidAmount)

	entry := &models.AISpendLog{ProjectID: "p1", Amount: decimal.RequireFromString("0.0125")}
	require.NoError(t, g.LogSpend(ctx, entry))
	assert.Equal(t, "unspecified", entry.Reason)
	assert.Equal(t, wednesday, entry.CreatedAt)

	summary, err := g.Summary(ctx, settings(), "p1")
	require.NoError(t, err)
	assert.True(t, summary.Daily.Equal(decimal.RequireFromString("0.0125")))
	assert.True(t, summary.Monthly.Equal(summary.Daily))
	assert.True(t, summary.MonthlyBudget.Equal(decimal.NewFromInt(800)))
}
