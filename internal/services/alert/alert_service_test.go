package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/artbazaar-api/internal/models"
	"github.com/rajivgeraev/artbazaar-api/internal/websocket"
)

type memoryStore struct {
	alerts    []*models.AdminAlert
	insertErr error
	lastLimit int
}

func (m *memoryStore) Insert(_ context.Context, a *models.AdminAlert) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *memoryStore) List(_ context.Context, f Filter) ([]models.AdminAlert, error) {
	m.lastLimit = f.Limit
	var out []models.AdminAlert
	for _, a := range m.alerts {
		if f.UnreadOnly && a.IsRead {
			continue
		}
		if f.UnresolvedOnly && a.Resolved {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *memoryStore) find(id uuid.UUID) (*models.AdminAlert, error) {
	for _, a := range m.alerts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, ErrAlertNotFound
}

func (m *memoryStore) MarkRead(_ context.Context, id uuid.UUID) (*models.AdminAlert, error) {
	a, err := m.find(id)
	if err != nil {
		return nil, err
	}
	a.IsRead = true
	return a, nil
}

func (m *memoryStore) Resolve(_ context.Context, id uuid.UUID, at time.Time) (*models.AdminAlert, error) {
	a, err := m.find(id)
	if err != nil {
		return nil, err
	}
	a.Resolved, a.IsRead, a.ResolvedAt = true, true, &at
	return a, nil
}

type recordingPusher struct {
	events []websocket.Event
}

func (p *recordingPusher) SendToAdmins(e websocket.Event) {
	p.events = append(p.events, e)
}

func offerAt(list, offered int64) *models.Offer {
	return &models.Offer{
		ID:                uuid.New(),
		ArtworkID:         uuid.New(),
		BuyerID:           uuid.New(),
		ListPriceCents:    list,
		OfferedPriceCents: offered,
	}
}

func TestPriceDeviationThresholds(t *testing.T) {
	tests := []struct {
		name     string
		offered  int64
		fired    bool
		severity models.AlertSeverity
	}{
		{name: "close to list price", offered: 90_000, fired: false},
		{name: "just under warning", offered: 50_001, fired: false},
		{name: "half of list price", offered: 50_000, fired: true, severity: models.SeverityWarning},
		{name: "far below", offered: 20_000, fired: true, severity: models.SeverityCritical},
		{name: "far above", offered: 180_000, fired: true, severity: models.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memoryStore{}
			svc := NewService(store, nil)

			fired := svc.PriceDeviation(context.Background(), offerAt(100_000, tt.offered))
			assert.Equal(t, tt.fired, fired)
			if !tt.fired {
				assert.Empty(t, store.alerts)
				return
			}
			require.Len(t, store.alerts, 1)
			assert.Equal(t, models.AlertPriceDeviation, store.alerts[0].AlertType)
			assert.Equal(t, tt.severity, store.alerts[0].Severity)
			assert.NotNil(t, store.alerts[0].OfferID)
		})
	}
}

func TestPriceDeviationIgnoresMissingListPrice(t *testing.T) {
	store := &memoryStore{}
	assert.False(t, NewService(store, nil).PriceDeviation(context.Background(), offerAt(0, 100)))
	assert.Empty(t, store.alerts)
}

func TestEmitFillsDefaultsAndPushes(t *testing.T) {
	store := &memoryStore{}
	pusher := &recordingPusher{}
	svc := NewService(store, pusher)

	alert, err := svc.Emit(context.Background(), &models.AdminAlert{
		AlertType: models.AlertPaymentFailed,
		Title:     "t",
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, alert.ID)
	assert.Equal(t, models.SeverityInfo, alert.Severity)
	assert.NotNil(t, alert.Metadata)
	assert.False(t, alert.CreatedAt.IsZero())
	require.Len(t, pusher.events, 1)
	assert.Equal(t, websocket.EventAlertCreated, pusher.events[0].Type)
}

func TestDetectorsSwallowStoreErrors(t *testing.T) {
	store := &memoryStore{insertErr: errors.New("db down")}
	svc := NewService(store, nil)

	assert.NotPanics(t, func() {
		svc.PaymentFailed(context.Background(), offerAt(100, 100), "card declined")
		svc.SpendThreshold(context.Background(), "p1", decimal.NewFromInt(90), decimal.NewFromInt(100), 90)
	})
}

func TestSpendThresholdSeverity(t *testing.T) {
	store := &memoryStore{}
	svc := NewService(store, nil)

	svc.SpendThreshold(context.Background(), "p1", decimal.NewFromInt(85), decimal.NewFromInt(100), 85)
	svc.SpendThreshold(context.Background(), "p1", decimal.NewFromInt(101), decimal.NewFromInt(100), 101)

	require.Len(t, store.alerts, 2)
	assert.Equal(t, models.SeverityWarning, store.alerts[0].Severity)
	assert.Equal(t, models.SeverityCritical, store.alerts[1].Severity)
}

func TestResolveMarksReadAndClampsListLimit(t *testing.T) {
	store := &memoryStore{}
	svc := NewService(store, nil)

	alert, err := svc.Emit(context.Background(), &models.AdminAlert{AlertType: models.AlertEscrowStalled})
	require.NoError(t, err)

	resolved, err := svc.Resolve(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.True(t, resolved.IsRead)
	require.NotNil(t, resolved.ResolvedAt)

	open, err := svc.List(context.Background(), Filter{UnresolvedOnly: true, Limit: 10_000})
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Equal(t, 50, store.lastLimit)

	_, err = svc.MarkRead(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAlertNotFound)
}
