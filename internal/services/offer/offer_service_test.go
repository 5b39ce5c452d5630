package offer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/artbazaar-api/internal/db"
	"github.com/rajivgeraev/artbazaar-api/internal/metrics"
	"github.com/rajivgeraev/artbazaar-api/internal/middleware"
	"github.com/rajivgeraev/artbazaar-api/internal/models"
	"github.com/rajivgeraev/artbazaar-api/internal/utils"
)

type memoryStore struct {
	mu     sync.Mutex
	offers map[uuid.UUID]*models.Offer
	// transitionErr имитирует параллельный переход, выигравший гонку
	transitionErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{offers: make(map[uuid.UUID]*models.Offer)}
}

func (m *memoryStore) Insert(_ context.Context, o *models.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.offers[o.ID] = &cp
	return nil
}

func (m *memoryStore) Get(_ context.Context, id uuid.UUID) (*models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, ErrOfferNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memoryStore) ListForUser(_ context.Context, userID uuid.UUID, role Role, status models.OfferStatus) ([]models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Offer
	for _, o := range m.offers {
		if status != "" && o.Status != status {
			continue
		}
		switch {
		case role == RoleBuyer && o.BuyerID == userID,
			role == RoleSeller && o.SellerID == userID,
			role == RoleAll && (o.BuyerID == userID || o.SellerID == userID):
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memoryStore) TransitionFromPending(_ context.Context, id uuid.UUID, t Transition) (*models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transitionErr != nil {
		return nil, m.transitionErr
	}
	o, ok := m.offers[id]
	if !ok {
		return nil, ErrOfferNotFound
	}
	if o.Status != models.OfferPending {
		return nil, ErrOfferNotPending
	}
	o.Status = t.Status
	o.EnhancedStatus = t.EnhancedStatus
	if t.AcceptedAt != nil {
		o.AcceptedAt = t.AcceptedAt
	}
	if t.RejectedAt != nil {
		o.RejectedAt = t.RejectedAt
	}
	if t.PaymentDeadline != nil {
		o.PaymentDeadline = t.PaymentDeadline
	}
	o.UpdatedAt = t.At
	cp := *o
	return &cp, nil
}

func (m *memoryStore) whenAccepted(id uuid.UUID, apply func(o *models.Offer)) (*models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, ErrOfferNotFound
	}
	if o.Status != models.OfferAccepted {
		return nil, ErrOfferNotAccepted
	}
	apply(o)
	cp := *o
	return &cp, nil
}

func (m *memoryStore) SetPaymentLink(_ context.Context, id uuid.UUID, linkID, linkURL string, _ time.Time) (*models.Offer, error) {
	return m.whenAccepted(id, func(o *models.Offer) {
		o.PaymentLinkID, o.PaymentLinkURL = &linkID, &linkURL
	})
}

func (m *memoryStore) SetPaymentIntent(_ context.Context, id uuid.UUID, intentID string, _ time.Time) (*models.Offer, error) {
	return m.whenAccepted(id, func(o *models.Offer) { o.StripePaymentIntentID = &intentID })
}

func (m *memoryStore) SetEnhancedStatus(_ context.Context, id uuid.UUID, status models.EnhancedStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return ErrOfferNotFound
	}
	o.EnhancedStatus = status
	return nil
}

func (m *memoryStore) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, o := range m.offers {
		if o.Status == models.OfferPending && o.ExpiresAt != nil && o.ExpiresAt.Before(now) {
			o.Status, o.EnhancedStatus = models.OfferExpired, models.StageExpired
			n++
		}
	}
	return n, nil
}

type artworkMap map[uuid.UUID]*models.Artwork

func (a artworkMap) GetArtwork(_ context.Context, id uuid.UUID) (*models.Artwork, error) {
	art, ok := a[id]
	if !ok {
		return nil, db.ErrArtworkNotFound
	}
	return art, nil
}

type escrowRecorder struct {
	opened []uuid.UUID
	err    error
}

func (e *escrowRecorder) CreateForOffer(_ context.Context, o *models.Offer) (*models.EscrowApproval, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.opened = append(e.opened, o.ID)
	return &models.EscrowApproval{OfferID: o.ID}, nil
}

type alertRecorder struct {
	deviations []uuid.UUID
	failures   []string
}

func (a *alertRecorder) PriceDeviation(_ context.Context, o *models.Offer) bool {
	a.deviations = append(a.deviations, o.ID)
	return true
}

func (a *alertRecorder) PaymentFailed(_ context.Context, _ *models.Offer, reason string) {
	a.failures = append(a.failures, reason)
}

type mailRecorder struct {
	templates []string
}

func (m *mailRecorder) Enqueue(_ context.Context, _ uuid.UUID, template, _ string, _ map[string]any) (*models.EmailNotification, error) {
	m.templates = append(m.templates, template)
	return &models.EmailNotification{}, nil
}

type fixture struct {
	service *Service
	store   *memoryStore
	escrow  *escrowRecorder
	alerts  *alertRecorder
	mail    *mailRecorder
	artwork *models.Artwork
	buyer   uuid.UUID
	clock   time.Time
}

func newFixture() *fixture {
	f := &fixture{
		store:  newMemoryStore(),
		escrow: &escrowRecorder{},
		alerts: &alertRecorder{},
		mail:   &mailRecorder{},
		buyer:  uuid.New(),
		clock:  time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC),
		artwork: &models.Artwork{
			ID:         uuid.New(),
			ArtistID:   uuid.New(),
			ArtistName: "Vilhelm Hammershøi",
			PriceCents: 1_000_000,
			Currency:   "DKK",
			Status:     "active",
		},
	}
	f.service = NewService(Deps{
		Store:    f.store,
		Artworks: artworkMap{f.artwork.ID: f.artwork},
		Escrow:   f.escrow,
		Alerts:   f.alerts,
		Notifier: f.mail,
	}, 0, 0)
	f.service.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) create(t *testing.T, cents int64) *models.Offer {
	t.Helper()
	o, err := f.service.CreateOffer(context.Background(), f.buyer, CreateInput{
		ArtworkID:         f.artwork.ID,
		OfferedPriceCents: cents,
		Message:           "  would you take this?  ",
	})
	require.NoError(t, err)
	return o
}

func TestCreateOffer(t *testing.T) {
	f := newFixture()
	o := f.create(t, 900_000)

	assert.Equal(t, models.OfferPending, o.Status)
	assert.Equal(t, models.StagePending, o.EnhancedStatus)
	assert.Equal(t, f.artwork.ArtistID, o.SellerID)
	assert.Equal(t, int64(1_000_000), o.ListPriceCents)
	require.NotNil(t, o.ExpiresAt)
	assert.Equal(t, f.clock.Add(DefaultOfferTTL), *o.ExpiresAt)
	require.NotNil(t, o.Message)
	assert.Equal(t, "would you take this?", *o.Message)
	assert.Equal(t, []uuid.UUID{o.ID}, f.alerts.deviations)
	assert.Equal(t, []string{"offer_received"}, f.mail.templates)
}

func TestCreateOfferValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.service.CreateOffer(ctx, f.buyer, CreateInput{ArtworkID: f.artwork.ID, OfferedPriceCents: 0})
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = f.service.CreateOffer(ctx, f.artwork.ArtistID, CreateInput{ArtworkID: f.artwork.ID, OfferedPriceCents: 10})
	assert.ErrorIs(t, err, ErrSelfOffer)

	_, err = f.service.CreateOffer(ctx, f.buyer, CreateInput{ArtworkID: uuid.New(), OfferedPriceCents: 10})
	assert.ErrorIs(t, err, db.ErrArtworkNotFound)

	f.artwork.Status = "sold"
	_, err = f.service.CreateOffer(ctx, f.buyer, CreateInput{ArtworkID: f.artwork.ID, OfferedPriceCents: 10})
	assert.ErrorIs(t, err, ErrArtworkUnavailable)
}

func TestGallerySellsOnBehalfOfArtist(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	f.artwork.GalleryOwnerID = &owner

	o := f.create(t, 500_000)
	assert.Equal(t, owner, o.SellerID)
}

func TestAcceptOffer(t *testing.T) {
	f := newFixture()
	o := f.create(t, 900_000)

	accepted, err := f.service.AcceptOffer(context.Background(), o.ID, o.SellerID)
	require.NoError(t, err)

	assert.Equal(t, models.OfferAccepted, accepted.Status)
	assert.Equal(t, models.StagePaymentPending, accepted.EnhancedStatus)
	require.NotNil(t, accepted.AcceptedAt)
	require.NotNil(t, accepted.PaymentDeadline)
	assert.Equal(t, f.clock.Add(DefaultPaymentWindow), *accepted.PaymentDeadline)
	assert.Equal(t, []uuid.UUID{o.ID}, f.escrow.opened)
	assert.Contains(t, f.mail.templates, "offer_accepted")
}

func TestSecondAcceptFails(t *testing.T) {
	f := newFixture()
	o := f.create(t, 900_000)

	_, err := f.service.AcceptOffer(context.Background(), o.ID, o.SellerID)
	require.NoError(t, err)

	_, err = f.service.AcceptOffer(context.Background(), o.ID, o.SellerID)
	assert.ErrorIs(t, err, ErrOfferNotPending)
	assert.Len(t, f.escrow.opened, 1)
}

func TestConcurrentAcceptOpensOneEscrow(t *testing.T) {
	f := newFixture()
	o := f.create(t, 900_000)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.AcceptOffer(context.Background(), o.ID, o.SellerID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrOfferNotPending)
	}
	assert.Equal(t, 1, ok)
}

func TestAcceptRules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	o := f.create(t, 900_000)

	_, err := f.service.AcceptOffer(ctx, uuid.New(), o.SellerID)
	assert.ErrorIs(t, err, ErrOfferNotFound)

	_, err = f.service.AcceptOffer(ctx, o.ID, f.buyer)
	assert.ErrorIs(t, err, ErrUnauthorized)

	f.clock = f.clock.Add(DefaultOfferTTL + time.Minute)
	_, err = f.service.AcceptOffer(ctx, o.ID, o.SellerID)
	assert.ErrorIs(t, err, ErrOfferNotPending)

	stored, err := f.store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferExpired, stored.Status)
	assert.Empty(t, f.escrow.opened)
}

func TestAcceptReportsEscrowFailure(t *testing.T) {
	f := newFixture()
	f.escrow.err = errors.New("db down")
	o := f.create(t, 900_000)

	_, err := f.service.AcceptOffer(context.Background(), o.ID, o.SellerID)
	assert.ErrorContains(t, err, "escrow")
}

func TestRejectAndWithdraw(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first := f.create(t, 900_000)
	rejected, err := f.service.RejectOffer(ctx, first.ID, first.SellerID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferRejected, rejected.Status)
	assert.NotNil(t, rejected.RejectedAt)

	second := f.create(t, 800_000)
	_, err = f.service.WithdrawOffer(ctx, second.ID, second.SellerID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	withdrawn, err := f.service.WithdrawOffer(ctx, second.ID, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, models.OfferExpired, withdrawn.Status)
	assert.Equal(t, models.StageWithdrawn, withdrawn.EnhancedStatus)

	_, err = f.service.RejectOffer(ctx, second.ID, second.SellerID)
	assert.ErrorIs(t, err, ErrOfferNotPending)
}

func TestPaymentReferencesRequireAcceptedOffer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	o := f.create(t, 900_000)

	_, err := f.service.UpdateOfferPaymentLink(ctx, o.ID, "plink_1", "https://pay.example/1")
	assert.ErrorIs(t, err, ErrOfferNotAccepted)

	_, err = f.service.AcceptOffer(ctx, o.ID, o.SellerID)
	require.NoError(t, err)

	updated, err := f.service.UpdateOfferPaymentLink(ctx, o.ID, "plink_1", "https://pay.example/1")
	require.NoError(t, err)
	assert.Equal(t, "plink_1", *updated.PaymentLinkID)

	updated, err = f.service.UpdateOfferPaymentIntent(ctx, o.ID, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", *updated.StripePaymentIntentID)

	_, err = f.service.UpdateOfferPaymentIntent(ctx, o.ID, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	failed, err := f.service.MarkPaymentFailed(ctx, o.ID, "card_declined")
	require.NoError(t, err)
	assert.Equal(t, models.StagePaymentFailed, failed.EnhancedStatus)
	assert.Equal(t, []string{"card_declined"}, f.alerts.failures)
}

func TestExpireStaleOffers(t *testing.T) {
	f := newFixture()
	f.create(t, 900_000)
	f.create(t, 950_000)

	n, err := f.service.ExpireStaleOffers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock = f.clock.Add(DefaultOfferTTL + time.Second)
	n, err = f.service.ExpireStaleOffers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestListOffersForUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.create(t, 900_000)

	asBuyer, err := f.service.ListOffersForUser(ctx, f.buyer, RoleBuyer, "")
	require.NoError(t, err)
	assert.Len(t, asBuyer, 1)

	asSeller, err := f.service.ListOffersForUser(ctx, f.buyer, RoleSeller, "")
	require.NoError(t, err)
	assert.Empty(t, asSeller)

	_, err = f.service.ListOffersForUser(ctx, f.buyer, "owner", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestHandlerStatusMapping(t *testing.T) {
	f := newFixture()
	jwtService := utils.NewJWTService("test-secret")

	app := fiber.New()
	NewHandler(f.service).SetupRoutes(app, middleware.AuthMiddleware(jwtService))

	bearer := func(id uuid.UUID) string {
		tok, err := jwtService.GenerateToken(id.String(), "")
		require.NoError(t, err)
		return "Bearer " + tok
	}
	do := func(method, path string, user uuid.UUID, body string) int {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, path, nil)
		} else {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Authorization", bearer(user))
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusBadRequest,
		do(http.MethodPost, "/api/offers", f.buyer, `{"artwork_id":"`+f.artwork.ID.String()+`","offered_price_cents":0}`))
	assert.Equal(t, fiber.StatusNotFound,
		do(http.MethodPost, "/api/offers", f.buyer, `{"artwork_id":"`+uuid.NewString()+`","offered_price_cents":100}`))
	assert.Equal(t, fiber.StatusCreated,
		do(http.MethodPost, "/api/offers", f.buyer, `{"artwork_id":"`+f.artwork.ID.String()+`","offered_price_cents":900000}`))

	offers, err := f.service.ListOffersForUser(context.Background(), f.buyer, RoleBuyer, "")
	require.NoError(t, err)
	require.Len(t, offers, 1)
	path := "/api/offers/" + offers[0].ID.String()

	assert.Equal(t, fiber.StatusNotFound, do(http.MethodPost, "/api/offers/"+uuid.NewString()+"/accept", f.artwork.ArtistID, ""))
	assert.Equal(t, fiber.StatusForbidden, do(http.MethodPost, path+"/accept", f.buyer, ""))
	assert.Equal(t, fiber.StatusOK, do(http.MethodPost, path+"/accept", f.artwork.ArtistID, ""))
	assert.Equal(t, fiber.StatusConflict, do(http.MethodPost, path+"/accept", f.artwork.ArtistID, ""))
	assert.Equal(t, fiber.StatusForbidden, do(http.MethodGet, path, uuid.New(), ""))
	assert.Equal(t, fiber.StatusOK, do(http.MethodGet, path, f.buyer, ""))
}

func TestPaymentReferencesRejectOutsiders(t *testing.T) {
	f := newFixture()
	o := f.create(t, 900_000)
	_, err := f.service.AcceptOffer(context.Background(), o.ID, f.artwork.ArtistID)
	require.NoError(t, err)

	jwtService := utils.NewJWTService("test-secret")
	app := fiber.New()
	NewHandler(f.service).SetupRoutes(app, middleware.AuthMiddleware(jwtService))

	put := func(path string, user uuid.UUID, body string) int {
		tok, err := jwtService.GenerateToken(user.String(), "")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	base := "/api/offers/" + o.ID.String()
	link := `{"payment_link_id":"evil","payment_link_url":"https://evil.example"}`
	intent := `{"payment_intent_id":"pi_evil"}`

	assert.Equal(t, fiber.StatusForbidden, put(base+"/payment-link", uuid.New(), link))
	assert.Equal(t, fiber.StatusForbidden, put(base+"/payment-link", f.buyer, link))
	assert.Equal(t, fiber.StatusForbidden, put(base+"/payment-intent", uuid.New(), intent))
	assert.Equal(t, fiber.StatusNotFound, put("/api/offers/"+uuid.NewString()+"/payment-intent", f.buyer, intent))

	stored, err := f.store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PaymentLinkURL)
	assert.Nil(t, stored.PaymentLinkID)
	assert.Nil(t, stored.StripePaymentIntentID)

	assert.Equal(t, fiber.StatusOK, put(base+"/payment-link", f.artwork.ArtistID,
		`{"payment_link_id":"plink_1","payment_link_url":"https://pay.example/1"}`))
	assert.Equal(t, fiber.StatusOK, put(base+"/payment-intent", f.buyer, `{"payment_intent_id":"pi_1"}`))

	stored, err = f.store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentLinkURL)
	assert.Equal(t, "https://pay.example/1", *stored.PaymentLinkURL)
	require.NotNil(t, stored.StripePaymentIntentID)
	assert.Equal(t, "pi_1", *stored.StripePaymentIntentID)
}

func TestExpiredTransitionCountedOnlyWhenApplied(t *testing.T) {
	f := newFixture()
	o := f.create(t, 900_000)
	f.clock = f.clock.Add(DefaultOfferTTL + time.Minute)

	expired := metrics.OfferTransitionsTotal.WithLabelValues(string(models.OfferExpired))
	before := testutil.ToFloat64(expired)

	f.store.transitionErr = ErrOfferNotPending
	_, err := f.service.AcceptOffer(context.Background(), o.ID, f.artwork.ArtistID)
	assert.ErrorIs(t, err, ErrOfferNotPending)
	assert.Equal(t, before, testutil.ToFloat64(expired))

	f.store.transitionErr = nil
	_, err = f.service.AcceptOffer(context.Background(), o.ID, f.artwork.ArtistID)
	assert.ErrorIs(t, err, ErrOfferNotPending)
	assert.Equal(t, before+1, testutil.ToFloat64(expired))
}
