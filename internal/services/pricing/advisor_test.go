package pricing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/artbazaar-api/internal/config"
	"github.com/rajivgeraev/artbazaar-api/internal/middleware"
	"github.com/rajivgeraev/artbazaar-api/internal/models"
	"github.com/rajivgeraev/artbazaar-api/internal/utils"
)

func newAdvisor(store *memoryStore, cat *catalog) (*Evaluator, *Advisor) {
	e := NewEvaluator(store, cat, config.DefaultPricingConfig())
	e.now = func() time.Time { return evalTime }
	return e, NewAdvisor(e, cat)
}

func TestRoundToStep(t *testing.T) {
	assert.Equal(t, int64(1_230_000), roundToStep(1_234_567, suggestionStepCents))
	assert.Equal(t, int64(1_240_000), roundToStep(1_235_000, suggestionStepCents))
	assert.Equal(t, int64(0), roundToStep(4_999, suggestionStepCents))
}

func TestAdviceForRecommendations(t *testing.T) {
	median := int64(1_234_567)
	ev := &models.PriceEvaluation{
		ArtworkID:            uuid.New(),
		CurrentPriceCents:    900_000,
		MarketMedianCents:    &median,
		ComparableSalesCount: 4,
		Recommendation:       models.RecommendationUnderpriced,
	}
	advice := adviceFor(ev)
	assert.Equal(t, int64(1_230_000), advice.SuggestedPriceCents)
	assert.Contains(t, advice.Rationale, "underpriced")

	ev.Recommendation = models.RecommendationFairlyPriced
	assert.Equal(t, int64(900_000), adviceFor(ev).SuggestedPriceCents)

	ev.Recommendation = models.RecommendationInsufficientData
	assert.Equal(t, int64(900_000), adviceFor(ev).SuggestedPriceCents)
}

func TestApplySuggestion(t *testing.T) {
	art := artwork(1_000_000)
	cat := newCatalog(art)
	store := &memoryStore{sales: sales(1_100_000, 1_250_000, 1_300_000, 1_400_000, 1_600_000)}
	e, advisor := newAdvisor(store, cat)
	ctx := context.Background()

	_, err := advisor.ApplySuggestion(ctx, art.ID, uuid.New())
	assert.ErrorIs(t, err, ErrForbidden)

	advice, err := advisor.ApplySuggestion(ctx, art.ID, art.ArtistID)
	require.NoError(t, err)
	assert.Equal(t, models.RecommendationUnderpriced, advice.Recommendation)
	assert.Equal(t, int64(1_300_000), advice.SuggestedPriceCents)
	assert.Equal(t, int64(1_300_000), cat.artworks[art.ID].PriceCents)

	_, cached := e.cache.Get(art.ID)
	assert.False(t, cached, "stale evaluation dropped after price change")
}

func TestApplySuggestionByGalleryOwner(t *testing.T) {
	art := artwork(1_600_000)
	owner := uuid.New()
	art.GalleryOwnerID = &owner
	cat := newCatalog(art)
	_, advisor := newAdvisor(&memoryStore{sales: sales(1_000_000, 1_000_000, 1_000_000)}, cat)

	advice, err := advisor.ApplySuggestion(context.Background(), art.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, models.RecommendationOverpriced, advice.Recommendation)
	assert.Equal(t, int64(1_000_000), cat.artworks[art.ID].PriceCents)
}

func TestApplySuggestionWithoutMarketData(t *testing.T) {
	art := artwork(1_000_000)
	cat := newCatalog(art)
	_, advisor := newAdvisor(&memoryStore{sales: sales(900_000)}, cat)

	_, err := advisor.ApplySuggestion(context.Background(), art.ID, art.ArtistID)
	assert.ErrorIs(t, err, ErrNoSuggestion)
	assert.Equal(t, int64(1_000_000), cat.artworks[art.ID].PriceCents)
}

func TestPricingHandlers(t *testing.T) {
	art := artwork(1_000_000)
	cat := newCatalog(art)
	e, advisor := newAdvisor(&memoryStore{sales: sales(1_100_000, 1_250_000, 1_300_000, 1_400_000, 1_600_000)}, cat)

	jwtService := utils.NewJWTService("test-secret")
	app := fiber.New()
	NewHandler(e, advisor).SetupRoutes(app, middleware.AuthMiddleware(jwtService))

	token := func(userID uuid.UUID, role string) string {
		tok, err := jwtService.GenerateToken(userID.String(), role)
		require.NoError(t, err)
		return "Bearer " + tok
	}
	do := func(method, path, auth, body string) *http.Response {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Authorization", auth)
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	artist := token(art.ArtistID, "")
	body := `{"artwork_id":"` + art.ID.String() + `"}`

	resp := do(http.MethodPost, "/api/pricing/evaluate", artist, body)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var evaluated struct {
		Evaluation models.PriceEvaluation `json:"evaluation"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&evaluated))
	assert.Equal(t, models.RecommendationUnderpriced, evaluated.Evaluation.Recommendation)

	resp = do(http.MethodPost, "/api/pricing/evaluate", artist, `{}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = do(http.MethodPost, "/api/pricing/evaluate", artist, `{"artwork_id":"`+uuid.NewString()+`"}`)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = do(http.MethodPost, "/api/pricing/evaluate-all", artist, "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = do(http.MethodPost, "/api/gallery/apply-price-suggestion", token(uuid.New(), ""), body)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = do(http.MethodPost, "/api/gallery/apply-price-suggestion", artist, body)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var applied struct {
		PriceCents int64 `json:"price_cents"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&applied))
	assert.Equal(t, int64(1_300_000), applied.PriceCents)

	resp = do(http.MethodGet, "/api/pricing/history/"+art.ID.String()+"?limit=5", artist, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var history struct {
		Evaluations []models.PriceEvaluation `json:"evaluations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	assert.Len(t, history.Evaluations, 1)
}
