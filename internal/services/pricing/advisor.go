package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rajivgeraev/artbazaar-api/internal/models"
)

// Шаг округления рекомендованной цены: 100 крон в центах
const suggestionStepCents = 10_000

var (
	ErrNoSuggestion = errors.New("not enough market data to suggest a price")
	ErrForbidden    = errors.New("only the artist or gallery owner can change the price")
)

// Advice рекомендация по цене работы
type Advice struct {
	ArtworkID           uuid.UUID               `json:"artwork_id"`
	CurrentPriceCents   int64                   `json:"current_price_cents"`
	SuggestedPriceCents int64                   `json:"suggested_price_cents"`
	Recommendation      models.Recommendation   `json:"recommendation"`
	ConfidenceScore     float64                 `json:"confidence_score"`
	Rationale           string                  `json:"rationale"`
	Evaluation          *models.PriceEvaluation `json:"evaluation"`
}

// Advisor превращает оценку в конкретную цену
type Advisor struct {
	evaluator *Evaluator
	artworks  ArtworkSource
}

// NewAdvisor создаёт Advisor
func NewAdvisor(evaluator *Evaluator, artworks ArtworkSource) *Advisor {
	return &Advisor{evaluator: evaluator, artworks: artworks}
}

// Advise возвращает рекомендацию по последней оценке работы
func (a *Advisor) Advise(ctx context.Context, artworkID uuid.UUID) (*Advice, error) {
	ev, err := a.evaluator.Latest(ctx, artworkID)
	if err != nil {
		return nil, err
	}
	return adviceFor(ev), nil
}

func adviceFor(ev *models.PriceEvaluation) *Advice {
	advice := &Advice{
		ArtworkID:           ev.ArtworkID,
		CurrentPriceCents:   ev.CurrentPriceCents,
		SuggestedPriceCents: ev.CurrentPriceCents,
		Recommendation:      ev.Recommendation,
		ConfidenceScore:     ev.ConfidenceScore,
		Evaluation:          ev,
	}

	switch ev.Recommendation {
	case models.RecommendationUnderpriced, models.RecommendationOverpriced:
		if ev.MarketMedianCents != nil {
			advice.SuggestedPriceCents = roundToStep(*ev.MarketMedianCents, suggestionStepCents)
		}
		advice.Rationale = fmt.Sprintf("The listing looks %s against %d comparable sales; moving it to the market median is suggested.",
			ev.Recommendation, ev.ComparableSalesCount)
	case models.RecommendationFairlyPriced:
		advice.Rationale = "The listing is in line with comparable sales; no change is suggested."
	default:
		advice.Rationale = "There are too few comparable sales to suggest a price."
	}
	return advice
}

func roundToStep(cents, step int64) int64 {
	return (cents + step/2) / step * step
}

// ApplySuggestion выставляет рекомендованную цену; доступно художнику и владельцу галереи
func (a *Advisor) ApplySuggestion(ctx context.Context, artworkID, callerID uuid.UUID) (*Advice, error) {
	artwork, err := a.artworks.GetArtwork(ctx, artworkID)
	if err != nil {
		return nil, err
	}
	if !artwork.CanManagePrice(callerID) {
		return nil, ErrForbidden
	}

	advice, err := a.Advise(ctx, artworkID)
	if err != nil {
		return nil, err
	}
	if advice.Recommendation == models.RecommendationInsufficientData {
		return nil, ErrNoSuggestion
	}

	if advice.SuggestedPriceCents != artwork.PriceCents {
		if err := a.artworks.UpdateArtworkPrice(ctx, artworkID, advice.SuggestedPriceCents); err != nil {
			return nil, err
		}
		a.evaluator.cache.Remove(artworkID)

		slog.Info("Applied price suggestion",
			slog.String("artwork_id", artworkID.String()),
			slog.Int64("old_price_cents", artwork.PriceCents),
			slog.Int64("new_price_cents", advice.SuggestedPriceCents))
	}
	return advice, nil
}
