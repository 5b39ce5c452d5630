package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/rajivgeraev/artbazaar-api/internal/config"
	"github.com/rajivgeraev/artbazaar-api/internal/metrics"
	"github.com/rajivgeraev/artbazaar-api/internal/models"
)

var ErrNoEvaluation = errors.New("no price evaluation for artwork")

// Store сопоставимые продажи и история оценок
type Store interface {
	ListSalesByArtist(ctx context.Context, artistName string, limit int) ([]models.MarketSale, error)
	InsertEvaluation(ctx context.Context, ev *models.PriceEvaluation) error
	// LatestEvaluation возвращает ErrNoEvaluation, если работу ещё не оценивали
	LatestEvaluation(ctx context.Context, artworkID uuid.UUID) (*models.PriceEvaluation, error)
	History(ctx context.Context, artworkID uuid.UUID, limit int) ([]models.PriceEvaluation, error)
}

// ArtworkSource каталог работ
type ArtworkSource interface {
	GetArtwork(ctx context.Context, id uuid.UUID) (*models.Artwork, error)
	ListActiveArtworkIDs(ctx context.Context) ([]uuid.UUID, error)
	UpdateArtworkPrice(ctx context.Context, id uuid.UUID, priceCents int64) error
}

// BatchResult итог пакетной оценки
type BatchResult struct {
	Total            int                           `json:"total"`
	Evaluated        int                           `json:"evaluated"`
	Failed           int                           `json:"failed"`
	ByRecommendation map[models.Recommendation]int `json:"by_recommendation"`
	Duration         time.Duration                 `json:"duration"`
}

// Evaluator оценивает цену работы по сопоставимым продажам художника
type Evaluator struct {
	store    Store
	artworks ArtworkSource
	cfg      config.PricingConfig
	cache    *lru.Cache
	now      func() time.Time
}

// NewEvaluator создаёт оценщик с LRU-кэшем последних оценок
func NewEvaluator(store Store, artworks ArtworkSource, cfg config.PricingConfig) *Evaluator {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = config.DefaultPricingConfig().CacheSize
	}
	cache, _ := lru.New(cfg.CacheSize)
	return &Evaluator{
		store:    store,
		artworks: artworks,
		cfg:      cfg,
		cache:    cache,
		now:      time.Now,
	}
}

// EvaluateArtworkPrice оценивает работу и сохраняет новую запись в истории
func (e *Evaluator) EvaluateArtworkPrice(ctx context.Context, artworkID uuid.UUID) (*models.PriceEvaluation, error) {
	start := time.Now()
	defer func() {
		metrics.PriceEvaluationDuration.Observe(time.Since(start).Seconds())
	}()

	artwork, err := e.artworks.GetArtwork(ctx, artworkID)
	if err != nil {
		return nil, err
	}

	// Без имени художника сопоставимых продаж нет: оценка будет insufficient_data
	var sales []models.MarketSale
	if strings.TrimSpace(artwork.ArtistName) != "" {
		sales, err = e.store.ListSalesByArtist(ctx, artwork.ArtistName, e.cfg.ComparableLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load market sales: %w", err)
		}
	}

	ev := Evaluate(artwork, sales, e.cfg, e.now())
	if err := e.store.InsertEvaluation(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to save price evaluation: %w", err)
	}

	e.cache.Add(artworkID, ev)
	metrics.PriceEvaluationsTotal.WithLabelValues(string(ev.Recommendation)).Inc()

	slog.Debug("Artwork price evaluated",
		slog.String("artwork_id", artworkID.String()),
		slog.String("recommendation", string(ev.Recommendation)),
		slog.Int("comparables", ev.ComparableSalesCount))
	return ev, nil
}

// Latest возвращает последнюю оценку: из кэша, из базы или свежую
func (e *Evaluator) Latest(ctx context.Context, artworkID uuid.UUID) (*models.PriceEvaluation, error) {
	if v, ok := e.cache.Get(artworkID); ok {
		return v.(*models.PriceEvaluation), nil
	}

	ev, err := e.store.LatestEvaluation(ctx, artworkID)
	if err == nil {
		e.cache.Add(artworkID, ev)
		return ev, nil
	}
	if !errors.Is(err, ErrNoEvaluation) {
		return nil, err
	}
	return e.EvaluateArtworkPrice(ctx, artworkID)
}

// History возвращает историю оценок работы, новые первыми
func (e *Evaluator) History(ctx context.Context, artworkID uuid.UUID, limit int) ([]models.PriceEvaluation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return e.store.History(ctx, artworkID, limit)
}

// EvaluateAll оценивает все работы в продаже. Параллельность ограничена семафором,
// частота запусков ограничена token bucket; ошибки по отдельным работам не прерывают пакет.
func (e *Evaluator) EvaluateAll(ctx context.Context) (*BatchResult, error) {
	started := time.Now()

	ids, err := e.artworks.ListActiveArtworkIDs(ctx)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		Total:            len(ids),
		ByRecommendation: make(map[models.Recommendation]int),
	}

	workers := e.cfg.BatchWorkers
	if workers <= 0 {
		workers = 1
	}
	limit := rate.Inf
	if e.cfg.BatchInterval > 0 {
		limit = rate.Every(e.cfg.BatchInterval)
	}
	limiter := rate.NewLimiter(limit, 1)
	sem := semaphore.NewWeighted(int64(workers))

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for _, id := range ids {
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}

		id := id
		g.Go(func() error {
			defer sem.Release(1)

			ev, err := e.EvaluateArtworkPrice(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				slog.Warn("Failed to evaluate artwork price",
					slog.String("artwork_id", id.String()),
					slog.Any("error", err))
				return nil
			}
			result.Evaluated++
			result.ByRecommendation[ev.Recommendation]++
			return nil
		})
	}

	_ = g.Wait()
	result.Duration = time.Since(started)

	slog.Info("Batch price evaluation finished",
		slog.Int("total", result.Total),
		slog.Int("evaluated", result.Evaluated),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", result.Duration))

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// Evaluate чистая эвристика оценки по уже загруженным продажам
func Evaluate(artwork *models.Artwork, sales []models.MarketSale, cfg config.PricingConfig, now time.Time) *models.PriceEvaluation {
	comparables := filterComparables(artwork, sales, cfg, now)
	n := len(comparables)

	ev := &models.PriceEvaluation{
		ID:                   uuid.New(),
		ArtworkID:            artwork.ID,
		CurrentPriceCents:    artwork.PriceCents,
		ComparableSalesCount: n,
		EvaluatedAt:          now,
	}

	minComparables := max(cfg.MinComparables, 1)
	currency := artwork.Currency
	if currency == "" {
		currency = "DKK"
	}

	var notes []string
	if n > 0 {
		prices := make([]int64, n)
		for i, s := range comparables {
			prices[i] = s.SalePriceCents
		}
		sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })

		avg, median := meanCents(prices), medianCents(prices)
		lo, hi := prices[0], prices[n-1]
		ev.MarketAvgPriceCents = &avg
		ev.MarketMedianCents = &median
		ev.MarketMinPriceCents = &lo
		ev.MarketMaxPriceCents = &hi

		if median > 0 {
			dev := float64(artwork.PriceCents-median) / float64(median) * 100
			dev = math.Round(dev*100) / 100
			ev.PriceDeviationPercent = &dev
		}

		notes = append(notes,
			fmt.Sprintf("Found %d comparable sales for %s within the last %d years.", n, artwork.ArtistName, cfg.RecencyYears),
			fmt.Sprintf("Market median is %s, range %s to %s.", formatCents(median, currency), formatCents(lo, currency), formatCents(hi, currency)))
	}

	switch {
	case n < minComparables:
		ev.Recommendation = models.RecommendationInsufficientData
		ev.ConfidenceScore = math.Min(0.2*float64(n)/float64(minComparables), 0.2)
		notes = append(notes, fmt.Sprintf("Only %d comparable sales found; at least %d are needed for a reliable evaluation.", n, minComparables))
	default:
		ev.ConfidenceScore = math.Min(0.5+(float64(n)/20)*0.45, 0.95)
		dev := 0.0
		if ev.PriceDeviationPercent != nil {
			dev = *ev.PriceDeviationPercent
		}
		switch {
		case dev < -cfg.UnderpricedPercent:
			ev.Recommendation = models.RecommendationUnderpriced
			notes = append(notes, fmt.Sprintf("Listing is %.1f%% below the market median.", -dev))
		case dev > cfg.OverpricedPercent:
			ev.Recommendation = models.RecommendationOverpriced
			notes = append(notes, fmt.Sprintf("Listing is %.1f%% above the market median.", dev))
		default:
			ev.Recommendation = models.RecommendationFairlyPriced
			notes = append(notes, fmt.Sprintf("Listing is within the fair range of the market median (%+.1f%%).", dev))
		}
	}

	ev.ConfidenceScore = math.Round(ev.ConfidenceScore*10000) / 10000
	ev.EvaluationNotes = strings.Join(notes, " ")
	return ev
}

// filterComparables оставляет свежие продажи близкой техники и размера
func filterComparables(artwork *models.Artwork, sales []models.MarketSale, cfg config.PricingConfig, now time.Time) []models.MarketSale {
	cutoff := now.AddDate(-cfg.RecencyYears, 0, 0)
	artMedium := strings.ToLower(strings.TrimSpace(artwork.Medium))
	artArea, artHasArea := area(artwork.WidthCM, artwork.HeightCM)

	out := make([]models.MarketSale, 0, len(sales))
	for _, s := range sales {
		if s.SalePriceCents <= 0 {
			continue
		}
		if cfg.RecencyYears > 0 && s.SaleDate.Before(cutoff) {
			continue
		}
		if s.Medium != nil && artMedium != "" {
			saleMedium := strings.ToLower(strings.TrimSpace(*s.Medium))
			if saleMedium != "" && !strings.Contains(saleMedium, artMedium) && !strings.Contains(artMedium, saleMedium) {
				continue
			}
		}
		if saleArea, ok := area(s.WidthCM, s.HeightCM); ok && artHasArea && cfg.MaxAreaRatio > 0 {
			ratio := math.Max(saleArea, artArea) / math.Min(saleArea, artArea)
			if ratio > cfg.MaxAreaRatio {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

func area(w, h *float64) (float64, bool) {
	if w == nil || h == nil || *w <= 0 || *h <= 0 {
		return 0, false
	}
	return *w * *h, true
}

func meanCents(sorted []int64) int64 {
	var sum int64
	for _, p := range sorted {
		sum += p
	}
	return int64(math.Round(float64(sum) / float64(len(sorted))))
}

func medianCents(sorted []int64) int64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return int64(math.Round(float64(sorted[n/2-1]+sorted[n/2]) / 2))
}

func formatCents(cents int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(cents)/100, currency)
}
