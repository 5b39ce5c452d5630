package spend

import (
	"context"
	"fmt"
	"math"
	"time"
)

const (
	DefaultWindowDays   = 30
	DefaultForecastDays = 7
	MaxForecastDays     = 90

	trendBand = 0.10
)

// Направление тренда расходов
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Типы и уровни аномалий
const (
	AnomalySpike               = "spike"
	AnomalySustainedIncrease   = "sustained_increase"
	AnomalyUnusualPattern      = "unusual_pattern"
	SeverityHigh               = "high"
	SeverityMedium             = "medium"
	SeverityLow                = "low"
	spikeMultiplier            = 2.0
	sustainedMultiplier        = 1.5
	unusualVolatilityThreshold = 1.0
)

// Metrics сглаженные показатели расходов за окно
type Metrics struct {
	WindowDays       int     `json:"window_days"`
	Total            float64 `json:"total"`
	Today            float64 `json:"today"`
	DailyAverage     float64 `json:"daily_average"`
	WeeklyAverage    float64 `json:"weekly_average"`
	Trend            string  `json:"trend"`
	Volatility       float64 `json:"volatility"`
	ProjectedMonthly float64 `json:"projected_monthly"`
	DaysWithData     int     `json:"days_with_data"`
	Confidence       float64 `json:"confidence"`
}

// Anomaly обнаруженное отклонение в расходах
type Anomaly struct {
	Type        string  `json:"type"`
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
	Value       float64 `json:"value"`
	Threshold   float64 `json:"threshold"`
}

// ForecastPoint прогноз расхода на один день
type ForecastPoint struct {
	Date       time.Time `json:"date"`
	Predicted  float64   `json:"predicted"`
	Confidence float64   `json:"confidence"`
}

// Smoother считает сглаженные метрики, аномалии и прогноз по журналу расходов
type Smoother struct {
	store  Store
	alerts AlertEmitter
	now    func() time.Time
}

// NewSmoother создаёт Smoother; alerts может быть nil
func NewSmoother(store Store, alerts AlertEmitter) *Smoother {
	return &Smoother{store: store, alerts: alerts, now: time.Now}
}

// SmoothedMetrics группирует расходы по календарным дням UTC за windowDays,
// включая сегодняшний день
func (s *Smoother) SmoothedMetrics(ctx context.Context, projectID string, windowDays int) (*Metrics, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	now := s.now().UTC()
	today := dayStart(now)
	start := today.AddDate(0, 0, -(windowDays - 1))

	logs, err := s.store.ListSince(ctx, projectID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to load spend logs: %w", err)
	}

	buckets := make([]float64, windowDays)
	for _, l := range logs {
		idx := int(dayStart(l.CreatedAt).Sub(start).Hours() / 24)
		if idx < 0 || idx >= windowDays {
			continue
		}
		buckets[idx] += l.Amount.InexactFloat64()
	}

	return computeMetrics(buckets, now), nil
}

func computeMetrics(buckets []float64, now time.Time) *Metrics {
	n := len(buckets)
	m := &Metrics{WindowDays: n, Trend: TrendStable}
	if n == 0 {
		return m
	}

	for _, v := range buckets {
		m.Total += v
		if v > 0 {
			m.DaysWithData++
		}
	}
	m.Today = buckets[n-1]
	m.DailyAverage = m.Total / float64(n)
	m.WeeklyAverage = mean(buckets[max(0, n-7):])
	m.Trend = trend(buckets)

	if m.DailyAverage > 0 {
		var sq float64
		for _, v := range buckets {
			sq += (v - m.DailyAverage) * (v - m.DailyAverage)
		}
		m.Volatility = math.Sqrt(sq/float64(n)) / m.DailyAverage
	}

	m.ProjectedMonthly = m.DailyAverage * float64(daysInMonth(now))
	m.Confidence = math.Min(float64(m.DaysWithData)/float64(n), 1)
	return m
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// trend сравнивает средние первой и второй половины окна
func trend(buckets []float64) string {
	half := len(buckets) / 2
	if half == 0 {
		return TrendStable
	}
	first, second := mean(buckets[:half]), mean(buckets[half:])

	if first == 0 {
		if second > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}

	change := (second - first) / first
	switch {
	case change > trendBand:
		return TrendIncreasing
	case change < -trendBand:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DetectAnomalies применяет три независимых правила к сглаженным метрикам.
// Аномалии высокого уровня дополнительно уходят администраторам.
func (s *Smoother) DetectAnomalies(ctx context.Context, projectID string) ([]Anomaly, error) {
	m, err := s.SmoothedMetrics(ctx, projectID, DefaultWindowDays)
	if err != nil {
		return nil, err
	}

	anomalies := findAnomalies(m)
	if s.alerts != nil {
		for _, a := range anomalies {
			if a.Severity == SeverityHigh {
				s.alerts.SpendAnomaly(ctx, projectID, a.Type, a.Description)
			}
		}
	}
	return anomalies, nil
}

func findAnomalies(m *Metrics) []Anomaly {
	anomalies := []Anomaly{}

	if m.DailyAverage > 0 && m.Today > spikeMultiplier*m.DailyAverage {
		anomalies = append(anomalies, Anomaly{
			Type:        AnomalySpike,
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("Today's AI spend $%.2f is more than %.0fx the daily average $%.2f", m.Today, spikeMultiplier, m.DailyAverage),
			Value:       m.Today,
			Threshold:   spikeMultiplier * m.DailyAverage,
		})
	}

	if m.Trend == TrendIncreasing && m.WeeklyAverage > sustainedMultiplier*m.DailyAverage {
		anomalies = append(anomalies, Anomaly{
			Type:        AnomalySustainedIncrease,
			Severity:    SeverityMedium,
			Description: fmt.Sprintf("7-day average $%.2f is well above the daily average $%.2f", m.WeeklyAverage, m.DailyAverage),
			Value:       m.WeeklyAverage,
			Threshold:   sustainedMultiplier * m.DailyAverage,
		})
	}

	if m.Volatility > unusualVolatilityThreshold {
		anomalies = append(anomalies, Anomaly{
			Type:        AnomalyUnusualPattern,
			Severity:    SeverityLow,
			Description: fmt.Sprintf("Daily AI spend is highly irregular (volatility %.2f)", m.Volatility),
			Value:       m.Volatility,
			Threshold:   unusualVolatilityThreshold,
		})
	}

	return anomalies
}

// Forecast экстраполирует средний дневной расход на days дней вперёд
// с поправкой ±5% в день по тренду и линейно убывающей уверенностью
func (s *Smoother) Forecast(ctx context.Context, projectID string, days int) ([]ForecastPoint, error) {
	if days <= 0 {
		days = DefaultForecastDays
	}
	if days > MaxForecastDays {
		days = MaxForecastDays
	}

	m, err := s.SmoothedMetrics(ctx, projectID, DefaultWindowDays)
	if err != nil {
		return nil, err
	}
	return forecast(m, dayStart(s.now()), days), nil
}

func forecast(m *Metrics, today time.Time, days int) []ForecastPoint {
	var adj float64
	switch m.Trend {
	case TrendIncreasing:
		adj = 0.05
	case TrendDecreasing:
		adj = -0.05
	}

	points := make([]ForecastPoint, 0, days)
	for i := 1; i <= days; i++ {
		predicted := math.Max(0, m.DailyAverage*(1+adj*float64(i)))
		decay := math.Max(0, 1-float64(i)/float64(days+1))
		points = append(points, ForecastPoint{
			Date:       today.AddDate(0, 0, i),
			Predicted:  predicted,
			Confidence: m.Confidence * decay,
		})
	}
	return points
}
