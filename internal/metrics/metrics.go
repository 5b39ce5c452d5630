package metrics

import "github.com/prometheus/client_golang/prometheus"

// Метрики Prometheus для наблюдения за сделками, расходами на AI и оценкой цен
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	OfferTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offer_transitions_total",
			Help: "Offer status transitions by target status",
		},
		[]string{"status"},
	)

	EscrowReleasesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "escrow_releases_total",
			Help: "Total number of escrow fund releases",
		},
	)

	AlertsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_alerts_emitted_total",
			Help: "Admin alerts emitted by type and severity",
		},
		[]string{"type", "severity"},
	)

	SpendDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_spend_decisions_total",
			Help: "AI spend guard decisions by outcome",
		},
		[]string{"outcome"},
	)

	PriceEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_evaluations_total",
			Help: "Price evaluations by recommendation",
		},
		[]string{"recommendation"},
	)

	PriceEvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "price_evaluation_duration_seconds",
			Help:    "Duration of a single artwork price evaluation",
			Buckets: prometheus.DefBuckets,
		},
	)

	EmailsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_notifications_processed_total",
			Help: "Email notifications processed by result",
		},
		[]string{"result"},
	)
)

// Register регистрирует все метрики в реестре по умолчанию
func Register() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		OfferTransitionsTotal,
		EscrowReleasesTotal,
		AlertsEmittedTotal,
		SpendDecisionsTotal,
		PriceEvaluationsTotal,
		PriceEvaluationDuration,
		EmailsProcessedTotal,
	)
}
