// Package metrics объявляет Prometheus-метрики журнала репутации.
// Метрики регистрируются в глобальном реестре через promauto и отдаются на /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AwardsTotal — ручные начисления по исходу: awarded, self_award, daily_limit, ..., error.
	AwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reputation_awards_total",
			Help: "Manual reputation awards by outcome",
		},
		[]string{"outcome"},
	)

	// ReactionsTotal — обработка реакций: action=track|untrack, outcome=tracked|duplicate|ignored|removed|absent|error.
	ReactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reputation_reactions_total",
			Help: "Reaction events processed by the ledger",
		},
		[]string{"action", "outcome"},
	)

	// PrunedRecordsTotal — сколько записей лога лимитов удалено планировщиком.
	PrunedRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reputation_pruned_records_total",
			Help: "Rate-limit log records deleted by the prune job",
		},
	)

	// StoreDuration — длительность операций хранилища.
	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reputation_store_duration_seconds",
			Help:    "Duration of reputation store operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op"},
	)

	// HTTPRequestsTotal — запросы к HTTP API по методу, маршруту и статусу.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reputation_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reputation_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 2},
		},
		[]string{"method", "path"},
	)
)

// ObserveStore записывает длительность операции op, начатой в start.
// Использование: defer metrics.ObserveStore("total", time.Now())
func ObserveStore(op string, start time.Time) {
	StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
