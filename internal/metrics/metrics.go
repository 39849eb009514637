// Package metrics exposes Prometheus collectors for the permit pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	searchPagesTotal     *prometheus.CounterVec
	searchRowsTotal      *prometheus.CounterVec
	fetchRequestsTotal   *prometheus.CounterVec
	fetchDurationSeconds *prometheus.HistogramVec
	enrichmentTotal      *prometheus.CounterVec
	engineFallbacksTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		searchPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permit_search_pages_total",
				Help: "Result pages fetched, labeled by engine.",
			},
			[]string{"engine"},
		)

		searchRowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permit_search_rows_total",
				Help: "Permit rows parsed from result pages, labeled by engine.",
			},
			[]string{"engine"},
		)

		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permit_fetch_requests_total",
				Help: "Outbound fetches, labeled by kind (detail, pdf) and status code.",
			},
			[]string{"kind", "code"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "permit_fetch_duration_seconds",
				Help:    "Histogram of outbound fetch latencies, labeled by kind.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		)

		enrichmentTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permit_enrichment_total",
				Help: "Enrichment outcomes, labeled by parse status.",
			},
			[]string{"status"},
		)

		engineFallbacksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "permit_engine_fallbacks_total",
				Help: "Times the search fell through to the next engine.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSearchPage counts one fetched result page for an engine.
func ObserveSearchPage(engine string, rows int) {
	if searchPagesTotal == nil {
		return
	}
	searchPagesTotal.WithLabelValues(engine).Inc()
	if rows > 0 {
		searchRowsTotal.WithLabelValues(engine).Add(float64(rows))
	}
}

// ObserveFetch records one outbound fetch.
func ObserveFetch(kind string, code int, duration time.Duration) {
	if fetchRequestsTotal == nil {
		return
	}
	fetchRequestsTotal.WithLabelValues(kind, strconv.Itoa(code)).Inc()
	fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveEnrichment counts one per-permit enrichment outcome.
func ObserveEnrichment(status string) {
	if enrichmentTotal == nil {
		return
	}
	enrichmentTotal.WithLabelValues(status).Inc()
}

// ObserveEngineFallback counts one engine switch.
func ObserveEngineFallback() {
	if engineFallbacksTotal == nil {
		return
	}
	engineFallbacksTotal.Inc()
}
