// Package metrics exposes Prometheus collectors for the dealer crawler.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	targetsTotal       *prometheus.CounterVec
	recordsTotal       *prometheus.CounterVec
	retriesTotal       *prometheus.CounterVec
	duplicatesTotal    prometheus.Counter
	renderSeconds      *prometheus.HistogramVec
	rateDelaySeconds   prometheus.Histogram
	activeWorkersGauge prometheus.Gauge

	once sync.Once
)

// Init initializes the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		targetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealercrawl_targets_total",
				Help: "Finalized fetch targets, labeled by brand and terminal status.",
			},
			[]string{"brand", "status"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealercrawl_records_total",
				Help: "Validated dealer records produced per brand, before dedup.",
			},
			[]string{"brand"},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealercrawl_retries_total",
				Help: "Retry attempts issued, labeled by brand.",
			},
			[]string{"brand"},
		)

		duplicatesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dealercrawl_duplicates_suppressed_total",
				Help: "Dealer records discarded as duplicates of an earlier identity key.",
			},
		)

		renderSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dealercrawl_render_duration_seconds",
				Help:    "Histogram of page render latencies, labeled by brand.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45},
			},
			[]string{"brand"},
		)

		rateDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dealercrawl_rate_limit_delay_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		activeWorkersGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dealercrawl_active_workers",
				Help: "Workers currently holding a renderer lease.",
			},
		)
	})
}

// ObserveTarget increments the finalized-target counter.
func ObserveTarget(brand, status string) {
	if targetsTotal == nil {
		return
	}
	targetsTotal.WithLabelValues(brand, status).Inc()
}

// ObserveRecords adds validated records for a brand.
func ObserveRecords(brand string, n int) {
	if recordsTotal == nil || n == 0 {
		return
	}
	recordsTotal.WithLabelValues(brand).Add(float64(n))
}

// ObserveRetry increments the retry counter for a brand.
func ObserveRetry(brand string) {
	if retriesTotal == nil {
		return
	}
	retriesTotal.WithLabelValues(brand).Inc()
}

// ObserveDuplicate counts one suppressed duplicate record.
func ObserveDuplicate() {
	if duplicatesTotal == nil {
		return
	}
	duplicatesTotal.Inc()
}

// ObserveRender records one render latency.
func ObserveRender(brand string, d time.Duration) {
	if renderSeconds == nil {
		return
	}
	renderSeconds.WithLabelValues(brand).Observe(d.Seconds())
}

// ObserveRateLimitDelay records a per-host rate limit wait.
func ObserveRateLimitDelay(d time.Duration) {
	if rateDelaySeconds == nil {
		return
	}
	rateDelaySeconds.Observe(d.Seconds())
}

// IncActiveWorkers increments the active worker gauge.
func IncActiveWorkers() {
	if activeWorkersGauge != nil {
		activeWorkersGauge.Inc()
	}
}

// DecActiveWorkers decrements the active worker gauge.
func DecActiveWorkers() {
	if activeWorkersGauge != nil {
		activeWorkersGauge.Dec()
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a minimal observability endpoint in the background. The
// caller shuts it down via the returned server.
func Serve(addr string) *http.Server {
	router := chi.NewRouter()
	router.Handle("/metrics", Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
