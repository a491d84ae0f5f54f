// Package metrics exposes prometheus collectors for batch runs and the http api
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ghg_forecaster"

// Batch records the outcome of forecast batch runs
type Batch struct {
	rungs       *prometheus.CounterVec
	failures    *prometheus.CounterVec
	entities    prometheus.Counter
	rows        prometheus.Counter
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
}

// NewBatch registers the batch collectors on reg
func NewBatch(reg prometheus.Registerer) *Batch {
	factory := promauto.With(reg)
	return &Batch{
		rungs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_rungs_total",
			Help:      "Number of series forecast by each strategy rung.",
		}, []string{"metric", "rung"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_failures_total",
			Help:      "Number of failure records by kind.",
		}, []string{"kind"}),
		entities: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_entities_total",
			Help:      "Number of entities processed by batch runs.",
		}),
		rows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_rows_total",
			Help:      "Number of forecast rows produced by batch runs.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of a full forecast batch.",
			Buckets:   []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_last_success_timestamp_seconds",
			Help:      "Unix time of the last completed batch.",
		}),
	}
}

func (b *Batch) ObserveRung(metric, rung string) {
	if b == nil {
		return
	}
	b.rungs.WithLabelValues(metric, rung).Inc()
}

func (b *Batch) ObserveFailure(kind string) {
	if b == nil {
		return
	}
	b.failures.WithLabelValues(kind).Inc()
}

func (b *Batch) ObserveBatch(d time.Duration, entities, rows int) {
	if b == nil {
		return
	}
	b.duration.Observe(d.Seconds())
	b.entities.Add(float64(entities))
	b.rows.Add(float64(rows))
	b.lastSuccess.SetToCurrentTime()
}

// HTTP records request counts and latencies by route pattern
type HTTP struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewHTTP(reg prometheus.Registerer) *HTTP {
	factory := promauto.With(reg)
	return &HTTP{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Number of http requests by route and status.",
		}, []string{"method", "route", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of http requests by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Middleware must be mounted on a chi router so the matched route pattern is available
func (h *HTTP) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		h.latency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the collectors of gatherer in the prometheus text format
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
