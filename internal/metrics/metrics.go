// Package metrics provides Prometheus instrumentation for the roll engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RollAnalyses counts roll analyses, partitioned by old and new variant.
	RollAnalyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roll_analyses_total",
		Help: "Total number of roll analyses computed",
	}, []string{"from_variant", "to_variant"})

	// RollLatency tracks how long one full analysis takes.
	RollLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "roll_analysis_latency_seconds",
		Help:    "Roll analysis latency in seconds",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	// UncalculatedScenarios counts scenarios returned without a P&L.
	UncalculatedScenarios = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roll_uncalculated_scenarios_total",
		Help: "Scenarios that could not be calculated for missing inputs",
	}, []string{"scenario"})

	// OldLegFallbacks counts old legs resolved with a missing-input fallback.
	OldLegFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roll_old_leg_fallbacks_total",
		Help: "Old legs resolved with a missing-input fallback",
	}, []string{"reason"})

	// ActiveStrategies tracks the number of stored strategies.
	ActiveStrategies = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roll_strategies",
		Help: "Number of stored strategies",
	})

	// PriceFetches counts quote fetches by result.
	PriceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roll_price_fetches_total",
		Help: "Quote fetches by result",
	}, []string{"result"})

	// TrackedSymbols is the number of symbols the price provider polls.
	TrackedSymbols = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roll_tracked_symbols",
		Help: "Number of symbols polled for prices",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roll_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roll_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roll_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern uses the matched chi route so IDs do not explode the label
// cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer so WebSocket upgrades
// work behind this middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
