// Package metrics provides Prometheus instrumentation for the wager engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MarketsCreated counts markets opened for wagering.
	MarketsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thehouse_markets_created_total",
		Help: "Total number of markets created",
	})

	// WagersTotal counts wagers accepted by the engine.
	WagersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thehouse_wagers_total",
		Help: "Total number of wagers placed",
	})

	// WagerRejections counts wagers refused before any money moved.
	WagerRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thehouse_wager_rejections_total",
		Help: "Wagers rejected by validation or insufficient funds",
	})

	// StakeVolume tracks cumulative stake volume in currency units.
	// Approximate float64 value; the ledger is the source of truth.
	StakeVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thehouse_stake_volume_total",
		Help: "Cumulative stake volume accepted",
	})

	// SettlementsTotal counts markets settled.
	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thehouse_settlements_total",
		Help: "Total number of markets settled",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thehouse_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thehouse_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "thehouse_http_request_duration_seconds",
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

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
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
