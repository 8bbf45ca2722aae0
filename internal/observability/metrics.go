package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the HTTP API and the transaction engine.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	salesTotal      *prometheus.CounterVec
	mutationsTotal  *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	discounts       *prometheus.CounterVec
}

// NewMetrics initialises the registry and every collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paintstock_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paintstock_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	sales := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paintstock_sales_total",
		Help: "Processed sales by outcome.",
	}, []string{"outcome"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paintstock_stock_mutations_total",
		Help: "Ledger mutations by reason and outcome.",
	}, []string{"reason", "outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paintstock_movement_order_transitions_total",
		Help: "Movement order actions by outcome.",
	}, []string{"action", "outcome"})
	discounts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paintstock_discount_events_total",
		Help: "Discount requests created and resolved.",
	}, []string{"event"})
	registry.MustRegister(requests, duration, sales, mutations, transitions, discounts)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		salesTotal:      sales,
		mutationsTotal:  mutations,
		transitions:     transitions,
		discounts:       discounts,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for each HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveSale counts a sale attempt. Outcome is ok, replayed, insufficient_stock or error.
func (m *Metrics) ObserveSale(outcome string) {
	if m == nil {
		return
	}
	m.salesTotal.WithLabelValues(outcome).Inc()
}

// ObserveMutation counts a ledger mutation.
func (m *Metrics) ObserveMutation(reason, outcome string) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(reason, outcome).Inc()
}

// ObserveTransition counts a movement order action.
func (m *Metrics) ObserveTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, outcome).Inc()
}

// ObserveDiscount counts discount lifecycle events (requested, approved, rejected).
func (m *Metrics) ObserveDiscount(event string) {
	if m == nil {
		return
	}
	m.discounts.WithLabelValues(event).Inc()
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Outcome labels an operation result for the counters above.
func Outcome(err error, insufficient bool) string {
	switch {
	case err == nil:
		return "ok"
	case insufficient:
		return "insufficient_stock"
	default:
		return "error"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the underlying writer so streaming handlers keep working.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
