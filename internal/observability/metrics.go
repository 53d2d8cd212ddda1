package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/regwatch/regwatch/internal/listing"
)

// Metrics collects Prometheus metrics for the dashboard. It satisfies listing.Recorder.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	fetchesTotal    *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	staleTotal      *prometheus.CounterVec
	openViews       prometheus.Gauge
}

// NewMetrics builds a private registry with the HTTP and list collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regwatch_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "regwatch_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regwatch_list_fetches_total",
		Help: "Backend page fetches applied to a list, by outcome.",
	}, []string{"list", "outcome"})
	fetchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "regwatch_list_fetch_duration_seconds",
		Help:    "Backend page fetch latency by list.",
		Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"list"})
	stale := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regwatch_list_stale_responses_total",
		Help: "Pages discarded because the query changed while they were in flight.",
	}, []string{"list"})
	views := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "regwatch_list_views_open",
		Help: "List views currently held by the server.",
	})
	registry.MustRegister(requests, duration, fetches, fetchDuration, stale, views,
		prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		fetchesTotal:    fetches,
		fetchDuration:   fetchDuration,
		staleTotal:      stale,
		openViews:       views,
	}
}

// Handler serves /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request counts and latency per chi route pattern.
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

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveFetch implements listing.Recorder.
func (m *Metrics) ObserveFetch(list string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchesTotal.WithLabelValues(list, fetchOutcome(err)).Inc()
	m.fetchDuration.WithLabelValues(list).Observe(duration.Seconds())
}

// ObserveStale implements listing.Recorder.
func (m *Metrics) ObserveStale(list string) {
	if m == nil {
		return
	}
	m.staleTotal.WithLabelValues(list).Inc()
}

// SetOpenViews reports the size of the view registry.
func (m *Metrics) SetOpenViews(n int) {
	if m == nil {
		return
	}
	m.openViews.Set(float64(n))
}

func fetchOutcome(err error) string {
	var fetchErr *listing.FetchError
	var decodeErr *listing.DecodeError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &fetchErr):
		return "http_" + strconv.Itoa(fetchErr.StatusCode)
	case errors.As(err, &decodeErr):
		return "decode_error"
	default:
		return "transport_error"
	}
}

var _ listing.Recorder = (*Metrics)(nil)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
