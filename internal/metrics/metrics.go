package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/apperrors"
)

// Metrics holds all Prometheus metrics for the dashboard
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	EarthEngineCalls *prometheus.CounterVec
	EarthEngineTime  *prometheus.HistogramVec
	CacheLookups     *prometheus.CounterVec
	RenderCycles     *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
}

// New creates and registers all metrics on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "forestloss_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forestloss_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		EarthEngineCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "forestloss_earthengine_calls_total",
			Help: "Total number of Earth Engine API calls by method and outcome",
		}, []string{"method", "outcome"}),
		EarthEngineTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forestloss_earthengine_call_duration_seconds",
			Help:    "Earth Engine API call latency by method",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"method"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "forestloss_cache_lookups_total",
			Help: "Cache lookups by cache name and result",
		}, []string{"cache", "result"}),
		RenderCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "forestloss_render_cycles_total",
			Help: "Page render cycles by outcome",
		}, []string{"outcome"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "forestloss_active_sessions",
			Help: "Current number of browser sessions held in memory",
		}),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveEarthEngine records one Earth Engine call. It matches fetcher.Observer.
func (m *Metrics) ObserveEarthEngine(method string, err error, elapsed time.Duration) {
	m.EarthEngineCalls.WithLabelValues(method, outcome(err)).Inc()
	m.EarthEngineTime.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveCache records a cache lookup. It matches the stats and mapview observers.
func (m *Metrics) ObserveCache(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

// ObserveRender records the outcome of a page render cycle
func (m *Metrics) ObserveRender(err error) {
	m.RenderCycles.WithLabelValues(outcome(err)).Inc()
}

// SetActiveSessions updates the session gauge
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

func outcome(err error) string {
	var appErr *apperrors.AppError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &appErr):
		return string(appErr.Code)
	default:
		return "error"
	}
}
