// Package telemetry records lifecycle and HTTP metrics with the Prometheus
// client and serves them in text exposition format.
package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hospital_admin"

// Outcome labels for transition metrics.
const (
	OutcomeSuccess = "success"
)

// Provider owns a registry and the collectors registered on it.
type Provider struct {
	registry *prometheus.Registry

	transitions    *prometheus.CounterVec
	transitionTime *prometheus.HistogramVec
	staleSnapshots *prometheus.CounterVec
	viewInvalid    prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpActive   prometheus.Gauge
}

// NewProvider creates a Provider with its own registry so tests and multiple
// executors never collide on the global one.
func NewProvider() *Provider {
	p := &Provider{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Lifecycle transitions attempted, by entity, action and outcome.",
		}, []string{"entity", "action", "outcome"}),
		transitionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transition_duration_seconds",
			Help:      "Time spent submitting a transition to the service.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity", "action"}),
		staleSnapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_snapshots_total",
			Help:      "Snapshots marked stale after a conflict or inconsistent response.",
		}, []string{"entity"}),
		viewInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_invalidations_total",
			Help:      "Dependent views marked stale after a successful transition.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "Requests currently in flight.",
		}),
	}
	p.registry.MustRegister(
		p.transitions, p.transitionTime, p.staleSnapshots, p.viewInvalid,
		p.httpRequests, p.httpDuration, p.httpActive,
	)
	return p
}

// Registry exposes the underlying registry.
func (p *Provider) Registry() *prometheus.Registry { return p.registry }

// ObserveTransition records one executed transition. outcome is
// OutcomeSuccess or an error kind name.
func (p *Provider) ObserveTransition(entity, action, outcome string, took time.Duration) {
	if p == nil {
		return
	}
	p.transitions.WithLabelValues(entity, action, outcome).Inc()
	if took > 0 {
		p.transitionTime.WithLabelValues(entity, action).Observe(took.Seconds())
	}
}

// SnapshotStale records a snapshot being marked stale.
func (p *Provider) SnapshotStale(entity string) {
	if p == nil {
		return
	}
	p.staleSnapshots.WithLabelValues(entity).Inc()
}

// ViewsInvalidated records n dependent views marked stale.
func (p *Provider) ViewsInvalidated(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.viewInvalid.Add(float64(n))
}

// MetricsMiddleware records HTTP server metrics. The status of a returned
// error is resolved through statusOf since the error handler runs later.
func (p *Provider) MetricsMiddleware(statusOf func(error) int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.httpActive.Inc()
			defer p.httpActive.Dec()

			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				switch {
				case statusOf != nil:
					status = statusOf(err)
				case errors.As(err, &he):
					status = he.Code
				default:
					status = http.StatusInternalServerError
				}
			}
			p.httpRequests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			p.httpDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry at /metrics.
func (p *Provider) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
}
