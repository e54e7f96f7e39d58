// Package metrics exposes Prometheus counters for the gateway's request
// paths, spend, and breaker state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/breakwater-ai/breakwater/pkg/models"
)

// Collector bundles the gateway's Prometheus metrics. Each Collector owns
// its registry, so independent instances never collide.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	FallbacksTotal  *prometheus.CounterVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	CacheErrors     prometheus.Counter
	SpendUSD        prometheus.Counter
	BudgetRemaining prometheus.Gauge
	BreakerState    prometheus.Gauge
	UpstreamLatency *prometheus.HistogramVec
}

// NewCollector creates and registers the gateway metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "breakwater_requests_total",
				Help: "Invocations by tool and serving source",
			},
			[]string{"tool", "source"},
		),

		FallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "breakwater_fallbacks_total",
				Help: "Fallback responses by tool and reason",
			},
			[]string{"tool", "reason"},
		),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breakwater_cache_hits_total",
			Help: "Cache lookups that returned a stored response",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breakwater_cache_misses_total",
			Help: "Cache lookups that found nothing usable",
		}),

		CacheErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breakwater_cache_errors_total",
			Help: "Cache operations that failed and were absorbed",
		}),

		SpendUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breakwater_spend_usd_total",
			Help: "Cumulative upstream spend in USD",
		}),

		BudgetRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breakwater_budget_remaining_usd",
			Help: "Remaining budget in the current window",
		}),

		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breakwater_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open",
		}),

		UpstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "breakwater_upstream_latency_seconds",
				Help:    "Upstream model call latency in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
	}

	c.registry.MustRegister(
		c.RequestsTotal,
		c.FallbacksTotal,
		c.CacheHits,
		c.CacheMisses,
		c.CacheErrors,
		c.SpendUSD,
		c.BudgetRemaining,
		c.BreakerState,
		c.UpstreamLatency,
	)

	return c
}

// SetBreakerState maps a breaker state onto the gauge.
func (c *Collector) SetBreakerState(state models.BreakerState) {
	var v float64
	switch state {
	case models.BreakerOpen:
		v = 1
	case models.BreakerHalfOpen:
		v = 2
	}
	c.BreakerState.Set(v)
}

// Handler returns the HTTP handler serving this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
