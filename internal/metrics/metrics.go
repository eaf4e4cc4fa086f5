// Package metrics exposes Prometheus counters for the match flows and the
// collaborators they depend on. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the service.
type Collector struct {
	registry *prometheus.Registry

	Matches          *prometheus.CounterVec
	MatchDuration    *prometheus.HistogramVec
	CollaboratorErrs *prometheus.CounterVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
}

// NewCollector creates a collector registered on its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		Matches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "match_requests_total",
				Help:      "Match flow invocations by flow and outcome",
			},
			[]string{"flow", "outcome"},
		),
		MatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "match_duration_seconds",
				Help:      "Match flow latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"flow"},
		),
		CollaboratorErrs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collaborator_failures_total",
				Help:      "Failed calls to external collaborators",
			},
			[]string{"collaborator"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Cache hits by cache name",
			},
			[]string{"cache"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Cache misses by cache name",
			},
			[]string{"cache"},
		),
	}

	registry.MustRegister(c.Matches, c.MatchDuration, c.CollaboratorErrs, c.CacheHits, c.CacheMisses)
	return c
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveMatch records one finished match flow.
func (c *Collector) ObserveMatch(flow, outcome string, started time.Time) {
	if c == nil {
		return
	}
	c.Matches.WithLabelValues(flow, outcome).Inc()
	c.MatchDuration.WithLabelValues(flow).Observe(time.Since(started).Seconds())
}

// CollaboratorFailed counts a failed call to an external collaborator.
func (c *Collector) CollaboratorFailed(name string) {
	if c == nil {
		return
	}
	c.CollaboratorErrs.WithLabelValues(name).Inc()
}

// CacheLookup counts a hit or a miss for the named cache.
func (c *Collector) CacheLookup(name string, hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.CacheHits.WithLabelValues(name).Inc()
		return
	}
	c.CacheMisses.WithLabelValues(name).Inc()
}
