// Package metrics exposes Prometheus collectors for the yield engine and the exporter.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry and the engine collectors.
type Collector struct {
	registry *prometheus.Registry

	computations        *prometheus.CounterVec
	computationDuration *prometheus.HistogramVec
	degradedReads       *prometheus.CounterVec
	oracleRequests      *prometheus.CounterVec
	recommendedApy      *prometheus.GaugeVec
	cycleDuration       prometheus.Histogram
	storeWrites         *prometheus.CounterVec
}

// NewCollector creates and registers the collectors under namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "vault_apy"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.computations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "computations_total",
			Help:      "Vault APY computations by protocol and result",
		},
		[]string{"protocol", "result"},
	)
	c.computationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "computation_duration_seconds",
			Help:      "Time taken to compute the APY of one vault",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"protocol"},
	)
	c.degradedReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "degraded_reads_total",
			Help:      "Reads that failed and were replaced by a neutral value",
		},
		[]string{"source"},
	)
	c.oracleRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "requests_total",
			Help:      "Price lookups by outcome (hit, fetched, missing, error)",
		},
		[]string{"outcome"},
	)
	c.recommendedApy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "recommended_apy",
			Help:      "Latest recommended net APY per vault",
		},
		[]string{"vault"},
	)
	c.cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exporter",
			Name:      "cycle_duration_seconds",
			Help:      "Time taken by one export cycle",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
	c.storeWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exporter",
			Name:      "store_writes_total",
			Help:      "Cached vault writes by result",
		},
		[]string{"result"},
	)

	c.registry.MustRegister(
		c.computations,
		c.computationDuration,
		c.degradedReads,
		c.oracleRequests,
		c.recommendedApy,
		c.cycleDuration,
		c.storeWrites,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveComputation records one vault computation.
func (c *Collector) ObserveComputation(protocol string, err error, took time.Duration) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.computations.WithLabelValues(protocol, result).Inc()
	c.computationDuration.WithLabelValues(protocol).Observe(took.Seconds())
}

// DegradedRead counts a failed read that was replaced by a neutral value.
func (c *Collector) DegradedRead(source string) {
	if c == nil {
		return
	}
	c.degradedReads.WithLabelValues(source).Inc()
}

// OracleRequest counts a price lookup outcome.
func (c *Collector) OracleRequest(outcome string) {
	if c == nil {
		return
	}
	c.oracleRequests.WithLabelValues(outcome).Inc()
}

// SetRecommendedApy publishes the latest net APY of a vault.
func (c *Collector) SetRecommendedApy(vault string, apy float64) {
	if c == nil {
		return
	}
	c.recommendedApy.WithLabelValues(vault).Set(apy)
}

// ObserveCycle records the duration of an export cycle.
func (c *Collector) ObserveCycle(took time.Duration) {
	if c == nil {
		return
	}
	c.cycleDuration.Observe(took.Seconds())
}

// StoreWrites counts written or failed cached vaults.
func (c *Collector) StoreWrites(result string, n int) {
	if c == nil {
		return
	}
	c.storeWrites.WithLabelValues(result).Add(float64(n))
}
