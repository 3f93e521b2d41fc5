// Package metrics exposes Prometheus counters for the provisioning job and
// the block store.
//
// A nil *Collector is valid and records nothing, so packages can take one
// without forcing tests to build a registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Provisioning run outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Collector holds the application's Prometheus metrics.
type Collector struct {
	provisionRuns      *prometheus.CounterVec
	entriesProvisioned prometheus.Counter
	entriesBackfilled  prometheus.Counter
	provisionDuration  prometheus.Histogram

	blockMutations     *prometheus.CounterVec
	contiguityFailures prometheus.Counter
	blocksReconciled   prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewCollector creates the metrics and registers them with reg. A nil reg
// uses a fresh private registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		provisionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "givethnotes_provision_runs_total",
			Help: "Daily provisioning runs by outcome",
		}, []string{"outcome"}),
		entriesProvisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "givethnotes_entries_provisioned_total",
			Help: "Journal entries created by the provisioning job",
		}),
		entriesBackfilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "givethnotes_entries_backfilled_total",
			Help: "Provisioned entries whose updated_at was copied from an earlier entry",
		}),
		provisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "givethnotes_provision_duration_seconds",
			Help:    "Duration of provisioning runs that did work",
			Buckets: prometheus.DefBuckets,
		}),
		blockMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "givethnotes_block_mutations_total",
			Help: "Entry block mutations by operation",
		}, []string{"op"}),
		contiguityFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "givethnotes_block_contiguity_violations_total",
			Help: "Entries found with non-contiguous block positions",
		}),
		blocksReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "givethnotes_blocks_reconciled_total",
			Help: "Entries whose block positions were rewritten by reconciliation",
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		c.provisionRuns,
		c.entriesProvisioned,
		c.entriesBackfilled,
		c.provisionDuration,
		c.blockMutations,
		c.contiguityFailures,
		c.blocksReconciled,
	)

	return c
}

// RecordProvision records one provisioning attempt.
func (c *Collector) RecordProvision(outcome string, created, backfilled int64, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.provisionRuns.WithLabelValues(outcome).Inc()
	if outcome != OutcomeCompleted {
		return
	}
	c.entriesProvisioned.Add(float64(created))
	c.entriesBackfilled.Add(float64(backfilled))
	c.provisionDuration.Observe(elapsed.Seconds())
}

// RecordBlockMutation counts an append, update or remove.
func (c *Collector) RecordBlockMutation(op string) {
	if c == nil {
		return
	}
	c.blockMutations.WithLabelValues(op).Inc()
}

// RecordContiguityViolations counts entries found with gaps.
func (c *Collector) RecordContiguityViolations(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.contiguityFailures.Add(float64(n))
}

// RecordReconciled counts entries whose positions were rewritten.
func (c *Collector) RecordReconciled(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.blocksReconciled.Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
