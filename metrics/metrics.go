// Package metrics contains the prometheus instrumentation of the time chain.
//
// Every component builds its own metrics struct. Constructors are safe to call
// more than once per process: identical collectors are registered only once
// and shared afterwards.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chronos"

// VDFMetrics instruments the delay function engine.
type VDFMetrics struct {
	squarings prometheus.Counter
	evaluate  prometheus.Histogram
	verify    *prometheus.CounterVec
}

// NewVDFMetrics creates the VDF engine collectors.
func NewVDFMetrics() VDFMetrics {
	m := VDFMetrics{
		squarings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vdf_squarings_total",
			Help:      "Sequential group squarings performed by evaluate and prove.",
		}),
		evaluate: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vdf_evaluate_seconds",
			Help:      "Wall time of completed VDF evaluations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 12),
		}),
		verify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vdf_verify_total",
			Help:      "Proof verifications, partitioned by result.",
		}, []string{"result"}),
	}
	m.squarings = registerOnce(m.squarings).(prometheus.Counter)
	m.evaluate = registerOnce(m.evaluate).(prometheus.Histogram)
	m.verify = registerOnce(m.verify).(*prometheus.CounterVec)
	return m
}

// Squarings counts n squarings.
func (m VDFMetrics) Squarings(n uint64) {
	m.squarings.Add(float64(n))
}

// EvaluateTimer starts a timer for one evaluation.
func (m VDFMetrics) EvaluateTimer() *prometheus.Timer {
	return prometheus.NewTimer(m.evaluate)
}

// Verified records a verification outcome.
func (m VDFMetrics) Verified(ok bool) {
	m.verify.WithLabelValues(result(ok)).Inc()
}

// LedgerMetrics instruments the hierarchical ledger.
type LedgerMetrics struct {
	sealed *prometheus.CounterVec
}

// NewLedgerMetrics creates the ledger collectors.
func NewLedgerMetrics() LedgerMetrics {
	m := LedgerMetrics{
		sealed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_blocks_sealed_total",
			Help:      "Sealed time chain blocks, partitioned by tau level.",
		}, []string{"level"}),
	}
	m.sealed = registerOnce(m.sealed).(*prometheus.CounterVec)
	return m
}

// Sealed counts one sealed block of the given level.
func (m LedgerMetrics) Sealed(level uint8) {
	m.sealed.WithLabelValues("tau" + strconv.Itoa(int(level))).Inc()
}

// FinalityMetrics instruments the checkpoint accumulator.
type FinalityMetrics struct {
	checkpoints *prometheus.CounterVec
	tracked     prometheus.Gauge
}

// NewFinalityMetrics creates the accumulator collectors.
func NewFinalityMetrics() FinalityMetrics {
	m := FinalityMetrics{
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finality_checkpoints_total",
			Help:      "Checkpoint submissions, partitioned by result.",
		}, []string{"result"}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "finality_tracked_blocks",
			Help:      "Blocks currently tracked by the accumulator.",
		}),
	}
	m.checkpoints = registerOnce(m.checkpoints).(*prometheus.CounterVec)
	m.tracked = registerOnce(m.tracked).(prometheus.Gauge)
	return m
}

// Checkpoint records a checkpoint submission outcome ("accepted" or a rejection reason).
func (m FinalityMetrics) Checkpoint(outcome string) {
	m.checkpoints.WithLabelValues(outcome).Inc()
}

// Tracked sets the number of tracked blocks.
func (m FinalityMetrics) Tracked(n int) {
	m.tracked.Set(float64(n))
}

// AuthorityMetrics instruments the time authority state machine.
type AuthorityMetrics struct {
	level       prometheus.Gauge
	transitions *prometheus.CounterVec
}

// NewAuthorityMetrics creates the time authority collectors.
func NewAuthorityMetrics() AuthorityMetrics {
	m := AuthorityMetrics{
		level: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "authority_level",
			Help:      "Current time authority level (0-6).",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authority_transitions_total",
			Help:      "Time authority transitions, partitioned by source and target level.",
		}, []string{"from", "to"}),
	}
	m.level = registerOnce(m.level).(prometheus.Gauge)
	m.transitions = registerOnce(m.transitions).(*prometheus.CounterVec)
	return m
}

// Transition records a level change.
func (m AuthorityMetrics) Transition(from, to string, level int) {
	m.transitions.WithLabelValues(from, to).Inc()
	m.level.Set(float64(level))
}

func result(ok bool) string {
	if ok {
		return "valid"
	}
	return "invalid"
}
