// Package metrics provides Prometheus collectors for discovery, ledger
// queries and key location. A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

const namespace = "sompi"

// Probe results recorded by RecordProbe.
const (
	ProbeFunded = "funded"
	ProbeEmpty  = "empty"
	ProbeError  = "error"
)

// Metrics holds the collectors registered for one process or test.
type Metrics struct {
	registry *prometheus.Registry

	oracleCalls   *prometheus.CounterVec
	oracleLatency *prometheus.HistogramVec
	probes        *prometheus.CounterVec
	mismatches    prometheus.Counter
	locatorBatch  prometheus.Counter
	scansTotal    *prometheus.CounterVec
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		oracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "calls_total",
			Help:      "Ledger query calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		oracleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "call_duration_seconds",
			Help:      "Ledger query call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "probes_total",
			Help:      "Addresses probed during discovery by chain and result.",
		}, []string{"chain", "result"}),
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "reconcile_mismatches_total",
			Help:      "Funded addresses whose UTXO sum disagreed with the aggregate balance.",
		}),
		locatorBatch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "locator",
			Name:      "batches_total",
			Help:      "Derivation batches searched by the private key locator.",
		}),
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "scans_total",
			Help:      "Completed discovery scans by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(m.oracleCalls, m.oracleLatency, m.probes, m.mismatches, m.locatorBatch, m.scansTotal)
	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordOracleCall records a ledger query with its duration and outcome.
func (m *Metrics) RecordOracleCall(op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.oracleCalls.WithLabelValues(op, outcome(err)).Inc()
	m.oracleLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordProbe records one discovery probe.
func (m *Metrics) RecordProbe(chain, result string) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(chain, result).Inc()
}

// RecordMismatch records a reconciliation mismatch.
func (m *Metrics) RecordMismatch() {
	if m == nil {
		return
	}
	m.mismatches.Inc()
}

// RecordLocatorBatches adds searched locator batches.
func (m *Metrics) RecordLocatorBatches(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.locatorBatch.Add(float64(n))
}

// RecordScan records a finished scan.
func (m *Metrics) RecordScan(err error) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, sompierr.ErrNetworkUnavailable):
		return "network_error"
	case errors.Is(err, sompierr.ErrScanCanceled):
		return "canceled"
	default:
		return "error"
	}
}
