// Package metrics exposes Prometheus counters for the ledger engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// batchesTotal counts submitted batches.
	// Labels: outcome (applied, partial, failed)
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stock_ledger",
		Subsystem: "coordinator",
		Name:      "batches_total",
		Help:      "Total batches submitted to the ledger store",
	}, []string{"outcome"})

	// opsTotal counts ops by outcome.
	// Labels: operation, outcome (applied, failed)
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stock_ledger",
		Subsystem: "coordinator",
		Name:      "ops_total",
		Help:      "Total update ops by operation and outcome",
	}, []string{"operation", "outcome"})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stock_ledger",
		Subsystem: "coordinator",
		Name:      "retries_total",
		Help:      "Total batch resubmissions after transient store failures",
	})

	shortfallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stock_ledger",
		Subsystem: "recipes",
		Name:      "shortfalls_total",
		Help:      "Total crafted changes rejected for insufficient materials",
	})

	workerConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stock_ledger",
		Subsystem: "workers",
		Name:      "conflicts_total",
		Help:      "Total start attempts rejected because another user holds the entry",
	})

	// integrityIssues is the issue count of the last integrity report.
	integrityIssues = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "stock_ledger",
		Subsystem: "integrity",
		Name:      "issues",
		Help:      "Issues found by the most recent integrity report",
	})

	integrityFixesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stock_ledger",
		Subsystem: "integrity",
		Name:      "fixes_total",
		Help:      "Total integrity fixes executed",
	})
)

// ObserveBatch records a submitted batch.
func ObserveBatch(outcome string) {
	batchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveOp records the outcome of a single op.
func ObserveOp(operation string, applied bool) {
	outcome := "applied"
	if !applied {
		outcome = "failed"
	}
	opsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordRetry counts one batch resubmission.
func RecordRetry() {
	retriesTotal.Inc()
}

// RecordShortfall counts one rejected consumption.
func RecordShortfall() {
	shortfallsTotal.Inc()
}

// RecordWorkerConflicts counts rejected start attempts.
func RecordWorkerConflicts(n int) {
	workerConflictsTotal.Add(float64(n))
}

// SetIntegrityIssues records the issue count of a fresh report.
func SetIntegrityIssues(n int) {
	integrityIssues.Set(float64(n))
}

// RecordIntegrityFixes counts executed fixes.
func RecordIntegrityFixes(n int) {
	integrityFixesTotal.Add(float64(n))
}
