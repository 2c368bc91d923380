// Package metrics is a backend-agnostic seam for run metrics: step
// outcomes and durations, row and batch counters, verification results.
//
// A global backend defaults to a no-op, so every helper is safe to call when
// no metrics system is configured. Concrete backends live in subpackages
// (prompush, datadog) and are installed once from main via SetBackend.
package metrics

import "time"

// Metric names shared by every backend.
const (
	StepTotal           = "dbclone_step_total"
	StepDurationSeconds = "dbclone_step_duration_seconds"
	RowsTotal           = "dbclone_rows_total"
	BatchesTotal        = "dbclone_batches_total"
	VerificationsTotal  = "dbclone_verifications_total"
)

// Row kinds recorded by RecordRows.
const (
	RowsTransferred    = "transferred"
	RowsFallbackOK     = "fallback_ok"
	RowsFallbackFailed = "fallback_failed"
	RowsExported       = "exported"
	RowsImported       = "imported"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep counts one execution of a run step (migrate, table, verify,
// repair) and observes its duration.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}

	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRows increments the row counter for kind (RowsTransferred,
// RowsFallbackOK, ...).
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordBatches increments the bulk-load batch counter.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(BatchesTotal, float64(delta), Labels{
		"job": job,
	})
}

// RecordVerification counts one table verification by outcome status.
func RecordVerification(job, status string) {
	backend.IncCounter(VerificationsTotal, 1, Labels{
		"job":    job,
		"status": status,
	})
}
