// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from a repair run.
//
// The package exposes a narrow interface (Backend) focused on counters and
// timing data. A global, pluggable backend defaults to a no-op implementation,
// so metrics are always safe to call even when no real backend is configured.
// Concrete metric systems live in subpackages (prompush, datadog).
//
// Instrumented stages are the census pass, the correction pass, the semantic
// validator, parquet export and the warehouse load.
package metrics

import "time"

// Metric names shared by every backend.
const (
	StepTotal           = "linemend_step_total"
	StepDurationSeconds = "linemend_step_duration_seconds"
	RowsTotal           = "linemend_rows_total"
	FilesTotal          = "linemend_files_total"
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

// RecordStep measures latency and success/failure of one step for one file.
//
// Steps used by the runner: "repair", "parquet", "load".
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

// RecordRow increments a row-level counter for the given job and kind.
//
// Kinds mirror the repair statistics:
//   - "lines"     physical lines read, header included
//   - "corrected" data rows written to the corrected output
//   - "merged"    emitted rows that spanned several physical lines
//   - "rejected"  rejected units (logical rows) routed to the sink
//   - "loaded"    rows copied into the warehouse
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordFile counts one processed file by its final status
// (ok, corrected, warning, error).
func RecordFile(job, status string) {
	backend.IncCounter(FilesTotal, 1, Labels{
		"job":    job,
		"status": status,
	})
}
