// Package metrics records operational metrics from the refine pipeline
// behind a small backend interface.
//
// A no-op backend is installed by default, so the Record functions are
// always safe to call. The server installs the Prometheus backend from the
// prom subpackage; the CLI leaves the default in place.
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by every backend.
const (
	StepTotal           = "sqlrefine_step_total"
	StepDurationSeconds = "sqlrefine_step_duration_seconds"
	RowsTotal           = "sqlrefine_rows_total"
	RunsTotal           = "sqlrefine_runs_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordStep counts one execution of a pipeline step and observes its
// duration, labelled by step and outcome.
func RecordStep(step string, err error, d time.Duration) {
	lbls := Labels{
		"step":   step,
		"status": status(err),
	}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRows adds delta rows of the given kind, e.g. "repaired" or
// "diverted". Non-positive deltas are ignored.
func RecordRows(kind string, delta int) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{"kind": kind})
}

// RecordRun counts one finished run.
func RecordRun(err error) {
	current().IncCounter(RunsTotal, 1, Labels{"status": status(err)})
}
