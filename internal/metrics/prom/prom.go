// Package prom implements a Prometheus backend for the metrics package that
// is scraped over HTTP.
//
// All Prometheus-specific dependencies live here so the pipeline depends
// only on the metrics interface.
package prom

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/koustreak/sqlrefine/internal/metrics"
)

// Backend is a Prometheus metrics backend with its own registry.
type Backend struct {
	reg *prometheus.Registry

	stepCounter  *prometheus.CounterVec   // sqlrefine_step_total
	stepDuration *prometheus.HistogramVec // sqlrefine_step_duration_seconds
	rowCounter   *prometheus.CounterVec   // sqlrefine_rows_total
	runCounter   *prometheus.CounterVec   // sqlrefine_runs_total
}

// NewBackend registers the pipeline collectors, plus the Go runtime and
// process collectors, on a fresh registry.
func NewBackend() (*Backend, error) {
	reg := prometheus.NewRegistry()

	stepCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Total number of pipeline step executions, partitioned by step and status.",
		},
		[]string{"step", "status"},
	)
	stepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metrics.StepDurationSeconds,
			Help:    "Duration of pipeline steps in seconds, partitioned by step and status.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"step", "status"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Row and statement counts per kind (rows, repaired, nulled, diverted, ...).",
		},
		[]string{"kind"},
	)
	runCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RunsTotal,
			Help: "Total number of refine runs, partitioned by status.",
		},
		[]string{"status"},
	)

	for _, c := range []prometheus.Collector{
		stepCounter,
		stepDuration,
		rowCounter,
		runCounter,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prom: register collector: %w", err)
		}
	}

	return &Backend{
		reg:          reg,
		stepCounter:  stepCounter,
		stepDuration: stepDuration,
		rowCounter:   rowCounter,
		runCounter:   runCounter,
	}, nil
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.RowsTotal:
		b.rowCounter.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.RunsTotal:
		b.runCounter.WithLabelValues(labels["status"]).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDurationSeconds {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush is a no-op; metrics are pulled through Handler.
func (b *Backend) Flush() error { return nil }

// Handler serves the registry in the Prometheus exposition format.
func (b *Backend) Handler() http.Handler {
	return promhttp.HandlerFor(b.reg, promhttp.HandlerOpts{Registry: b.reg})
}
