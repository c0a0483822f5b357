// Package metrics holds the Prometheus collectors for a sweep run.
//
// Collectors live on a private registry so several sweeps in one process
// (tests, replays) never collide on registration. A snapshot can be written
// in the node-exporter textfile format at the end of a run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// #region constants

const namespace = "ignition"

const subsystem = "sweep"

// #endregion constants

// #region metrics

// Sweep counts cell outcomes, stage failures and execution latency.
type Sweep struct {
	registry *prometheus.Registry

	// CellsTotal counts grid cells by final status (completed, invalid, failed).
	CellsTotal *prometheus.CounterVec

	// StageErrorsTotal counts per-cell failures by the stage that failed.
	StageErrorsTotal *prometheus.CounterVec

	// ControlsTotal counts control runs by id and status.
	ControlsTotal *prometheus.CounterVec

	// ExecuteSeconds observes SUBMIT+AWAIT latency.
	ExecuteSeconds prometheus.Histogram

	// RetriesTotal counts extra submission attempts.
	RetriesTotal prometheus.Counter

	// BestXi is the composite index of the selected configuration.
	BestXi prometheus.Gauge
}

// New registers a fresh set of sweep collectors on a private registry.
func New() *Sweep {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Sweep{
		registry: reg,
		CellsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cells_total",
			Help:      "Grid cells processed, by final status.",
		}, []string{"status"}),
		StageErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stage_errors_total",
			Help:      "Cell failures, by the stage that failed.",
		}, []string{"stage"}),
		ControlsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "controls_total",
			Help:      "Control executions, by control id and status.",
		}, []string{"control", "status"}),
		ExecuteSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "execute_seconds",
			Help:      "Time from submission to counts.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		RetriesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retries_total",
			Help:      "Submission attempts beyond the first.",
		}),
		BestXi: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "best_xi",
			Help:      "Composite index of the selected configuration.",
		}),
	}
}

// Registry exposes the private registry, e.g. for promhttp or tests.
func (s *Sweep) Registry() *prometheus.Registry {
	return s.registry
}

// WriteTextfile writes the current values to path in textfile format.
func (s *Sweep) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, s.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}

// #endregion metrics
