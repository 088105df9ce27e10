// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CaptureDuration tracks how long one backend capture ran, by device kind.
	CaptureDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tunerd_capture_duration_seconds",
		Help:    "Duration of backend captures",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 20},
	}, []string{"kind"})

	// CaptureTotal tracks the outcome of captures (ok, stopped, deadline, failed).
	CaptureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerd_capture_total",
		Help: "Total number of backend captures by result",
	}, []string{"result"})

	// CaptureLinesTotal counts helper output lines by message type.
	CaptureLinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerd_capture_lines_total",
		Help: "Total number of capture helper output lines by type",
	}, []string{"type"})

	// HelperTerminateTotal counts signals sent to capture helper process groups.
	HelperTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerd_helper_terminate_total",
		Help: "Signals sent to capture helper process groups by signal and result",
	}, []string{"signal", "result"})

	// HelperWaitTotal counts how terminated helpers exited.
	HelperWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerd_helper_wait_total",
		Help: "Capture helper exit outcomes after termination",
	}, []string{"outcome"})
)

// ObserveCapture records one finished capture.
func ObserveCapture(kind, result string, duration time.Duration) {
	CaptureDuration.WithLabelValues(kind).Observe(duration.Seconds())
	CaptureTotal.WithLabelValues(result).Inc()
}

// IncCaptureLine counts one helper output line.
func IncCaptureLine(typ string) {
	CaptureLinesTotal.WithLabelValues(typ).Inc()
}

// IncHelperTerminate counts one termination signal.
func IncHelperTerminate(signal, result string) {
	HelperTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncHelperWait counts one helper exit after termination.
func IncHelperWait(outcome string) {
	HelperWaitTotal.WithLabelValues(outcome).Inc()
}
