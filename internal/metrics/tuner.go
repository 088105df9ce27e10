// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus collectors for tunerd.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// No session, channel or device ids in labels: the tuner pool is small but
// session ids are unbounded.

var (
	// Allocator

	DevicesByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tunerd_devices",
		Help: "Current number of tuner devices, by operational state.",
	}, []string{"state"})

	StreamAcquireTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerd_stream_acquire_total",
		Help: "Total number of stream acquisitions, by path (reuse/free) and result reason.",
	}, []string{"path", "result"})

	StreamSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tunerd_stream_sessions",
		Help: "Current number of registered stream sessions.",
	})

	InvariantViolationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerd_invariant_violation_total",
		Help: "Total number of internal consistency violations, by rule.",
	}, []string{"rule"})

	// Scan

	ScanActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tunerd_scan_active",
		Help: "1 while the scan worker is processing a scan file.",
	})

	ScanEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerd_scan_entries_total",
		Help: "Total number of processed scan-file entries, by kind and result.",
	}, []string{"kind", "result"})

	ScanDiseqcAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerd_scan_diseqc_attempts_total",
		Help: "Total number of satellite diseqc probes, by diseqc source and outcome (found/empty).",
	}, []string{"diseqc", "outcome"})

	DiscoveredChannelsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tunerd_discovered_channels_total",
		Help: "Total number of discovered channels flushed to storage.",
	})

	// Monitor

	MonitorFaultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerd_monitor_faults_total",
		Help: "Total number of faults detected by the health monitor, by fault kind.",
	}, []string{"fault"})

	MonitorReclaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerd_monitor_reclaims_total",
		Help: "Total number of devices reclaimed by the health monitor, by fault kind.",
	}, []string{"fault"})

	MonitorCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tunerd_monitor_cycle_duration_seconds",
		Help:    "Duration of one health monitor cycle.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	// Alerting

	AlertDeliveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerd_alert_delivery_total",
		Help: "Total number of fault notifications per sink, by result (ok/error).",
	}, []string{"sink", "result"})

	AlertThrottledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerd_alert_throttled_total",
		Help: "Total number of fault notifications suppressed by the per-device throttle.",
	}, []string{"fault"})

	// Catalog

	CatalogCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerd_catalog_cache_total",
		Help: "Tuning record cache lookups, by result (hit/miss).",
	}, []string{"result"})
)

// SetDevicesByState publishes the device count for one state.
func SetDevicesByState(state string, n int) {
	DevicesByState.WithLabelValues(state).Set(float64(n))
}

// RecordAcquire counts one acquireStream outcome. result is "ok" or an
// error reason.
func RecordAcquire(path, result string) {
	if path == "" {
		path = "none"
	}
	StreamAcquireTotal.WithLabelValues(path, result).Inc()
}

// SetStreamSessions publishes the session registry size.
func SetStreamSessions(n int) {
	StreamSessions.Set(float64(n))
}

// RecordInvariantViolation counts a consistency violation.
func RecordInvariantViolation(rule string) {
	InvariantViolationTotal.WithLabelValues(rule).Inc()
}

// SetScanActive toggles the scan gauge.
func SetScanActive(active bool) {
	if active {
		ScanActive.Set(1)
		return
	}
	ScanActive.Set(0)
}

// RecordScanEntry counts one processed scan entry.
func RecordScanEntry(kind, result string) {
	ScanEntriesTotal.WithLabelValues(kind, result).Inc()
}

// RecordDiseqcAttempt counts one diseqc probe.
func RecordDiseqcAttempt(diseqc string, found bool) {
	outcome := "empty"
	if found {
		outcome = "found"
	}
	ScanDiseqcAttemptsTotal.WithLabelValues(diseqc, outcome).Inc()
}

// AddDiscoveredChannels counts channels written to storage.
func AddDiscoveredChannels(n int) {
	if n > 0 {
		DiscoveredChannelsTotal.Add(float64(n))
	}
}

// RecordFault counts one monitor fault and, if reclaimed, a reclaim.
func RecordFault(fault string, reclaimed bool) {
	MonitorFaultsTotal.WithLabelValues(fault).Inc()
	if reclaimed {
		MonitorReclaimsTotal.WithLabelValues(fault).Inc()
	}
}

// ObserveMonitorCycle records the duration of one monitor cycle in seconds.
func ObserveMonitorCycle(seconds float64) {
	MonitorCycleDuration.Observe(seconds)
}

// RecordAlertDelivery counts one sink delivery.
func RecordAlertDelivery(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	AlertDeliveryTotal.WithLabelValues(sink, result).Inc()
}

// RecordAlertThrottled counts one suppressed notification.
func RecordAlertThrottled(fault string) {
	AlertThrottledTotal.WithLabelValues(fault).Inc()
}

// RecordCatalogCache counts one cache lookup.
func RecordCatalogCache(hit bool) {
	if hit {
		CatalogCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	CatalogCacheTotal.WithLabelValues("miss").Inc()
}

// CounterValue returns the current value of one labelled counter (for testing).
func CounterValue(vec *prometheus.CounterVec, labels ...string) float64 {
	var m dto.Metric
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// GaugeValue returns the current value of g (for testing).
func GaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
