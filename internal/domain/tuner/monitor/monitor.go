// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package monitor periodically inspects device diagnostics, emits faults and
// reclaims devices that lost their signal.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/ports"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/registry"
	"github.com/ManuGH/tunerpool/internal/log"
	"github.com/ManuGH/tunerpool/internal/metrics"
	"github.com/rs/zerolog"
)

// DefaultInterval is the default check period.
const DefaultInterval = 60 * time.Second

// Thresholds are the soft link-quality limits checked on locked devices.
type Thresholds struct {
	MinSignal int `yaml:"signal"`
	MinSNR    int `yaml:"snr"`
	MaxBER    int `yaml:"ber"`
	MaxUNC    int `yaml:"unc"`
}

// DefaultThresholds returns the limits used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{MinSignal: 20, MinSNR: 10, MaxBER: 1000, MaxUNC: 100}
}

// Config holds monitor settings.
type Config struct {
	Interval   time.Duration
	Thresholds Thresholds
}

// Monitor is the Health Monitor.
type Monitor struct {
	reg      *registry.Registry
	notifier ports.FaultNotifier
	recorder ports.DiagnosticsRecorder
	interval time.Duration
	logger   zerolog.Logger

	mu         sync.RWMutex
	thresholds Thresholds
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithRecorder stores each Working device's diagnostics once per cycle.
func WithRecorder(r ports.DiagnosticsRecorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

// New creates a monitor over reg that reports faults to notifier.
func New(reg *registry.Registry, notifier ports.FaultNotifier, cfg Config, opts ...Option) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	m := &Monitor{
		reg:        reg,
		notifier:   notifier,
		interval:   cfg.Interval,
		thresholds: cfg.Thresholds,
		logger:     log.WithComponent("monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Interval returns the check period.
func (m *Monitor) Interval() time.Duration { return m.interval }

// SetThresholds replaces the soft limits. It takes effect on the next cycle.
func (m *Monitor) SetThresholds(t Thresholds) {
	m.mu.Lock()
	m.thresholds = t
	m.mu.Unlock()
	m.logger.Info().
		Int("signal", t.MinSignal).
		Int("snr", t.MinSNR).
		Int("ber", t.MaxBER).
		Int("unc", t.MaxUNC).
		Msg("monitor thresholds updated")
}

// Thresholds returns the current soft limits.
func (m *Monitor) Thresholds() Thresholds {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.thresholds
}

// Run checks all devices every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", m.interval).Msg("health monitor started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.CheckOnce(ctx)
		}
	}
}

// CheckOnce runs exactly one cycle and returns the faults it emitted.
func (m *Monitor) CheckOnce(ctx context.Context) []model.FaultEvent {
	start := time.Now()
	defer func() { metrics.ObserveMonitorCycle(time.Since(start).Seconds()) }()

	limits := m.Thresholds()
	var faults []model.FaultEvent
	for _, id := range m.reg.IDs() {
		faults = append(faults, m.checkDevice(id, limits)...)
	}

	for _, ev := range faults {
		m.report(ctx, ev)
	}
	return faults
}

// checkDevice evaluates one device under the registry lock.
func (m *Monitor) checkDevice(id string, limits Thresholds) []model.FaultEvent {
	now := m.reg.Now()
	var (
		faults  []model.FaultEvent
		working bool
		seen    model.Device
	)
	_, err := m.reg.Update(id, func(d *model.Device) error {
		// lost-lock only latches for one cycle; the timestamp is kept
		d.Diag.LostLock = false
		if d.IsIdle() {
			return nil
		}
		working = true
		seen = *d

		fault := func(kind model.FaultKind, detail string) {
			faults = append(faults, model.FaultEvent{
				DeviceID:   d.ID,
				DeviceName: d.Name,
				Kind:       kind,
				Reclaimed:  kind.Reclaims(),
				Detail:     detail,
				At:         now,
			})
		}

		switch age := now.Sub(d.Diag.UpdatedAt); {
		case age > m.interval:
			fault(model.FaultTimeout, fmt.Sprintf("no diagnostics for %s", age.Truncate(time.Second)))
		case !d.Diag.HasLock:
			fault(model.FaultNoSignal, "frontend has no lock")
		default:
			if d.Diag.Signal < limits.MinSignal {
				fault(model.FaultBadSignal, fmt.Sprintf("signal %d < %d", d.Diag.Signal, limits.MinSignal))
			}
			if d.Diag.SNR < limits.MinSNR {
				fault(model.FaultBadSNR, fmt.Sprintf("snr %d < %d", d.Diag.SNR, limits.MinSNR))
			}
			if d.Diag.BER > limits.MaxBER {
				fault(model.FaultBadBER, fmt.Sprintf("ber %d > %d", d.Diag.BER, limits.MaxBER))
			}
			if d.Diag.UNC > limits.MaxUNC {
				fault(model.FaultBadUNC, fmt.Sprintf("unc %d > %d", d.Diag.UNC, limits.MaxUNC))
			}
			return nil
		}

		d.Diag.LostLock = true
		d.Release()
		return nil
	})
	if err != nil {
		// device vanished between IDs and Update
		m.logger.Warn().Err(err).Str(log.FieldDeviceID, id).Msg("health check skipped")
		return nil
	}
	if working && m.recorder != nil {
		m.recorder.RecordDiagnostics(seen)
	}
	return faults
}

// report never fails outward; there is no caller to tell.
func (m *Monitor) report(ctx context.Context, ev model.FaultEvent) {
	metrics.RecordFault(string(ev.Kind), ev.Reclaimed)

	logger := m.logger.With().
		Str(log.FieldEvent, "monitor.fault").
		Str(log.FieldDeviceID, ev.DeviceID).
		Str(log.FieldFault, string(ev.Kind)).
		Bool("reclaimed", ev.Reclaimed).
		Str("detail", ev.Detail).
		Logger()
	if ev.Reclaimed {
		logger.Warn().Msg("device reclaimed")
	} else {
		logger.Info().Msg("device link quality degraded")
	}

	if m.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("fault notifier panicked")
		}
	}()
	if err := m.notifier.NotifyFault(ctx, ev); err != nil {
		logger.Error().Err(err).Msg("fault notification failed")
	}
}
