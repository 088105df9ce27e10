// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package scan drives one device through the tuning entries of a scan file
// and stores the channels the SI aggregator discovers on each attempt.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/ports"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/registry"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/si"
	"github.com/ManuGH/tunerpool/internal/log"
	"github.com/ManuGH/tunerpool/internal/metrics"
	"github.com/ManuGH/tunerpool/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultDiseqcSources is the number of diseqc switch positions probed per
// satellite entry.
const DefaultDiseqcSources = 5

// errStopped ends an entry early after StopScan.
var errStopped = errors.New("scan stopped")

// Status is a point-in-time view of the scan worker.
type Status struct {
	State            string `json:"state"`
	DeviceID         string `json:"device_id,omitempty"`
	ScanFile         string `json:"scan_file,omitempty"`
	StartedAt        int64  `json:"started_at,omitempty"`
	FinishedAt       int64  `json:"finished_at,omitempty"`
	TotalEntries     int    `json:"total_entries"`
	ProcessedEntries int    `json:"processed_entries"`
	FailedEntries    int    `json:"failed_entries"`
	Discovered       int    `json:"discovered"`
	LastError        string `json:"last_error,omitempty"`
}

// Values of Status.State.
const (
	StateIdle     = "idle"
	StateScanning = "scanning"
	StateComplete = "complete"
	StateStopped  = "stopped"
)

// Config tunes the orchestrator.
type Config struct {
	// DiseqcSources is the number of switch positions probed (0..n-1).
	DiseqcSources int
	// CaptureWindow bounds one backend capture. Zero leaves it to the backend.
	CaptureWindow time.Duration
}

// Orchestrator is the Scan Orchestrator. It owns one worker goroutine (Run)
// that sleeps between scans.
type Orchestrator struct {
	reg     *registry.Registry
	backend ports.Backend
	agg     *si.Aggregator
	conv    OptionConverter
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time

	trigger chan struct{}
	stop    atomic.Bool

	mu       sync.Mutex
	releaser ports.DeviceReleaser
	deviceID string
	lines    []Line
	status   Status
}

// New creates an orchestrator. The aggregator must persist into the same
// storage the caller reads discovered channels from.
func New(reg *registry.Registry, backend ports.Backend, agg *si.Aggregator, cfg Config) *Orchestrator {
	if cfg.DiseqcSources <= 0 {
		cfg.DiseqcSources = DefaultDiseqcSources
	}
	return &Orchestrator{
		reg:     reg,
		backend: backend,
		agg:     agg,
		conv:    NewOptionConverter(),
		cfg:     cfg,
		logger:  log.WithComponent("scan"),
		now:     time.Now,
		trigger: make(chan struct{}, 1),
		status:  Status{State: StateIdle},
	}
}

// SetReleaser registers the owner told when a scan finishes with its device.
func (o *Orchestrator) SetReleaser(r ports.DeviceReleaser) {
	o.mu.Lock()
	o.releaser = r
	o.mu.Unlock()
}

// IsScanning reports whether a device is assigned to the worker.
func (o *Orchestrator) IsScanning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deviceID != ""
}

// CurrentDevice returns the device being scanned.
func (o *Orchestrator) CurrentDevice() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deviceID, o.deviceID != ""
}

// Status returns the worker status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// StartScan reads path and hands deviceID with its entries to the worker.
// It fails with ErrBusy while another scan is assigned.
func (o *Orchestrator) StartScan(deviceID, path string) error {
	if _, ok := o.reg.Get(deviceID); !ok {
		return fmt.Errorf("scan device %q: %w", deviceID, model.ErrNotFound)
	}
	lines, err := ReadScanFile(path)
	if err != nil {
		return err
	}
	return o.start(deviceID, path, lines)
}

// StartScanLines is StartScan with already-read scan lines.
func (o *Orchestrator) StartScanLines(deviceID string, lines []Line) error {
	if _, ok := o.reg.Get(deviceID); !ok {
		return fmt.Errorf("scan device %q: %w", deviceID, model.ErrNotFound)
	}
	return o.start(deviceID, "", lines)
}

func (o *Orchestrator) start(deviceID, path string, lines []Line) error {
	o.mu.Lock()
	if o.deviceID != "" {
		current := o.deviceID
		o.mu.Unlock()
		return fmt.Errorf("device %q is scanning: %w", current, model.ErrBusy)
	}
	o.deviceID = deviceID
	o.lines = append([]Line(nil), lines...)
	o.status = Status{
		State:        StateScanning,
		DeviceID:     deviceID,
		ScanFile:     path,
		StartedAt:    o.now().Unix(),
		TotalEntries: len(lines),
	}
	o.stop.Store(false)
	o.mu.Unlock()

	o.logger.Info().
		Str(log.FieldEvent, "scan.started").
		Str(log.FieldDeviceID, deviceID).
		Str(log.FieldPath, path).
		Int("entries", len(lines)).
		Msg("scan requested")

	select {
	case o.trigger <- struct{}{}:
	default:
	}
	return nil
}

// StopScan asks the active capture to stop. The worker honours it at the
// next safe point. It is a no-op when nothing is being scanned.
func (o *Orchestrator) StopScan() {
	if !o.IsScanning() {
		return
	}
	o.stop.Store(true)
	o.backend.StopCapture()
	o.logger.Info().Str(log.FieldEvent, "scan.stop_requested").Msg("scan stop requested")
}

// Run is the worker loop. It returns when ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.trigger:
			o.doScan(ctx)
		}
	}
}

func (o *Orchestrator) doScan(ctx context.Context) {
	o.mu.Lock()
	deviceID, lines := o.deviceID, o.lines
	o.mu.Unlock()
	if deviceID == "" {
		return
	}

	metrics.SetScanActive(true)
	logger := o.logger.With().Str(log.FieldDeviceID, deviceID).Logger()
	logger.Debug().Msg("scan worker started")

	stopped := false
	for _, line := range lines {
		if o.stop.Load() || ctx.Err() != nil {
			stopped = true
			break
		}
		err := o.processLine(ctx, deviceID, line)
		o.recordEntry(err)
		switch {
		case err == nil:
		case errors.Is(err, errStopped):
			stopped = true
		default:
			logger.Error().Err(err).
				Str(log.FieldEvent, "scan.entry_failed").
				Int(log.FieldLine, line.Number).
				Str(log.FieldEntry, line.Text).
				Str("reason", model.Reason(err)).
				Msg("scan entry failed")
		}
		if stopped {
			break
		}
	}

	o.finish(ctx, deviceID, stopped)
	metrics.SetScanActive(false)
}

func (o *Orchestrator) recordEntry(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.ProcessedEntries++
	if err != nil && !errors.Is(err, errStopped) {
		o.status.FailedEntries++
		o.status.LastError = err.Error()
	}
}

func (o *Orchestrator) finish(ctx context.Context, deviceID string, stopped bool) {
	o.agg.End()

	o.mu.Lock()
	releaser := o.releaser
	o.mu.Unlock()
	if releaser != nil {
		releaser.ReleaseDevice(context.WithoutCancel(ctx), deviceID, model.ActivityScanning)
	} else {
		o.reg.Release(deviceID)
	}

	o.mu.Lock()
	o.deviceID = ""
	o.lines = nil
	o.status.FinishedAt = o.now().Unix()
	o.status.State = StateComplete
	if stopped {
		o.status.State = StateStopped
	}
	status := o.status
	o.mu.Unlock()

	o.logger.Info().
		Str(log.FieldEvent, "scan.finished").
		Str(log.FieldDeviceID, deviceID).
		Str("state", status.State).
		Int("entries", status.ProcessedEntries).
		Int("failed", status.FailedEntries).
		Int("discovered", status.Discovered).
		Msg("scan finished")
}

func (o *Orchestrator) processLine(ctx context.Context, deviceID string, line Line) error {
	entry, err := ParseEntry(line, o.conv)
	if err != nil {
		metrics.RecordScanEntry("unknown", "invalid")
		return err
	}
	dev, ok := o.reg.Get(deviceID)
	if !ok {
		return fmt.Errorf("scan device %q: %w", deviceID, model.ErrNotFound)
	}
	if dev.Kind != entry.Kind {
		o.logger.Warn().
			Str(log.FieldDeviceID, dev.ID).
			Int(log.FieldLine, line.Number).
			Str(log.FieldKind, string(dev.Kind)).
			Msgf("%s entry on %s device", entry.Kind.DisplayName(), dev.Kind.DisplayName())
	}

	ctx, span := telemetry.Tracer("tunerpool.scan").Start(ctx, "scan.entry")
	defer span.End()
	span.SetAttributes(telemetry.DeviceAttributes(dev.ID, string(entry.Kind), dev.Source, entry.Params.Frequency)...)
	span.SetAttributes(attribute.Int(telemetry.ScanLineKey, line.Number))

	switch entry.Kind {
	case model.KindSatellite:
		err = o.scanSatellite(ctx, deviceID, entry)
	default:
		err = o.scanSingle(ctx, deviceID, entry)
	}
	result := "ok"
	if err != nil {
		result = model.Reason(err)
		telemetry.RecordError(span, err, result)
	}
	metrics.RecordScanEntry(string(entry.Kind), result)
	return err
}

// scanSatellite probes the diseqc positions in order and stops at the first
// one that yields a channel. Every attempt is flushed and cleared.
func (o *Orchestrator) scanSatellite(ctx context.Context, deviceID string, entry model.TuningEntry) error {
	for diseqc := 0; diseqc < o.cfg.DiseqcSources; diseqc++ {
		if o.stop.Load() || ctx.Err() != nil {
			return errStopped
		}
		dev, err := o.program(deviceID, entry, diseqc)
		if err != nil {
			return err
		}
		if err := o.capture(ctx, dev); err != nil {
			// a wrong diseqc position is expected to fail the tune
			o.logger.Debug().Err(err).
				Str(log.FieldDeviceID, deviceID).
				Int(log.FieldDiseqc, diseqc).
				Msg("capture failed on diseqc probe")
		}
		n, err := o.flush(ctx)
		metrics.RecordDiseqcAttempt(strconv.Itoa(diseqc), n > 0)
		trace.SpanFromContext(ctx).AddEvent("diseqc.probe",
			trace.WithAttributes(telemetry.ScanEntryAttributes(entry.Line, diseqc, n)...))
		o.logger.Debug().
			Str(log.FieldDeviceID, deviceID).
			Int(log.FieldLine, entry.Line).
			Int(log.FieldDiseqc, diseqc).
			Int("found", n).
			Msg("diseqc probe finished")
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
	}
	if o.stop.Load() {
		return errStopped
	}
	return fmt.Errorf("line %d: nothing found on %d diseqc sources: %w",
		entry.Line, o.cfg.DiseqcSources, model.ErrTuningFailure)
}

// scanSingle programs the entry once and captures once. The working set is
// flushed and cleared even when the capture fails.
func (o *Orchestrator) scanSingle(ctx context.Context, deviceID string, entry model.TuningEntry) error {
	dev, err := o.program(deviceID, entry, 0)
	if err != nil {
		return err
	}
	captureErr := o.capture(ctx, dev)
	_, flushErr := o.flush(ctx)
	if captureErr != nil {
		if !errors.Is(captureErr, model.ErrTuningFailure) {
			captureErr = fmt.Errorf("%w: %w", model.ErrTuningFailure, captureErr)
		}
		return errors.Join(fmt.Errorf("line %d: %w", entry.Line, captureErr), flushErr)
	}
	return flushErr
}

func (o *Orchestrator) program(deviceID string, entry model.TuningEntry, diseqc int) (model.Device, error) {
	return o.reg.Update(deviceID, func(d *model.Device) error {
		d.Tuning = entry.Params
		if entry.Kind == model.KindSatellite {
			d.Tuning.DiseqcSource = diseqc
		}
		return nil
	})
}

func (o *Orchestrator) capture(ctx context.Context, dev model.Device) error {
	if o.cfg.CaptureWindow > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.CaptureWindow)
		defer cancel()
	}
	o.agg.Begin(dev.ID)
	defer o.agg.End()
	err := o.backend.StartCapture(ctx, dev, o.agg.Handle)
	if errors.Is(err, context.DeadlineExceeded) {
		// capture window elapsed; whatever arrived is the attempt's result
		return nil
	}
	return err
}

func (o *Orchestrator) flush(ctx context.Context) (int, error) {
	n, err := o.agg.FlushAndClear(context.WithoutCancel(ctx))
	if n > 0 {
		o.mu.Lock()
		o.status.Discovered += n
		o.mu.Unlock()
	}
	return n, err
}
