// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package dispatch exposes the stream and scan operations to callers and
// reacts to device fault events.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ManuGH/tunerpool/internal/bus"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/allocator"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/registry"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/scan"
	"github.com/ManuGH/tunerpool/internal/log"
	"github.com/rs/zerolog"
)

// StreamRequest asks for a channel to be streamed under a session id.
type StreamRequest struct {
	SessionID string `json:"session_id"`
	ChannelID string `json:"channel_id"`
}

// StreamResponse reports the bound device.
type StreamResponse struct {
	Status   model.Status `json:"status"`
	DeviceID string       `json:"device_id,omitempty"`
	Name     string       `json:"name,omitempty"`
	Number   string       `json:"number,omitempty"`
	Reason   string       `json:"reason,omitempty"`
}

// ScanRequest selects a device by id or by signal source.
type ScanRequest struct {
	DeviceID string `json:"device_id,omitempty"`
	Source   string `json:"source,omitempty"`
	ScanFile string `json:"scan_file"`
}

// ScanResponse reports the device a scan started on.
type ScanResponse struct {
	Status   model.Status `json:"status"`
	DeviceID string       `json:"device_id,omitempty"`
	Reason   string       `json:"reason,omitempty"`
}

var errNotBound = errors.New("device not bound to activity")

// Service is the dispatch layer.
type Service struct {
	reg    *registry.Registry
	alloc  *allocator.Allocator
	orch   *scan.Orchestrator
	logger zerolog.Logger

	// scanMu serialises scan start/stop decisions.
	scanMu sync.Mutex
}

// New wires the service and registers it as the orchestrator's releaser.
func New(reg *registry.Registry, alloc *allocator.Allocator, orch *scan.Orchestrator) *Service {
	s := &Service{
		reg:    reg,
		alloc:  alloc,
		orch:   orch,
		logger: log.WithComponent("dispatch"),
	}
	orch.SetReleaser(s)
	return s
}

// StartStream binds a device for req. Failures return a FAILED response
// together with the error.
func (s *Service) StartStream(ctx context.Context, req StreamRequest) (StreamResponse, error) {
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.ChannelID) == "" {
		err := fmt.Errorf("%w: session_id and channel_id are required", model.ErrConfiguration)
		return failedStream(err), err
	}
	sess, err := s.alloc.AcquireStream(ctx, req.SessionID, req.ChannelID)
	if err != nil {
		return failedStream(err), err
	}
	return StreamResponse{
		Status:   model.StatusOK,
		DeviceID: sess.DeviceID,
		Name:     sess.Name,
		Number:   sess.Number,
	}, nil
}

func failedStream(err error) StreamResponse {
	return StreamResponse{Status: model.StatusFailed, Reason: model.Reason(err)}
}

// StopStream ends a session. The device returns to Idle once no session
// references it. Unknown sessions are ignored.
func (s *Service) StopStream(ctx context.Context, sessionID string) {
	sess, ok := s.alloc.ReleaseStream(sessionID)
	if !ok {
		return
	}
	s.alloc.ReleaseIfUnused(sess.DeviceID, func() {
		s.ReleaseDevice(ctx, sess.DeviceID, model.ActivityStreaming)
	})
}

// StartScan binds a device for scanning and hands it to the orchestrator.
func (s *Service) StartScan(ctx context.Context, req ScanRequest) (ScanResponse, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	if strings.TrimSpace(req.ScanFile) == "" {
		err := fmt.Errorf("%w: scan_file is required", model.ErrConfiguration)
		return failedScan(err), err
	}
	if cur, busy := s.orch.CurrentDevice(); busy {
		err := fmt.Errorf("device %q is scanning: %w", cur, model.ErrBusy)
		return failedScan(err), err
	}

	dev, err := s.bindForScan(req)
	if err != nil {
		return failedScan(err), err
	}

	if err := s.orch.StartScan(dev.ID, req.ScanFile); err != nil {
		s.ReleaseDevice(ctx, dev.ID, model.ActivityScanning)
		return failedScan(err), err
	}
	s.logger.Info().
		Str(log.FieldEvent, "scan.bound").
		Str(log.FieldDeviceID, dev.ID).
		Str(log.FieldSource, dev.Source).
		Msg("device bound for scan")
	return ScanResponse{Status: model.StatusOK, DeviceID: dev.ID}, nil
}

func (s *Service) bindForScan(req ScanRequest) (model.Device, error) {
	now := s.reg.Now()
	bind := func(d *model.Device) error {
		d.Bind(model.ActivityScanning, now)
		return nil
	}

	switch {
	case req.DeviceID != "":
		return s.reg.Update(req.DeviceID, func(d *model.Device) error {
			if !d.IsIdle() || d.Diag.LostLock {
				return fmt.Errorf("device %q is %s: %w", d.ID, d.State, model.ErrResourceExhausted)
			}
			return bind(d)
		})
	case req.Source != "":
		dev, found, err := s.reg.FindAndUpdate(func(d model.Device) bool {
			return d.IsIdle() && !d.Diag.LostLock && d.Source == req.Source
		}, bind)
		if err != nil {
			return model.Device{}, err
		}
		if !found {
			return model.Device{}, fmt.Errorf("no idle device on source %q: %w", req.Source, model.ErrResourceExhausted)
		}
		return dev, nil
	}
	return model.Device{}, fmt.Errorf("%w: device_id or source is required", model.ErrConfiguration)
}

func failedScan(err error) ScanResponse {
	return ScanResponse{Status: model.StatusFailed, Reason: model.Reason(err)}
}

// StopScan stops the scan running on deviceID. A device left Scanning
// without a running scan is released directly. Calling it twice is harmless.
func (s *Service) StopScan(ctx context.Context, deviceID string) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	if cur, ok := s.orch.CurrentDevice(); ok && cur == deviceID {
		s.orch.StopScan()
		return
	}
	s.ReleaseDevice(ctx, deviceID, model.ActivityScanning)
}

// ReleaseDevice returns deviceID to Idle if it is still bound to activity.
// A device that was reclaimed or re-bound in the meantime is left alone.
func (s *Service) ReleaseDevice(_ context.Context, deviceID string, activity model.Activity) {
	_, err := s.reg.Update(deviceID, func(d *model.Device) error {
		if d.State != model.StateWorking || d.Activity != activity {
			return errNotBound
		}
		d.Release()
		return nil
	})
	switch {
	case err == nil:
		s.logger.Info().
			Str(log.FieldEvent, "device.released").
			Str(log.FieldDeviceID, deviceID).
			Str(log.FieldOldState, string(activity)).
			Str(log.FieldNewState, string(model.StateIdle)).
			Msg("device released")
	case errors.Is(err, errNotBound):
	default:
		s.logger.Debug().Err(err).Str(log.FieldDeviceID, deviceID).Msg("release skipped")
	}
}

// HandleFault drops the sessions and scan bound to a reclaimed device.
func (s *Service) HandleFault(_ context.Context, ev model.FaultEvent) {
	if !ev.Reclaimed {
		return
	}
	logger := s.logger.With().
		Str(log.FieldDeviceID, ev.DeviceID).
		Str(log.FieldFault, string(ev.Kind)).
		Logger()

	for _, sess := range s.alloc.DropDevice(ev.DeviceID) {
		logger.Warn().
			Str(log.FieldEvent, "stream.dropped").
			Str(log.FieldSessionID, sess.SessionID).
			Str(log.FieldChannelID, sess.ChannelID).
			Msg("session dropped after device fault")
	}
	if cur, ok := s.orch.CurrentDevice(); ok && cur == ev.DeviceID {
		logger.Warn().Str(log.FieldEvent, "scan.aborted").Msg("scan stopped after device fault")
		s.orch.StopScan()
	}
}

// ListenFaults consumes fault events from b until ctx is done.
func (s *Service) ListenFaults(ctx context.Context, b bus.Bus) error {
	sub, err := b.Subscribe(ctx, model.TopicDeviceFault)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", model.TopicDeviceFault, err)
	}
	defer sub.Close()

	bus.Consume(ctx, sub, func(ctx context.Context, msg bus.Message) error {
		ev, ok := msg.(model.FaultEvent)
		if !ok {
			return fmt.Errorf("unexpected %T on %s", msg, model.TopicDeviceFault)
		}
		s.HandleFault(ctx, ev)
		return nil
	}, func(err error) {
		s.logger.Warn().Err(err).Msg("fault event ignored")
	})
	return nil
}

// Clean drops every session, stops a running scan and sets all devices Idle.
func (s *Service) Clean() {
	n := s.alloc.Clear()
	s.orch.StopScan()
	s.reg.ReleaseAll()
	s.logger.Info().Int("sessions", n).Msg("tuner state cleaned")
}
