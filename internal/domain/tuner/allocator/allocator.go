// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package allocator binds logical stream requests to tuner devices.
//
// A request reuses a Working device that is already streaming the same
// transponder (frequency and source) or acquires an Idle device of the same
// kind and source. The search-then-bind decision and the session table are
// serialised by one coarse lock.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/ports"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/registry"
	"github.com/ManuGH/tunerpool/internal/log"
	"github.com/ManuGH/tunerpool/internal/metrics"
	"github.com/ManuGH/tunerpool/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	pathReuse = "reuse"
	pathFree  = "free"
)

// Allocator is the Tuner Allocator.
type Allocator struct {
	reg     *registry.Registry
	catalog ports.Catalog
	logger  zerolog.Logger

	mu       sync.Mutex
	sessions map[string]model.StreamSession
}

// New creates an allocator over reg resolving channels through catalog.
func New(reg *registry.Registry, catalog ports.Catalog) *Allocator {
	return &Allocator{
		reg:      reg,
		catalog:  catalog,
		logger:   log.WithComponent("allocator"),
		sessions: make(map[string]model.StreamSession),
	}
}

// AcquireStream resolves channelID, binds a device and registers sessionID.
// On failure no session is registered and no device is changed.
func (a *Allocator) AcquireStream(ctx context.Context, sessionID, channelID string) (model.StreamSession, error) {
	ctx, span := telemetry.Tracer("tunerpool.allocator").Start(ctx, "allocator.acquire")
	defer span.End()
	span.SetAttributes(telemetry.StreamAttributes(sessionID, channelID)...)

	logger := log.WithContext(ctx, a.logger).With().
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldChannelID, channelID).
		Logger()

	rec, err := a.catalog.GetTuningRecord(ctx, channelID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			err = fmt.Errorf("lookup channel %q: %w", channelID, err)
		}
		a.fail(span, "", err)
		return model.StreamSession{}, err
	}
	span.SetAttributes(telemetry.DeviceAttributes("", string(rec.Kind), rec.Source, rec.Params.Frequency)...)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.sessions[sessionID]; dup {
		err := fmt.Errorf("session %q: %w", sessionID, model.ErrAlreadyBound)
		a.fail(span, "", err)
		return model.StreamSession{}, err
	}

	now := a.reg.Now()
	dev, path, err := a.bind(rec, now)
	if err != nil {
		if errors.Is(err, model.ErrInvariant) {
			metrics.RecordInvariantViolation("reuse_params_mismatch")
			logger.Error().Err(err).
				Str(log.FieldEvent, "stream.invariant_violation").
				Str(log.FieldDeviceID, dev.ID).
				Msg("reusable device tuning differs from catalog record")
		} else {
			logger.Warn().Err(err).
				Str(log.FieldEvent, "stream.rejected").
				Str(log.FieldKind, string(rec.Kind)).
				Str(log.FieldSource, rec.Source).
				Msg("no tuner available for stream")
		}
		a.fail(span, path, err)
		return model.StreamSession{}, err
	}

	sess := model.StreamSession{
		SessionID: sessionID,
		ChannelID: channelID,
		Name:      rec.Name,
		Number:    rec.Number,
		DeviceID:  dev.ID,
		StartedAt: now,
	}
	a.sessions[sessionID] = sess
	metrics.SetStreamSessions(len(a.sessions))
	metrics.RecordAcquire(path, "ok")
	span.SetAttributes(telemetry.DeviceAttributes(dev.ID, "", "", 0)...)
	span.SetAttributes(attribute.String(telemetry.StreamPathKey, path))

	logger.Info().
		Str(log.FieldEvent, "stream.acquired").
		Str(log.FieldDeviceID, dev.ID).
		Str("path", path).
		Int(log.FieldFrequency, dev.Tuning.Frequency).
		Msg("stream bound to device")
	return sess, nil
}

// bind runs the reuse search and then the free search. Caller holds a.mu.
func (a *Allocator) bind(rec model.TuningRecord, now time.Time) (model.Device, string, error) {
	dev, found, err := a.reg.FindAndUpdate(
		func(d model.Device) bool {
			return d.Kind == rec.Kind &&
				d.IsStreaming() &&
				!d.Diag.LostLock &&
				d.Source == rec.Source &&
				d.Tuning.Frequency == rec.Params.Frequency
		},
		func(d *model.Device) error {
			if !d.Tuning.Matches(d.Kind, rec.Params) {
				return fmt.Errorf("device %q tuned to %+v, channel %q wants %+v: %w",
					d.ID, d.Tuning, rec.ChannelID, rec.Params, model.ErrInvariant)
			}
			d.Bind(model.ActivityStreaming, now)
			return nil
		},
	)
	if found {
		return dev, pathReuse, err
	}

	dev, found, err = a.reg.FindAndUpdate(
		func(d model.Device) bool {
			return d.Kind == rec.Kind &&
				d.IsIdle() &&
				!d.Diag.LostLock &&
				d.Source == rec.Source
		},
		func(d *model.Device) error {
			d.Tuning = rec.Params
			d.Bind(model.ActivityStreaming, now)
			return nil
		},
	)
	if found {
		return dev, pathFree, err
	}
	return model.Device{}, "", fmt.Errorf("%s channel %q on source %q: %w",
		rec.Kind.DisplayName(), rec.ChannelID, rec.Source, model.ErrResourceExhausted)
}

func (a *Allocator) fail(span trace.Span, path string, err error) {
	reason := model.Reason(err)
	metrics.RecordAcquire(path, reason)
	telemetry.RecordError(span, err, reason)
}

// ReleaseStream removes sessionID. Unknown ids are a no-op. The device is
// left untouched; the dispatch layer releases it once no session uses it.
func (a *Allocator) ReleaseStream(sessionID string) (model.StreamSession, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.sessions[sessionID]
	if !ok {
		return model.StreamSession{}, false
	}
	delete(a.sessions, sessionID)
	metrics.SetStreamSessions(len(a.sessions))
	a.logger.Info().
		Str(log.FieldEvent, "stream.released").
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldDeviceID, sess.DeviceID).
		Msg("stream session released")
	return sess, true
}

// Session returns the session registered under sessionID.
func (a *Allocator) Session(sessionID string) (model.StreamSession, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.sessions[sessionID]
	return sess, ok
}

// Sessions returns all sessions ordered by start time, then id.
func (a *Allocator) Sessions() []model.StreamSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.StreamSession, 0, len(a.sessions))
	for _, s := range a.sessions {
		out = append(out, s)
	}
	sortSessions(out)
	return out
}

// SessionsOnDevice returns the sessions bound to deviceID.
func (a *Allocator) SessionsOnDevice(deviceID string) []model.StreamSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.onDeviceLocked(deviceID)
}

// SessionNames lists the display names of the sessions bound to deviceID.
func (a *Allocator) SessionNames(deviceID string) []string {
	sessions := a.SessionsOnDevice(deviceID)
	names := make([]string, 0, len(sessions))
	for _, s := range sessions {
		names = append(names, s.Name)
	}
	return names
}

// ReleaseIfUnused runs release for deviceID while holding the allocation
// lock, but only when no session references the device any more. It reports
// whether release ran.
func (a *Allocator) ReleaseIfUnused(deviceID string, release func()) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.onDeviceLocked(deviceID)) > 0 {
		return false
	}
	release()
	return true
}

// DropDevice removes every session bound to deviceID and returns them.
func (a *Allocator) DropDevice(deviceID string) []model.StreamSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	dropped := a.onDeviceLocked(deviceID)
	for _, s := range dropped {
		delete(a.sessions, s.SessionID)
	}
	metrics.SetStreamSessions(len(a.sessions))
	return dropped
}

// Clear removes all sessions.
func (a *Allocator) Clear() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.sessions)
	a.sessions = make(map[string]model.StreamSession)
	metrics.SetStreamSessions(0)
	return n
}

func (a *Allocator) onDeviceLocked(deviceID string) []model.StreamSession {
	var out []model.StreamSession
	for _, s := range a.sessions {
		if s.DeviceID == deviceID {
			out = append(out, s)
		}
	}
	sortSessions(out)
	return out
}

func sortSessions(s []model.StreamSession) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].StartedAt.Equal(s[j].StartedAt) {
			return s[i].StartedAt.Before(s[j].StartedAt)
		}
		return s[i].SessionID < s[j].SessionID
	})
}
