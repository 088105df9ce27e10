// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ports declares the collaborators the tuner core consumes.
package ports

import (
	"context"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
)

// EventHandler receives SI events while a capture is active.
type EventHandler func(model.SIEvent)

// Backend programs the RF hardware and demultiplexes service information.
//
// StartCapture tunes dev and blocks for the backend's capture window,
// delivering zero or more events to handle. It returns an error wrapping
// model.ErrTuningFailure when the frontend cannot be programmed.
// StopCapture aborts an in-flight capture; it is safe to call at any time.
type Backend interface {
	StartCapture(ctx context.Context, dev model.Device, handle EventHandler) error
	StopCapture()
}

// Catalog resolves logical channel ids to persisted tuning records.
type Catalog interface {
	GetTuningRecord(ctx context.Context, channelID string) (model.TuningRecord, error)
}

// ChannelSink persists channels discovered during a scan.
type ChannelSink interface {
	SaveDiscoveredChannel(ctx context.Context, snap model.TuningSnapshot, ch model.DiscoveredChannel) error
}

// FaultNotifier delivers fault events to dependents and alerting sinks.
type FaultNotifier interface {
	NotifyFault(ctx context.Context, ev model.FaultEvent) error
}

// DeviceReleaser is told when an activity on a device has finished.
type DeviceReleaser interface {
	ReleaseDevice(ctx context.Context, deviceID string, activity model.Activity)
}

// DiagnosticsRecorder stores per-cycle diagnostics history.
type DiagnosticsRecorder interface {
	RecordDiagnostics(dev model.Device)
}

// DiagnosticsReporter accepts fresh diagnostics from a backend.
type DiagnosticsReporter interface {
	ReportDiagnostics(deviceID string, diag model.Diagnostics) error
}
