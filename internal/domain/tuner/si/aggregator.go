// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package si merges service announcements and program maps reported during
// one scan attempt into discovered-channel records.
package si

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/ports"
	"github.com/ManuGH/tunerpool/internal/log"
	"github.com/ManuGH/tunerpool/internal/metrics"
	"github.com/rs/zerolog"
)

// DeviceLookup returns the current state of a device.
type DeviceLookup interface {
	Get(id string) (model.Device, bool)
}

// Aggregator is the SI Aggregator. Events may arrive on a backend reader
// goroutine while the scan worker calls FlushAndClear, so the working set is
// guarded by a mutex.
type Aggregator struct {
	devices DeviceLookup
	sink    ports.ChannelSink
	logger  zerolog.Logger

	mu       sync.Mutex
	deviceID string
	channels map[int]*model.DiscoveredChannel
}

// New returns an aggregator persisting into sink.
func New(devices DeviceLookup, sink ports.ChannelSink) *Aggregator {
	return &Aggregator{
		devices:  devices,
		sink:     sink,
		logger:   log.WithComponent("si"),
		channels: make(map[int]*model.DiscoveredChannel),
	}
}

// Begin attributes subsequent events to deviceID.
func (a *Aggregator) Begin(deviceID string) {
	a.mu.Lock()
	a.deviceID = deviceID
	a.mu.Unlock()
}

// End detaches the aggregator from its device. Events received afterwards
// are dropped.
func (a *Aggregator) End() {
	a.mu.Lock()
	a.deviceID = ""
	a.mu.Unlock()
}

// Handle dispatches an SI event to the matching entry point. It has the
// ports.EventHandler signature.
func (a *Aggregator) Handle(ev model.SIEvent) {
	switch e := ev.(type) {
	case model.ServiceAnnouncement:
		a.OnServiceAnnouncement(e)
	case model.ProgramMap:
		a.OnProgramMap(e)
	default:
		a.logger.Debug().Str("type", fmt.Sprintf("%T", ev)).Msg("ignoring unknown SI event")
	}
}

// OnServiceAnnouncement records name, provider and scrambled flag. Entries
// for other transport streams are ignored.
func (a *Aggregator) OnServiceAnnouncement(e model.ServiceAnnouncement) {
	if !e.ActualTS {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := a.channelLocked(e.Number)
	if ch == nil {
		return
	}
	ch.Name = e.Name
	ch.Provider = e.Provider
	ch.Scrambled = e.Scrambled
}

// OnProgramMap records one elementary stream. Kinds other than video and
// audio are discarded.
func (a *Aggregator) OnProgramMap(e model.ProgramMap) {
	kind, ok := model.ParseMediaKind(e.MediaKind)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := a.channelLocked(e.Number)
	if ch == nil {
		return
	}
	ch.Pids[e.PID] = kind
}

func (a *Aggregator) channelLocked(number int) *model.DiscoveredChannel {
	if a.deviceID == "" {
		a.logger.Debug().Int(log.FieldChannelNumber, number).Msg("SI event without active scan device")
		return nil
	}
	ch, ok := a.channels[number]
	if !ok {
		ch = model.NewDiscoveredChannel(number, a.deviceID)
		a.channels[number] = ch
	}
	return ch
}

// Found returns the number of channels discovered in the current attempt.
func (a *Aggregator) Found() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.channels)
}

// Channels returns copies of the working set ordered by channel number.
func (a *Aggregator) Channels() []model.DiscoveredChannel {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() []model.DiscoveredChannel {
	out := make([]model.DiscoveredChannel, 0, len(a.channels))
	for _, ch := range a.channels {
		out = append(out, ch.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// FlushAndClear persists every discovered channel with its device's current
// tuning and empties the working set. The set is cleared before any storage
// error is returned so stale channels never leak into the next attempt.
// It returns the number of channels in the set.
func (a *Aggregator) FlushAndClear(ctx context.Context) (int, error) {
	a.mu.Lock()
	batch := a.snapshotLocked()
	a.channels = make(map[int]*model.DiscoveredChannel)
	a.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}

	var errs []error
	snaps := make(map[string]model.TuningSnapshot)
	saved := 0
	for _, ch := range batch {
		snap, ok := snaps[ch.DeviceID]
		if !ok {
			dev, found := a.devices.Get(ch.DeviceID)
			if !found {
				errs = append(errs, fmt.Errorf("channel %d: device %q: %w", ch.Number, ch.DeviceID, model.ErrNotFound))
				continue
			}
			snap = model.SnapshotOf(dev)
			snaps[ch.DeviceID] = snap
		}
		if err := a.sink.SaveDiscoveredChannel(ctx, snap, ch); err != nil {
			errs = append(errs, fmt.Errorf("channel %d: %w", ch.Number, err))
			continue
		}
		saved++
		a.logger.Info().
			Str(log.FieldEvent, "si.channel_saved").
			Str(log.FieldDeviceID, ch.DeviceID).
			Int(log.FieldChannelNumber, ch.Number).
			Str("name", ch.Name).
			Int(log.FieldFrequency, snap.Params.Frequency).
			Int("pids", len(ch.Pids)).
			Msg("discovered channel stored")
	}
	metrics.AddDiscoveredChannels(saved)

	if len(errs) > 0 {
		return len(batch), fmt.Errorf("flush %d discovered channels: %w: %w",
			len(batch), model.ErrPersistenceFailure, errors.Join(errs...))
	}
	return len(batch), nil
}
