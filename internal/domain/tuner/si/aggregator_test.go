// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package si

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticDevices map[string]model.Device

func (s staticDevices) Get(id string) (model.Device, bool) {
	d, ok := s[id]
	return d, ok
}

type saved struct {
	snap model.TuningSnapshot
	ch   model.DiscoveredChannel
}

type memorySink struct {
	mu    sync.Mutex
	saved []saved
	err   error
}

func (m *memorySink) SaveDiscoveredChannel(_ context.Context, snap model.TuningSnapshot, ch model.DiscoveredChannel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, saved{snap: snap, ch: ch})
	return nil
}

func newAggregator(sink *memorySink) *Aggregator {
	devices := staticDevices{
		"sat-0": {ID: "sat-0", Kind: model.KindSatellite, Source: "astra", Tuning: model.TuningParams{Frequency: 11494, Polarity: "H", SymbolRate: 22000, DiseqcSource: 2}},
	}
	a := New(devices, sink)
	a.Begin("sat-0")
	return a
}

func TestServiceAnnouncementForOtherTransportStreamIsIgnored(t *testing.T) {
	a := newAggregator(&memorySink{})

	a.Handle(model.ServiceAnnouncement{Number: 7, Name: "Other", ActualTS: false})

	assert.Equal(t, 0, a.Found())
}

func TestProgramMapWithUnknownKindIsIgnored(t *testing.T) {
	a := newAggregator(&memorySink{})

	a.Handle(model.ProgramMap{Number: 7, PID: 0x200, MediaKind: "teletext"})
	assert.Equal(t, 0, a.Found())

	a.Handle(model.ServiceAnnouncement{Number: 7, Name: "Seven", ActualTS: true})
	a.Handle(model.ProgramMap{Number: 7, PID: 0x201, MediaKind: "subtitle"})
	require.Len(t, a.Channels(), 1)
	assert.Empty(t, a.Channels()[0].Pids, "unknown kinds must not mutate an existing record")
}

func TestEventOrderDoesNotChangeRecord(t *testing.T) {
	sdt := model.ServiceAnnouncement{Number: 1, Name: "Das Erste HD", Provider: "ARD", Scrambled: false, ActualTS: true}
	video := model.ProgramMap{Number: 1, PID: 5101, MediaKind: "video"}
	audio := model.ProgramMap{Number: 1, PID: 5102, MediaKind: "audio"}

	first := newAggregator(&memorySink{})
	first.Handle(sdt)
	first.Handle(video)
	first.Handle(audio)

	second := newAggregator(&memorySink{})
	second.Handle(audio)
	second.Handle(video)
	second.Handle(sdt)

	if diff := cmp.Diff(first.Channels(), second.Channels()); diff != "" {
		t.Fatalf("SDT/PMT order changed the record (-sdt-first +pmt-first):\n%s", diff)
	}
	ch := first.Channels()[0]
	assert.Equal(t, "sat-0", ch.DeviceID)
	assert.Equal(t, []model.PID{{PID: 5101, Kind: model.MediaVideo}, {PID: 5102, Kind: model.MediaAudio}}, ch.PIDList())
}

func TestLaterEventsOverwrite(t *testing.T) {
	a := newAggregator(&memorySink{})

	a.Handle(model.ServiceAnnouncement{Number: 3, Name: "old", Provider: "p1", Scrambled: true, ActualTS: true})
	a.Handle(model.ServiceAnnouncement{Number: 3, Name: "new", Provider: "p2", Scrambled: false, ActualTS: true})
	a.Handle(model.ProgramMap{Number: 3, PID: 100, MediaKind: "video"})
	a.Handle(model.ProgramMap{Number: 3, PID: 100, MediaKind: "audio"})

	require.Equal(t, 1, a.Found())
	ch := a.Channels()[0]
	assert.Equal(t, "new", ch.Name)
	assert.Equal(t, "p2", ch.Provider)
	assert.False(t, ch.Scrambled)
	assert.Equal(t, map[int]model.MediaKind{100: model.MediaAudio}, ch.Pids)
}

func TestEventsWithoutActiveDeviceAreDropped(t *testing.T) {
	a := newAggregator(&memorySink{})
	a.End()

	a.Handle(model.ServiceAnnouncement{Number: 1, ActualTS: true})
	assert.Equal(t, 0, a.Found())
}

func TestFlushAndClearPersistsWithDeviceTuning(t *testing.T) {
	sink := &memorySink{}
	a := newAggregator(sink)
	a.Handle(model.ServiceAnnouncement{Number: 2, Name: "Two", ActualTS: true})
	a.Handle(model.ProgramMap{Number: 1, PID: 10, MediaKind: "video"})

	n, err := a.FlushAndClear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, a.Found())

	require.Len(t, sink.saved, 2)
	assert.Equal(t, 1, sink.saved[0].ch.Number)
	assert.Equal(t, 2, sink.saved[1].ch.Number)
	assert.Equal(t, 2, sink.saved[0].snap.Params.DiseqcSource)
	assert.Equal(t, "astra", sink.saved[0].snap.Source)

	n, err = a.FlushAndClear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFlushAndClearClearsEvenWhenStorageFails(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	a := newAggregator(sink)
	a.Handle(model.ServiceAnnouncement{Number: 1, Name: "One", ActualTS: true})

	n, err := a.FlushAndClear(context.Background())
	require.ErrorIs(t, err, model.ErrPersistenceFailure)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, a.Found(), "working set must be empty after a failed flush")

	sink.err = nil
	n, err = a.FlushAndClear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, sink.saved, "stale channels must never be flushed twice")
}
