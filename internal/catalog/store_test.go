// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "catalog.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func sampleRecord() model.TuningRecord {
	return model.TuningRecord{
		ChannelID: "das-erste",
		Kind:      model.KindSatellite,
		Source:    "astra",
		Name:      "Das Erste",
		Provider:  "ARD",
		Number:    "28106",
		Params: model.TuningParams{
			Frequency:  11836,
			Polarity:   "H",
			SymbolRate: 27500,
			CodeRateHP: "34",
		},
	}
}

func TestTuningRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.GetTuningRecord(ctx, "das-erste")
	require.ErrorIs(t, err, model.ErrNotFound)

	want := sampleRecord()
	require.NoError(t, s.PutTuningRecord(ctx, want))

	got, err := s.GetTuningRecord(ctx, "das-erste")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}

	want.Params.Frequency = 12188
	require.NoError(t, s.PutTuningRecord(ctx, want))
	got, err = s.GetTuningRecord(ctx, "das-erste")
	require.NoError(t, err)
	assert.Equal(t, 12188, got.Params.Frequency)

	all, err := s.ListTuningRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteTuningRecord(ctx, "das-erste"))
	_, err = s.GetTuningRecord(ctx, "das-erste")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestPutTuningRecordRequiresID(t *testing.T) {
	s := openTestStore(t)
	err := s.PutTuningRecord(context.Background(), model.TuningRecord{})
	require.ErrorIs(t, err, model.ErrConfiguration)
}

func TestSeedDevicesKeepsExistingRows(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.PutDevice(ctx, model.DeviceRecord{
		ID: "sat-0", Name: "Renamed", Kind: model.KindSatellite, Adapter: 0, Frontend: 0, Source: "hotbird",
	}))
	require.NoError(t, s.SeedDevices(ctx, []model.DeviceRecord{
		{ID: "sat-0", Name: "Seed", Kind: model.KindSatellite, Source: "astra"},
		{ID: "ter-0", Name: "DVB-T", Kind: model.KindTerrestrial, Adapter: 1, Source: "local"},
	}))

	devs, err := s.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devs, 2)
	assert.Equal(t, "Renamed", devs[0].Name)
	assert.Equal(t, "hotbird", devs[0].Source)
	assert.Equal(t, "ter-0", devs[1].ID)
}

func TestSaveDiscoveredChannelReplacesPIDs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	snap := model.TuningSnapshot{
		DeviceID: "sat-0",
		Kind:     model.KindSatellite,
		Source:   "astra",
		Params:   model.TuningParams{Frequency: 11836, Polarity: "H", SymbolRate: 27500, DiseqcSource: 2},
	}
	ch := model.DiscoveredChannel{
		Number:   28106,
		DeviceID: "sat-0",
		Name:     "Das Erste",
		Provider: "ARD",
		Pids:     map[int]model.MediaKind{101: model.MediaVideo, 102: model.MediaAudio},
	}
	require.NoError(t, s.SaveDiscoveredChannel(ctx, snap, ch))

	ch.Pids = map[int]model.MediaKind{201: model.MediaVideo}
	ch.Scrambled = true
	require.NoError(t, s.SaveDiscoveredChannel(ctx, snap, ch))

	got, err := s.ListDiscovered(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)

	want := Discovered{
		Snapshot:     snap,
		Channel:      ch,
		DiscoveredAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Fatalf("discovered mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveDiscoveredChannelWrapsPersistenceFailure(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	err := s.SaveDiscoveredChannel(context.Background(),
		model.TuningSnapshot{DeviceID: "sat-0"}, model.DiscoveredChannel{Number: 1})
	require.ErrorIs(t, err, model.ErrPersistenceFailure)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.sqlite")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.PutTuningRecord(ctx, sampleRecord()))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.GetTuningRecord(ctx, "das-erste")
	require.NoError(t, err)
}
