// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKindAliases(t *testing.T) {
	for in, want := range map[string]Kind{
		"satellite": KindSatellite,
		"DVB-S":     KindSatellite,
		"dvb-t":     KindTerrestrial,
		"Cable":     KindCable,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseKind("atsc")
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestParseMediaKindRejectsUnknown(t *testing.T) {
	k, ok := ParseMediaKind("Video")
	require.True(t, ok)
	assert.Equal(t, MediaVideo, k)

	_, ok = ParseMediaKind("teletext")
	assert.False(t, ok)
}

func TestDeviceBindAndReleaseMoveStateAndActivityTogether(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := NewDevice(DeviceRecord{ID: "dev-1", Kind: KindSatellite, Source: "astra"})
	d.Diag = Diagnostics{HasLock: true, Signal: 80, LostLock: true}

	d.Bind(ActivityStreaming, now)
	assert.True(t, d.IsStreaming())
	assert.Equal(t, Diagnostics{UpdatedAt: now}, d.Diag)

	d.Release()
	assert.True(t, d.IsIdle())
	assert.Equal(t, ActivityNone, d.Activity)
}

func TestTuningParamsMatchesByKind(t *testing.T) {
	sat := TuningParams{Frequency: 12578000, Polarity: "H", SymbolRate: 19850, CodeRateHP: "34", DiseqcSource: 1}
	other := sat
	assert.True(t, sat.Matches(KindSatellite, other))

	other.DiseqcSource = 2
	assert.False(t, sat.Matches(KindSatellite, other))
	// terrestrial comparison ignores satellite-only fields
	assert.True(t, sat.Matches(KindTerrestrial, other))

	ter := TuningParams{Frequency: 578000000, Bandwidth: "8", CodeRateHP: "34", CodeRateLP: "0", Modulation: "64", TransMode: "8", Guard: "32", Hierarchy: "0"}
	changed := ter
	changed.Guard = "16"
	assert.False(t, ter.Matches(KindTerrestrial, changed))
}

func TestDiscoveredChannelPIDListSorted(t *testing.T) {
	c := NewDiscoveredChannel(7, "dev-1")
	c.Pids[300] = MediaAudio
	c.Pids[101] = MediaVideo

	assert.Equal(t, []PID{{PID: 101, Kind: MediaVideo}, {PID: 300, Kind: MediaAudio}}, c.PIDList())

	clone := c.Clone()
	clone.Pids[400] = MediaAudio
	assert.Len(t, c.Pids, 2)
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", Reason(nil))
	assert.Equal(t, "not_found", Reason(fmt.Errorf("channel x: %w", ErrNotFound)))
	assert.Equal(t, "resource_exhausted", Reason(ErrResourceExhausted))
	assert.Equal(t, "invariant", Reason(fmt.Errorf("wrap: %w", ErrInvariant)))
	assert.Equal(t, "internal", Reason(errors.New("boom")))
}

func TestFaultKindReclaims(t *testing.T) {
	assert.True(t, FaultTimeout.Reclaims())
	assert.True(t, FaultNoSignal.Reclaims())
	for _, f := range []FaultKind{FaultBadSignal, FaultBadSNR, FaultBadBER, FaultBadUNC} {
		assert.False(t, f.Reclaims(), f)
	}
}
