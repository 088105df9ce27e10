// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestBackendReplaysEventsAndRecordsCalls(t *testing.T) {
	boom := errors.New("tune failed")
	b := New(func(dev model.Device) ([]model.SIEvent, error) {
		return []model.SIEvent{model.ServiceAnnouncement{Number: 1, ActualTS: true}}, boom
	})

	var got []model.SIEvent
	err := b.StartCapture(context.Background(), model.Device{ID: "sat-0"}, func(ev model.SIEvent) { got = append(got, ev) })
	require.ErrorIs(t, err, boom)
	assert.Len(t, got, 1, "events before the error are still delivered")
	require.Len(t, b.Calls(), 1)
	assert.Equal(t, "sat-0", b.Calls()[0].ID)
}

func TestBackendHoldReleasedByStopCapture(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New(nil, WithHold())
	done := make(chan error, 1)
	go func() {
		done <- b.StartCapture(context.Background(), model.Device{ID: "ter-0"}, func(model.SIEvent) {})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.True(t, b.Started(ctx, 1))
	b.StopCapture()
	require.NoError(t, <-done)
	assert.Equal(t, 1, b.Stops())
}

func TestEchoOnlyAnswersFirstDiseqc(t *testing.T) {
	respond := Echo()

	events, err := respond(model.Device{Kind: model.KindSatellite, Tuning: model.TuningParams{Frequency: 11494, DiseqcSource: 1}})
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = respond(model.Device{Kind: model.KindSatellite, Tuning: model.TuningParams{Frequency: 11494}})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, 11494, events[0].ChannelNumber())
}
