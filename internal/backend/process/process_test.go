// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package process

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type reports struct {
	mu    sync.Mutex
	diags map[string]model.Diagnostics
}

func (r *reports) ReportDiagnostics(id string, d model.Diagnostics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.diags == nil {
		r.diags = make(map[string]model.Diagnostics)
	}
	r.diags[id] = d
	return nil
}

type events struct {
	mu  sync.Mutex
	got []model.SIEvent
}

func (e *events) handle(ev model.SIEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, ev)
}

func shell(t *testing.T, script string, rep *reports) *Backend {
	t.Helper()
	// the trailing --tune arguments land in $0 and $1
	b, err := New(Config{Command: "sh", Args: []string{"-c", script}, Grace: 200 * time.Millisecond}, rep)
	require.NoError(t, err)
	return b
}

func satDevice() model.Device {
	return model.Device{
		ID:      "sat-0",
		Kind:    model.KindSatellite,
		Adapter: 1,
		Tuning:  model.TuningParams{Frequency: 11836, Polarity: "H", SymbolRate: 27500, DiseqcSource: 2},
	}
}

func TestStartCaptureDeliversHelperLines(t *testing.T) {
	script := `
echo '{"type":"sdt","number":7,"name":"Das Erste","provider":"ARD","actual_ts":true}'
echo 'not json'
echo '{"type":"pmt","number":7,"pid":101,"media_kind":"video"}'
echo '{"type":"stats","has_lock":true,"signal":80,"snr":60,"rate":4200}'
echo '{"type":"nit"}'
`
	rep := &reports{}
	ev := &events{}
	b := shell(t, script, rep)

	require.NoError(t, b.StartCapture(context.Background(), satDevice(), ev.handle))

	assert.Equal(t, []model.SIEvent{
		model.ServiceAnnouncement{Number: 7, Name: "Das Erste", Provider: "ARD", ActualTS: true},
		model.ProgramMap{Number: 7, PID: 101, MediaKind: "video"},
	}, ev.got)
	assert.Equal(t, model.Diagnostics{HasLock: true, Signal: 80, SNR: 60, Rate: 4200}, rep.diags["sat-0"])
}

func TestStartCaptureNonZeroExitIsTuningFailure(t *testing.T) {
	b := shell(t, "exit 3", nil)
	err := b.StartCapture(context.Background(), satDevice(), func(model.SIEvent) {})
	require.ErrorIs(t, err, model.ErrTuningFailure)
}

func TestStartCaptureMissingBinaryIsTuningFailure(t *testing.T) {
	b, err := New(Config{Command: "/nonexistent/tunerd-capture"}, nil)
	require.NoError(t, err)
	err = b.StartCapture(context.Background(), satDevice(), func(model.SIEvent) {})
	require.ErrorIs(t, err, model.ErrTuningFailure)
}

func TestStopCaptureTerminatesHelper(t *testing.T) {
	b := shell(t, "sleep 30", nil)

	done := make(chan error, 1)
	go func() { done <- b.StartCapture(context.Background(), satDevice(), func(model.SIEvent) {}) }()

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.stops) == 1
	}, 2*time.Second, 5*time.Millisecond)
	b.StopCapture()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("capture did not stop")
	}
}

func TestStartCaptureHonoursDeadline(t *testing.T) {
	b := shell(t, "sleep 30", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := b.StartCapture(ctx, satDevice(), func(model.SIEvent) {})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestArgsCarryTuningRequest(t *testing.T) {
	b, err := New(Config{Command: "capture", Args: []string{"--verbose"}}, nil)
	require.NoError(t, err)

	args, err := b.Args(satDevice())
	require.NoError(t, err)
	require.Len(t, args, 3)
	assert.Equal(t, "--verbose", args[0])
	assert.Equal(t, "--tune", args[1])

	var req tuneRequest
	require.NoError(t, json.Unmarshal([]byte(args[2]), &req))
	assert.Equal(t, "sat-0", req.DeviceID)
	assert.Equal(t, 1, req.Adapter)
	assert.Equal(t, 2, req.Params.DiseqcSource)
}

func TestNewRequiresCommand(t *testing.T) {
	_, err := New(Config{}, nil)
	require.ErrorIs(t, err, model.ErrConfiguration)
}
