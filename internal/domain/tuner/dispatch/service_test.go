// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/tunerpool/internal/backend/stub"
	"github.com/ManuGH/tunerpool/internal/bus"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/allocator"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/registry"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/scan"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/si"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mapCatalog map[string]model.TuningRecord

func (c mapCatalog) GetTuningRecord(_ context.Context, id string) (model.TuningRecord, error) {
	rec, ok := c[id]
	if !ok {
		return model.TuningRecord{}, fmt.Errorf("channel %q: %w", id, model.ErrNotFound)
	}
	return rec, nil
}

type nopSink struct {
	mu sync.Mutex
	n  int
}

func (s *nopSink) SaveDiscoveredChannel(context.Context, model.TuningSnapshot, model.DiscoveredChannel) error {
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
	return nil
}

type fixture struct {
	svc     *Service
	reg     *registry.Registry
	backend *stub.Backend
	dir     string
}

func newFixture(t *testing.T, opts ...stub.Option) *fixture {
	t.Helper()
	reg, err := registry.New([]model.DeviceRecord{
		{ID: "sat-0", Name: "dvb00", Kind: model.KindSatellite, Source: "astra"},
		{ID: "sat-1", Name: "dvb01", Kind: model.KindSatellite, Frontend: 1, Source: "astra"},
		{ID: "ter-0", Name: "dvb10", Kind: model.KindTerrestrial, Adapter: 1, Source: "city"},
	})
	require.NoError(t, err)
	catalog := mapCatalog{
		"one": {ChannelID: "one", Kind: model.KindSatellite, Source: "astra", Name: "One", Number: "1", Params: model.TuningParams{Frequency: 11836, Polarity: "H", SymbolRate: 27500}},
		"two": {ChannelID: "two", Kind: model.KindSatellite, Source: "astra", Name: "Two", Number: "2", Params: model.TuningParams{Frequency: 11836, Polarity: "H", SymbolRate: 27500}},
	}
	backend := stub.New(nil, opts...)
	orch := scan.New(reg, backend, si.New(reg, &nopSink{}), scan.Config{})
	svc := New(reg, allocator.New(reg, catalog), orch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = orch.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dvb-t.conf"),
		[]byte("T 578000000 8MHz 3/4 NONE QAM64 8k 1/32 NONE\n"), 0o600))
	return &fixture{svc: svc, reg: reg, backend: backend, dir: dir}
}

func (f *fixture) scanFile() string { return filepath.Join(f.dir, "dvb-t.conf") }

func (f *fixture) state(id string) model.Device {
	d, _ := f.reg.Get(id)
	return d
}

func TestStartStreamResponses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.StartStream(ctx, StreamRequest{SessionID: "s1", ChannelID: "one"})
	require.NoError(t, err)
	assert.Equal(t, StreamResponse{Status: model.StatusOK, DeviceID: "sat-0", Name: "One", Number: "1"}, resp)

	resp, err = f.svc.StartStream(ctx, StreamRequest{SessionID: "s2", ChannelID: "missing"})
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, StreamResponse{Status: model.StatusFailed, Reason: "not_found"}, resp)

	_, err = f.svc.StartStream(ctx, StreamRequest{ChannelID: "one"})
	require.ErrorIs(t, err, model.ErrConfiguration)
}

func TestStopStreamReleasesDeviceWithLastSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.StartStream(ctx, StreamRequest{SessionID: "s1", ChannelID: "one"})
	require.NoError(t, err)
	_, err = f.svc.StartStream(ctx, StreamRequest{SessionID: "s2", ChannelID: "two"})
	require.NoError(t, err)

	f.svc.StopStream(ctx, "s1")
	assert.True(t, f.state("sat-0").IsStreaming(), "device still serves s2")

	f.svc.StopStream(ctx, "s2")
	assert.True(t, f.state("sat-0").IsIdle())

	f.svc.StopStream(ctx, "s2")
	assert.Empty(t, f.svc.Sessions())
}

func TestStartScanBySourceAndDevice(t *testing.T) {
	f := newFixture(t, stub.WithHold())
	ctx := context.Background()

	resp, err := f.svc.StartScan(ctx, ScanRequest{Source: "city", ScanFile: f.scanFile()})
	require.NoError(t, err)
	assert.Equal(t, ScanResponse{Status: model.StatusOK, DeviceID: "ter-0"}, resp)
	d := f.state("ter-0")
	assert.Equal(t, model.StateWorking, d.State)
	assert.Equal(t, model.ActivityScanning, d.Activity)

	_, err = f.svc.StartScan(ctx, ScanRequest{DeviceID: "sat-0", ScanFile: f.scanFile()})
	require.ErrorIs(t, err, model.ErrBusy)
	assert.True(t, f.state("sat-0").IsIdle())

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.True(t, f.backend.Started(waitCtx, 1))
	f.svc.StopScan(ctx, "ter-0")
	require.Eventually(t, func() bool { return f.state("ter-0").IsIdle() }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.svc.ScanStatus().State != "scanning" }, 2*time.Second, 5*time.Millisecond)
	f.svc.StopScan(ctx, "ter-0")
}

func TestStartScanRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartScan(ctx, ScanRequest{Source: "nowhere", ScanFile: f.scanFile()})
	require.ErrorIs(t, err, model.ErrResourceExhausted)

	_, err = f.svc.StartScan(ctx, ScanRequest{ScanFile: f.scanFile()})
	require.ErrorIs(t, err, model.ErrConfiguration)

	_, err = f.svc.StartScan(ctx, ScanRequest{DeviceID: "ter-0"})
	require.ErrorIs(t, err, model.ErrConfiguration)

	resp, err := f.svc.StartScan(ctx, ScanRequest{DeviceID: "ter-0", ScanFile: filepath.Join(f.dir, "missing.conf")})
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, model.StatusFailed, resp.Status)
	assert.True(t, f.state("ter-0").IsIdle(), "a failed start must release the device")

	_, err = f.svc.StartStream(ctx, StreamRequest{SessionID: "s1", ChannelID: "one"})
	require.NoError(t, err)
	_, err = f.svc.StartScan(ctx, ScanRequest{DeviceID: "sat-0", ScanFile: f.scanFile()})
	require.ErrorIs(t, err, model.ErrResourceExhausted)
	assert.True(t, f.state("sat-0").IsStreaming())
}

func TestScanCompletionReleasesDevice(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.StartScan(context.Background(), ScanRequest{DeviceID: "ter-0", ScanFile: f.scanFile()})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.state("ter-0").IsIdle() }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, f.backend.Calls(), 1)
}

func TestStopScanReleasesOrphanedScanningDevice(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Bind("sat-1", model.ActivityScanning)
	require.NoError(t, err)

	f.svc.StopScan(context.Background(), "sat-1")
	assert.True(t, f.state("sat-1").IsIdle())
}

func TestReleaseDeviceIgnoresOtherActivity(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StartStream(context.Background(), StreamRequest{SessionID: "s1", ChannelID: "one"})
	require.NoError(t, err)

	f.svc.ReleaseDevice(context.Background(), "sat-0", model.ActivityScanning)
	assert.True(t, f.state("sat-0").IsStreaming())
}

func TestFaultEventsDropSessionsAndStopScan(t *testing.T) {
	f := newFixture(t, stub.WithHold())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.svc.StartStream(ctx, StreamRequest{SessionID: "s1", ChannelID: "one"})
	require.NoError(t, err)
	_, err = f.svc.StartScan(ctx, ScanRequest{DeviceID: "ter-0", ScanFile: f.scanFile()})
	require.NoError(t, err)
	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.True(t, f.backend.Started(waitCtx, 1))

	b := bus.NewMemoryBus()
	listening := make(chan struct{})
	go func() {
		defer close(listening)
		_ = f.svc.ListenFaults(ctx, b)
	}()

	for _, id := range []string{"sat-0", "ter-0"} {
		f.reg.Release(id)
	}
	// the listener subscribes asynchronously, so keep publishing until it acts
	require.Eventually(t, func() bool {
		_ = b.Publish(ctx, model.TopicDeviceFault, model.FaultEvent{DeviceID: "sat-0", Kind: model.FaultBadSNR})
		for _, id := range []string{"sat-0", "ter-0"} {
			_ = b.Publish(ctx, model.TopicDeviceFault, model.FaultEvent{DeviceID: id, Kind: model.FaultNoSignal, Reclaimed: true})
		}
		return len(f.svc.Sessions()) == 0 && f.svc.ScanStatus().State != "scanning"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-listening
}

func TestCleanResetsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.StartStream(ctx, StreamRequest{SessionID: "s1", ChannelID: "one"})
	require.NoError(t, err)
	_, err = f.reg.Bind("ter-0", model.ActivityScanning)
	require.NoError(t, err)

	f.svc.Clean()

	assert.Empty(t, f.svc.Sessions())
	for _, d := range f.reg.List() {
		assert.True(t, d.IsIdle(), d.ID)
	}
}

func TestDevicesStatusTable(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StartStream(context.Background(), StreamRequest{SessionID: "s1", ChannelID: "one"})
	require.NoError(t, err)
	require.NoError(t, f.reg.ReportDiagnostics("sat-0", model.Diagnostics{HasLock: true, Signal: 70, SNR: 50, BER: 3, UNC: 1, Rate: 4200}))

	rows := f.svc.Devices()
	require.Len(t, rows, 3)
	assert.Equal(t, DeviceStatus{
		Index: 1, ID: "sat-0", Name: "dvb00", Kind: "DVB-S", Source: "astra",
		State: "WORKING", Activity: "STREAMING",
		HasLock: true, Signal: 70, SNR: 50, BER: 3, UNC: 1, Rate: 4200,
		Sessions: []string{"One"},
	}, rows[0])
	assert.Equal(t, 3, rows[2].Index)
	assert.Equal(t, "DVB-T", rows[2].Kind)
	assert.Zero(t, rows[2].Signal)
	assert.Empty(t, rows[2].Sessions)
}
