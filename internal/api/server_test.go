// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/dispatch"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/scan"
	"github.com/ManuGH/tunerpool/internal/health"
)

type fakeDispatcher struct {
	mu          sync.Mutex
	streamErr   error
	scanErr     error
	stopped     []string
	scanStopped []string
	lastScan    dispatch.ScanRequest
	status      scan.Status
}

func (f *fakeDispatcher) StartStream(_ context.Context, req dispatch.StreamRequest) (dispatch.StreamResponse, error) {
	if f.streamErr != nil {
		return dispatch.StreamResponse{Status: model.StatusFailed, Reason: model.Reason(f.streamErr)}, f.streamErr
	}
	return dispatch.StreamResponse{Status: model.StatusOK, DeviceID: "sat-0", Name: "Das Erste", Number: "1"}, nil
}

func (f *fakeDispatcher) StopStream(_ context.Context, sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, sessionID)
}

func (f *fakeDispatcher) StartScan(_ context.Context, req dispatch.ScanRequest) (dispatch.ScanResponse, error) {
	f.mu.Lock()
	f.lastScan = req
	f.mu.Unlock()
	if f.scanErr != nil {
		return dispatch.ScanResponse{Status: model.StatusFailed}, f.scanErr
	}
	return dispatch.ScanResponse{Status: model.StatusOK, DeviceID: "sat-1"}, nil
}

func (f *fakeDispatcher) StopScan(_ context.Context, deviceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanStopped = append(f.scanStopped, deviceID)
}

func (f *fakeDispatcher) Devices() []dispatch.DeviceStatus {
	return []dispatch.DeviceStatus{{Index: 1, ID: "sat-0", Name: "dvb00", Kind: "DVB-S", State: "IDLE"}}
}

func (f *fakeDispatcher) Sessions() []model.StreamSession { return nil }

func (f *fakeDispatcher) ScanStatus() scan.Status { return f.status }

func newTestServer(f *fakeDispatcher) *Server {
	return New(Config{}, f, health.NewManager("test"))
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) Problem {
	t.Helper()
	var p Problem
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	return p
}

func TestStartStream_OK(t *testing.T) {
	s := newTestServer(&fakeDispatcher{})
	w := do(t, s, http.MethodPost, "/api/v1/streams", `{"session_id":"s1","channel_id":"das-erste"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp dispatch.StreamResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, model.StatusOK, resp.Status)
	assert.Equal(t, "sat-0", resp.DeviceID)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestStartStream_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		code   int
		reason string
	}{
		{fmt.Errorf("channel x: %w", model.ErrNotFound), http.StatusNotFound, "not_found"},
		{model.ErrAlreadyBound, http.StatusConflict, "already_bound"},
		{model.ErrResourceExhausted, http.StatusServiceUnavailable, "resource_exhausted"},
		{model.ErrConfiguration, http.StatusUnprocessableEntity, "configuration"},
		{model.ErrInvariant, http.StatusInternalServerError, "invariant"},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			s := newTestServer(&fakeDispatcher{streamErr: tt.err})
			w := do(t, s, http.MethodPost, "/api/v1/streams", `{"session_id":"s1","channel_id":"x"}`)

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
			p := decodeProblem(t, w)
			assert.Equal(t, model.StatusFailed, p.Status)
			assert.Equal(t, tt.reason, p.Reason)
			assert.Equal(t, tt.code, p.Code)
			assert.NotEmpty(t, p.RequestID)
		})
	}
}

func TestStartStream_BadBody(t *testing.T) {
	s := newTestServer(&fakeDispatcher{})

	w := do(t, s, http.MethodPost, "/api/v1/streams", `{"session_id":`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, s, http.MethodPost, "/api/v1/streams", `{"session":"s1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestStopStream_Idempotent(t *testing.T) {
	f := &fakeDispatcher{}
	s := newTestServer(f)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "/api/v1/streams/s1", "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "/api/v1/streams/s1", "").Code)
	assert.Equal(t, []string{"s1", "s1"}, f.stopped)
}

func TestScans(t *testing.T) {
	f := &fakeDispatcher{}
	s := newTestServer(f)

	w := do(t, s, http.MethodPost, "/api/v1/scans", `{"source":"astra","scan_file":"/etc/tunerd/astra.scan"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, dispatch.ScanRequest{Source: "astra", ScanFile: "/etc/tunerd/astra.scan"}, f.lastScan)

	f.scanErr = fmt.Errorf("device %q is scanning: %w", "sat-1", model.ErrBusy)
	w = do(t, s, http.MethodPost, "/api/v1/scans", `{"device_id":"sat-0","scan_file":"/x.scan"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "busy", decodeProblem(t, w).Reason)

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "/api/v1/scans/sat-1", "").Code)
	assert.Equal(t, []string{"sat-1"}, f.scanStopped)
}

func TestReadEndpoints(t *testing.T) {
	f := &fakeDispatcher{status: scan.Status{State: scan.StateScanning, DeviceID: "sat-1", TotalEntries: 4}}
	s := newTestServer(f)

	w := do(t, s, http.MethodGet, "/api/v1/devices", "")
	require.Equal(t, http.StatusOK, w.Code)
	var devs []dispatch.DeviceStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&devs))
	require.Len(t, devs, 1)
	assert.Equal(t, "DVB-S", devs[0].Kind)

	w = do(t, s, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(t, s, http.MethodGet, "/api/v1/scan", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&st))
	assert.Equal(t, true, st["scanning"])
	assert.Equal(t, "sat-1", st["device_id"])
	assert.EqualValues(t, 4, st["total_entries"])
}

func TestProbesAndMetrics(t *testing.T) {
	s := newTestServer(&fakeDispatcher{})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/readyz", "").Code)

	w := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(&fakeDispatcher{})
	w := do(t, s, http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeProblem(t, w).Reason)
}

func TestRateLimitedRoutes(t *testing.T) {
	s := New(Config{RateLimit: 1}, &fakeDispatcher{}, health.NewManager("test"))

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/v1/devices", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, s, http.MethodGet, "/api/v1/devices", "").Code)
	// probes are not limited
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(&fakeDispatcher{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
