// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package process implements the capture backend on top of an external
// helper. The helper tunes the frontend it is given and writes one JSON
// object per line to stdout:
//
//	{"type":"sdt","number":28106,"name":"Das Erste","provider":"ARD","scrambled":false,"actual_ts":true}
//	{"type":"pmt","number":28106,"pid":101,"media_kind":"video"}
//	{"type":"stats","has_lock":true,"signal":80,"snr":60,"ber":0,"unc":0,"rate":4200}
//
// A non-zero exit is a tuning failure.
package process

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/ports"
	xglog "github.com/ManuGH/tunerpool/internal/log"
	"github.com/ManuGH/tunerpool/internal/metrics"
	"github.com/ManuGH/tunerpool/internal/procgroup"
)

const defaultGrace = 2 * time.Second

// Config names the helper binary.
type Config struct {
	Command string
	Args    []string
	// Grace is how long the helper may take to exit after SIGTERM.
	Grace time.Duration
}

// tuneRequest is passed to the helper as the value of --tune.
type tuneRequest struct {
	DeviceID string             `json:"device_id"`
	Kind     model.Kind         `json:"kind"`
	Adapter  int                `json:"adapter"`
	Frontend int                `json:"frontend"`
	Params   model.TuningParams `json:"params"`
}

type line struct {
	Type string `json:"type"`

	Number    int    `json:"number"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	Scrambled bool   `json:"scrambled"`
	ActualTS  bool   `json:"actual_ts"`

	PID       int    `json:"pid"`
	MediaKind string `json:"media_kind"`

	HasLock bool `json:"has_lock"`
	Signal  int  `json:"signal"`
	SNR     int  `json:"snr"`
	BER     int  `json:"ber"`
	UNC     int  `json:"unc"`
	Rate    int  `json:"rate"`
}

// Backend runs one helper process per capture.
type Backend struct {
	cfg      Config
	reporter ports.DiagnosticsReporter
	logger   zerolog.Logger
	now      func() time.Time

	mu    sync.Mutex
	stops map[chan struct{}]struct{}
}

// New returns a backend. reporter receives stats lines and may be nil.
func New(cfg Config, reporter ports.DiagnosticsReporter) (*Backend, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("%w: capture helper command is required", model.ErrConfiguration)
	}
	if cfg.Grace <= 0 {
		cfg.Grace = defaultGrace
	}
	return &Backend{
		cfg:      cfg,
		reporter: reporter,
		logger:   xglog.WithComponent("backend"),
		now:      time.Now,
		stops:    make(map[chan struct{}]struct{}),
	}, nil
}

// Args returns the helper argument list for dev.
func (b *Backend) Args(dev model.Device) ([]string, error) {
	req, err := json.Marshal(tuneRequest{
		DeviceID: dev.ID,
		Kind:     dev.Kind,
		Adapter:  dev.Adapter,
		Frontend: dev.Frontend,
		Params:   dev.Tuning,
	})
	if err != nil {
		return nil, err
	}
	args := append([]string(nil), b.cfg.Args...)
	return append(args, "--tune", string(req)), nil
}

// StartCapture runs the helper until it exits, StopCapture is called or ctx
// ends. Events are delivered from a reader goroutine that finishes before
// StartCapture returns.
func (b *Backend) StartCapture(ctx context.Context, dev model.Device, handle ports.EventHandler) error {
	args, err := b.Args(dev)
	if err != nil {
		return err
	}

	cmd := exec.Command(b.cfg.Command, args...)
	procgroup.Set(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	start := b.now()
	if err := cmd.Start(); err != nil {
		metrics.ObserveCapture(string(dev.Kind), "failed", 0)
		return fmt.Errorf("start capture helper: %w: %w", model.ErrTuningFailure, err)
	}

	stop := make(chan struct{})
	b.mu.Lock()
	b.stops[stop] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.stops, stop)
		b.mu.Unlock()
	}()

	logger := b.logger.With().Str(xglog.FieldDeviceID, dev.ID).Int("pid", cmd.Process.Pid).Logger()
	logger.Debug().Str(xglog.FieldEvent, "capture.started").Int(xglog.FieldFrequency, dev.Tuning.Frequency).Msg("capture helper started")

	waitCh := make(chan error, 1)
	go func() {
		b.read(stdout, dev, handle, logger)
		// Wait only after stdout hit EOF
		waitCh <- cmd.Wait()
	}()

	var result string
	select {
	case err = <-waitCh:
		if err != nil {
			result = "failed"
			err = fmt.Errorf("capture helper on %s: %w: %w", dev.ID, model.ErrTuningFailure, err)
		} else {
			result = "ok"
		}
	case <-stop:
		_ = procgroup.Terminate(cmd, waitCh, b.cfg.Grace)
		result, err = "stopped", nil
	case <-ctx.Done():
		_ = procgroup.Terminate(cmd, waitCh, b.cfg.Grace)
		result, err = "deadline", ctx.Err()
	}

	metrics.ObserveCapture(string(dev.Kind), result, b.now().Sub(start))
	logger.Debug().Str(xglog.FieldEvent, "capture.finished").Str("result", result).Msg("capture helper finished")
	return err
}

// StopCapture terminates every running helper.
func (b *Backend) StopCapture() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for stop := range b.stops {
		close(stop)
		delete(b.stops, stop)
	}
}

func (b *Backend) read(r io.Reader, dev model.Device, handle ports.EventHandler, logger zerolog.Logger) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			metrics.IncCaptureLine("malformed")
			logger.Debug().Err(err).Msg("skipping malformed helper line")
			continue
		}
		metrics.IncCaptureLine(l.Type)

		switch l.Type {
		case "sdt":
			handle(model.ServiceAnnouncement{
				Number:    l.Number,
				Name:      l.Name,
				Provider:  l.Provider,
				Scrambled: l.Scrambled,
				ActualTS:  l.ActualTS,
			})
		case "pmt":
			handle(model.ProgramMap{Number: l.Number, PID: l.PID, MediaKind: l.MediaKind})
		case "stats":
			b.report(dev.ID, l, logger)
		default:
			logger.Debug().Str("type", l.Type).Msg("ignoring unknown helper line")
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn().Err(err).Msg("reading capture helper output failed")
		// drain so the helper does not block on a full pipe
		_, _ = io.Copy(io.Discard, r)
	}
}

func (b *Backend) report(deviceID string, l line, logger zerolog.Logger) {
	if b.reporter == nil {
		return
	}
	diag := model.Diagnostics{
		HasLock: l.HasLock,
		Signal:  l.Signal,
		SNR:     l.SNR,
		BER:     l.BER,
		UNC:     l.UNC,
		Rate:    l.Rate,
	}
	if err := b.reporter.ReportDiagnostics(deviceID, diag); err != nil {
		logger.Debug().Err(err).Msg("diagnostics not recorded")
	}
}

var _ ports.Backend = (*Backend)(nil)
