// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package stub provides a scripted capture backend for tests and dry runs.
package stub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/ports"
)

// Responder decides what a capture on dev reports.
type Responder func(dev model.Device) ([]model.SIEvent, error)

// Backend replays scripted SI events. It records every capture so tests can
// assert on the programmed tuning parameters.
type Backend struct {
	respond Responder
	hold    bool

	mu      sync.Mutex
	calls   []model.Device
	stops   int
	release chan struct{}
}

// Option customises a Backend.
type Option func(*Backend)

// WithHold makes StartCapture block after delivering its events until
// StopCapture is called or the context ends.
func WithHold() Option {
	return func(b *Backend) { b.hold = true }
}

// New returns a backend answering with respond. A nil respond reports
// nothing.
func New(respond Responder, opts ...Option) *Backend {
	b := &Backend{respond: respond}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) StartCapture(ctx context.Context, dev model.Device, handle ports.EventHandler) error {
	b.mu.Lock()
	b.calls = append(b.calls, dev)
	release := make(chan struct{})
	b.release = release
	b.mu.Unlock()

	var (
		events []model.SIEvent
		err    error
	)
	if b.respond != nil {
		events, err = b.respond(dev)
	}
	for _, ev := range events {
		handle(ev)
	}
	if err != nil {
		return err
	}
	if b.hold {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *Backend) StopCapture() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stops++
	if b.release != nil {
		close(b.release)
		b.release = nil
	}
}

// Calls returns the devices passed to StartCapture, in order.
func (b *Backend) Calls() []model.Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Device(nil), b.calls...)
}

// Stops returns how often StopCapture was called.
func (b *Backend) Stops() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stops
}

// Started waits until at least n captures have begun. It reports false if
// ctx ends first.
func (b *Backend) Started(ctx context.Context, n int) bool {
	for {
		b.mu.Lock()
		got := len(b.calls)
		b.mu.Unlock()
		if got >= n {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		default:
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// Echo reports one free-to-air channel per transponder, numbered after the
// frequency, on the first diseqc source only. It backs dry runs.
func Echo() Responder {
	return func(dev model.Device) ([]model.SIEvent, error) {
		if dev.Kind == model.KindSatellite && dev.Tuning.DiseqcSource != 0 {
			return nil, nil
		}
		n := dev.Tuning.Frequency
		return []model.SIEvent{
			model.ServiceAnnouncement{Number: n, Name: fmt.Sprintf("%s %d", dev.Kind.DisplayName(), n), Provider: "stub", ActualTS: true},
			model.ProgramMap{Number: n, PID: 0x100, MediaKind: string(model.MediaVideo)},
			model.ProgramMap{Number: n, PID: 0x101, MediaKind: string(model.MediaAudio)},
		}, nil
	}
}

var _ ports.Backend = (*Backend)(nil)
