// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package alerting delivers device fault traps to the in-process bus and to
// external sinks.
package alerting

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ManuGH/tunerpool/internal/bus"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	xglog "github.com/ManuGH/tunerpool/internal/log"
	"github.com/ManuGH/tunerpool/internal/metrics"
)

// Sink is one named fault destination.
type Sink interface {
	Name() string
	NotifyFault(ctx context.Context, ev model.FaultEvent) error
}

// BusNotifier publishes fault events on the in-process bus.
type BusNotifier struct {
	Bus bus.Bus
}

func (BusNotifier) Name() string { return "bus" }

func (n BusNotifier) NotifyFault(ctx context.Context, ev model.FaultEvent) error {
	return n.Bus.Publish(ctx, model.TopicDeviceFault, ev)
}

// Fanout delivers each event to every sink. A failing sink does not stop the others.
type Fanout struct {
	sinks  []Sink
	logger zerolog.Logger
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, logger: xglog.WithComponent("alerting")}
}

// Sinks returns the configured sink names.
func (f *Fanout) Sinks() []string {
	out := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		out = append(out, s.Name())
	}
	return out
}

func (f *Fanout) NotifyFault(ctx context.Context, ev model.FaultEvent) error {
	var errs []error
	for _, s := range f.sinks {
		err := s.NotifyFault(ctx, ev)
		metrics.RecordAlertDelivery(s.Name(), err)
		if err != nil {
			f.logger.Warn().Err(err).
				Str(xglog.FieldEvent, "alert.delivery_failed").
				Str("sink", s.Name()).
				Str(xglog.FieldDeviceID, ev.DeviceID).
				Str(xglog.FieldFault, string(ev.Kind)).
				Msg("fault delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
