// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package alerting

import (
	"context"
	"time"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/resilience"
)

// Guarded wraps an external sink with a circuit breaker so an unreachable
// broker is skipped instead of retried on every fault.
type Guarded struct {
	Sink    Sink
	Breaker *resilience.CircuitBreaker
}

// Guard returns sink behind a breaker named after it.
func Guard(sink Sink, threshold int, reset time.Duration, opts ...resilience.Option) *Guarded {
	return &Guarded{
		Sink:    sink,
		Breaker: resilience.NewCircuitBreaker("alert_"+sink.Name(), threshold, reset, opts...),
	}
}

func (g *Guarded) Name() string { return g.Sink.Name() }

func (g *Guarded) NotifyFault(ctx context.Context, ev model.FaultEvent) error {
	return g.Breaker.Execute(func() error {
		return g.Sink.NotifyFault(ctx, ev)
	})
}

// Open reports whether the breaker currently rejects deliveries.
func (g *Guarded) Open() bool {
	return g.Breaker.State() == resilience.StateOpen
}

// OpenSinks lists guarded sinks whose breaker is open.
func (f *Fanout) OpenSinks() []string {
	var out []string
	for _, s := range f.sinks {
		if g, ok := s.(*Guarded); ok && g.Open() {
			out = append(out, g.Name())
		}
	}
	return out
}
