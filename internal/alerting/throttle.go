// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package alerting

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/ports"
	"github.com/ManuGH/tunerpool/internal/metrics"
)

// ThrottleConfig limits repeats of the same (device, fault) pair.
type ThrottleConfig struct {
	Interval time.Duration
	Burst    int
}

func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{Interval: 10 * time.Minute, Burst: 1}
}

// Throttle suppresses soft faults that repeat faster than the configured
// interval. Reclaiming faults always pass.
type Throttle struct {
	next ports.FaultNotifier
	cfg  ThrottleConfig
	now  func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewThrottle(next ports.FaultNotifier, cfg ThrottleConfig) *Throttle {
	def := DefaultThrottleConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	return &Throttle{
		next:     next,
		cfg:      cfg,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (t *Throttle) NotifyFault(ctx context.Context, ev model.FaultEvent) error {
	if ev.Kind.Reclaims() {
		t.Forget(ev.DeviceID)
	} else if !t.allow(ev) {
		metrics.RecordAlertThrottled(string(ev.Kind))
		return nil
	}
	return t.next.NotifyFault(ctx, ev)
}

func (t *Throttle) allow(ev model.FaultEvent) bool {
	key := ev.DeviceID + "|" + string(ev.Kind)

	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.cfg.Interval), t.cfg.Burst)
		t.limiters[key] = l
	}
	return l.AllowN(t.now(), 1)
}

// Forget drops limiter state for a device, e.g. after it was reclaimed.
func (t *Throttle) Forget(deviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.limiters {
		if strings.HasPrefix(key, deviceID+"|") {
			delete(t.limiters, key)
		}
	}
}
