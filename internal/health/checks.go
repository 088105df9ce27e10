// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/persistence/sqlite"
)

// FuncChecker adapts a plain function to the Checker interface.
type FuncChecker struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

func NewFuncChecker(name string, fn func(ctx context.Context) CheckResult) *FuncChecker {
	return &FuncChecker{name: name, fn: fn}
}

func (c *FuncChecker) Name() string { return c.name }

func (c *FuncChecker) Check(ctx context.Context) CheckResult { return c.fn(ctx) }

// Pinger is satisfied by the catalog store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker reports unhealthy when the target does not answer a ping.
type PingChecker struct {
	name    string
	target  Pinger
	timeout time.Duration
}

func NewPingChecker(name string, target Pinger) *PingChecker {
	return &PingChecker{name: name, target: target, timeout: 2 * time.Second}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.target.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// StateCounter is satisfied by the device registry.
type StateCounter interface {
	Counts() map[model.State]int
}

// DevicePoolChecker is unhealthy with no devices at all and degraded when
// every device is Working.
type DevicePoolChecker struct {
	counter StateCounter
}

func NewDevicePoolChecker(counter StateCounter) *DevicePoolChecker {
	return &DevicePoolChecker{counter: counter}
}

func (c *DevicePoolChecker) Name() string { return "devices" }

func (c *DevicePoolChecker) Check(_ context.Context) CheckResult {
	counts := c.counter.Counts()
	idle, working := counts[model.StateIdle], counts[model.StateWorking]
	msg := fmt.Sprintf("%d idle, %d working", idle, working)
	switch {
	case idle+working == 0:
		return CheckResult{Status: StatusUnhealthy, Message: "no devices configured"}
	case idle == 0:
		return CheckResult{Status: StatusDegraded, Message: msg}
	default:
		return CheckResult{Status: StatusHealthy, Message: msg}
	}
}

// IntegrityChecker runs a SQLite quick_check against the catalog file and
// caches the verdict for ttl.
type IntegrityChecker struct {
	path string
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	last    CheckResult
	checked time.Time
}

func NewIntegrityChecker(path string, ttl time.Duration) *IntegrityChecker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &IntegrityChecker{path: path, ttl: ttl, now: time.Now}
}

func (c *IntegrityChecker) Name() string { return "catalog_integrity" }

func (c *IntegrityChecker) Check(ctx context.Context) CheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.checked.IsZero() && now.Sub(c.checked) < c.ttl {
		return c.last
	}

	issues, err := sqlite.VerifyIntegrity(ctx, c.path, "quick")
	switch {
	case err != nil:
		c.last = CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	case len(issues) > 0:
		c.last = CheckResult{Status: StatusUnhealthy, Message: strings.Join(issues, "; ")}
	default:
		c.last = CheckResult{Status: StatusHealthy}
	}
	c.checked = now
	return c.last
}
