// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package registry holds the in-memory device table shared by the allocator,
// the scan orchestrator and the health monitor.
//
// All device reads and writes go through Registry, which serialises them on
// one lock. Callers receive copies and never hold the lock across backend
// calls.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/metrics"
)

// Registry is the Device Registry.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*model.Device
	order   []string
	now     func() time.Time
}

// Option customises a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for diagnostics timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New builds a registry from persisted device records. Devices start Idle.
func New(records []model.DeviceRecord, opts ...Option) (*Registry, error) {
	r := &Registry{
		devices: make(map[string]*model.Device, len(records)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, rec := range records {
		if rec.ID == "" {
			return nil, fmt.Errorf("%w: device record without id (adapter %d frontend %d)", model.ErrConfiguration, rec.Adapter, rec.Frontend)
		}
		if _, dup := r.devices[rec.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate device id %q", model.ErrConfiguration, rec.ID)
		}
		d := model.NewDevice(rec)
		r.devices[rec.ID] = &d
		r.order = append(r.order, rec.ID)
	}
	r.publishStateLocked()
	return r, nil
}

// Now returns the registry clock.
func (r *Registry) Now() time.Time { return r.now() }

// Get returns a copy of the device with id.
func (r *Registry) Get(id string) (model.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return model.Device{}, false
	}
	return *d, true
}

// List returns copies of all devices in registration order.
func (r *Registry) List() []model.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.devices[id])
	}
	return out
}

// IDs returns the device ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Update applies fn to the device under the registry lock. If fn returns an
// error the device is left unchanged.
func (r *Registry) Update(id string, fn func(*model.Device) error) (model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return model.Device{}, fmt.Errorf("device %q: %w", id, model.ErrNotFound)
	}
	work := *d
	if err := fn(&work); err != nil {
		return *d, err
	}
	*d = work
	r.publishStateLocked()
	return work, nil
}

// FindAndUpdate applies fn to the first device, in registration order, that
// satisfies match. Search and mutation happen under one lock acquisition.
func (r *Registry) FindAndUpdate(match func(model.Device) bool, fn func(*model.Device) error) (model.Device, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		d := r.devices[id]
		if !match(*d) {
			continue
		}
		work := *d
		if err := fn(&work); err != nil {
			return *d, true, err
		}
		*d = work
		r.publishStateLocked()
		return work, true, nil
	}
	return model.Device{}, false, nil
}

// Bind moves the device into Working for activity.
func (r *Registry) Bind(id string, activity model.Activity) (model.Device, error) {
	now := r.now()
	return r.Update(id, func(d *model.Device) error {
		d.Bind(activity, now)
		return nil
	})
}

// Release returns the device to Idle. Unknown ids are ignored.
func (r *Registry) Release(id string) (model.Device, bool) {
	d, err := r.Update(id, func(d *model.Device) error {
		d.Release()
		return nil
	})
	return d, err == nil
}

// ReleaseAll returns every device to Idle.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		d.Release()
	}
	r.publishStateLocked()
}

// ReportDiagnostics stores a fresh snapshot and stamps it. The lost-lock
// latch is owned by the health monitor and is preserved.
func (r *Registry) ReportDiagnostics(id string, diag model.Diagnostics) error {
	now := r.now()
	_, err := r.Update(id, func(d *model.Device) error {
		lost := d.Diag.LostLock
		d.Diag = diag
		d.Diag.LostLock = lost
		d.Diag.UpdatedAt = now
		return nil
	})
	return err
}

// Refresh re-applies persisted identity fields and clears lost-lock for known
// devices. Records for unknown ids are appended as new Idle devices.
func (r *Registry) Refresh(records []model.DeviceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		d, ok := r.devices[rec.ID]
		if !ok {
			nd := model.NewDevice(rec)
			r.devices[rec.ID] = &nd
			r.order = append(r.order, rec.ID)
			continue
		}
		d.Name = rec.Name
		d.Source = rec.Source
		d.Diag.LostLock = false
	}
	r.publishStateLocked()
}

// Counts returns the number of devices per state, sorted by state name.
func (r *Registry) Counts() map[model.State]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countsLocked()
}

func (r *Registry) countsLocked() map[model.State]int {
	out := map[model.State]int{model.StateIdle: 0, model.StateWorking: 0}
	for _, d := range r.devices {
		out[d.State]++
	}
	return out
}

func (r *Registry) publishStateLocked() {
	counts := r.countsLocked()
	states := make([]string, 0, len(counts))
	for s := range counts {
		states = append(states, string(s))
	}
	sort.Strings(states)
	for _, s := range states {
		metrics.SetDevicesByState(s, counts[model.State(s)])
	}
}
