// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"sort"
	"time"
)

// TuningRecord is the catalog entry for a streamable logical channel.
type TuningRecord struct {
	ChannelID string       `json:"channel_id"`
	Kind      Kind         `json:"kind"`
	Source    string       `json:"source"`
	Name      string       `json:"name"`
	Provider  string       `json:"provider,omitempty"`
	Number    string       `json:"number"`
	Params    TuningParams `json:"params"`
}

// StreamSession binds a logical stream request to a device.
// DeviceID is a weak reference; the registry owns the device.
type StreamSession struct {
	SessionID string    `json:"session_id"`
	ChannelID string    `json:"channel_id"`
	Name      string    `json:"name"`
	Number    string    `json:"number"`
	DeviceID  string    `json:"device_id"`
	StartedAt time.Time `json:"started_at"`
}

// PID is one elementary stream of a discovered channel.
type PID struct {
	PID  int       `json:"pid"`
	Kind MediaKind `json:"kind"`
}

// DiscoveredChannel accumulates SDT and PMT data for one channel number
// during a single scan attempt.
type DiscoveredChannel struct {
	Number    int               `json:"number"`
	DeviceID  string            `json:"device_id"`
	Name      string            `json:"name"`
	Provider  string            `json:"provider"`
	Scrambled bool              `json:"scrambled"`
	Pids      map[int]MediaKind `json:"pids"`
}

// NewDiscoveredChannel creates an empty record bound to deviceID.
func NewDiscoveredChannel(number int, deviceID string) *DiscoveredChannel {
	return &DiscoveredChannel{
		Number:   number,
		DeviceID: deviceID,
		Pids:     make(map[int]MediaKind),
	}
}

// PIDList returns the pids ordered by pid value.
func (c DiscoveredChannel) PIDList() []PID {
	out := make([]PID, 0, len(c.Pids))
	for pid, kind := range c.Pids {
		out = append(out, PID{PID: pid, Kind: kind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Clone returns a deep copy so callers cannot alias the aggregator state.
func (c DiscoveredChannel) Clone() DiscoveredChannel {
	out := c
	out.Pids = make(map[int]MediaKind, len(c.Pids))
	for pid, kind := range c.Pids {
		out.Pids[pid] = kind
	}
	return out
}

// TuningSnapshot is the device state persisted alongside a discovered channel.
type TuningSnapshot struct {
	DeviceID string       `json:"device_id"`
	Kind     Kind         `json:"kind"`
	Source   string       `json:"source"`
	Params   TuningParams `json:"params"`
}

// SnapshotOf captures the tuning state of d.
func SnapshotOf(d Device) TuningSnapshot {
	return TuningSnapshot{DeviceID: d.ID, Kind: d.Kind, Source: d.Source, Params: d.Tuning}
}

// TuningEntry is one parsed scan-file line.
type TuningEntry struct {
	Line   int          `json:"line"`
	Kind   Kind         `json:"kind"`
	Params TuningParams `json:"params"`
}
