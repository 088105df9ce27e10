// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// SIEvent is a service-information event reported by a capture backend.
// The concrete variants are ServiceAnnouncement and ProgramMap.
type SIEvent interface {
	ChannelNumber() int
}

// ServiceAnnouncement carries one SDT service entry.
type ServiceAnnouncement struct {
	Number    int    `json:"number"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	Scrambled bool   `json:"scrambled"`
	ActualTS  bool   `json:"actual_ts"`
}

func (e ServiceAnnouncement) ChannelNumber() int { return e.Number }

// ProgramMap carries one PMT elementary stream entry. MediaKind is the raw
// kind reported by the demultiplexer.
type ProgramMap struct {
	Number    int    `json:"number"`
	PID       int    `json:"pid"`
	MediaKind string `json:"media_kind"`
}

func (e ProgramMap) ChannelNumber() int { return e.Number }

// FaultEvent is emitted by the health monitor. Reclaimed is set when the
// device was freed and dependents must drop their bindings.
type FaultEvent struct {
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	Kind       FaultKind `json:"fault"`
	Reclaimed  bool      `json:"reclaimed"`
	Detail     string    `json:"detail,omitempty"`
	At         time.Time `json:"at"`
}

// TopicDeviceFault is the bus topic carrying FaultEvent messages.
const TopicDeviceFault = "device.fault"
