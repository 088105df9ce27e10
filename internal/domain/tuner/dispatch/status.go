// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dispatch

import (
	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/scan"
)

// DeviceStatus is one row of the device status table.
type DeviceStatus struct {
	Index    int      `json:"index"`
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Adapter  int      `json:"adapter"`
	Frontend int      `json:"frontend"`
	Source   string   `json:"source"`
	State    string   `json:"state"`
	Activity string   `json:"activity,omitempty"`
	HasLock  bool     `json:"has_lock"`
	Signal   int      `json:"signal"`
	SNR      int      `json:"snr"`
	BER      int      `json:"ber"`
	UNC      int      `json:"unc"`
	Rate     int      `json:"rate"`
	LostLock bool     `json:"lost_lock"`
	Sessions []string `json:"sessions,omitempty"`
}

// Devices returns the status table, one row per device, indexed from 1.
func (s *Service) Devices() []DeviceStatus {
	devs := s.reg.List()
	out := make([]DeviceStatus, 0, len(devs))
	for i, d := range devs {
		out = append(out, DeviceStatus{
			Index:    i + 1,
			ID:       d.ID,
			Name:     d.Name,
			Kind:     d.Kind.DisplayName(),
			Adapter:  d.Adapter,
			Frontend: d.Frontend,
			Source:   d.Source,
			State:    string(d.State),
			Activity: string(d.Activity),
			HasLock:  d.Diag.HasLock,
			Signal:   d.Diag.Signal,
			SNR:      d.Diag.SNR,
			BER:      d.Diag.BER,
			UNC:      d.Diag.UNC,
			Rate:     d.Diag.Rate,
			LostLock: d.Diag.LostLock,
			Sessions: s.alloc.SessionNames(d.ID),
		})
	}
	return out
}

// Sessions lists the active stream sessions.
func (s *Service) Sessions() []model.StreamSession {
	return s.alloc.Sessions()
}

// ScanStatus reports the scan worker state.
func (s *Service) ScanStatus() scan.Status {
	return s.orch.Status()
}
