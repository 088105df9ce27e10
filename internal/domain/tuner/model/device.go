// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// TuningParams are the frontend parameters programmed onto a device.
// Satellite devices use Polarity, SymbolRate, CodeRateHP and DiseqcSource.
// Terrestrial devices use Bandwidth, CodeRateHP, CodeRateLP, Modulation,
// TransMode, Guard and Hierarchy. Enumerated fields hold normalised scan-file
// option values (see scan.OptionConverter).
type TuningParams struct {
	Frequency int `json:"frequency" yaml:"frequency"`

	Polarity     string `json:"polarity,omitempty" yaml:"polarity,omitempty"`
	SymbolRate   int    `json:"symbol_rate,omitempty" yaml:"symbolRate,omitempty"`
	DiseqcSource int    `json:"diseqc_source,omitempty" yaml:"diseqcSource,omitempty"`

	CodeRateHP string `json:"code_rate_hp,omitempty" yaml:"codeRateHP,omitempty"`
	CodeRateLP string `json:"code_rate_lp,omitempty" yaml:"codeRateLP,omitempty"`
	Bandwidth  string `json:"bandwidth,omitempty" yaml:"bandwidth,omitempty"`
	Modulation string `json:"modulation,omitempty" yaml:"modulation,omitempty"`
	TransMode  string `json:"trans_mode,omitempty" yaml:"transMode,omitempty"`
	Guard      string `json:"guard,omitempty" yaml:"guard,omitempty"`
	Hierarchy  string `json:"hierarchy,omitempty" yaml:"hierarchy,omitempty"`
}

// Matches compares the kind-specific fields of two parameter sets.
func (p TuningParams) Matches(kind Kind, other TuningParams) bool {
	if p.Frequency != other.Frequency || p.CodeRateHP != other.CodeRateHP {
		return false
	}
	switch kind {
	case KindSatellite:
		return p.Polarity == other.Polarity &&
			p.SymbolRate == other.SymbolRate &&
			p.DiseqcSource == other.DiseqcSource
	case KindTerrestrial:
		return p.CodeRateLP == other.CodeRateLP &&
			p.Modulation == other.Modulation &&
			p.TransMode == other.TransMode &&
			p.Guard == other.Guard &&
			p.Hierarchy == other.Hierarchy &&
			p.Bandwidth == other.Bandwidth
	case KindCable:
		return p.SymbolRate == other.SymbolRate && p.Modulation == other.Modulation
	}
	return true
}

// Diagnostics is the last link-quality snapshot reported for a device.
type Diagnostics struct {
	HasLock   bool      `json:"has_lock"`
	Signal    int       `json:"signal"`
	SNR       int       `json:"snr"`
	BER       int       `json:"ber"`
	UNC       int       `json:"unc"`
	Rate      int       `json:"rate"`
	LostLock  bool      `json:"lost_lock"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Device is a physical tuner. Values returned by the registry are copies;
// mutation goes through registry.Registry only.
type Device struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Kind     Kind         `json:"kind"`
	Adapter  int          `json:"adapter"`
	Frontend int          `json:"frontend"`
	Source   string       `json:"source"`
	Tuning   TuningParams `json:"tuning"`
	State    State        `json:"state"`
	Activity Activity     `json:"activity,omitempty"`
	Diag     Diagnostics  `json:"diagnostics"`
}

// IsIdle reports whether the device can be bound to a new activity.
func (d Device) IsIdle() bool { return d.State == StateIdle }

// IsStreaming reports whether the device is Working for a streaming activity.
func (d Device) IsStreaming() bool {
	return d.State == StateWorking && d.Activity == ActivityStreaming
}

// Bind moves the device into Working for activity. State and activity are set
// together; the diagnostic snapshot is zeroed and stamped with now so the
// health monitor gives the new binding a full interval to report.
func (d *Device) Bind(activity Activity, now time.Time) {
	d.State = StateWorking
	d.Activity = activity
	d.Diag = Diagnostics{UpdatedAt: now}
}

// Release returns the device to Idle and clears its activity.
func (d *Device) Release() {
	d.State = StateIdle
	d.Activity = ActivityNone
}

// DeviceRecord is the persisted identity of a device.
type DeviceRecord struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Kind     Kind   `json:"kind" yaml:"kind"`
	Adapter  int    `json:"adapter" yaml:"adapter"`
	Frontend int    `json:"frontend" yaml:"frontend"`
	Source   string `json:"source" yaml:"source"`
}

// NewDevice builds an Idle device from its persisted record.
func NewDevice(rec DeviceRecord) Device {
	return Device{
		ID:       rec.ID,
		Name:     rec.Name,
		Kind:     rec.Kind,
		Adapter:  rec.Adapter,
		Frontend: rec.Frontend,
		Source:   rec.Source,
		State:    StateIdle,
	}
}
