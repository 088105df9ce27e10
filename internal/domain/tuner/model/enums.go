// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"strings"
)

// Kind is the broadcast delivery system a tuner device serves.
type Kind string

const (
	KindSatellite   Kind = "satellite"
	KindTerrestrial Kind = "terrestrial"
	KindCable       Kind = "cable"
)

// ParseKind accepts the canonical names plus the DVB-S/T/C aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "satellite", "dvb-s", "dvbs", "s":
		return KindSatellite, nil
	case "terrestrial", "dvb-t", "dvbt", "t":
		return KindTerrestrial, nil
	case "cable", "dvb-c", "dvbc", "c":
		return KindCable, nil
	}
	return "", fmt.Errorf("%w: unknown device kind %q", ErrConfiguration, s)
}

// DisplayName is the short label used in status tables.
func (k Kind) DisplayName() string {
	switch k {
	case KindSatellite:
		return "DVB-S"
	case KindTerrestrial:
		return "DVB-T"
	case KindCable:
		return "DVB-C"
	}
	return "N/A"
}

// State is the operational state of a device.
type State string

const (
	StateIdle    State = "IDLE"
	StateWorking State = "WORKING"
)

// Activity is what a Working device is doing. It is empty while Idle.
type Activity string

const (
	ActivityNone      Activity = ""
	ActivityStreaming Activity = "STREAMING"
	ActivityScanning  Activity = "SCANNING"
)

// MediaKind classifies an elementary stream announced in a program map.
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// ParseMediaKind reports false for kinds the scanner does not store.
func ParseMediaKind(s string) (MediaKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(MediaVideo):
		return MediaVideo, true
	case string(MediaAudio):
		return MediaAudio, true
	}
	return "", false
}

// FaultKind names a condition detected by the health monitor.
type FaultKind string

const (
	FaultTimeout   FaultKind = "Timeout"
	FaultNoSignal  FaultKind = "NoSignal"
	FaultBadSignal FaultKind = "BadSignal"
	FaultBadSNR    FaultKind = "BadSNR"
	FaultBadBER    FaultKind = "BadBER"
	FaultBadUNC    FaultKind = "BadUNC"
)

// Reclaims reports whether the fault frees the device.
// Threshold violations are soft warnings while the tuner is nominally locked.
func (f FaultKind) Reclaims() bool {
	return f == FaultTimeout || f == FaultNoSignal
}
