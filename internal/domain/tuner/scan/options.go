// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scan

import (
	"fmt"
	"strings"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
)

// OptionConverter normalises textual scan-file options to the values the
// capture backend expects.
type OptionConverter struct {
	codeRate   map[string]string
	bandwidth  map[string]string
	modulation map[string]string
	transMode  map[string]string
	guard      map[string]string
	hierarchy  map[string]string
}

const optionAuto = "AUTO"

// NewOptionConverter returns the default conversion tables.
func NewOptionConverter() OptionConverter {
	return OptionConverter{
		codeRate: map[string]string{
			"NONE": "0",
			"1/2":  "12",
			"2/3":  "23",
			"3/4":  "34",
			"4/5":  "45",
			"5/6":  "56",
			"6/7":  "67",
			"7/8":  "78",
			"8/9":  "89",
		},
		bandwidth: map[string]string{
			"8MHZ": "8",
			"7MHZ": "7",
			"6MHZ": "6",
		},
		modulation: map[string]string{
			"QPSK":   "QPSK",
			"QAM16":  "16",
			"QAM32":  "32",
			"QAM64":  "64",
			"QAM128": "128",
			"QAM256": "256",
		},
		transMode: map[string]string{
			"2K": "2",
			"8K": "8",
		},
		guard: map[string]string{
			"1/32": "32",
			"1/16": "16",
			"1/8":  "8",
			"1/4":  "4",
		},
		hierarchy: map[string]string{
			"NONE": "0",
			"1":    "1",
			"2":    "2",
			"4":    "4",
		},
	}
}

func (c OptionConverter) CodeRate(s string) (string, error) {
	return lookup("code rate", s, c.codeRate)
}

func (c OptionConverter) Bandwidth(s string) (string, error) {
	return lookup("bandwidth", s, c.bandwidth)
}

func (c OptionConverter) Modulation(s string) (string, error) {
	return lookup("modulation", s, c.modulation)
}

func (c OptionConverter) TransMode(s string) (string, error) {
	return lookup("transmission mode", s, c.transMode)
}

func (c OptionConverter) Guard(s string) (string, error) {
	return lookup("guard interval", s, c.guard)
}

func (c OptionConverter) Hierarchy(s string) (string, error) {
	return lookup("hierarchy", s, c.hierarchy)
}

func lookup(option, s string, table map[string]string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if key == optionAuto {
		return optionAuto, nil
	}
	if v, ok := table[key]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: unknown %s %q", model.ErrConfiguration, option, s)
}
