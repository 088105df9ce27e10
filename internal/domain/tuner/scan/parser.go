// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scan

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/log"
	"github.com/rs/zerolog"
)

const (
	satelliteFields   = 5
	terrestrialFields = 9
)

// Line is one tuning line kept from a scan file.
type Line struct {
	Number int
	Text   string
}

// ReadScanFile reads path and keeps the lines starting with S or T.
func ReadScanFile(path string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("scan file %q: %w", path, model.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: open scan file %q: %v", model.ErrConfiguration, path, err)
	}
	defer f.Close()
	return ReadScanLines(f, log.WithComponent("scan").With().Str(log.FieldPath, path).Logger())
}

// ReadScanLines is ReadScanFile over an arbitrary reader. Blank lines and
// '#' comments are dropped silently; any other line that does not start
// with S or T is dropped with a warning.
func ReadScanLines(r io.Reader, logger zerolog.Logger) ([]Line, error) {
	var out []Line
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		switch text[0] {
		case 'S', 'T':
			out = append(out, Line{Number: n, Text: text})
		default:
			logger.Warn().
				Int(log.FieldLine, n).
				Str(log.FieldEntry, text).
				Msg("unsupported scan line skipped")
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read scan file: %v", model.ErrConfiguration, err)
	}
	return out, nil
}

// ParseEntry converts one scan line into a tuning entry.
//
//	S <frequency> <polarity> <symbol_rate> <code_rate>
//	T <frequency> <bandwidth> <code_rate_hp> <code_rate_lp> <modulation> <trans_mode> <guard> <hierarchy>
func ParseEntry(line Line, conv OptionConverter) (model.TuningEntry, error) {
	fields := strings.Fields(line.Text)
	if len(fields) == 0 {
		return model.TuningEntry{}, fmt.Errorf("%w: line %d: empty entry", model.ErrConfiguration, line.Number)
	}
	var (
		entry model.TuningEntry
		err   error
	)
	switch fields[0] {
	case "S":
		entry, err = parseSatellite(fields, conv)
	case "T":
		entry, err = parseTerrestrial(fields, conv)
	default:
		err = fmt.Errorf("%w: unknown delivery system %q", model.ErrConfiguration, fields[0])
	}
	if err != nil {
		return model.TuningEntry{}, fmt.Errorf("line %d: %w", line.Number, err)
	}
	entry.Line = line.Number
	return entry, nil
}

func parseSatellite(f []string, conv OptionConverter) (model.TuningEntry, error) {
	if len(f) != satelliteFields {
		return model.TuningEntry{}, fieldCountError("S", satelliteFields, len(f))
	}
	freq, err := parseInt("frequency", f[1])
	if err != nil {
		return model.TuningEntry{}, err
	}
	pol := strings.ToUpper(f[2])
	if pol != "H" && pol != "V" {
		return model.TuningEntry{}, fmt.Errorf("%w: polarity %q is not H or V", model.ErrConfiguration, f[2])
	}
	sr, err := parseInt("symbol rate", f[3])
	if err != nil {
		return model.TuningEntry{}, err
	}
	fec, err := conv.CodeRate(f[4])
	if err != nil {
		return model.TuningEntry{}, err
	}
	return model.TuningEntry{
		Kind: model.KindSatellite,
		Params: model.TuningParams{
			Frequency:  freq,
			Polarity:   pol,
			SymbolRate: sr / 1000,
			CodeRateHP: fec,
		},
	}, nil
}

func parseTerrestrial(f []string, conv OptionConverter) (model.TuningEntry, error) {
	if len(f) != terrestrialFields {
		return model.TuningEntry{}, fieldCountError("T", terrestrialFields, len(f))
	}
	freq, err := parseInt("frequency", f[1])
	if err != nil {
		return model.TuningEntry{}, err
	}
	p := model.TuningParams{Frequency: freq}
	steps := []struct {
		dst  *string
		conv func(string) (string, error)
		raw  string
	}{
		{&p.Bandwidth, conv.Bandwidth, f[2]},
		{&p.CodeRateHP, conv.CodeRate, f[3]},
		{&p.CodeRateLP, conv.CodeRate, f[4]},
		{&p.Modulation, conv.Modulation, f[5]},
		{&p.TransMode, conv.TransMode, f[6]},
		{&p.Guard, conv.Guard, f[7]},
		{&p.Hierarchy, conv.Hierarchy, f[8]},
	}
	for _, s := range steps {
		v, err := s.conv(s.raw)
		if err != nil {
			return model.TuningEntry{}, err
		}
		*s.dst = v
	}
	return model.TuningEntry{Kind: model.KindTerrestrial, Params: p}, nil
}

func parseInt(field, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s %q is not a positive integer", model.ErrConfiguration, field, s)
	}
	return v, nil
}

func fieldCountError(kind string, want, got int) error {
	return fmt.Errorf("%w: %s entry needs %d fields, got %d", model.ErrConfiguration, kind, want, got)
}
