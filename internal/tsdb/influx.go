// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package tsdb records device diagnostics history in InfluxDB.
package tsdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	xglog "github.com/ManuGH/tunerpool/internal/log"
)

const (
	measurement    = "tuner_diagnostics"
	connectTimeout = 10 * time.Second
)

var (
	ErrDisabled         = errors.New("influxdb disabled")
	ErrConnectionFailed = errors.New("influxdb connection failed")
)

// Config selects the InfluxDB bucket diagnostics are written to.
type Config struct {
	Enabled       bool
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     uint
	FlushInterval time.Duration
}

// pointWriter is the part of api.WriteAPI the writer uses.
type pointWriter interface {
	WritePoint(p *write.Point)
	Flush()
}

// Writer writes one point per recorded device snapshot. Writes are batched
// and non-blocking.
type Writer struct {
	client influxdb2.Client
	api    pointWriter
	logger zerolog.Logger
}

// Connect creates the client and verifies the server is reachable.
func Connect(ctx context.Context, cfg Config) (*Writer, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	opts := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		opts.SetBatchSize(cfg.BatchSize)
	}
	if cfg.FlushInterval > 0 {
		opts.SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	w := &Writer{client: client, api: writeAPI, logger: xglog.WithComponent("tsdb")}
	go func() {
		for err := range writeAPI.Errors() {
			w.logger.Warn().Err(err).Str(xglog.FieldEvent, "tsdb.write_failed").Msg("influxdb write failed")
		}
	}()
	return w, nil
}

// RecordDiagnostics queues the device's current diagnostics.
func (w *Writer) RecordDiagnostics(dev model.Device) {
	w.api.WritePoint(diagnosticsPoint(dev, time.Now()))
}

// Close flushes pending points and closes the client.
func (w *Writer) Close() error {
	w.api.Flush()
	if w.client != nil {
		w.client.Close()
	}
	return nil
}

func diagnosticsPoint(dev model.Device, now time.Time) *write.Point {
	at := dev.Diag.UpdatedAt
	if at.IsZero() {
		at = now
	}
	return write.NewPoint(
		measurement,
		map[string]string{
			"device_id": dev.ID,
			"kind":      string(dev.Kind),
			"source":    dev.Source,
			"activity":  string(dev.Activity),
		},
		map[string]interface{}{
			"has_lock":  dev.Diag.HasLock,
			"signal":    dev.Diag.Signal,
			"snr":       dev.Diag.SNR,
			"ber":       dev.Diag.BER,
			"unc":       dev.Diag.UNC,
			"rate":      dev.Diag.Rate,
			"frequency": dev.Tuning.Frequency,
		},
		at,
	)
}
