// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/dispatch"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/scan"
	"github.com/ManuGH/tunerpool/internal/log"
)

const scanPollInterval = 100 * time.Millisecond

// ScanOnce runs a single scan without the API and returns the final scan
// status. The device is released when the scan ends.
func (a *App) ScanOnce(ctx context.Context, req dispatch.ScanRequest) (scan.Status, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Orchestrator.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	resp, err := a.Dispatch.StartScan(ctx, req)
	if err != nil {
		return scan.Status{}, err
	}
	a.logger.Info().Str(log.FieldEvent, "scan.once").Str(log.FieldDeviceID, resp.DeviceID).Msg("scan started")

	ticker := time.NewTicker(scanPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.Dispatch.StopScan(context.WithoutCancel(ctx), resp.DeviceID)
			return a.Orchestrator.Status(), fmt.Errorf("scan interrupted: %w", ctx.Err())
		case <-ticker.C:
			if !a.Orchestrator.IsScanning() {
				return a.Orchestrator.Status(), nil
			}
		}
	}
}
