// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/tunerpool/internal/config"
	"github.com/ManuGH/tunerpool/internal/daemon"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/dispatch"
)

func newScanCmd(opts *rootOptions) *cobra.Command {
	var req dispatch.ScanRequest
	cmd := &cobra.Command{
		Use:   "scan SCANFILE",
		Short: "Run one channel scan and store the discovered channels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (req.DeviceID == "") == (req.Source == "") {
				return errors.New("exactly one of --device or --source is required")
			}
			req.ScanFile = args[0]

			ctx := cmd.Context()
			_, cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			app, err := daemon.New(ctx, config.NewConfigHolder(cfg, nil))
			if err != nil {
				return err
			}
			defer func() { _ = app.Shutdown(ctx) }()

			st, err := app.ScanOnce(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scan %s on %s: %d/%d entries, %d failed, %d channels\n",
				st.State, st.DeviceID, st.ProcessedEntries, st.TotalEntries, st.FailedEntries, st.Discovered)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.DeviceID, "device", "", "device id to scan with")
	cmd.Flags().StringVar(&req.Source, "source", "", "scan with the first idle device on this signal source")
	return cmd
}
