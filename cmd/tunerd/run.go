// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"github.com/spf13/cobra"

	"github.com/ManuGH/tunerpool/internal/config"
	"github.com/ManuGH/tunerpool/internal/daemon"
	"github.com/ManuGH/tunerpool/internal/health"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			loader, cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if err := health.PerformStartupChecks(ctx, cfg); err != nil {
				return err
			}

			app, err := daemon.New(ctx, config.NewConfigHolder(cfg, loader))
			if err != nil {
				return err
			}
			runErr := app.Run(ctx)
			if err := app.Shutdown(ctx); err != nil && runErr == nil {
				runErr = err
			}
			return runErr
		},
	}
}
