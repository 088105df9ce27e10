// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command tunerd allocates DVB tuners to streams, runs channel scans and
// watches tuner health.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/tunerpool/internal/config"
	xglog "github.com/ManuGH/tunerpool/internal/log"
	"github.com/ManuGH/tunerpool/internal/version"
)

type rootOptions struct {
	configPath string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "tunerd:", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "tunerd",
		Short:         "DVB tuner pool daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "path to config file (YAML)")

	root.AddCommand(
		newRunCmd(opts),
		newScanCmd(opts),
		newDevicesCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads the configuration and reconfigures the global logger
// from it.
func loadConfig(opts *rootOptions) (*config.Loader, config.AppConfig, error) {
	xglog.Configure(xglog.Config{Level: "info", Service: "tunerd", Version: version.Version})

	loader := config.NewLoader(opts.configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return nil, config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}

	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: cfg.LogService, Version: cfg.Version})
	logger := xglog.WithComponent("daemon")
	source := "env+defaults"
	if opts.configPath != "" {
		source = "file"
	}
	logger.Info().
		Str(xglog.FieldEvent, "config.loaded").
		Str(xglog.FieldSource, source).
		Str(xglog.FieldPath, opts.configPath).
		Msg("configuration loaded")
	return loader, cfg, nil
}
