// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/ManuGH/tunerpool/internal/config"
	"github.com/ManuGH/tunerpool/internal/log"
	"github.com/ManuGH/tunerpool/internal/persistence/sqlite"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment and dependencies before starting the daemon.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkListenAddr(logger, cfg.API.ListenAddr); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := checkBackend(logger, cfg.Backend); err != nil {
		return fmt.Errorf("backend check failed: %w", err)
	}
	if cfg.Catalog.VerifyOnStart {
		if err := checkCatalog(ctx, logger, cfg.Catalog.Path); err != nil {
			return fmt.Errorf("catalog check failed: %w", err)
		}
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str(log.FieldPath, path).Msg("data directory is writable")
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid API listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid API listen port %q in %q", port, addr)
	}
	logger.Info().Str("addr", addr).Msg("API listen address is valid")
	return nil
}

func checkBackend(logger zerolog.Logger, cfg config.BackendConfig) error {
	if cfg.Kind != "process" {
		logger.Info().Str("backend", cfg.Kind).Msg("using in-process capture backend")
		return nil
	}
	bin, err := exec.LookPath(cfg.Command)
	if err != nil {
		return fmt.Errorf("capture helper not found (%s): %w", cfg.Command, err)
	}
	logger.Info().Str("helper", bin).Msg("capture helper available")
	return nil
}

// checkCatalog runs quick_check on an existing catalog. A missing file is
// fine: the store creates it on open.
func checkCatalog(ctx context.Context, logger zerolog.Logger, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Info().Str(log.FieldPath, path).Msg("catalog does not exist yet, skipping integrity check")
		return nil
	}
	issues, err := sqlite.VerifyIntegrity(ctx, path, "quick")
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("catalog %s is corrupt: %v", path, issues)
	}
	logger.Info().Str(log.FieldPath, path).Msg("catalog integrity verified")
	return nil
}
