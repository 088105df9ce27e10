// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path (empty when running from env only).
func (l *Loader) Path() string { return l.configPath }

// Load loads configuration with precedence: ENV > File > Defaults
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (AppConfig, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = filepath.Join(cfg.DataDir, "tunerd.sqlite")
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file over cfg with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) env(name string) string {
	key := EnvPrefix + name
	l.ConsumedEnvKeys[key] = struct{}{}
	return key
}

// mergeEnv applies TUNERD_* overrides.
func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.LogLevel = ParseString(l.env("LOG_LEVEL"), cfg.LogLevel)
	cfg.LogService = ParseString(l.env("LOG_SERVICE"), cfg.LogService)
	cfg.DataDir = ParseString(l.env("DATA_DIR"), cfg.DataDir)

	cfg.API.ListenAddr = ParseString(l.env("API_LISTEN_ADDR"), cfg.API.ListenAddr)
	cfg.API.RateLimit = ParseInt(l.env("API_RATE_LIMIT"), cfg.API.RateLimit)

	cfg.Monitor.CheckInterval = ParseDuration(l.env("MONITOR_CHECK_INTERVAL"), cfg.Monitor.CheckInterval)
	cfg.Scan.CaptureWindow = ParseDuration(l.env("SCAN_CAPTURE_WINDOW"), cfg.Scan.CaptureWindow)

	cfg.Catalog.Path = ParseString(l.env("CATALOG_PATH"), cfg.Catalog.Path)
	cfg.Catalog.CacheSize = ParseInt(l.env("CATALOG_CACHE_SIZE"), cfg.Catalog.CacheSize)
	cfg.Catalog.CacheTTL = ParseDuration(l.env("CATALOG_CACHE_TTL"), cfg.Catalog.CacheTTL)

	cfg.Backend.Kind = ParseString(l.env("BACKEND_KIND"), cfg.Backend.Kind)
	cfg.Backend.Command = ParseString(l.env("BACKEND_COMMAND"), cfg.Backend.Command)

	cfg.Alerting.MQTT.Enabled = ParseBool(l.env("MQTT_ENABLED"), cfg.Alerting.MQTT.Enabled)
	cfg.Alerting.MQTT.Broker = ParseString(l.env("MQTT_BROKER"), cfg.Alerting.MQTT.Broker)
	cfg.Alerting.Redis.Enabled = ParseBool(l.env("REDIS_ENABLED"), cfg.Alerting.Redis.Enabled)
	cfg.Alerting.Redis.Addr = ParseString(l.env("REDIS_ADDR"), cfg.Alerting.Redis.Addr)
	cfg.Alerting.Redis.Password = ParseString(l.env("REDIS_PASSWORD"), cfg.Alerting.Redis.Password)

	cfg.Influx.Enabled = ParseBool(l.env("INFLUX_ENABLED"), cfg.Influx.Enabled)
	cfg.Influx.URL = ParseString(l.env("INFLUX_URL"), cfg.Influx.URL)
	cfg.Influx.Token = ParseString(l.env("INFLUX_TOKEN"), cfg.Influx.Token)

	cfg.Telemetry.Enabled = ParseBool(l.env("TELEMETRY_ENABLED"), cfg.Telemetry.Enabled)
	cfg.Telemetry.Endpoint = ParseString(l.env("OTLP_ENDPOINT"), cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(l.env("TELEMETRY_SAMPLING_RATE"), cfg.Telemetry.SamplingRate)
}
