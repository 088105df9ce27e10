// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/validate"
)

// Validate checks a fully merged configuration. Failures wrap model.ErrConfiguration.
func Validate(cfg AppConfig) error {
	v := validate.New()

	if !validate.LogLevel(cfg.LogLevel).IsValid() {
		v.AddError("logLevel", validate.ErrInvalidLogLevel.Message, cfg.LogLevel)
	}
	v.Directory("dataDir", cfg.DataDir, false)

	v.ListenAddr("api.listenAddr", cfg.API.ListenAddr)
	v.NonNegative("api.rateLimit", cfg.API.RateLimit)

	v.PositiveDuration("monitor.checkInterval", cfg.Monitor.CheckInterval)
	th := cfg.Monitor.Thresholds
	v.NonNegative("monitor.thresholds.signal", th.MinSignal)
	v.NonNegative("monitor.thresholds.snr", th.MinSNR)
	v.NonNegative("monitor.thresholds.ber", th.MaxBER)
	v.NonNegative("monitor.thresholds.unc", th.MaxUNC)

	// the switch protocol addresses exactly five positions
	v.Range("scan.diseqcSources", cfg.Scan.DiseqcSources, DefaultDiseqcSources, DefaultDiseqcSources)
	if cfg.Scan.CaptureWindow < 0 {
		v.AddError("scan.captureWindow", "duration cannot be negative", cfg.Scan.CaptureWindow)
	}

	v.Positive("catalog.cacheSize", cfg.Catalog.CacheSize)
	v.PositiveDuration("catalog.cacheTTL", cfg.Catalog.CacheTTL)

	v.OneOf("backend.kind", cfg.Backend.Kind, []string{"stub", "process"})
	if cfg.Backend.Kind == "process" {
		v.NotEmpty("backend.command", cfg.Backend.Command)
	}

	ids := make([]string, 0, len(cfg.Devices))
	for i, d := range cfg.Devices {
		if _, err := model.ParseKind(d.Kind); err != nil {
			v.AddError(fmt.Sprintf("devices[%d].kind", i), "unknown device kind", d.Kind)
		}
		v.NonNegative(fmt.Sprintf("devices[%d].adapter", i), d.Adapter)
		v.NonNegative(fmt.Sprintf("devices[%d].frontend", i), d.Frontend)
		ids = append(ids, d.DeviceID())
	}
	v.Unique("devices.id", ids)

	if m := cfg.Alerting.MQTT; m.Enabled {
		v.URL("alerting.mqtt.broker", m.Broker, []string{"tcp", "ssl", "ws", "wss", "mqtt", "mqtts"})
		v.NotEmpty("alerting.mqtt.clientID", m.ClientID)
		v.Range("alerting.mqtt.qos", m.QoS, 0, 2)
	}
	if r := cfg.Alerting.Redis; r.Enabled {
		v.NotEmpty("alerting.redis.addr", r.Addr)
	}
	v.PositiveDuration("alerting.throttle.interval", cfg.Alerting.Throttle.Interval)
	v.Positive("alerting.throttle.burst", cfg.Alerting.Throttle.Burst)

	if in := cfg.Influx; in.Enabled {
		v.URL("influx.url", in.URL, []string{"http", "https"})
		v.NotEmpty("influx.org", in.Org)
		v.NotEmpty("influx.bucket", in.Bucket)
	}

	if tc := cfg.Telemetry; tc.Enabled {
		v.OneOf("telemetry.exporter", tc.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", tc.Endpoint)
		if tc.SamplingRate < 0 || tc.SamplingRate > 1 {
			v.AddError("telemetry.samplingRate", "must be between 0 and 1", tc.SamplingRate)
		}
	}

	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", model.ErrConfiguration, err)
	}
	return nil
}
