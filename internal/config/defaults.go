// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/monitor"
)

const (
	DefaultListenAddr    = ":8088"
	DefaultDataDir       = "/var/lib/tunerd"
	DefaultDiseqcSources = 5
)

// Default returns the configuration used before the file and environment
// are applied.
func Default() AppConfig {
	return AppConfig{
		LogLevel:   "info",
		LogService: "tunerd",
		DataDir:    DefaultDataDir,
		API: APIConfig{
			ListenAddr: DefaultListenAddr,
			RateLimit:  120,
		},
		Monitor: MonitorConfig{
			CheckInterval: monitor.DefaultInterval,
			Thresholds:    monitor.DefaultThresholds(),
		},
		Scan: ScanConfig{
			CaptureWindow: 10 * time.Second,
			DiseqcSources: DefaultDiseqcSources,
		},
		Catalog: CatalogConfig{
			CacheSize: 1024,
			CacheTTL:  5 * time.Minute,
		},
		Backend: BackendConfig{
			Kind:  "stub",
			Grace: 2 * time.Second,
		},
		Alerting: AlertingConfig{
			MQTT: MQTTConfig{
				ClientID:    "tunerd",
				TopicPrefix: "tunerd",
				QoS:         1,
			},
			Redis: RedisConfig{
				Channel: "tunerd:faults",
			},
			Throttle: ThrottleConfig{
				Interval: 10 * time.Minute,
				Burst:    1,
			},
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
