// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads, validates and hot-reloads the tunerd configuration.
package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/monitor"
)

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	LogLevel   string `yaml:"logLevel"`
	LogService string `yaml:"logService"`
	DataDir    string `yaml:"dataDir"`

	API       APIConfig       `yaml:"api"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Scan      ScanConfig      `yaml:"scan"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Backend   BackendConfig   `yaml:"backend"`
	Devices   []DeviceConfig  `yaml:"devices"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Influx    InfluxConfig    `yaml:"influx"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	// RateLimit is requests per minute per client IP. Zero disables limiting.
	RateLimit int `yaml:"rateLimit"`
}

type MonitorConfig struct {
	CheckInterval time.Duration      `yaml:"checkInterval"`
	Thresholds    monitor.Thresholds `yaml:"thresholds"`
}

type ScanConfig struct {
	CaptureWindow time.Duration `yaml:"captureWindow"`
	DiseqcSources int           `yaml:"diseqcSources"`
}

type CatalogConfig struct {
	// Path defaults to <dataDir>/tunerd.sqlite.
	Path      string        `yaml:"path"`
	CacheSize int           `yaml:"cacheSize"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
	// VerifyOnStart runs a quick integrity check before opening the catalog.
	VerifyOnStart bool `yaml:"verifyOnStart"`
}

type BackendConfig struct {
	Kind    string        `yaml:"kind"`
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Grace   time.Duration `yaml:"grace"`
}

// DeviceConfig seeds one tuner. Kind accepts aliases such as "dvb-s".
type DeviceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Adapter  int    `yaml:"adapter"`
	Frontend int    `yaml:"frontend"`
	Source   string `yaml:"source"`
}

type AlertingConfig struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Redis    RedisConfig    `yaml:"redis"`
	Throttle ThrottleConfig `yaml:"throttle"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"clientID"`
	TopicPrefix string `yaml:"topicPrefix"`
	QoS         int    `yaml:"qos"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type ThrottleConfig struct {
	Interval time.Duration `yaml:"interval"`
	Burst    int           `yaml:"burst"`
}

type InfluxConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// deviceNamespace scopes generated device ids.
var deviceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("tunerd://devices"))

// DeviceID returns the configured id, or a stable id derived from the
// adapter and frontend numbers.
func (d DeviceConfig) DeviceID() string {
	if d.ID != "" {
		return d.ID
	}
	return uuid.NewSHA1(deviceNamespace, []byte(fmt.Sprintf("%d/%d", d.Adapter, d.Frontend))).String()
}

// Record converts the seed into a device record.
func (d DeviceConfig) Record() (model.DeviceRecord, error) {
	kind, err := model.ParseKind(d.Kind)
	if err != nil {
		return model.DeviceRecord{}, err
	}
	name := d.Name
	if name == "" {
		name = fmt.Sprintf("%s adapter%d/frontend%d", kind.DisplayName(), d.Adapter, d.Frontend)
	}
	return model.DeviceRecord{
		ID:       d.DeviceID(),
		Name:     name,
		Kind:     kind,
		Adapter:  d.Adapter,
		Frontend: d.Frontend,
		Source:   d.Source,
	}, nil
}

// DeviceRecords converts every seed.
func (c AppConfig) DeviceRecords() ([]model.DeviceRecord, error) {
	out := make([]model.DeviceRecord, 0, len(c.Devices))
	for i, d := range c.Devices {
		rec, err := d.Record()
		if err != nil {
			return nil, fmt.Errorf("devices[%d]: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
