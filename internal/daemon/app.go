// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the tunerd components together and owns their
// lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/tunerpool/internal/alerting"
	"github.com/ManuGH/tunerpool/internal/api"
	"github.com/ManuGH/tunerpool/internal/backend/process"
	"github.com/ManuGH/tunerpool/internal/backend/stub"
	"github.com/ManuGH/tunerpool/internal/bus"
	"github.com/ManuGH/tunerpool/internal/catalog"
	"github.com/ManuGH/tunerpool/internal/config"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/allocator"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/dispatch"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/monitor"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/ports"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/registry"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/scan"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/si"
	"github.com/ManuGH/tunerpool/internal/health"
	"github.com/ManuGH/tunerpool/internal/log"
	"github.com/ManuGH/tunerpool/internal/telemetry"
	"github.com/ManuGH/tunerpool/internal/tsdb"
)

const shutdownTimeout = 30 * time.Second

// App holds every long-lived component of the daemon.
type App struct {
	cfg    config.AppConfig
	holder *config.ConfigHolder
	logger zerolog.Logger
	hooks  *hooks

	Store        *catalog.Store
	Catalog      *catalog.CachedCatalog
	Registry     *registry.Registry
	Allocator    *allocator.Allocator
	Orchestrator *scan.Orchestrator
	Dispatch     *dispatch.Service
	Monitor      *monitor.Monitor
	Bus          *bus.MemoryBus
	Alerts       *alerting.Fanout
	Health       *health.Manager
	Server       *api.Server
}

// New builds the component graph from the holder's current config. On
// error everything opened so far is closed again.
func New(ctx context.Context, holder *config.ConfigHolder) (app *App, err error) {
	cfg := holder.Get()
	logger := log.WithComponent("daemon")
	a := &App{
		cfg:    cfg,
		holder: holder,
		logger: logger,
		hooks:  &hooks{logger: logger},
	}
	defer func() {
		if err != nil {
			_ = a.hooks.run(context.WithoutCancel(ctx))
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.hooks.add("telemetry", tp.Shutdown)

	if err := a.openCatalog(ctx); err != nil {
		return nil, err
	}
	if err := a.buildDomain(ctx); err != nil {
		return nil, err
	}
	if err := a.buildAlerting(ctx); err != nil {
		return nil, err
	}
	a.buildMonitor(ctx)
	a.buildAPI()
	return a, nil
}

func (a *App) openCatalog(ctx context.Context) error {
	store, err := OpenCatalog(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.Store = store
	a.hooks.add("catalog", func(context.Context) error { return store.Close() })
	a.Catalog = catalog.NewCachedCatalog(store, a.cfg.Catalog.CacheSize, a.cfg.Catalog.CacheTTL)
	return nil
}

// OpenCatalog opens the catalog and seeds the configured devices. Seeding
// never overwrites a stored device.
func OpenCatalog(ctx context.Context, cfg config.AppConfig) (*catalog.Store, error) {
	store, err := catalog.Open(ctx, cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	recs, err := cfg.DeviceRecords()
	if err == nil {
		err = store.SeedDevices(ctx, recs)
	}
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("seed devices: %w", err)
	}
	return store, nil
}

func (a *App) buildDomain(ctx context.Context) error {
	recs, err := a.Store.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("load devices: %w", err)
	}
	if len(recs) == 0 {
		a.logger.Warn().Str(log.FieldEvent, "daemon.no_devices").Msg("no tuner devices configured")
	}
	a.Registry, err = registry.New(recs)
	if err != nil {
		return err
	}

	backend, err := a.newBackend()
	if err != nil {
		return err
	}

	a.Allocator = allocator.New(a.Registry, a.Catalog)
	a.Orchestrator = scan.New(a.Registry, backend, si.New(a.Registry, a.Store), scan.Config{
		DiseqcSources: a.cfg.Scan.DiseqcSources,
		CaptureWindow: a.cfg.Scan.CaptureWindow,
	})
	a.Dispatch = dispatch.New(a.Registry, a.Allocator, a.Orchestrator)
	a.Dispatch.Clean()
	a.Bus = bus.NewMemoryBus()
	return nil
}

func (a *App) newBackend() (ports.Backend, error) {
	switch a.cfg.Backend.Kind {
	case "process":
		return process.New(process.Config{
			Command: a.cfg.Backend.Command,
			Args:    a.cfg.Backend.Args,
			Grace:   a.cfg.Backend.Grace,
		}, a.Registry)
	case "stub", "":
		a.logger.Warn().Str(log.FieldEvent, "daemon.stub_backend").Msg("using the stub capture backend; scans report synthetic channels")
		return stub.New(stub.Echo()), nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", model.ErrConfiguration, a.cfg.Backend.Kind)
}

// External sinks are skipped for a while after repeated delivery failures.
const (
	sinkBreakerThreshold = 5
	sinkBreakerReset     = 30 * time.Second
)

func (a *App) buildAlerting(ctx context.Context) error {
	sinks := []alerting.Sink{alerting.BusNotifier{Bus: a.Bus}}
	ac := a.cfg.Alerting

	if ac.MQTT.Enabled {
		client, err := alerting.ConnectMQTT(ctx, alerting.MQTTConfig{
			Broker:   ac.MQTT.Broker,
			ClientID: ac.MQTT.ClientID,
		})
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		a.hooks.add("mqtt", func(context.Context) error {
			client.Disconnect(250)
			return nil
		})
		sinks = append(sinks, alerting.Guard(alerting.NewMQTTNotifier(client, alerting.MQTTConfig{
			TopicPrefix: ac.MQTT.TopicPrefix,
			QoS:         byte(ac.MQTT.QoS),
		}), sinkBreakerThreshold, sinkBreakerReset))
	}

	if ac.Redis.Enabled {
		client, err := alerting.NewRedisClient(ctx, alerting.RedisConfig{
			Addr:     ac.Redis.Addr,
			Password: ac.Redis.Password,
			DB:       ac.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.hooks.add("redis", func(context.Context) error { return client.Close() })
		sinks = append(sinks, alerting.Guard(alerting.NewRedisNotifier(client, ac.Redis.Channel),
			sinkBreakerThreshold, sinkBreakerReset))
	}

	a.Alerts = alerting.NewFanout(sinks...)
	a.logger.Info().Strs("sinks", a.Alerts.Sinks()).Msg("fault sinks configured")
	return nil
}

func (a *App) buildMonitor(ctx context.Context) {
	var opts []monitor.Option
	if a.cfg.Influx.Enabled {
		w, err := tsdb.Connect(ctx, tsdb.Config{
			Enabled: true,
			URL:     a.cfg.Influx.URL,
			Token:   a.cfg.Influx.Token,
			Org:     a.cfg.Influx.Org,
			Bucket:  a.cfg.Influx.Bucket,
		})
		switch {
		case err == nil:
			a.hooks.add("influx", func(context.Context) error { return w.Close() })
			opts = append(opts, monitor.WithRecorder(w))
		case errors.Is(err, tsdb.ErrConnectionFailed):
			a.logger.Warn().Err(err).Str(log.FieldEvent, "daemon.influx_unavailable").Msg("diagnostics history disabled")
		default:
			a.logger.Warn().Err(err).Msg("diagnostics history disabled")
		}
	}

	notifier := alerting.NewThrottle(a.Alerts, alerting.ThrottleConfig{
		Interval: a.cfg.Alerting.Throttle.Interval,
		Burst:    a.cfg.Alerting.Throttle.Burst,
	})
	a.Monitor = monitor.New(a.Registry, notifier, monitor.Config{
		Interval:   a.cfg.Monitor.CheckInterval,
		Thresholds: a.cfg.Monitor.Thresholds,
	}, opts...)
}

func (a *App) buildAPI() {
	a.Health = health.NewManager(a.cfg.Version)
	a.Health.RegisterChecker(health.NewPingChecker("catalog", a.Store))
	a.Health.RegisterChecker(health.NewIntegrityChecker(a.Store.Path(), 10*time.Minute))
	a.Health.RegisterChecker(health.NewDevicePoolChecker(a.Registry))
	a.Health.RegisterChecker(health.NewFuncChecker("alerting", func(context.Context) health.CheckResult {
		if open := a.Alerts.OpenSinks(); len(open) > 0 {
			return health.CheckResult{Status: health.StatusDegraded, Message: "circuit open: " + strings.Join(open, ",")}
		}
		return health.CheckResult{Status: health.StatusHealthy, Message: strings.Join(a.Alerts.Sinks(), ",")}
	}))

	tracing := ""
	if a.cfg.Telemetry.Enabled {
		tracing = a.cfg.LogService
	}
	a.Server = api.New(api.Config{
		ListenAddr:     a.cfg.API.ListenAddr,
		RateLimit:      a.cfg.API.RateLimit,
		TracingService: tracing,
	}, a.Dispatch, a.Health)
}

// Run starts the workers and the API and blocks until ctx is cancelled or
// one of them fails. The tuner state is cleaned on the way out.
func (a *App) Run(ctx context.Context) error {
	defer a.Dispatch.Clean()

	a.logger.Info().
		Str(log.FieldEvent, "daemon.started").
		Str("version", a.cfg.Version).
		Int("devices", len(a.Registry.IDs())).
		Str("backend", a.cfg.Backend.Kind).
		Msg("tunerd running")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Orchestrator.Run(ctx) })
	g.Go(func() error { return a.Monitor.Run(ctx) })
	g.Go(func() error { return a.Dispatch.ListenFaults(ctx, a.Bus) })
	g.Go(func() error { return a.watchConfig(ctx) })
	g.Go(func() error {
		if err := a.Server.Run(ctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// watchConfig re-applies the hot-reloadable settings on every config change.
func (a *App) watchConfig(ctx context.Context) error {
	if a.holder == nil {
		return nil
	}
	if err := a.holder.StartWatcher(ctx); err != nil {
		a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
	}
	ch := make(chan config.AppConfig, 1)
	a.holder.RegisterListener(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg := <-ch:
			a.apply(ctx, cfg)
		}
	}
}

func (a *App) apply(ctx context.Context, cfg config.AppConfig) {
	a.Monitor.SetThresholds(cfg.Monitor.Thresholds)

	recs, err := cfg.DeviceRecords()
	if err == nil {
		err = a.Store.SeedDevices(ctx, recs)
	}
	if err == nil {
		recs, err = a.Store.ListDevices(ctx)
	}
	if err != nil {
		a.logger.Warn().Err(err).Str(log.FieldEvent, "config.devices_failed").Msg("device records not refreshed")
		return
	}
	a.Registry.Refresh(recs)
	a.logger.Info().Str(log.FieldEvent, "config.applied").Int("devices", len(recs)).Msg("configuration applied")
}

// Shutdown releases every resource New opened.
func (a *App) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return a.hooks.run(ctx)
}
