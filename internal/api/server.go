// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api is the HTTP control surface of tunerd.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/tunerpool/internal/api/middleware"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/dispatch"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/domain/tuner/scan"
	"github.com/ManuGH/tunerpool/internal/health"
	"github.com/ManuGH/tunerpool/internal/log"
)

const shutdownTimeout = 10 * time.Second

// Dispatcher is the subset of dispatch.Service the API drives.
type Dispatcher interface {
	StartStream(ctx context.Context, req dispatch.StreamRequest) (dispatch.StreamResponse, error)
	StopStream(ctx context.Context, sessionID string)
	StartScan(ctx context.Context, req dispatch.ScanRequest) (dispatch.ScanResponse, error)
	StopScan(ctx context.Context, deviceID string)
	Devices() []dispatch.DeviceStatus
	Sessions() []model.StreamSession
	ScanStatus() scan.Status
}

// Config configures the HTTP server.
type Config struct {
	ListenAddr string
	// RateLimit is requests per minute per client IP. Zero disables it.
	RateLimit int
	// TracingService enables otelhttp spans when non-empty.
	TracingService string
}

// Server serves the control API, the probes and /metrics.
type Server struct {
	cfg    Config
	svc    Dispatcher
	health *health.Manager
	router chi.Router
	logger zerolog.Logger
}

// New builds the server and its routes.
func New(cfg Config, svc Dispatcher, hm *health.Manager) *Server {
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		health: hm,
		logger: log.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	// Probes and scrapes bypass rate limiting and tracing.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recoverer)
		r.Get("/healthz", s.health.ServeHealth)
		r.Get("/readyz", s.health.ServeReady)
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Route("/api/v1", func(r chi.Router) {
		middleware.ApplyStack(r, middleware.StackConfig{
			EnableMetrics:  true,
			TracingService: s.cfg.TracingService,
			EnableLogging:  true,
			RateLimit:      s.cfg.RateLimit,
		})
		r.Post("/streams", s.handleStartStream)
		r.Delete("/streams/{sessionID}", s.handleStopStream)
		r.Post("/scans", s.handleStartScan)
		r.Delete("/scans/{deviceID}", s.handleStopScan)
		r.Get("/devices", s.handleDevices)
		r.Get("/sessions", s.handleSessions)
		r.Get("/scan", s.handleScanStatus)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" is not allowed here")
	})
	return r
}

// Run serves on cfg.ListenAddr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str(log.FieldEvent, "api.listening").Str("addr", ln.Addr().String()).Msg("control API listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldEvent, "api.shutdown_failed").Msg("graceful shutdown failed")
		return err
	}
	<-errCh
	s.logger.Info().Str(log.FieldEvent, "api.stopped").Msg("control API stopped")
	return nil
}
