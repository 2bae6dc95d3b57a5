package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/colav/quyca-launcher/internal/core/domain"
	"github.com/colav/quyca-launcher/internal/shell/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// =============================================================================
// Server
// =============================================================================

// Server runs the HTTP API and one watcher per live instance.
type Server struct {
	config     *Config
	httpServer *http.Server
	launcher   *launcher
	logger     *slog.Logger

	// Watchers run under ctx and are cancelled on shutdown.
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	watching map[string]bool
	wg       sync.WaitGroup
}

// NewServer connects to the store and Docker and builds the HTTP server.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ctx, cancel := context.WithCancel(context.Background())

	l, err := openLauncher(ctx, cfg, logger, reg, nil)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Server{
		config:   cfg,
		launcher: l,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		watching: make(map[string]bool),
	}

	handler := api.NewHandler(l.orchestrator, l.store, l.docker, logger,
		api.WithGatherer(reg),
		api.WithLaunchHook(s.watch),
	)

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s, nil
}

// Start resumes watchers for instances left running by a previous launcher,
// then serves HTTP until a shutdown signal or ctx is done.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	live, err := s.launcher.orchestrator.LiveInstances(ctx)
	if err != nil {
		s.Shutdown(context.Background())
		return &CommandError{Op: "resume watchers", Err: err, ExitCode: ExitStoreError}
	}
	for _, inst := range live {
		s.logger.Info("resuming watcher", "profile", inst.Profile, "instance_id", inst.ID, "state", inst.State)
		s.watch(inst)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.Shutdown(context.Background())
		return &CommandError{Op: "serve", Err: err, ExitCode: ExitHTTPServerError}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// watch starts a watcher for inst unless one is already running.
func (s *Server) watch(inst *domain.ContainerInstance) {
	s.mu.Lock()
	if s.watching[inst.ID] {
		s.mu.Unlock()
		return
	}
	s.watching[inst.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.watching, inst.ID)
			s.mu.Unlock()
		}()

		err := s.launcher.orchestrator.Watch(s.ctx, inst.ID)
		switch {
		case err == nil:
			s.logger.Info("watcher finished", "profile", inst.Profile, "instance_id", inst.ID)
		case errors.Is(err, context.Canceled):
		default:
			s.logger.Error("watcher failed", "profile", inst.Profile, "instance_id", inst.ID, "error", err)
		}
	}()
}

// Shutdown stops the HTTP server, waits for watchers and closes connections.
// Running containers are left to Docker's restart policy.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.cancel()
	s.wg.Wait()

	s.launcher.Close()

	s.logger.Info("shutdown complete")
	return nil
}
