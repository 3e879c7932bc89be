// Package app wires the Config, Router, and downstream listeners together into the runnable
// process: the two-phase bootstrap-then-run shape the teacher uses for its own aggregator.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"atrax/internal/config"
	"atrax/internal/downstream"
	"atrax/internal/registry"
	"atrax/pkg/logging"
)

// shutdownGrace bounds how long in-flight downstream requests and upstream sessions get to
// drain after a termination signal before the process gives up waiting.
const shutdownGrace = 5 * time.Second

// Options controls how NewApplication bootstraps: which config file to load and whether to
// run with debug-level logging.
type Options struct {
	ConfigPath string
	Debug      bool
	Silent     bool
}

// Application owns the fully wired Router and downstream Server for one proxy instance.
type Application struct {
	cfg        *config.Config
	router     *registry.Router
	downstream *downstream.Server
}

// NewApplication loads and validates the configuration file at opts.ConfigPath, then
// constructs the Router and downstream Server. It does not start anything yet; call Run.
func NewApplication(opts Options) (*Application, error) {
	level := logging.LevelInfo
	if opts.Debug {
		level = logging.LevelDebug
	}
	var out io.Writer = os.Stderr
	if opts.Silent {
		out = io.Discard
	}
	logging.Init(level, out)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", opts.ConfigPath, err)
	}
	logging.Info("Bootstrap", "loaded configuration from %s (%d upstream servers)", opts.ConfigPath, len(cfg.MCPServers))

	router := registry.New(cfg)
	server := downstream.New(router, cfg)

	return &Application{cfg: cfg, router: router, downstream: server}, nil
}

// Run starts every upstream session and both downstream listeners, then blocks until ctx is
// cancelled or a termination signal arrives, draining for up to shutdownGrace before
// returning.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.router.Start(ctx); err != nil {
		return fmt.Errorf("failed to start upstream sessions: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.downstream.ListenAndServe(ctx)
	}()

	stdioErrCh := make(chan error, 1)
	go func() {
		stdioErrCh <- a.downstream.ServeStdio(ctx, os.Stdin, os.Stdout)
	}()

	select {
	case <-ctx.Done():
		logging.Info("Bootstrap", "shutdown signal received, draining for up to %s", shutdownGrace)
	case err := <-errCh:
		if err != nil {
			logging.Error("Bootstrap", err, "HTTP listener exited unexpectedly")
		}
	case err := <-stdioErrCh:
		if err != nil {
			logging.Error("Bootstrap", err, "stdio listener exited unexpectedly")
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	done := make(chan struct{})
	go func() {
		a.router.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-drainCtx.Done():
		logging.Warn("Bootstrap", "shutdown grace period elapsed before all sessions stopped")
	}
	return nil
}

// Router exposes the underlying Router, so callers can inspect session state.
func (a *Application) Router() *registry.Router { return a.router }

// Config exposes the loaded, validated configuration.
func (a *Application) Config() *config.Config { return a.cfg }
