package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"loyalgate/internal/platform/config"
	"loyalgate/internal/platform/httpserver"
	"loyalgate/internal/platform/logger"
	"loyalgate/internal/platform/metrics"
	"loyalgate/internal/platform/telemetry"
)

// janitorInterval is how often expired counters and idle fallback buckets are swept.
const janitorInterval = time.Minute

// main wires configuration, stores and the admission pipeline, then serves until SIGINT or
// SIGTERM. Loyalty business handlers mount behind the same pipeline.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "loyalgate:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log, cfg.Server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(cfg.Telemetry, os.Stdout, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error("tracer shutdown failed", "error", err)
		}
	}()

	reg := metrics.NewRegistry()
	app, err := build(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	defer app.Close()

	if cfg.Bootstrap.Enabled {
		if err := app.bootstrap(ctx, cfg.Bootstrap); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
	}

	srv := httpserver.New(cfg.Server, app.router)
	log.Info("starting loyalgate",
		"addr", cfg.Server.Addr,
		"environment", cfg.Server.Environment,
		"ratelimit_store", cfg.RateLimit.Store,
		"tenant_store", cfg.Tenant.Store,
		"auth_store", cfg.Auth.Store,
		"audit_kafka", cfg.Audit.KafkaEnabled(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpserver.Run(gctx, srv, cfg.Server, log) })
	for _, job := range app.background {
		g.Go(func() error { return job(gctx) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("loyalgate stopped")
	return nil
}
