// Package main is the entry point for the baton controller.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"baton/internal/config"
	"baton/internal/controller"
	"baton/internal/engine"
	"baton/internal/logger"
	"baton/internal/observability"
	"baton/internal/store"
	"baton/internal/store/postgres"
	"baton/internal/store/sqlite"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to an optional YAML config file")
	flag.Parse()

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Setup the store. Both backends run their migrations on open.
	var st store.Store
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		st, err = sqlite.Open(cfg.SQLitePath)
	default:
		st, err = postgres.New(ctx, cfg.DatabaseURL)
	}
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "baton-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics("baton-controller")
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// Use Observable Gauges (Async) that query the DB only when scraped.
	meter := otel.Meter("baton-controller")
	registerJobGauge(meter, st, "baton.jobs.pending", "Jobs waiting for a runner", store.JobStatusPending)
	registerJobGauge(meter, st, "baton.jobs.running", "Jobs currently claimed by a runner", store.JobStatusRunning)

	// Expansion policy: file if configured, built-in defaults otherwise.
	policy := engine.DefaultExpansionPolicy()
	if cfg.ExpansionPolicyPath != "" {
		policy, err = engine.LoadExpansionPolicy(cfg.ExpansionPolicyPath)
		if err != nil {
			log.Fatalf("Failed to load expansion policy: %v", err)
		}
	}

	eng := engine.New(st, policy, logger.New("baton-controller"))

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(controller.Config{
		Addr:          addr,
		InternalToken: cfg.InternalToken,
		JobMaxRuntime: cfg.JobMaxRuntime,
	}, st, eng, metricsHandler)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Baton controller starting on %s", addr)
		return srv.Run(gctx)
	})

	// Reaper: fails jobs that ran past the runtime ceiling. A ceiling of
	// zero disables the sweep.
	if cfg.JobMaxRuntime > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.ReapInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					reaped, err := eng.ReapStaleJobs(gctx, cfg.JobMaxRuntime)
					if err != nil {
						log.Printf("Reap sweep failed: %v", err)
						continue
					}
					if reaped > 0 {
						log.Printf("Reaped %d stale jobs", reaped)
					}
				}
			}
		})
	}

	// Graceful Shutdown. A second signal bypasses the drain.
	go func() {
		<-ctx.Done()
		stop()
		log.Println("Shutting down controller...")
	}()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Server stopped: %v", err)
	}
	log.Println("Server exited properly")
}

func registerJobGauge(meter metric.Meter, st store.Store, name, desc string, status store.JobStatus) {
	_, err := meter.Int64ObservableGauge(name,
		metric.WithDescription(desc),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := st.CountJobsByStatus(ctx, status)
			if err != nil {
				log.Printf("Failed to count %s jobs: %v", status, err)
				return nil // Don't crash metrics scrape on DB error
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		log.Printf("Failed to register %s metric: %v", name, err)
	}
}
