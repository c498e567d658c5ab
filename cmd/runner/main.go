// Package main is the entry point for the baton runner.
// The runner is the execution half of the plane: it polls the controller
// for ready jobs in its namespace, claims them, and runs the agent
// harnesses. It owns concurrency, timeouts, and process management.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"baton/internal/config"
	"baton/internal/observability"
	"baton/internal/runner"
	"baton/internal/runner/harness"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.RunnerNamespace == "" {
		log.Fatal("runner_namespace is required: a runner serves exactly one namespace")
	}
	namespaceID, err := uuid.Parse(cfg.RunnerNamespace)
	if err != nil {
		log.Fatalf("Invalid runner_namespace %q: %v", cfg.RunnerNamespace, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "baton-runner", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Select harness backend based on configuration
	var h harness.Harness
	switch cfg.Runtime {
	case config.RuntimeDocker:
		dockerH, err := harness.NewDockerHarness(cfg.HarnessImages)
		if err != nil {
			log.Fatalf("Failed to create Docker harness: %v", err)
		}
		h = dockerH
		log.Println("Using docker harness")
	default:
		h = harness.NewExecHarness(cfg.HarnessCommands, cfg.RuntimeWorkDir)
		log.Printf("Using exec harness (workdir: %s)", cfg.RuntimeWorkDir)
	}

	client := runner.NewClient(cfg.ControllerURL, cfg.InternalToken)

	r := runner.New(client, h, runner.Config{
		ID:           hostnameOrDefault(),
		NamespaceID:  namespaceID,
		Concurrency:  cfg.RunnerConcurrency,
		PollInterval: cfg.RunnerPollInterval,
		MaxBackoff:   cfg.RunnerMaxBackoff,
		JobTimeout:   cfg.JobMaxRuntime,
	})

	log.Printf("Runner started for namespace %s with concurrency %d", namespaceID, cfg.RunnerConcurrency)
	go r.Run(ctx)

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics("baton-runner")
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// Start a dedicated metrics server on port 6162
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		log.Println("Runner metrics listening on :6162")
		if err := http.ListenAndServe(":6162", mux); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down runner...")
	cancel()

	<-r.Done()
}

func hostnameOrDefault() string {
	name, err := os.Hostname()
	if err != nil {
		return "runner"
	}
	return name
}
