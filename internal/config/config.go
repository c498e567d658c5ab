// Package config loads controller and runner settings from an optional
// YAML file and the environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers the controller can run on.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Runtimes the runner can execute harnesses in.
const (
	RuntimeExec   = "exec"
	RuntimeDocker = "docker"
)

// Config holds all configuration values for the application.
type Config struct {
	// StoreDriver selects the database backend: postgres or sqlite.
	StoreDriver string

	// Database connection string, required for the postgres driver.
	DatabaseURL string

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string

	// HTTP server port for the controller.
	HTTPPort int

	// URL of the controller (e.g. "http://localhost:6161"), used by the
	// runner and the CLI.
	ControllerURL string

	// InternalToken guards the /internal/ runner routes. Empty disables
	// the check, which is only sensible in local development.
	InternalToken string

	// ExpansionPolicyPath points at a YAML fan-out policy. Empty keeps
	// the built-in default.
	ExpansionPolicyPath string

	// ReapInterval is how often the controller sweeps for stale jobs.
	ReapInterval time.Duration

	// JobMaxRuntime is how long a job may stay running before the
	// reaper fails it. Zero disables reaping.
	JobMaxRuntime time.Duration

	// Runner-specific configuration. RunnerNamespace is the namespace ID
	// this runner serves; a runner serves exactly one.
	RunnerNamespace    string
	RunnerConcurrency  int
	RunnerPollInterval time.Duration
	RunnerMaxBackoff   time.Duration

	// Runtime selects how the runner executes harnesses: exec or docker.
	Runtime        string
	RuntimeWorkDir string

	// HarnessCommands maps a harness to the CLI the exec runtime spawns.
	// A missing entry falls back to the harness name itself.
	HarnessCommands map[string]string

	// HarnessImages maps a harness to the image the docker runtime runs.
	// A missing entry falls back to "baton/<harness>:latest".
	HarnessImages map[string]string

	// OTELEndpoint is the OTLP collector for traces.
	OTELEndpoint string
}

// fileConfig mirrors Config for YAML decoding. Durations are strings so
// the file can say "30s" instead of nanosecond integers.
type fileConfig struct {
	StoreDriver        string            `yaml:"store_driver"`
	DatabaseURL        string            `yaml:"database_url"`
	SQLitePath         string            `yaml:"sqlite_path"`
	HTTPPort           int               `yaml:"http_port"`
	ControllerURL      string            `yaml:"controller_url"`
	InternalToken      string            `yaml:"internal_token"`
	ExpansionPolicy    string            `yaml:"expansion_policy"`
	ReapInterval       string            `yaml:"reap_interval"`
	JobMaxRuntime      string            `yaml:"job_max_runtime"`
	RunnerNamespace    string            `yaml:"runner_namespace"`
	RunnerConcurrency  int               `yaml:"runner_concurrency"`
	RunnerPollInterval string            `yaml:"runner_poll_interval"`
	RunnerMaxBackoff   string            `yaml:"runner_max_backoff"`
	Runtime            string            `yaml:"runtime"`
	RuntimeWorkDir     string            `yaml:"runtime_workdir"`
	HarnessCommands    map[string]string `yaml:"harness_commands"`
	HarnessImages      map[string]string `yaml:"harness_images"`
	OTELEndpoint       string            `yaml:"otel_endpoint"`
}

// Load reads configuration from an optional YAML file at path, then lets
// environment variables override it. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{
		StoreDriver:        DriverPostgres,
		SQLitePath:         "baton.db",
		HTTPPort:           6161,
		ControllerURL:      "http://localhost:6161",
		ReapInterval:       1 * time.Minute,
		JobMaxRuntime:      30 * time.Minute,
		RunnerConcurrency:  1,
		RunnerPollInterval: 1 * time.Second,
		RunnerMaxBackoff:   30 * time.Second,
		Runtime:            RuntimeExec,
		OTELEndpoint:       "localhost:4317",
	}

	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database_url is required (env: DATABASE_URL)")
		}
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite_path is required (env: SQLITE_PATH)")
		}
	default:
		return nil, fmt.Errorf("unknown store_driver %q, want %s or %s", cfg.StoreDriver, DriverPostgres, DriverSQLite)
	}

	if cfg.Runtime != RuntimeExec && cfg.Runtime != RuntimeDocker {
		return nil, fmt.Errorf("unknown runtime %q, want %s or %s", cfg.Runtime, RuntimeExec, RuntimeDocker)
	}
	if cfg.RunnerConcurrency < 1 {
		return nil, fmt.Errorf("runner_concurrency must be at least 1, got %d", cfg.RunnerConcurrency)
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setStr(&cfg.StoreDriver, fc.StoreDriver)
	setStr(&cfg.DatabaseURL, fc.DatabaseURL)
	setStr(&cfg.SQLitePath, fc.SQLitePath)
	if fc.HTTPPort != 0 {
		cfg.HTTPPort = fc.HTTPPort
	}
	setStr(&cfg.ControllerURL, fc.ControllerURL)
	setStr(&cfg.InternalToken, fc.InternalToken)
	setStr(&cfg.ExpansionPolicyPath, fc.ExpansionPolicy)
	if err := setDur(&cfg.ReapInterval, fc.ReapInterval, "reap_interval"); err != nil {
		return err
	}
	if err := setDur(&cfg.JobMaxRuntime, fc.JobMaxRuntime, "job_max_runtime"); err != nil {
		return err
	}
	setStr(&cfg.RunnerNamespace, fc.RunnerNamespace)
	if fc.RunnerConcurrency != 0 {
		cfg.RunnerConcurrency = fc.RunnerConcurrency
	}
	if err := setDur(&cfg.RunnerPollInterval, fc.RunnerPollInterval, "runner_poll_interval"); err != nil {
		return err
	}
	if err := setDur(&cfg.RunnerMaxBackoff, fc.RunnerMaxBackoff, "runner_max_backoff"); err != nil {
		return err
	}
	setStr(&cfg.Runtime, fc.Runtime)
	setStr(&cfg.RuntimeWorkDir, fc.RuntimeWorkDir)
	if len(fc.HarnessCommands) > 0 {
		cfg.HarnessCommands = fc.HarnessCommands
	}
	if len(fc.HarnessImages) > 0 {
		cfg.HarnessImages = fc.HarnessImages
	}
	setStr(&cfg.OTELEndpoint, fc.OTELEndpoint)
	return nil
}

func applyEnv(cfg *Config) error {
	setStr(&cfg.StoreDriver, os.Getenv("STORE_DRIVER"))
	setStr(&cfg.DatabaseURL, os.Getenv("DATABASE_URL"))
	setStr(&cfg.SQLitePath, os.Getenv("SQLITE_PATH"))
	if err := envInt(&cfg.HTTPPort, "PORT"); err != nil {
		return err
	}
	setStr(&cfg.ControllerURL, os.Getenv("CONTROLLER_URL"))
	setStr(&cfg.InternalToken, os.Getenv("BATON_INTERNAL_TOKEN"))
	setStr(&cfg.ExpansionPolicyPath, os.Getenv("EXPANSION_POLICY"))
	if err := envDuration(&cfg.ReapInterval, "REAP_INTERVAL"); err != nil {
		return err
	}
	if err := envDuration(&cfg.JobMaxRuntime, "JOB_MAX_RUNTIME"); err != nil {
		return err
	}
	setStr(&cfg.RunnerNamespace, os.Getenv("RUNNER_NAMESPACE"))
	if err := envInt(&cfg.RunnerConcurrency, "RUNNER_CONCURRENCY"); err != nil {
		return err
	}
	if err := envDuration(&cfg.RunnerPollInterval, "RUNNER_POLL_INTERVAL"); err != nil {
		return err
	}
	if err := envDuration(&cfg.RunnerMaxBackoff, "RUNNER_MAX_BACKOFF"); err != nil {
		return err
	}
	setStr(&cfg.Runtime, os.Getenv("RUNTIME"))
	setStr(&cfg.RuntimeWorkDir, os.Getenv("RUNTIME_WORKDIR"))
	setStr(&cfg.OTELEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	return nil
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDur(dst *time.Duration, v, name string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}

func envInt(dst *int, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}

func envDuration(dst *time.Duration, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}
