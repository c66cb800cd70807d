// Package config loads labexec server configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file and flag settings.
const (
	EnvGalaxyURL    = "GALAXY_URL"
	EnvGalaxyAPIKey = "GALAXY_API_KEY"
	EnvServerURL    = "LABEXEC_SERVER"
)

// ServerConfig holds configuration for the labexec server.
type ServerConfig struct {
	Addr         string `yaml:"addr"`          // Listen address (default ":8090")
	LogLevel     string `yaml:"log_level"`     // Log level: debug, info, warn, error
	LogFormat    string `yaml:"log_format"`    // Log format: text, json
	DBPath       string `yaml:"db_path"`       // SQLite database path (default ~/.labexec/labexec.db, ":memory:" for testing)
	WorkflowsDir string `yaml:"workflows_dir"` // Directory of workflow definition files

	Galaxy    GalaxyConfig    `yaml:"galaxy"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Pool      PoolConfig      `yaml:"pool"`
}

// GalaxyConfig configures the remote execution manager connection.
type GalaxyConfig struct {
	URL               string        `yaml:"url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`      // per HTTP request
	CallTimeout       time.Duration `yaml:"call_timeout"` // per remote operation, retries included
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	LinkData          bool          `yaml:"link_data"` // link uploaded files instead of copying them
}

// SchedulerConfig configures the polling loop.
type SchedulerConfig struct {
	PollInterval       time.Duration `yaml:"poll_interval"`
	CleanupAfter       time.Duration `yaml:"cleanup_after"` // 0 disables automatic cleanup
	MaxConcurrentPolls int           `yaml:"max_concurrent_polls"`
}

// PoolConfig sizes the worker pool running submission operations.
type PoolConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         ":8090",
		LogLevel:     "info",
		LogFormat:    "text",
		WorkflowsDir: "workflows",
		Galaxy: GalaxyConfig{
			URL:               "http://localhost:8080",
			Timeout:           30 * time.Second,
			CallTimeout:       60 * time.Second,
			MaxRetries:        3,
			RetryDelay:        time.Second,
			RequestsPerSecond: 10,
			Burst:             10,
		},
		Scheduler: SchedulerConfig{
			PollInterval:       5 * time.Second,
			MaxConcurrentPolls: 8,
		},
		Pool: PoolConfig{
			Workers:   4,
			QueueSize: 64,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path. A missing
// file is not an error when path is empty.
func Load(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("config file %s not found", path)
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides settings from the environment.
func (c *ServerConfig) ApplyEnv() {
	if v := os.Getenv(EnvGalaxyURL); v != "" {
		c.Galaxy.URL = v
	}
	if v := os.Getenv(EnvGalaxyAPIKey); v != "" {
		c.Galaxy.APIKey = v
	}
}

// Validate rejects settings the server cannot run with.
func (c ServerConfig) Validate() error {
	var errs []error
	if c.Galaxy.URL == "" {
		errs = append(errs, errors.New("galaxy.url is required"))
	}
	if c.Scheduler.PollInterval < 0 {
		errs = append(errs, errors.New("scheduler.poll_interval must not be negative"))
	}
	if c.Scheduler.CleanupAfter < 0 {
		errs = append(errs, errors.New("scheduler.cleanup_after must not be negative"))
	}
	if c.Pool.QueueSize < 0 {
		errs = append(errs, errors.New("pool.queue_size must not be negative"))
	}
	return errors.Join(errs...)
}

// ServerURL returns the labexec server URL for API clients: the
// LABEXEC_SERVER environment variable, or fallback.
func ServerURL(fallback string) string {
	if v := os.Getenv(EnvServerURL); v != "" {
		return v
	}
	return fallback
}
