// Package config loads application configuration from an optional YAML file
// and environment variables. Environment variables always win, so a deployed
// container can override any file setting without editing it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the validated application configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`

	// ExecutorURL is the base URL of the external scenario executor
	// service. Empty disables auto-test handoff; runs stay pending.
	ExecutorURL string `yaml:"executor_url"`

	ExecutorTimeout time.Duration `yaml:"-"`
	RawExecutorTO   string        `yaml:"executor_timeout"`

	// GitHubTimeout bounds every provider call so a slow API cannot hang a
	// triggering request.
	GitHubTimeout time.Duration `yaml:"-"`
	RawGitHubTO   string        `yaml:"github_timeout"`

	// PollInterval > 0 enables the background scheduler tick. Zero keeps
	// polling purely request-driven.
	PollInterval time.Duration `yaml:"-"`
	RawInterval  string        `yaml:"poll_interval"`

	// PollWorkers bounds poll-all fan-out across subscriptions.
	PollWorkers int `yaml:"poll_workers"`

	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// Load reads the YAML file named by NIGHTWATCH_CONFIG (if set), applies
// environment overrides, fills defaults, and validates the result.
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("NIGHTWATCH_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("NIGHTWATCH_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("NIGHTWATCH_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("NIGHTWATCH_EXECUTOR_URL"); ok {
		cfg.ExecutorURL = v
	}
	if v, ok := os.LookupEnv("NIGHTWATCH_EXECUTOR_TIMEOUT"); ok {
		cfg.RawExecutorTO = v
	}
	if v, ok := os.LookupEnv("NIGHTWATCH_GITHUB_TIMEOUT"); ok {
		cfg.RawGitHubTO = v
	}
	if v, ok := os.LookupEnv("NIGHTWATCH_POLL_INTERVAL"); ok {
		cfg.RawInterval = v
	}
	if v, ok := os.LookupEnv("NIGHTWATCH_POLL_WORKERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollWorkers = n
		}
	}
	if v, ok := os.LookupEnv("NIGHTWATCH_LOG_FILE"); ok {
		cfg.LogFile = v
	}
	if v, ok := os.LookupEnv("NIGHTWATCH_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
}

func (c *Config) setDefaults() error {
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8080"
	}
	if c.DBPath == "" {
		c.DBPath = "nightwatch.db"
	}

	if c.RawExecutorTO == "" {
		c.RawExecutorTO = "15m"
	}
	d, err := time.ParseDuration(c.RawExecutorTO)
	if err != nil {
		return fmt.Errorf("executor_timeout has invalid duration %q: %w", c.RawExecutorTO, err)
	}
	c.ExecutorTimeout = d

	if c.RawGitHubTO == "" {
		c.RawGitHubTO = "20s"
	}
	d, err = time.ParseDuration(c.RawGitHubTO)
	if err != nil {
		return fmt.Errorf("github_timeout has invalid duration %q: %w", c.RawGitHubTO, err)
	}
	c.GitHubTimeout = d

	if c.RawInterval != "" {
		d, err = time.ParseDuration(c.RawInterval)
		if err != nil {
			return fmt.Errorf("poll_interval has invalid duration %q: %w", c.RawInterval, err)
		}
		c.PollInterval = d
	}

	if c.PollWorkers == 0 {
		c.PollWorkers = 4
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	return nil
}

func (c *Config) validate() error {
	if c.PollWorkers < 1 {
		return fmt.Errorf("poll_workers must be positive, got %d", c.PollWorkers)
	}
	if c.GitHubTimeout <= 0 {
		return fmt.Errorf("github_timeout must be positive, got %s", c.GitHubTimeout)
	}
	if c.ExecutorTimeout <= 0 {
		return fmt.Errorf("executor_timeout must be positive, got %s", c.ExecutorTimeout)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll_interval must not be negative, got %s", c.PollInterval)
	}
	return nil
}
