// Package config loads server settings: built-in defaults, then an optional YAML file,
// then environment overrides.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr            string `yaml:"addr"`
		RequestTimeout  string `yaml:"requestTimeout"`
		ShutdownTimeout string `yaml:"shutdownTimeout"`
		JWTSecret       string `yaml:"jwtSecret"`
	} `yaml:"server"`
	// Postgres.URL empty keeps forms and submissions in memory
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Prepop struct {
		Timeout       string `yaml:"timeout"`
		RetryAttempts int    `yaml:"retryAttempts"`
		BaseDelay     string `yaml:"baseDelay"`
		CacheTTL      string `yaml:"cacheTTL"`
		CacheSize     int    `yaml:"cacheSize"`
	} `yaml:"prepop"`
	Progress struct {
		Debounce      string `yaml:"debounce"`
		RetentionDays int    `yaml:"retentionDays"`
	} `yaml:"progress"`
	Jobs struct {
		Concurrency int    `yaml:"concurrency"`
		StatsTTL    string `yaml:"statsTTL"`
	} `yaml:"jobs"`
}

// Default returns the settings used when nothing else is configured
func Default() Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Server.RequestTimeout = "60s"
	cfg.Server.ShutdownTimeout = "5s"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Prepop.Timeout = "10s"
	cfg.Prepop.RetryAttempts = 3
	cfg.Prepop.BaseDelay = "1s"
	cfg.Prepop.CacheTTL = "5m"
	cfg.Prepop.CacheSize = 100
	cfg.Progress.Debounce = "3s"
	cfg.Progress.RetentionDays = 7
	cfg.Jobs.Concurrency = 10
	cfg.Jobs.StatsTTL = "10m"
	return cfg
}

// Load reads YAML config from path on top of the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v, err := strconv.Atoi(getenv("JOBS_CONCURRENCY")); err == nil && v > 0 {
		c.Jobs.Concurrency = v
	}
}

// Duration parses a duration string or returns the fallback if empty or invalid
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
