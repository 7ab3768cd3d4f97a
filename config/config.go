// Package config loads the runtime settings of assembly lifetimes from the
// environment, an optional .env file and an optional YAML overlay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds lifetime settings.
type Config struct {
	// Namespace prefixes Prometheus metric names.
	Namespace    string        `yaml:"namespace" validate:"required,excludesall=-."`
	Environment  string        `yaml:"environment" validate:"oneof=local production testing"`
	LogLevel     string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	StartTimeout time.Duration `yaml:"start_timeout" validate:"gte=0s"`
	StopTimeout  time.Duration `yaml:"stop_timeout" validate:"gte=0s"`
	Metrics      bool          `yaml:"metrics"`
	Tracing      bool          `yaml:"tracing"`
	// File is the YAML overlay read by Load, if any.
	File string `yaml:"-"`
}

// Load reads .env files (missing files are fine), builds a Config from the
// environment, applies the YAML overlay named by ASSEMBLY_CONFIG and validates
// the result.
//
//	cfg, err := config.Load()
func Load(envFiles ...string) (*Config, error) {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	// Non-fatal: .env is optional outside local development
	_ = godotenv.Load(files...)

	cfg := &Config{
		Namespace:    env("ASSEMBLY_NAMESPACE", "assembly"),
		Environment:  env("ASSEMBLY_ENV", "local"),
		LogLevel:     env("ASSEMBLY_LOG_LEVEL", "info"),
		StartTimeout: envDuration("ASSEMBLY_START_TIMEOUT", 30*time.Second),
		StopTimeout:  envDuration("ASSEMBLY_STOP_TIMEOUT", 30*time.Second),
		Metrics:      envBool("ASSEMBLY_METRICS", false),
		Tracing:      envBool("ASSEMBLY_TRACING", false),
		File:         env("ASSEMBLY_CONFIG", ""),
	}
	if cfg.File != "" {
		if err := cfg.Overlay(cfg.File); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Overlay replaces the fields set in the YAML file at path.
func (c *Config) Overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Logger builds a zap logger for the configured environment and level.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	if c.Environment == "production" {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// ── helpers ─────────────────────────────────────────────────────────────────

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
