// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

// Package config loads server configuration using Koanf v2 with layered
// sources: built-in defaults, then an optional YAML file, then
// environment variables. ENV > file > defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"golang.org/x/mod/semver"

	"github.com/kioskd/kioskd/internal/models"
)

// DefaultConfigPaths lists where config files are searched, first hit wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/kioskd/config.yaml",
	"/etc/kioskd/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "KIOSKD_CONFIG_PATH"

// minDuration is the floor applied to configured command durations.
const minDuration = 100 * time.Millisecond

// Config is the root configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Registration RegistrationConfig `koanf:"registration"`
	Defaults     Defaults           `koanf:"defaults"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// RegistrationConfig gates the device handshake.
type RegistrationConfig struct {
	// Secret is the shared registration key. Empty disables the check.
	Secret string `koanf:"secret"`

	// MinClientVersion is the lowest admitted client version (semver).
	MinClientVersion string `koanf:"min_client_version" validate:"required"`
}

// Defaults holds the command parameter defaults injected into the
// dispatcher. Ratios are clamped to [0.05, 1.0] and durations
// floor-clamped here, at load time, never at call time.
type Defaults struct {
	IdentifyDuration time.Duration `koanf:"identify_duration"`
	ForwardDuration  time.Duration `koanf:"forward_duration"`
	RewindDuration   time.Duration `koanf:"rewind_duration"`
	Brightness       float64       `koanf:"brightness"`
	Volume           float64       `koanf:"volume"`
}

// LoggingConfig configures the zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    5000,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "/data/kioskd.db",
		},
		Registration: RegistrationConfig{
			Secret:           "",
			MinClientVersion: "3.0.0",
		},
		Defaults: Defaults{
			IdentifyDuration: 3 * time.Second,
			ForwardDuration:  15 * time.Second,
			RewindDuration:   15 * time.Second,
			Brightness:       1.0,
			Volume:           0.5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// KIOSKD_* environment variables, then validates and clamps it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("KIOSKD_", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.clamp()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envVarPaths maps KIOSKD_* environment variables to config paths.
// Variables outside this table are ignored.
var envVarPaths = map[string]string{
	"KIOSKD_HOST":                      "server.host",
	"KIOSKD_PORT":                      "server.port",
	"KIOSKD_TIMEOUT":                   "server.timeout",
	"KIOSKD_DATABASE_PATH":             "database.path",
	"KIOSKD_REGISTRATION_SECRET":       "registration.secret",
	"KIOSKD_MIN_CLIENT_VERSION":        "registration.min_client_version",
	"KIOSKD_DEFAULT_IDENTIFY_DURATION": "defaults.identify_duration",
	"KIOSKD_DEFAULT_FORWARD_DURATION":  "defaults.forward_duration",
	"KIOSKD_DEFAULT_REWIND_DURATION":   "defaults.rewind_duration",
	"KIOSKD_DEFAULT_BRIGHTNESS":        "defaults.brightness",
	"KIOSKD_DEFAULT_VOLUME":            "defaults.volume",
	"KIOSKD_LOG_LEVEL":                 "logging.level",
	"KIOSKD_LOG_FORMAT":                "logging.format",
	"KIOSKD_LOG_CALLER":                "logging.caller",
}

func envTransformFunc(key string) string {
	return envVarPaths[key]
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// clamp bounds the dispatcher defaults once, at load time.
func (c *Config) clamp() {
	c.Defaults.Brightness = clampRatio(c.Defaults.Brightness)
	c.Defaults.Volume = clampRatio(c.Defaults.Volume)
	c.Defaults.IdentifyDuration = clampDuration(c.Defaults.IdentifyDuration)
	c.Defaults.ForwardDuration = clampDuration(c.Defaults.ForwardDuration)
	c.Defaults.RewindDuration = clampDuration(c.Defaults.RewindDuration)
	if c.Server.Timeout <= 0 {
		c.Server.Timeout = 30 * time.Second
	}
}

func clampRatio(v float64) float64 {
	switch {
	case v < models.MinRatio:
		return models.MinRatio
	case v > models.MaxRatio:
		return models.MaxRatio
	default:
		return v
	}
}

func clampDuration(d time.Duration) time.Duration {
	if d < minDuration {
		return minDuration
	}
	return d
}

// Validate checks structural constraints and the semver gate value.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if !semver.IsValid(CanonicalVersion(c.Registration.MinClientVersion)) {
		return fmt.Errorf("configuration validation failed: min_client_version %q is not a semantic version", c.Registration.MinClientVersion)
	}
	return nil
}

// CanonicalVersion normalizes a bare "major.minor.patch" string to the
// "vX.Y.Z" form golang.org/x/mod/semver expects.
func CanonicalVersion(v string) string {
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}
