// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of carebridge.
//
// carebridge is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads server configuration from a YAML file with
// CAREBRIDGE_* environment variable overrides.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/carebridge/carebridge/pkg/pingate"
	"github.com/carebridge/carebridge/pkg/ratelimit"
	"github.com/carebridge/carebridge/pkg/webauthn"
)

// Config represents the complete server configuration.
type Config struct {
	Server       ServerConfig     `yaml:"server"`
	RelyingParty webauthn.Config  `yaml:"relying_party"`
	Session      SessionConfig    `yaml:"session"`
	EmergencyPin pingate.Config   `yaml:"emergency_pin"`
	RateLimit    ratelimit.Config `yaml:"ratelimit"`
	Logging      LoggingConfig    `yaml:"logging"`
	Metrics      MetricsConfig    `yaml:"metrics"`
	Storage      StorageConfig    `yaml:"storage"`

	// Production hardens cookies (Secure attribute) and is expected to
	// be set on any deployment reachable over HTTPS.
	Production bool `yaml:"production"`
}

// ServerConfig contains listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SessionConfig contains session cookie settings.
type SessionConfig struct {
	Secret     string        `yaml:"secret"`
	CookieName string        `yaml:"cookie_name"`
	TTL        time.Duration `yaml:"ttl"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is "memory" or "file".
	Backend string `yaml:"backend"`

	// DataDir is the root directory for the file backend.
	DataDir string `yaml:"data_dir"`
}

// Default returns a development configuration.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{Host: "localhost", Port: 8080},
		RelyingParty: webauthn.Config{
			RPID:          "localhost",
			RPDisplayName: "CareBridge",
			RPOrigins:     []string{"http://localhost:8080"},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true},
		Storage: StorageConfig{Backend: "memory"},
		RateLimit: ratelimit.Config{
			Enabled: true,
		},
	}
	cfg.RateLimit.SetDefaults()
	return cfg
}

// Load reads configuration from a YAML file and applies environment
// variable overrides. An empty path starts from the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - config file path is provided by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies CAREBRIDGE_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("CAREBRIDGE_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("CAREBRIDGE_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			log.Printf("Warning: invalid CAREBRIDGE_PORT value %q, using %d", portStr, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}
	if level := os.Getenv("CAREBRIDGE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("CAREBRIDGE_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	if secret := os.Getenv("CAREBRIDGE_SESSION_SECRET"); secret != "" {
		cfg.Session.Secret = secret
	}
	if secret := os.Getenv("CAREBRIDGE_PIN_SECRET"); secret != "" {
		cfg.EmergencyPin.Secret = secret
	}
	if rpID := os.Getenv("CAREBRIDGE_RP_ID"); rpID != "" {
		cfg.RelyingParty.RPID = rpID
	}
	if origins := os.Getenv("CAREBRIDGE_RP_ORIGINS"); origins != "" {
		cfg.RelyingParty.RPOrigins = splitAndTrim(origins)
	}
	if backend := os.Getenv("CAREBRIDGE_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if dataDir := os.Getenv("CAREBRIDGE_DATA_DIR"); dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if prod := os.Getenv("CAREBRIDGE_PRODUCTION"); prod != "" {
		v, err := strconv.ParseBool(prod)
		if err != nil {
			log.Printf("Warning: invalid CAREBRIDGE_PRODUCTION value %q, ignoring", prod)
		} else {
			cfg.Production = v
		}
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Session.Secret == "" {
		return fmt.Errorf("session secret is required (session.secret or CAREBRIDGE_SESSION_SECRET)")
	}
	if c.EmergencyPin.Secret == "" {
		return fmt.Errorf("emergency pin secret is required (emergency_pin.secret or CAREBRIDGE_PIN_SECRET)")
	}

	c.RelyingParty.SetDefaults()
	if err := c.RelyingParty.Validate(); err != nil {
		return fmt.Errorf("relying party: %w", err)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage data_dir is required for the file backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory or file)", c.Storage.Backend)
	}

	return nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
