// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads service configuration from defaults, an optional YAML
// file, and command-line flags, in that order of precedence.
package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the resolved service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`

	// Dev switches the service to the in-memory repository. State is lost
	// on restart; never use outside local development.
	Dev bool `koanf:"dev"`
}

// ServerConfig configures the API and metrics listeners.
type ServerConfig struct {
	// Addr is the API listen address.
	Addr string `koanf:"addr"`

	// MetricsAddr is the observability listen address.
	MetricsAddr string `koanf:"metrics_addr"`

	// SessionCookie is the name of the session cookie.
	SessionCookie string `koanf:"session_cookie"`

	// ExcludedPaths are request paths served without authentication.
	// Patterns ending in "/" match exactly; patterns ending in "*" match by
	// prefix.
	ExcludedPaths []string `koanf:"excluded_paths"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// AuthConfig configures auth service behavior.
type AuthConfig struct {
	// InvalidateSessionsOnReset logs the user out when a password reset
	// completes.
	InvalidateSessionsOnReset bool `koanf:"invalidate_sessions_on_reset"`
}

// flagKeys maps CLI flag names to config keys so commands can expose the
// conventional dashed spelling.
var flagKeys = map[string]string{
	"addr":           "server.addr",
	"metrics-addr":   "server.metrics_addr",
	"session-cookie": "server.session_cookie",
	"log-format":     "log.format",
	"log-level":      "log.level",
	"database-url":   "database.url",
}

func defaults() map[string]any {
	return map[string]any{
		"server.addr":           ":8080",
		"server.metrics_addr":   ":9100",
		"server.session_cookie": "session_id",
		// The application endpoints check their own session state and return
		// their own 401/403s; the guard covers everything else.
		"server.excluded_paths": []string{
			"/",
			"/users/",
			"/sessions/",
			"/profile/",
			"/reset_password/",
			"/api/v1/status/",
		},
		"log.format":                        "json",
		"log.level":                         "info",
		"database.url":                      "",
		"auth.invalidate_sessions_on_reset": false,
		"dev":                               false,
	}
}

// Load resolves configuration. path is an optional YAML file ("" skips it;
// a named file that does not exist is an error). flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").
			With("source", "defaults").
			Wrap(err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, oops.Code("CONFIG_FILE_MISSING").
				With("path", path).
				Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "file").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				key = f.Name
			}
			// An untouched flag must not clobber a file or default value.
			if !f.Changed && k.Exists(key) {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "flags").
				Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server.addr cannot be empty")
	}
	if c.Server.SessionCookie == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server.session_cookie cannot be empty")
	}
	if !c.Dev && c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required unless dev mode is enabled")
	}
	return nil
}
