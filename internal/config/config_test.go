// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/pkg/errutil"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("dev", false, "")
	require.NoError(t, flags.Parse([]string{"--dev"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ":9100", cfg.Server.MetricsAddr)
	assert.Equal(t, "session_id", cfg.Server.SessionCookie)
	assert.Contains(t, cfg.Server.ExcludedPaths, "/api/v1/status/")
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Dev)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9999"
  excluded_paths:
    - "/public/*"
log:
  level: debug
database:
  url: "postgres://localhost/gatehouse"
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, []string{"/public/*"}, cfg.Server.ExcludedPaths)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "postgres://localhost/gatehouse", cfg.Database.URL)
	// Untouched keys keep defaults.
	assert.Equal(t, "session_id", cfg.Server.SessionCookie)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9999"
database:
  url: "postgres://localhost/gatehouse"
`)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("server.addr", "", "")
	require.NoError(t, flags.Parse([]string{"--server.addr", ":7777"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Server.Addr)
}

func TestLoad_DashedFlagNames(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("database-url", "", "")
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{
		"--database-url", "postgres://localhost/gatehouse",
		"--log-level", "debug",
	}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/gatehouse", cfg.Database.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_FILE_MISSING")
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfig(t, "{not yaml::")
	_, err := Load(path, nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func TestLoad_Validation(t *testing.T) {
	t.Run("database url required without dev", func(t *testing.T) {
		_, err := Load("", nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("empty session cookie rejected", func(t *testing.T) {
		path := writeConfig(t, `
server:
  session_cookie: ""
database:
  url: "postgres://localhost/gatehouse"
`)
		_, err := Load(path, nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})
}
