// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoad_CreatesDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(t.TempDir(), "nested", "ballast.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)

	assert.Equal(t, CurrentConfigVersion, cfg.Version)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, filepath.Join(home, ".ballast", "data"), cfg.Balance.DataDir)
	assert.Equal(t, filepath.Join(home, ".ballast", "logs"), cfg.Balance.JournalDir)
	assert.Equal(t, 2*time.Hour, cfg.Balance.SessionTTL)
	assert.True(t, cfg.Archive.Enabled)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "session_ttl: 2h0m0s")
	assert.Contains(t, string(data), "~/.ballast/data")
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ballast.yaml")
	body := `
server:
  addr: "127.0.0.1:9090"
balance:
  data_dir: /srv/ballast/data
  journal_dir: /srv/ballast/logs
  session_ttl: 30m
archive:
  enabled: false
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/srv/ballast/data", cfg.Balance.DataDir)
	assert.Equal(t, 30*time.Minute, cfg.Balance.SessionTTL)
	assert.Equal(t, int64(1<<20), cfg.Balance.MaxUploadBytes)
	assert.False(t, cfg.Archive.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)

	svc := cfg.ServiceConfig()
	assert.Equal(t, "/srv/ballast/data", svc.DataDir)
	assert.Equal(t, 30*time.Minute, svc.SessionTTL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad addr", "server:\n  addr: nope\n"},
		{"bad level", "logging:\n  level: loud\n"},
		{"negative ttl", "balance:\n  session_ttl: -1m\n"},
		{"archive without path", "archive:\n  enabled: true\n  path: \"\"\n"},
		{"bad exporter", "telemetry:\n  trace_exporter: carrier-pigeon\n"},
		{"not yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ballast.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/ballast.yaml")
	p, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/etc/ballast.yaml", p)

	home := t.TempDir()
	t.Setenv(EnvConfigPath, "")
	t.Setenv("HOME", home)
	p, err = DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ballast", "ballast.yaml"), p)
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "registry")
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	assert.Equal(t, home, expandHome("~"))
	assert.Equal(t, filepath.Join(home, "x"), expandHome("~/x"))
	assert.Equal(t, "/abs", expandHome("/abs"))
	assert.Equal(t, "~user/x", expandHome("~user/x"))
	assert.Equal(t, "", expandHome(""))
}
