// Copyright 2025 The axfor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8080", cfg.Server.ListenAddress)
	assert.Equal(t, DriverMySQL, cfg.Server.Stores.Preferred.Driver)
	assert.Equal(t, DriverPostgres, cfg.Server.Stores.Secondary.Driver)
	assert.Equal(t, 2*time.Second, cfg.Server.Health.ProbeTimeout)
	assert.Equal(t, 2*time.Second, cfg.Server.Sync.Interval)
	assert.True(t, cfg.Server.Sync.Enabled())
	assert.True(t, cfg.Server.Reliability.PanicRecovery())
	assert.True(t, cfg.Server.Monitoring.PrometheusEnabled())
	assert.Equal(t, 10, cfg.Server.Stores.Preferred.MaxOpenConns)
	assert.NoError(t, cfg.Validate())
}

func TestSetDefaults_StoreNames(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Stores.Preferred.Driver = DriverMemory
	cfg.Server.Stores.Secondary.Driver = DriverMemory
	cfg.SetDefaults()

	assert.Equal(t, "preferred", cfg.Server.Stores.Preferred.Name)
	assert.Equal(t, "secondary", cfg.Server.Stores.Secondary.Name)
	// memory stores have no pool
	assert.Zero(t, cfg.Server.Stores.Preferred.MaxOpenConns)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Server.Stores.Preferred.Driver = "oracle" }},
		{"missing dsn", func(c *Config) { c.Server.Stores.Secondary.DSN = "" }},
		{"same names", func(c *Config) { c.Server.Stores.Secondary.Name = c.Server.Stores.Preferred.Name }},
		{"zero probe timeout", func(c *Config) { c.Server.Health.ProbeTimeout = -time.Second }},
		{"zero interval", func(c *Config) { c.Server.Sync.Interval = -time.Second }},
		{"rate limit without qps", func(c *Config) { c.Server.RateLimit = RateLimitConfig{Enable: true, Burst: 1} }},
		{"bad log level", func(c *Config) { c.Server.Log.Level = "verbose" }},
		{"bad encoding", func(c *Config) { c.Server.Log.Encoding = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("SYNCSTORE_LISTEN_ADDRESS", ":9999")
	t.Setenv("SYNCSTORE_PREFERRED_DRIVER", DriverMemory)
	t.Setenv("SYNCSTORE_SECONDARY_DSN", "host=db")
	t.Setenv("SYNCSTORE_SYNC_INTERVAL", "5s")
	t.Setenv("SYNCSTORE_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.OverrideFromEnv()

	assert.Equal(t, ":9999", cfg.Server.ListenAddress)
	assert.Equal(t, DriverMemory, cfg.Server.Stores.Preferred.Driver)
	assert.Equal(t, "host=db", cfg.Server.Stores.Secondary.DSN)
	assert.Equal(t, 5*time.Second, cfg.Server.Sync.Interval)
	assert.Equal(t, "debug", cfg.Server.Log.Level)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  listen_address: ":8181"
  stores:
    preferred:
      name: primary
      driver: memory
    secondary:
      name: backup
      driver: memory
  sync:
    enable: false
    interval: 500ms
  rate_limit:
    enable: true
    qps: 100
    burst: 20
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8181", cfg.Server.ListenAddress)
	assert.Equal(t, "primary", cfg.Server.Stores.Preferred.Name)
	assert.Equal(t, "backup", cfg.Server.Stores.Secondary.Name)
	assert.False(t, cfg.Server.Sync.Enabled())
	assert.Equal(t, 500*time.Millisecond, cfg.Server.Sync.Interval)
	assert.Equal(t, 100, cfg.Server.RateLimit.QPS)
	// unset values still get defaults
	assert.Equal(t, 2*time.Second, cfg.Server.Health.ProbeTimeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  stores:\n    preferred:\n      driver: oracle\n"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadConfigOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DriverMySQL, cfg.Server.Stores.Preferred.Driver)

	cfg, err = LoadConfigOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.ListenAddress)
}
