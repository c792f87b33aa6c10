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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported store drivers
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config unified configuration structure
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig server configuration
type ServerConfig struct {
	ListenAddress string `yaml:"listen_address"` // HTTP API, default :8080
	GRPCAddress   string `yaml:"grpc_address"`   // gRPC health endpoint, empty disables

	// Sub-configurations
	Stores      StoresConfig      `yaml:"stores"`
	Health      HealthConfig      `yaml:"health"`
	Sync        SyncConfig        `yaml:"sync"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	GRPC        GRPCConfig        `yaml:"grpc"`
	Reliability ReliabilityConfig `yaml:"reliability"`
	Log         LogConfig         `yaml:"log"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
}

// StoresConfig the two backing stores; Preferred wins whenever it is healthy
type StoresConfig struct {
	Preferred StoreConfig `yaml:"preferred"`
	Secondary StoreConfig `yaml:"secondary"`
}

// StoreConfig one backing store and its connection pool
type StoreConfig struct {
	Name            string        `yaml:"name"`              // Used in logs and metrics
	Driver          string        `yaml:"driver"`            // mysql, postgres or memory
	DSN             string        `yaml:"dsn"`               // Driver-specific data source name
	MaxOpenConns    int           `yaml:"max_open_conns"`    // Default 10
	MaxIdleConns    int           `yaml:"max_idle_conns"`    // Default 5
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"` // Default 30m
}

// HealthConfig store probing configuration
type HealthConfig struct {
	ProbeTimeout time.Duration `yaml:"probe_timeout"` // Default 2s
}

// SyncConfig reconciliation scheduling
type SyncConfig struct {
	Enable     *bool         `yaml:"enable"`       // Default true
	Interval   time.Duration `yaml:"interval"`     // Default 2s
	RunOnStart bool          `yaml:"run_on_start"` // Default false
}

// Enabled reports whether the periodic reconciliation runs.
func (s SyncConfig) Enabled() bool {
	return s.Enable == nil || *s.Enable
}

// RateLimitConfig HTTP API token bucket
type RateLimitConfig struct {
	Enable bool `yaml:"enable"` // Default false
	QPS    int  `yaml:"qps"`    // Requests per second
	Burst  int  `yaml:"burst"`  // Token bucket size
}

// GRPCConfig gRPC health server configuration
type GRPCConfig struct {
	KeepaliveTime    time.Duration `yaml:"keepalive_time"`    // Default 10s
	KeepaliveTimeout time.Duration `yaml:"keepalive_timeout"` // Default 10s
	MaxConnectionAge time.Duration `yaml:"max_connection_age"` // Default 10m
}

// ReliabilityConfig reliability configuration
type ReliabilityConfig struct {
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`      // Default 30s
	EnablePanicRecovery *bool         `yaml:"enable_panic_recovery"` // Default true
}

// PanicRecovery reports whether handlers recover from panics.
func (r ReliabilityConfig) PanicRecovery() bool {
	return r.EnablePanicRecovery == nil || *r.EnablePanicRecovery
}

// LogConfig log configuration
type LogConfig struct {
	Level            string   `yaml:"level"`              // Default info
	Encoding         string   `yaml:"encoding"`           // Default json
	OutputPaths      []string `yaml:"output_paths"`       // Default ["stdout"]
	ErrorOutputPaths []string `yaml:"error_output_paths"` // Default ["stderr"]
}

// MonitoringConfig monitoring configuration
type MonitoringConfig struct {
	EnablePrometheus     *bool         `yaml:"enable_prometheus"`      // Default true
	PrometheusPort       int           `yaml:"prometheus_port"`        // Default 9090
	SlowRequestThreshold time.Duration `yaml:"slow_request_threshold"` // Default 100ms
}

// PrometheusEnabled reports whether the metrics server runs.
func (m MonitoringConfig) PrometheusEnabled() bool {
	return m.EnablePrometheus == nil || *m.EnablePrometheus
}

// DefaultConfig returns a configuration with recommended default values:
// MySQL preferred, PostgreSQL secondary, both on localhost
func DefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Stores: StoresConfig{
				Preferred: StoreConfig{
					Name:   "mysql",
					Driver: DriverMySQL,
					DSN:    "root:root@tcp(127.0.0.1:3306)/syncstore",
				},
				Secondary: StoreConfig{
					Name:   "postgres",
					Driver: DriverPostgres,
					DSN:    "host=127.0.0.1 port=5432 user=postgres password=postgres dbname=syncstore sslmode=disable",
				},
			},
		},
	}

	cfg.SetDefaults()

	return cfg
}

// LoadConfig loads configuration from a file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.SetDefaults()
	cfg.OverrideFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadConfigOrDefault attempts to load configuration from file, uses defaults if file doesn't exist
func LoadConfigOrDefault(path string) (*Config, error) {
	if path != "" {
		cfg, err := LoadConfig(path)
		if err == nil {
			return cfg, nil
		}
		// File exists but has other error
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := DefaultConfig()
	cfg.OverrideFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SetDefaults sets default values
func (c *Config) SetDefaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":8080"
	}

	setStoreDefaults(&c.Server.Stores.Preferred, "preferred")
	setStoreDefaults(&c.Server.Stores.Secondary, "secondary")

	if c.Server.Health.ProbeTimeout == 0 {
		c.Server.Health.ProbeTimeout = 2 * time.Second
	}

	if c.Server.Sync.Interval == 0 {
		c.Server.Sync.Interval = 2 * time.Second
	}

	if c.Server.GRPC.KeepaliveTime == 0 {
		c.Server.GRPC.KeepaliveTime = 10 * time.Second
	}
	if c.Server.GRPC.KeepaliveTimeout == 0 {
		c.Server.GRPC.KeepaliveTimeout = 10 * time.Second
	}
	if c.Server.GRPC.MaxConnectionAge == 0 {
		c.Server.GRPC.MaxConnectionAge = 10 * time.Minute
	}

	if c.Server.Reliability.ShutdownTimeout == 0 {
		c.Server.Reliability.ShutdownTimeout = 30 * time.Second
	}

	if c.Server.Log.Level == "" {
		c.Server.Log.Level = "info"
	}
	if c.Server.Log.Encoding == "" {
		c.Server.Log.Encoding = "json"
	}
	if len(c.Server.Log.OutputPaths) == 0 {
		c.Server.Log.OutputPaths = []string{"stdout"}
	}
	if len(c.Server.Log.ErrorOutputPaths) == 0 {
		c.Server.Log.ErrorOutputPaths = []string{"stderr"}
	}

	if c.Server.Monitoring.PrometheusPort == 0 {
		c.Server.Monitoring.PrometheusPort = 9090
	}
	if c.Server.Monitoring.SlowRequestThreshold == 0 {
		c.Server.Monitoring.SlowRequestThreshold = 100 * time.Millisecond
	}
}

func setStoreDefaults(s *StoreConfig, name string) {
	if s.Name == "" {
		s.Name = name
	}
	if s.Driver == DriverMemory {
		return
	}
	if s.MaxOpenConns == 0 {
		s.MaxOpenConns = 10
	}
	if s.MaxIdleConns == 0 {
		s.MaxIdleConns = 5
	}
	if s.ConnMaxLifetime == 0 {
		s.ConnMaxLifetime = 30 * time.Minute
	}
}

// OverrideFromEnv overrides configuration from environment variables
func (c *Config) OverrideFromEnv() {
	if v := os.Getenv("SYNCSTORE_LISTEN_ADDRESS"); v != "" {
		c.Server.ListenAddress = v
	}
	if v := os.Getenv("SYNCSTORE_GRPC_ADDRESS"); v != "" {
		c.Server.GRPCAddress = v
	}

	// Store configuration
	if v := os.Getenv("SYNCSTORE_PREFERRED_DRIVER"); v != "" {
		c.Server.Stores.Preferred.Driver = v
	}
	if v := os.Getenv("SYNCSTORE_PREFERRED_DSN"); v != "" {
		c.Server.Stores.Preferred.DSN = v
	}
	if v := os.Getenv("SYNCSTORE_SECONDARY_DRIVER"); v != "" {
		c.Server.Stores.Secondary.Driver = v
	}
	if v := os.Getenv("SYNCSTORE_SECONDARY_DSN"); v != "" {
		c.Server.Stores.Secondary.DSN = v
	}

	if v := os.Getenv("SYNCSTORE_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Server.Sync.Interval = d
		}
	}

	// Log configuration
	if v := os.Getenv("SYNCSTORE_LOG_LEVEL"); v != "" {
		c.Server.Log.Level = v
	}
	if v := os.Getenv("SYNCSTORE_LOG_ENCODING"); v != "" {
		c.Server.Log.Encoding = v
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("listen_address is required")
	}

	if err := c.Server.Stores.Preferred.validate("stores.preferred"); err != nil {
		return err
	}
	if err := c.Server.Stores.Secondary.validate("stores.secondary"); err != nil {
		return err
	}
	if c.Server.Stores.Preferred.Name == c.Server.Stores.Secondary.Name {
		return fmt.Errorf("stores.preferred.name and stores.secondary.name must differ")
	}

	if c.Server.Health.ProbeTimeout <= 0 {
		return fmt.Errorf("health.probe_timeout must be > 0")
	}
	if c.Server.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be > 0")
	}

	if c.Server.RateLimit.Enable {
		if c.Server.RateLimit.QPS <= 0 {
			return fmt.Errorf("rate_limit.qps must be > 0 when rate limiting is enabled")
		}
		if c.Server.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate_limit.burst must be > 0 when rate limiting is enabled")
		}
	}

	if c.Server.Reliability.ShutdownTimeout <= 0 {
		return fmt.Errorf("reliability.shutdown_timeout must be > 0")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true,
		"error": true, "dpanic": true, "panic": true, "fatal": true,
	}
	if !validLogLevels[c.Server.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error, dpanic, panic, fatal")
	}
	if c.Server.Log.Encoding != "json" && c.Server.Log.Encoding != "console" {
		return fmt.Errorf("log.encoding must be either 'json' or 'console'")
	}

	return nil
}

func (s StoreConfig) validate(field string) error {
	switch s.Driver {
	case DriverMySQL, DriverPostgres:
		if s.DSN == "" {
			return fmt.Errorf("%s.dsn is required for driver %q", field, s.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%s.driver must be one of: mysql, postgres, memory", field)
	}
	if s.MaxOpenConns < 0 || s.MaxIdleConns < 0 {
		return fmt.Errorf("%s pool sizes must be >= 0", field)
	}
	return nil
}
