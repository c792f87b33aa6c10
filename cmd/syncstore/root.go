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

package main

import (
	"errors"
	"fmt"
	"slices"

	"syncStore/internal/failover"
	"syncStore/internal/reconcile"
	"syncStore/internal/store"
	"syncStore/internal/store/open"
	"syncStore/pkg/config"
	"syncStore/pkg/metrics"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the syncstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "syncstore",
		Short: "Two-store failover and reconciliation",
		Long: `syncstore serves a user API over a preferred and a secondary database.
Writes go to the preferred store while it is healthy and are mirrored to the
other one; a background pass copies records missing from either side.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.yaml", "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewProbeCommand(opts))

	return cmd
}

// loadConfig reads the config file, falling back to defaults when it is missing.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.LoadConfigOrDefault(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is the wired core shared by every command.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *metrics.Metrics
	preferred  store.Store
	secondary  store.Store
	prober     *failover.Prober
	router     *failover.Router
	reconciler *reconcile.Reconciler
}

func newApp(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*app, error) {
	preferred, secondary, err := open.Pair(cfg.Server.Stores, logger)
	if err != nil {
		return nil, err
	}

	prober := failover.NewProber(cfg.Server.Health.ProbeTimeout,
		failover.WithProbeLogger(logger), failover.WithProbeMetrics(m))

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		preferred: preferred,
		secondary: secondary,
		prober:    prober,
		router: failover.NewRouter(preferred, secondary, prober,
			failover.WithLogger(logger), failover.WithMetrics(m)),
		reconciler: reconcile.New(preferred, secondary, prober,
			reconcile.WithLogger(logger), reconcile.WithMetrics(m)),
	}, nil
}

// stores returns both stores with their roles, preferred first.
func (a *app) stores() []roleStore {
	return []roleStore{
		{role: "preferred", store: a.preferred},
		{role: "secondary", store: a.secondary},
	}
}

func (a *app) Close() error {
	return errors.Join(a.preferred.Close(), a.secondary.Close())
}

type roleStore struct {
	role  string
	store store.Store
}

// cliLogConfig sends logs to stderr so stdout carries only command output.
func cliLogConfig(cfg *config.Config) *config.LogConfig {
	lc := cfg.Server.Log
	lc.OutputPaths = []string{"stderr"}
	return &lc
}
