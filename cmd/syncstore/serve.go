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
	"context"
	"errors"
	"fmt"
	"net"

	apihttp "syncStore/api/http"
	"syncStore/internal/scheduler"
	"syncStore/pkg/config"
	grpcserver "syncStore/pkg/grpc"
	"syncStore/pkg/health"
	"syncStore/pkg/log"
	"syncStore/pkg/metrics"
	"syncStore/pkg/reliability"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background reconciliation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

// runServe blocks until SIGINT/SIGTERM, ctx ends, or a listener fails, then
// shuts down phase by phase.
func runServe(parent context.Context, cfg *config.Config) error {
	logger, err := log.InitFromConfig(&cfg.Server.Log)
	if err != nil {
		return err
	}
	zl := logger.Zap()

	registry := metrics.NewRegistry()
	m := metrics.New(registry)
	reliability.PanicHandler = func(where string, _ interface{}, _ []byte) {
		m.RecordPanicRecovered(where)
	}

	a, err := newApp(cfg, zl, m)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)
	fail := func(name string, err error) {
		zl.Error("listener failed", zap.String("server", name), zap.Error(err))
		cancel(fmt.Errorf("%s: %w", name, err))
	}

	gs := reliability.NewGracefulShutdown(cfg.Server.Reliability.ShutdownTimeout)

	// health checks go through the prober so they honor the probe timeout
	hs := health.NewHealthServer(zl)
	for _, rs := range a.stores() {
		s := rs.store
		hs.RegisterChecker(health.NewStoreChecker(s.Name(), func(ctx context.Context) error {
			return a.prober.Check(ctx, s)
		}))
	}

	sched := scheduler.New(a.reconciler, cfg.Server.Sync.Interval,
		scheduler.WithLogger(zl),
		scheduler.WithMetrics(m),
		scheduler.WithRunOnStart(cfg.Server.Sync.RunOnStart))

	api := apihttp.NewServer(apihttp.Config{
		Address:              cfg.Server.ListenAddress,
		Users:                a.router,
		Sync:                 sched,
		Health:               hs,
		Metrics:              m,
		RateLimit:            cfg.Server.RateLimit,
		EnablePanicRecovery:  cfg.Server.Reliability.PanicRecovery(),
		SlowRequestThreshold: cfg.Server.Monitoring.SlowRequestThreshold,
	})
	lis, err := net.Listen("tcp", api.Addr())
	if err != nil {
		a.Close()
		return fmt.Errorf("listen %s: %w", api.Addr(), err)
	}
	reliability.SafeGo("http-server", func() {
		if err := api.Serve(lis); err != nil {
			fail("http", err)
		}
	})
	gs.RegisterHook(reliability.PhaseDrainConnections, api.Shutdown)

	if cfg.Server.Monitoring.PrometheusEnabled() {
		ms := metrics.NewMetricsServer(fmt.Sprintf(":%d", cfg.Server.Monitoring.PrometheusPort), registry, zl)
		reliability.SafeGo("metrics-server", func() {
			if err := ms.Start(); err != nil {
				fail("metrics", err)
			}
		})
		gs.RegisterHook(reliability.PhaseStopAccepting, ms.Shutdown)
	}

	if cfg.Server.GRPCAddress != "" {
		hm := reliability.NewHealthManager()
		for _, rs := range a.stores() {
			s := rs.store
			hm.RegisterChecker(reliability.NewStorageHealthChecker(s.Name(), func(ctx context.Context) error {
				return a.prober.Check(ctx, s)
			}))
		}
		grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddress)
		if err != nil {
			_ = gs.Shutdown()
			a.Close()
			return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddress, err)
		}
		gsrv := grpcserver.NewHealthServer(cfg, hm, zl, m)
		reliability.SafeGo("grpc-server", func() {
			if err := gsrv.Serve(grpcLis); err != nil {
				fail("grpc", err)
			}
		})
		gs.RegisterHook(reliability.PhaseStopAccepting, gsrv.Stop)
	}

	if cfg.Server.Sync.Enabled() {
		if err := sched.Start(context.Background()); err != nil {
			_ = gs.Shutdown()
			a.Close()
			return err
		}
	}
	gs.RegisterHook(reliability.PhaseStopBackground, func(context.Context) error {
		sched.Stop()
		return nil
	})
	gs.RegisterHook(reliability.PhaseCloseResources, func(context.Context) error {
		return a.Close()
	})

	zl.Info("syncstore started",
		zap.String("listen_address", lis.Addr().String()),
		zap.String("preferred", a.preferred.Name()),
		zap.String("secondary", a.secondary.Name()),
		zap.Bool("sync_enabled", cfg.Server.Sync.Enabled()),
		zap.Duration("sync_interval", cfg.Server.Sync.Interval),
		zap.Duration("probe_timeout", cfg.Server.Health.ProbeTimeout))

	err = gs.Wait(ctx)
	_ = logger.Sync()

	if cause := context.Cause(ctx); cause != nil &&
		!errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		return errors.Join(cause, err)
	}
	return err
}
