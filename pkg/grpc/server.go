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

package grpc

import (
	"context"
	"errors"
	"net"

	"syncStore/pkg/config"
	"syncStore/pkg/metrics"
	"syncStore/pkg/reliability"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ServerOptionsBuilder builds gRPC server options from configuration
type ServerOptionsBuilder struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewServerOptionsBuilder creates a server options builder
func NewServerOptionsBuilder(cfg *config.Config, logger *zap.Logger) *ServerOptionsBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServerOptionsBuilder{
		cfg:    cfg,
		logger: logger,
	}
}

// WithMetrics sets the metrics collector for the builder
func (b *ServerOptionsBuilder) WithMetrics(m *metrics.Metrics) *ServerOptionsBuilder {
	b.metrics = m
	return b
}

// Build builds gRPC server options
func (b *ServerOptionsBuilder) Build() []grpc.ServerOption {
	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:             b.cfg.Server.GRPC.KeepaliveTime,
			Timeout:          b.cfg.Server.GRPC.KeepaliveTimeout,
			MaxConnectionAge: b.cfg.Server.GRPC.MaxConnectionAge,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             b.cfg.Server.GRPC.KeepaliveTime,
			PermitWithoutStream: true,
		}),
	}

	if interceptors := b.buildUnaryInterceptors(); len(interceptors) > 0 {
		opts = append(opts, grpc.ChainUnaryInterceptor(interceptors...))
	}

	return opts
}

// buildUnaryInterceptors builds unary RPC interceptor chain
// Order: Metrics -> Panic Recovery -> Slow Logging -> Rate Limiting -> Handler
func (b *ServerOptionsBuilder) buildUnaryInterceptors() []grpc.UnaryServerInterceptor {
	var interceptors []grpc.UnaryServerInterceptor

	if b.cfg.Server.Monitoring.PrometheusEnabled() && b.metrics != nil {
		interceptors = append(interceptors, b.metrics.UnaryServerInterceptor())
	}

	if b.cfg.Server.Reliability.PanicRecovery() {
		pri := NewPanicRecoveryInterceptor(b.logger, b.metrics)
		interceptors = append(interceptors, pri.UnaryServerInterceptor())
	}

	if b.cfg.Server.Monitoring.SlowRequestThreshold > 0 {
		li := NewLoggingInterceptor(b.cfg.Server.Monitoring.SlowRequestThreshold, b.logger)
		interceptors = append(interceptors, li.UnaryServerInterceptor())
	}

	rl := b.cfg.Server.RateLimit
	if rl.Enable && rl.QPS > 0 && rl.Burst > 0 {
		interceptors = append(interceptors, NewRateLimiter(rl.QPS, rl.Burst, b.logger, b.metrics).UnaryServerInterceptor())
	}

	return interceptors
}

// HealthServer exposes grpc.health.v1.Health backed by live store checks
type HealthServer struct {
	server  *grpc.Server
	manager *reliability.HealthManager
	logger  *zap.Logger
}

// NewHealthServer builds a gRPC server with the health service registered
func NewHealthServer(cfg *config.Config, manager *reliability.HealthManager, logger *zap.Logger, m *metrics.Metrics) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := NewServerOptionsBuilder(cfg, logger).WithMetrics(m).Build()

	server := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(server, manager)

	logger.Info("created gRPC health server",
		zap.Strings("services", manager.Services()),
		zap.Duration("keepalive_time", cfg.Server.GRPC.KeepaliveTime),
		zap.Bool("enable_rate_limit", cfg.Server.RateLimit.Enable),
		zap.Bool("enable_panic_recovery", cfg.Server.Reliability.PanicRecovery()),
		zap.Duration("slow_request_threshold", cfg.Server.Monitoring.SlowRequestThreshold))

	return &HealthServer{server: server, manager: manager, logger: logger}
}

// Serve accepts connections on lis until Stop is called
func (hs *HealthServer) Serve(lis net.Listener) error {
	hs.logger.Info("gRPC health server listening", zap.String("addr", lis.Addr().String()))
	if err := hs.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks every service NOT_SERVING and stops gracefully, forcing the
// stop when ctx ends first
func (hs *HealthServer) Stop(ctx context.Context) error {
	hs.manager.Shutdown()

	done := make(chan struct{})
	go func() {
		hs.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		hs.server.Stop()
		return ctx.Err()
	}
}
