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
	"fmt"
	"time"

	"syncStore/pkg/metrics"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// RateLimiter implements token bucket algorithm for global rate limiting
// Uses golang.org/x/time/rate package for high performance and thread safety
type RateLimiter struct {
	globalLimiter *rate.Limiter
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

// NewRateLimiter creates a rate limiter
// qps: queries per second allowed, burst: token bucket size for short spikes
func NewRateLimiter(qps int, burst int, logger *zap.Logger, m *metrics.Metrics) *RateLimiter {
	return &RateLimiter{
		globalLimiter: rate.NewLimiter(rate.Limit(qps), burst),
		logger:        logger,
		metrics:       m,
	}
}

// UnaryServerInterceptor returns a unary RPC rate limiting interceptor
func (rl *RateLimiter) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !rl.globalLimiter.Allow() {
			rl.metrics.RecordRateLimitHit(info.FullMethod)
			rl.logger.Warn("rate limit exceeded",
				zap.String("method", info.FullMethod),
				zap.String("client", extractClientInfo(ctx)))
			return nil, status.Errorf(codes.ResourceExhausted,
				"rate limit exceeded for method: %s", info.FullMethod)
		}

		return handler(ctx, req)
	}
}

// LoggingInterceptor logs slow requests; a health check that takes long
// usually means a store probe is running into its timeout
type LoggingInterceptor struct {
	slowThreshold time.Duration
	logger        *zap.Logger
}

// NewLoggingInterceptor creates a slow request logging interceptor
func NewLoggingInterceptor(slowThreshold time.Duration, logger *zap.Logger) *LoggingInterceptor {
	return &LoggingInterceptor{
		slowThreshold: slowThreshold,
		logger:        logger,
	}
}

// UnaryServerInterceptor returns a unary RPC logging interceptor
func (li *LoggingInterceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)

		if duration > li.slowThreshold {
			fields := []zap.Field{
				zap.String("method", info.FullMethod),
				zap.Duration("duration", duration),
				zap.String("client", extractClientInfo(ctx)),
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			li.logger.Warn("slow request detected", fields...)
		}

		return resp, err
	}
}

// PanicRecoveryInterceptor catches and recovers from panics in handlers
type PanicRecoveryInterceptor struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewPanicRecoveryInterceptor creates a panic recovery interceptor
func NewPanicRecoveryInterceptor(logger *zap.Logger, m *metrics.Metrics) *PanicRecoveryInterceptor {
	return &PanicRecoveryInterceptor{
		logger:  logger,
		metrics: m,
	}
}

// UnaryServerInterceptor returns a unary RPC panic recovery interceptor
// Logs the panic with its stack and returns codes.Internal to the client
func (pri *PanicRecoveryInterceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				pri.metrics.RecordPanicRecovered(info.FullMethod)
				pri.logger.Error("panic recovered in unary RPC",
					zap.String("method", info.FullMethod),
					zap.String("client", extractClientInfo(ctx)),
					zap.Any("panic", r),
					zap.Stack("stack"))
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()

		return handler(ctx, req)
	}
}

// extractClientInfo extracts client information from context for logging
func extractClientInfo(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok {
		return p.Addr.String()
	}

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if userAgent := md.Get("user-agent"); len(userAgent) > 0 {
			return fmt.Sprintf("user-agent:%s", userAgent[0])
		}
	}

	return "unknown"
}
