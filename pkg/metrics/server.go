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

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRegistry returns a private registry carrying the Go runtime and process
// collectors, so the /metrics page is useful without the default registry.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// MetricsServer serves Prometheus metrics over HTTP
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
}

// Handler returns the /metrics handler for registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics:   true,
		MaxRequestsInFlight: 10,
		Timeout:             30 * time.Second,
		ErrorHandling:       promhttp.ContinueOnError,
	})
}

// NewMetricsServer creates a new metrics HTTP server listening on addr
func NewMetricsServer(addr string, registry *prometheus.Registry, logger *zap.Logger) *MetricsServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(registry))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	return &MetricsServer{
		server: server,
		logger: logger,
	}
}

// Start starts the metrics server
// This method blocks until the server is shut down
func (ms *MetricsServer) Start() error {
	ms.logger.Info("starting metrics server", zap.String("addr", ms.server.Addr))

	if err := ms.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		ms.logger.Error("metrics server failed", zap.Error(err))
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the metrics server
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	if err := ms.server.Shutdown(ctx); err != nil {
		ms.logger.Error("metrics server shutdown failed", zap.Error(err))
		return err
	}
	ms.logger.Info("metrics server stopped")
	return nil
}
