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

// Package http 提供用户 REST API，基于 gorilla/mux
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"syncStore/pkg/config"
	"syncStore/pkg/health"
	"syncStore/pkg/log"
	"syncStore/pkg/metrics"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server HTTP API 服务器
type Server struct {
	users      UserService
	sync       SyncTrigger
	router     *mux.Router
	httpServer *http.Server
}

// Config HTTP API 配置
type Config struct {
	Address string
	Users   UserService
	Sync    SyncTrigger
	// Health 为空时不注册健康检查路由
	Health  *health.HealthServer
	Metrics *metrics.Metrics

	RateLimit            config.RateLimitConfig
	EnablePanicRecovery  bool
	SlowRequestThreshold time.Duration
}

// NewServer 创建新的 HTTP API 服务器
func NewServer(cfg Config) *Server {
	s := &Server{
		users: cfg.Users,
		sync:  cfg.Sync,
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	if cfg.EnablePanicRecovery {
		r.Use(recoveryMiddleware(cfg.Metrics))
	}
	r.Use(accessLogMiddleware(cfg.Metrics, cfg.SlowRequestThreshold))

	api := r.PathPrefix("/api/users").Subrouter()
	if cfg.RateLimit.Enable {
		api.Use(rateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.RateLimit.QPS), cfg.RateLimit.Burst), cfg.Metrics))
	}
	api.HandleFunc("", s.handleListUsers).Methods(http.MethodGet)
	api.HandleFunc("", s.handleCreateUser).Methods(http.MethodPost)
	// /sync 必须先于 /{id} 注册
	api.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	api.HandleFunc("/{id}", s.handleGetUser).Methods(http.MethodGet)
	api.HandleFunc("/{id}", s.handleDeleteUser).Methods(http.MethodDelete)

	if cfg.Health != nil {
		r.Handle("/health", cfg.Health).Methods(http.MethodGet)
		r.HandleFunc("/readiness", cfg.Health.ReadinessHandler()).Methods(http.MethodGet)
		r.HandleFunc("/liveness", cfg.Health.LivenessHandler()).Methods(http.MethodGet)
	}

	s.router = r
	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler 返回路由，供测试和嵌入使用
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr 配置的监听地址
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Serve 在 lis 上处理请求，直到 Shutdown 被调用
func (s *Server) Serve(lis net.Listener) error {
	log.Info("Starting HTTP API server", zap.String("address", lis.Addr().String()), zap.String("component", "http"))
	if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 停止接收新请求并等待进行中的请求完成
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("Stopping HTTP API server", zap.String("component", "http"))
	return s.httpServer.Shutdown(ctx)
}
