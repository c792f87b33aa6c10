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

package reliability

import (
	"context"
	"sort"
	"sync"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// HealthChecker 健康检查器接口
type HealthChecker interface {
	// Check 执行健康检查
	Check(ctx context.Context) error
	// Name 返回检查器名称（即 gRPC 健康检查的服务名）
	Name() string
}

// HealthManager 健康管理器，实现 grpc.health.v1.Health
//
// 每次 Check 都实时调用检查器，不缓存结果。
// 服务名 "" 表示整体状态：任意一个检查器通过即为 SERVING（另一个存储可以接管）。
type HealthManager struct {
	healthpb.UnimplementedHealthServer

	mu       sync.RWMutex
	checkers map[string]HealthChecker
	shutdown bool
}

var _ healthpb.HealthServer = (*HealthManager)(nil)

// NewHealthManager 创建健康管理器
func NewHealthManager() *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
	}
}

// RegisterChecker 注册健康检查器
func (hm *HealthManager) RegisterChecker(checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[checker.Name()] = checker
}

// Shutdown 之后所有服务都报告 NOT_SERVING
func (hm *HealthManager) Shutdown() {
	hm.mu.Lock()
	hm.shutdown = true
	hm.mu.Unlock()
}

// Status 执行健康检查并返回服务状态
func (hm *HealthManager) Status(ctx context.Context, serviceName string) healthpb.HealthCheckResponse_ServingStatus {
	hm.mu.RLock()
	shutdown := hm.shutdown
	checker, exists := hm.checkers[serviceName]
	all := make([]HealthChecker, 0, len(hm.checkers))
	for _, c := range hm.checkers {
		all = append(all, c)
	}
	hm.mu.RUnlock()

	if shutdown {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}

	// 指定了服务名，只检查该服务
	if serviceName != "" {
		if !exists {
			return healthpb.HealthCheckResponse_SERVICE_UNKNOWN
		}
		if err := checker.Check(ctx); err != nil {
			return healthpb.HealthCheckResponse_NOT_SERVING
		}
		return healthpb.HealthCheckResponse_SERVING
	}

	// 整体状态：任意一个通过即可
	for _, c := range all {
		if err := c.Check(ctx); err == nil {
			return healthpb.HealthCheckResponse_SERVING
		}
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Check 实现 grpc.health.v1.Health/Check
func (hm *HealthManager) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	st := hm.Status(ctx, req.GetService())
	if st == healthpb.HealthCheckResponse_SERVICE_UNKNOWN {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}
	return &healthpb.HealthCheckResponse{Status: st}, nil
}

// Services 返回已注册的服务名（排序后）
func (hm *HealthManager) Services() []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	names := make([]string, 0, len(hm.checkers))
	for name := range hm.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StorageHealthChecker 存储健康检查器
type StorageHealthChecker struct {
	name  string
	check func(ctx context.Context) error
}

// NewStorageHealthChecker 创建存储健康检查器
func NewStorageHealthChecker(name string, checkFunc func(ctx context.Context) error) *StorageHealthChecker {
	return &StorageHealthChecker{
		name:  name,
		check: checkFunc,
	}
}

// Name 返回检查器名称
func (s *StorageHealthChecker) Name() string {
	return s.name
}

// Check 执行健康检查
func (s *StorageHealthChecker) Check(ctx context.Context) error {
	return s.check(ctx)
}
