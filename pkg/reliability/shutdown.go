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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"syncStore/pkg/log"
)

// ShutdownHook 关闭钩子函数类型
type ShutdownHook func(ctx context.Context) error

// ShutdownPhase 关闭阶段，按顺序执行
type ShutdownPhase int

const (
	// PhaseStopAccepting 停止接受新请求（HTTP/gRPC/metrics 监听）
	PhaseStopAccepting ShutdownPhase = iota
	// PhaseDrainConnections 排空正在处理的请求
	PhaseDrainConnections
	// PhaseStopBackground 停止后台任务（对账调度器）
	PhaseStopBackground
	// PhaseCloseResources 关闭资源（存储连接池、日志）
	PhaseCloseResources
)

var phases = []ShutdownPhase{
	PhaseStopAccepting,
	PhaseDrainConnections,
	PhaseStopBackground,
	PhaseCloseResources,
}

// GracefulShutdown 优雅关闭管理器
type GracefulShutdown struct {
	mu      sync.RWMutex
	hooks   map[ShutdownPhase][]ShutdownHook
	timeout time.Duration
	done    chan struct{}
	once    sync.Once
}

// NewGracefulShutdown 创建优雅关闭管理器
func NewGracefulShutdown(timeout time.Duration) *GracefulShutdown {
	if timeout <= 0 {
		timeout = 30 * time.Second // 默认 30 秒超时
	}

	return &GracefulShutdown{
		hooks:   make(map[ShutdownPhase][]ShutdownHook),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// RegisterHook 注册关闭钩子
func (gs *GracefulShutdown) RegisterHook(phase ShutdownPhase, hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	gs.hooks[phase] = append(gs.hooks[phase], hook)
}

// Wait 等待 SIGINT/SIGTERM 或 ctx 结束，然后执行关闭
func (gs *GracefulShutdown) Wait(ctx context.Context) error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		log.Info("Received shutdown signal",
			log.String("signal", sig.String()),
			log.Component("shutdown"))
	case <-ctx.Done():
		log.Info("Shutdown requested",
			log.Err(context.Cause(ctx)),
			log.Component("shutdown"))
	}
	return gs.Shutdown()
}

// Shutdown 按阶段执行所有钩子，只执行一次
// 某个阶段失败时继续执行后续阶段，确保资源被释放
func (gs *GracefulShutdown) Shutdown() error {
	var result error
	gs.once.Do(func() {
		close(gs.done)

		ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
		defer cancel()

		var errs []error
		for _, phase := range phases {
			name := phase.String()
			log.Info("Shutdown phase started",
				log.Phase(name),
				log.Component("shutdown"))

			gs.mu.RLock()
			hooks := gs.hooks[phase]
			gs.mu.RUnlock()

			if err := gs.executeHooks(ctx, hooks, name); err != nil {
				log.Error("Shutdown phase failed",
					log.Phase(name),
					log.Err(err),
					log.Component("shutdown"))
				errs = append(errs, err)
			}
		}

		result = errors.Join(errs...)
		log.Info("Graceful shutdown completed", log.Component("shutdown"))
	})
	return result
}

// executeHooks 并发执行同一阶段的所有钩子
func (gs *GracefulShutdown) executeHooks(ctx context.Context, hooks []ShutdownHook, phaseName string) error {
	if len(hooks) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(hooks))

	for i, hook := range hooks {
		wg.Add(1)
		go func(idx int, h ShutdownHook) {
			defer wg.Done()
			err := Protect(fmt.Sprintf("shutdown-hook-%s-%d", phaseName, idx), func() error {
				return h(ctx)
			})
			if err != nil {
				errChan <- fmt.Errorf("hook %d failed: %w", idx, err)
			}
		}(i, hook)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(errChan)
		var errs []error
		for err := range errChan {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			return fmt.Errorf("phase %s: %w", phaseName, errors.Join(errs...))
		}
		return nil

	case <-ctx.Done():
		return fmt.Errorf("phase %s timeout: %w", phaseName, ctx.Err())
	}
}

// String 返回阶段名称
func (p ShutdownPhase) String() string {
	switch p {
	case PhaseStopAccepting:
		return "Stop Accepting"
	case PhaseDrainConnections:
		return "Drain Connections"
	case PhaseStopBackground:
		return "Stop Background"
	case PhaseCloseResources:
		return "Close Resources"
	default:
		return fmt.Sprintf("Unknown Phase %d", int(p))
	}
}

// Done 返回关闭开始后即关闭的 channel
func (gs *GracefulShutdown) Done() <-chan struct{} {
	return gs.done
}

// IsShuttingDown 检查是否正在关闭
func (gs *GracefulShutdown) IsShuttingDown() bool {
	select {
	case <-gs.done:
		return true
	default:
		return false
	}
}
