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

package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult represents the result of a single health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency int64  `json:"latency_ms"` // Check latency in milliseconds
}

// HealthReport represents the overall health status
type HealthReport struct {
	Status    Status                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Checker is an interface for health checks
type Checker interface {
	// Check performs the health check
	// Returns status, message, and error (if any)
	Check(ctx context.Context) (Status, string, error)

	// Name returns the check name
	Name() string
}

// HealthServer provides health check HTTP endpoints.
//
// Every request runs every checker; reports are not cached. Overall status is
// healthy when all checks pass, degraded when some pass, unhealthy when none do.
type HealthServer struct {
	mu       sync.RWMutex
	checkers []Checker
	logger   *zap.Logger
}

// NewHealthServer creates a new health check server
func NewHealthServer(logger *zap.Logger) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthServer{
		logger: logger,
	}
}

// RegisterChecker adds a health checker
func (hs *HealthServer) RegisterChecker(checker Checker) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.checkers = append(hs.checkers, checker)
	hs.logger.Info("registered health checker", zap.String("name", checker.Name()))
}

// Check runs all checkers concurrently and aggregates their results
func (hs *HealthServer) Check(ctx context.Context) *HealthReport {
	hs.mu.RLock()
	checkers := append([]Checker(nil), hs.checkers...)
	hs.mu.RUnlock()

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			results[i] = runCheck(ctx, c)
		}(i, checker)
	}
	wg.Wait()

	report := &HealthReport{
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    make(map[string]CheckResult, len(checkers)),
	}
	healthy := 0
	for i, checker := range checkers {
		report.Checks[checker.Name()] = results[i]
		if results[i].Status == StatusHealthy {
			healthy++
		}
	}

	switch {
	case len(checkers) > 0 && healthy == len(checkers):
		report.Status = StatusHealthy
	case healthy > 0:
		report.Status = StatusDegraded
	default:
		report.Status = StatusUnhealthy
	}
	return report
}

func runCheck(ctx context.Context, c Checker) CheckResult {
	start := time.Now()
	status, message, err := c.Check(ctx)
	if err != nil {
		status = StatusUnhealthy
		message = err.Error()
	}
	return CheckResult{
		Status:  status,
		Message: message,
		Latency: time.Since(start).Milliseconds(),
	}
}

// ServeHTTP implements http.Handler for /health endpoint
// Returns 200 for healthy or degraded, 503 when no store is usable
func (hs *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	report := hs.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if report.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if err := json.NewEncoder(w).Encode(report); err != nil {
		hs.logger.Warn("failed to write health report", zap.Error(err))
	}
}

// ReadinessHandler returns a handler for Kubernetes readiness probes
// Ready while at least one store can serve requests
func (hs *HealthServer) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if hs.Check(ctx).Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Not Ready\n"))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ready\n"))
	}
}

// LivenessHandler returns a handler for Kubernetes liveness probes
// Liveness never touches the stores; a down database must not restart the process
func (hs *HealthServer) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Alive\n"))
	}
}

// StoreChecker reports one backing store as healthy or unhealthy
type StoreChecker struct {
	name      string
	checkFunc func(context.Context) error
}

// NewStoreChecker creates a store health checker. checkFunc is typically a
// bounded probe of the store.
func NewStoreChecker(name string, checkFunc func(context.Context) error) *StoreChecker {
	return &StoreChecker{
		name:      name,
		checkFunc: checkFunc,
	}
}

func (sc *StoreChecker) Name() string {
	return sc.name
}

func (sc *StoreChecker) Check(ctx context.Context) (Status, string, error) {
	if err := sc.checkFunc(ctx); err != nil {
		return StatusUnhealthy, fmt.Sprintf("store check failed: %v", err), err
	}
	return StatusHealthy, "store is reachable", nil
}
