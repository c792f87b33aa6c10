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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

func TestShutdown_PhasesRunInOrder(t *testing.T) {
	gs := NewGracefulShutdown(time.Second)

	var mu sync.Mutex
	var order []ShutdownPhase
	record := func(p ShutdownPhase) ShutdownHook {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, p)
			mu.Unlock()
			return nil
		}
	}
	// registered out of order on purpose
	gs.RegisterHook(PhaseCloseResources, record(PhaseCloseResources))
	gs.RegisterHook(PhaseStopBackground, record(PhaseStopBackground))
	gs.RegisterHook(PhaseStopAccepting, record(PhaseStopAccepting))
	gs.RegisterHook(PhaseDrainConnections, record(PhaseDrainConnections))

	require.NoError(t, gs.Shutdown())
	assert.Equal(t, []ShutdownPhase{PhaseStopAccepting, PhaseDrainConnections, PhaseStopBackground, PhaseCloseResources}, order)
	assert.True(t, gs.IsShuttingDown())
}

func TestShutdown_FailingPhaseDoesNotStopLaterPhases(t *testing.T) {
	gs := NewGracefulShutdown(time.Second)
	closed := false

	gs.RegisterHook(PhaseStopAccepting, func(ctx context.Context) error { return errors.New("listener busy") })
	gs.RegisterHook(PhaseDrainConnections, func(ctx context.Context) error { panic("boom") })
	gs.RegisterHook(PhaseCloseResources, func(ctx context.Context) error { closed = true; return nil })

	err := gs.Shutdown()
	assert.ErrorContains(t, err, "listener busy")
	assert.ErrorContains(t, err, "panic recovered")
	assert.True(t, closed)
}

func TestShutdown_RunsOnce(t *testing.T) {
	gs := NewGracefulShutdown(time.Second)
	calls := 0
	gs.RegisterHook(PhaseCloseResources, func(ctx context.Context) error { calls++; return nil })

	require.NoError(t, gs.Shutdown())
	require.NoError(t, gs.Shutdown())
	assert.Equal(t, 1, calls)
}

func TestShutdown_WaitReturnsOnContext(t *testing.T) {
	gs := NewGracefulShutdown(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, gs.Wait(ctx))
	<-gs.Done()
}

func TestShutdown_Timeout(t *testing.T) {
	gs := NewGracefulShutdown(20 * time.Millisecond)
	gs.RegisterHook(PhaseDrainConnections, func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	assert.ErrorIs(t, gs.Shutdown(), context.DeadlineExceeded)
}

func TestProtect(t *testing.T) {
	before := GetPanicCount()

	var handled string
	PanicHandler = func(where string, v interface{}, stack []byte) { handled = where }
	defer func() { PanicHandler = nil }()

	err := Protect("unit", func() error { panic("kaboom") })
	assert.ErrorContains(t, err, "kaboom")
	assert.Equal(t, "unit", handled)
	assert.Equal(t, before+1, GetPanicCount())

	assert.NoError(t, Protect("unit", func() error { return nil }))
}

func TestSafeGo(t *testing.T) {
	// handlePanic reads PanicHandler after the goroutine body has unwound,
	// so completion is observed through the handler itself.
	handled := make(chan string, 1)
	PanicHandler = func(where string, v interface{}, stack []byte) { handled <- where }
	defer func() { PanicHandler = nil }()

	before := GetPanicCount()
	SafeGo("unit-go", func() {
		panic("in goroutine")
	})
	select {
	case where := <-handled:
		assert.Equal(t, "unit-go", where)
	case <-time.After(time.Second):
		t.Fatal("panic in goroutine was not recovered")
	}
	assert.Equal(t, before+1, GetPanicCount())
}

func TestHealthManager(t *testing.T) {
	up := true
	hm := NewHealthManager()
	hm.RegisterChecker(NewStorageHealthChecker("mysql", func(ctx context.Context) error {
		if up {
			return nil
		}
		return errors.New("down")
	}))
	hm.RegisterChecker(NewStorageHealthChecker("postgres", func(ctx context.Context) error {
		return errors.New("down")
	}))
	ctx := context.Background()

	assert.Equal(t, []string{"mysql", "postgres"}, hm.Services())

	resp, err := hm.Check(ctx, &healthpb.HealthCheckRequest{Service: "mysql"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	resp, err = hm.Check(ctx, &healthpb.HealthCheckRequest{Service: "postgres"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	// one store is enough to serve
	resp, err = hm.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	up = false
	resp, err = hm.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	_, err = hm.Check(ctx, &healthpb.HealthCheckRequest{Service: "redis"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	up = true
	hm.Shutdown()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, hm.Status(ctx, "mysql"))
}

func TestValidateUser(t *testing.T) {
	assert.NoError(t, ValidateUser("Alice", "alice@example.com"))

	tests := []struct {
		name, email, field string
	}{
		{"", "a@x", "name"},
		{"   ", "a@x", "name"},
		{"Alice", "", "email"},
		{"Alice", "not-an-email", "email"},
		{"Alice", "Alice <alice@example.com>", "email"},
	}
	for _, tt := range tests {
		err := ValidateUser(tt.name, tt.email)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "%q/%q", tt.name, tt.email)
		assert.Equal(t, tt.field, verr.Field)
	}
	assert.Positive(t, GetValidationErrorCount())
}
