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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"syncStore/internal/failover"
	"syncStore/internal/model"
	"syncStore/internal/reconcile"
	"syncStore/internal/scheduler"
	"syncStore/internal/store/memory"
	"syncStore/pkg/config"
	"syncStore/pkg/health"
	"syncStore/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type apiFixture struct {
	preferred *memory.Store
	secondary *memory.Store
	metrics   *metrics.Metrics
	server    *Server
}

func newAPIFixture(t *testing.T, mutate func(*Config)) *apiFixture {
	t.Helper()
	f := &apiFixture{
		preferred: memory.New("mysql", 0),
		secondary: memory.New("postgres", 1000),
		metrics:   metrics.New(prometheus.NewRegistry()),
	}
	prober := failover.NewProber(time.Second)
	router := failover.NewRouter(f.preferred, f.secondary, prober)
	sched := scheduler.New(reconcile.New(f.preferred, f.secondary, prober), time.Hour)

	hs := health.NewHealthServer(zap.NewNop())
	hs.RegisterChecker(health.NewStoreChecker("mysql", f.preferred.CheckHealth))
	hs.RegisterChecker(health.NewStoreChecker("postgres", f.secondary.CheckHealth))

	cfg := Config{
		Users:               router,
		Sync:                sched,
		Health:              hs,
		Metrics:             f.metrics,
		EnablePanicRecovery: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.server = NewServer(cfg)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeUser(t *testing.T, rec *httptest.ResponseRecorder) model.User {
	t.Helper()
	var u model.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&u))
	return u
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestCreateUser_MirrorsToSecondary(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/users", `{"id": 99, "name": "Ada", "email": "ada@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	u := decodeUser(t, rec)
	assert.Equal(t, int64(1), u.ID)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, "ada@example.com", u.Email)

	assert.Equal(t, []string{"ada@example.com"}, f.preferred.Emails())
	assert.Equal(t, []string{"ada@example.com"}, f.secondary.Emails())
}

func TestCreateUser_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"name":`, http.StatusBadRequest},
		{"empty name", `{"name": " ", "email": "a@example.com"}`, http.StatusBadRequest},
		{"bad email", `{"name": "a", "email": "not-an-email"}`, http.StatusBadRequest},
		{"display name form", `{"name": "a", "email": "A <a@example.com>"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t, nil)
			rec := f.do(t, http.MethodPost, "/api/users", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec))
			assert.Zero(t, f.preferred.Len())
		})
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	f := newAPIFixture(t, nil)
	body := `{"name": "a", "email": "a@example.com"}`

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/users", body).Code)
	rec := f.do(t, http.MethodPost, "/api/users", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "email already exists", decodeError(t, rec))
}

func TestCreateUser_NoHealthyStore(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.preferred.SetHealthy(false)
	f.secondary.SetHealthy(false)

	rec := f.do(t, http.MethodPost, "/api/users", `{"name": "a", "email": "a@example.com"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "no healthy store available", decodeError(t, rec))
}

func TestCreateUser_FailsOverToSecondary(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.preferred.SetHealthy(false)

	rec := f.do(t, http.MethodPost, "/api/users", `{"name": "a", "email": "a@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1001), decodeUser(t, rec).ID)
	assert.Zero(t, f.preferred.Len())
	assert.Equal(t, 1, f.secondary.Len())
}

func TestListUsers(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	f.do(t, http.MethodPost, "/api/users", `{"name": "a", "email": "a@example.com"}`)
	f.do(t, http.MethodPost, "/api/users", `{"name": "b", "email": "b@example.com"}`)

	rec = f.do(t, http.MethodGet, "/api/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var users []model.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&users))
	require.Len(t, users, 2)
	assert.Equal(t, "a@example.com", users[0].Email)
	assert.Equal(t, "b@example.com", users[1].Email)
}

func TestListUsers_NoHealthyStoreIsEmpty(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.do(t, http.MethodPost, "/api/users", `{"name": "a", "email": "a@example.com"}`)
	f.preferred.SetHealthy(false)
	f.secondary.SetHealthy(false)

	rec := f.do(t, http.MethodGet, "/api/users", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetUser(t *testing.T) {
	f := newAPIFixture(t, nil)
	created := decodeUser(t, f.do(t, http.MethodPost, "/api/users", `{"name": "a", "email": "a@example.com"}`))

	rec := f.do(t, http.MethodGet, "/api/users/"+strconv.FormatInt(created.ID, 10), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created, decodeUser(t, rec))

	rec = f.do(t, http.MethodGet, "/api/users/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "user not found", decodeError(t, rec))

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/users/abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/users/0", "").Code)

	f.preferred.SetHealthy(false)
	f.secondary.SetHealthy(false)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/users/1", "").Code)
}

func TestDeleteUser_MirrorsByEmail(t *testing.T) {
	f := newAPIFixture(t, nil)
	created := decodeUser(t, f.do(t, http.MethodPost, "/api/users", `{"name": "a", "email": "a@example.com"}`))
	require.Equal(t, 1, f.secondary.Len())

	rec := f.do(t, http.MethodDelete, "/api/users/"+strconv.FormatInt(created.ID, 10), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Zero(t, f.preferred.Len())
	assert.Zero(t, f.secondary.Len())

	rec = f.do(t, http.MethodDelete, "/api/users/"+strconv.FormatInt(created.ID, 10), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodDelete, "/api/users/-3", "").Code)
}

func TestSync_CopiesMissingRecords(t *testing.T) {
	f := newAPIFixture(t, nil)
	_, err := f.preferred.Create(context.Background(), &model.User{Name: "a", Email: "a@example.com"})
	require.NoError(t, err)
	_, err = f.secondary.Create(context.Background(), &model.User{Name: "b", Email: "b@example.com"})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/users/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Message string         `json:"message"`
		Report  map[string]any `json:"report"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Manual sync triggered successfully.", resp.Message)
	assert.EqualValues(t, 1, resp.Report["copied_to_preferred"])
	assert.EqualValues(t, 1, resp.Report["copied_to_secondary"])

	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, f.preferred.Emails())
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, f.secondary.Emails())
}

func TestSync_SurvivesClientDisconnect(t *testing.T) {
	f := newAPIFixture(t, nil)
	_, err := f.preferred.Create(context.Background(), &model.User{Name: "a", Email: "a@example.com"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/users/sync", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Manual sync triggered successfully.")
	assert.Equal(t, []string{"a@example.com"}, f.secondary.Emails())
}

func TestSync_AbortedWhenStoreDown(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.secondary.SetHealthy(false)

	rec := f.do(t, http.MethodPost, "/api/users/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"aborted":true`)
	assert.Contains(t, rec.Body.String(), "Sync aborted")
}

func TestSync_OnlyPost(t *testing.T) {
	f := newAPIFixture(t, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodPut, "/api/users/sync", "").Code)
}

func TestHealthRoutes(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	f.secondary.SetHealthy(false)
	rec = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)

	f.preferred.SetHealthy(false)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/health", "").Code)
	assert.Equal(t, "Not Ready\n", f.do(t, http.MethodGet, "/readiness", "").Body.String())
	assert.Equal(t, "Alive\n", f.do(t, http.MethodGet, "/liveness", "").Body.String())
}

func TestRequestID(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/users", "")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
}

func TestRateLimit(t *testing.T) {
	f := newAPIFixture(t, func(c *Config) {
		c.RateLimit = config.RateLimitConfig{Enable: true, QPS: 1, Burst: 1}
	})

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/users", "").Code)
	rec := f.do(t, http.MethodGet, "/api/users", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.RateLimitHits.WithLabelValues(http.MethodGet)))

	// health routes are not limited
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/liveness", "").Code)
}

type panickingService struct {
	UserService
}

func (panickingService) ReadAll(context.Context) ([]*model.User, error) {
	panic("boom")
}

func TestPanicRecovery(t *testing.T) {
	f := newAPIFixture(t, func(c *Config) {
		c.Users = panickingService{UserService: c.Users}
	})

	rec := f.do(t, http.MethodGet, "/api/users", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeError(t, rec))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PanicsRecovered.WithLabelValues("http")))
}

func TestRequestMetricsUseRouteTemplate(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.do(t, http.MethodGet, "/api/users/7", "")
	f.do(t, http.MethodGet, "/api/users/8", "")

	assert.Equal(t, float64(2), testutil.ToFloat64(
		f.metrics.HTTPRequestTotal.WithLabelValues(http.MethodGet, "/api/users/{id}", "404")))
}

func TestServeAndShutdown(t *testing.T) {
	f := newAPIFixture(t, nil)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- f.server.Serve(lis) }()

	resp, err := http.Post("http://"+lis.Addr().String()+"/api/users", "application/json",
		bytes.NewBufferString(`{"name": "a", "email": "a@example.com"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.server.Shutdown(ctx))
	assert.NoError(t, <-served)
}
