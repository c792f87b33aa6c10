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
	"context"
	"net/http"
	"time"

	"syncStore/pkg/log"
	"syncStore/pkg/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RequestIDHeader 请求 ID 头
const RequestIDHeader = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = iota

// requestIDFrom 从 context 中取出请求 ID
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// statusRecorder 记录响应状态码
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// requestIDMiddleware 透传或生成 X-Request-ID
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// recoveryMiddleware 捕获 handler 中的 panic，返回 500
func recoveryMiddleware(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					m.RecordPanicRecovered("http")
					log.Error("panic recovered in http handler",
						log.Method(r.Method),
						log.String("path", r.URL.Path),
						log.RequestID(requestIDFrom(r.Context())),
						log.Component("http"),
						zap.Any("panic", v),
						zap.Stack("stack"))
					respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// accessLogMiddleware 记录访问日志和请求指标，路由标签使用模板避免高基数
func accessLogMiddleware(m *metrics.Metrics, slow time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			took := time.Since(start)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			m.RecordHTTPRequest(r.Method, route, rec.status, took)

			fields := []zap.Field{
				log.Method(r.Method),
				log.String("route", route),
				log.Int("status", rec.status),
				log.Duration("duration", took),
				log.RequestID(requestIDFrom(r.Context())),
				log.RemoteAddr(r.RemoteAddr),
				log.Component("http"),
			}
			if slow > 0 && took > slow {
				log.Warn("slow http request", fields...)
				return
			}
			log.Debug("http request", fields...)
		})
	}
}

// rateLimitMiddleware 全局令牌桶限流，超限返回 429
func rateLimitMiddleware(limiter *rate.Limiter, m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				m.RecordRateLimitHit(r.Method)
				log.Warn("rate limit exceeded",
					log.Method(r.Method),
					log.String("path", r.URL.Path),
					log.RemoteAddr(r.RemoteAddr),
					log.Component("http"))
				respondJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
