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
	"encoding/json"
	"errors"
	"net/http"

	"syncStore/internal/failover"
	"syncStore/internal/store"
	"syncStore/pkg/log"
	"syncStore/pkg/reliability"
)

// errorBody 错误响应体
type errorBody struct {
	Error string `json:"error"`
}

// statusFor 将领域错误映射为 HTTP 状态码（唯一映射位置）
func statusFor(err error) int {
	var verr *reliability.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrUniqueViolation):
		return http.StatusConflict
	case errors.Is(err, failover.ErrNoHealthyStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageFor 返回给客户端的错误信息，内部错误不暴露细节
func messageFor(status int, err error) string {
	switch status {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusNotFound:
		return "user not found"
	case http.StatusConflict:
		return "email already exists"
	case http.StatusServiceUnavailable:
		return "no healthy store available"
	default:
		return "internal server error"
	}
}

// respondError 写入错误响应
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			log.Method(r.Method),
			log.String("path", r.URL.Path),
			log.RequestID(requestIDFrom(r.Context())),
			log.Err(err),
			log.Component("http"))
	}
	respondJSON(w, status, errorBody{Error: messageFor(status, err)})
}

// respondJSON 写入 JSON 响应
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn("failed to write response", log.Err(err), log.Component("http"))
	}
}
