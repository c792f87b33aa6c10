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
	"encoding/json"
	"net/http"
	"strconv"

	"syncStore/internal/model"
	"syncStore/internal/reconcile"
	"syncStore/pkg/reliability"

	"github.com/gorilla/mux"
)

// maxBodyBytes 请求体大小上限
const maxBodyBytes = 1 << 20

// UserService 路由层提供的用户操作（*failover.Router 实现）
type UserService interface {
	Save(ctx context.Context, u *model.User) (*model.User, error)
	ReadAll(ctx context.Context) ([]*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
	DeleteByID(ctx context.Context, id int64) error
}

// SyncTrigger 手动触发一次对账（*scheduler.Scheduler 实现）
type SyncTrigger interface {
	Trigger(ctx context.Context) reconcile.Report
}

// createUserRequest POST /api/users 请求体，id 字段被忽略
type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// syncResponse POST /api/users/sync 响应体
type syncResponse struct {
	Message string           `json:"message"`
	Report  reconcile.Report `json:"report"`
	Error   string           `json:"error,omitempty"`
}

// handleListUsers GET /api/users
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.ReadAll(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if users == nil {
		users = []*model.User{}
	}
	respondJSON(w, http.StatusOK, users)
}

// handleCreateUser POST /api/users
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request payload"})
		return
	}
	if err := reliability.ValidateUser(req.Name, req.Email); err != nil {
		respondError(w, r, err)
		return
	}

	saved, err := s.users.Save(r.Context(), &model.User{Name: req.Name, Email: req.Email})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

// handleGetUser GET /api/users/{id}
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	u, err := s.users.FindByID(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

// handleDeleteUser DELETE /api/users/{id}
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := s.users.DeleteByID(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSync POST /api/users/sync
// 同步执行一次对账并返回结果；已有对账在运行时直接返回 skipped
// 客户端断开不会中断已开始的对账，与路由层写操作一致
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	rep := s.sync.Trigger(context.WithoutCancel(r.Context()))

	resp := syncResponse{Report: rep}
	switch {
	case rep.Skipped:
		resp.Message = "Sync already running, skipped."
	case rep.Aborted:
		resp.Message = "Sync aborted, a store is unhealthy."
	case rep.Err != nil:
		resp.Message = "Sync failed."
		resp.Error = rep.Err.Error()
	default:
		resp.Message = "Manual sync triggered successfully."
	}
	respondJSON(w, http.StatusOK, resp)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "invalid user id"})
		return 0, false
	}
	return id, true
}
