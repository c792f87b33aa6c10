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

package log

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 常用字段构造函数

// String 字符串字段
func String(key, val string) zap.Field {
	return zap.String(key, val)
}

// Int 整数字段
func Int(key string, val int) zap.Field {
	return zap.Int(key, val)
}

// Duration 时间间隔字段
func Duration(key string, val time.Duration) zap.Field {
	return zap.Duration(key, val)
}

// Err 错误字段
func Err(err error) zap.Field {
	return zap.Error(err)
}

// 业务相关字段

// Store 存储名
func Store(name string) zap.Field {
	return zap.String("store", name)
}

// Target 复制/镜像的目标存储
func Target(name string) zap.Field {
	return zap.String("target", name)
}

// Email 用户自然键
func Email(email string) zap.Field {
	return zap.String("email", email)
}

// UserID 用户 ID（仅在所属存储内有意义）
func UserID(id int64) zap.Field {
	return zap.Int64("user_id", id)
}

// Operation 路由操作名: save, read_all, find_by_id, delete_by_id
func Operation(op string) zap.Field {
	return zap.String("operation", op)
}

// Component 组件名
func Component(name string) zap.Field {
	return zap.String("component", name)
}

// Phase 阶段
func Phase(phase string) zap.Field {
	return zap.String("phase", phase)
}

// Goroutine goroutine 名称
func Goroutine(name string) zap.Field {
	return zap.String("goroutine", name)
}

// RequestID 请求 ID
func RequestID(id string) zap.Field {
	return zap.String("request_id", id)
}

// Method gRPC 方法或 HTTP 方法
func Method(method string) zap.Field {
	return zap.String("method", method)
}

// RemoteAddr 远程地址
func RemoteAddr(addr string) zap.Field {
	return zap.String("remote_addr", addr)
}

// SyncReport 一次对账的统计（嵌套字段）
func SyncReport(toPreferred, toSecondary, failed int, took time.Duration) zap.Field {
	return zap.Object("sync", zapSyncReport{
		CopiedToPreferred: toPreferred,
		CopiedToSecondary: toSecondary,
		Failed:            failed,
		Duration:          took,
	})
}

// zapSyncReport 对账统计对象（实现 zapcore.ObjectMarshaler）
type zapSyncReport struct {
	CopiedToPreferred int
	CopiedToSecondary int
	Failed            int
	Duration          time.Duration
}

func (r zapSyncReport) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("copied_to_preferred", r.CopiedToPreferred)
	enc.AddInt("copied_to_secondary", r.CopiedToSecondary)
	enc.AddInt("failed", r.Failed)
	enc.AddDuration("duration", r.Duration)
	return nil
}
