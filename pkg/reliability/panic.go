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
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"syncStore/pkg/log"
)

var (
	// panicCounter 全局 panic 计数器
	panicCounter atomic.Int64

	// PanicHandler 全局 panic 处理器（例如上报 metrics），在启动时设置
	PanicHandler func(where string, panicValue interface{}, stack []byte)
)

// RecoverPanic 恢复 panic 的通用函数
// 应在 goroutine 开头使用 defer RecoverPanic("goroutine-name")
func RecoverPanic(goroutineName string) {
	if r := recover(); r != nil {
		handlePanic(goroutineName, r)
	}
}

// SafeGo 安全启动 goroutine，自动恢复 panic
func SafeGo(name string, fn func()) {
	go func() {
		defer RecoverPanic(name)
		fn()
	}()
}

// Protect 执行 fn，并把 panic 转换为 error 返回
// 用于 HTTP/gRPC handler 和每一轮对账
func Protect(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			handlePanic(name, r)
			err = fmt.Errorf("%s: panic recovered: %v", name, r)
		}
	}()

	return fn()
}

// GetPanicCount 获取 panic 计数
func GetPanicCount() int64 {
	return panicCounter.Load()
}

// ResetPanicCount 重置 panic 计数
func ResetPanicCount() {
	panicCounter.Store(0)
}

func handlePanic(where string, r interface{}) {
	panicCounter.Add(1)
	stack := debug.Stack()

	log.Error("Panic recovered",
		log.Goroutine(where),
		log.String("panic_value", fmt.Sprintf("%v", r)),
		log.String("stack", string(stack)),
		log.Component("panic-recovery"))

	if h := PanicHandler; h != nil {
		h(where, r, stack)
	}
}
