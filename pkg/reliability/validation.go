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
	"net/mail"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// 与两个存储中 users 表的列宽一致
const (
	MaxNameLength  = 255
	MaxEmailLength = 255
)

var (
	// validationErrorCounter 验证错误计数器
	validationErrorCounter atomic.Int64
)

// ValidationError 输入校验错误，Field 为出错的字段名
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidateUser 校验写入前的用户字段
func ValidateUser(name, email string) error {
	if err := validateUser(name, email); err != nil {
		validationErrorCounter.Add(1)
		return err
	}
	return nil
}

func validateUser(name, email string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("longer than %d characters", MaxNameLength)}
	}

	if email == "" {
		return &ValidationError{Field: "email", Reason: "must not be empty"}
	}
	if len(email) > MaxEmailLength {
		return &ValidationError{Field: "email", Reason: fmt.Sprintf("longer than %d bytes", MaxEmailLength)}
	}
	// 只接受裸地址，不接受 "Name <addr>" 形式
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Reason: "not a valid address"}
	}
	return nil
}

// GetValidationErrorCount 获取验证错误计数
func GetValidationErrorCount() int64 {
	return validationErrorCounter.Load()
}
