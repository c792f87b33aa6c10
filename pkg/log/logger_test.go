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
	"path/filepath"
	"testing"

	"syncStore/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(&Config{Level: "loud", OutputPaths: []string{"stdout"}})
	assert.Error(t, err)
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := NewLogger(&Config{Level: "info", Encoding: "json", OutputPaths: []string{path}})
	require.NoError(t, err)

	l.Info("hello", Store("mysql"))
	require.NoError(t, l.Sync())
	assert.FileExists(t, path)
}

func TestInitFromConfig_ReplacesGlobal(t *testing.T) {
	prev := GetLogger()
	t.Cleanup(func() { ReplaceGlobalLogger(prev) })

	l, err := InitFromConfig(&config.LogConfig{Level: "warn", Encoding: "json", OutputPaths: []string{"stdout"}})
	require.NoError(t, err)
	assert.Same(t, l, GetLogger())
	assert.False(t, l.Zap().Core().Enabled(zapcore.InfoLevel))
}

func TestDomainFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := Wrap(zap.New(core)).With(Component("router"))

	l.Warn("mirror failed", Store("postgres"), Email("a@x"), UserID(7), Operation("save"))
	l.Info("sync done", SyncReport(1, 2, 0, 0))

	require.Equal(t, 2, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "router", ctx["component"])
	assert.Equal(t, "postgres", ctx["store"])
	assert.Equal(t, "a@x", ctx["email"])
	assert.Equal(t, int64(7), ctx["user_id"])

	report, ok := logs.All()[1].ContextMap()["sync"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 2, report["copied_to_secondary"])
}
