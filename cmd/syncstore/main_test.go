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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const memoryConfig = `
server:
  listen_address: "127.0.0.1:0"
  stores:
    preferred:
      name: mysql
      driver: memory
    secondary:
      name: postgres
      driver: memory
  monitoring:
    enable_prometheus: false
  log:
    level: error
    output_paths: ["%s"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	logPath := filepath.Join(dir, "syncstore.log")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(body, logPath)), 0o600))
	return path
}

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	path := writeConfig(t, memoryConfig)
	_, err := execute(t, context.Background(), "probe", "--config", path, "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestProbeCommand_MemoryStores(t *testing.T) {
	path := writeConfig(t, memoryConfig)

	out, err := execute(t, context.Background(), "probe", "--config", path, "--format", "json")
	require.NoError(t, err)

	var results []ProbeResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, ProbeResult{Name: "mysql", Role: "preferred", Healthy: true}, results[0])
	assert.Equal(t, ProbeResult{Name: "postgres", Role: "secondary", Healthy: true}, results[1])
}

func TestProbeCommand_TextOutput(t *testing.T) {
	path := writeConfig(t, memoryConfig)

	out, err := execute(t, context.Background(), "probe", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "preferred")
	assert.Contains(t, out, "mysql")
	assert.Contains(t, out, "up")
}

func TestSyncCommand_EmptyStores(t *testing.T) {
	path := writeConfig(t, memoryConfig)

	out, err := execute(t, context.Background(), "sync", "--config", path, "--format", "json")
	require.NoError(t, err)

	var rep map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "ok", rep["outcome"])
	assert.EqualValues(t, 0, rep["copied_to_preferred"])
	assert.EqualValues(t, 0, rep["copied_to_secondary"])
	assert.NotContains(t, rep, "error")
}

func TestCommands_UnsupportedDriver(t *testing.T) {
	path := writeConfig(t, `
server:
  stores:
    preferred:
      name: a
      driver: oracle
      dsn: x
    secondary:
      name: b
      driver: memory
  log:
    output_paths: ["%s"]
`)

	_, err := execute(t, context.Background(), "sync", "--config", path)
	assert.Error(t, err)
}

func TestServeCommand_StopsWithContext(t *testing.T) {
	path := writeConfig(t, memoryConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := execute(t, ctx, "serve", "--config", path)
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after its context ended")
	}
}

func TestPackageDocsExcludeLicenseHeader(t *testing.T) {
	root := filepath.Join("..", "..")
	fset := token.NewFileSet()
	checked := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), "_") || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		f, err := parser.ParseFile(fset, path, nil, parser.PackageClauseOnly|parser.ParseComments)
		if err != nil {
			return err
		}
		checked++
		if f.Doc != nil {
			assert.NotContains(t, f.Doc.Text(), "Licensed under", path)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Greater(t, checked, 0)
}
