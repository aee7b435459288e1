// Copyright 2026 fanjia1024
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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkwatch/internal/docstore"
	"linkwatch/pkg/config"
)

const testConfig = `
watcher:
  mode: poll
  collection: shared_urls
store:
  type: memory
listen_state:
  type: memory
`

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "watcher.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, store docstore.Store, args ...string) (string, error) {
	open := func(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
		return store, nil
	}
	buf := &bytes.Buffer{}
	cmd := newRootCommand(open)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "linkwatch")
}

func TestConfig_Valid(t *testing.T) {
	path := writeConfig(t, testConfig)
	out, err := run(t, nil, "config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "watcher.mode=poll")
	assert.Contains(t, out, "store.type=memory")
	assert.Contains(t, out, "config ok")
}

func TestConfig_Invalid(t *testing.T) {
	path := writeConfig(t, "watcher:\n  mode: sideways\nstore:\n  type: memory\n")
	out, err := run(t, nil, "config", "--config", path)
	require.Error(t, err)
	assert.Contains(t, out, "watcher.mode=sideways")
	assert.Contains(t, err.Error(), "push 或 poll")
}

func TestShareThenLatest(t *testing.T) {
	store := docstore.NewMemoryStore()
	path := writeConfig(t, testConfig)

	out, err := run(t, store, "share", "https://example.com/a b", "--encode", "--id", "doc-1", "-c", path)
	require.NoError(t, err)
	assert.Equal(t, "doc-1\n", out)

	out, err = run(t, store, "latest", "-c", path)
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "https%3A%2F%2Fexample.com%2Fa%20b", got["url"])
	assert.Contains(t, got, "created_at")
	assert.NotContains(t, got, "expires_at")
}

func TestLatest_Empty(t *testing.T) {
	out, err := run(t, docstore.NewMemoryStore(), "latest", "-c", writeConfig(t, testConfig))
	require.NoError(t, err)
	assert.Equal(t, "null\n", out)
}

func TestShare_RequiresURL(t *testing.T) {
	_, err := run(t, docstore.NewMemoryStore(), "share", "-c", writeConfig(t, testConfig))
	require.Error(t, err)
}

func TestDecode(t *testing.T) {
	out, err := run(t, nil, "decode", "https%3A%2F%2Fexample.com%2F%E4%BD%A0")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/你\n", out)

	_, err = run(t, nil, "decode", "%zz")
	require.Error(t, err)
}

func TestMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/metrics", r.URL.Path)
		_, _ = w.Write([]byte("# HELP go_goroutines x\ngo_goroutines 7\nlinkwatch_events_total{outcome=\"dispatched\"} 3\n"))
	}))
	defer srv.Close()

	out, err := run(t, nil, "metrics", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "linkwatch_events_total{outcome=\"dispatched\"} 3\n", out)
}

func TestMetrics_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := run(t, nil, "metrics", "--addr", srv.URL)
	require.Error(t, err)
}
