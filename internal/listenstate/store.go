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

// Package listenstate 保存 push 订阅的续传位置，重启或断线重连后从上次处理到的位置继续。
package listenstate

import (
	"context"
	"sync"

	"linkwatch/pkg/config"
	"linkwatch/pkg/errors"
)

// Store 续传位置存储；key 一般为 "<collection>/<target>"。未保存过时 Load 返回空字符串
type Store interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, token string) error
	Close() error
}

// New 按配置创建续传位置存储
func New(ctx context.Context, cfg config.ListenStateConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg)
	case "sqlite":
		return OpenSQLite(cfg.Path)
	default:
		return nil, errors.Wrapf(errors.ErrInvalidArg, "unsupported listen_state type: %s", cfg.Type)
	}
}

type memoryStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewMemoryStore 进程内存储，重启后丢失
func NewMemoryStore() Store {
	return &memoryStore{tokens: make(map[string]string)}
}

func (m *memoryStore) Load(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens[key], nil
}

func (m *memoryStore) Save(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[key] = token
	return nil
}

func (m *memoryStore) Close() error { return nil }
