// Copyright 2026 fanjia1024
// In-memory secret store for development and tests

package secrets

import (
	"context"
	"sort"
	"strings"
	"sync"

	"linkwatch/pkg/errors"
)

// memoryStore 进程内凭据，仅用于开发与测试
type memoryStore struct {
	values sync.Map // key -> string
}

// NewMemoryStore 创建空的内存 secret store
func NewMemoryStore() Store {
	return NewMemoryStoreFrom(nil)
}

// NewMemoryStoreFrom 以给定键值初始化内存 secret store
func NewMemoryStoreFrom(values map[string]string) Store {
	m := &memoryStore{}
	for k, v := range values {
		m.values.Store(k, v)
	}
	return m
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	if v, ok := m.values.Load(key); ok {
		return v.(string), nil
	}
	return "", errors.Wrapf(errors.ErrNotFound, "secret %s", key)
}

func (m *memoryStore) Set(ctx context.Context, key string, value string) error {
	m.values.Store(key, value)
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.values.Delete(key)
	return nil
}

func (m *memoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	m.values.Range(func(k, _ interface{}) bool {
		if key := k.(string); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	sort.Strings(keys)
	return keys, nil
}
