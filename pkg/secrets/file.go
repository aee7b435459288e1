// Copyright 2026 fanjia1024
// File based secret store: one secret per file, e.g. a mounted credential

package secrets

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"linkwatch/pkg/errors"
)

type fileStore struct {
	baseDir string
}

// NewFileStore 创建文件 secret store；key 为相对 baseDir 的路径，绝对路径直接使用
func NewFileStore(baseDir string) Store {
	return &fileStore{baseDir: baseDir}
}

func (f *fileStore) path(key string) string {
	if filepath.IsAbs(key) || f.baseDir == "" {
		return key
	}
	return filepath.Join(f.baseDir, key)
}

func (f *fileStore) Get(ctx context.Context, key string) (string, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrapf(errors.ErrNotFound, "credential file %s", key)
		}
		return "", errors.Wrapf(err, "read credential file %s", key)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *fileStore) Set(ctx context.Context, key string, value string) error {
	p := f.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(value), 0o600)
}

func (f *fileStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *fileStore) List(ctx context.Context, prefix string) ([]string, error) {
	dir := f.baseDir
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			keys = append(keys, e.Name())
		}
	}
	return keys, nil
}
