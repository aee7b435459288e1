// Copyright 2026 fanjia1024
// Secret management abstraction

package secrets

import (
	"context"
	"fmt"
	"strings"

	"linkwatch/pkg/errors"
)

// Store Secret 存储接口
type Store interface {
	// Get 获取 secret 值；不存在时返回包装 errors.ErrNotFound 的错误
	Get(ctx context.Context, key string) (string, error)

	// Set 设置 secret 值
	Set(ctx context.Context, key string, value string) error

	// Delete 删除 secret
	Delete(ctx context.Context, key string) error

	// List 列出所有 secret keys
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config Secret Store 配置
type Config struct {
	Provider string            // memory | env | file | vault
	BaseDir  string            // file provider 的相对路径基准目录
	Vault    VaultConfig       // provider=vault 时使用
	Values   map[string]string // provider=memory 时的初始值
}

// NewStore 创建 Secret Store
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "memory":
		return NewMemoryStoreFrom(config.Values), nil
	case "", "env":
		return NewEnvStore(), nil
	case "file":
		return NewFileStore(config.BaseDir), nil
	case "vault":
		return NewVaultStore(config.Vault)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", config.Provider)
	}
}

// Resolve 解析凭据引用：
//
//	env:NAME     读取环境变量
//	file:/path   读取文件内容（凭据路径）
//	secret:KEY   交给 store 读取
//	其它         原样作为字面值
//
// 空引用返回空字符串。
func Resolve(ctx context.Context, store Store, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	scheme, rest, ok := strings.Cut(ref, ":")
	if !ok {
		return ref, nil
	}
	switch scheme {
	case "env":
		return NewEnvStore().Get(ctx, rest)
	case "file":
		return NewFileStore("").Get(ctx, rest)
	case "secret":
		if store == nil {
			return "", errors.Wrapf(errors.ErrInvalidArg, "secret reference %q without store", ref)
		}
		return store.Get(ctx, rest)
	default:
		return ref, nil
	}
}
