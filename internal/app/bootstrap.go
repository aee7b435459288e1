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

package app

import (
	"context"
	"fmt"

	"linkwatch/internal/docstore"
	"linkwatch/internal/watcher"
	"linkwatch/pkg/config"
	"linkwatch/pkg/errors"
	"linkwatch/pkg/secrets"
)

// NewSecretStore 按 secrets 配置创建凭据存储
func NewSecretStore(cfg config.SecretsConfig) (secrets.Store, error) {
	return secrets.NewStore(secrets.Config{
		Provider: cfg.Provider,
		Vault: secrets.VaultConfig{
			Address:    cfg.Vault.Address,
			Token:      cfg.Vault.Token,
			PathPrefix: cfg.Vault.PathPrefix,
		},
	})
}

// OpenStore 解析 store 凭据并创建文档存储；供 watcher 与 cli 复用。
// 凭据或存储配置有误时返回 CONFIG_INVALID
func OpenStore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	sec, err := NewSecretStore(cfg.Secrets)
	if err != nil {
		return nil, watcher.NewConfigError("secrets", err)
	}
	token, err := secrets.Resolve(ctx, sec, cfg.Store.Credential)
	if err != nil {
		return nil, watcher.NewConfigError("credential", err)
	}
	fetchTimeout := watcher.OptionsFromConfig(cfg.Watcher).FetchTimeout
	store, err := docstore.New(ctx, cfg.Store, token, fetchTimeout)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidArg) {
			return nil, watcher.NewConfigError("store", err)
		}
		return nil, fmt.Errorf("初始化文档存储失败: %w", err)
	}
	return store, nil
}
