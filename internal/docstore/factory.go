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

package docstore

import (
	"context"
	"time"

	"linkwatch/pkg/config"
	"linkwatch/pkg/errors"
)

// New 根据配置创建文档存储；token 为已解析的 rest 凭据，fetchTimeout 作为 HTTP 客户端超时
func New(ctx context.Context, cfg config.StoreConfig, token string, fetchTimeout time.Duration) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "", "rest":
		return NewRESTStore(RESTConfig{
			BaseURL:   cfg.BaseURL,
			ProjectID: cfg.ProjectID,
			Database:  cfg.Database,
			Token:     token,
			Timeout:   fetchTimeout,
		})
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN)
	case "redis":
		return NewRedisStore(ctx, RedisConfig{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	default:
		return nil, errors.Wrapf(errors.ErrInvalidArg, "unsupported store type: %s", cfg.Type)
	}
}
