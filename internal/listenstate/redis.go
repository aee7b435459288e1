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

package listenstate

import (
	"context"

	"github.com/redis/go-redis/v9"

	"linkwatch/pkg/config"
	"linkwatch/pkg/errors"
)

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 每个 key 存为一个字符串值：<prefix>:<key>
func NewRedisStore(ctx context.Context, cfg config.ListenStateConfig) (Store, error) {
	opts := &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(errors.ErrUnavailable, "redis ping %s: %v", opts.Addr, err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "linkwatch:listen"
	}
	return &redisStore{client: client, prefix: prefix}, nil
}

func (r *redisStore) key(k string) string { return r.prefix + ":" + k }

func (r *redisStore) Load(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	return v, nil
}

func (r *redisStore) Save(ctx context.Context, key, token string) error {
	if err := r.client.Set(ctx, r.key(key), token, 0).Err(); err != nil {
		return errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	return nil
}

func (r *redisStore) Close() error { return r.client.Close() }
