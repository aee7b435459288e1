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
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"linkwatch/internal/record"
	"linkwatch/pkg/errors"
)

const (
	redisStreamMaxLen = 10000
	redisReadBlock    = 5 * time.Second
	redisReadCount    = 100
	redisFieldUpdated = "updated_at"
)

var streamIDRe = regexp.MustCompile(`^\d+-\d+$`)

// RedisConfig Redis 文档存储配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// redisStore 文档存为 hash，created_at 排序集合用于取最新，变更写入 stream（stream ID 即续传位置）
type redisStore struct {
	client *redis.Client
}

// NewRedisStore 创建基于 Redis 的文档存储
func NewRedisStore(ctx context.Context, cfg RedisConfig) (Store, error) {
	opts := &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(errors.ErrUnavailable, "redis ping %s: %v", opts.Addr, err)
	}
	return &redisStore{client: client}, nil
}

func docKey(collection, id string) string   { return collection + ":doc:" + id }
func byCreatedKey(collection string) string { return collection + ":by_created" }
func changesKey(collection string) string   { return collection + ":changes" }

func unavailable(err error) error {
	return errors.Wrap(errors.ErrUnavailable, err.Error())
}

// hashValue 时间统一以 RFC3339Nano 字符串存储
func hashValue(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

func docFromHash(id string, h map[string]string) *Document {
	fields := make(map[string]interface{}, len(h))
	var updated time.Time
	for k, v := range h {
		switch k {
		case redisFieldUpdated:
			updated, _ = time.Parse(time.RFC3339Nano, v)
		case record.FieldCreatedAt, record.FieldExpiresAt:
			if v == "" {
				continue
			}
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				fields[k] = t
			} else {
				fields[k] = v
			}
		default:
			fields[k] = v
		}
	}
	return &Document{ID: id, Fields: fields, UpdateTime: updated}
}

func (s *redisStore) get(ctx context.Context, collection, id string) (*Document, error) {
	h, err := s.client.HGetAll(ctx, docKey(collection, id)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(h) == 0 {
		return nil, nil
	}
	return docFromHash(id, h), nil
}

func (s *redisStore) latest(ctx context.Context, collection string) (*Document, error) {
	ids, err := s.client.ZRevRange(ctx, byCreatedKey(collection), 0, 0).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.get(ctx, collection, ids[0])
}

func (s *redisStore) Latest(ctx context.Context, collection string) (*Document, error) {
	d, err := s.latest(ctx, collection)
	if err != nil || d == nil {
		return nil, err
	}
	d.ID = ""
	return d, nil
}

func createdScore(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case time.Time:
		return float64(t.UnixMilli()), true
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return float64(parsed.UnixMilli()), true
		}
	}
	return 0, false
}

func (s *redisStore) Insert(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	id := uuid.New().String()
	if v, ok := fields[record.FieldID].(string); ok && v != "" {
		id = v
	}
	if _, ok := fields[record.FieldCreatedAt]; !ok {
		return "", errors.Wrap(errors.ErrInvalidArg, "insert: created_at 不能为空")
	}
	score, ok := createdScore(fields[record.FieldCreatedAt])
	if !ok {
		return "", errors.Wrap(errors.ErrInvalidArg, "insert: created_at 不是有效时间")
	}
	key := docKey(collection, id)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return "", unavailable(err)
	}
	if n > 0 {
		return "", errors.Wrapf(errors.ErrInvalidArg, "document %s already exists", id)
	}
	values := map[string]interface{}{redisFieldUpdated: hashValue(time.Now())}
	for k, v := range fields {
		if k != record.FieldID {
			values[k] = hashValue(v)
		}
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, values)
		p.ZAdd(ctx, byCreatedKey(collection), redis.Z{Score: score, Member: id})
		p.XAdd(ctx, &redis.XAddArgs{
			Stream: changesKey(collection),
			MaxLen: redisStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"kind": string(KindAdded), "id": id},
		})
		return nil
	})
	if err != nil {
		return "", unavailable(err)
	}
	return id, nil
}

func (s *redisStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if id == "" {
		return errors.Wrap(errors.ErrInvalidArg, "update: empty document id")
	}
	key := docKey(collection, id)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "document %s/%s", collection, id)
	}
	values := map[string]interface{}{redisFieldUpdated: hashValue(time.Now())}
	for k, v := range fields {
		values[k] = hashValue(v)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, values)
		if score, ok := createdScore(fields[record.FieldCreatedAt]); ok {
			p.ZAdd(ctx, byCreatedKey(collection), redis.Z{Score: score, Member: id})
		}
		p.XAdd(ctx, &redis.XAddArgs{
			Stream: changesKey(collection),
			MaxLen: redisStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"kind": string(KindModified), "id": id},
		})
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *redisStore) Listen(ctx context.Context, collection string, target TargetID, resume ResumeToken) (Subscription, error) {
	var (
		after    string
		snapshot *ChangeEvent
	)
	if resume != "" {
		if !streamIDRe.MatchString(string(resume)) {
			return nil, errors.Wrapf(ErrInvalidResumeToken, "%q", resume)
		}
		after = string(resume)
	} else {
		last, err := s.client.XRevRangeN(ctx, changesKey(collection), "+", "-", 1).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		after = "0-0"
		if len(last) > 0 {
			after = last[0].ID
		}
		d, err := s.latest(ctx, collection)
		if err != nil {
			return nil, err
		}
		if d != nil {
			snapshot = &ChangeEvent{Kind: KindAdded, Target: target, Doc: d, ResumeToken: ResumeToken(after)}
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(cancel, watchChanBuffer)
	go func() {
		err := s.pump(subCtx, collection, target, after, snapshot, sub)
		sub.finish(subCtx, err)
	}()
	return sub, nil
}

func (s *redisStore) pump(ctx context.Context, collection string, target TargetID, after string, snapshot *ChangeEvent, sub *subscription) error {
	if snapshot != nil && !sub.send(ctx, *snapshot) {
		return ctx.Err()
	}
	stream := changesKey(collection)
	for {
		res, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, after},
			Count:   redisReadCount,
			Block:   redisReadBlock,
		}).Result()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return unavailable(err)
		}
		for _, st := range res {
			for _, msg := range st.Messages {
				id, _ := msg.Values["id"].(string)
				kind, _ := msg.Values["kind"].(string)
				d, err := s.get(ctx, collection, id)
				if err != nil {
					return err
				}
				if d == nil {
					d = &Document{ID: id}
				}
				ev := ChangeEvent{Kind: ChangeKind(kind), Target: target, Doc: d, ResumeToken: ResumeToken(msg.ID)}
				switch ev.Kind {
				case KindAdded, KindModified, KindRemoved:
				default:
					ev.Kind = KindOther
				}
				if !sub.send(ctx, ev) {
					return ctx.Err()
				}
				after = msg.ID
			}
		}
	}
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
