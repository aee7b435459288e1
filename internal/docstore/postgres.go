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
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"linkwatch/internal/record"
	"linkwatch/pkg/errors"
)

var collectionNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,40}$`)

// pgColumns 可通过 Update 修改的列
var pgColumns = map[string]bool{
	record.FieldURL:       true,
	record.FieldCreatedAt: true,
	record.FieldExpiresAt: true,
}

// postgresStore 每个集合一张表 + 一张变更日志表；触发器写日志并 NOTIFY，日志序号即续传位置
type postgresStore struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	ensured map[string]bool
}

// NewPostgresStore 创建基于 PostgreSQL 的文档存储；集合对应的表在首次使用时创建
func NewPostgresStore(ctx context.Context, dsn string) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidArg, err.Error())
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	return &postgresStore{pool: pool, ensured: make(map[string]bool)}, nil
}

type pgNames struct {
	table    string
	changes  string
	function string
	trigger  string
	channel  string
}

func namesFor(collection string) (pgNames, error) {
	if !collectionNameRe.MatchString(collection) {
		return pgNames{}, errors.Wrapf(errors.ErrInvalidArg, "collection name %q", collection)
	}
	return pgNames{
		table:    pgx.Identifier{collection}.Sanitize(),
		changes:  pgx.Identifier{collection + "_changes"}.Sanitize(),
		function: pgx.Identifier{"linkwatch_notify_" + collection}.Sanitize(),
		trigger:  pgx.Identifier{collection + "_notify"}.Sanitize(),
		channel:  "linkwatch_" + strings.ToLower(collection),
	}, nil
}

// ensure 建表与触发器（幂等）
func (s *postgresStore) ensure(ctx context.Context, collection string) (pgNames, error) {
	n, err := namesFor(collection)
	if err != nil {
		return n, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[collection] {
		return n, nil
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %[6]s ON %[1]s (created_at DESC);
CREATE TABLE IF NOT EXISTS %[2]s (
	seq    BIGSERIAL PRIMARY KEY,
	op     TEXT NOT NULL,
	doc_id TEXT NOT NULL
);
CREATE OR REPLACE FUNCTION %[3]s() RETURNS trigger AS $$
DECLARE
	s BIGINT;
	v_id TEXT;
BEGIN
	IF TG_OP = 'DELETE' THEN v_id := OLD.id; ELSE v_id := NEW.id; END IF;
	INSERT INTO %[2]s (op, doc_id) VALUES (TG_OP, v_id) RETURNING seq INTO s;
	PERFORM pg_notify('%[5]s', s::text);
	RETURN NULL;
END
$$ LANGUAGE plpgsql;
DROP TRIGGER IF EXISTS %[4]s ON %[1]s;
CREATE TRIGGER %[4]s AFTER INSERT OR UPDATE OR DELETE ON %[1]s
	FOR EACH ROW EXECUTE FUNCTION %[3]s();
`, n.table, n.changes, n.function, n.trigger, n.channel, pgx.Identifier{collection + "_created_idx"}.Sanitize())
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return n, errors.Wrapf(errors.ErrUnavailable, "ensure schema %s: %v", collection, err)
	}
	s.ensured[collection] = true
	return n, nil
}

func docFromRow(id, url string, created time.Time, expires *time.Time, updated time.Time) *Document {
	fields := map[string]interface{}{
		record.FieldURL:       url,
		record.FieldCreatedAt: created,
	}
	if expires != nil {
		fields[record.FieldExpiresAt] = *expires
	}
	return &Document{ID: id, Fields: fields, UpdateTime: updated}
}

func (s *postgresStore) Latest(ctx context.Context, collection string) (*Document, error) {
	n, err := s.ensure(ctx, collection)
	if err != nil {
		return nil, err
	}
	d, err := s.latest(ctx, n)
	if err != nil || d == nil {
		return nil, err
	}
	d.ID = ""
	return d, nil
}

func (s *postgresStore) latest(ctx context.Context, n pgNames) (*Document, error) {
	var (
		id, url          string
		created, updated time.Time
		expires          *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, url, created_at, expires_at, updated_at FROM `+n.table+` ORDER BY created_at DESC, updated_at DESC LIMIT 1`,
	).Scan(&id, &url, &created, &expires, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	return docFromRow(id, url, created, expires, updated), nil
}

func (s *postgresStore) get(ctx context.Context, n pgNames, id string) (*Document, error) {
	var (
		url              string
		created, updated time.Time
		expires          *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT url, created_at, expires_at, updated_at FROM `+n.table+` WHERE id = $1`, id,
	).Scan(&url, &created, &expires, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	return docFromRow(id, url, created, expires, updated), nil
}

func (s *postgresStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if id == "" {
		return errors.Wrap(errors.ErrInvalidArg, "update: empty document id")
	}
	n, err := s.ensure(ctx, collection)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !pgColumns[k] {
			return errors.Wrapf(errors.ErrInvalidArg, "update: unknown field %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sets := make([]string, 0, len(keys)+1)
	args := make([]interface{}, 0, len(keys)+1)
	for i, k := range keys {
		v, err := columnValue(k, fields[k])
		if err != nil {
			return err
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{k}.Sanitize(), i+1))
		args = append(args, v)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+n.table+` SET `+strings.Join(sets, ", ")+fmt.Sprintf(` WHERE id = $%d`, len(args)), args...)
	if err != nil {
		return errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(errors.ErrNotFound, "document %s/%s", collection, id)
	}
	return nil
}

func (s *postgresStore) Insert(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	n, err := s.ensure(ctx, collection)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	if v, ok := fields[record.FieldID].(string); ok && v != "" {
		id = v
	}
	url, _ := fields[record.FieldURL].(string)
	if url == "" {
		return "", errors.Wrap(errors.ErrInvalidArg, "insert: url 不能为空")
	}
	created, err := columnValue(record.FieldCreatedAt, fields[record.FieldCreatedAt])
	if err != nil {
		return "", err
	}
	if created == nil {
		created = time.Now().UTC()
	}
	expires, err := columnValue(record.FieldExpiresAt, fields[record.FieldExpiresAt])
	if err != nil {
		return "", err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+n.table+` (id, url, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
		id, url, created, expires)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return "", errors.Wrapf(errors.ErrInvalidArg, "document %s already exists", id)
		}
		return "", errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	return id, nil
}

// columnValue 时间列接受 time.Time 或 RFC3339 字符串
func columnValue(col string, v interface{}) (interface{}, error) {
	if col == record.FieldURL {
		s, ok := v.(string)
		if !ok {
			return nil, errors.Wrapf(errors.ErrInvalidArg, "field %s: want string, got %T", col, v)
		}
		return s, nil
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return *t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidArg, "field %s: %v", col, err)
		}
		return parsed, nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidArg, "field %s: unsupported type %T", col, v)
	}
}

func kindForOp(op string) ChangeKind {
	switch op {
	case "INSERT":
		return KindAdded
	case "UPDATE":
		return KindModified
	case "DELETE":
		return KindRemoved
	default:
		return KindOther
	}
}

func (s *postgresStore) Listen(ctx context.Context, collection string, target TargetID, resume ResumeToken) (Subscription, error) {
	n, err := s.ensure(ctx, collection)
	if err != nil {
		return nil, err
	}
	var after int64
	if resume != "" {
		after, err = strconv.ParseInt(string(resume), 10, 64)
		if err != nil || after < 0 {
			return nil, errors.Wrapf(ErrInvalidResumeToken, "%q", resume)
		}
	}

	pooled, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	// LISTEN 状态不能带回连接池，订阅独占该连接
	conn := pooled.Hijack()
	closeConn := func() { _ = conn.Close(context.Background()) }
	// 先 LISTEN 再读快照，避免两者之间的变更丢失
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{n.channel}.Sanitize()); err != nil {
		closeConn()
		return nil, errors.Wrap(errors.ErrUnavailable, err.Error())
	}

	var snapshot *ChangeEvent
	if resume == "" {
		if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM `+n.changes).Scan(&after); err != nil {
			closeConn()
			return nil, errors.Wrap(errors.ErrUnavailable, err.Error())
		}
		d, err := s.latest(ctx, n)
		if err != nil {
			closeConn()
			return nil, err
		}
		if d != nil {
			snapshot = &ChangeEvent{Kind: KindAdded, Target: target, Doc: d, ResumeToken: ResumeToken(strconv.FormatInt(after, 10))}
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(cancel, watchChanBuffer)
	go func() {
		err := s.pump(subCtx, conn, n, target, after, snapshot, sub)
		closeConn()
		sub.finish(subCtx, err)
	}()
	return sub, nil
}

// pump 通知只作为唤醒信号，事件一律按日志序号从变更表读取
func (s *postgresStore) pump(ctx context.Context, conn *pgx.Conn, n pgNames, target TargetID, after int64, snapshot *ChangeEvent, sub *subscription) error {
	if snapshot != nil && !sub.send(ctx, *snapshot) {
		return ctx.Err()
	}
	for {
		var err error
		after, err = s.drain(ctx, n, target, after, sub)
		if err != nil {
			return err
		}
		if _, err := conn.WaitForNotification(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(errors.ErrUnavailable, err.Error())
		}
	}
}

func (s *postgresStore) drain(ctx context.Context, n pgNames, target TargetID, after int64, sub *subscription) (int64, error) {
	type entry struct {
		seq int64
		op  string
		id  string
	}
	rows, err := s.pool.Query(ctx, `SELECT seq, op, doc_id FROM `+n.changes+` WHERE seq > $1 ORDER BY seq LIMIT 500`, after)
	if err != nil {
		if ctx.Err() != nil {
			return after, ctx.Err()
		}
		return after, errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.seq, &e.op, &e.id); err != nil {
			rows.Close()
			return after, errors.Wrap(errors.ErrUnavailable, err.Error())
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return after, errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	for _, e := range entries {
		d, err := s.get(ctx, n, e.id)
		if err != nil {
			return after, err
		}
		if d == nil {
			d = &Document{ID: e.id}
		}
		ev := ChangeEvent{Kind: kindForOp(e.op), Target: target, Doc: d, ResumeToken: ResumeToken(strconv.FormatInt(e.seq, 10))}
		if !sub.send(ctx, ev) {
			return after, ctx.Err()
		}
		after = e.seq
	}
	if len(entries) == 500 {
		return s.drain(ctx, n, target, after, sub)
	}
	return after, nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
