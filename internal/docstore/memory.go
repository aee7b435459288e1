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
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"linkwatch/internal/record"
	"linkwatch/pkg/errors"
)

const (
	watchChanBuffer = 16
	// 单个订阅允许积压的最大事件数，超过即视为慢消费者
	maxPendingEvents = 1024
)

type changeEntry struct {
	seq  int64
	kind ChangeKind
	id   string
}

type memCollection struct {
	docs     map[string]*Document
	log      []changeEntry
	watchers map[*memWatcher]struct{}
}

// memoryStore 内存实现：文档 + 变更日志（支持续传）+ 订阅者扇出
type memoryStore struct {
	mu          sync.RWMutex
	seq         int64
	collections map[string]*memCollection
	now         func() time.Time
}

// NewMemoryStore 创建内存版文档存储
func NewMemoryStore() Store {
	return newMemoryStore()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		collections: make(map[string]*memCollection),
		now:         time.Now,
	}
}

func (s *memoryStore) collLocked(name string) *memCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memCollection{
			docs:     make(map[string]*Document),
			watchers: make(map[*memWatcher]struct{}),
		}
		s.collections[name] = c
	}
	return c
}

func copyDoc(d *Document) *Document {
	fields := make(map[string]interface{}, len(d.Fields))
	for k, v := range d.Fields {
		fields[k] = v
	}
	return &Document{ID: d.ID, Fields: fields, UpdateTime: d.UpdateTime}
}

func createdAt(d *Document) time.Time {
	switch v := d.Fields[record.FieldCreatedAt].(type) {
	case time.Time:
		return v
	case string:
		t, _ := time.Parse(time.RFC3339Nano, v)
		return t
	}
	return time.Time{}
}

// latestLocked created_at 最大的文档；相同时取后更新的
func (c *memCollection) latestLocked() *Document {
	var best *Document
	for _, d := range c.docs {
		if best == nil {
			best = d
			continue
		}
		bc, dc := createdAt(best), createdAt(d)
		if dc.After(bc) || (dc.Equal(bc) && d.UpdateTime.After(best.UpdateTime)) {
			best = d
		}
	}
	return best
}

func (s *memoryStore) Latest(ctx context.Context, collection string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return nil, nil
	}
	d := c.latestLocked()
	if d == nil {
		return nil, nil
	}
	out := copyDoc(d)
	out.ID = ""
	return out, nil
}

func (s *memoryStore) Insert(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	id := uuid.New().String()
	if v, ok := fields[record.FieldID].(string); ok && v != "" {
		id = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collLocked(collection)
	if _, exists := c.docs[id]; exists {
		return "", errors.Wrapf(errors.ErrInvalidArg, "document %s already exists", id)
	}
	d := &Document{ID: id, Fields: make(map[string]interface{}, len(fields)), UpdateTime: s.now()}
	for k, v := range fields {
		if k == record.FieldID {
			continue
		}
		d.Fields[k] = v
	}
	c.docs[id] = d
	s.appendLocked(c, KindAdded, d)
	return id, nil
}

func (s *memoryStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "document %s/%s", collection, id)
	}
	d, ok := c.docs[id]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "document %s/%s", collection, id)
	}
	for k, v := range fields {
		d.Fields[k] = v
	}
	d.UpdateTime = s.now()
	s.appendLocked(c, KindModified, d)
	return nil
}

// Delete 删除文档并投递 removed 事件（用于测试与开发）
func (s *memoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "document %s/%s", collection, id)
	}
	d, ok := c.docs[id]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "document %s/%s", collection, id)
	}
	delete(c.docs, id)
	s.appendLocked(c, KindRemoved, d)
	return nil
}

func (s *memoryStore) appendLocked(c *memCollection, kind ChangeKind, d *Document) {
	s.seq++
	c.log = append(c.log, changeEntry{seq: s.seq, kind: kind, id: d.ID})
	ev := ChangeEvent{Kind: kind, Doc: copyDoc(d), ResumeToken: ResumeToken(strconv.FormatInt(s.seq, 10))}
	for w := range c.watchers {
		w.enqueue(ev)
	}
}

func (s *memoryStore) Listen(ctx context.Context, collection string, target TargetID, resume ResumeToken) (Subscription, error) {
	var after int64
	if resume != "" {
		n, err := strconv.ParseInt(string(resume), 10, 64)
		if err != nil || n < 0 {
			return nil, errors.Wrapf(ErrInvalidResumeToken, "%q", resume)
		}
		after = n
	}

	subCtx, cancel := context.WithCancel(ctx)
	w := &memWatcher{
		target: target,
		sub:    newSubscription(cancel, watchChanBuffer),
		signal: make(chan struct{}, 1),
	}

	s.mu.Lock()
	c := s.collLocked(collection)
	if resume == "" {
		if d := c.latestLocked(); d != nil {
			w.enqueue(ChangeEvent{Kind: KindAdded, Doc: copyDoc(d), ResumeToken: ResumeToken(strconv.FormatInt(s.seq, 10))})
		}
	} else {
		for _, e := range c.log {
			if e.seq <= after {
				continue
			}
			ev := ChangeEvent{Kind: e.kind, ResumeToken: ResumeToken(strconv.FormatInt(e.seq, 10))}
			if d, ok := c.docs[e.id]; ok {
				ev.Doc = copyDoc(d)
			} else {
				ev.Doc = &Document{ID: e.id}
			}
			w.enqueue(ev)
		}
	}
	c.watchers[w] = struct{}{}
	s.mu.Unlock()

	go func() {
		err := w.pump(subCtx)
		s.mu.Lock()
		delete(c.watchers, w)
		s.mu.Unlock()
		w.sub.finish(subCtx, err)
	}()
	return w.sub, nil
}

func (s *memoryStore) Close() error { return nil }

// memWatcher 单个订阅：store 在锁内非阻塞入队，pump 协程按序投递到订阅通道
type memWatcher struct {
	target   TargetID
	sub      *subscription
	mu       sync.Mutex
	pending  []ChangeEvent
	overflow bool
	signal   chan struct{}
}

func (w *memWatcher) enqueue(ev ChangeEvent) {
	ev.Target = w.target
	w.mu.Lock()
	if len(w.pending) >= maxPendingEvents {
		w.overflow = true
	} else {
		w.pending = append(w.pending, ev)
	}
	w.mu.Unlock()
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *memWatcher) pump(ctx context.Context) error {
	for {
		w.mu.Lock()
		if w.overflow {
			w.mu.Unlock()
			return ErrSlowConsumer
		}
		var ev ChangeEvent
		have := len(w.pending) > 0
		if have {
			ev = w.pending[0]
			w.pending[0] = ChangeEvent{}
			w.pending = w.pending[1:]
		}
		w.mu.Unlock()

		if have {
			if !w.sub.send(ctx, ev) {
				return ctx.Err()
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.signal:
		}
	}
}
