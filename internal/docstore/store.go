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

// Package docstore 文档存储客户端：poll（最新一条）、push（变更订阅）、回写与插入。
// 后端：memory | rest（Firestore REST 形态）| postgres | redis。
package docstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"linkwatch/internal/record"
)

var (
	// ErrListenUnsupported 后端不支持 push 订阅
	ErrListenUnsupported = errors.New("docstore: listen not supported by this backend")
	// ErrSlowConsumer 订阅方消费过慢，订阅被关闭
	ErrSlowConsumer = errors.New("docstore: subscriber too slow, subscription closed")
	// ErrInvalidResumeToken 续传位置无法解析
	ErrInvalidResumeToken = errors.New("docstore: invalid resume token")
)

// Document 存储中的一条文档；Poll 返回的文档只含字段值，ID 为空
type Document struct {
	ID         string
	Fields     map[string]interface{}
	UpdateTime time.Time
}

// Raw 转为解码器输入
func (d *Document) Raw() record.Raw {
	return record.Raw{ID: d.ID, Fields: d.Fields}
}

// ChangeKind 变更类型
type ChangeKind string

const (
	KindAdded    ChangeKind = "added"
	KindModified ChangeKind = "modified"
	KindRemoved  ChangeKind = "removed"
	KindOther    ChangeKind = "other"
)

// TargetID 订阅目标 ID，由调用方指定
type TargetID uint32

// ResumeToken 后端相关的续传位置；空表示从当前最新文档的快照开始
type ResumeToken string

// ChangeEvent push 订阅投递的变更事件
type ChangeEvent struct {
	Kind        ChangeKind
	Target      TargetID
	Doc         *Document // removed/other 时可能为 nil
	ResumeToken ResumeToken
}

// Subscription 一次 push 订阅；Events 关闭后 Err 返回关闭原因（ctx 取消时为 nil）
type Subscription interface {
	Events() <-chan ChangeEvent
	Err() error
	Close() error
}

// Poller poll 传输：等价于 from <collection> order by created_at desc limit 1；集合为空时返回 nil, nil
type Poller interface {
	Latest(ctx context.Context, collection string) (*Document, error)
}

// Listener push 传输。resume 为空时先投递当前最新文档（kind=added）作为初始快照，之后投递新变更；
// resume 非空且后端支持续传时，投递该位置之后的全部变更。
type Listener interface {
	Listen(ctx context.Context, collection string, target TargetID, resume ResumeToken) (Subscription, error)
}

// Updater 按 ID 更新部分字段（回写 expires_at）
type Updater interface {
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
}

// Inserter 插入新文档，返回分配的 ID
type Inserter interface {
	Insert(ctx context.Context, collection string, fields map[string]interface{}) (string, error)
}

// Store 文档存储
type Store interface {
	Poller
	Listener
	Updater
	Inserter
	Close() error
}

// subscription Subscription 的通用实现：生产方 goroutine 调用 send，结束时调用 finish
type subscription struct {
	ch     chan ChangeEvent
	cancel context.CancelFunc
	once   sync.Once
	mu     sync.Mutex
	err    error
	done   chan struct{}
}

func newSubscription(cancel context.CancelFunc, buffer int) *subscription {
	return &subscription{
		ch:     make(chan ChangeEvent, buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (s *subscription) Events() <-chan ChangeEvent { return s.ch }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close 取消订阅并等待生产方退出
func (s *subscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// send 阻塞投递；ctx 结束时返回 false
func (s *subscription) send(ctx context.Context, ev ChangeEvent) bool {
	select {
	case s.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish 仅由生产方调用一次：记录原因并关闭事件通道
func (s *subscription) finish(ctx context.Context, err error) {
	s.once.Do(func() {
		if ctx.Err() != nil {
			err = nil
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.ch)
		close(s.done)
	})
}
