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

package action

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkwatch/internal/dedup"
	"linkwatch/internal/docstore"
	"linkwatch/internal/record"
	"linkwatch/pkg/log"
)

type recordingLauncher struct {
	mu     sync.Mutex
	opened []string
	err    error
}

func (l *recordingLauncher) Open(u string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opened = append(l.opened, u)
	return l.err
}

func (l *recordingLauncher) urls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.opened...)
}

type fakeUpdater struct {
	mu    sync.Mutex
	calls []map[string]interface{}
	ids   []string
	err   error
}

func (f *fakeUpdater) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	f.calls = append(f.calls, fields)
	return f.err
}

var created = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestBrowserOpener_DecodesBeforeLaunch(t *testing.T) {
	l := &recordingLauncher{}
	o := NewBrowserOpener(l, 0, 1)
	got, err := o.Open(context.Background(), "https%3A%2F%2Fexample.com%2Fa%2Bb")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a+b", got)
	assert.Equal(t, []string{"https://example.com/a+b"}, l.urls())
}

func TestBrowserOpener_InvalidEncodingNotLaunched(t *testing.T) {
	l := &recordingLauncher{}
	_, err := NewBrowserOpener(l, 0, 1).Open(context.Background(), "%zz")
	assert.True(t, errors.Is(err, ErrInvalidEncoding))
	assert.Empty(t, l.urls())
}

func TestBrowserOpener_RateLimitHonoursContext(t *testing.T) {
	l := &recordingLauncher{}
	o := NewBrowserOpener(l, 0.001, 1)
	_, err := o.Open(context.Background(), "http://a")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = o.Open(ctx, "http://b")
	assert.Error(t, err)
	assert.Equal(t, []string{"http://a"}, l.urls())
}

func TestWriteBack(t *testing.T) {
	u := &fakeUpdater{}
	wb := NewWriteBack(u, "shared_urls", 0)

	applied, err := wb.Apply(context.Background(), record.SharedRecord{URL: "http://x", CreatedAt: created})
	require.NoError(t, err)
	assert.False(t, applied, "records without identity are skipped")
	assert.Empty(t, u.ids)

	applied, err = wb.Apply(context.Background(), record.SharedRecord{ID: "d1", URL: "http://x", CreatedAt: created})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, []string{"d1"}, u.ids)
	assert.Equal(t, created.Add(72*time.Hour), u.calls[0]["expires_at"])
}

func TestWriteBack_AgainstMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := docstore.NewMemoryStore()
	id, err := s.Insert(ctx, "shared_urls", map[string]interface{}{"url": "http://x", "created_at": created})
	require.NoError(t, err)
	_, err = NewWriteBack(s, "shared_urls", time.Hour).Apply(ctx, record.SharedRecord{ID: id, URL: "http://x", CreatedAt: created})
	require.NoError(t, err)

	_, err = NewWriteBack(s, "shared_urls", time.Hour).Apply(ctx, record.SharedRecord{ID: "missing", CreatedAt: created})
	assert.Error(t, err)
}

func TestExecutor_FailuresAreJoined(t *testing.T) {
	l := &recordingLauncher{err: errors.New("no display")}
	u := &fakeUpdater{err: errors.New("store down")}
	e := NewExecutor(NewBrowserOpener(l, 0, 1), NewWriteBack(u, "shared_urls", 0), log.Discard())
	err := e.Execute(context.Background(), dedup.ActionRequest{
		URL:    "http://x",
		Record: record.SharedRecord{ID: "d1", URL: "http://x", CreatedAt: created},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no display")
	assert.Contains(t, err.Error(), "store down")
	assert.Equal(t, []string{"d1"}, u.ids, "write-back runs even if the browser failed")
}

func TestExecutor_OpenOnly(t *testing.T) {
	l := &recordingLauncher{}
	e := NewExecutor(NewBrowserOpener(l, 0, 1), nil, nil)
	require.NoError(t, e.Execute(context.Background(), dedup.ActionRequest{URL: "http%3A%2F%2Fy"}))
	assert.Equal(t, []string{"http://y"}, l.urls())
}

type blockingRunner struct {
	release chan struct{}
	running atomic.Int32
	peak    atomic.Int32
	done    atomic.Int32
	err     error
}

func (b *blockingRunner) Execute(ctx context.Context, req dedup.ActionRequest) error {
	n := b.running.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-b.release
	b.running.Add(-1)
	b.done.Add(1)
	return b.err
}

func TestDispatcher_BoundedAndWaits(t *testing.T) {
	r := &blockingRunner{release: make(chan struct{}), err: errors.New("boom")}
	var failures atomic.Int32
	d := NewDispatcher(r, 2, func(req dedup.ActionRequest, err error) { failures.Add(1) })

	ctx := context.Background()
	assert.True(t, d.Dispatch(ctx, dedup.ActionRequest{URL: "a"}))
	assert.True(t, d.Dispatch(ctx, dedup.ActionRequest{URL: "b"}))

	// 池满：带超时的 Dispatch 放弃
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.False(t, d.Dispatch(short, dedup.ActionRequest{URL: "c"}))

	waitCtx, cancelWait := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancelWait()
	assert.ErrorIs(t, d.Wait(waitCtx), context.DeadlineExceeded)

	close(r.release)
	require.NoError(t, d.Wait(ctx))
	assert.Equal(t, int32(2), r.done.Load())
	assert.Equal(t, int32(2), r.peak.Load())
	assert.Equal(t, int32(2), failures.Load())
}

func TestDispatcher_ActionSurvivesCallerCancel(t *testing.T) {
	r := &blockingRunner{release: make(chan struct{})}
	d := NewDispatcher(r, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, d.Dispatch(ctx, dedup.ActionRequest{URL: "a"}))
	cancel()
	close(r.release)
	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, int32(1), r.done.Load())
}
