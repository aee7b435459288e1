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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lwerrors "linkwatch/pkg/errors"
)

const coll = "shared_urls"

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fields(url string, created time.Time) map[string]interface{} {
	return map[string]interface{}{"url": url, "created_at": created}
}

func next(t *testing.T, sub Subscription) ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed unexpectedly: %v", sub.Err())
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change event")
	}
	return ChangeEvent{}
}

func TestMemoryStore_LatestEmpty(t *testing.T) {
	s := NewMemoryStore()
	d, err := s.Latest(context.Background(), coll)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestMemoryStore_LatestOrdersByCreatedAtAndHidesID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Insert(ctx, coll, fields("http://new", base.Add(time.Minute)))
	require.NoError(t, err)
	_, err = s.Insert(ctx, coll, fields("http://old", base))
	require.NoError(t, err)

	d, err := s.Latest(ctx, coll)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "http://new", d.Fields["url"])
	assert.Empty(t, d.ID, "poll returns field values only")
}

func TestMemoryStore_UpdateMissing(t *testing.T) {
	s := NewMemoryStore()
	err := s.Update(context.Background(), coll, "nope", map[string]interface{}{"expires_at": base})
	assert.True(t, errors.Is(err, lwerrors.ErrNotFound))
}

func TestMemoryStore_ListenSnapshotThenChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemoryStore()
	firstID, err := s.Insert(ctx, coll, fields("http://x", base))
	require.NoError(t, err)

	sub, err := s.Listen(ctx, coll, 42, "")
	require.NoError(t, err)

	ev := next(t, sub)
	assert.Equal(t, KindAdded, ev.Kind)
	assert.Equal(t, TargetID(42), ev.Target)
	assert.Equal(t, firstID, ev.Doc.ID)

	id2, err := s.Insert(ctx, coll, fields("http://y", base.Add(time.Second)))
	require.NoError(t, err)
	ev = next(t, sub)
	assert.Equal(t, KindAdded, ev.Kind)
	assert.Equal(t, id2, ev.Doc.ID)

	require.NoError(t, s.Update(ctx, coll, id2, map[string]interface{}{"expires_at": base.Add(72 * time.Hour)}))
	ev = next(t, sub)
	assert.Equal(t, KindModified, ev.Kind)
	assert.Contains(t, ev.Doc.Fields, "expires_at")

	require.NoError(t, s.(*memoryStore).Delete(ctx, coll, firstID))
	ev = next(t, sub)
	assert.Equal(t, KindRemoved, ev.Kind)

	require.NoError(t, sub.Close())
	_, open := <-sub.Events()
	assert.False(t, open)
	assert.NoError(t, sub.Err())
}

func TestMemoryStore_ListenResume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemoryStore()
	_, _ = s.Insert(ctx, coll, fields("http://a", base))

	sub, err := s.Listen(ctx, coll, 1, "")
	require.NoError(t, err)
	snap := next(t, sub)
	require.NoError(t, sub.Close())

	// 订阅断开期间的变更，续传后按序补投
	idB, _ := s.Insert(ctx, coll, fields("http://b", base.Add(time.Second)))
	idC, _ := s.Insert(ctx, coll, fields("http://c", base.Add(2*time.Second)))

	sub, err = s.Listen(ctx, coll, 1, snap.ResumeToken)
	require.NoError(t, err)
	defer sub.Close()
	assert.Equal(t, idB, next(t, sub).Doc.ID)
	evC := next(t, sub)
	assert.Equal(t, idC, evC.Doc.ID)
	assert.Equal(t, ResumeToken("3"), evC.ResumeToken)
}

func TestMemoryStore_ListenInvalidResume(t *testing.T) {
	_, err := NewMemoryStore().Listen(context.Background(), coll, 1, "not-a-number")
	assert.True(t, errors.Is(err, ErrInvalidResumeToken))
}

func TestMemoryStore_ListenEmptyCollectionNoSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemoryStore()
	sub, err := s.Listen(ctx, coll, 1, "")
	require.NoError(t, err)
	defer sub.Close()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryStore_ParentCancelClosesSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := NewMemoryStore().Listen(ctx, coll, 1, "")
	require.NoError(t, err)
	cancel()
	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	assert.NoError(t, sub.Err())
}
