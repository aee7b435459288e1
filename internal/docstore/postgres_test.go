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
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lwerrors "linkwatch/pkg/errors"
)

func testDocstoreDSN(t *testing.T) string {
	dsn := os.Getenv("TEST_DOCSTORE_DSN")
	if dsn == "" {
		t.Skip("TEST_DOCSTORE_DSN not set, skipping Postgres docstore tests")
	}
	return dsn
}

func newTestPostgres(t *testing.T, ctx context.Context) (*postgresStore, string) {
	s, err := NewPostgresStore(ctx, testDocstoreDSN(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ps := s.(*postgresStore)
	coll := fmt.Sprintf("lw_test_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = ps.pool.Exec(context.Background(), fmt.Sprintf(`DROP TABLE IF EXISTS %s, %s_changes`, coll, coll))
	})
	return ps, coll
}

func TestNamesFor_RejectsUnsafeCollection(t *testing.T) {
	_, err := namesFor(`shared"; DROP TABLE x; --`)
	assert.True(t, errors.Is(err, lwerrors.ErrInvalidArg))
	n, err := namesFor("shared_urls")
	require.NoError(t, err)
	assert.Equal(t, `"shared_urls"`, n.table)
	assert.Equal(t, "linkwatch_shared_urls", n.channel)
}

func TestColumnValue(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	v, err := columnValue("created_at", "2025-03-01T12:00:00Z")
	require.NoError(t, err)
	assert.True(t, ts.Equal(v.(time.Time)))
	v, err = columnValue("expires_at", nil)
	require.NoError(t, err)
	assert.Nil(t, v)
	_, err = columnValue("url", 3)
	assert.True(t, errors.Is(err, lwerrors.ErrInvalidArg))
	_, err = columnValue("created_at", "yesterday")
	assert.True(t, errors.Is(err, lwerrors.ErrInvalidArg))
}

func TestPostgresStore_LatestUpdateInsert(t *testing.T) {
	ctx := context.Background()
	s, coll := newTestPostgres(t, ctx)

	d, err := s.Latest(ctx, coll)
	require.NoError(t, err)
	assert.Nil(t, d)

	_, err = s.Insert(ctx, coll, fields("http://old", base))
	require.NoError(t, err)
	id, err := s.Insert(ctx, coll, fields("http://new", base.Add(time.Minute)))
	require.NoError(t, err)

	d, err = s.Latest(ctx, coll)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "http://new", d.Fields["url"])
	assert.Empty(t, d.ID)

	require.NoError(t, s.Update(ctx, coll, id, map[string]interface{}{"expires_at": base.Add(72 * time.Hour)}))
	err = s.Update(ctx, coll, "missing", map[string]interface{}{"expires_at": base})
	assert.True(t, errors.Is(err, lwerrors.ErrNotFound))
	err = s.Update(ctx, coll, id, map[string]interface{}{"owner": "x"})
	assert.True(t, errors.Is(err, lwerrors.ErrInvalidArg))
}

func TestPostgresStore_ListenSnapshotChangesResume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, coll := newTestPostgres(t, ctx)
	firstID, err := s.Insert(ctx, coll, fields("http://a", base))
	require.NoError(t, err)

	sub, err := s.Listen(ctx, coll, 42, "")
	require.NoError(t, err)
	snap := next(t, sub)
	assert.Equal(t, KindAdded, snap.Kind)
	assert.Equal(t, firstID, snap.Doc.ID)

	id2, err := s.Insert(ctx, coll, fields("http://b", base.Add(time.Second)))
	require.NoError(t, err)
	ev := next(t, sub)
	assert.Equal(t, KindAdded, ev.Kind)
	assert.Equal(t, id2, ev.Doc.ID)
	require.NoError(t, sub.Close())

	require.NoError(t, s.Update(ctx, coll, id2, map[string]interface{}{"expires_at": base.Add(time.Hour)}))
	sub, err = s.Listen(ctx, coll, 42, ev.ResumeToken)
	require.NoError(t, err)
	defer sub.Close()
	ev = next(t, sub)
	assert.Equal(t, KindModified, ev.Kind)
	assert.Contains(t, ev.Doc.Fields, "expires_at")
}
