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

package dedup

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkwatch/internal/record"
)

var t1 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(id, url string) record.SharedRecord {
	return record.SharedRecord{ID: id, URL: url, CreatedAt: t1}
}

func TestObserve_PushScenario(t *testing.T) {
	var st State

	_, ok := Observe(rec("a", "http://x"), &st)
	assert.False(t, ok, "first observation must be suppressed")
	assert.Equal(t, State{LastSeenKey: "a", Initialized: true}, st)

	_, ok = Observe(rec("a", "http://x"), &st)
	assert.False(t, ok, "same record again is a duplicate")

	req, ok := Observe(rec("b", "http://y"), &st)
	require.True(t, ok)
	assert.Equal(t, "http://y", req.URL)
	assert.Equal(t, "b", req.Record.ID)
	assert.Equal(t, "b", st.LastSeenKey)
}

func TestObserve_PollScenarioSameURLIsDuplicate(t *testing.T) {
	var st State
	first := record.SharedRecord{URL: "http://x", CreatedAt: t1}
	later := record.SharedRecord{URL: "http://x", CreatedAt: t1.Add(time.Minute)}

	_, ok := Observe(first, &st)
	assert.False(t, ok)
	// 没有 ID 时相同 URL 视为重复，即便时间更晚
	_, ok = Observe(later, &st)
	assert.False(t, ok)
	assert.Equal(t, "http://x", st.LastSeenKey)
}

func TestObserve_WriteBackUpdateIsDuplicate(t *testing.T) {
	var st State
	_, _ = Observe(rec("a", "http://x"), &st)
	req, ok := Observe(rec("b", "http://y"), &st)
	require.True(t, ok)

	exp := req.Record.CreatedAt.Add(72 * time.Hour)
	modified := req.Record
	modified.ExpiresAt = &exp
	_, ok = Observe(modified, &st)
	assert.False(t, ok, "update that only adds expires_at must not re-trigger")
}

func TestObserve_TimestampsIgnored(t *testing.T) {
	var st State
	_, _ = Observe(rec("a", "http://x"), &st)
	older := record.SharedRecord{ID: "b", URL: "http://y", CreatedAt: t1.Add(-24 * time.Hour)}
	_, ok := Observe(older, &st)
	assert.True(t, ok, "clock skew must not hide a new key")
}

func TestObserve_DistinctKeysEmitAllButFirst(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		n := 1 + r.Intn(40)
		var st State
		emitted := 0
		for i := 0; i < n; i++ {
			id := ""
			if r.Intn(2) == 0 {
				id = fmt.Sprintf("id-%d-%d", round, i)
			}
			url := fmt.Sprintf("http://example.com/%d/%d", round, i)
			if _, ok := Observe(rec(id, url), &st); ok {
				emitted++
			}
		}
		assert.Equal(t, n-1, emitted, "round %d with %d records", round, n)
	}
}

func TestObserve_RepeatedKeyIsIdempotent(t *testing.T) {
	var st State
	_, _ = Observe(rec("a", "http://x"), &st)
	_, ok := Observe(rec("b", "http://y"), &st)
	require.True(t, ok)
	for i := 0; i < 100; i++ {
		_, ok := Observe(rec("b", "http://y"), &st)
		require.False(t, ok, "repeat %d", i)
	}
	assert.Equal(t, State{LastSeenKey: "b", Initialized: true}, st)
}

func TestEvaluate_Outcomes(t *testing.T) {
	var st State
	_, o := Evaluate(rec("a", "http://x"), &st)
	assert.Equal(t, OutcomeFirst, o)
	_, o = Evaluate(rec("a", "http://x"), &st)
	assert.Equal(t, OutcomeDuplicate, o)
	req, o := Evaluate(rec("", "http://z"), &st)
	assert.Equal(t, OutcomeNew, o)
	assert.Equal(t, "http://z", req.URL)
	assert.Equal(t, "http://z", st.LastSeenKey)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "a", Key(rec("a", "http://x")))
	assert.Equal(t, "http://x", Key(rec("", "http://x")))
}
