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

// Package dedup 变更检测与去重：决定一条观测到的记录是否是需要触发动作的新事件。
//
// 状态只有两个：未初始化、稳定。进程启动后的第一次观测只初始化状态，不触发动作
// （首次抑制），之后仅当记录的 key 与上一次不同才触发。key 优先取存储分配的 ID，
// 没有 ID 时（poll 传输只返回字段值）退回 URL 本身。
//
// 已知限制：没有 ID 时，同一个 URL 被再次分享会被视为重复，这与"重新读到同一条最新记录"
// 无法区分，不做启发式猜测。
//
// State 不加锁，调用方必须串行调用 Observe（单一 owner goroutine）。
package dedup

import "linkwatch/internal/record"

// State Watcher 的全部去重状态，进程启动时为零值，退出时丢弃
type State struct {
	LastSeenKey string
	Initialized bool
}

// ActionRequest 引擎的唯一输出
type ActionRequest struct {
	URL string
	// Record 触发本次动作的记录，供回写使用
	Record record.SharedRecord
}

// Outcome 一次观测的结果
type Outcome string

const (
	OutcomeFirst     Outcome = "first"     // 首次观测，仅初始化
	OutcomeDuplicate Outcome = "duplicate" // key 与上次相同
	OutcomeNew       Outcome = "new"       // 新事件，已产生 ActionRequest
)

// Key 去重使用的身份：有 ID 用 ID，否则用 URL
func Key(rec record.SharedRecord) string {
	if rec.ID != "" {
		return rec.ID
	}
	return rec.URL
}

// Observe 观测一条记录；仅当其为新事件时返回 (req, true)。st 的更新是一次整体赋值。
func Observe(rec record.SharedRecord, st *State) (ActionRequest, bool) {
	req, outcome := Evaluate(rec, st)
	return req, outcome == OutcomeNew
}

// Evaluate 同 Observe，同时返回结果分类（用于日志与指标）
func Evaluate(rec record.SharedRecord, st *State) (ActionRequest, Outcome) {
	key := Key(rec)
	if !st.Initialized {
		*st = State{LastSeenKey: key, Initialized: true}
		return ActionRequest{}, OutcomeFirst
	}
	if key == st.LastSeenKey {
		return ActionRequest{}, OutcomeDuplicate
	}
	*st = State{LastSeenKey: key, Initialized: true}
	return ActionRequest{URL: rec.URL, Record: rec}, OutcomeNew
}
