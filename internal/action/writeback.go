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
	"time"

	"linkwatch/internal/docstore"
	"linkwatch/internal/record"
	"linkwatch/pkg/errors"
)

// DefaultExpireAfter expires_at 相对 created_at 的偏移
const DefaultExpireAfter = 72 * time.Hour

// WriteBack 给已处理的记录写入 expires_at，push 端据此过滤自己产生的更新
type WriteBack struct {
	updater     docstore.Updater
	collection  string
	expireAfter time.Duration
}

// NewWriteBack expireAfter<=0 时使用 DefaultExpireAfter
func NewWriteBack(updater docstore.Updater, collection string, expireAfter time.Duration) *WriteBack {
	if expireAfter <= 0 {
		expireAfter = DefaultExpireAfter
	}
	return &WriteBack{updater: updater, collection: collection, expireAfter: expireAfter}
}

// ExpiresAt 计算回写值
func (w *WriteBack) ExpiresAt(rec record.SharedRecord) time.Time {
	return rec.CreatedAt.Add(w.expireAfter).UTC()
}

// Apply 回写；记录没有 ID（poll 传输）时跳过并返回 false
func (w *WriteBack) Apply(ctx context.Context, rec record.SharedRecord) (bool, error) {
	if !rec.HasIdentity() {
		return false, nil
	}
	err := w.updater.Update(ctx, w.collection, rec.ID, map[string]interface{}{
		record.FieldExpiresAt: w.ExpiresAt(rec),
	})
	if err != nil {
		return false, errors.Wrapf(err, "write back %s/%s", w.collection, rec.ID)
	}
	return true, nil
}
