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

// Package record 定义共享 URL 记录及其从原始文档字段的解码
package record

import "time"

// 文档字段名
const (
	FieldURL       = "url"
	FieldCreatedAt = "created_at"
	FieldExpiresAt = "expires_at"
	// 早期客户端写入的创建时间字段
	FieldTimestamp = "timestamp"
	// 部分客户端把文档 ID 也写入字段
	FieldID = "_id"
)

// Raw 存储层返回的原始记录；ID 为空表示传输层不提供身份（poll 仅返回字段值）
type Raw struct {
	ID     string
	Fields map[string]interface{}
}

// SharedRecord 解码后的共享 URL 记录
type SharedRecord struct {
	ID        string
	URL       string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// HasIdentity 是否带有存储分配的 ID
func (r SharedRecord) HasIdentity() bool {
	return r.ID != ""
}
