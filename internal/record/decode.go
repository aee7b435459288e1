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

package record

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// ErrDecode 所有解码失败都包装此错误
var ErrDecode = errors.New("record: decode failed")

// DecodeError 记录哪个字段导致解码失败
type DecodeError struct {
	Field  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: field %q %s: %v", ErrDecode, e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: field %q %s", ErrDecode, e.Field, e.Reason)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDecode, e.Err}
	}
	return []error{ErrDecode}
}

// Decode 将原始字段映射为 SharedRecord；缺少 url 或 created_at（或 timestamp）时返回 *DecodeError，不会 panic
func Decode(raw Raw) (SharedRecord, error) {
	var rec SharedRecord
	if raw.Fields == nil {
		return rec, &DecodeError{Field: FieldURL, Reason: "missing"}
	}

	u, ok := raw.Fields[FieldURL]
	if !ok || u == nil {
		return rec, &DecodeError{Field: FieldURL, Reason: "missing"}
	}
	s, ok := u.(string)
	if !ok {
		return rec, &DecodeError{Field: FieldURL, Reason: fmt.Sprintf("has type %T, want string", u)}
	}
	if strings.TrimSpace(s) == "" {
		return rec, &DecodeError{Field: FieldURL, Reason: "is empty"}
	}
	rec.URL = s

	field := FieldCreatedAt
	v, ok := raw.Fields[FieldCreatedAt]
	if !ok || v == nil {
		field = FieldTimestamp
		v, ok = raw.Fields[FieldTimestamp]
	}
	if !ok || v == nil {
		return rec, &DecodeError{Field: FieldCreatedAt, Reason: "missing"}
	}
	created, err := toTime(v)
	if err != nil {
		return rec, &DecodeError{Field: field, Reason: "is not a timestamp", Err: err}
	}
	rec.CreatedAt = created

	if v, ok := raw.Fields[FieldExpiresAt]; ok && v != nil {
		exp, err := toTime(v)
		if err != nil {
			return rec, &DecodeError{Field: FieldExpiresAt, Reason: "is not a timestamp", Err: err}
		}
		rec.ExpiresAt = &exp
	}

	rec.ID = raw.ID
	if rec.ID == "" {
		if id, ok := raw.Fields[FieldID].(string); ok {
			rec.ID = id
		}
	}
	return rec, nil
}

func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, errors.New("zero time")
		}
		return t.UTC(), nil
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, errors.New("zero time")
		}
		return t.UTC(), nil
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts.UTC(), nil
		}
	case float64:
		// JSON 数字：unix 秒；NaN、Inf 与超出 int64 的值转换结果未定义
		if math.IsNaN(t) || math.IsInf(t, 0) || math.Abs(t) >= math.MaxInt64 {
			return time.Time{}, fmt.Errorf("unix seconds out of range: %v", t)
		}
		sec := int64(t)
		return time.Unix(sec, int64((t-float64(sec))*1e9)).UTC(), nil
	}
	ts, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

// Encode 将记录转为可写入存储的字段
func Encode(rec SharedRecord) map[string]interface{} {
	fields := map[string]interface{}{
		FieldURL:       rec.URL,
		FieldCreatedAt: rec.CreatedAt.UTC(),
	}
	if rec.ExpiresAt != nil {
		fields[FieldExpiresAt] = rec.ExpiresAt.UTC()
	}
	return fields
}
