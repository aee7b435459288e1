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

// Package action 新记录触发的副作用：解码并打开 URL、回写 expires_at。
package action

import (
	"errors"
	"fmt"
	"net/url"
	"unicode/utf8"
)

// ErrInvalidEncoding URL 含非法的 %XX 转义或解码后不是合法 UTF-8
var ErrInvalidEncoding = errors.New("action: invalid percent encoding")

// Decode 百分号解码：所有 %XX 都被还原，'+' 保持原样
func Decode(s string) (string, error) {
	out, err := url.PathUnescape(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if !utf8.ValidString(out) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidEncoding)
	}
	return out, nil
}
