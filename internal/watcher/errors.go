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

package watcher

import (
	"errors"
	"fmt"
)

// Code 错误分类
type Code string

const (
	// CodeFetchFailed 拉取或订阅失败：记录日志，按间隔/退避重试
	CodeFetchFailed Code = "FETCH_FAILED"
	// CodeDecodeFailed 记录格式错误：跳过该记录
	CodeDecodeFailed Code = "DECODE_FAILED"
	// CodeActionFailed 打开浏览器或回写失败：不影响去重状态
	CodeActionFailed Code = "ACTION_FAILED"
	// CodeConfigInvalid 启动配置错误：进程以非零状态退出
	CodeConfigInvalid Code = "CONFIG_INVALID"
)

// Error 带分类的错误
type Error struct {
	Code Code
	Op   string
	Err  error
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Op)
}

// Unwrap 实现 errors.Unwrap 接口
func (e *Error) Unwrap() error {
	return e.Err
}

func NewFetchError(op string, err error) *Error {
	return &Error{Code: CodeFetchFailed, Op: op, Err: err}
}

func NewDecodeError(op string, err error) *Error {
	return &Error{Code: CodeDecodeFailed, Op: op, Err: err}
}

func NewActionError(op string, err error) *Error {
	return &Error{Code: CodeActionFailed, Op: op, Err: err}
}

func NewConfigError(op string, err error) *Error {
	return &Error{Code: CodeConfigInvalid, Op: op, Err: err}
}

// CodeOf 取错误链上第一个 *Error 的分类
func CodeOf(err error) (Code, bool) {
	var we *Error
	if errors.As(err, &we) {
		return we.Code, true
	}
	return "", false
}

// IsConfigError 是否为启动配置错误
func IsConfigError(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == CodeConfigInvalid
}
