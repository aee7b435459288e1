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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodes(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("cycle: %w", NewFetchError("latest", cause))

	code, ok := CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, CodeFetchFailed, code)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "cycle: [FETCH_FAILED] latest: connection refused", err.Error())

	assert.True(t, IsConfigError(NewConfigError("validate", cause)))
	assert.False(t, IsConfigError(NewActionError("execute", cause)))
	assert.False(t, IsConfigError(cause))

	_, ok = CodeOf(cause)
	assert.False(t, ok)
	assert.Equal(t, "[DECODE_FAILED] decode", (&Error{Code: CodeDecodeFailed, Op: "decode"}).Error())
}
