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
	"errors"
	"math/rand"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "https://example.com/a", "https://example.com/a"},
		{"encoded scheme", "https%3A%2F%2Fexample.com%2Fpath%3Fq%3D1", "https://example.com/path?q=1"},
		{"plus kept", "https://example.com/?q=a+b", "https://example.com/?q=a+b"},
		{"utf8", "https://example.com/%E4%BD%A0%E5%A5%BD", "https://example.com/你好"},
		{"lowercase hex", "%2f%2F", "//"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	for _, in := range []string{"%", "%4", "%zz", "abc%G1", "%FF%FE", "%C3"} {
		t.Run(in, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, err := Decode(in)
				assert.True(t, errors.Is(err, ErrInvalidEncoding), "input %q: %v", in, err)
			})
		})
	}
}

// 任意合法 URL 经百分号编码后再解码应还原
func TestDecode_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	alphabet := []rune("abcXYZ019-._~:/?#[]@!$&'()*+,;= %你好é😀")
	for i := 0; i < 500; i++ {
		var b strings.Builder
		b.WriteString("https://example.com/")
		n := r.Intn(24)
		for j := 0; j < n; j++ {
			b.WriteRune(alphabet[r.Intn(len(alphabet))])
		}
		orig := b.String()
		encoded := url.QueryEscape(orig)
		encoded = strings.ReplaceAll(encoded, "+", "%20")
		got, err := Decode(encoded)
		require.NoError(t, err, "encoded %q", encoded)
		assert.Equal(t, orig, got)
	}
}
