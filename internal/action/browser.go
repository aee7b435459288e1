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
	"io"

	"github.com/pkg/browser"
	"golang.org/x/time/rate"
)

func init() {
	// 浏览器进程的输出不混入日志
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
}

// Launcher 在系统默认浏览器中打开 URL
type Launcher interface {
	Open(url string) error
}

// LauncherFunc 函数适配
type LauncherFunc func(url string) error

func (f LauncherFunc) Open(url string) error { return f(url) }

// SystemLauncher 使用 github.com/pkg/browser
var SystemLauncher Launcher = LauncherFunc(browser.OpenURL)

// BrowserOpener 解码 URL 后交给 Launcher，打开频率受 limiter 约束
type BrowserOpener struct {
	launcher Launcher
	limiter  *rate.Limiter
}

// NewBrowserOpener perSecond<=0 时不限速
func NewBrowserOpener(launcher Launcher, perSecond float64, burst int) *BrowserOpener {
	if launcher == nil {
		launcher = SystemLauncher
	}
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &BrowserOpener{launcher: launcher, limiter: rate.NewLimiter(limit, burst)}
}

// Open 返回实际打开的（已解码）URL
func (o *BrowserOpener) Open(ctx context.Context, rawURL string) (string, error) {
	decoded, err := Decode(rawURL)
	if err != nil {
		return "", err
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return "", err
	}
	if err := o.launcher.Open(decoded); err != nil {
		return decoded, err
	}
	return decoded, nil
}
