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
	"sync"

	"linkwatch/internal/dedup"
	"linkwatch/pkg/metrics"
)

// ErrorHandler 动作失败时回调（由调用方记录日志）
type ErrorHandler func(req dedup.ActionRequest, err error)

// Dispatcher 有界的后台动作池：Dispatch 不等待动作完成，槽位满时阻塞直到有空位或 ctx 结束
type Dispatcher struct {
	runner  Runner
	sem     chan struct{}
	onError ErrorHandler
	wg      sync.WaitGroup
}

// NewDispatcher size<=0 时为 1
func NewDispatcher(runner Runner, size int, onError ErrorHandler) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	if onError == nil {
		onError = func(dedup.ActionRequest, error) {}
	}
	return &Dispatcher{runner: runner, sem: make(chan struct{}, size), onError: onError}
}

// Dispatch 返回 false 表示 ctx 已结束、请求未被执行
func (d *Dispatcher) Dispatch(ctx context.Context, req dedup.ActionRequest) bool {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	d.wg.Add(1)
	metrics.ActionsInFlight.Inc()
	// 动作与 watch 循环解耦：循环退出时已开始的动作仍执行完
	actx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			metrics.ActionsInFlight.Dec()
			<-d.sem
			d.wg.Done()
		}()
		if err := d.runner.Execute(actx, req); err != nil {
			d.onError(req, err)
		}
	}()
	return true
}

// Wait 等待全部已派发的动作结束，ctx 结束时提前返回其错误
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
