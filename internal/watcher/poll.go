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
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"

	"linkwatch/pkg/metrics"
	"linkwatch/pkg/tracing"
)

func (w *Watcher) runPoll(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for {
		w.pollOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// pollOnce 一次拉取；停止信号不中断进行中的请求，由 FetchTimeout 兜底
func (w *Watcher) pollOnce(ctx context.Context) {
	ctx, span := tracing.StartCycleSpan(ctx, w.opts.Mode, w.opts.Collection)
	defer span.End()

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.FetchTimeout)
	doc, err := w.source.Latest(fetchCtx, w.opts.Collection)
	cancel()
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues(w.opts.Mode).Inc()
		span.SetStatus(codes.Error, err.Error())
		w.logger.Warn("拉取最新记录失败", "error", NewFetchError("latest", err))
		return
	}
	if doc == nil {
		w.logger.Debug("集合为空")
		return
	}
	w.observe(ctx, doc.Raw())
}
