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
	"fmt"
	"time"

	"linkwatch/internal/docstore"
	"linkwatch/internal/record"
	"linkwatch/pkg/errors"
	"linkwatch/pkg/metrics"
	"linkwatch/pkg/tracing"
)

func (w *Watcher) resumeKey() string {
	return fmt.Sprintf("%s/%d", w.opts.Collection, w.opts.TargetID)
}

// runPush 订阅断开后按指数退避重新订阅，从最后保存的续传位置继续
func (w *Watcher) runPush(ctx context.Context) error {
	key := w.resumeKey()
	backoff := w.opts.RetryBackoff
	for {
		resume, err := w.tokens.Load(ctx, key)
		if err != nil {
			w.logger.Warn("读取续传位置失败，从最新快照开始", "error", err)
			resume = ""
		}
		sub, err := w.source.Listen(ctx, w.opts.Collection, w.opts.TargetID, docstore.ResumeToken(resume))
		if errors.Is(err, docstore.ErrInvalidResumeToken) {
			w.logger.Warn("续传位置无效，已清除", "resume_token", resume)
			if err := w.tokens.Save(ctx, key, ""); err != nil {
				w.logger.Warn("清除续传位置失败", "error", err, "retry_in", backoff.String())
				if !sleepCtx(ctx, backoff) {
					return nil
				}
				backoff = nextBackoff(backoff, w.opts.MaxBackoff)
			}
			continue
		}
		if errors.Is(err, docstore.ErrListenUnsupported) {
			return NewConfigError("listen", err)
		}

		var delivered int
		if err == nil {
			w.logger.Info("已订阅", "resume_token", resume)
			delivered = w.consume(ctx, sub, key)
			_ = sub.Close()
			err = sub.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.Wrap(errors.ErrClosed, "subscription closed")
		}
		metrics.FetchErrorsTotal.WithLabelValues(w.opts.Mode).Inc()
		if delivered > 0 {
			backoff = w.opts.RetryBackoff
		}
		w.logger.Warn("订阅中断，稍后重试", "error", NewFetchError("listen", err), "retry_in", backoff.String())
		if !sleepCtx(ctx, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff, w.opts.MaxBackoff)
	}
}

func nextBackoff(cur, limit time.Duration) time.Duration {
	next := cur * 2
	if next > limit {
		return limit
	}
	return next
}

// consume 订阅事件的唯一消费者；返回处理的事件数
func (w *Watcher) consume(ctx context.Context, sub docstore.Subscription, key string) int {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n
		case ev, ok := <-sub.Events():
			if !ok {
				return n
			}
			w.handleEvent(ctx, ev)
			n++
			if ev.ResumeToken != "" {
				if err := w.tokens.Save(ctx, key, string(ev.ResumeToken)); err != nil {
					w.logger.Warn("保存续传位置失败", "error", err)
				}
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev docstore.ChangeEvent) {
	ctx, span := tracing.StartCycleSpan(ctx, w.opts.Mode, w.opts.Collection)
	defer span.End()

	if ev.Target != w.opts.TargetID {
		w.logger.Debug("忽略其他订阅目标的事件", "target_id", ev.Target)
		return
	}
	if (ev.Kind != docstore.KindAdded && ev.Kind != docstore.KindModified) || ev.Doc == nil {
		metrics.ChangeEventsTotal.WithLabelValues(string(ev.Kind), "ignored").Inc()
		w.logger.Info("收到其他事件", "kind", ev.Kind)
		return
	}
	// 启动后的第一个文档（通常是快照）必须进入 Observe 作为首次观察，即使它已被回写
	if w.state.Initialized && selfAuthored(ev.Doc) {
		metrics.ChangeEventsTotal.WithLabelValues(string(ev.Kind), "self_authored").Inc()
		w.logger.Debug("跳过已回写 expires_at 的文档", "id", ev.Doc.ID)
		return
	}
	metrics.ChangeEventsTotal.WithLabelValues(string(ev.Kind), "observed").Inc()
	w.observe(ctx, ev.Doc.Raw())
}

// selfAuthored 带 expires_at 的文档已被处理过（回写产生）
func selfAuthored(d *docstore.Document) bool {
	switch v := d.Fields[record.FieldExpiresAt].(type) {
	case nil:
		return false
	case string:
		return v != ""
	case *time.Time:
		return v != nil
	default:
		return true
	}
}
