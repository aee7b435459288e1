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

// Package watcher 驱动 记录源 → 解码 → 去重 → 动作 的循环。
//
// 去重状态只属于运行 Run 的那个 goroutine：poll 模式在循环内串行观测，push 模式由订阅
// 通道的唯一消费者观测。动作经 Dispatcher 在后台执行，结果不会回流到去重判断。
package watcher

import (
	"context"
	"time"

	"linkwatch/internal/action"
	"linkwatch/internal/dedup"
	"linkwatch/internal/docstore"
	"linkwatch/internal/listenstate"
	"linkwatch/internal/record"
	"linkwatch/pkg/config"
	"linkwatch/pkg/errors"
	"linkwatch/pkg/log"
	"linkwatch/pkg/metrics"
)

// Source 记录源：poll 与 push 两种传输
type Source interface {
	docstore.Poller
	docstore.Listener
}

// Dispatcher 派发动作，不等待其完成
type Dispatcher interface {
	Dispatch(ctx context.Context, req dedup.ActionRequest) bool
}

// Options 循环参数；零值字段使用默认值
type Options struct {
	Mode         string
	Collection   string
	TargetID     docstore.TargetID
	Interval     time.Duration
	FetchTimeout time.Duration
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = config.ModePush
	}
	if o.Collection == "" {
		o.Collection = config.DefaultCollection
	}
	if o.Interval <= 0 {
		o.Interval = 5 * time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 10 * time.Second
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = time.Second
	}
	if o.MaxBackoff < o.RetryBackoff {
		o.MaxBackoff = 30 * time.Second
		if o.MaxBackoff < o.RetryBackoff {
			o.MaxBackoff = o.RetryBackoff
		}
	}
	return o
}

// OptionsFromConfig 从配置构造 Options
func OptionsFromConfig(c config.WatcherConfig) Options {
	return Options{
		Mode:         c.Mode,
		Collection:   c.Collection,
		TargetID:     docstore.TargetID(c.TargetID),
		Interval:     config.ParseDurationOr(c.Interval, 0),
		FetchTimeout: config.ParseDurationOr(c.FetchTimeout, 0),
		RetryBackoff: config.ParseDurationOr(c.RetryBackoff, 0),
		MaxBackoff:   config.ParseDurationOr(c.MaxBackoff, 0),
	}.withDefaults()
}

// Watcher 单个集合的监听循环；Run 不可并发调用
type Watcher struct {
	opts       Options
	source     Source
	tokens     listenstate.Store
	dispatcher Dispatcher
	logger     *log.Logger

	state dedup.State
}

// New 创建 Watcher；tokens 为 nil 时续传位置只保存在内存
func New(opts Options, source Source, tokens listenstate.Store, dispatcher Dispatcher, logger *log.Logger) *Watcher {
	if tokens == nil {
		tokens = listenstate.NewMemoryStore()
	}
	if logger == nil {
		logger = log.Discard()
	}
	opts = opts.withDefaults()
	return &Watcher{
		opts:       opts,
		source:     source,
		tokens:     tokens,
		dispatcher: dispatcher,
		logger:     logger.With("mode", opts.Mode, "collection", opts.Collection),
	}
}

// Run 阻塞直到 ctx 结束；循环内的错误只记录日志，返回值仅表示无法开始运行
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watcher 启动", "target_id", w.opts.TargetID)
	defer w.logger.Info("watcher 已停止", "last_seen_key", w.state.LastSeenKey)
	switch w.opts.Mode {
	case config.ModePoll:
		return w.runPoll(ctx)
	case config.ModePush:
		return w.runPush(ctx)
	default:
		return NewConfigError("run", errors.Wrapf(errors.ErrInvalidArg, "unknown mode %q", w.opts.Mode))
	}
}

// State 当前去重状态；仅在 Run 返回后读取
func (w *Watcher) State() dedup.State {
	return w.state
}

// observe 解码并交给去重引擎；新事件派发动作
func (w *Watcher) observe(ctx context.Context, raw record.Raw) {
	rec, err := record.Decode(raw)
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues(w.opts.Mode).Inc()
		w.logger.Warn("跳过无法解析的记录", "error", NewDecodeError("decode", err), "id", raw.ID)
		return
	}
	req, outcome := dedup.Evaluate(rec, &w.state)
	metrics.ObservationsTotal.WithLabelValues(w.opts.Mode, string(outcome)).Inc()
	key := dedup.Key(rec)
	switch outcome {
	case dedup.OutcomeFirst:
		w.logger.Info("首次观测，仅记录不触发", "key", key)
	case dedup.OutcomeDuplicate:
		w.logger.Debug("重复记录", "key", key)
	case dedup.OutcomeNew:
		w.logger.Info("发现新记录", "key", key, "url", rec.URL)
		if w.dispatcher != nil && !w.dispatcher.Dispatch(ctx, req) {
			w.logger.Warn("停止中，动作未派发", "key", key)
		}
	}
}

// ActionErrorHandler 将动作失败以 ACTION_FAILED 记录
func ActionErrorHandler(logger *log.Logger) action.ErrorHandler {
	if logger == nil {
		logger = log.Discard()
	}
	return func(req dedup.ActionRequest, err error) {
		logger.Error("动作执行失败", "key", dedup.Key(req.Record), "error", NewActionError("execute", err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
