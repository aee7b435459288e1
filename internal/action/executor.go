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
	"errors"
	"time"

	"go.opentelemetry.io/otel/codes"

	"linkwatch/internal/dedup"
	"linkwatch/pkg/log"
	"linkwatch/pkg/metrics"
	"linkwatch/pkg/tracing"
)

const (
	actionOpen      = "open_browser"
	actionWriteBack = "write_back"
)

// Runner 执行一次动作
type Runner interface {
	Execute(ctx context.Context, req dedup.ActionRequest) error
}

// Executor 依次执行打开浏览器与回写；两者互不影响，错误合并返回
type Executor struct {
	opener    *BrowserOpener
	writeBack *WriteBack
	logger    *log.Logger
}

// NewExecutor opener 或 writeBack 为 nil 时跳过对应动作
func NewExecutor(opener *BrowserOpener, writeBack *WriteBack, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Discard()
	}
	return &Executor{opener: opener, writeBack: writeBack, logger: logger}
}

func (e *Executor) Execute(ctx context.Context, req dedup.ActionRequest) error {
	key := dedup.Key(req.Record)
	var errs []error

	if e.opener != nil {
		err := observe(ctx, actionOpen, key, func(ctx context.Context) error {
			opened, err := e.opener.Open(ctx, req.URL)
			if err == nil {
				e.logger.Info("已打开 URL", "key", key, "url", opened)
			}
			return err
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	if e.writeBack != nil {
		var applied bool
		err := observe(ctx, actionWriteBack, key, func(ctx context.Context) error {
			var err error
			applied, err = e.writeBack.Apply(ctx, req.Record)
			return err
		})
		switch {
		case err != nil:
			metrics.WriteBacksTotal.WithLabelValues("failed").Inc()
			errs = append(errs, err)
		case applied:
			metrics.WriteBacksTotal.WithLabelValues("ok").Inc()
			e.logger.Debug("已回写 expires_at", "key", key)
		default:
			metrics.WriteBacksTotal.WithLabelValues("skipped").Inc()
		}
	}
	return errors.Join(errs...)
}

func observe(ctx context.Context, action, key string, fn func(context.Context) error) error {
	ctx, span := tracing.StartActionSpan(ctx, action, key)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	metrics.ActionDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.ActionsTotal.WithLabelValues(action, status).Inc()
	return err
}
