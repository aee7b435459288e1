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

	"github.com/cloudwego/hertz/pkg/app/server"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"linkwatch/internal/action"
	"linkwatch/internal/app"
	"linkwatch/internal/docstore"
	"linkwatch/internal/listenstate"
	"linkwatch/internal/watcher"
	"linkwatch/pkg/config"
	"linkwatch/pkg/errors"
	"linkwatch/pkg/log"
	"linkwatch/pkg/tracing"
)

// App Watcher 应用：文档存储 + 续传位置 + 动作执行 + 监听循环
type App struct {
	config     *config.Config
	logger     *log.Logger
	store      docstore.Store
	tokens     listenstate.Store
	dispatcher *action.Dispatcher
	watcher    *watcher.Watcher
	tracer     *sdktrace.TracerProvider
	status     *server.Hertz

	cancel   context.CancelFunc
	finished chan struct{}
	runErr   error
}

// Option NewApp 可选项
type Option func(*options)

type options struct {
	launcher action.Launcher
	store    docstore.Store
}

// WithLauncher 替换打开浏览器的方式（测试或无桌面环境）
func WithLauncher(l action.Launcher) Option {
	return func(o *options) { o.launcher = l }
}

// WithStore 使用已创建的文档存储，忽略 store 配置
func WithStore(s docstore.Store) Option {
	return func(o *options) { o.store = s }
}

// NewApp 创建 Watcher 应用；配置错误返回 CONFIG_INVALID
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, watcher.NewConfigError("load", errors.Wrap(errors.ErrInvalidArg, "配置为空"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, watcher.NewConfigError("validate", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// 初始化日志
	logger, err := log.NewLogger(&log.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return nil, watcher.NewConfigError("logger", err)
	}

	ctx := context.Background()
	wopts := watcher.OptionsFromConfig(cfg.Watcher)

	// 初始化文档存储
	store := o.store
	if store == nil {
		store, err = app.OpenStore(ctx, cfg)
		if err != nil {
			_ = logger.Close()
			return nil, err
		}
	}

	tokens, err := listenstate.New(ctx, cfg.ListenState)
	if err != nil {
		_ = store.Close()
		_ = logger.Close()
		if errors.Is(err, errors.ErrInvalidArg) {
			return nil, watcher.NewConfigError("listen_state", err)
		}
		return nil, fmt.Errorf("初始化续传位置存储失败: %w", err)
	}

	// 初始化动作执行
	var opener *action.BrowserOpener
	if cfg.Action.OpenBrowser {
		opener = action.NewBrowserOpener(o.launcher, cfg.Action.RatePerSecond, cfg.Action.Burst)
	}
	var writeBack *action.WriteBack
	if cfg.Action.WriteBack {
		writeBack = action.NewWriteBack(store, wopts.Collection,
			config.ParseDurationOr(cfg.Action.ExpireAfter, action.DefaultExpireAfter))
	}
	exec := action.NewExecutor(opener, writeBack, logger.With("component", "action"))
	dispatcher := action.NewDispatcher(exec, cfg.Action.MaxConcurrency, watcher.ActionErrorHandler(logger))

	a := &App{
		config:     cfg,
		logger:     logger,
		store:      store,
		tokens:     tokens,
		dispatcher: dispatcher,
		watcher:    watcher.New(wopts, store, tokens, dispatcher, logger),
		finished:   make(chan struct{}),
	}

	if cfg.Monitoring.Tracing.Enable {
		tp, err := tracing.InitTracer(ctx, tracing.OTelConfig{
			ServiceName:    cfg.Monitoring.Tracing.ServiceName,
			SampleRatio:    cfg.Monitoring.Tracing.SampleRatio,
			ExportEndpoint: cfg.Monitoring.Tracing.ExportEndpoint,
			Insecure:       cfg.Monitoring.Tracing.Insecure,
		})
		if err != nil {
			logger.Warn("初始化链路追踪失败，继续运行", "error", err)
		} else {
			a.tracer = tp
		}
	}
	if cfg.Monitoring.Prometheus.Enable {
		setHertzLogger(logger)
		a.status = newStatusServer(fmt.Sprintf(":%d", cfg.Monitoring.Prometheus.Port), a.health)
	}
	return a, nil
}

// Start 启动监听循环（以及 /metrics）
func (a *App) Start() error {
	a.logger.Info("启动 watcher 应用",
		"mode", a.config.Watcher.Mode,
		"store", a.config.Store.Type,
		"collection", a.config.Watcher.Collection)

	if a.status != nil {
		go func() {
			if err := a.status.Run(); err != nil {
				a.logger.Error("status 服务异常退出", "error", err)
			}
		}()
		a.logger.Info("metrics 已启用", "port", a.config.Monitoring.Prometheus.Port)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go func() {
		a.runErr = a.watcher.Run(ctx)
		close(a.finished)
	}()
	return nil
}

// Done 监听循环结束时关闭
func (a *App) Done() <-chan struct{} {
	return a.finished
}

// Err 监听循环的退出原因；正常停止为 nil，仅在 Done 关闭后有意义
func (a *App) Err() error {
	select {
	case <-a.finished:
		return a.runErr
	default:
		return nil
	}
}

// health 监听循环已退出时返回原因
func (a *App) health() error {
	select {
	case <-a.finished:
		if a.runErr != nil {
			return a.runErr
		}
		return errors.Wrap(errors.ErrClosed, "watcher 已停止")
	default:
		return nil
	}
}

// Shutdown 停止循环并等待进行中的动作，然后释放资源
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("关闭 watcher 应用")
	if a.cancel != nil {
		a.cancel()
		select {
		case <-a.finished:
			if a.runErr != nil {
				a.logger.Error("监听循环退出", "error", a.runErr)
			}
		case <-ctx.Done():
			a.logger.Warn("等待监听循环超时")
		}
	}
	if err := a.dispatcher.Wait(ctx); err != nil {
		a.logger.Warn("等待动作完成超时", "error", err)
	}
	if a.status != nil {
		if err := a.status.Shutdown(ctx); err != nil {
			a.logger.Error("关闭 status 服务失败", "error", err)
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Error("关闭 tracer 失败", "error", err)
		}
	}
	if err := a.tokens.Close(); err != nil {
		a.logger.Error("关闭续传位置存储失败", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("关闭文档存储失败", "error", err)
	}
	a.logger.Info("watcher 应用关闭成功")
	return a.logger.Close()
}
