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
	"bytes"
	"context"
	"log/slog"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	hertzslog "github.com/hertz-contrib/logger/slog"

	"linkwatch/pkg/log"
	"linkwatch/pkg/metrics"
)

// newStatusServer /metrics 与 /healthz；health 返回非 nil 时健康检查为 503
func newStatusServer(addr string, health func() error) *server.Hertz {
	h := server.Default(server.WithHostPorts(addr))
	registerStatusRoutes(h, health)
	return h
}

func registerStatusRoutes(h *server.Hertz, health func() error) {
	h.GET("/metrics", func(ctx context.Context, c *app.RequestContext) {
		var buf bytes.Buffer
		if err := metrics.WritePrometheus(&buf); err != nil {
			c.String(consts.StatusInternalServerError, err.Error())
			return
		}
		c.Data(consts.StatusOK, metrics.ContentType, buf.Bytes())
	})
	h.GET("/healthz", func(ctx context.Context, c *app.RequestContext) {
		if err := health(); err != nil {
			c.JSON(consts.StatusServiceUnavailable, map[string]string{
				"status": "stopped",
				"error":  err.Error(),
			})
			return
		}
		c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
	})
}

// setHertzLogger hertz 日志与应用日志使用同一输出与级别
func setHertzLogger(logger *log.Logger) {
	levelVar := &slog.LevelVar{}
	levelVar.Set(logger.Level())
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(logger.Writer()),
		hertzslog.WithLevel(levelVar),
	))
}
