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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	appwatcher "linkwatch/internal/app/watcher"
	"linkwatch/internal/watcher"
	"linkwatch/pkg/config"
)

const (
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认 configs/watcher.yaml）")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadConfig(*configPath)
	} else {
		cfg, err = config.LoadWatcherConfig()
	}
	if err != nil {
		log.Printf("加载配置失败: %v", err)
		os.Exit(exitConfig)
	}

	app, err := appwatcher.NewApp(cfg)
	if err != nil {
		log.Printf("初始化应用失败: %v", err)
		if watcher.IsConfigError(err) {
			os.Exit(exitConfig)
		}
		os.Exit(exitRuntime)
	}

	if err := app.Start(); err != nil {
		log.Printf("启动应用失败: %v", err)
		os.Exit(exitRuntime)
	}

	// 等待中断信号，或 watcher 因不可恢复错误退出
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-app.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		log.Printf("关闭应用失败: %v", err)
	}

	if err := app.Err(); err != nil {
		log.Printf("watcher 退出: %v", err)
		if watcher.IsConfigError(err) {
			os.Exit(exitConfig)
		}
		os.Exit(exitRuntime)
	}
	fmt.Println("应用已关闭")
}
