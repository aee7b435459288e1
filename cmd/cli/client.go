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
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

func metricsBaseURL() string {
	if u := os.Getenv("LINKWATCH_METRICS_URL"); u != "" {
		return u
	}
	return "http://localhost:9090"
}

func newClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second)
}

// fetchMetrics 读取运行中 watcher 的 /metrics，只保留 linkwatch_ 开头的样本
func fetchMetrics(ctx context.Context, baseURL string) ([]string, error) {
	resp, err := newClient(baseURL).R().
		SetContext(ctx).
		Get("/metrics")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /metrics: %s", resp.Status())
	}
	var out []string
	sc := bufio.NewScanner(strings.NewReader(resp.String()))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "linkwatch_") {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}
