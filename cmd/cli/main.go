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
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"linkwatch/internal/action"
	"linkwatch/internal/app"
	"linkwatch/internal/docstore"
	"linkwatch/internal/record"
	"linkwatch/pkg/config"
)

const version = "linkwatch cli 0.1.0"

// storeOpener 按配置打开文档存储，测试中替换为内存实现
type storeOpener func(ctx context.Context, cfg *config.Config) (docstore.Store, error)

type rootOptions struct {
	configPath string
	openStore  storeOpener
}

func main() {
	if err := newRootCommand(openStore).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	return app.OpenStore(ctx, cfg)
}

func newRootCommand(open storeOpener) *cobra.Command {
	opts := &rootOptions{openStore: open}
	cmd := &cobra.Command{
		Use:           "linkwatch",
		Short:         "linkwatch 命令行：分享链接、查看最新记录、检查配置",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "配置文件路径（默认 configs/watcher.yaml，不存在时只用环境变量）")

	cmd.AddCommand(
		newVersionCommand(),
		newConfigCommand(opts),
		newShareCommand(opts),
		newLatestCommand(opts),
		newDecodeCommand(),
		newMetricsCommand(),
	)
	return cmd
}

func (o *rootOptions) load() (*config.Config, error) {
	if o.configPath == "" {
		return config.LoadWatcherConfig()
	}
	return config.LoadConfig(o.configPath)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func newConfigCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "显示配置概要并校验",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("配置无效: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "config ok")
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "watcher.mode=%s\n", cfg.Watcher.Mode)
	fmt.Fprintf(w, "watcher.collection=%s\n", cfg.Watcher.Collection)
	fmt.Fprintf(w, "watcher.target_id=%d\n", cfg.Watcher.TargetID)
	fmt.Fprintf(w, "watcher.interval=%s\n", cfg.Watcher.Interval)
	fmt.Fprintf(w, "store.type=%s\n", cfg.Store.Type)
	if cfg.Store.ProjectID != "" {
		fmt.Fprintf(w, "store.project_id=%s\n", cfg.Store.ProjectID)
	}
	fmt.Fprintf(w, "listen_state.type=%s\n", cfg.ListenState.Type)
	fmt.Fprintf(w, "action.open_browser=%t\n", cfg.Action.OpenBrowser)
	fmt.Fprintf(w, "action.write_back=%t\n", cfg.Action.WriteBack)
}

type shareOptions struct {
	*rootOptions
	id     string
	encode bool
}

func newShareCommand(root *rootOptions) *cobra.Command {
	opts := &shareOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "share <url>",
		Short: "向集合插入一条分享记录",
		Long: `向集合插入一条分享记录（url + created_at），watcher 会把它当作新事件打开。

示例:
  linkwatch share https://example.com/a --encode`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShare(cmd, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.id, "id", "", "指定文档 ID（默认自动生成）")
	cmd.Flags().BoolVar(&opts.encode, "encode", false, "写入前对 URL 做百分号编码")
	return cmd
}

// encodeURL 百分号编码；空格编码为 %20 以便与 '+' 区分
func encodeURL(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func runShare(cmd *cobra.Command, opts *shareOptions, rawURL string) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	u := rawURL
	if opts.encode {
		u = encodeURL(u)
	}
	fields := record.Encode(record.SharedRecord{URL: u, CreatedAt: time.Now().UTC()})
	if opts.id != "" {
		fields[record.FieldID] = opts.id
	}
	ctx := cmd.Context()
	store, err := opts.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	id, err := store.Insert(ctx, cfg.Watcher.Collection, fields)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func newLatestCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "输出集合中 created_at 最新的记录（JSON）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := opts.openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			d, err := store.Latest(ctx, cfg.Watcher.Collection)
			if err != nil {
				return err
			}
			if d == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "null")
				return nil
			}
			rec, err := record.Decode(d.Raw())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), record.Encode(rec))
		},
	}
}

func printJSON(w io.Writer, fields map[string]interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(fields)
}

func newDecodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <url>",
		Short: "百分号解码 URL（与 watcher 打开前的处理相同）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := action.Decode(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newMetricsCommand() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "读取运行中 watcher 的指标",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := fetchMetrics(cmd.Context(), baseURL)
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "addr", metricsBaseURL(), "watcher metrics 地址")
	return cmd
}
