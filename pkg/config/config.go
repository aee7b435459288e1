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

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"linkwatch/pkg/errors"
)

const (
	ModePush = "push"
	ModePoll = "poll"

	DefaultCollection = "shared_urls"
	DefaultTargetID   = 42
	DefaultConfigPath = "configs/watcher.yaml"
)

// Config 应用配置结构体
type Config struct {
	Watcher     WatcherConfig     `mapstructure:"watcher"`
	Store       StoreConfig       `mapstructure:"store"`
	ListenState ListenStateConfig `mapstructure:"listen_state"`
	Action      ActionConfig      `mapstructure:"action"`
	Secrets     SecretsConfig     `mapstructure:"secrets"`
	Log         LogConfig         `mapstructure:"log"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// WatcherConfig 监听循环配置
type WatcherConfig struct {
	Mode         string `mapstructure:"mode"`          // push | poll
	Collection   string `mapstructure:"collection"`    // 默认 shared_urls
	TargetID     uint32 `mapstructure:"target_id"`     // push 订阅目标 ID，默认 42
	Interval     string `mapstructure:"interval"`      // poll 间隔，如 "5s"
	FetchTimeout string `mapstructure:"fetch_timeout"` // 单次拉取超时，如 "10s"
	RetryBackoff string `mapstructure:"retry_backoff"` // push 订阅断开后首次重试等待
	MaxBackoff   string `mapstructure:"max_backoff"`   // 重试等待上限
}

// StoreConfig 文档存储配置
type StoreConfig struct {
	Type       string `mapstructure:"type"`       // memory | rest | postgres | redis
	ProjectID  string `mapstructure:"project_id"` // rest 必填，可由 PROJECT_ID 环境变量提供
	Database   string `mapstructure:"database"`   // rest 数据库名，默认 (default)
	BaseURL    string `mapstructure:"base_url"`   // rest 服务地址
	Credential string `mapstructure:"credential"` // 凭据引用，交由 secrets 解析，如 file:/path/token
	DSN        string `mapstructure:"dsn"`        // postgres 连接串
	Addr       string `mapstructure:"addr"`       // redis 地址
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
}

// ListenStateConfig push 订阅续传位置的存储
type ListenStateConfig struct {
	Type      string `mapstructure:"type"` // memory | redis | sqlite
	Path      string `mapstructure:"path"` // sqlite 文件路径
	Addr      string `mapstructure:"addr"`
	DB        int    `mapstructure:"db"`
	Password  string `mapstructure:"password"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ActionConfig 新记录触发的动作
type ActionConfig struct {
	OpenBrowser    bool    `mapstructure:"open_browser"`
	WriteBack      bool    `mapstructure:"write_back"`   // 回写 expires_at 以便 push 端过滤
	ExpireAfter    string  `mapstructure:"expire_after"` // expires_at = created_at + ExpireAfter，默认 72h
	MaxConcurrency int     `mapstructure:"max_concurrency"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"` // 打开浏览器的速率上限，<=0 不限
	Burst          int     `mapstructure:"burst"`
}

// SecretsConfig 凭据解析
type SecretsConfig struct {
	Provider string      `mapstructure:"provider"` // memory | env | file | vault
	Vault    VaultConfig `mapstructure:"vault"`
}

// VaultConfig Vault 连接配置
type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool    `mapstructure:"enable"`
	ServiceName    string  `mapstructure:"service_name"`
	ExportEndpoint string  `mapstructure:"export_endpoint"`
	Insecure       bool    `mapstructure:"insecure"`
	SampleRatio    float64 `mapstructure:"sample_ratio"` // 根 span 采样比例，0 表示全采样
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("watcher.mode", ModePush)
	v.SetDefault("watcher.collection", DefaultCollection)
	v.SetDefault("watcher.target_id", DefaultTargetID)
	v.SetDefault("watcher.interval", "5s")
	v.SetDefault("watcher.fetch_timeout", "10s")
	v.SetDefault("watcher.retry_backoff", "1s")
	v.SetDefault("watcher.max_backoff", "30s")
	v.SetDefault("store.type", "rest")
	v.SetDefault("store.project_id", "")
	v.SetDefault("store.database", "(default)")
	v.SetDefault("store.base_url", "https://firestore.googleapis.com/v1")
	v.SetDefault("store.credential", "")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.addr", "localhost:6379")
	v.SetDefault("store.db", 0)
	v.SetDefault("store.password", "")
	v.SetDefault("listen_state.type", "memory")
	v.SetDefault("listen_state.path", "")
	v.SetDefault("listen_state.addr", "localhost:6379")
	v.SetDefault("listen_state.db", 0)
	v.SetDefault("listen_state.password", "")
	v.SetDefault("listen_state.key_prefix", "linkwatch:listen")
	v.SetDefault("action.open_browser", true)
	v.SetDefault("action.write_back", false)
	v.SetDefault("action.expire_after", "72h")
	v.SetDefault("action.max_concurrency", 2)
	v.SetDefault("action.rate_per_second", 1.0)
	v.SetDefault("action.burst", 3)
	v.SetDefault("secrets.provider", "env")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.prometheus.enable", false)
	v.SetDefault("monitoring.prometheus.port", 9090)
	v.SetDefault("monitoring.tracing.enable", false)
	v.SetDefault("monitoring.tracing.service_name", "linkwatch")
}

// LoadConfig 加载配置文件；configPath 为空时仅使用默认值与环境变量。会先尝试加载当前目录的 .env
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// 与早期版本兼容：PROJECT_ID 直接作为项目 ID
	_ = v.BindEnv("store.project_id", "STORE_PROJECT_ID", "PROJECT_ID")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// LoadWatcherConfig 加载 Watcher 配置（configs/watcher.yaml）；文件不存在时退回默认值 + 环境变量
func LoadWatcherConfig() (*Config, error) {
	if _, err := os.Stat(DefaultConfigPath); err != nil {
		return LoadConfig("")
	}
	return LoadConfig(DefaultConfigPath)
}

// replaceEnvVars 替换配置中 ${VAR} 形式的值
func replaceEnvVars(config *Config) {
	for _, p := range []*string{
		&config.Store.ProjectID,
		&config.Store.DSN,
		&config.Store.Password,
		&config.Store.Credential,
		&config.ListenState.Password,
		&config.Secrets.Vault.Token,
	} {
		*p = expandEnv(*p)
	}
}

func expandEnv(s string) string {
	if !strings.HasPrefix(s, "$") {
		return s
	}
	envVar := strings.TrimPrefix(strings.TrimSuffix(s, "}"), "${")
	envVar = strings.TrimPrefix(envVar, "$")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return s
}

// Validate 启动前校验；返回的错误均包装 errors.ErrInvalidArg
func (c *Config) Validate() error {
	switch c.Watcher.Mode {
	case ModePush, ModePoll:
	default:
		return errors.Wrapf(errors.ErrInvalidArg, "watcher.mode %q 必须为 push 或 poll", c.Watcher.Mode)
	}
	if c.Watcher.Collection == "" {
		return errors.Wrap(errors.ErrInvalidArg, "watcher.collection 不能为空")
	}
	for name, s := range map[string]string{
		"watcher.interval":      c.Watcher.Interval,
		"watcher.fetch_timeout": c.Watcher.FetchTimeout,
		"watcher.retry_backoff": c.Watcher.RetryBackoff,
		"watcher.max_backoff":   c.Watcher.MaxBackoff,
		"action.expire_after":   c.Action.ExpireAfter,
	} {
		if s == "" {
			continue
		}
		if d, err := time.ParseDuration(s); err != nil || d <= 0 {
			return errors.Wrapf(errors.ErrInvalidArg, "%s %q 不是有效时长", name, s)
		}
	}
	switch c.Store.Type {
	case "memory":
	case "rest":
		if c.Store.ProjectID == "" {
			return errors.Wrap(errors.ErrInvalidArg, "store.project_id 未设置（或设置 PROJECT_ID 环境变量）")
		}
		if c.Watcher.Mode == ModePush {
			return errors.Wrap(errors.ErrInvalidArg, "store.type=rest 仅支持 poll 模式")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return errors.Wrap(errors.ErrInvalidArg, "store.dsn 未设置")
		}
	case "redis":
		if c.Store.Addr == "" {
			return errors.Wrap(errors.ErrInvalidArg, "store.addr 未设置")
		}
	default:
		return errors.Wrapf(errors.ErrInvalidArg, "不支持的 store.type: %s", c.Store.Type)
	}
	switch c.ListenState.Type {
	case "", "memory", "redis":
	case "sqlite":
		if c.ListenState.Path == "" {
			return errors.Wrap(errors.ErrInvalidArg, "listen_state.path 未设置")
		}
	default:
		return errors.Wrapf(errors.ErrInvalidArg, "不支持的 listen_state.type: %s", c.ListenState.Type)
	}
	return nil
}

// ParseDurationOr 解析时长，空或非法时返回 def
func ParseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
