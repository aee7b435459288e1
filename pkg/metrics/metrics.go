package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 Watcher 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		ObservationsTotal, FetchErrorsTotal, DecodeErrorsTotal,
		ChangeEventsTotal, ActionsTotal, ActionDuration,
		WriteBacksTotal, ActionsInFlight,
	)
}

// ObservationsTotal 进入去重引擎的记录数（按结果）
var ObservationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "linkwatch_observations_total",
		Help: "进入去重引擎的记录数",
	},
	[]string{"mode", "outcome"}, // outcome: first | duplicate | new
)

// FetchErrorsTotal 拉取/订阅失败次数
var FetchErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "linkwatch_fetch_errors_total",
		Help: "拉取或订阅失败次数",
	},
	[]string{"mode"},
)

// DecodeErrorsTotal 无法解析的记录数
var DecodeErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "linkwatch_decode_errors_total",
		Help: "无法解析的记录数",
	},
	[]string{"mode"},
)

// ChangeEventsTotal push 订阅收到的变更事件（按类型与处理方式）
var ChangeEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "linkwatch_change_events_total",
		Help: "push 订阅收到的变更事件",
	},
	[]string{"kind", "handling"}, // handling: observed | self_authored | ignored
)

// ActionsTotal 动作执行次数（按动作与结果）
var ActionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "linkwatch_actions_total",
		Help: "动作执行次数",
	},
	[]string{"action", "status"}, // status: ok | failed
)

// ActionDuration 动作耗时（秒）
var ActionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "linkwatch_action_duration_seconds",
		Help:    "动作耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"action"},
)

// WriteBacksTotal 回写 expires_at 次数
var WriteBacksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "linkwatch_write_backs_total",
		Help: "回写 expires_at 次数",
	},
	[]string{"status"}, // ok | failed | skipped
)

// ActionsInFlight 正在执行的动作数
var ActionsInFlight = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "linkwatch_actions_in_flight",
		Help: "正在执行的动作数",
	},
)

// ContentType WritePrometheus 输出的 Content-Type
var ContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

// WritePrometheus 将 Prometheus 文本格式写入 w
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
