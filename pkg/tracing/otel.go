// Copyright 2026 fanjia1024
// OpenTelemetry integration for distributed tracing

package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "linkwatch"

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	ExportEndpoint string
	Insecure       bool
	// SampleRatio 根 span 采样比例，(0,1]；0 表示全采样
	SampleRatio float64
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// InitTracer 初始化 OTLP/HTTP 导出的 tracer provider 并设为全局
func InitTracer(ctx context.Context, config OTelConfig) (*sdktrace.TracerProvider, error) {
	if config.ServiceName == "" {
		config.ServiceName = tracerName
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.ExportEndpoint)}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("创建 otlp exporter 失败: %w", err)
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(config.ServiceName)}
	if config.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(config.ServiceVersion))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(config.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp, nil
}

// StartCycleSpan 开始一次 watch 周期（一次 poll 或一个 push 事件）
func StartCycleSpan(ctx context.Context, mode string, collection string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "watch.cycle",
		trace.WithAttributes(
			attribute.String("watch.mode", mode),
			attribute.String("watch.collection", collection),
		),
	)
}

// StartActionSpan 开始一次动作执行
func StartActionSpan(ctx context.Context, action string, recordKey string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "action.execute",
		trace.WithAttributes(
			attribute.String("action.name", action),
			attribute.String("record.key", recordKey),
		),
	)
}
