// Package trace 初始化 OpenTelemetry 链路追踪，并为受保护调用、HTTP 与 gRPC 提供 Span。
//
// Enabled 时通过 OTLP gRPC 导出到 Tempo/Jaeger 等后端；未启用时只在进程内生成 TraceID，
// 日志与指标仍能按 TraceID 关联。
package trace

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/ceyewan/voteguard/xerrors"
)

// Shutdown 刷新剩余数据并关闭 TracerProvider
type Shutdown func(context.Context) error

// Init 初始化全局 TracerProvider 与 TextMapPropagator。
// cfg.Enabled 为 false 时等价于 Discard(cfg.ServiceName)。
func Init(cfg *Config) (Shutdown, error) {
	if cfg != nil && !cfg.Enabled {
		return Discard(cfg.ServiceName)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	ctx := context.Background()

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(5 * time.Second),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to create otlp exporter")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to create resource")
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Sampler))),
	}
	if cfg.Batcher == "simple" {
		tpOpts = append(tpOpts, sdktrace.WithSyncer(exporter))
	} else {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	install(tp)
	return tp.Shutdown, nil
}

// install 设置全局 Provider 与 W3C TraceContext + Baggage 传播
func install(tp *sdktrace.TracerProvider) {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}
