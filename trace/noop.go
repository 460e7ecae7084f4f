package trace

import (
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
)

// Discard 创建不导出的 TracerProvider，仅生成 TraceID。
func Discard(serviceName string) (Shutdown, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(1.0))),
	}
	if serviceName != "" {
		opts = append(opts, sdktrace.WithResource(resource.NewSchemaless(
			semconv.ServiceNameKey.String(serviceName),
		)))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	install(tp)
	return tp.Shutdown, nil
}
