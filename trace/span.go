package trace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/voteguard/xerrors"
)

// TracerName 受保护调用使用的 Tracer
const TracerName = "github.com/ceyewan/voteguard"

// 受保护调用的 Span 属性键
const (
	AttrPolicy     = "voteguard.policy"
	AttrDependency = "voteguard.dependency"
	AttrCallID     = "voteguard.call_id"
	AttrErrorCode  = "voteguard.error_code"
)

// SpanNameCall 返回受保护调用的 Span 名
func SpanNameCall(policy string) string {
	if policy == "" {
		return "invoke"
	}
	return "invoke " + policy
}

// StartCall 为一次受保护调用启动 Client Span
func StartCall(ctx context.Context, policy, dependency, callID string) (context.Context, oteltrace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return otel.Tracer(TracerName).Start(ctx, SpanNameCall(policy),
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(
			attribute.String(AttrPolicy, policy),
			attribute.String(AttrDependency, dependency),
			attribute.String(AttrCallID, callID),
		))
}

// MarkSpanError err 不为 nil 时记录错误、错误码并把 Span 标记为失败
func MarkSpanError(span oteltrace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	if code := xerrors.GetCode(err); code != "" {
		span.SetAttributes(attribute.String(AttrErrorCode, code))
	}
	span.SetStatus(codes.Error, err.Error())
}

// TraceID 返回 ctx 中的 TraceID，没有有效 Span 时返回空串
func TraceID(ctx context.Context) string {
	sc := oteltrace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
