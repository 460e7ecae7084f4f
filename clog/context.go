package clog

import (
	"context"
	"log/slog"
)

type contextKey string

// 标准 Context 键
const (
	CallIDKey    contextKey = "call_id"
	RequestIDKey contextKey = "request_id"
)

// WithCallID 将 call_id 写入 Context
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CallIDKey, id)
}

// CallIDFrom 读取 Context 中的 call_id，不存在时返回空串
func CallIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(CallIDKey).(string)
	return id
}

// WithRequestID 将 request_id 写入 Context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// extractContextFields 按规则从 ctx 提取字段并追加到 attrs
func extractContextFields(ctx context.Context, rules []ContextField, attrs *[]slog.Attr) {
	if ctx == nil {
		return
	}
	for _, r := range rules {
		v := ctx.Value(r.Key)
		if v == nil {
			continue
		}
		*attrs = append(*attrs, slog.Any(r.FieldName, v))
	}
}
