package clog

import "context"

// Logger 结构化日志接口
//
// 带 Context 的方法会按 WithContextField 配置的规则从 ctx 中提取字段。
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	FatalContext(ctx context.Context, msg string, fields ...Field)

	// With 创建带有预设字段的子 Logger
	With(fields ...Field) Logger

	// WithNamespace 在现有命名空间后追加，例如 "voteguard.invoker.vote"
	WithNamespace(parts ...string) Logger

	// SetLevel 运行时调整级别，子 Logger 共享同一级别
	SetLevel(level Level) error

	// Flush 同步底层输出（文件输出时调用 Sync）
	Flush()
}
