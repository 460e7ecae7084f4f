package clog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

type loggerImpl struct {
	root          slog.Handler // 未附加任何字段的 handler
	handler       slog.Handler
	attrs         []slog.Attr
	level         *slog.LevelVar
	writer        io.Writer
	namespace     []string
	contextFields []ContextField
}

func newLogger(cfg *Config, o *options) (Logger, error) {
	h, levelVar, w, err := newHandler(cfg, o)
	if err != nil {
		return nil, err
	}
	l := &loggerImpl{
		root:          h,
		handler:       h,
		level:         levelVar,
		writer:        w,
		contextFields: o.contextFields,
	}
	if len(o.namespaceParts) > 0 {
		return l.WithNamespace(o.namespaceParts...), nil
	}
	return l, nil
}

func (l *loggerImpl) log(ctx context.Context, level Level, msg string, fields []Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.handler.Enabled(ctx, level.slogLevel()) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(3, pcs[:]) // runtime.Callers, log, 公开方法
	r := slog.NewRecord(time.Now(), level.slogLevel(), msg, pcs[0])

	attrs := make([]slog.Attr, 0, len(fields)+len(l.contextFields))
	extractContextFields(ctx, l.contextFields, &attrs)
	attrs = append(attrs, fields...)
	r.AddAttrs(attrs...)

	_ = l.handler.Handle(ctx, r)
}

func (l *loggerImpl) Debug(msg string, fields ...Field) {
	l.log(context.Background(), DebugLevel, msg, fields)
}
func (l *loggerImpl) Info(msg string, fields ...Field) {
	l.log(context.Background(), InfoLevel, msg, fields)
}
func (l *loggerImpl) Warn(msg string, fields ...Field) {
	l.log(context.Background(), WarnLevel, msg, fields)
}
func (l *loggerImpl) Error(msg string, fields ...Field) {
	l.log(context.Background(), ErrorLevel, msg, fields)
}
func (l *loggerImpl) Fatal(msg string, fields ...Field) {
	l.log(context.Background(), FatalLevel, msg, fields)
	l.Flush()
	os.Exit(1)
}

func (l *loggerImpl) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, DebugLevel, msg, fields)
}
func (l *loggerImpl) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, InfoLevel, msg, fields)
}
func (l *loggerImpl) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, WarnLevel, msg, fields)
}
func (l *loggerImpl) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, ErrorLevel, msg, fields)
}
func (l *loggerImpl) FatalContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, FatalLevel, msg, fields)
	l.Flush()
	os.Exit(1)
}

func (l *loggerImpl) clone() *loggerImpl {
	c := *l
	c.namespace = append([]string(nil), l.namespace...)
	c.attrs = append([]slog.Attr(nil), l.attrs...)
	return &c
}

// rebuild 基于 root 重新附加 namespace 和预设字段，保证 namespace 只出现一次
func (l *loggerImpl) rebuild() {
	attrs := make([]slog.Attr, 0, len(l.attrs)+1)
	if len(l.namespace) > 0 {
		attrs = append(attrs, slog.String("namespace", strings.Join(l.namespace, ".")))
	}
	attrs = append(attrs, l.attrs...)
	l.handler = l.root.WithAttrs(attrs)
}

func (l *loggerImpl) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	c := l.clone()
	c.attrs = append(c.attrs, fields...)
	c.rebuild()
	return c
}

func (l *loggerImpl) WithNamespace(parts ...string) Logger {
	if len(parts) == 0 {
		return l
	}
	c := l.clone()
	c.namespace = append(c.namespace, parts...)
	c.rebuild()
	return c
}

func (l *loggerImpl) SetLevel(level Level) error {
	l.level.Set(level.slogLevel())
	return nil
}

func (l *loggerImpl) Flush() {
	if s, ok := l.writer.(syncer); ok {
		_ = s.Sync()
	}
}
