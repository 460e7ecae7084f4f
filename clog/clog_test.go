package clog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ceyewan/voteguard/xerrors"
)

func newBufferLogger(t *testing.T, level string, opts ...Option) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := New(&Config{Level: level, Format: "json", Output: "buffer"}, append(opts, withBuffer(&buf))...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return logger, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("非法 JSON 行 %q: %v", line, err)
		}
		entries = append(entries, m)
	}
	return entries
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "valid config", config: &Config{Level: "info", Format: "console", Output: "stdout"}},
		{name: "nil config", config: nil},
		{name: "invalid level", config: &Config{Level: "verbose"}, wantErr: true},
		{name: "invalid format", config: &Config{Level: "info", Format: "xml"}, wantErr: true},
		{name: "buffer without option", config: &Config{Output: "buffer"}, wantErr: true},
		{name: "file output", config: &Config{Output: filepath.Join(t.TempDir(), "logs", "app.log"), Format: "json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() 成功时返回了 nil")
			}
		})
	}
}

func TestLoggerLevels(t *testing.T) {
	logger, buf := newBufferLogger(t, "debug")

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	entries := decodeLines(t, buf)
	want := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if len(entries) != len(want) {
		t.Fatalf("日志行数 = %d，期望 %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e["level"] != want[i] {
			t.Errorf("第 %d 行 level = %v，期望 %s", i, e["level"], want[i])
		}
	}
}

func TestLoggerSetLevel(t *testing.T) {
	logger, buf := newBufferLogger(t, "info")
	child := logger.With(String("component", "retry"))

	child.Debug("hidden")
	if err := logger.SetLevel(DebugLevel); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	// 子 Logger 共享级别
	child.Debug("visible")

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("日志行数 = %d，期望 1", len(entries))
	}
	if entries[0]["msg"] != "visible" || entries[0]["component"] != "retry" {
		t.Errorf("unexpected entry: %v", entries[0])
	}
}

func TestLoggerFields(t *testing.T) {
	logger, buf := newBufferLogger(t, "debug")

	logger.Info("call finished",
		String("policy", "vote"),
		Int("attempt", 3),
		Bool("fallback", false),
		Error(nil),
	)

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("日志行数 = %d，期望 1", len(entries))
	}
	e := entries[0]
	if e["policy"] != "vote" || e["attempt"] != float64(3) || e["fallback"] != false {
		t.Errorf("字段不符: %v", e)
	}
	if _, ok := e[""]; ok {
		t.Error("Error(nil) 不应输出字段")
	}
}

func TestErrorField(t *testing.T) {
	logger, buf := newBufferLogger(t, "debug")

	logger.Error("plain", Error(errors.New("boom")))
	logger.Error("coded", Error(xerrors.Wrap(xerrors.WithCode(errors.New("refused"), xerrors.CodeDBConnection), "increment")))

	entries := decodeLines(t, buf)
	if len(entries) != 2 {
		t.Fatalf("日志行数 = %d，期望 2", len(entries))
	}
	if entries[0]["err_msg"] != "boom" {
		t.Errorf("plain err_msg = %v", entries[0]["err_msg"])
	}
	group, ok := entries[1]["error"].(map[string]any)
	if !ok {
		t.Fatalf("coded error 应为分组字段: %v", entries[1])
	}
	if group["code"] != xerrors.CodeDBConnection {
		t.Errorf("code = %v，期望 %s", group["code"], xerrors.CodeDBConnection)
	}
}

func TestErrorWithStack(t *testing.T) {
	logger, buf := newBufferLogger(t, "debug")
	logger.Error("stack", ErrorWithStack(errors.New("boom")))

	entries := decodeLines(t, buf)
	group, ok := entries[0]["error"].(map[string]any)
	if !ok {
		t.Fatalf("error 应为分组字段: %v", entries[0])
	}
	if group["type"] != "*errors.errorString" {
		t.Errorf("type = %v", group["type"])
	}
	if s, _ := group["stack"].(string); !strings.Contains(s, "TestErrorWithStack") {
		t.Errorf("stack 应包含测试函数名: %q", s)
	}
}

func TestNamespace(t *testing.T) {
	logger, buf := newBufferLogger(t, "info", WithNamespace("voteguard"))

	logger.WithNamespace("invoker", "vote").Info("nested")
	logger.Info("root")

	entries := decodeLines(t, buf)
	if len(entries) != 2 {
		t.Fatalf("日志行数 = %d，期望 2", len(entries))
	}
	if entries[0]["namespace"] != "voteguard.invoker.vote" {
		t.Errorf("namespace = %v", entries[0]["namespace"])
	}
	if entries[1]["namespace"] != "voteguard" {
		t.Errorf("namespace = %v", entries[1]["namespace"])
	}
}

func TestContextFields(t *testing.T) {
	logger, buf := newBufferLogger(t, "info", WithStandardContext(), WithContextField("tenant", "tenant"))

	ctx := WithCallID(context.Background(), "call-1")
	ctx = WithRequestID(ctx, "req-9")
	ctx = context.WithValue(ctx, "tenant", "acme")
	logger.InfoContext(ctx, "with context")
	logger.InfoContext(context.Background(), "without context")

	entries := decodeLines(t, buf)
	if entries[0]["call_id"] != "call-1" || entries[0]["request_id"] != "req-9" || entries[0]["tenant"] != "acme" {
		t.Errorf("context 字段缺失: %v", entries[0])
	}
	if _, ok := entries[1]["call_id"]; ok {
		t.Errorf("空 Context 不应输出 call_id: %v", entries[1])
	}
	if got := CallIDFrom(ctx); got != "call-1" {
		t.Errorf("CallIDFrom = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"fatal", FatalLevel, false},
		{"loud", InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
	if FatalLevel.String() != "fatal" {
		t.Errorf("FatalLevel.String() = %q", FatalLevel.String())
	}
}

func TestTrimSourcePath(t *testing.T) {
	if got := trimSourcePath("/home/ci/src/voteguard/retry/executor.go", "voteguard"); got != "retry/executor.go" {
		t.Errorf("trimSourcePath = %q", got)
	}
	if got := trimSourcePath("/a/b/c/d.go", ""); got != "c/d.go" {
		t.Errorf("trimSourcePath = %q", got)
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Info("nothing")
	l.With(String("k", "v")).WithNamespace("x").Error("nothing")
	if err := l.SetLevel(DebugLevel); err != nil {
		t.Errorf("Discard().SetLevel() error = %v", err)
	}
	l.Flush()
}
