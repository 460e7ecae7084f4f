package clog

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level 日志级别，数值与 slog.Level 对齐，FatalLevel 在 ErrorLevel 之上
type Level int

const (
	DebugLevel Level = Level(slog.LevelDebug)
	InfoLevel  Level = Level(slog.LevelInfo)
	WarnLevel  Level = Level(slog.LevelWarn)
	ErrorLevel Level = Level(slog.LevelError)
	FatalLevel Level = Level(slog.LevelError + 4)
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel 解析日志级别（不区分大小写），无法解析时返回 InfoLevel 和错误
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level: %s", s)
	}
}

func (l Level) slogLevel() slog.Level {
	return slog.Level(l)
}
