package clog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// syncer 由 *os.File 等支持落盘的输出实现
type syncer interface {
	Sync() error
}

// resolveWriter 根据 Output 选择输出目标，文件输出经 lumberjack 切割
func resolveWriter(cfg *Config, o *options) (io.Writer, error) {
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "buffer":
		if o.buffer == nil {
			return nil, fmt.Errorf("output buffer requires a buffer option")
		}
		return o.buffer, nil
	}

	if dir := filepath.Dir(cfg.Output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	return &lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, nil
}

// newHandler 创建底层 slog.Handler，返回的 LevelVar 供 SetLevel 使用
func newHandler(cfg *Config, o *options) (slog.Handler, *slog.LevelVar, io.Writer, error) {
	w, err := resolveWriter(cfg, o)
	if err != nil {
		return nil, nil, nil, err
	}

	lvl, _ := ParseLevel(cfg.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(lvl.slogLevel())

	hopts := &slog.HandlerOptions{
		Level:       levelVar,
		AddSource:   cfg.AddSource,
		ReplaceAttr: newReplaceAttr(cfg.SourceRoot),
	}

	var h slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	return h, levelVar, w, nil
}

func newReplaceAttr(sourceRoot string) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		switch a.Key {
		case slog.TimeKey:
			if t, ok := a.Value.Any().(interface{ Format(string) string }); ok {
				return slog.String(slog.TimeKey, t.Format(TimeFormat))
			}
		case slog.LevelKey:
			if l, ok := a.Value.Any().(slog.Level); ok && l >= FatalLevel.slogLevel() {
				return slog.String(slog.LevelKey, "FATAL")
			}
		case slog.SourceKey:
			if src, ok := a.Value.Any().(*slog.Source); ok && src != nil {
				return slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", trimSourcePath(src.File, sourceRoot), src.Line))
			}
		}
		return a
	}
}

// trimSourcePath 截掉 root 之前的路径前缀，root 为空时只保留最后两级
func trimSourcePath(file, root string) string {
	if root != "" {
		if idx := strings.LastIndex(file, root+"/"); idx >= 0 {
			return file[idx+len(root)+1:]
		}
	}
	dir, name := filepath.Split(file)
	return filepath.Join(filepath.Base(dir), name)
}
