// Package clog 是 voteguard 基于 slog 的结构化日志组件。
//
// 所有组件通过 WithLogger 选项注入 Logger，未注入时使用 Discard()。
// 日志可以输出到 stdout、stderr 或文件；输出到文件时由 lumberjack 负责切割。
//
//	logger, _ := clog.New(&clog.Config{Level: "info", Format: "json"},
//	    clog.WithNamespace("voteguard", "invoker"),
//	    clog.WithStandardContext(),
//	)
//	logger.Info("call finished", clog.String("policy", "vote"))
package clog

import "fmt"

// New 创建 Logger。config 为 nil 时使用开发环境默认配置。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig()
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return newLogger(config, applyOptions(opts...))
}
