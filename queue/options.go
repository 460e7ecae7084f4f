package queue

import (
	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/metrics"
)

// Option 队列选项
type Option func(*options)

type options struct {
	name   string
	logger clog.Logger
	meter  metrics.Meter
}

// WithName 设置队列名，用于日志与指标标签
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger 注入 Logger，自动追加 "queue" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("queue")
		}
	}
}

// WithMeter 注入 Meter
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}
