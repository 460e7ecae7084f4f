package perf

import (
	clocks "github.com/vimeo/go-clocks"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/metrics"
)

// Option 记录器选项
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	clock  clocks.Clock
}

// WithLogger 注入 Logger，自动追加 "perf" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("perf")
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

// WithClock 注入时钟，用于样本时间戳
func WithClock(c clocks.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}
