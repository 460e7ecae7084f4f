package ratelimit

import (
	clocks "github.com/vimeo/go-clocks"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/connector"
	"github.com/ceyewan/voteguard/metrics"
)

// Option 限流器选项
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	clock  clocks.Clock
	conn   connector.RedisConnector
}

// WithLogger 注入 Logger
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("ratelimit")
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

// WithClock 注入时钟，测试中使用 fake clock
func WithClock(c clocks.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithRedisConnector 注入 Redis 连接器（distributed 模式必需）
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		o.conn = conn
	}
}

func applyOptions(opts []Option) options {
	o := options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
		clock:  clocks.DefaultClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
