package api

import (
	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/metrics"
	"github.com/ceyewan/voteguard/ratelimit"
)

// Option Server 选项
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter

	voteLimiter ratelimit.Limiter
}

// WithLogger 注入 Logger
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMeter 注入 Meter，同时在 /metrics 暴露其 Prometheus 端点
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithVoteLimiter 为投票提交接口按客户端 IP 限流，超限返回 429
func WithVoteLimiter(l ratelimit.Limiter) Option {
	return func(o *options) {
		o.voteLimiter = l
	}
}
