package invoker

import (
	"time"

	clocks "github.com/vimeo/go-clocks"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/metrics"
	"github.com/ceyewan/voteguard/retry"
)

// Option Invoker 选项
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	clock  clocks.Clock
	random func() float64
}

// WithLogger 注入 Logger，子组件各自追加命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
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

// WithClock 注入时钟，用于重试退避与耗时统计
func WithClock(c clocks.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithRandom 注入抖动使用的随机源
func WithRandom(random func() float64) Option {
	return func(o *options) {
		o.random = random
	}
}

func (o options) retryOptions() []retry.Option {
	opts := []retry.Option{retry.WithLogger(o.logger), retry.WithClock(o.clock)}
	if o.random != nil {
		opts = append(opts, retry.WithRandom(o.random))
	}
	return opts
}

// CallOption 单次调用的覆盖
type CallOption func(*retry.Policy)

// WithRetryable 替换本次调用的重试判断
func WithRetryable(pred retry.Predicate) CallOption {
	return func(p *retry.Policy) {
		p.Retryable = pred
	}
}

// WithOnRetry 在每次重试前回调，attempt 从 1 开始
func WithOnRetry(fn func(err error, attempt int)) CallOption {
	return func(p *retry.Policy) {
		p.OnRetry = fn
	}
}

// WithMaxRetries 覆盖重试次数
func WithMaxRetries(n int) CallOption {
	return func(p *retry.Policy) {
		p.MaxRetries = n
	}
}

// WithTimeout 覆盖单次尝试超时
func WithTimeout(d time.Duration) CallOption {
	return func(p *retry.Policy) {
		p.Timeout = d
	}
}
