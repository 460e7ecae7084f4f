package vote

import (
	clocks "github.com/vimeo/go-clocks"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/metrics"
)

// Option Engine 选项
type Option func(*options)

type options struct {
	logger       clog.Logger
	meter        metrics.Meter
	clock        clocks.Clock
	onTransition []func(Transition)
}

// WithLogger 注入 Logger，自动追加 "vote" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("vote")
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

// WithClock 注入时钟
func WithClock(c clocks.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithOnTransition 注册状态转换回调，可多次使用。
// 回调在 Tick 的调用方 goroutine 中按实体 ID 顺序执行，不持有引擎的锁。
func WithOnTransition(fn func(Transition)) Option {
	return func(o *options) {
		if fn != nil {
			o.onTransition = append(o.onTransition, fn)
		}
	}
}
