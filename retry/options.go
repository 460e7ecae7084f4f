package retry

import (
	"math/rand/v2"

	clocks "github.com/vimeo/go-clocks"

	"github.com/ceyewan/voteguard/clog"
)

// Option Executor 选项
type Option func(*Executor)

// WithLogger 注入 Logger，自动追加 "retry" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l.WithNamespace("retry")
		}
	}
}

// WithClock 注入时钟，退避等待通过 clock.SleepFor 进行
func WithClock(c clocks.Clock) Option {
	return func(e *Executor) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithRandom 注入 [0, 1) 随机源，用于抖动
func WithRandom(random func() float64) Option {
	return func(e *Executor) {
		if random != nil {
			e.random = random
		}
	}
}

func defaultRandom() float64 {
	return rand.Float64()
}
