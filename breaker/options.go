package breaker

import (
	"context"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/metrics"
	"github.com/ceyewan/voteguard/xerrors"
)

// Option 熔断器选项
type Option func(*options)

// FallbackFunc 熔断时的降级函数，返回 nil 表示降级成功。err 为 ErrOpenState。
type FallbackFunc func(ctx context.Context, key string, err error) error

type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	fallback  FallbackFunc
	isSuccess func(err error) bool
}

// WithLogger 注入 Logger，自动追加 "breaker" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("breaker")
		}
	}
}

// WithMeter 注入 Meter
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

// WithFallback 设置降级函数
func WithFallback(fallback FallbackFunc) Option {
	return func(o *options) {
		o.fallback = fallback
	}
}

// WithSuccessPredicate 自定义哪些结果不计入失败。
// 默认只有 nil 和领域冲突（CONFLICT）不计入：依赖正确地拒绝了重复请求，并没有故障。
func WithSuccessPredicate(fn func(err error) bool) Option {
	return func(o *options) {
		o.isSuccess = fn
	}
}

func defaultIsSuccess(err error) bool {
	return err == nil || xerrors.HasCode(err, xerrors.CodeConflict)
}
