package rank

import "github.com/ceyewan/voteguard/clog"

// Option Engine 选项
type Option func(*options)

type options struct {
	logger clog.Logger
	topN   int
}

// WithLogger 注入 Logger，自动追加 "rank" 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("rank")
		}
	}
}

// WithTopN 设置默认名次数
func WithTopN(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.topN = n
		}
	}
}
