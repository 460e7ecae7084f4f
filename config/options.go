package config

import "github.com/ceyewan/voteguard/clog"

// Option 函数式选项
type Option func(*options)

type options struct {
	logger clog.Logger
}

// WithLogger 注入 Logger，加载与热更新过程中的提示信息写入该 Logger
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("config")
		}
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
