package connector

import "github.com/ceyewan/voteguard/clog"

type options struct {
	logger clog.Logger
}

// Option 连接器选项
type Option func(*options)

// WithLogger 设置 Logger，自动追加 "connector" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("connector")
		}
	}
}

func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
}
