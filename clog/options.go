package clog

import "bytes"

// ContextField 从 Context 中提取字段的规则
type ContextField struct {
	Key       any    // Context 中存储的键
	FieldName string // 日志中的字段名
}

// Option 函数式选项
type Option func(*options)

type options struct {
	namespaceParts []string
	contextFields  []ContextField
	buffer         *bytes.Buffer // 测试用
}

// WithNamespace 设置命名空间，多级以 "." 连接写入 namespace 字段
func WithNamespace(parts ...string) Option {
	return func(o *options) {
		o.namespaceParts = append(o.namespaceParts, parts...)
	}
}

// WithContextField 添加从 Context 提取字段的规则
func WithContextField(key any, fieldName string) Option {
	return func(o *options) {
		o.contextFields = append(o.contextFields, ContextField{Key: key, FieldName: fieldName})
	}
}

// WithStandardContext 提取 call_id 与 request_id
//
// call_id 由 invoker 为每次受保护调用生成，request_id 由 api 中间件注入。
func WithStandardContext() Option {
	return func(o *options) {
		o.contextFields = append(o.contextFields,
			ContextField{Key: CallIDKey, FieldName: "call_id"},
			ContextField{Key: RequestIDKey, FieldName: "request_id"},
		)
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
