// Package config 是 voteguard 的配置加载组件，基于 viper 实现。
//
// 配置来源按优先级从高到低：环境变量（VOTEGUARD_ 前缀）、.env 文件、
// config.<env>.yaml（由 VOTEGUARD_ENV 选择）、config.yaml。
// 配置文件变化时通过 fsnotify 自动重载，并通知 Watch 的订阅者。
//
//	loader := config.MustLoad(&config.Config{Paths: []string{"./config"}})
//	var cfg app.Config
//	_ = loader.Unmarshal(&cfg)
package config

import (
	"context"
	"time"
)

// Loader 配置加载器
type Loader interface {
	// Load 读取所有配置来源并启动文件监听
	Load(ctx context.Context) error

	Get(key string) any

	// Unmarshal 反序列化整个配置，字符串形式的 time.Duration（"30s"）会被解析
	Unmarshal(v any) error

	UnmarshalKey(key string, v any) error

	// Watch 监听 key 的变化，ctx 取消后通道关闭
	Watch(ctx context.Context, key string) (<-chan Event, error)

	Validate() error
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Source    string // "file"
	Timestamp time.Time
}
