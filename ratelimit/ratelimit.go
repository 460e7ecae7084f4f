// Package ratelimit 为 voteguard 的投票入口提供令牌桶限流。
//
// 支持两种模式：
//   - standalone: 进程内限流，每个 key 一个 golang.org/x/time/rate 令牌桶
//   - distributed: 基于 Redis Lua 脚本的令牌桶，多个实例共享配额
//
// 基本使用：
//
//	limiter, _ := ratelimit.New(&ratelimit.Config{Mode: ratelimit.ModeStandalone, Rate: 5, Burst: 10})
//	defer limiter.Close()
//	allowed, err := limiter.Allow(ctx, "voter:42")
package ratelimit

import (
	"context"
	"time"

	"github.com/ceyewan/voteguard/connector"
)

// 限流模式
const (
	ModeStandalone  = "standalone"
	ModeDistributed = "distributed"
)

// Limit 令牌桶规则
type Limit struct {
	Rate  float64 `mapstructure:"rate" yaml:"rate" json:"rate"`    // 每秒生成的令牌数
	Burst int     `mapstructure:"burst" yaml:"burst" json:"burst"` // 桶容量
}

func (l Limit) valid() bool {
	return l.Rate > 0 && l.Burst > 0
}

// Limiter 限流器。key 通常是投票人或客户端 IP。
type Limiter interface {
	// Allow 尝试获取 1 个令牌，不阻塞
	Allow(ctx context.Context, key string) (bool, error)
	// AllowN 尝试获取 n 个令牌，不阻塞
	AllowN(ctx context.Context, key string, n int) (bool, error)
	// Limit 返回限流规则
	Limit() Limit
	Close() error
}

// Config 限流配置。Mode 为空表示不限流。
type Config struct {
	Mode  string  `mapstructure:"mode" yaml:"mode" json:"mode"`
	Rate  float64 `mapstructure:"rate" yaml:"rate" json:"rate"`
	Burst int     `mapstructure:"burst" yaml:"burst" json:"burst"`

	// distributed
	Prefix string `mapstructure:"prefix" yaml:"prefix" json:"prefix"`

	// standalone
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval" json:"cleanup_interval"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" json:"idle_timeout"`
}

// 默认值
const (
	DefaultPrefix          = "voteguard:ratelimit:"
	DefaultCleanupInterval = time.Minute
	DefaultIdleTimeout     = 5 * time.Minute
)

// Enabled 是否开启限流
func (c *Config) Enabled() bool {
	return c != nil && c.Mode != ""
}

func (c *Config) limit() Limit {
	return Limit{Rate: c.Rate, Burst: c.Burst}
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Prefix == "" {
		out.Prefix = DefaultPrefix
	}
	if out.CleanupInterval <= 0 {
		out.CleanupInterval = DefaultCleanupInterval
	}
	if out.IdleTimeout <= 0 {
		out.IdleTimeout = DefaultIdleTimeout
	}
	return out
}

// New 按 Mode 创建限流器。distributed 模式需要 WithRedisConnector。
func New(cfg *Config, opts ...Option) (Limiter, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	if !cfg.limit().valid() {
		return nil, ErrInvalidLimit
	}
	o := applyOptions(opts)
	c := cfg.withDefaults()

	switch c.Mode {
	case ModeStandalone:
		return newStandalone(c, o), nil
	case ModeDistributed:
		l, err := newDistributed(c, o)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, ErrUnknownMode
	}
}

// NewDistributed 直接基于 Redis 连接器创建分布式限流器
func NewDistributed(conn connector.RedisConnector, cfg *Config, opts ...Option) (Limiter, error) {
	if cfg == nil {
		return nil, ErrInvalidLimit
	}
	c := *cfg
	c.Mode = ModeDistributed
	return New(&c, append(opts, WithRedisConnector(conn))...)
}
