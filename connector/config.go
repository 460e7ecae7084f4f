package connector

import (
	"time"

	"github.com/ceyewan/voteguard/xerrors"
)

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Name string `mapstructure:"name" yaml:"name"` // 连接器名称 (默认: "default")

	Addr     string `mapstructure:"addr" yaml:"addr"` // [必填]
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`

	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size"` // 默认: 10
	MinIdleConns int           `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`     // 客户端内部重试 (默认: -1，即不重试，交给 invoker)
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`   // 默认: 5s
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`   // 默认: 3s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"` // 默认: 3s

	// EnableTracing/EnableMetrics 通过 redisotel 为每条命令生成 Span 与连接池指标
	EnableTracing bool `mapstructure:"enable_tracing" yaml:"enable_tracing"`
	EnableMetrics bool `mapstructure:"enable_metrics" yaml:"enable_metrics"`
}

func (c *RedisConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns < 0 {
		c.MinIdleConns = 0
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = -1
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

func (c *RedisConfig) validate() error {
	c.setDefaults()
	if c.Addr == "" {
		return xerrors.Wrap(ErrConfig, "redis addr is required")
	}
	if c.DB < 0 {
		return xerrors.Wrapf(ErrConfig, "redis db must not be negative, got %d", c.DB)
	}
	return nil
}
