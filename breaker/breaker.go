// Package breaker 是按依赖隔离的熔断器组件，基于 gobreaker 实现。
//
// 每个 key（通常是远程依赖名，例如 "profile-db"）拥有独立的熔断器：
//   - Closed：请求正常通过，连续失败达到 FailureThreshold 后进入 Open
//   - Open：RecoveryTimeout 到期前的请求直接返回 ErrOpenState，不会调用下游
//   - HalfOpen：到期后的下一次请求进入半开，最多放行 HalfOpenMaxRequests 个探测请求；
//     探测成功回到 Closed 并清零失败计数，探测失败重新进入 Open
//
// 基本使用：
//
//	brk, _ := breaker.New(&breaker.Config{
//		Default: breaker.Policy{FailureThreshold: 5, RecoveryTimeout: 30 * time.Second},
//	}, breaker.WithLogger(logger), breaker.WithMeter(meter))
//
//	v, err := brk.Execute(ctx, "profile-db", func() (any, error) {
//		return repo.Load(ctx, id)
//	})
//	if xerrors.HasCode(err, xerrors.CodeCircuitOpen) {
//		// 依赖暂不可用
//	}
package breaker

import (
	"context"
	"time"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/xerrors"
)

// Breaker 熔断器
type Breaker interface {
	// Execute 在 key 对应的熔断器保护下执行 fn。
	// 熔断期间返回 ErrOpenState（配置了降级函数时返回降级结果），fn 不会被调用。
	Execute(ctx context.Context, key string, fn func() (any, error)) (any, error)

	// State 返回 key 当前状态。从未使用过的 key 视为 Closed。
	State(key string) (State, error)

	// Stats 返回 key 的状态快照
	Stats(key string) (Stats, error)

	// Reset 丢弃 key 的熔断器，下次调用时以 Closed 状态重新创建
	Reset(key string)
}

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Stats 熔断器状态快照
type Stats struct {
	Key             string    `json:"key"`
	State           State     `json:"-"`
	StateName       string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitzero"`
	NextAttemptTime time.Time `json:"next_attempt_time,omitzero"` // 仅 Open 时有意义
}

// Policy 单个依赖的熔断参数
type Policy struct {
	// FailureThreshold 连续失败多少次后熔断，默认 5
	FailureThreshold int `mapstructure:"failure_threshold" yaml:"failure_threshold" json:"failure_threshold"`

	// RecoveryTimeout Open 持续时间，到期后允许探测，默认 60s
	RecoveryTimeout time.Duration `mapstructure:"recovery_timeout" yaml:"recovery_timeout" json:"recovery_timeout"`

	// MonitoringWindow Closed 状态下失败计数的清零周期。
	// 为 0 时失败计数只在成功时清零（严格的连续失败语义）。
	MonitoringWindow time.Duration `mapstructure:"monitoring_window" yaml:"monitoring_window" json:"monitoring_window"`

	// HalfOpenMaxRequests 半开状态允许的探测请求数，默认 1
	HalfOpenMaxRequests uint32 `mapstructure:"half_open_max_requests" yaml:"half_open_max_requests" json:"half_open_max_requests"`
}

// 默认值
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 60 * time.Second
)

func (p Policy) withDefaults() Policy {
	if p.FailureThreshold <= 0 {
		p.FailureThreshold = DefaultFailureThreshold
	}
	if p.RecoveryTimeout <= 0 {
		p.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if p.HalfOpenMaxRequests == 0 {
		p.HalfOpenMaxRequests = 1
	}
	if p.MonitoringWindow < 0 {
		p.MonitoringWindow = 0
	}
	return p
}

// Config 熔断器配置
type Config struct {
	// Default 未在 Services 中出现的 key 使用的参数
	Default Policy `mapstructure:"default" yaml:"default" json:"default"`

	// Services 按 key 覆盖的参数，未设置的字段回落到默认值
	Services map[string]Policy `mapstructure:"services" yaml:"services" json:"services"`
}

// PolicyFor 返回 key 生效的参数
func (c *Config) PolicyFor(key string) Policy {
	if p, ok := c.Services[key]; ok {
		return p.withDefaults()
	}
	return c.Default.withDefaults()
}

// New 创建熔断器
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	for key, p := range cfg.Services {
		if key == "" {
			return nil, xerrors.Wrap(ErrKeyEmpty, "services")
		}
		if p.FailureThreshold < 0 || p.RecoveryTimeout < 0 {
			return nil, xerrors.Newf(xerrors.CodeInvalidInput, "breaker policy %q: negative threshold or timeout", key)
		}
	}

	o := options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	def := cfg.Default.withDefaults()
	o.logger.Info("circuit breaker created",
		clog.Int("failure_threshold", def.FailureThreshold),
		clog.Duration("recovery_timeout", def.RecoveryTimeout),
		clog.Int("services", len(cfg.Services)))

	return newBreaker(cfg, o)
}

// Do 是 Execute 的泛型版本
func Do[T any](ctx context.Context, b Breaker, key string, fn func() (T, error)) (T, error) {
	v, err := b.Execute(ctx, key, func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}
