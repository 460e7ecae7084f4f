// Package retry 为不可靠的远程调用提供超时、有界重试和指数退避。
//
// Policy 是不可变的值对象，Executor 本身无状态，可被所有调用点复用：
//
//	exec := retry.New(retry.WithLogger(logger))
//	err := exec.Do(ctx, retry.DefaultPolicy("profile"), func(ctx context.Context) error {
//	    return fetchProfile(ctx, id)
//	})
package retry

import (
	"time"

	"github.com/ceyewan/voteguard/xerrors"
)

// Predicate 判断一次失败是否值得重试
type Predicate func(err error) bool

// Policy 重试策略
type Policy struct {
	Name          string
	MaxRetries    int           // 0 表示只尝试一次
	InitialDelay  time.Duration // 第 0 次重试前的基础等待
	MaxDelay      time.Duration
	BackoffFactor float64
	Timeout       time.Duration // 单次尝试的超时
	Jitter        bool

	// Retryable 为 nil 时使用 DefaultRetryable；非 nil 时完全替代默认判断
	Retryable Predicate

	// OnRetry 在每次可重试的失败之后、退避等待之前调用，attempt 从 1 开始
	OnRetry func(err error, attempt int)
}

// 默认值
const (
	DefaultMaxRetries    = 3
	DefaultInitialDelay  = time.Second
	DefaultMaxDelay      = 10 * time.Second
	DefaultBackoffFactor = 2.0
	DefaultTimeout       = 10 * time.Second
)

// DefaultPolicy 返回带默认值的策略
func DefaultPolicy(name string) Policy {
	return Policy{
		Name:          name,
		MaxRetries:    DefaultMaxRetries,
		InitialDelay:  DefaultInitialDelay,
		MaxDelay:      DefaultMaxDelay,
		BackoffFactor: DefaultBackoffFactor,
		Timeout:       DefaultTimeout,
		Jitter:        true,
	}
}

// Validate 校验策略并补齐缺省字段：
// BackoffFactor < 1 时取 2，MaxDelay < InitialDelay 时取 InitialDelay，Timeout 为 0 时取 DefaultTimeout。
func (p *Policy) Validate() error {
	if p.MaxRetries < 0 {
		return xerrors.Newf(xerrors.CodeInvalidInput, "retry policy %q: max_retries must be >= 0, got %d", p.Name, p.MaxRetries)
	}
	if p.InitialDelay < 0 || p.MaxDelay < 0 || p.Timeout < 0 {
		return xerrors.Newf(xerrors.CodeInvalidInput, "retry policy %q: durations must be >= 0", p.Name)
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = DefaultBackoffFactor
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultTimeout
	}
	return nil
}

func (p *Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return DefaultRetryable(err)
}
