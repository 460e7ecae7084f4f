package invoker

import (
	"slices"
	"time"

	"github.com/ceyewan/voteguard/retry"
	"github.com/ceyewan/voteguard/xerrors"
)

// RetryOn 的取值
const (
	RetryOnDefault   = "default"   // 除客户端错误、取消和熔断之外都重试
	RetryOnTransient = "transient" // 只重试网络、数据库连接、不可用和超时
	RetryOnNever     = "never"
)

// 内置策略名
const (
	PolicyProfile        = "profile"
	PolicyVote           = "vote"
	PolicyTally          = "tally"
	PolicyTallyIncrement = "tally_increment"
)

// Policy 一类调用点的弹性参数，全部是数据，可以在配置文件中覆盖
type Policy struct {
	MaxRetries    int           `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	InitialDelay  time.Duration `mapstructure:"initial_delay" yaml:"initial_delay" json:"initial_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay" yaml:"max_delay" json:"max_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor" yaml:"backoff_factor" json:"backoff_factor"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	Jitter        bool          `mapstructure:"jitter" yaml:"jitter" json:"jitter"`

	// Dependency 熔断器的 key，多个策略可以共享同一个依赖。为空时取策略名。
	Dependency string `mapstructure:"dependency" yaml:"dependency" json:"dependency"`

	// Queued 是否经过共享请求队列
	Queued bool `mapstructure:"queued" yaml:"queued" json:"queued"`

	// MaxConcurrent 大于 0 时使用该策略独享的队列
	MaxConcurrent int `mapstructure:"max_concurrent" yaml:"max_concurrent" json:"max_concurrent"`

	// 对 Dependency 熔断参数的覆盖，0 表示沿用 breaker 配置
	FailureThreshold int           `mapstructure:"failure_threshold" yaml:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout" yaml:"recovery_timeout" json:"recovery_timeout"`

	RetryOn           string   `mapstructure:"retry_on" yaml:"retry_on" json:"retry_on"`
	NonRetryableCodes []string `mapstructure:"non_retryable_codes" yaml:"non_retryable_codes" json:"non_retryable_codes"`
}

// Presets 返回内置策略：
//   - profile：读资料，重试少、超时短，只重试瞬时故障
//   - vote：提交投票，重试多、超时长，重复投票（CONFLICT）不重试
//   - tally：轮询计票
//   - tally_increment：计票自增，从不重试以免重复计数
func Presets() map[string]Policy {
	return map[string]Policy{
		PolicyProfile: {
			MaxRetries:       2,
			InitialDelay:     500 * time.Millisecond,
			MaxDelay:         2 * time.Second,
			BackoffFactor:    2,
			Timeout:          5 * time.Second,
			Jitter:           true,
			Dependency:       "profile-store",
			Queued:           true,
			FailureThreshold: 3,
			RecoveryTimeout:  30 * time.Second,
			RetryOn:          RetryOnTransient,
		},
		PolicyVote: {
			MaxRetries:        5,
			InitialDelay:      time.Second,
			MaxDelay:          10 * time.Second,
			BackoffFactor:     2,
			Timeout:           15 * time.Second,
			Jitter:            true,
			Dependency:        "vote-store",
			FailureThreshold:  5,
			RecoveryTimeout:   60 * time.Second,
			RetryOn:           RetryOnDefault,
			NonRetryableCodes: []string{xerrors.CodeConflict},
		},
		PolicyTally: {
			MaxRetries:    1,
			InitialDelay:  200 * time.Millisecond,
			MaxDelay:      time.Second,
			BackoffFactor: 2,
			Timeout:       3 * time.Second,
			Jitter:        true,
			Dependency:    "vote-store",
			Queued:        true,
			RetryOn:       RetryOnTransient,
		},
		PolicyTallyIncrement: {
			MaxRetries: 0,
			Timeout:    5 * time.Second,
			Dependency: "vote-store",
			RetryOn:    RetryOnNever,
		},
	}
}

func (p Policy) validate(name string) (Policy, error) {
	if p.Dependency == "" {
		p.Dependency = name
	}
	if p.RetryOn == "" {
		p.RetryOn = RetryOnDefault
	}
	if !slices.Contains([]string{RetryOnDefault, RetryOnTransient, RetryOnNever}, p.RetryOn) {
		return p, xerrors.Newf(xerrors.CodeInvalidInput, "policy %q: unknown retry_on %q", name, p.RetryOn)
	}
	if p.MaxConcurrent < 0 || p.FailureThreshold < 0 || p.RecoveryTimeout < 0 {
		return p, xerrors.Newf(xerrors.CodeInvalidInput, "policy %q: negative limit", name)
	}
	rp := p.retryPolicy(name)
	if err := rp.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// retryPolicy 转换为 retry.Policy
func (p Policy) retryPolicy(name string) retry.Policy {
	return retry.Policy{
		Name:          name,
		MaxRetries:    p.MaxRetries,
		InitialDelay:  p.InitialDelay,
		MaxDelay:      p.MaxDelay,
		BackoffFactor: p.BackoffFactor,
		Timeout:       p.Timeout,
		Jitter:        p.Jitter,
		Retryable:     p.predicate(),
	}
}

func (p Policy) predicate() retry.Predicate {
	var pred retry.Predicate
	switch p.RetryOn {
	case RetryOnTransient:
		pred = retry.TransientOnly
	case RetryOnNever:
		pred = retry.Never
	default:
		pred = retry.DefaultRetryable
	}
	if len(p.NonRetryableCodes) > 0 {
		pred = retry.Exclude(pred, p.NonRetryableCodes...)
	}
	return pred
}

// queued 是否需要排队
func (p Policy) queued() bool {
	return p.Queued || p.MaxConcurrent > 0
}
