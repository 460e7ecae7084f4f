// Package invoker 把请求队列、熔断器、重试和耗时统计组合成一个调用包装器。
//
// 每次调用依次经过：
//  1. 生成 call_id（UUIDv7）写入 ctx，用于日志关联，并启动 "invoke <policy>" Span
//  2. 策略开启排队时进入请求队列等待槽位
//  3. 依赖（Policy.Dependency）对应的熔断器
//  4. 熔断器内部按策略执行超时与重试
//  5. 按策略名记录耗时，失败记录到 "<policy>_error"
//
// 整个重试序列对熔断器来说是一次调用，重试用尽后的失败才计入熔断。
//
//	inv, _ := invoker.New(&invoker.Config{}, invoker.WithLogger(logger), invoker.WithMeter(meter))
//	defer inv.Close()
//
//	profile, err := invoker.Call(ctx, inv, invoker.PolicyProfile, func(ctx context.Context) (*Profile, error) {
//		return client.GetProfile(ctx, id)
//	})
package invoker

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	clocks "github.com/vimeo/go-clocks"

	"github.com/ceyewan/voteguard/breaker"
	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/metrics"
	"github.com/ceyewan/voteguard/perf"
	"github.com/ceyewan/voteguard/queue"
	"github.com/ceyewan/voteguard/retry"
	"github.com/ceyewan/voteguard/trace"
	"github.com/ceyewan/voteguard/xerrors"
)

// ErrorSuffix 失败调用的耗时记录在 "<policy>_error" 下
const ErrorSuffix = "_error"

// Operation 被保护的远程调用
type Operation func(ctx context.Context) (any, error)

// Config Invoker 配置
type Config struct {
	Queue   queue.Config   `mapstructure:"queue" yaml:"queue" json:"queue"`
	Breaker breaker.Config `mapstructure:"breaker" yaml:"breaker" json:"breaker"`
	Perf    perf.Config    `mapstructure:"perf" yaml:"perf" json:"perf"`

	// Policies 按名称覆盖或新增策略，同名时整体替换内置策略
	Policies map[string]Policy `mapstructure:"policies" yaml:"policies" json:"policies"`
}

// Invoker 弹性调用器，进程内共享一个实例
type Invoker struct {
	policies map[string]Policy
	logger   clog.Logger
	clock    clocks.Clock

	breaker  breaker.Breaker
	retry    *retry.Executor
	perf     *perf.Recorder
	shared   *queue.Queue
	isolated map[string]*queue.Queue // 独享队列，按策略名

	calls    metrics.Counter
	retries  metrics.Counter
	duration metrics.Histogram
}

// New 创建 Invoker
func New(cfg *Config, opts ...Option) (*Invoker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	o := options{logger: clog.Discard(), meter: metrics.Discard(), clock: clocks.DefaultClock()}
	for _, opt := range opts {
		opt(&o)
	}

	policies := Presets()
	maps.Copy(policies, cfg.Policies)
	for name, p := range policies {
		if name == "" {
			return nil, xerrors.Newf(xerrors.CodeInvalidInput, "policy name is empty")
		}
		valid, err := p.validate(name)
		if err != nil {
			return nil, err
		}
		policies[name] = valid
	}

	brk, err := breaker.New(breakerConfig(cfg.Breaker, policies),
		breaker.WithLogger(o.logger), breaker.WithMeter(o.meter))
	if err != nil {
		return nil, xerrors.Wrap(err, "create breaker")
	}
	rec, err := perf.New(&cfg.Perf,
		perf.WithLogger(o.logger), perf.WithMeter(o.meter), perf.WithClock(o.clock))
	if err != nil {
		return nil, xerrors.Wrap(err, "create perf recorder")
	}

	inv := &Invoker{
		policies: policies,
		logger:   o.logger.WithNamespace("invoker"),
		clock:    o.clock,
		breaker:  brk,
		retry:    retry.New(o.retryOptions()...),
		perf:     rec,
		isolated: make(map[string]*queue.Queue),
	}

	queueOpts := []queue.Option{queue.WithLogger(o.logger), queue.WithMeter(o.meter)}
	inv.shared = queue.New(&cfg.Queue, append(queueOpts, queue.WithName("shared"))...)
	for name, p := range policies {
		if p.MaxConcurrent > 0 {
			qcfg := cfg.Queue
			qcfg.MaxConcurrent = p.MaxConcurrent
			inv.isolated[name] = queue.New(&qcfg, append(queueOpts, queue.WithName(name))...)
		}
	}

	if inv.calls, err = o.meter.Counter(MetricCallsTotal, "Protected calls by policy and outcome"); err != nil {
		return nil, err
	}
	if inv.retries, err = o.meter.Counter(MetricRetriesTotal, "Retried attempts by policy"); err != nil {
		return nil, err
	}
	if inv.duration, err = o.meter.Histogram(MetricCallDuration, "End-to-end protected call duration",
		metrics.WithUnit("s")); err != nil {
		return nil, err
	}

	inv.logger.Info("invoker created", clog.Any("policies", inv.Policies()))
	return inv, nil
}

// breakerConfig 把策略中的熔断覆盖合入 breaker 配置。
// 显式的 Services 配置优先；多个策略共享依赖时按策略名排序取第一个。
func breakerConfig(base breaker.Config, policies map[string]Policy) *breaker.Config {
	out := breaker.Config{Default: base.Default, Services: maps.Clone(base.Services)}
	if out.Services == nil {
		out.Services = make(map[string]breaker.Policy)
	}
	for _, name := range slices.Sorted(maps.Keys(policies)) {
		p := policies[name]
		if p.FailureThreshold == 0 && p.RecoveryTimeout == 0 {
			continue
		}
		if _, ok := out.Services[p.Dependency]; ok {
			continue
		}
		bp := base.Default
		if p.FailureThreshold > 0 {
			bp.FailureThreshold = p.FailureThreshold
		}
		if p.RecoveryTimeout > 0 {
			bp.RecoveryTimeout = p.RecoveryTimeout
		}
		out.Services[p.Dependency] = bp
	}
	return &out
}

// Invoke 按策略执行 op
func (inv *Invoker) Invoke(ctx context.Context, policy string, op Operation, opts ...CallOption) (any, error) {
	p, ok := inv.policies[policy]
	if !ok {
		return nil, xerrors.Wrapf(ErrUnknownPolicy, "policy %q", policy)
	}

	callID := newCallID()
	ctx, span := trace.StartCall(clog.WithCallID(ctx, callID), policy, p.Dependency, callID)
	defer span.End()

	rp := inv.retryPolicy(ctx, policy, opts)
	start := inv.clock.Now()

	protected := func(ctx context.Context) (any, error) {
		return inv.breaker.Execute(ctx, p.Dependency, func() (any, error) {
			return retry.Run(ctx, inv.retry, rp, func(ctx context.Context) (any, error) {
				return op(ctx)
			})
		})
	}

	var (
		v   any
		err error
	)
	if q := inv.queueFor(policy, p); q != nil {
		v, err = q.Do(ctx, protected)
	} else {
		v, err = protected(ctx)
	}

	inv.observe(ctx, policy, p, inv.clock.Now().Sub(start), err)
	trace.MarkSpanError(span, err)
	return v, err
}

// Wrap 返回受 policy 保护的 op
func (inv *Invoker) Wrap(op Operation, policy string, opts ...CallOption) Operation {
	return func(ctx context.Context) (any, error) {
		return inv.Invoke(ctx, policy, op, opts...)
	}
}

// Call 是 Invoke 的泛型版本，失败时返回零值
func Call[T any](ctx context.Context, inv *Invoker, policy string, fn func(ctx context.Context) (T, error), opts ...CallOption) (T, error) {
	v, err := inv.Invoke(ctx, policy, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

// CircuitStats 返回 policy 所在依赖的熔断器状态
func (inv *Invoker) CircuitStats(policy string) (breaker.Stats, error) {
	p, ok := inv.policies[policy]
	if !ok {
		return breaker.Stats{}, xerrors.Wrapf(ErrUnknownPolicy, "policy %q", policy)
	}
	return inv.breaker.Stats(p.Dependency)
}

// ResetCircuit 重置 policy 所在依赖的熔断器
func (inv *Invoker) ResetCircuit(policy string) error {
	p, ok := inv.policies[policy]
	if !ok {
		return xerrors.Wrapf(ErrUnknownPolicy, "policy %q", policy)
	}
	inv.breaker.Reset(p.Dependency)
	return nil
}

// Policy 返回生效的策略
func (inv *Invoker) Policy(name string) (Policy, bool) {
	p, ok := inv.policies[name]
	return p, ok
}

// Policies 返回所有策略名，已排序
func (inv *Invoker) Policies() []string {
	return slices.Sorted(maps.Keys(inv.policies))
}

// Perf 返回耗时记录器
func (inv *Invoker) Perf() *perf.Recorder {
	return inv.perf
}

// QueueStats 返回各队列的快照，共享队列名为 "shared"
func (inv *Invoker) QueueStats() map[string]queue.Stats {
	out := map[string]queue.Stats{"shared": inv.shared.Stats()}
	for name, q := range inv.isolated {
		out[name] = q.Stats()
	}
	return out
}

// Close 关闭所有队列，等待中的调用以 queue.ErrClosed 结束
func (inv *Invoker) Close() error {
	var c xerrors.Collector
	c.Collect(inv.shared.Close())
	for _, q := range inv.isolated {
		c.Collect(q.Close())
	}
	return c.Err()
}

func (inv *Invoker) queueFor(name string, p Policy) *queue.Queue {
	if !p.queued() {
		return nil
	}
	if q, ok := inv.isolated[name]; ok {
		return q
	}
	return inv.shared
}

func (inv *Invoker) retryPolicy(ctx context.Context, name string, opts []CallOption) retry.Policy {
	rp := inv.policies[name].retryPolicy(name)
	for _, opt := range opts {
		opt(&rp)
	}

	hook := rp.OnRetry
	rp.OnRetry = func(err error, attempt int) {
		inv.retries.Inc(ctx, metrics.L(metrics.LabelPolicy, name))
		if hook != nil {
			hook(err, attempt)
		}
	}
	return rp
}

func (inv *Invoker) observe(ctx context.Context, name string, p Policy, elapsed time.Duration, err error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil:
		inv.perf.Record(name, elapsed, true)
	case xerrors.HasCode(err, xerrors.CodeCircuitOpen):
		outcome = metrics.OutcomeRejected
		inv.perf.Record(name+ErrorSuffix, elapsed, false)
	default:
		outcome = metrics.OutcomeError
		inv.perf.Record(name+ErrorSuffix, elapsed, false)
	}

	policyLabel := metrics.L(metrics.LabelPolicy, name)
	inv.calls.Inc(ctx, policyLabel, metrics.L(metrics.LabelOutcome, outcome))
	inv.duration.Record(ctx, elapsed.Seconds(), policyLabel)

	if err != nil {
		inv.logger.WarnContext(ctx, "protected call failed",
			clog.String("policy", name),
			clog.String("dependency", p.Dependency),
			clog.String("outcome", outcome),
			clog.Duration("elapsed", elapsed),
			clog.Error(err))
		return
	}
	inv.logger.DebugContext(ctx, "protected call succeeded",
		clog.String("policy", name),
		clog.Duration("elapsed", elapsed))
}

func newCallID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
