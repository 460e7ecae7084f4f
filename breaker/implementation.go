package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/metrics"
)

type circuitBreaker struct {
	cfg       *Config
	logger    clog.Logger
	fallback  FallbackFunc
	isSuccess func(err error) bool

	requests     metrics.Counter
	failures     metrics.Counter
	rejects      metrics.Counter
	stateChanges metrics.Counter

	entries sync.Map // map[string]*entry
}

// entry 单个 key 的熔断器。状态机与 Closed 下的连续失败数都由 gobreaker 维护，
// 时间点和跳闸时的失败数记录在 mu 下，mu 不会在调用 gobreaker 期间持有。
type entry struct {
	key    string
	policy Policy
	cb     *gobreaker.CircuitBreaker[any]

	mu          sync.Mutex
	tripped     int // 跳闸那一刻的连续失败数，Open/HalfOpen 期间对外展示
	lastFailure time.Time
	nextAttempt time.Time
}

func newBreaker(cfg *Config, o options) (Breaker, error) {
	meter := o.meter
	if meter == nil {
		meter = metrics.Discard()
	}
	isSuccess := o.isSuccess
	if isSuccess == nil {
		isSuccess = defaultIsSuccess
	}

	b := &circuitBreaker{
		cfg:       cfg,
		logger:    o.logger,
		fallback:  o.fallback,
		isSuccess: isSuccess,
	}

	var err error
	if b.requests, err = meter.Counter(MetricRequestsTotal, "Requests routed through the circuit breaker"); err != nil {
		return nil, err
	}
	if b.failures, err = meter.Counter(MetricFailuresTotal, "Requests that counted as breaker failures"); err != nil {
		return nil, err
	}
	if b.rejects, err = meter.Counter(MetricRejectsTotal, "Requests rejected without calling the dependency"); err != nil {
		return nil, err
	}
	if b.stateChanges, err = meter.Counter(MetricStateChanges, "Circuit breaker state transitions"); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *circuitBreaker) Execute(ctx context.Context, key string, fn func() (any, error)) (any, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}
	e := b.getOrCreate(key)
	b.requests.Inc(ctx, metrics.L(LabelService, key))

	v, err := e.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.rejects.Inc(ctx, metrics.L(LabelService, key))
		b.logger.DebugContext(ctx, "request rejected by open circuit", clog.String("service", key))

		if b.fallback != nil {
			if ferr := b.fallback(ctx, key, ErrOpenState); ferr != nil {
				return nil, ferr
			}
			return nil, nil
		}
		return nil, ErrOpenState
	}

	ok := b.isSuccess(err)
	if !ok {
		b.failures.Inc(ctx, metrics.L(LabelService, key))
	}
	e.observe(ok)
	return v, err
}

func (b *circuitBreaker) State(key string) (State, error) {
	if key == "" {
		return StateClosed, ErrKeyEmpty
	}
	val, ok := b.entries.Load(key)
	if !ok {
		return StateClosed, nil
	}
	return fromGobreaker(val.(*entry).cb.State()), nil
}

func (b *circuitBreaker) Stats(key string) (Stats, error) {
	if key == "" {
		return Stats{}, ErrKeyEmpty
	}
	val, ok := b.entries.Load(key)
	if !ok {
		return Stats{Key: key, State: StateClosed, StateName: StateClosed.String()}, nil
	}
	e := val.(*entry)

	// State 会推进 gobreaker 的代（窗口到期清零、Open -> HalfOpen），
	// 之后读到的 Counts 属于当前代。两者都要在 e.mu 之外调用。
	state := fromGobreaker(e.cb.State())
	consecutive := int(e.cb.Counts().ConsecutiveFailures)

	e.mu.Lock()
	defer e.mu.Unlock()
	s := Stats{
		Key:             key,
		State:           state,
		StateName:       state.String(),
		FailureCount:    consecutive,
		LastFailureTime: e.lastFailure,
	}
	if state != StateClosed {
		s.FailureCount = e.tripped
	}
	if state == StateOpen {
		s.NextAttemptTime = e.nextAttempt
	}
	return s, nil
}

func (b *circuitBreaker) Reset(key string) {
	if _, loaded := b.entries.LoadAndDelete(key); loaded {
		b.logger.Info("circuit breaker reset", clog.String("service", key))
	}
}

func (b *circuitBreaker) getOrCreate(key string) *entry {
	if val, ok := b.entries.Load(key); ok {
		return val.(*entry)
	}

	p := b.cfg.PolicyFor(key)
	e := &entry{key: key, policy: p}
	threshold := uint32(p.FailureThreshold)
	e.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        key,
		MaxRequests: p.HalfOpenMaxRequests,
		Interval:    p.MonitoringWindow,
		Timeout:     p.RecoveryTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.ConsecutiveFailures < threshold {
				return false
			}
			e.mu.Lock()
			e.tripped = int(c.ConsecutiveFailures)
			e.mu.Unlock()
			return true
		},
		IsSuccessful: b.isSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.onStateChange(fromGobreaker(to))
			b.stateChanges.Inc(context.Background(),
				metrics.L(LabelService, name),
				metrics.L(LabelFromState, fromGobreaker(from).String()),
				metrics.L(LabelToState, fromGobreaker(to).String()))
			b.logger.Info("circuit breaker state changed",
				clog.String("service", name),
				clog.String("from", fromGobreaker(from).String()),
				clog.String("to", fromGobreaker(to).String()))
		},
	})

	actual, _ := b.entries.LoadOrStore(key, e)
	return actual.(*entry)
}

func (e *entry) observe(success bool) {
	if success {
		return
	}
	e.mu.Lock()
	e.lastFailure = time.Now()
	e.mu.Unlock()
}

// onStateChange 在 gobreaker 内部锁下被调用，只能修改本地字段
func (e *entry) onStateChange(to State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch to {
	case StateOpen:
		e.nextAttempt = time.Now().Add(e.policy.RecoveryTimeout)
	case StateClosed:
		e.tripped = 0
		e.nextAttempt = time.Time{}
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}
