package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	clocks "github.com/vimeo/go-clocks"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/xerrors"
)

// Operation 被保护的操作，应当尊重 ctx 的取消
type Operation func(ctx context.Context) error

// Executor 按 Policy 执行 Operation，自身不持有任何调用状态
type Executor struct {
	logger clog.Logger
	clock  clocks.Clock
	random func() float64
}

// New 创建 Executor
func New(opts ...Option) *Executor {
	e := &Executor{
		logger: clog.Discard(),
		clock:  clocks.DefaultClock(),
		random: defaultRandom,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do 执行 op，直到成功、遇到不可重试的失败或用完重试次数。
//
// 返回值是最后一次尝试的原始错误；中间失败只交给 OnRetry 和 debug 日志。
// ctx 被取消时立即返回带 CANCELED 错误码的 ctx 错误。
func (e *Executor) Do(ctx context.Context, p Policy, op Operation) error {
	if err := p.Validate(); err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		err := e.attempt(ctx, p, op)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return canceled(ctx.Err())
		}
		if attempt >= p.MaxRetries || !p.retryable(err) {
			return err
		}

		delay := Backoff(attempt, p, e.random)
		if p.OnRetry != nil {
			p.OnRetry(err, attempt+1)
		}
		e.logger.DebugContext(ctx, "attempt failed, retrying",
			clog.String("policy", p.Name),
			clog.Int("attempt", attempt+1),
			clog.Duration("backoff", delay),
			clog.Error(err),
		)

		if !e.clock.SleepFor(ctx, delay) {
			return canceled(ctx.Err())
		}
	}
}

// attempt 在独立 goroutine 中运行 op 并与超时竞争；超时后 op 的结果被丢弃
func (e *Executor) attempt(ctx context.Context, p Policy, op Operation) error {
	actx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- xerrors.Wrap(ErrOperationPanic, fmt.Sprint(r))
			}
		}()
		done <- op(actx)
	}()

	select {
	case err := <-done:
		return e.settle(ctx, actx, err)
	case <-actx.Done():
		// 与超时同时就绪的结果优先于超时
		select {
		case err := <-done:
			return e.settle(ctx, actx, err)
		default:
			return e.deadlineError(ctx)
		}
	}
}

// settle 归类 op 的返回值。只有 op 自己返回的是 context 错误且本次尝试已到期，
// 才视为超时或取消；其它错误原样返回，交给重试判定。
func (e *Executor) settle(ctx, actx context.Context, err error) error {
	if err == nil || actx.Err() == nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return e.deadlineError(ctx)
	}
	return err
}

func (e *Executor) deadlineError(ctx context.Context) error {
	if ctx.Err() != nil {
		return canceled(ctx.Err())
	}
	return ErrAttemptTimeout
}

// Run 是 Do 的泛型版本。超时后才返回的结果会被丢弃，失败时返回零值。
func Run[T any](ctx context.Context, e *Executor, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		mu     sync.Mutex
		result T
	)
	err := e.Do(ctx, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		mu.Lock()
		result = v
		mu.Unlock()
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	mu.Lock()
	defer mu.Unlock()
	return result, nil
}
