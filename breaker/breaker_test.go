package breaker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/metrics"
	"github.com/ceyewan/voteguard/xerrors"
)

var errDown = xerrors.WithCode(errors.New("connection refused"), xerrors.CodeNetwork)

func newTestBreaker(t *testing.T, p Policy, opts ...Option) Breaker {
	t.Helper()
	brk, err := New(&Config{Default: p}, append([]Option{WithLogger(clog.Discard())}, opts...)...)
	require.NoError(t, err)
	return brk
}

// counting 返回计数的 fn，err 为 nil 表示成功
func counting(calls *atomic.Int32, err error) func() (any, error) {
	return func() (any, error) {
		calls.Add(1)
		return "ok", err
	}
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = New(&Config{Services: map[string]Policy{"": {}}})
	assert.ErrorIs(t, err, ErrKeyEmpty)

	_, err = New(&Config{Services: map[string]Policy{"db": {FailureThreshold: -1}}})
	assert.Error(t, err)

	brk, err := New(&Config{})
	require.NoError(t, err)
	assert.NotNil(t, brk)
}

func TestPolicyDefaults(t *testing.T) {
	cfg := &Config{Services: map[string]Policy{"vote-db": {FailureThreshold: 2}}}

	p := cfg.PolicyFor("vote-db")
	assert.Equal(t, 2, p.FailureThreshold)
	assert.Equal(t, DefaultRecoveryTimeout, p.RecoveryTimeout)
	assert.Equal(t, uint32(1), p.HalfOpenMaxRequests)

	d := cfg.PolicyFor("other")
	assert.Equal(t, DefaultFailureThreshold, d.FailureThreshold)
}

func TestExecuteSuccess(t *testing.T) {
	brk := newTestBreaker(t, Policy{})

	v, err := Do(context.Background(), brk, "profile", func() (string, error) {
		return "alice", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", v)

	_, err = brk.Execute(context.Background(), "", counting(new(atomic.Int32), nil))
	assert.ErrorIs(t, err, ErrKeyEmpty)
}

func TestTripAfterThreshold(t *testing.T) {
	brk := newTestBreaker(t, Policy{FailureThreshold: 3, RecoveryTimeout: time.Minute})
	ctx := context.Background()
	var calls atomic.Int32

	for i := 0; i < 2; i++ {
		_, err := brk.Execute(ctx, "db", counting(&calls, errDown))
		assert.ErrorIs(t, err, errDown)
	}
	state, _ := brk.State("db")
	assert.Equal(t, StateClosed, state)

	before := time.Now()
	_, err := brk.Execute(ctx, "db", counting(&calls, errDown))
	assert.ErrorIs(t, err, errDown, "触发熔断的那次调用返回原始错误")

	state, _ = brk.State("db")
	assert.Equal(t, StateOpen, state)

	// 熔断期间不调用下游
	_, err = brk.Execute(ctx, "db", counting(&calls, nil))
	assert.ErrorIs(t, err, ErrOpenState)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeCircuitOpen))
	assert.Equal(t, int32(3), calls.Load())

	stats, err := brk.Stats("db")
	require.NoError(t, err)
	assert.Equal(t, StateOpen, stats.State)
	assert.Equal(t, "open", stats.StateName)
	assert.Equal(t, 3, stats.FailureCount)
	assert.False(t, stats.LastFailureTime.IsZero())
	assert.WithinDuration(t, before.Add(time.Minute), stats.NextAttemptTime, time.Second)
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	brk := newTestBreaker(t, Policy{FailureThreshold: 3})
	ctx := context.Background()
	var calls atomic.Int32

	for _, err := range []error{errDown, errDown, nil, errDown, errDown} {
		_, _ = brk.Execute(ctx, "db", counting(&calls, err))
	}

	stats, _ := brk.Stats("db")
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, 2, stats.FailureCount)
}

func TestMonitoringWindowClearsFailureCount(t *testing.T) {
	brk := newTestBreaker(t, Policy{FailureThreshold: 3, MonitoringWindow: 40 * time.Millisecond, RecoveryTimeout: time.Minute})
	ctx := context.Background()
	var calls atomic.Int32

	for i := 0; i < 2; i++ {
		_, _ = brk.Execute(ctx, "db", counting(&calls, errDown))
	}
	stats, _ := brk.Stats("db")
	require.Equal(t, 2, stats.FailureCount)

	time.Sleep(60 * time.Millisecond)

	stats, _ = brk.Stats("db")
	assert.Equal(t, StateClosed, stats.State)
	assert.Zero(t, stats.FailureCount, "窗口到期后计数随 gobreaker 一起清零")

	for i := 0; i < 2; i++ {
		_, _ = brk.Execute(ctx, "db", counting(&calls, errDown))
	}
	stats, _ = brk.Stats("db")
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, 2, stats.FailureCount)

	_, _ = brk.Execute(ctx, "db", counting(&calls, errDown))
	stats, _ = brk.Stats("db")
	assert.Equal(t, StateOpen, stats.State)
	assert.Equal(t, 3, stats.FailureCount)
}

func TestRecoveryThroughHalfOpen(t *testing.T) {
	brk := newTestBreaker(t, Policy{FailureThreshold: 1, RecoveryTimeout: 50 * time.Millisecond})
	ctx := context.Background()
	var calls atomic.Int32

	_, _ = brk.Execute(ctx, "db", counting(&calls, errDown))
	state, _ := brk.State("db")
	require.Equal(t, StateOpen, state)

	time.Sleep(70 * time.Millisecond)

	state, _ = brk.State("db")
	assert.Equal(t, StateHalfOpen, state)

	v, err := brk.Execute(ctx, "db", counting(&calls, nil))
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(2), calls.Load())

	stats, _ := brk.Stats("db")
	assert.Equal(t, StateClosed, stats.State)
	assert.Zero(t, stats.FailureCount)
	assert.True(t, stats.NextAttemptTime.IsZero())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	brk := newTestBreaker(t, Policy{FailureThreshold: 1, RecoveryTimeout: 50 * time.Millisecond})
	ctx := context.Background()
	var calls atomic.Int32

	_, _ = brk.Execute(ctx, "db", counting(&calls, errDown))
	first, _ := brk.Stats("db")

	time.Sleep(70 * time.Millisecond)
	_, err := brk.Execute(ctx, "db", counting(&calls, errDown))
	assert.ErrorIs(t, err, errDown)

	second, _ := brk.Stats("db")
	assert.Equal(t, StateOpen, second.State)
	assert.True(t, second.NextAttemptTime.After(first.NextAttemptTime), "重新熔断应刷新 NextAttemptTime")
	assert.Equal(t, int32(2), calls.Load())
}

func TestHalfOpenProbeBudget(t *testing.T) {
	brk := newTestBreaker(t, Policy{FailureThreshold: 1, RecoveryTimeout: 30 * time.Millisecond, HalfOpenMaxRequests: 1})
	ctx := context.Background()

	_, _ = brk.Execute(ctx, "db", counting(new(atomic.Int32), errDown))
	time.Sleep(50 * time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := brk.Execute(ctx, "db", func() (any, error) {
			close(started)
			<-release
			return nil, nil
		})
		done <- err
	}()
	<-started

	var calls atomic.Int32
	_, err := brk.Execute(ctx, "db", counting(&calls, nil))
	assert.ErrorIs(t, err, ErrOpenState, "探测名额用完时快速失败")
	assert.Zero(t, calls.Load())

	close(release)
	require.NoError(t, <-done)
	state, _ := brk.State("db")
	assert.Equal(t, StateClosed, state)
}

func TestConflictDoesNotCountAsFailure(t *testing.T) {
	brk := newTestBreaker(t, Policy{FailureThreshold: 2})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := brk.Execute(ctx, "ballots", func() (any, error) {
			return nil, xerrors.Wrap(xerrors.ErrConflict, "duplicate ballot")
		})
		assert.ErrorIs(t, err, xerrors.ErrConflict)
	}
	state, _ := brk.State("ballots")
	assert.Equal(t, StateClosed, state)

	// 自定义判定后冲突也计入失败
	strict := newTestBreaker(t, Policy{FailureThreshold: 2}, WithSuccessPredicate(func(err error) bool { return err == nil }))
	for i := 0; i < 2; i++ {
		_, _ = strict.Execute(ctx, "ballots", func() (any, error) { return nil, xerrors.ErrConflict })
	}
	state, _ = strict.State("ballots")
	assert.Equal(t, StateOpen, state)
}

func TestFallback(t *testing.T) {
	var fallbackKey string
	brk := newTestBreaker(t, Policy{FailureThreshold: 1, RecoveryTimeout: time.Minute},
		WithFallback(func(ctx context.Context, key string, err error) error {
			fallbackKey = key
			assert.ErrorIs(t, err, ErrOpenState)
			return nil
		}))
	ctx := context.Background()

	_, _ = brk.Execute(ctx, "profile", counting(new(atomic.Int32), errDown))
	v, err := brk.Execute(ctx, "profile", counting(new(atomic.Int32), nil))
	assert.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, "profile", fallbackKey)
}

func TestPerKeyIsolationAndOverrides(t *testing.T) {
	brk, err := New(&Config{
		Default:  Policy{FailureThreshold: 5},
		Services: map[string]Policy{"fragile": {FailureThreshold: 1, RecoveryTimeout: time.Minute}},
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, _ = brk.Execute(ctx, "fragile", counting(new(atomic.Int32), errDown))
	_, _ = brk.Execute(ctx, "sturdy", counting(new(atomic.Int32), errDown))

	s1, _ := brk.State("fragile")
	s2, _ := brk.State("sturdy")
	assert.Equal(t, StateOpen, s1)
	assert.Equal(t, StateClosed, s2)
}

func TestReset(t *testing.T) {
	brk := newTestBreaker(t, Policy{FailureThreshold: 1, RecoveryTimeout: time.Hour})
	ctx := context.Background()

	_, _ = brk.Execute(ctx, "db", counting(new(atomic.Int32), errDown))
	state, _ := brk.State("db")
	require.Equal(t, StateOpen, state)

	brk.Reset("db")
	brk.Reset("never-used")

	var calls atomic.Int32
	_, err := brk.Execute(ctx, "db", counting(&calls, nil))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStateAndStatsUnknownKey(t *testing.T) {
	brk := newTestBreaker(t, Policy{})

	state, err := brk.State("nobody")
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)

	stats, err := brk.Stats("nobody")
	require.NoError(t, err)
	assert.Equal(t, "closed", stats.StateName)
	assert.Zero(t, stats.FailureCount)

	_, err = brk.State("")
	assert.ErrorIs(t, err, ErrKeyEmpty)
	_, err = brk.Stats("")
	assert.ErrorIs(t, err, ErrKeyEmpty)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestBreakerMetrics(t *testing.T) {
	meter, err := metrics.New(metrics.NewDevDefaultConfig("breaker-test"))
	require.NoError(t, err)

	brk := newTestBreaker(t, Policy{FailureThreshold: 1, RecoveryTimeout: time.Minute}, WithMeter(meter))
	ctx := context.Background()
	_, _ = brk.Execute(ctx, "db", counting(new(atomic.Int32), errDown))
	_, _ = brk.Execute(ctx, "db", counting(new(atomic.Int32), nil))

	rec := httptest.NewRecorder()
	metrics.Handler(meter).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, MetricRejectsTotal)
	assert.Contains(t, body, MetricFailuresTotal)
	assert.Contains(t, body, MetricStateChanges)
	assert.Contains(t, body, `to_state="open"`)
}
