package voting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vimeo/go-clocks/fake"

	"github.com/ceyewan/voteguard/invoker"
	"github.com/ceyewan/voteguard/rank"
	"github.com/ceyewan/voteguard/vote"
	"github.com/ceyewan/voteguard/xerrors"
)

var (
	base       = time.Date(2026, 5, 20, 18, 0, 0, 0, time.UTC)
	errNetwork = xerrors.WithCode(errors.New("connection reset"), xerrors.CodeNetwork)
)

// stubBackend 包装真实后端，可注入故障并统计调用次数
type stubBackend struct {
	Backend

	mu        sync.Mutex
	fetches   int
	fetchErr  error
	incrErr   error
	submitErr error
	// lostAcks 次提交先写入后端，再返回网络错误
	lostAcks int
}

func (s *stubBackend) SubmitVote(ctx context.Context, b Ballot) error {
	s.mu.Lock()
	err := s.submitErr
	lost := s.lostAcks > 0
	if lost {
		s.lostAcks--
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if lost {
		if err := s.Backend.SubmitVote(ctx, b); err != nil {
			return err
		}
		return errNetwork
	}
	return s.Backend.SubmitVote(ctx, b)
}

func (s *stubBackend) IncrementTally(ctx context.Context, entityID, itemID string) (int64, error) {
	s.mu.Lock()
	err := s.incrErr
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return s.Backend.IncrementTally(ctx, entityID, itemID)
}

func (s *stubBackend) FetchTallies(ctx context.Context, entityID string) (map[string]int64, error) {
	s.mu.Lock()
	s.fetches++
	err := s.fetchErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Backend.FetchTallies(ctx, entityID)
}

func (s *stubBackend) setFetchErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
}

func (s *stubBackend) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// newTestInvoker 毫秒级退避的策略，不依赖假时钟
func newTestInvoker(t *testing.T) *invoker.Invoker {
	t.Helper()
	fast := func(retries int, retryOn string) invoker.Policy {
		return invoker.Policy{
			MaxRetries:    retries,
			InitialDelay:  time.Millisecond,
			MaxDelay:      2 * time.Millisecond,
			BackoffFactor: 2,
			Timeout:       time.Second,
			Dependency:    "vote-store",
			RetryOn:       retryOn,
		}
	}
	vp := fast(2, invoker.RetryOnDefault)
	vp.NonRetryableCodes = []string{xerrors.CodeConflict}

	inv, err := invoker.New(&invoker.Config{Policies: map[string]invoker.Policy{
		invoker.PolicyVote:           vp,
		invoker.PolicyTally:          fast(0, invoker.RetryOnTransient),
		invoker.PolicyTallyIncrement: fast(0, invoker.RetryOnNever),
	}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = inv.Close() })
	return inv
}

type fixture struct {
	svc     *Service
	backend *stubBackend
	redis   *RedisBackend
	clock   *fake.Clock
}

func newFixture(t *testing.T, cfg *Config) *fixture {
	t.Helper()
	_, rb := newRedis(t)
	stub := &stubBackend{Backend: rb}
	clock := fake.NewClock(base)
	if cfg == nil {
		cfg = &Config{}
	}
	svc, err := New(cfg, stub, newTestInvoker(t), WithClock(clock))
	require.NoError(t, err)
	return &fixture{svc: svc, backend: stub, redis: rb, clock: clock}
}

// openEntity 注册一个进行中的实体
func (f *fixture) openEntity(t *testing.T, id string, items ...string) {
	t.Helper()
	require.NoError(t, f.svc.RegisterVotingEntity(id, base.Add(-time.Hour), base.Add(time.Hour), items...))
}

func itemOrder(v rank.View) []string {
	out := make([]string, 0, len(v.Entries))
	for _, e := range v.Entries {
		out = append(out, e.ItemID)
	}
	return out
}

func TestNewRequiresDependencies(t *testing.T) {
	_, rb := newRedis(t)
	_, err := New(nil, nil, newTestInvoker(t))
	assert.True(t, xerrors.HasCode(err, xerrors.CodeInvalidInput))
	_, err = New(nil, rb, nil)
	assert.Error(t, err)
}

func TestNewRegistersConfiguredEntities(t *testing.T) {
	f := newFixture(t, &Config{Entities: []EntityConfig{
		{ID: "final", StartAt: base.Add(-time.Hour), StopAt: base.Add(time.Hour), Items: []string{"A", "B"}},
		{ID: "next", StartAt: base.Add(time.Hour), StopAt: base.Add(2 * time.Hour)},
	}})

	st, ok := f.svc.Status("final")
	require.True(t, ok)
	assert.Equal(t, vote.StatusOpen, st)
	st, _ = f.svc.Status("next")
	assert.Equal(t, vote.StatusScheduled, st)

	ents := f.svc.Entities()
	require.Len(t, ents, 2)
	assert.Equal(t, "final", ents[0].ID)

	es, ok := f.svc.Entity("next")
	require.True(t, ok)
	assert.Equal(t, vote.StatusScheduled, es.Status)

	_, err := New(&Config{Entities: []EntityConfig{
		{ID: "bad", StartAt: base, StopAt: base.Add(-time.Second)},
	}}, f.backend, newTestInvoker(t))
	assert.True(t, errors.Is(err, vote.ErrInvalidWindow))
}

func TestSubmitVoteValidation(t *testing.T) {
	f := newFixture(t, nil)
	f.openEntity(t, "show", "X", "Y")
	require.NoError(t, f.svc.RegisterVotingEntity("later", base.Add(time.Hour), base.Add(2*time.Hour), "X"))
	require.NoError(t, f.svc.RegisterVotingEntity("done", base.Add(-2*time.Hour), base.Add(-time.Hour), "X"))
	ctx := context.Background()

	tests := []struct {
		name                string
		entity, voter, item string
		want                error
	}{
		{"缺少投票人", "show", "", "X", ErrMissingField},
		{"未知实体", "ghost", "alice", "X", ErrEntityNotFound},
		{"尚未开始", "later", "alice", "X", ErrNotOpen},
		{"已经结束", "done", "alice", "X", ErrNotOpen},
		{"未知候选项", "show", "alice", "Q", ErrUnknownItem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitVote(ctx, tt.entity, tt.voter, tt.item)
			assert.True(t, errors.Is(err, tt.want), "err = %v", err)
		})
	}

	totals, err := f.redis.FetchTallies(ctx, "show")
	require.NoError(t, err)
	assert.Empty(t, totals, "被拒绝的选票不应计票")
}

func TestSubmitVoteWithoutCatalogueAcceptsAnyItem(t *testing.T) {
	f := newFixture(t, nil)
	f.openEntity(t, "show")

	tally, err := f.svc.SubmitVote(context.Background(), "show", "alice", "anything")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tally.Current)
}

func TestSubmitVoteEndToEnd(t *testing.T) {
	f := newFixture(t, nil)
	f.openEntity(t, "show", "A", "B", "X")
	ctx := context.Background()

	for _, v := range []struct{ voter, item string }{
		{"u1", "A"}, {"u2", "B"}, {"u3", "X"}, {"u4", "X"},
	} {
		_, err := f.svc.SubmitVote(ctx, "show", v.voter, v.item)
		require.NoError(t, err)
	}

	tally, err := f.svc.SubmitVote(ctx, "show", "u5", "X")
	require.NoError(t, err)
	assert.Equal(t, int64(3), tally.Current)
	assert.Equal(t, int64(2), tally.Previous)
	assert.Equal(t, int64(1), tally.Delta())

	view := f.svc.RankedView("show", 0)
	assert.True(t, view.Ranked)
	assert.Equal(t, []string{"X", "A", "B"}, itemOrder(view))
	assert.Equal(t, 1, view.Entries[0].Rank)
	assert.Equal(t, int64(3), view.Entries[0].Total)

	ballot, err := f.redis.Ballot(ctx, "show", "u5")
	require.NoError(t, err)
	assert.Equal(t, "X", ballot.ItemID)
	assert.True(t, base.Equal(ballot.CastAt), "CastAt 使用注入的时钟")
	assert.NotEmpty(t, ballot.ID)
}

func TestSubmitVoteDuplicate(t *testing.T) {
	f := newFixture(t, nil)
	f.openEntity(t, "show", "X", "Y")
	ctx := context.Background()

	_, err := f.svc.SubmitVote(ctx, "show", "alice", "X")
	require.NoError(t, err)

	_, err = f.svc.SubmitVote(ctx, "show", "alice", "Y")
	require.Error(t, err)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeConflict))

	totals, err := f.redis.FetchTallies(ctx, "show")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"X": 1}, totals)

	stats, err := f.svc.CircuitStats(invoker.PolicyVote)
	require.NoError(t, err)
	assert.Zero(t, stats.FailureCount, "重复投票不计入熔断失败")
}

func TestSubmitVotePartialFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.openEntity(t, "show", "X")
	f.backend.incrErr = errNetwork
	ctx := context.Background()

	_, err := f.svc.SubmitVote(ctx, "show", "alice", "X")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPartialVote))
	assert.True(t, xerrors.HasCode(err, xerrors.CodePartialFailure))
	assert.True(t, xerrors.HasCode(err, xerrors.CodeNetwork))

	// 选票已记录，重新提交会被视为重复
	_, err = f.redis.Ballot(ctx, "show", "alice")
	require.NoError(t, err)
	f.backend.incrErr = nil
	_, err = f.svc.SubmitVote(ctx, "show", "alice", "X")
	assert.True(t, xerrors.HasCode(err, xerrors.CodeConflict))
}

func TestSubmitVoteStoreFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.openEntity(t, "show", "X")
	f.backend.submitErr = errNetwork

	_, err := f.svc.SubmitVote(context.Background(), "show", "alice", "X")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPartialVote))
	assert.True(t, xerrors.HasCode(err, xerrors.CodeNetwork))

	perf := f.svc.PerfSnapshot()
	require.Contains(t, perf, invoker.PolicyVote+invoker.ErrorSuffix)
}

func TestPollObservesTallies(t *testing.T) {
	f := newFixture(t, nil)
	f.openEntity(t, "show", "A", "B", "C")
	require.NoError(t, f.svc.RegisterVotingEntity("later", base.Add(time.Hour), base.Add(2*time.Hour), "A"))
	ctx := context.Background()

	incr := func(item string, n int) {
		for range n {
			_, err := f.redis.IncrementTally(ctx, "show", item)
			require.NoError(t, err)
		}
	}
	incr("A", 100)
	incr("B", 130)
	incr("C", 120)

	f.svc.Poll(ctx)
	assert.Equal(t, 1, f.backend.fetchCount(), "Scheduled 的实体不拉取")

	view := f.svc.RankedView("show", 0)
	assert.Equal(t, []string{"B", "C", "A"}, itemOrder(view))
	assert.Equal(t, int64(130), view.Entries[0].Delta)

	incr("A", 40)
	f.svc.Poll(ctx)
	view = f.svc.RankedView("show", 0)
	assert.Equal(t, []string{"A", "B", "C"}, itemOrder(view))
	assert.Equal(t, int64(40), view.Entries[0].Delta)
	assert.Zero(t, view.Entries[1].Delta)

	later := f.svc.RankedView("later", 0)
	assert.False(t, later.Ranked)
}

func TestPollBackoff(t *testing.T) {
	f := newFixture(t, &Config{PollBackoff: BackoffConfig{Min: time.Second, Max: 2 * time.Second}})
	f.openEntity(t, "show", "A")
	ctx := context.Background()

	f.backend.setFetchErr(errNetwork)
	f.svc.Poll(ctx)
	assert.Equal(t, 1, f.backend.fetchCount())

	// 退避期内不再拉取
	f.backend.setFetchErr(nil)
	f.svc.Poll(ctx)
	assert.Equal(t, 1, f.backend.fetchCount())

	f.clock.Advance(10 * time.Second)
	f.svc.Poll(ctx)
	assert.Equal(t, 2, f.backend.fetchCount())

	// 成功后退避重置，每个周期都拉取
	f.svc.Poll(ctx)
	assert.Equal(t, 3, f.backend.fetchCount())
}

func TestPollFreezesAfterClose(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.svc.RegisterVotingEntity("show", base.Add(-time.Hour), base.Add(time.Minute), "A", "B"))
	ctx := context.Background()

	_, err := f.redis.IncrementTally(ctx, "show", "A")
	require.NoError(t, err)
	f.svc.Poll(ctx)

	// 窗口关闭后到达的最终计票仍会被记录一次
	_, err = f.redis.IncrementTally(ctx, "show", "B")
	require.NoError(t, err)
	_, err = f.redis.IncrementTally(ctx, "show", "B")
	require.NoError(t, err)
	f.clock.Advance(2 * time.Minute)
	f.svc.Poll(ctx)
	assert.Equal(t, 2, f.backend.fetchCount())

	view := f.svc.RankedView("show", 0)
	assert.Equal(t, vote.StatusClosed, view.Status)
	assert.Equal(t, []string{"B", "A"}, itemOrder(view))

	_, err = f.redis.IncrementTally(ctx, "show", "A")
	require.NoError(t, err)
	f.svc.Poll(ctx)
	assert.Equal(t, 2, f.backend.fetchCount(), "冻结后不再拉取")

	_, ok := f.svc.ObserveTally("show", "A", 50)
	assert.False(t, ok)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, &Config{Vote: vote.Config{TickPeriod: time.Second}})
	f.openEntity(t, "show", "A")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	f.clock.AwaitSleepers(1)
	assert.Equal(t, 1, f.backend.fetchCount())
	f.clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return f.backend.fetchCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	f.clock.AwaitSleepers(1)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run 未在取消后返回")
	}
}

func TestUnregister(t *testing.T) {
	f := newFixture(t, nil)
	f.openEntity(t, "show", "A")

	assert.True(t, f.svc.UnregisterVotingEntity("show"))
	assert.False(t, f.svc.UnregisterVotingEntity("show"))
	_, ok := f.svc.Status("show")
	assert.False(t, ok)
	assert.Empty(t, f.svc.RankedView("show", 0).Entries)
}

func TestWrapAndStats(t *testing.T) {
	f := newFixture(t, nil)
	op := f.svc.Wrap(func(context.Context) (any, error) { return "ok", nil }, invoker.PolicyTally)
	v, err := op(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	assert.Contains(t, f.svc.QueueStats(), "shared")
	assert.Contains(t, f.svc.PerfSnapshot(), invoker.PolicyTally)
}

func TestSubmitVoteRetryAfterLostAck(t *testing.T) {
	f := newFixture(t, nil)
	f.openEntity(t, "show", "X", "Y")
	f.backend.lostAcks = 1
	ctx := context.Background()

	tally, err := f.svc.SubmitVote(ctx, "show", "alice", "X")
	require.NoError(t, err, "重试命中自己已写入的选票应视为成功")
	assert.Equal(t, int64(1), tally.Current)

	totals, err := f.redis.FetchTallies(ctx, "show")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"X": 1}, totals)

	// 同一投票人的第二张选票仍然是重复投票
	_, err = f.svc.SubmitVote(ctx, "show", "alice", "Y")
	assert.True(t, xerrors.HasCode(err, xerrors.CodeConflict))
}
