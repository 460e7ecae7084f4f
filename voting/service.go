// Package voting 是投票子系统对外的边界：注册投票实体、提交选票、查询状态与排行。
//
// 所有远程调用都经过 invoker：提交选票使用 "vote" 策略，计票自增使用 "tally_increment"，
// 轮询计票使用 "tally"。提交与自增是两次独立调用，自增失败时返回 ErrPartialVote，不会整体重试。
package voting

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	clocks "github.com/vimeo/go-clocks"
	goretry "github.com/vimeo/go-retry"

	"github.com/ceyewan/voteguard/breaker"
	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/invoker"
	"github.com/ceyewan/voteguard/metrics"
	"github.com/ceyewan/voteguard/perf"
	"github.com/ceyewan/voteguard/queue"
	"github.com/ceyewan/voteguard/rank"
	"github.com/ceyewan/voteguard/vote"
	"github.com/ceyewan/voteguard/xerrors"
)

// Service 投票服务
type Service struct {
	cfg     Config
	backend Backend
	inv     *invoker.Invoker
	status  *vote.Engine
	ranks   *rank.Engine
	clock   clocks.Clock
	logger  clog.Logger

	ballots metrics.Counter
	polls   metrics.Counter

	mu      sync.Mutex
	pollers map[string]*poller
}

// poller 单个实体的轮询退避状态
type poller struct {
	backoff *goretry.Backoff
	next    time.Time
}

// New 创建投票服务，并注册 cfg.Entities 中的实体
func New(cfg *Config, backend Backend, inv *invoker.Invoker, opts ...Option) (*Service, error) {
	if backend == nil || inv == nil {
		return nil, xerrors.Newf(xerrors.CodeInvalidInput, "voting: backend and invoker are required")
	}
	o := options{logger: clog.Discard(), meter: metrics.Discard(), clock: clocks.DefaultClock()}
	for _, opt := range opts {
		opt(&o)
	}
	c := cfg.withDefaults()

	status, err := vote.NewEngine(&c.Vote,
		vote.WithLogger(o.logger), vote.WithMeter(o.meter), vote.WithClock(o.clock))
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     c,
		backend: backend,
		inv:     inv,
		status:  status,
		ranks:   rank.NewEngine(status, rank.WithLogger(o.logger), rank.WithTopN(c.TopN)),
		clock:   o.clock,
		logger:  o.logger.WithNamespace("voting"),
		pollers: make(map[string]*poller),
	}
	if s.ballots, err = o.meter.Counter(MetricBallotsTotal, "Submitted ballots by result"); err != nil {
		return nil, err
	}
	if s.polls, err = o.meter.Counter(MetricPollsTotal, "Tally polls by result"); err != nil {
		return nil, err
	}

	for _, e := range c.Entities {
		if err := s.RegisterVotingEntity(e.ID, e.StartAt, e.StopAt, e.Items...); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Wrap 返回受 policy 保护的远程调用
func (s *Service) Wrap(op invoker.Operation, policy string) invoker.Operation {
	return s.inv.Wrap(op, policy)
}

// RegisterVotingEntity 注册投票实体及其候选项
func (s *Service) RegisterVotingEntity(id string, start, stop time.Time, items ...string) error {
	if err := s.status.Register(id, start, stop); err != nil {
		return err
	}
	s.ranks.Load(id, items...)
	return nil
}

// UnregisterVotingEntity 停止跟踪实体并丢弃其排行
func (s *Service) UnregisterVotingEntity(id string) bool {
	ok := s.status.Unregister(id)
	s.ranks.Remove(id)
	s.mu.Lock()
	delete(s.pollers, id)
	s.mu.Unlock()
	return ok
}

// ObserveTally 记录一次外部观察到的票数
func (s *Service) ObserveTally(entityID, itemID string, total int64) (rank.Tally, bool) {
	return s.ranks.Observe(entityID, itemID, total)
}

// RankedView 返回实体的排行，n <= 0 时使用配置的 TopN
func (s *Service) RankedView(entityID string, n int) rank.View {
	return s.ranks.View(entityID, n)
}

// Status 返回实体当前状态
func (s *Service) Status(entityID string) (vote.Status, bool) {
	return s.status.Status(entityID)
}

// Entity 返回实体及其当前状态
func (s *Service) Entity(entityID string) (vote.EntityStatus, bool) {
	ent, ok := s.status.Entity(entityID)
	if !ok {
		return vote.EntityStatus{}, false
	}
	st, _ := s.status.Status(entityID)
	return vote.EntityStatus{Entity: ent, Status: st}, true
}

// Entities 返回所有实体及其当前状态
func (s *Service) Entities() []vote.EntityStatus {
	return s.status.Entities()
}

// CircuitStats 返回 policy 所在依赖的熔断器状态
func (s *Service) CircuitStats(policy string) (breaker.Stats, error) {
	return s.inv.CircuitStats(policy)
}

// PerfSnapshot 返回各操作的耗时统计
func (s *Service) PerfSnapshot() map[string]perf.Stats {
	return s.inv.Perf().Snapshot()
}

// QueueStats 返回各请求队列的快照
func (s *Service) QueueStats() map[string]queue.Stats {
	return s.inv.QueueStats()
}

// SubmitVote 提交选票并为候选项计票，返回本地观察到的计票
func (s *Service) SubmitVote(ctx context.Context, entityID, voterID, itemID string) (rank.Tally, error) {
	if entityID == "" || voterID == "" || itemID == "" {
		return rank.Tally{}, ErrMissingField
	}
	st, ok := s.status.Status(entityID)
	if !ok {
		return rank.Tally{}, xerrors.Wrapf(ErrEntityNotFound, "entity %q", entityID)
	}
	if st != vote.StatusOpen {
		s.ballots.Inc(ctx, metrics.L(LabelResult, ResultRejected))
		return rank.Tally{}, xerrors.Wrapf(ErrNotOpen, "entity %q is %s", entityID, st)
	}
	if !s.knownItem(entityID, itemID) {
		s.ballots.Inc(ctx, metrics.L(LabelResult, ResultRejected))
		return rank.Tally{}, xerrors.Wrapf(ErrUnknownItem, "item %q in entity %q", itemID, entityID)
	}

	ballot := Ballot{
		ID:       newBallotID(),
		EntityID: entityID,
		VoterID:  voterID,
		ItemID:   itemID,
		CastAt:   s.clock.Now(),
	}
	_, err := s.inv.Invoke(ctx, invoker.PolicyVote, func(ctx context.Context) (any, error) {
		return nil, s.backend.SubmitVote(ctx, ballot)
	})
	if err != nil {
		result := ResultFailed
		if xerrors.HasCode(err, xerrors.CodeConflict) {
			result = ResultDuplicate
		}
		s.ballots.Inc(ctx, metrics.L(LabelResult, result))
		return rank.Tally{}, err
	}

	total, err := invoker.Call(ctx, s.inv, invoker.PolicyTallyIncrement, func(ctx context.Context) (int64, error) {
		return s.backend.IncrementTally(ctx, entityID, itemID)
	})
	if err != nil {
		s.ballots.Inc(ctx, metrics.L(LabelResult, ResultPartial))
		s.logger.ErrorContext(ctx, "ballot recorded but tally increment failed",
			clog.String("entity_id", entityID),
			clog.String("item_id", itemID),
			clog.String("ballot_id", ballot.ID),
			clog.Error(err))
		return rank.Tally{}, xerrors.Join(ErrPartialVote, err)
	}

	s.ballots.Inc(ctx, metrics.L(LabelResult, ResultAccepted))
	tally, _ := s.ranks.Observe(entityID, itemID, total)
	return tally, nil
}

// Run 每个状态周期推导一次状态并拉取计票，直到 ctx 结束
func (s *Service) Run(ctx context.Context) error {
	period := s.status.TickPeriod()
	s.logger.Info("voting service started", clog.Duration("tick_period", period))
	for {
		s.Poll(ctx)
		if !s.clock.SleepFor(ctx, period) {
			s.logger.Info("voting service stopped")
			return ctx.Err()
		}
	}
}

// Poll 执行一个周期：推导状态，然后为 Open 的实体以及 Closed 但尚未冻结的实体拉取计票
func (s *Service) Poll(ctx context.Context) {
	s.status.Tick()
	now := s.clock.Now()
	for _, es := range s.status.Entities() {
		if es.Status == vote.StatusScheduled || (es.Status == vote.StatusClosed && s.ranks.Frozen(es.ID)) {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		s.refresh(ctx, es.ID, now)
	}
}

func (s *Service) refresh(ctx context.Context, entityID string, now time.Time) {
	p := s.pollerFor(entityID)

	s.mu.Lock()
	wait := now.Before(p.next)
	s.mu.Unlock()
	if wait {
		return
	}

	totals, err := invoker.Call(ctx, s.inv, invoker.PolicyTally, func(ctx context.Context) (map[string]int64, error) {
		return s.backend.FetchTallies(ctx, entityID)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		delay := p.backoff.Next()
		p.next = now.Add(delay)
		s.polls.Inc(ctx, metrics.L(LabelResult, ResultFailed))
		s.logger.WarnContext(ctx, "tally poll failed, backing off",
			clog.String("entity_id", entityID),
			clog.Duration("backoff", delay),
			clog.Error(err))
		return
	}
	p.backoff.Reset()
	p.next = time.Time{}

	applied := s.ranks.ObserveAll(entityID, totals)
	s.polls.Inc(ctx, metrics.L(LabelResult, ResultAccepted))
	s.logger.DebugContext(ctx, "tallies observed",
		clog.String("entity_id", entityID),
		clog.Int("items", len(totals)),
		clog.Int("applied", len(applied)))
}

func (s *Service) pollerFor(entityID string) *poller {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pollers[entityID]
	if !ok {
		b := goretry.DefaultBackoff()
		b.MinBackoff = s.cfg.PollBackoff.Min
		b.MaxBackoff = s.cfg.PollBackoff.Max
		p = &poller{backoff: &b}
		s.pollers[entityID] = p
	}
	return p
}

func (s *Service) knownItem(entityID, itemID string) bool {
	tallies := s.ranks.Tallies(entityID)
	if len(tallies) == 0 {
		return true
	}
	return slices.ContainsFunc(tallies, func(t rank.Tally) bool { return t.ItemID == itemID })
}

func newBallotID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
