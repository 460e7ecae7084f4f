package vote

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	clocks "github.com/vimeo/go-clocks"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/metrics"
	"github.com/ceyewan/voteguard/xerrors"
)

// DefaultTickPeriod 默认重新计算周期
const DefaultTickPeriod = time.Second

// Config 引擎配置
type Config struct {
	TickPeriod time.Duration `mapstructure:"tick_period" yaml:"tick_period" json:"tick_period"`
}

// Engine 跟踪一组投票实体并周期性地重新推导状态
type Engine struct {
	period       time.Duration
	clock        clocks.Clock
	logger       clog.Logger
	onTransition []func(Transition)

	transitions metrics.Counter
	gauge       metrics.Gauge

	mu       sync.RWMutex
	entities map[string]*tracked
}

type tracked struct {
	entity   Entity
	observed Status // 上一次 Tick 观察到的状态，只增不减
}

// NewEngine 创建状态引擎。cfg 为 nil 时使用默认配置。
func NewEngine(cfg *Config, opts ...Option) (*Engine, error) {
	period := DefaultTickPeriod
	if cfg != nil && cfg.TickPeriod > 0 {
		period = cfg.TickPeriod
	}

	o := options{logger: clog.Discard(), meter: metrics.Discard(), clock: clocks.DefaultClock()}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		period:       period,
		clock:        o.clock,
		logger:       o.logger,
		onTransition: o.onTransition,
		entities:     make(map[string]*tracked),
	}

	var err error
	if e.transitions, err = o.meter.Counter(MetricStatusTransitions, "Observed voting entity status transitions"); err != nil {
		return nil, err
	}
	if e.gauge, err = o.meter.Gauge(MetricEntities, "Tracked voting entities by status"); err != nil {
		return nil, err
	}
	return e, nil
}

// Register 开始跟踪实体。重复注册会替换时间窗口，并以当前时刻的状态作为新的起点。
func (e *Engine) Register(id string, start, stop time.Time) error {
	if id == "" {
		return ErrEntityIDEmpty
	}
	if !start.IsZero() && !stop.IsZero() && stop.Before(start) {
		return xerrors.Wrapf(ErrInvalidWindow, "entity %q", id)
	}

	ent := Entity{ID: id, StartAt: start, StopAt: stop}
	status := ent.StatusAt(e.clock.Now())

	e.mu.Lock()
	e.entities[id] = &tracked{entity: ent, observed: status}
	e.mu.Unlock()

	e.logger.Info("voting entity registered",
		clog.String("entity_id", id),
		clog.Time("start_at", start),
		clog.Time("stop_at", stop),
		clog.String("status", status.String()))
	return nil
}

// Unregister 停止跟踪实体
func (e *Engine) Unregister(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.entities[id]; !ok {
		return false
	}
	delete(e.entities, id)
	return true
}

// Entity 返回实体的时间窗口
func (e *Engine) Entity(id string) (Entity, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.entities[id]
	if !ok {
		return Entity{}, false
	}
	return t.entity, true
}

// Status 返回实体当前的状态。未跟踪的实体返回 false。
func (e *Engine) Status(id string) (Status, bool) {
	now := e.clock.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.entities[id]
	if !ok {
		return StatusScheduled, false
	}
	return max(t.entity.StatusAt(now), t.observed), true
}

// Entities 按 ID 排序返回所有实体及其当前状态
func (e *Engine) Entities() []EntityStatus {
	now := e.clock.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]EntityStatus, 0, len(e.entities))
	for _, id := range slices.Sorted(maps.Keys(e.entities)) {
		t := e.entities[id]
		out = append(out, EntityStatus{Entity: t.entity, Status: max(t.entity.StatusAt(now), t.observed)})
	}
	return out
}

// Tick 在当前时刻重新计算所有实体的状态，返回本次观察到的转换
func (e *Engine) Tick() []Transition {
	return e.tickAt(e.clock.Now())
}

func (e *Engine) tickAt(now time.Time) []Transition {
	var (
		out    []Transition
		counts = make(map[Status]int, 3)
	)

	e.mu.Lock()
	for _, id := range slices.Sorted(maps.Keys(e.entities)) {
		t := e.entities[id]
		derived := t.entity.StatusAt(now)
		switch {
		case derived > t.observed:
			out = append(out, Transition{ID: id, From: t.observed, To: derived, At: now})
			t.observed = derived
		case derived < t.observed:
			// 时钟回拨，保持已观察到的状态
			e.logger.Warn("status regression ignored",
				clog.String("entity_id", id),
				clog.String("observed", t.observed.String()),
				clog.String("derived", derived.String()))
		}
		counts[t.observed]++
	}
	e.mu.Unlock()

	ctx := context.Background()
	for _, s := range []Status{StatusScheduled, StatusOpen, StatusClosed} {
		e.gauge.Set(ctx, float64(counts[s]), metrics.L(LabelStatus, s.String()))
	}
	for _, tr := range out {
		e.transitions.Inc(ctx, metrics.L(LabelFrom, tr.From.String()), metrics.L(LabelTo, tr.To.String()))
		e.logger.Info("voting entity status changed",
			clog.String("entity_id", tr.ID),
			clog.String("from", tr.From.String()),
			clog.String("to", tr.To.String()))
		for _, fn := range e.onTransition {
			fn(tr)
		}
	}
	return out
}

// Run 每个 TickPeriod 调用一次 Tick，直到 ctx 结束
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("status engine started", clog.Duration("tick_period", e.period))
	for {
		e.Tick()
		if !e.clock.SleepFor(ctx, e.period) {
			e.logger.Info("status engine stopped")
			return ctx.Err()
		}
	}
}

// TickPeriod 返回重新计算周期
func (e *Engine) TickPeriod() time.Duration {
	return e.period
}
