package rank

import (
	"sync"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/vote"
)

// StatusSource 提供实体的生命周期状态，*vote.Engine 实现了该接口
type StatusSource interface {
	Status(id string) (vote.Status, bool)
}

var _ StatusSource = (*vote.Engine)(nil)

// Engine 维护各实体的计票与排行，可并发使用
type Engine struct {
	status StatusSource
	topN   int
	logger clog.Logger

	mu     sync.RWMutex
	boards map[string]*board
}

type board struct {
	order   []string // 加载顺序
	tallies map[string]*Tally
	frozen  bool
}

// NewEngine 创建排行引擎。status 为 nil 时所有实体都视为 Open。
func NewEngine(status StatusSource, opts ...Option) *Engine {
	o := options{logger: clog.Discard(), topN: DefaultTopN}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		status: status,
		topN:   o.topN,
		logger: o.logger,
		boards: make(map[string]*board),
	}
}

// Load 按顺序登记候选项，计票从 0 开始。已存在的候选项保持不变。
func (e *Engine) Load(entityID string, itemIDs ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.boardLocked(entityID)
	for _, id := range itemIDs {
		b.add(entityID, id)
	}
}

// Observe 记录一次单个候选项的观察，返回更新后的计票以及是否生效。
//
// 以下情况观察被忽略：实体处于 Scheduled 或未被跟踪、排行已冻结、票数小于当前值。
// 实体 Closed 后的第一次观察仍然生效，随后排行冻结。
func (e *Engine) Observe(entityID, itemID string, total int64) (Tally, bool) {
	status, ok := e.statusOf(entityID)
	if !ok || status == vote.StatusScheduled {
		return Tally{EntityID: entityID, ItemID: itemID}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.boardLocked(entityID)
	if b.frozen {
		return b.get(entityID, itemID), false
	}
	t, applied := e.applyLocked(b, entityID, itemID, total)
	if status == vote.StatusClosed {
		e.freezeLocked(entityID, b)
	}
	return t, applied
}

// ObserveAll 记录一个完整的观察周期，返回生效的计票。
// 未出现在 totals 中的候选项保持不变，但其 Delta 清零。
func (e *Engine) ObserveAll(entityID string, totals map[string]int64) []Tally {
	status, ok := e.statusOf(entityID)
	if !ok || status == vote.StatusScheduled {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.boardLocked(entityID)
	if b.frozen {
		return nil
	}

	for id := range totals {
		b.add(entityID, id)
	}
	var applied []Tally
	for _, id := range b.order {
		total, seen := totals[id]
		if !seen {
			total = b.tallies[id].Current
		}
		if t, ok := e.applyLocked(b, entityID, id, total); ok && seen {
			applied = append(applied, t)
		}
	}
	if status == vote.StatusClosed {
		e.freezeLocked(entityID, b)
	}
	return applied
}

// View 返回实体的排行视图，n <= 0 时使用默认名次数。
// Scheduled 的实体按加载顺序返回全部候选项且不排名；未知实体返回空视图。
func (e *Engine) View(entityID string, n int) View {
	if n <= 0 {
		n = e.topN
	}
	status, _ := e.statusOf(entityID)

	e.mu.RLock()
	b, ok := e.boards[entityID]
	if !ok {
		e.mu.RUnlock()
		return View{EntityID: entityID, Status: status, Entries: []Entry{}}
	}
	tallies := make([]Tally, 0, len(b.order))
	for _, id := range b.order {
		tallies = append(tallies, *b.tallies[id])
	}
	e.mu.RUnlock()

	if status == vote.StatusScheduled {
		view := View{EntityID: entityID, Status: status, Entries: make([]Entry, 0, len(tallies))}
		for _, t := range tallies {
			view.Entries = append(view.Entries, Entry{ItemID: t.ItemID, Total: t.Current})
		}
		return view
	}

	view := Rank(tallies, n)
	view.EntityID = entityID
	view.Status = status
	return view
}

// Tallies 按加载顺序返回实体的全部计票
func (e *Engine) Tallies(entityID string) []Tally {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.boards[entityID]
	if !ok {
		return nil
	}
	out := make([]Tally, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.tallies[id])
	}
	return out
}

// Freeze 冻结实体的排行，之后的观察全部忽略
func (e *Engine) Freeze(entityID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.freezeLocked(entityID, e.boardLocked(entityID))
}

// Frozen 排行是否已冻结
func (e *Engine) Frozen(entityID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.boards[entityID]
	return ok && b.frozen
}

// Remove 丢弃实体的全部计票
func (e *Engine) Remove(entityID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.boards, entityID)
}

func (e *Engine) statusOf(entityID string) (vote.Status, bool) {
	if e.status == nil {
		return vote.StatusOpen, true
	}
	return e.status.Status(entityID)
}

func (e *Engine) boardLocked(entityID string) *board {
	b, ok := e.boards[entityID]
	if !ok {
		b = &board{tallies: make(map[string]*Tally)}
		e.boards[entityID] = b
	}
	return b
}

// applyLocked 先把当前值保存为 Previous 再覆盖；票数减少时忽略
func (e *Engine) applyLocked(b *board, entityID, itemID string, total int64) (Tally, bool) {
	t := b.add(entityID, itemID)
	if total < t.Current {
		e.logger.Debug("tally decrement ignored",
			clog.String("entity_id", entityID),
			clog.String("item_id", itemID),
			clog.Int64("current", t.Current),
			clog.Int64("observed", total))
		return *t, false
	}
	t.Previous = t.Current
	t.Current = total
	return *t, true
}

func (e *Engine) freezeLocked(entityID string, b *board) {
	if b.frozen {
		return
	}
	b.frozen = true
	e.logger.Info("leaderboard frozen", clog.String("entity_id", entityID), clog.Int("items", len(b.order)))
}

func (b *board) add(entityID, itemID string) *Tally {
	if t, ok := b.tallies[itemID]; ok {
		return t
	}
	t := &Tally{EntityID: entityID, ItemID: itemID}
	b.tallies[itemID] = t
	b.order = append(b.order, itemID)
	return t
}

func (b *board) get(entityID, itemID string) Tally {
	if t, ok := b.tallies[itemID]; ok {
		return *t
	}
	return Tally{EntityID: entityID, ItemID: itemID}
}
