// Package queue 提供进程内的有界并发调度器（准入控制）。
//
// Queue 维护一个 FIFO 等待队列和在途计数，任意时刻在途操作数不超过 MaxConcurrent。
// 操作按提交顺序启动，但完成顺序不做保证。每个操作的结果都会通过其 Future 交付给调用方，
// 无论它在队列中等待了多久。
//
//	q := queue.New(&queue.Config{MaxConcurrent: 3}, queue.WithLogger(logger))
//	defer q.Close()
//
//	v, err := q.Do(ctx, func(ctx context.Context) (any, error) {
//		return client.Fetch(ctx, id)
//	})
package queue

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/metrics"
)

// DefaultMaxConcurrent 默认并发上限
const DefaultMaxConcurrent = 3

// Operation 被调度的操作
type Operation func(ctx context.Context) (any, error)

// Config 队列配置
type Config struct {
	// MaxConcurrent 同时执行的操作上限，默认 3
	MaxConcurrent int `mapstructure:"max_concurrent" yaml:"max_concurrent" json:"max_concurrent"`

	// RatePerSecond 启动速率上限，0 表示不限速
	RatePerSecond float64 `mapstructure:"rate_per_second" yaml:"rate_per_second" json:"rate_per_second"`

	// Burst 令牌桶容量，限速开启且未设置时取 1
	Burst int `mapstructure:"burst" yaml:"burst" json:"burst"`
}

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.MaxConcurrent <= 0 {
		out.MaxConcurrent = DefaultMaxConcurrent
	}
	if out.RatePerSecond > 0 && out.Burst <= 0 {
		out.Burst = 1
	}
	return out
}

// Stats 队列快照
type Stats struct {
	InFlight  int    `json:"in_flight"`
	Pending   int    `json:"pending"`
	Started   uint64 `json:"started"`
	Completed uint64 `json:"completed"`
}

// Queue 有界并发队列，零值不可用，请使用 New 创建
type Queue struct {
	cfg     Config
	name    string
	logger  clog.Logger
	limiter *rate.Limiter

	inflightGauge metrics.Gauge
	pendingGauge  metrics.Gauge
	waitHist      metrics.Histogram

	mu        sync.Mutex
	pending   *list.List // of *job
	inFlight  int
	started   uint64
	completed uint64
	closed    bool
}

type job struct {
	ctx      context.Context
	op       Operation
	fut      *Future
	enqueued time.Time
	elem     *list.Element // 非 nil 表示仍在等待队列中
	stop     func() bool
}

// New 创建队列。cfg 为 nil 时使用默认配置。
func New(cfg *Config, opts ...Option) *Queue {
	o := options{logger: clog.Discard(), meter: metrics.Discard(), name: "default"}
	for _, opt := range opts {
		opt(&o)
	}

	q := &Queue{
		cfg:     cfg.withDefaults(),
		name:    o.name,
		logger:  o.logger,
		pending: list.New(),
	}
	if q.cfg.RatePerSecond > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(q.cfg.RatePerSecond), q.cfg.Burst)
	}

	q.inflightGauge = gauge(o.meter, MetricInFlight, "Operations currently executing")
	q.pendingGauge = gauge(o.meter, MetricPending, "Operations waiting for a slot")
	q.waitHist = histogram(o.meter, MetricWaitSeconds, "Time spent waiting for a slot")

	q.logger.Info("request queue created",
		clog.String("queue", q.name),
		clog.Int("max_concurrent", q.cfg.MaxConcurrent),
		clog.Float64("rate_per_second", q.cfg.RatePerSecond))
	return q
}

// Add 提交操作，立即返回 Future。
// 等待期间 ctx 被取消时，操作不会启动，Future 以 ctx 的错误结束。
func (q *Queue) Add(ctx context.Context, op Operation) *Future {
	fut := newFuture()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		fut.settle(nil, ErrClosed)
		return fut
	}
	if err := ctx.Err(); err != nil {
		fut.settle(nil, err)
		return fut
	}

	j := &job{ctx: ctx, op: op, fut: fut, enqueued: time.Now()}
	j.elem = q.pending.PushBack(j)
	j.stop = context.AfterFunc(ctx, func() { q.cancelPending(j) })

	q.tryStartNextLocked()
	q.reportLocked()
	return fut
}

// Do 提交操作并等待结果
func (q *Queue) Do(ctx context.Context, op Operation) (any, error) {
	return q.Add(ctx, op).Wait(ctx)
}

// Stats 返回当前快照
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		InFlight:  q.inFlight,
		Pending:   q.pending.Len(),
		Started:   q.started,
		Completed: q.completed,
	}
}

// Close 拒绝新的提交，并以 ErrClosed 结束所有等待中的操作。
// 已经启动的操作继续执行至完成。可重复调用。
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true

	dropped := q.pending.Len()
	for e := q.pending.Front(); e != nil; e = q.pending.Front() {
		j := q.pending.Remove(e).(*job)
		j.elem = nil
		j.stop()
		j.fut.settle(nil, ErrClosed)
	}
	q.reportLocked()
	q.logger.Info("request queue closed", clog.String("queue", q.name), clog.Int("dropped", dropped))
	return nil
}

// tryStartNextLocked 在持有 mu 时调用：只要有空闲槽位就按 FIFO 启动等待的操作
func (q *Queue) tryStartNextLocked() {
	for q.inFlight < q.cfg.MaxConcurrent && q.pending.Len() > 0 {
		j := q.pending.Remove(q.pending.Front()).(*job)
		j.elem = nil
		j.stop()

		q.inFlight++
		q.started++
		q.waitHist.Record(context.Background(), time.Since(j.enqueued).Seconds(), metrics.L(LabelQueue, q.name))
		go q.run(j)
	}
}

func (q *Queue) run(j *job) {
	defer q.finish()

	if q.limiter != nil {
		if err := q.limiter.Wait(j.ctx); err != nil {
			j.fut.settle(nil, err)
			return
		}
	}
	v, err := call(j.ctx, j.op)
	j.fut.settle(v, err)
}

func (q *Queue) finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight--
	q.completed++
	q.tryStartNextLocked()
	q.reportLocked()
}

// cancelPending 由 ctx 取消触发，只处理仍在等待的操作
func (q *Queue) cancelPending(j *job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j.elem == nil {
		return
	}
	q.pending.Remove(j.elem)
	j.elem = nil
	j.fut.settle(nil, context.Cause(j.ctx))
	q.reportLocked()
	q.logger.Debug("pending operation canceled", clog.String("queue", q.name))
}

func (q *Queue) reportLocked() {
	ctx := context.Background()
	label := metrics.L(LabelQueue, q.name)
	q.inflightGauge.Set(ctx, float64(q.inFlight), label)
	q.pendingGauge.Set(ctx, float64(q.pending.Len()), label)
}

// call 执行操作，panic 转换为错误，保证槽位总能释放
func call(ctx context.Context, op Operation) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrOperationPanic, r)
		}
	}()
	return op(ctx)
}

// 指标创建失败时退化为空操作，不影响调度
func gauge(m metrics.Meter, name, desc string) metrics.Gauge {
	g, err := m.Gauge(name, desc)
	if err != nil {
		g, _ = metrics.Discard().Gauge(name, desc)
	}
	return g
}

func histogram(m metrics.Meter, name, desc string) metrics.Histogram {
	h, err := m.Histogram(name, desc, metrics.WithUnit("s"))
	if err != nil {
		h, _ = metrics.Discard().Histogram(name, desc)
	}
	return h
}
