package ratelimit

import (
	"context"
	"sync"
	"time"

	clocks "github.com/vimeo/go-clocks"
	"golang.org/x/time/rate"

	"github.com/ceyewan/voteguard/clog"
)

// bucket 包装 rate.Limiter 并记录最后访问时间
type bucket struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

type standaloneLimiter struct {
	limit   Limit
	idle    time.Duration
	clock   clocks.Clock
	logger  clog.Logger
	metrics counters

	buckets sync.Map // key -> *bucket

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newStandalone(cfg Config, o options) *standaloneLimiter {
	ctx, cancel := context.WithCancel(context.Background())
	l := &standaloneLimiter{
		limit:   cfg.limit(),
		idle:    cfg.IdleTimeout,
		clock:   o.clock,
		logger:  o.logger,
		metrics: newCounters(o.meter, ModeStandalone),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go l.cleanupLoop(ctx, cfg.CleanupInterval)

	l.logger.Info("standalone rate limiter created",
		clog.Float64("rate", l.limit.Rate),
		clog.Int("burst", l.limit.Burst),
		clog.Duration("idle_timeout", l.idle))
	return l
}

func (l *standaloneLimiter) Limit() Limit { return l.limit }

func (l *standaloneLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *standaloneLimiter) AllowN(ctx context.Context, key string, n int) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}
	if n <= 0 {
		return false, ErrInvalidLimit
	}

	b := l.bucketFor(key)
	now := l.clock.Now()
	b.mu.Lock()
	allowed := b.limiter.AllowN(now, n)
	b.lastSeen = now
	b.mu.Unlock()

	l.metrics.record(ctx, allowed)
	l.logger.DebugContext(ctx, "rate limit check",
		clog.String("key", key),
		clog.Bool("allowed", allowed),
		clog.Int("requested", n))
	return allowed, nil
}

func (l *standaloneLimiter) bucketFor(key string) *bucket {
	if v, ok := l.buckets.Load(key); ok {
		return v.(*bucket)
	}
	b := &bucket{
		limiter:  rate.NewLimiter(rate.Limit(l.limit.Rate), l.limit.Burst),
		lastSeen: l.clock.Now(),
	}
	actual, _ := l.buckets.LoadOrStore(key, b)
	return actual.(*bucket)
}

// sweep 删除空闲超过 idle 的令牌桶，返回删除数量
func (l *standaloneLimiter) sweep() int {
	now := l.clock.Now()
	removed := 0
	l.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		idle := now.Sub(b.lastSeen)
		b.mu.Unlock()
		if idle > l.idle {
			l.buckets.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

func (l *standaloneLimiter) cleanupLoop(ctx context.Context, interval time.Duration) {
	defer close(l.done)
	for l.clock.SleepFor(ctx, interval) {
		if n := l.sweep(); n > 0 {
			l.logger.Debug("cleaned up idle buckets", clog.Int("count", n))
		}
	}
}

func (l *standaloneLimiter) Close() error {
	l.once.Do(func() {
		l.cancel()
		<-l.done
	})
	return nil
}
