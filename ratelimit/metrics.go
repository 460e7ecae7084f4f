package ratelimit

import (
	"context"

	"github.com/ceyewan/voteguard/metrics"
)

// 指标名称与标签
const (
	MetricAllowed = "voteguard_ratelimit_allowed_total"
	MetricDenied  = "voteguard_ratelimit_denied_total"

	LabelMode = "mode"
)

type counters struct {
	mode    string
	allowed metrics.Counter
	denied  metrics.Counter
}

func newCounters(m metrics.Meter, mode string) counters {
	c := counters{mode: mode}
	c.allowed, _ = m.Counter(MetricAllowed, "Number of requests allowed by the rate limiter")
	c.denied, _ = m.Counter(MetricDenied, "Number of requests denied by the rate limiter")
	return c
}

func (c counters) record(ctx context.Context, allowed bool) {
	counter := c.denied
	if allowed {
		counter = c.allowed
	}
	if counter != nil {
		counter.Inc(ctx, metrics.L(LabelMode, c.mode))
	}
}
