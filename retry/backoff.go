package retry

import (
	"math"
	"time"
)

// MinJitteredDelay 启用抖动时返回值的下限
const MinJitteredDelay = 100 * time.Millisecond

// Backoff 计算第 attempt 次重试（从 0 开始）前的等待时间。
//
//	base = min(InitialDelay * BackoffFactor^attempt, MaxDelay)
//
// 启用 Jitter 时结果在 [0.75*base, 1.25*base] 上均匀分布，且不低于 100ms。
// random 返回 [0, 1) 上的随机数，为 nil 时不加抖动；测试可以注入固定值。
func Backoff(attempt int, p Policy, random func() float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := p.BackoffFactor
	if factor < 1 {
		factor = DefaultBackoffFactor
	}
	maxDelay := p.MaxDelay
	if maxDelay < p.InitialDelay {
		maxDelay = p.InitialDelay
	}

	base := float64(p.InitialDelay) * math.Pow(factor, float64(attempt))
	if math.IsInf(base, 0) || math.IsNaN(base) || base > float64(maxDelay) {
		base = float64(maxDelay)
	}

	if !p.Jitter || random == nil {
		return time.Duration(base)
	}

	d := time.Duration(base * (0.75 + 0.5*random()))
	if d < MinJitteredDelay {
		d = MinJitteredDelay
	}
	return d
}
