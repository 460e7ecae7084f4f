package perf

import (
	"sync"
	"time"
)

// window 固定容量的环形缓冲区，写满后覆盖最旧的样本
type window struct {
	mu     sync.Mutex
	buffer []Sample
	index  int // 下一个写入位置
	total  int // 已写入的样本数，不超过容量
}

func newWindow(size int) *window {
	return &window{buffer: make([]Sample, size)}
}

func (w *window) add(s Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buffer[w.index] = s
	w.index = (w.index + 1) % len(w.buffer)
	if w.total < len(w.buffer) {
		w.total++
	}
}

// samples 从最旧到最新
func (w *window) samples() []Sample {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Sample, 0, w.total)
	start := (w.index - w.total + len(w.buffer)) % len(w.buffer)
	for i := 0; i < w.total; i++ {
		out = append(out, w.buffer[(start+i)%len(w.buffer)])
	}
	return out
}

func (w *window) stats(key string) Stats {
	samples := w.samples()
	st := Stats{Key: key, Count: len(samples)}
	if len(samples) == 0 {
		return st
	}

	var sum time.Duration
	st.Min = samples[0].Duration
	for _, s := range samples {
		sum += s.Duration
		st.Min = min(st.Min, s.Duration)
		st.Max = max(st.Max, s.Duration)
		if !s.Success {
			st.Failures++
		}
	}
	st.Average = sum / time.Duration(len(samples))
	st.Last = samples[len(samples)-1].Duration
	return st
}
