// Package perf 按操作名记录最近的调用耗时。
//
// 每个 key 保留最近 WindowSize（默认 100）个样本的环形缓冲，平均值等统计在读取时计算。
// key 的注册表由 otter 维护，超过 MaxKeys 时淘汰最少使用的 key。
package perf

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"
	clocks "github.com/vimeo/go-clocks"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/metrics"
	"github.com/ceyewan/voteguard/xerrors"
)

// 默认值
const (
	DefaultWindowSize = 100
	DefaultMaxKeys    = 1024
)

// Config 记录器配置
type Config struct {
	WindowSize int `mapstructure:"window_size" yaml:"window_size" json:"window_size"`
	MaxKeys    int `mapstructure:"max_keys" yaml:"max_keys" json:"max_keys"`
}

// Sample 一次调用的观测
type Sample struct {
	Key      string
	Duration time.Duration
	Success  bool
	At       time.Time
}

// Stats 单个 key 窗口内的统计
type Stats struct {
	Key      string        `json:"key"`
	Count    int           `json:"count"`
	Failures int           `json:"failures"`
	Average  time.Duration `json:"average"`
	Min      time.Duration `json:"min"`
	Max      time.Duration `json:"max"`
	Last     time.Duration `json:"last"`
}

// Recorder 性能记录器，可并发使用
type Recorder struct {
	windowSize int
	windows    *otter.Cache[string, *window]
	clock      clocks.Clock
	logger     clog.Logger
	duration   metrics.Histogram
}

// New 创建记录器。cfg 为 nil 时使用默认配置。
func New(cfg *Config, opts ...Option) (*Recorder, error) {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.MaxKeys <= 0 {
		c.MaxKeys = DefaultMaxKeys
	}

	o := options{logger: clog.Discard(), meter: metrics.Discard(), clock: clocks.DefaultClock()}
	for _, opt := range opts {
		opt(&o)
	}

	windows, err := otter.New(&otter.Options[string, *window]{
		MaximumSize: c.MaxKeys,
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to build window registry")
	}

	hist, err := o.meter.Histogram(MetricOperationDuration, "Duration of recorded operations",
		metrics.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Recorder{
		windowSize: c.WindowSize,
		windows:    windows,
		clock:      o.clock,
		logger:     o.logger,
		duration:   hist,
	}, nil
}

// Record 记录一次调用
func (r *Recorder) Record(key string, d time.Duration, ok bool) {
	if key == "" {
		return
	}
	if d < 0 {
		d = 0
	}
	r.windowFor(key).add(Sample{Key: key, Duration: d, Success: ok, At: r.clock.Now()})

	outcome := metrics.OutcomeSuccess
	if !ok {
		outcome = metrics.OutcomeError
	}
	r.duration.Record(context.Background(), d.Seconds(),
		metrics.L(metrics.LabelOperation, key),
		metrics.L(metrics.LabelOutcome, outcome))
}

// Average 返回 key 窗口内的平均耗时，没有样本时为 0
func (r *Recorder) Average(key string) time.Duration {
	return r.Stats(key).Average
}

// Stats 返回 key 的统计，未知 key 返回零值统计
func (r *Recorder) Stats(key string) Stats {
	w, ok := r.windows.GetIfPresent(key)
	if !ok {
		return Stats{Key: key}
	}
	return w.stats(key)
}

// Samples 按时间顺序返回 key 窗口内的样本
func (r *Recorder) Samples(key string) []Sample {
	w, ok := r.windows.GetIfPresent(key)
	if !ok {
		return nil
	}
	return w.samples()
}

// Snapshot 返回所有 key 的统计
func (r *Recorder) Snapshot() map[string]Stats {
	out := make(map[string]Stats)
	for key, w := range r.windows.All() {
		out[key] = w.stats(key)
	}
	return out
}

// Reset 丢弃 key 的样本
func (r *Recorder) Reset(key string) {
	if _, ok := r.windows.Invalidate(key); ok {
		r.logger.Debug("performance window reset", clog.String("operation", key))
	}
}

func (r *Recorder) windowFor(key string) *window {
	if w, ok := r.windows.GetIfPresent(key); ok {
		return w
	}
	w, _ := r.windows.SetIfAbsent(key, newWindow(r.windowSize))
	return w
}
