// Package metrics 是 voteguard 的指标组件，基于 OpenTelemetry SDK 构建，
// 通过 Prometheus exporter 暴露。
//
// 组件通过 WithMeter 注入 Meter，未注入时使用 Discard()，所有记录都是空操作。
//
//	meter, err := metrics.New(&metrics.Config{Enabled: true, ServiceName: "voteguard", Port: 9090, Path: "/metrics"})
//	counter, _ := meter.Counter("invoker_calls_total", "受保护调用总数")
//	counter.Inc(ctx, metrics.L("policy", "vote"), metrics.L("outcome", "success"))
package metrics

import "context"

// Counter 只增不减的累计值
type Counter interface {
	Inc(ctx context.Context, labels ...Label)
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 可任意增减的瞬时值，例如队列长度
type Gauge interface {
	Set(ctx context.Context, val float64, labels ...Label)
	Inc(ctx context.Context, labels ...Label)
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 值的分布，例如调用耗时
type Histogram interface {
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标工厂，创建的指标可在多个 goroutine 中并发使用
type Meter interface {
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)

	// Shutdown 刷新并关闭，之后的记录会被忽略
	Shutdown(ctx context.Context) error
}

// MetricOption 创建指标时的选项
type MetricOption func(*MetricOptions)

type MetricOptions struct {
	Unit    string
	Buckets []float64 // 仅对 Histogram 生效
}

// WithUnit 设置单位，建议使用 UCUM 代码，例如 "s"、"By"
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}

// WithBuckets 设置 Histogram 的显式桶边界
func WithBuckets(buckets []float64) MetricOption {
	return func(o *MetricOptions) {
		o.Buckets = append([]float64(nil), buckets...)
	}
}

func applyMetricOptions(opts []MetricOption) *MetricOptions {
	o := &MetricOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
