package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/xerrors"
)

// New 创建 Meter。cfg.Enabled 为 false 时返回 Discard()。
//
// 每个 Meter 使用独立的 prometheus.Registry，多次 New 不会互相冲突。
func New(cfg *Config, opts ...Option) (Meter, error) {
	if cfg == nil {
		return nil, xerrors.Newf(xerrors.CodeInvalidInput, "metrics config is required")
	}
	if !cfg.Enabled {
		return Discard(), nil
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
		),
	)
	if err != nil {
		return nil, xerrors.Wrap(err, "create otel resource")
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, xerrors.Wrap(err, "create prometheus exporter")
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	// redisotel 等使用全局 Provider 的埋点也写入同一个 registry
	otel.SetMeterProvider(mp)

	if cfg.EnableRuntime {
		if err := otelruntime.Start(otelruntime.WithMeterProvider(mp)); err != nil {
			return nil, xerrors.Wrap(err, "start runtime metrics")
		}
	}

	m := &meterImpl{
		meter:    mp.Meter("github.com/ceyewan/voteguard"),
		provider: mp,
		registry: registry,
		logger:   o.logger,
	}

	if cfg.Port > 0 {
		mux := http.NewServeMux()
		mux.Handle(cfg.Path, m.Handler())
		m.server = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			m.logger.Info("starting prometheus metrics server", clog.String("addr", m.server.Addr), clog.String("path", cfg.Path))
			if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.logger.Error("prometheus metrics server stopped", clog.Error(err))
			}
		}()
	}

	return m, nil
}

// Must 类似 New，出错时 panic。仅用于初始化阶段。
func Must(cfg *Config, opts ...Option) Meter {
	return xerrors.Must(New(cfg, opts...))
}

// Handler 返回 Prometheus 抓取端点；Discard() 等非 OTel 实现返回 404 handler
func Handler(m Meter) http.Handler {
	if impl, ok := m.(*meterImpl); ok {
		return impl.Handler()
	}
	return http.NotFoundHandler()
}

type meterImpl struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry
	server   *http.Server
	logger   clog.Logger
}

func (m *meterImpl) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *meterImpl) Counter(name string, desc string, opts ...MetricOption) (Counter, error) {
	o := applyMetricOptions(opts)
	copts := []metric.Float64CounterOption{metric.WithDescription(desc)}
	if o.Unit != "" {
		copts = append(copts, metric.WithUnit(o.Unit))
	}
	c, err := m.meter.Float64Counter(name, copts...)
	if err != nil {
		return nil, xerrors.Wrapf(err, "create counter %s", name)
	}
	return &counterImpl{c: c}, nil
}

func (m *meterImpl) Gauge(name string, desc string, opts ...MetricOption) (Gauge, error) {
	o := applyMetricOptions(opts)
	gopts := []metric.Float64GaugeOption{metric.WithDescription(desc)}
	if o.Unit != "" {
		gopts = append(gopts, metric.WithUnit(o.Unit))
	}
	g, err := m.meter.Float64Gauge(name, gopts...)
	if err != nil {
		return nil, xerrors.Wrapf(err, "create gauge %s", name)
	}
	return &gaugeImpl{g: g, values: make(map[string]float64)}, nil
}

func (m *meterImpl) Histogram(name string, desc string, opts ...MetricOption) (Histogram, error) {
	o := applyMetricOptions(opts)
	hopts := []metric.Float64HistogramOption{metric.WithDescription(desc)}
	if o.Unit != "" {
		hopts = append(hopts, metric.WithUnit(o.Unit))
	}
	if len(o.Buckets) > 0 {
		hopts = append(hopts, metric.WithExplicitBucketBoundaries(o.Buckets...))
	}
	h, err := m.meter.Float64Histogram(name, hopts...)
	if err != nil {
		return nil, xerrors.Wrapf(err, "create histogram %s", name)
	}
	return &histogramImpl{h: h}, nil
}

func (m *meterImpl) Shutdown(ctx context.Context) error {
	var c xerrors.Collector
	if m.server != nil {
		c.Collect(m.server.Shutdown(ctx))
	}
	c.Collect(m.provider.Shutdown(ctx))
	return c.Err()
}

type counterImpl struct {
	c metric.Float64Counter
}

func (c *counterImpl) Inc(ctx context.Context, labels ...Label) {
	c.c.Add(ctx, 1, metric.WithAttributes(toAttributes(labels)...))
}

func (c *counterImpl) Add(ctx context.Context, val float64, labels ...Label) {
	if val < 0 {
		return
	}
	c.c.Add(ctx, val, metric.WithAttributes(toAttributes(labels)...))
}

// gaugeImpl 在本地维护每组标签的当前值，以支持 Inc/Dec
type gaugeImpl struct {
	g      metric.Float64Gauge
	mu     sync.Mutex
	values map[string]float64
}

func (g *gaugeImpl) Set(ctx context.Context, val float64, labels ...Label) {
	g.mu.Lock()
	g.values[labelKey(labels)] = val
	g.mu.Unlock()
	g.g.Record(ctx, val, metric.WithAttributes(toAttributes(labels)...))
}

func (g *gaugeImpl) Inc(ctx context.Context, labels ...Label) {
	g.add(ctx, 1, labels)
}

func (g *gaugeImpl) Dec(ctx context.Context, labels ...Label) {
	g.add(ctx, -1, labels)
}

func (g *gaugeImpl) add(ctx context.Context, delta float64, labels []Label) {
	key := labelKey(labels)
	g.mu.Lock()
	g.values[key] += delta
	val := g.values[key]
	g.mu.Unlock()
	g.g.Record(ctx, val, metric.WithAttributes(toAttributes(labels)...))
}

type histogramImpl struct {
	h metric.Float64Histogram
}

func (h *histogramImpl) Record(ctx context.Context, val float64, labels ...Label) {
	h.h.Record(ctx, val, metric.WithAttributes(toAttributes(labels)...))
}

func toAttributes(labels []Label) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, len(labels))
	for i, l := range labels {
		attrs[i] = attribute.String(l.Key, l.Value)
	}
	return attrs
}

func labelKey(labels []Label) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = l.Key + "=" + l.Value
	}
	return strings.Join(parts, "|")
}
