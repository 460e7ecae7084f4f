package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ceyewan/voteguard/xerrors"
)

// api 层请求指标
const (
	MetricHTTPServerRequestTotal    = "voteguard_http_requests_total"
	MetricHTTPServerDurationSeconds = "voteguard_http_request_duration_seconds"
)

// 上限 15s 对应 vote 策略的单次超时
var defaultHTTPDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15}

// HTTPServerMetricsConfig api 层 HTTP 指标配置
type HTTPServerMetricsConfig struct {
	Service         string
	DurationBuckets []float64
}

// DefaultHTTPServerMetricsConfig 返回默认配置
func DefaultHTTPServerMetricsConfig(service string) *HTTPServerMetricsConfig {
	return &HTTPServerMetricsConfig{Service: service, DurationBuckets: defaultHTTPDurationBuckets}
}

// HTTPServerMetrics 请求计数与耗时，由 GinHTTPMiddleware 驱动
type HTTPServerMetrics struct {
	service  string
	total    Counter
	duration Histogram
}

// NewHTTPServerMetrics 创建 HTTP 服务端指标；m 为 nil 时不记录
func NewHTTPServerMetrics(m Meter, cfg *HTTPServerMetricsConfig) (*HTTPServerMetrics, error) {
	if m == nil {
		m = Discard()
	}
	if cfg == nil {
		cfg = DefaultHTTPServerMetricsConfig("")
	}
	service := strings.TrimSpace(cfg.Service)
	if service == "" {
		service = "voteguard"
	}
	buckets := cfg.DurationBuckets
	if len(buckets) == 0 {
		buckets = defaultHTTPDurationBuckets
	}

	total, err := m.Counter(MetricHTTPServerRequestTotal, "Number of HTTP requests served by the voteguard api")
	if err != nil {
		return nil, xerrors.Wrap(err, "create http request counter")
	}
	duration, err := m.Histogram(MetricHTTPServerDurationSeconds, "HTTP request latency in seconds",
		WithUnit("s"), WithBuckets(buckets))
	if err != nil {
		return nil, xerrors.Wrap(err, "create http request duration histogram")
	}
	return &HTTPServerMetrics{service: service, total: total, duration: duration}, nil
}

// Observe 记录一次请求。route 必须是路由模板，不能是原始路径
func (m *HTTPServerMetrics) Observe(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = http.MethodGet
	}
	if route == "" {
		route = UnknownRoute
	}
	labels := []Label{
		L(LabelService, m.service),
		L(LabelOperation, OperationHTTPServer),
		L(LabelMethod, strings.ToUpper(method)),
		L(LabelRoute, route),
		L(LabelStatusClass, HTTPStatusClass(status)),
		L(LabelOutcome, HTTPOutcome(status)),
	}
	m.total.Inc(ctx, labels...)
	m.duration.Record(ctx, d.Seconds(), labels...)
}
