package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m Meter) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNewDisabled(t *testing.T) {
	m, err := New(&Config{Enabled: false})
	require.NoError(t, err)
	assert.Equal(t, Discard(), m)

	c, err := m.Counter("noop_total", "noop")
	require.NoError(t, err)
	c.Inc(context.Background())

	rec := httptest.NewRecorder()
	Handler(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewInvalidConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{Enabled: true, Path: "metrics"})
	assert.Error(t, err)

	_, err = New(&Config{Enabled: true, Port: 70000})
	assert.Error(t, err)
}

func TestMeterExport(t *testing.T) {
	m, err := New(NewDevDefaultConfig("voteguard-test"))
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	ctx := context.Background()

	calls, err := m.Counter("invoker_calls_total", "受保护调用总数")
	require.NoError(t, err)
	calls.Inc(ctx, L(LabelPolicy, "vote"), L(LabelOutcome, OutcomeSuccess))
	calls.Add(ctx, 2, L(LabelPolicy, "vote"), L(LabelOutcome, OutcomeSuccess))
	calls.Add(ctx, -5, L(LabelPolicy, "vote"), L(LabelOutcome, OutcomeSuccess))

	pending, err := m.Gauge("queue_pending", "排队中的操作数")
	require.NoError(t, err)
	pending.Inc(ctx)
	pending.Inc(ctx)
	pending.Dec(ctx)

	dur, err := m.Histogram("invoker_call_duration_seconds", "调用耗时", WithUnit("s"), WithBuckets([]float64{0.1, 1}))
	require.NoError(t, err)
	dur.Record(ctx, 0.05, L(LabelPolicy, "vote"))

	body := scrape(t, m)
	assert.Contains(t, body, "invoker_calls_total{")
	assert.Contains(t, body, `policy="vote"`)
	assert.Regexp(t, `invoker_calls_total\{[^}]*\} 3`, body)
	assert.Regexp(t, `queue_pending(\{[^}]*\})? 1`, body)
	assert.Contains(t, body, `invoker_call_duration_seconds_bucket{`)
	assert.Contains(t, body, `le="0.1"`)
}

func TestSeparateRegistries(t *testing.T) {
	// 两个 Meter 互不干扰
	m1, err := New(NewDevDefaultConfig("a"))
	require.NoError(t, err)
	m2, err := New(NewDevDefaultConfig("b"))
	require.NoError(t, err)

	c1, _ := m1.Counter("only_in_first_total", "x")
	c1.Inc(context.Background())

	assert.Contains(t, scrape(t, m1), "only_in_first_total")
	assert.NotContains(t, scrape(t, m2), "only_in_first_total")
}

func TestHTTPStatusHelpers(t *testing.T) {
	tests := []struct {
		status  int
		class   string
		outcome string
	}{
		{200, "2xx", OutcomeSuccess},
		{304, "3xx", OutcomeSuccess},
		{409, "4xx", OutcomeError},
		{429, "4xx", OutcomeRejected},
		{502, "5xx", OutcomeError},
		{503, "5xx", OutcomeRejected},
		{42, "unknown", OutcomeError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.class, HTTPStatusClass(tt.status), tt.status)
		assert.Equal(t, tt.outcome, HTTPOutcome(tt.status), tt.status)
	}
}

func TestGinHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m, err := New(NewDevDefaultConfig("voteguard-test"))
	require.NoError(t, err)
	httpMetrics, err := NewHTTPServerMetrics(m, DefaultHTTPServerMetricsConfig("voteguard"))
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinHTTPMiddleware(httpMetrics))
	r.GET("/v1/entities/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, path := range []string{"/v1/entities/e1", "/v1/entities/e2", "/missing"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	body := scrape(t, m)
	assert.Contains(t, body, `route="/v1/entities/:id"`)
	assert.Contains(t, body, `route="unknown"`)
	assert.NotContains(t, body, "/v1/entities/e1")
}

func TestHTTPServerMetricsNil(t *testing.T) {
	var hm *HTTPServerMetrics
	hm.Observe(context.Background(), "GET", "/", 200, time.Millisecond)

	hm, err := NewHTTPServerMetrics(nil, nil)
	require.NoError(t, err)
	hm.Observe(context.Background(), "", "", 500, time.Millisecond)
}
