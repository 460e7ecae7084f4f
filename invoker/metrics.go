package invoker

// 指标名称
const (
	MetricCallsTotal   = "invoker_calls_total"
	MetricRetriesTotal = "invoker_retries_total"
	MetricCallDuration = "invoker_call_duration_seconds"
)
