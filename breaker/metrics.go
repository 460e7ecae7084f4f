package breaker

// 指标名称
const (
	MetricRequestsTotal = "breaker_requests_total"
	MetricFailuresTotal = "breaker_failures_total"
	MetricRejectsTotal  = "breaker_rejects_total"
	MetricStateChanges  = "breaker_state_changes_total"

	LabelService   = "service"
	LabelFromState = "from_state"
	LabelToState   = "to_state"
)
