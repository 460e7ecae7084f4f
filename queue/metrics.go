package queue

// 指标名称
const (
	MetricInFlight    = "queue_inflight"
	MetricPending     = "queue_pending"
	MetricWaitSeconds = "queue_wait_seconds"

	LabelQueue = "queue"
)
