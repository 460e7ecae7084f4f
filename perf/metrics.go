package perf

// MetricOperationDuration 记录的每个样本同步写入该直方图
const MetricOperationDuration = "perf_operation_duration_seconds"
