package voting

// 指标名称
const (
	MetricBallotsTotal = "voting_ballots_total"
	MetricPollsTotal   = "voting_tally_polls_total"

	LabelResult = "result"
)

// 选票结果
const (
	ResultAccepted  = "accepted"
	ResultDuplicate = "duplicate"
	ResultRejected  = "rejected"
	ResultPartial   = "partial"
	ResultFailed    = "failed"
)
