package vote

// 指标名称
const (
	MetricStatusTransitions = "vote_status_transitions_total"
	MetricEntities          = "vote_entities"

	LabelFrom   = "from"
	LabelTo     = "to"
	LabelStatus = "status"
)
