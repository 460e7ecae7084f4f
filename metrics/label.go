package metrics

// Label 指标标签。标签值应当是低基数的，例如策略名、结果，不要放 call_id 或 voter_id。
type Label struct {
	Key   string
	Value string
}

// L 创建 Label
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}
