// Package rank 为投票实体的候选项排序，并记录每次观察之间的变化量。
//
// Rank 是纯函数：按票数降序、itemID 升序排序后截取前 n 个。
// Engine 维护每个实体的计票，在覆盖新值之前保存旧值，用于计算 Delta 驱动前端动画。
package rank

import (
	"cmp"
	"slices"

	"github.com/ceyewan/voteguard/vote"
)

// DefaultTopN 默认展示的名次数
const DefaultTopN = 3

// Tally 候选项的计票
type Tally struct {
	EntityID string `json:"entity_id"`
	ItemID   string `json:"item_id"`
	Current  int64  `json:"current"`
	Previous int64  `json:"previous"`
}

// Delta 最近一次观察带来的变化
func (t Tally) Delta() int64 {
	return t.Current - t.Previous
}

// Entry 排行中的一项。未排名的视图中 Rank 为 0。
type Entry struct {
	Rank    int    `json:"rank"`
	ItemID  string `json:"item_id"`
	Total   int64  `json:"total"`
	Delta   int64  `json:"delta"`
	Changed bool   `json:"changed"`
}

// View 实体的排行视图。Entries 为空表示暂无数据，不是错误。
type View struct {
	EntityID string      `json:"entity_id"`
	Status   vote.Status `json:"status"`
	Ranked   bool        `json:"ranked"`
	Entries  []Entry     `json:"entries"`
}

// Rank 排序并截取前 n 个，n <= 0 时取 DefaultTopN。不修改 tallies。
func Rank(tallies []Tally, n int) View {
	if n <= 0 {
		n = DefaultTopN
	}
	view := View{Ranked: true, Entries: []Entry{}}
	if len(tallies) == 0 {
		return view
	}
	view.EntityID = tallies[0].EntityID

	sorted := slices.Clone(tallies)
	slices.SortStableFunc(sorted, func(a, b Tally) int {
		if c := cmp.Compare(b.Current, a.Current); c != 0 {
			return c
		}
		return cmp.Compare(a.ItemID, b.ItemID)
	})

	for i, t := range sorted[:min(n, len(sorted))] {
		view.Entries = append(view.Entries, entryOf(t, i+1))
	}
	return view
}

func entryOf(t Tally, rank int) Entry {
	d := t.Delta()
	return Entry{Rank: rank, ItemID: t.ItemID, Total: t.Current, Delta: d, Changed: d != 0}
}
