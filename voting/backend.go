package voting

import (
	"context"
	"time"
)

// Ballot 一张选票
type Ballot struct {
	ID       string    `msgpack:"id" json:"id"`
	EntityID string    `msgpack:"entity_id" json:"entity_id"`
	VoterID  string    `msgpack:"voter_id" json:"voter_id"`
	ItemID   string    `msgpack:"item_id" json:"item_id"`
	CastAt   time.Time `msgpack:"cast_at" json:"cast_at"`
}

// Backend 远程投票存储。错误应带有 xerrors 分类码：
// 重复投票为 CONFLICT，连接失败为 DB_CONNECTION。
type Backend interface {
	// SubmitVote 记录选票，同一投票人在同一实体中只能投一次。
	// 对同一 Ballot.ID 必须幂等：重复提交返回 nil。
	SubmitVote(ctx context.Context, b Ballot) error

	// IncrementTally 为候选项加一票并返回新的总数
	IncrementTally(ctx context.Context, entityID, itemID string) (int64, error)

	// FetchTallies 返回实体所有候选项的票数
	FetchTallies(ctx context.Context, entityID string) (map[string]int64, error)
}
