package voting

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/voteguard/xerrors"
)

// DefaultKeyPrefix Redis key 前缀
const DefaultKeyPrefix = "voteguard:"

// RedisBackend 基于 Redis 的 Backend：
//   - 选票：<prefix>entity:{id}:ballot:{voter}，SETNX 写入 msgpack 编码的 Ballot
//   - 计票：<prefix>entity:{id}:tallies，哈希，字段为候选项 ID
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBackend 创建 Redis 后端，prefix 为空时使用 DefaultKeyPrefix
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

var _ Backend = (*RedisBackend)(nil)

func (r *RedisBackend) ballotKey(entityID, voterID string) string {
	return fmt.Sprintf("%sentity:{%s}:ballot:%s", r.prefix, entityID, voterID)
}

func (r *RedisBackend) talliesKey(entityID string) string {
	return fmt.Sprintf("%sentity:{%s}:tallies", r.prefix, entityID)
}

// SubmitVote 写入选票。同一 ID 的选票重复提交视为成功，
// 这样前一次写入成功但应答丢失时，重试不会被误判为重复投票。
func (r *RedisBackend) SubmitVote(ctx context.Context, b Ballot) error {
	data, err := msgpack.Marshal(&b)
	if err != nil {
		return xerrors.Wrap(err, "encode ballot")
	}

	ok, err := r.client.SetNX(ctx, r.ballotKey(b.EntityID, b.VoterID), data, 0).Result()
	if err != nil {
		return storeError(err, "submit ballot")
	}
	if ok {
		return nil
	}

	stored, err := r.Ballot(ctx, b.EntityID, b.VoterID)
	if err != nil {
		return err
	}
	if stored.ID == b.ID {
		return nil
	}
	return xerrors.Wrapf(xerrors.ErrConflict, "voter %q already voted in %q", b.VoterID, b.EntityID)
}

func (r *RedisBackend) IncrementTally(ctx context.Context, entityID, itemID string) (int64, error) {
	n, err := r.client.HIncrBy(ctx, r.talliesKey(entityID), itemID, 1).Result()
	if err != nil {
		return 0, storeError(err, "increment tally")
	}
	return n, nil
}

func (r *RedisBackend) FetchTallies(ctx context.Context, entityID string) (map[string]int64, error) {
	raw, err := r.client.HGetAll(ctx, r.talliesKey(entityID)).Result()
	if err != nil {
		return nil, storeError(err, "fetch tallies")
	}

	out := make(map[string]int64, len(raw))
	for item, s := range raw {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, xerrors.Wrapf(err, "parse tally of %q", item)
		}
		out[item] = n
	}
	return out, nil
}

// Ballot 读取投票人在实体中的选票，不存在时返回 ErrNotFound
func (r *RedisBackend) Ballot(ctx context.Context, entityID, voterID string) (Ballot, error) {
	data, err := r.client.Get(ctx, r.ballotKey(entityID, voterID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Ballot{}, xerrors.Wrapf(xerrors.ErrNotFound, "ballot of %q in %q", voterID, entityID)
	}
	if err != nil {
		return Ballot{}, storeError(err, "load ballot")
	}

	var b Ballot
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return Ballot{}, xerrors.Wrap(err, "decode ballot")
	}
	return b, nil
}

// storeError 为存储错误打上分类码，ctx 错误原样保留
func storeError(err error, op string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(err, op)
	}
	return xerrors.WithCode(xerrors.Wrap(err, op), xerrors.CodeDBConnection)
}
