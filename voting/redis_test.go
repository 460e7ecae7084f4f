package voting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/voteguard/xerrors"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *RedisBackend) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisBackend(client, "")
}

func TestRedisSubmitVote(t *testing.T) {
	mr, b := newRedis(t)
	ctx := context.Background()

	ballot := Ballot{ID: "b-1", EntityID: "show", VoterID: "alice", ItemID: "X", CastAt: base.Truncate(time.Millisecond)}
	require.NoError(t, b.SubmitVote(ctx, ballot))
	assert.True(t, mr.Exists("voteguard:entity:{show}:ballot:alice"))

	// 同一张选票重复提交是幂等的
	require.NoError(t, b.SubmitVote(ctx, ballot))

	err := b.SubmitVote(ctx, Ballot{ID: "b-2", EntityID: "show", VoterID: "alice", ItemID: "Y"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, xerrors.ErrConflict))
	assert.True(t, xerrors.HasCode(err, xerrors.CodeConflict))

	got, err := b.Ballot(ctx, "show", "alice")
	require.NoError(t, err)
	assert.Equal(t, "b-1", got.ID)
	assert.Equal(t, "X", got.ItemID, "重复投票不覆盖原选票")
	assert.True(t, ballot.CastAt.Equal(got.CastAt))

	// 同一投票人在不同实体中可以各投一次
	require.NoError(t, b.SubmitVote(ctx, Ballot{ID: "b-3", EntityID: "other", VoterID: "alice", ItemID: "X"}))
}

func TestRedisBallotNotFound(t *testing.T) {
	_, b := newRedis(t)
	_, err := b.Ballot(context.Background(), "show", "nobody")
	assert.True(t, errors.Is(err, xerrors.ErrNotFound))
}

func TestRedisTallies(t *testing.T) {
	mr, b := newRedis(t)
	ctx := context.Background()

	for _, item := range []string{"X", "Y", "X"} {
		_, err := b.IncrementTally(ctx, "show", item)
		require.NoError(t, err)
	}
	n, err := b.IncrementTally(ctx, "show", "X")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	totals, err := b.FetchTallies(ctx, "show")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"X": 3, "Y": 1}, totals)

	empty, err := b.FetchTallies(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)

	mr.HSet("voteguard:entity:{bad}:tallies", "X", "not-a-number")
	_, err = b.FetchTallies(ctx, "bad")
	assert.Error(t, err)
}

func TestRedisUnavailable(t *testing.T) {
	mr, b := newRedis(t)
	mr.Close()
	ctx := context.Background()

	err := b.SubmitVote(ctx, Ballot{EntityID: "show", VoterID: "alice", ItemID: "X"})
	assert.True(t, xerrors.HasCode(err, xerrors.CodeDBConnection), "err = %v", err)

	_, err = b.IncrementTally(ctx, "show", "X")
	assert.True(t, xerrors.HasCode(err, xerrors.CodeDBConnection))

	_, err = b.FetchTallies(ctx, "show")
	assert.True(t, xerrors.HasCode(err, xerrors.CodeDBConnection))
}

func TestRedisCanceledContextNotClassified(t *testing.T) {
	_, b := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.IncrementTally(ctx, "show", "X")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, xerrors.HasCode(err, xerrors.CodeDBConnection))
}

func TestRedisKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	b := NewRedisBackend(client, "test:")

	_, err := b.IncrementTally(context.Background(), "show", "X")
	require.NoError(t, err)
	assert.Equal(t, "1", mr.HGet("test:entity:{show}:tallies", "X"))
}
