package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/voteguard/invoker"
	"github.com/ceyewan/voteguard/rank"
	"github.com/ceyewan/voteguard/voting"
)

func newVotingServer(t *testing.T) (*Server, *voting.Service) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inv, err := invoker.New(&invoker.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = inv.Close() })

	now := time.Now()
	svc, err := voting.New(&voting.Config{Entities: []voting.EntityConfig{
		{ID: "final", StartAt: now.Add(-time.Hour), StopAt: now.Add(time.Hour), Items: []string{"A", "B", "X"}},
		{ID: "encore", StartAt: now.Add(time.Hour), StopAt: now.Add(2 * time.Hour), Items: []string{"A"}},
	}}, voting.NewRedisBackend(client, ""), inv)
	require.NoError(t, err)

	return newTestServer(t, svc), svc
}

func TestVotingEndToEnd(t *testing.T) {
	s, _ := newVotingServer(t)

	for _, body := range []string{
		`{"voter_id":"u1","item_id":"A"}`,
		`{"voter_id":"u2","item_id":"X"}`,
		`{"voter_id":"u3","item_id":"X"}`,
	} {
		w := do(t, s, http.MethodPost, "/v1/entities/final/votes", body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := do(t, s, http.MethodGet, "/v1/entities/final/ranking", "")
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[rank.View](t, w)
	require.Len(t, view.Entries, 3)
	assert.Equal(t, "X", view.Entries[0].ItemID)
	assert.Equal(t, int64(2), view.Entries[0].Total)
	assert.Equal(t, "A", view.Entries[1].ItemID)

	// 重复投票
	w = do(t, s, http.MethodPost, "/v1/entities/final/votes", `{"voter_id":"u1","item_id":"B"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	// 尚未开始
	w = do(t, s, http.MethodPost, "/v1/entities/encore/votes", `{"voter_id":"u1","item_id":"A"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 未知候选项
	w = do(t, s, http.MethodPost, "/v1/entities/final/votes", `{"voter_id":"u9","item_id":"Q"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodGet, "/v1/entities/encore/ranking", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[rank.View](t, w).Ranked)

	w = do(t, s, http.MethodGet, "/v1/breakers/"+invoker.PolicyVote, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "closed", decode[map[string]any](t, w)["state"])

	w = do(t, s, http.MethodGet, "/v1/perf", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[PerfResponse](t, w)
	assert.Equal(t, 3, resp.Operations[invoker.PolicyTallyIncrement].Count)
}

func TestVotingEndToEndRunLoop(t *testing.T) {
	s, svc := newVotingServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	w := do(t, s, http.MethodPost, "/v1/entities/final/votes", `{"voter_id":"u1","item_id":"B"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	assert.Eventually(t, func() bool {
		_, err := svc.CircuitStats(invoker.PolicyTally)
		return err == nil && svc.PerfSnapshot()[invoker.PolicyTally].Count > 0
	}, 3*time.Second, 20*time.Millisecond)

	view := svc.RankedView("final", 1)
	require.Len(t, view.Entries, 1)
	assert.Equal(t, "B", view.Entries[0].ItemID)
}
