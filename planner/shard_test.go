package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardRequests_PageModuloOwnership(t *testing.T) {
	// A 4-page request split across 2 ranks: rank 0 owns {0, 2}, rank 1
	// owns {1, 3}, and each rank's demand totals 2 pages.
	req := testRequest(0, "p1", 0, 0, 3, 256*1024, 1000)

	for rank := 0; rank < 2; rank++ {
		shards := ShardRequests([]KVRequest{req}, ContextShard{WorldSize: 2, Rank: rank})
		require.Len(t, shards, 2)
		var totalBytes int64
		for _, s := range shards {
			assert.Equal(t, s.PageStart, s.PageEnd)
			assert.Equal(t, int64(rank), s.PageStart%2)
			totalBytes += (s.PageEnd - s.PageStart + 1) * s.PageBytes
		}
		assert.GreaterOrEqual(t, totalBytes, int64(2*256*1024))
	}
}

func TestShardRequests_PlannedPagesStayOnRank(t *testing.T) {
	// After planning the sharded demand, every covered page id still
	// satisfies p mod world_size == rank.
	now := int64(1_000_000)
	req := testRequest(0, "p1", 0, 0, 9, 256*1024, now+500)
	shards := ShardRequests([]KVRequest{req}, ContextShard{WorldSize: 2, Rank: 1})

	k := permissiveKnobs()
	k.MinIOBytes = 0
	res, err := RunWindow(Inputs{Requests: shards, TierCaps: bigTierCaps(), NowMS: now}, k)
	require.NoError(t, err)
	require.NotEmpty(t, res.Plan)
	for _, op := range res.Plan {
		for p := op.StartPID; p <= op.EndPID; p++ {
			assert.Equal(t, int64(1), p%2)
		}
	}
}

func TestShardRequests_IdentityForSingleRank(t *testing.T) {
	reqs := []KVRequest{testRequest(0, "p1", 0, 0, 7, 256*1024, 1000)}
	assert.Equal(t, reqs, ShardRequests(reqs, ContextShard{WorldSize: 1, Rank: 0}))
}

func TestShardRequests_SuffixesReqIDs(t *testing.T) {
	req := testRequest(4, "p1", 0, 2, 5, 256*1024, 1000)
	shards := ShardRequests([]KVRequest{req}, ContextShard{WorldSize: 2, Rank: 0})
	require.Len(t, shards, 2)
	assert.Equal(t, "4-sh2", shards[0].ReqID)
	assert.Equal(t, "4-sh4", shards[1].ReqID)
}

func TestShardRequests_NormalizesRank(t *testing.T) {
	req := testRequest(0, "p1", 0, 0, 3, 256*1024, 1000)
	a := ShardRequests([]KVRequest{req}, ContextShard{WorldSize: 2, Rank: 3})
	b := ShardRequests([]KVRequest{req}, ContextShard{WorldSize: 2, Rank: 1})
	assert.Equal(t, b, a)
}
