package planner

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest(id int, prefixID string, layer int, start, end int64, pageBytes int64, deadline int64) KVRequest {
	return KVRequest{
		ReqID:        fmt.Sprintf("%d", id),
		Node:         "n0",
		ModelID:      "m",
		ModelVersion: "v",
		PrefixID:     prefixID,
		Layer:        layer,
		PageStart:    start,
		PageEnd:      end,
		TierSrc:      TierStorage,
		TierDst:      TierHost,
		DeadlineMS:   deadline,
		PageBytes:    pageBytes,
		Tenant:       "t",
		EstFillMS:    1,
	}
}

func permissiveKnobs() Knobs {
	k := DefaultKnobs()
	k.PMin = 0.0
	k.UMin = -1.0
	k.EnforceTierCaps = false
	return k
}

func bigTierCaps() []TierCap {
	return []TierCap{
		{Tier: TierStorage, BandwidthCaps: 1 << 30, FreeBytes: 1 << 30},
		{Tier: TierHost, BandwidthCaps: 1 << 30, FreeBytes: 1 << 30},
	}
}

func TestRunWindow_CoalescingWithMinIOFilter(t *testing.T) {
	// Two contiguous 300KB pages coalesce past the 512KB floor; the lone
	// 128KB op on another prefix is filtered out.
	now := int64(1_000_000)
	in := Inputs{
		Requests: []KVRequest{
			testRequest(0, "p1", 0, 0, 1, 300*1024, now+1000),
			testRequest(1, "p2", 0, 2, 2, 128*1024, now+1000),
		},
		Heat:     []HeatRow{{Layer: 0, PageID: 0, DecayHits: 10, TenantWeight: 1.0}},
		TierCaps: []TierCap{{Tier: 0, BandwidthCaps: 1, FreeBytes: 1}, {Tier: 1, BandwidthCaps: 1, FreeBytes: 1}},
		LayerLat: []LayerLat{{Layer: 0, LatMS: 5.0}},
		NowMS:    now,
	}
	res, err := RunWindow(in, permissiveKnobs())
	require.NoError(t, err)

	require.Len(t, res.Plan, 1)
	assert.GreaterOrEqual(t, res.Plan[0].Bytes, int64(512*1024))
	assert.Equal(t, int64(1), res.Drops.MinIO)
}

func TestRunWindow_PrefixFanoutProducesDistinctOps(t *testing.T) {
	// Two identical intervals on different prefixes stay two ops with
	// different cluster codes.
	now := int64(1_000_000)
	in := Inputs{
		Requests: []KVRequest{
			testRequest(0, "p1", 0, 0, 1, 300*1024, now+1000),
			testRequest(1, "p2", 0, 0, 1, 300*1024, now+1000),
		},
		Heat:     []HeatRow{{Layer: 0, PageID: 0, DecayHits: 10, TenantWeight: 1.0}},
		TierCaps: bigTierCaps(),
		LayerLat: []LayerLat{{Layer: 0, LatMS: 5.0}},
		NowMS:    now,
	}
	k := permissiveKnobs()
	k.EnforceTierCaps = true
	res, err := RunWindow(in, k)
	require.NoError(t, err)

	require.Len(t, res.Plan, 2)
	assert.NotEqual(t, res.Plan[0].PCluster, res.Plan[1].PCluster)
}

func TestRunWindow_MaxOpsPerTierCap(t *testing.T) {
	now := int64(1_000_000)
	var reqs []KVRequest
	var heat []HeatRow
	for i := 0; i < 200; i++ {
		r := testRequest(i, fmt.Sprintf("p%d", i), 0, int64(i), int64(i), 256*1024, now+1000+int64(i%5))
		reqs = append(reqs, r)
		heat = append(heat, HeatRow{Layer: 0, PageID: int64(i), DecayHits: 1, TenantWeight: 1.0})
	}
	in := Inputs{
		Requests: reqs,
		Heat:     heat,
		TierCaps: bigTierCaps(),
		LayerLat: []LayerLat{{Layer: 0, LatMS: 5.0}},
		NowMS:    now,
	}
	k := permissiveKnobs()
	k.EnforceTierCaps = true
	k.MinIOBytes = 0
	k.MaxOpsPerTier = 8

	res, err := RunWindow(in, k)
	require.NoError(t, err)

	perTier := make(map[string]int)
	for _, op := range res.Plan {
		perTier[fmt.Sprintf("%s/%d", op.Node, op.TierDst)]++
	}
	for key, n := range perTier {
		assert.LessOrEqualf(t, n, 8, "op cap exceeded for %s", key)
	}
	assert.Equal(t, int64(192), res.Drops.OpCap)
}

func TestRunWindow_PlanRowInvariants(t *testing.T) {
	// bytes = (end-start+1)*page_bytes and bytes >= min_io for every row.
	now := int64(1_000_000)
	var reqs []KVRequest
	for i := 0; i < 40; i++ {
		start := int64(i * 3 % 50)
		reqs = append(reqs, testRequest(i, fmt.Sprintf("p%d", i%4), i%2, start, start+int64(i%5), 256*1024, now+500+int64(i)))
	}
	in := Inputs{
		Requests: reqs,
		TierCaps: bigTierCaps(),
		LayerLat: []LayerLat{{Layer: 0, LatMS: 5.0}, {Layer: 1, LatMS: 5.5}},
		NowMS:    now,
	}
	k := permissiveKnobs()
	k.EnforceTierCaps = true
	res, err := RunWindow(in, k)
	require.NoError(t, err)
	require.NotEmpty(t, res.Plan)

	for _, op := range res.Plan {
		assert.Equal(t, (op.EndPID-op.StartPID+1)*op.PageBytes, op.Bytes)
		assert.GreaterOrEqual(t, op.Bytes, k.MinIOBytes)
		assert.GreaterOrEqual(t, op.Overlap, 1)
		assert.LessOrEqual(t, op.Overlap, 3)
	}
}

func TestRunWindow_TierCapEnforcement(t *testing.T) {
	// With a 1MB host cap, cumulative bytes per (node, src, dst) stay under
	// the cap in earliest-deadline order.
	now := int64(1_000_000)
	var reqs []KVRequest
	for i := 0; i < 6; i++ {
		start := int64(i * 10)
		reqs = append(reqs, testRequest(i, fmt.Sprintf("p%d", i), 0, start, start+1, 256*1024, now+100+int64(i)))
	}
	in := Inputs{
		Requests: reqs,
		TierCaps: []TierCap{{Tier: TierHost, BandwidthCaps: 1 << 20, FreeBytes: 1 << 30}},
		NowMS:    now,
	}
	k := permissiveKnobs()
	k.EnforceTierCaps = true
	res, err := RunWindow(in, k)
	require.NoError(t, err)

	var total int64
	for _, op := range res.Plan {
		total += op.Bytes
	}
	assert.LessOrEqual(t, total, int64(1<<20))
	assert.Equal(t, int64(4), res.Drops.TierCap)
	// Earliest deadlines survive.
	for _, op := range res.Plan {
		assert.LessOrEqual(t, op.DeadlineMS, now+101)
	}
}

func TestRunWindow_TenantCreditGate(t *testing.T) {
	// Two tenants, one capped at a single row's bytes: the capped tenant
	// keeps its earliest-deadline row only.
	now := int64(1_000_000)
	a1 := testRequest(0, "p1", 0, 0, 1, 256*1024, now+100)
	a2 := testRequest(1, "p2", 0, 10, 11, 256*1024, now+200)
	b1 := testRequest(2, "p3", 0, 20, 21, 256*1024, now+300)
	a1.Tenant, a2.Tenant, b1.Tenant = "A", "A", "B"

	in := Inputs{
		Requests:   []KVRequest{a2, a1, b1},
		TierCaps:   bigTierCaps(),
		TenantCaps: []TenantCap{{Tenant: "A", Tier: TierHost, BandwidthCaps: 512 * 1024}},
		NowMS:      now,
	}
	k := permissiveKnobs()
	k.MinIOBytes = 0
	res, err := RunWindow(in, k)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.Drops.TenantCap)
	var sawEarlyA, sawLateA, sawB bool
	for _, op := range res.Plan {
		switch op.StartPID {
		case 0:
			sawEarlyA = true
		case 10:
			sawLateA = true
		case 20:
			sawB = true
		}
	}
	assert.True(t, sawEarlyA, "earliest-deadline row of capped tenant must survive")
	assert.False(t, sawLateA, "later row of capped tenant must be dropped")
	assert.True(t, sawB, "uncapped tenant is unaffected")
}

func TestRunWindow_OverlappingIntervalsUnion(t *testing.T) {
	// Overlapping rows of one prefix merge into a single run covering the
	// union without double-counting pages.
	now := int64(1_000_000)
	in := Inputs{
		Requests: []KVRequest{
			testRequest(0, "p1", 0, 0, 4, 256*1024, now+100),
			testRequest(1, "p1", 0, 2, 6, 256*1024, now+200),
			testRequest(2, "p1", 0, 5, 7, 256*1024, now+300),
		},
		TierCaps: bigTierCaps(),
		NowMS:    now,
	}
	k := permissiveKnobs()
	k.MinIOBytes = 0
	res, err := RunWindow(in, k)
	require.NoError(t, err)

	require.Len(t, res.Plan, 1)
	op := res.Plan[0]
	assert.Equal(t, int64(0), op.StartPID)
	assert.Equal(t, int64(7), op.EndPID)
	assert.Equal(t, int64(8*256*1024), op.Bytes)
	assert.Equal(t, int64(3), op.Fanout)
	assert.Equal(t, now+100, op.DeadlineMS)
}

func TestRunWindow_GapStartsNewRun(t *testing.T) {
	now := int64(1_000_000)
	in := Inputs{
		Requests: []KVRequest{
			testRequest(0, "p1", 0, 0, 1, 256*1024, now+100),
			testRequest(1, "p1", 0, 5, 6, 256*1024, now+100),
		},
		TierCaps: bigTierCaps(),
		NowMS:    now,
	}
	k := permissiveKnobs()
	k.MinIOBytes = 0
	res, err := RunWindow(in, k)
	require.NoError(t, err)

	require.Len(t, res.Plan, 2)
	assert.NotEqual(t, res.Plan[0].RunID, res.Plan[1].RunID)
}

func TestRunWindow_EmptyInput(t *testing.T) {
	res, err := RunWindow(Inputs{NowMS: 1}, DefaultKnobs())
	require.NoError(t, err)
	assert.Empty(t, res.Plan)
	assert.Empty(t, res.Evict)
	assert.Empty(t, res.Admission)
}

func TestRunWindow_ScoreFilterThresholds(t *testing.T) {
	// GIVEN a cold page whose deadline has passed
	now := int64(1_000_000)
	req := testRequest(0, "p1", 0, 0, 3, 256*1024, now-10)

	// WHEN planning with default thresholds
	res, err := RunWindow(Inputs{
		Requests: []KVRequest{req},
		TierCaps: bigTierCaps(),
		NowMS:    now,
	}, DefaultKnobs())
	require.NoError(t, err)

	// THEN the row fails both pop and urgency gates
	assert.Empty(t, res.Plan)
	assert.Equal(t, int64(1), res.Drops.ScoreFilter)

	// AND a hot page passes on popularity alone
	res, err = RunWindow(Inputs{
		Requests: []KVRequest{req},
		Heat:     []HeatRow{{Layer: 0, PageID: 0, DecayHits: 50, TenantWeight: 1.0}},
		TierCaps: bigTierCaps(),
		NowMS:    now,
	}, DefaultKnobs())
	require.NoError(t, err)
	assert.Len(t, res.Plan, 1)
}
