package planner

import (
	"math"
	"sort"
)

// unlimited stands in for an absent cap entry. Joins that find no row treat
// the cap as this value, never as zero.
const unlimited = int64(math.MaxInt64)

// candidate is a request row flowing through the filter stages, carrying the
// scores computed on entry.
type candidate struct {
	req      KVRequest
	pcluster int64
	pop      float64
	urgency  float64
	bytesRow int64
}

// run is one coalesced interval union prior to cap application.
type run struct {
	node       string
	tierSrc    int
	tierDst    int
	pcluster   int64
	layer      int
	runID      int64
	pages      int64
	pageBytes  int64
	bytes      int64
	deadlineMS int64
	fanout     int64
	urgencyMin float64
	startPID   int64
	endPID     int64
}

type heatKey struct {
	layer  int
	pageID int64
}

type tenantTierKey struct {
	tenant string
	tier   int
}

// scoreAndFilter joins heat onto requests by (layer, page_start), computes
// popularity and urgency, and keeps rows passing either threshold. The heat
// join deliberately uses only page_start as the page index, matching the
// upstream consumers of this planner.
func scoreAndFilter(reqs []KVRequest, clusters []int64, heat []HeatRow, nowMS int64, k Knobs) ([]candidate, int64) {
	heatIdx := make(map[heatKey]HeatRow, len(heat))
	for _, h := range heat {
		heatIdx[heatKey{h.Layer, h.PageID}] = h
	}

	out := make([]candidate, 0, len(reqs))
	var dropped int64
	for i, r := range reqs {
		decayHits := int64(0)
		tenantWeight := 1.0
		if h, ok := heatIdx[heatKey{r.Layer, r.PageStart}]; ok {
			decayHits = h.DecayHits
			tenantWeight = h.TenantWeight
		}
		pop := k.Alpha*float64(decayHits) + k.Beta*tenantWeight
		urgency := float64(r.DeadlineMS-nowMS) / math.Max(r.EstFillMS, 1.0)
		if pop > k.PMin || urgency > k.UMin {
			out = append(out, candidate{
				req:      r,
				pcluster: clusters[i],
				pop:      pop,
				urgency:  urgency,
				bytesRow: (r.PageEnd - r.PageStart + 1) * r.PageBytes,
			})
		} else {
			dropped++
		}
	}
	return out, dropped
}

// applyTenantCaps is a greedy token bucket per (node, tier_dst, tenant):
// rows are admitted in deadline order until the tenant's byte budget for the
// destination tier is exhausted. Absent budgets are unlimited.
func applyTenantCaps(cands []candidate, tenantCaps []TenantCap) ([]candidate, int64) {
	capIdx := make(map[tenantTierKey]int64, len(tenantCaps))
	for _, tc := range tenantCaps {
		capIdx[tenantTierKey{tc.Tenant, tc.Tier}] = tc.BandwidthCaps
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i].req, cands[j].req
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		if a.TierDst != b.TierDst {
			return a.TierDst < b.TierDst
		}
		if a.Tenant != b.Tenant {
			return a.Tenant < b.Tenant
		}
		return a.DeadlineMS < b.DeadlineMS
	})

	type bucketKey struct {
		node   string
		tier   int
		tenant string
	}
	cum := make(map[bucketKey]int64)

	out := cands[:0]
	var dropped int64
	for _, c := range cands {
		limit := unlimited
		if v, ok := capIdx[tenantTierKey{c.req.Tenant, c.req.TierDst}]; ok {
			limit = v
		}
		bk := bucketKey{c.req.Node, c.req.TierDst, c.req.Tenant}
		cum[bk] += c.bytesRow
		if cum[bk] <= limit {
			out = append(out, c)
		} else {
			dropped++
		}
	}
	return out, dropped
}

// coalesceIntervals unions adjacent/overlapping page ranges into runs within
// each (node, tier_src, tier_dst, pcluster, layer) group and drops runs
// below the minimum I/O size. A new run starts whenever a row's start leaves
// a gap after the previous row's end; inside a run each row contributes only
// the pages beyond the running coverage, so overlapping rows are not
// double-counted.
func coalesceIntervals(cands []candidate, minIOBytes int64) ([]run, int64) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.req.Node != b.req.Node {
			return a.req.Node < b.req.Node
		}
		if a.req.TierSrc != b.req.TierSrc {
			return a.req.TierSrc < b.req.TierSrc
		}
		if a.req.TierDst != b.req.TierDst {
			return a.req.TierDst < b.req.TierDst
		}
		if a.pcluster != b.pcluster {
			return a.pcluster < b.pcluster
		}
		if a.req.Layer != b.req.Layer {
			return a.req.Layer < b.req.Layer
		}
		if a.req.PageStart != b.req.PageStart {
			return a.req.PageStart < b.req.PageStart
		}
		return a.req.PageEnd < b.req.PageEnd
	})

	runs := make([]run, 0, len(cands))
	var cur *run
	var prevEnd, cummaxEnd int64
	var runID int64
	sameGroup := func(c candidate, r *run) bool {
		return r != nil &&
			c.req.Node == r.node &&
			c.req.TierSrc == r.tierSrc &&
			c.req.TierDst == r.tierDst &&
			c.pcluster == r.pcluster &&
			c.req.Layer == r.layer
	}

	flush := func() {
		if cur != nil {
			cur.bytes = cur.pages * cur.pageBytes
			runs = append(runs, *cur)
			cur = nil
		}
	}

	for i := range cands {
		c := &cands[i]
		newGroup := !sameGroup(*c, cur)
		if newGroup {
			runID = 0
			prevEnd = -1
		}
		// run_id is the running count of gap markers within the group, so a
		// group whose first row starts past page 0 begins at run_id 1.
		marker := c.req.PageStart > prevEnd+1
		if marker {
			runID++
		}
		if newRun := newGroup || marker; newRun {
			flush()
			cur = &run{
				node:       c.req.Node,
				tierSrc:    c.req.TierSrc,
				tierDst:    c.req.TierDst,
				pcluster:   c.pcluster,
				layer:      c.req.Layer,
				runID:      runID,
				deadlineMS: c.req.DeadlineMS,
				urgencyMin: c.urgency,
				startPID:   c.req.PageStart,
				endPID:     c.req.PageEnd,
			}
			cummaxEnd = -1
		}

		effStart := c.req.PageStart
		if cummaxEnd+1 > effStart {
			effStart = cummaxEnd + 1
		}
		if contributed := c.req.PageEnd - effStart + 1; contributed > 0 {
			cur.pages += contributed
		}
		if c.req.PageEnd > cummaxEnd {
			cummaxEnd = c.req.PageEnd
		}
		if c.req.PageBytes > cur.pageBytes {
			cur.pageBytes = c.req.PageBytes
		}
		if c.req.DeadlineMS < cur.deadlineMS {
			cur.deadlineMS = c.req.DeadlineMS
		}
		if c.urgency < cur.urgencyMin {
			cur.urgencyMin = c.urgency
		}
		if c.req.PageStart < cur.startPID {
			cur.startPID = c.req.PageStart
		}
		if c.req.PageEnd > cur.endPID {
			cur.endPID = c.req.PageEnd
		}
		cur.fanout++
		prevEnd = c.req.PageEnd
	}
	flush()

	out := runs[:0]
	var dropped int64
	for _, r := range runs {
		if r.bytes >= minIOBytes {
			out = append(out, r)
		} else {
			dropped++
		}
	}
	return out, dropped
}

// applyCaps joins tier capacities and per-layer latency onto the runs,
// enforces per-(node, tier_src, tier_dst) cumulative byte caps in deadline
// order, bounds ops per (node, tier_dst), and annotates overlap depth and
// priority.
func applyCaps(runs []run, tierCaps []TierCap, layerLat []LayerLat, k Knobs) ([]PlanOp, int64, int64) {
	capIdx := make(map[int]TierCap, len(tierCaps))
	for _, tc := range tierCaps {
		capIdx[tc.Tier] = tc
	}
	latIdx := make(map[int]float64, len(layerLat))
	for _, ll := range layerLat {
		latIdx[ll.Layer] = ll.LatMS
	}

	sort.SliceStable(runs, func(i, j int) bool {
		a, b := runs[i], runs[j]
		if a.node != b.node {
			return a.node < b.node
		}
		if a.tierSrc != b.tierSrc {
			return a.tierSrc < b.tierSrc
		}
		if a.tierDst != b.tierDst {
			return a.tierDst < b.tierDst
		}
		return a.deadlineMS < b.deadlineMS
	})

	type routeKey struct {
		node             string
		tierSrc, tierDst int
	}
	cum := make(map[routeKey]int64)

	kept := runs[:0]
	var droppedTier int64
	for _, r := range runs {
		effCap := unlimited
		if tc, ok := capIdx[r.tierDst]; ok {
			effCap = tc.BandwidthCaps
			if tc.FreeBytes < effCap {
				effCap = tc.FreeBytes
			}
		}
		rk := routeKey{r.node, r.tierSrc, r.tierDst}
		cum[rk] += r.bytes
		if !k.EnforceTierCaps || cum[rk] <= effCap {
			kept = append(kept, r)
		} else {
			droppedTier++
		}
	}

	type opKey struct {
		node string
		tier int
	}
	rank := make(map[opKey]int)

	plan := make([]PlanOp, 0, len(kept))
	var droppedOps int64
	for _, r := range kept {
		ok := opKey{r.node, r.tierDst}
		rank[ok]++
		if rank[ok] > k.MaxOpsPerTier {
			droppedOps++
			continue
		}

		bw := float64(1)
		if tc, exists := capIdx[r.tierDst]; exists && tc.BandwidthCaps > 0 {
			bw = float64(tc.BandwidthCaps)
		}
		estCopyMS := float64(r.bytes) / math.Max(bw, 1.0) * float64(k.WindowMS)

		lat := 1.0
		if v, exists := latIdx[r.layer]; exists {
			lat = v
		}
		overlap := 1
		if estCopyMS > lat {
			overlap++
		}
		if estCopyMS > 2*lat {
			overlap++
		}

		plan = append(plan, PlanOp{
			Node:       r.node,
			TierSrc:    r.tierSrc,
			TierDst:    r.tierDst,
			PCluster:   r.pcluster,
			Layer:      r.layer,
			RunID:      r.runID,
			StartPID:   r.startPID,
			EndPID:     r.endPID,
			Bytes:      r.bytes,
			DeadlineMS: r.deadlineMS,
			Fanout:     r.fanout,
			Overlap:    overlap,
			Priority:   r.urgencyMin,
			PageBytes:  r.pageBytes,
		})
	}
	return plan, droppedTier, droppedOps
}
