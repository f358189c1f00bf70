package planner

import "sort"

// Admission and eviction share the planner's inputs but are advisory: the
// caller performs the actual state changes and must tolerate retries, so
// both outputs carry idempotent set semantics.

// defaultPageSize is assumed for heat rows that omit size_bytes.
const defaultPageSize = 256 * 1024

// AdmissionDecisions promotes pages whose decayed hit count meets the reuse
// threshold into persistent storage. Output is deduplicated on
// (layer, page_id); the heat join uses page_start as the page index.
func AdmissionDecisions(reqs []KVRequest, heat []HeatRow, reuseThreshold float64) []AdmitKey {
	heatIdx := make(map[heatKey]int64, len(heat))
	for _, h := range heat {
		heatIdx[heatKey{h.Layer, h.PageID}] = h.DecayHits
	}

	out := make([]AdmitKey, 0)
	seen := make(map[heatKey]struct{})
	for _, r := range reqs {
		hk := heatKey{r.Layer, r.PageStart}
		if float64(heatIdx[hk]) < reuseThreshold {
			continue
		}
		if _, dup := seen[hk]; dup {
			continue
		}
		seen[hk] = struct{}{}
		out = append(out, AdmitKey{Layer: r.Layer, PageID: r.PageStart, TierDst: TierStorage})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Layer != out[j].Layer {
			return out[i].Layer < out[j].Layer
		}
		return out[i].PageID < out[j].PageID
	})
	return out
}

// EvictionDecisions selects cold pages to drop when the planned bytes for a
// destination tier exceed its free space. Victims are the coldest pages
// whose cumulative size stays within the summed deficit across tiers.
func EvictionDecisions(plan []PlanOp, heat []HeatRow, tierCaps []TierCap) []EvictKey {
	if len(plan) == 0 {
		return nil
	}

	used := make(map[int]int64)
	for _, op := range plan {
		used[op.TierDst] += op.Bytes
	}
	freeIdx := make(map[int]int64, len(tierCaps))
	for _, tc := range tierCaps {
		freeIdx[tc.Tier] = tc.FreeBytes
	}

	// Tiers with no capacity row contribute no deficit: without a free_bytes
	// figure there is nothing to reclaim against.
	var target int64
	for tier, bytes := range used {
		free, known := freeIdx[tier]
		if !known {
			continue
		}
		if deficit := bytes - free; deficit > 0 {
			target += deficit
		}
	}
	if target <= 0 {
		return nil
	}

	// Coldest first; stable so identical inputs yield identical victims.
	rows := make([]HeatRow, len(heat))
	copy(rows, heat)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].DecayHits < rows[j].DecayHits
	})

	out := make([]EvictKey, 0)
	var cum int64
	for _, h := range rows {
		size := h.SizeBytes
		if size == 0 {
			size = defaultPageSize
		}
		cum += size
		if cum > target {
			break
		}
		out = append(out, EvictKey{Layer: h.Layer, PageID: h.PageID})
	}
	return out
}
