// Package workload generates synthetic window inputs for the simulation
// driver and benchmarks. All generators are deterministic for a fixed seed.
package workload

import (
	"fmt"
	"math/rand"

	"github.com/bodocache/bodocache/planner"
)

// Spec controls synthetic request generation.
type Spec struct {
	NumRequests int
	NumLayers   int
	NumNodes    int
	NowMS       int64
	Seed        int64
}

// DefaultSpec mirrors the driver's defaults.
func DefaultSpec(nowMS int64) Spec {
	return Spec{NumRequests: 200, NumLayers: 8, NumNodes: 4, NowMS: nowMS, Seed: 42}
}

var pageLengths = []int64{1, 2, 4, 8, 16}
var pageSizesKiB = []int64{128, 256, 512}
var tenants = []string{"A", "B", "C"}
var fillTimes = []float64{1, 2, 5, 10, 20}

// Requests produces storage->host demand rows over a small set of prefix
// families, so clustering and coalescing both have work to do.
func Requests(spec Spec) []planner.KVRequest {
	rng := rand.New(rand.NewSource(spec.Seed))
	reqs := make([]planner.KVRequest, 0, spec.NumRequests)
	for rid := 0; rid < spec.NumRequests; rid++ {
		base := rng.Intn(10)
		delta := rng.Intn(4)
		length := pageLengths[rng.Intn(len(pageLengths))]
		start := int64(rng.Intn(int(1024 - length)))

		toks := make([]int, 0, 80)
		for i := 0; i < 64; i++ {
			toks = append(toks, base)
		}
		for i := 0; i < 16; i++ {
			toks = append(toks, delta)
		}

		reqs = append(reqs, planner.KVRequest{
			ReqID:        fmt.Sprintf("%d", rid),
			Node:         fmt.Sprintf("node-%d", rng.Intn(spec.NumNodes)),
			ModelID:      "m70b",
			ModelVersion: "v1",
			PrefixID:     fmt.Sprintf("pfx-%d-%d", base, delta),
			PrefixTokens: toks,
			Layer:        rng.Intn(spec.NumLayers),
			PageStart:    start,
			PageEnd:      start + length - 1,
			TierSrc:      planner.TierStorage,
			TierDst:      planner.TierHost,
			DeadlineMS:   spec.NowMS + int64(5+rng.Intn(56))*10,
			PageBytes:    pageSizesKiB[rng.Intn(len(pageSizesKiB))] * 1024,
			Tenant:       tenants[rng.Intn(len(tenants))],
			EstFillMS:    fillTimes[rng.Intn(len(fillTimes))],
		})
	}
	return reqs
}

// Heat derives per-(layer, page_start) hit counts from the requests
// themselves, so popular pages are the ones actually demanded.
func Heat(reqs []planner.KVRequest) []planner.HeatRow {
	type key struct {
		layer  int
		pageID int64
	}
	counts := make(map[key]int64)
	var order []key
	for _, r := range reqs {
		k := key{r.Layer, r.PageStart}
		if _, ok := counts[k]; !ok {
			order = append(order, k)
		}
		counts[k]++
	}
	rows := make([]planner.HeatRow, 0, len(order))
	for _, k := range order {
		rows = append(rows, planner.HeatRow{
			Layer:        k.layer,
			PageID:       k.pageID,
			DecayHits:    counts[k],
			TenantWeight: 1.0,
		})
	}
	return rows
}

// TierCaps returns a modest storage/host capacity profile.
func TierCaps() []planner.TierCap {
	return []planner.TierCap{
		{Tier: planner.TierStorage, BandwidthCaps: 64 * 1024 * 1024, FreeBytes: 64 * 1024 * 1024},
		{Tier: planner.TierHost, BandwidthCaps: 16 * 1024 * 1024, FreeBytes: 16 * 1024 * 1024},
	}
}

// TenantCaps grants every tenant the same byte budget on storage and host.
func TenantCaps(reqs []planner.KVRequest, creditsBytes int64) []planner.TenantCap {
	seen := make(map[string]struct{})
	var caps []planner.TenantCap
	for _, r := range reqs {
		if _, ok := seen[r.Tenant]; ok {
			continue
		}
		seen[r.Tenant] = struct{}{}
		caps = append(caps,
			planner.TenantCap{Tenant: r.Tenant, Tier: planner.TierStorage, BandwidthCaps: creditsBytes},
			planner.TenantCap{Tenant: r.Tenant, Tier: planner.TierHost, BandwidthCaps: creditsBytes},
		)
	}
	return caps
}

// LayerLat ramps per-layer compute latency from 5ms upward.
func LayerLat(numLayers int) []planner.LayerLat {
	rows := make([]planner.LayerLat, 0, numLayers)
	for l := 0; l < numLayers; l++ {
		rows = append(rows, planner.LayerLat{Layer: l, LatMS: 5.0 + 0.5*float64(l)})
	}
	return rows
}
