package agent

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/bodocache/bodocache/planner"
)

// Multistream window simulation: a cheap bandwidth model for tuning knob
// settings without touching real storage. Each (node, tier_dst) gets N
// equal-bandwidth streams; ops land on the earliest-available stream and
// overlap hints shorten an op by fanning it across sub-streams.

// OpTiming is the simulated outcome for one plan op.
type OpTiming struct {
	Node          string
	TierDst       int
	PCluster      int64
	Layer         int
	Priority      float64
	Bytes         int64
	DeadlineRelMS float64
	FinishMS      float64
	OnTime        bool
}

// ExecSummary aggregates simulated op timings.
type ExecSummary struct {
	PrefetchTimeliness float64
	AvgFinishMS        float64
	AvgIOBytes         float64
	Ops                int
}

// SimulatePlanStreams runs the multistream model over a plan. When layerLat
// is provided, the required arrival time per layer is the cumulative compute
// latency up to that layer; otherwise the op's own deadline is used.
func SimulatePlanStreams(plan []planner.PlanOp, tierCaps []planner.TierCap, windowMS int64, streamsPerTier int, useOverlap bool, layerLat []planner.LayerLat) []OpTiming {
	if len(plan) == 0 {
		return nil
	}
	if streamsPerTier < 1 {
		streamsPerTier = 1
	}

	bwIdx := make(map[int]int64, len(tierCaps))
	for _, tc := range tierCaps {
		bwIdx[tc.Tier] = tc.BandwidthCaps
	}

	// Cumulative compute arrival per layer, in layer order.
	var cumDeadline map[int]float64
	if len(layerLat) > 0 {
		lats := make([]planner.LayerLat, len(layerLat))
		copy(lats, layerLat)
		sort.Slice(lats, func(i, j int) bool { return lats[i].Layer < lats[j].Layer })
		cumDeadline = make(map[int]float64, len(lats))
		cum := 0.0
		for _, ll := range lats {
			cum += ll.LatMS
			cumDeadline[ll.Layer] = cum
		}
	}

	rows := make([]planner.PlanOp, len(plan))
	copy(rows, plan)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		if a.TierDst != b.TierDst {
			return a.TierDst < b.TierDst
		}
		return a.Priority > b.Priority
	})

	type groupKey struct {
		node string
		tier int
	}
	streams := make(map[groupKey][]float64)

	out := make([]OpTiming, 0, len(rows))
	for _, op := range rows {
		gk := groupKey{op.Node, op.TierDst}
		if _, ok := streams[gk]; !ok {
			streams[gk] = make([]float64, streamsPerTier)
		}

		bwTotal := float64(bwIdx[op.TierDst])
		bwPerStream := bwTotal / float64(streamsPerTier)

		speedup := 1
		if useOverlap {
			speedup = op.Overlap
			if speedup > streamsPerTier {
				speedup = streamsPerTier
			}
			if speedup < 1 {
				speedup = 1
			}
		}
		bytesEff := float64(op.Bytes) / float64(speedup)
		durMS := bytesEff / maxf(bwPerStream, 1.0) * float64(windowMS)

		// Earliest-available stream.
		st := streams[gk]
		sidx := 0
		for i := 1; i < len(st); i++ {
			if st[i] < st[sidx] {
				sidx = i
			}
		}
		finish := st[sidx] + durMS
		st[sidx] = finish

		required := float64(op.DeadlineMS)
		if cumDeadline != nil {
			required = cumDeadline[op.Layer]
		}

		out = append(out, OpTiming{
			Node:          op.Node,
			TierDst:       op.TierDst,
			PCluster:      op.PCluster,
			Layer:         op.Layer,
			Priority:      op.Priority,
			Bytes:         op.Bytes,
			DeadlineRelMS: required,
			FinishMS:      finish,
			OnTime:        finish <= required,
		})
	}
	return out
}

// SummarizeExec reduces op timings to the headline window metrics.
func SummarizeExec(timings []OpTiming) ExecSummary {
	if len(timings) == 0 {
		return ExecSummary{PrefetchTimeliness: 1.0}
	}
	onTime := make([]float64, len(timings))
	finish := make([]float64, len(timings))
	ioBytes := make([]float64, len(timings))
	for i, t := range timings {
		if t.OnTime {
			onTime[i] = 1
		}
		finish[i] = t.FinishMS
		ioBytes[i] = float64(t.Bytes)
	}
	return ExecSummary{
		PrefetchTimeliness: stat.Mean(onTime, nil),
		AvgFinishMS:        stat.Mean(finish, nil),
		AvgIOBytes:         stat.Mean(ioBytes, nil),
		Ops:                len(timings),
	}
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
