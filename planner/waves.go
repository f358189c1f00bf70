package planner

import (
	"math"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// Wave/tile handoff to the downstream GEMM runtime. Tile shapes come from a
// whitelist shared with the runtime; update the default list in lock-step.

// TileConfig is one whitelisted tile shape.
type TileConfig struct {
	BM      int
	BN      int
	BK      int
	Stage   int
	Cluster [2]int
}

// DefaultTileConfigs mirrors the runtime's curated tile list.
var DefaultTileConfigs = []TileConfig{
	{128, 128, 64, 2, [2]int{2, 1}},
	{128, 256, 64, 2, [2]int{2, 1}},
	{256, 128, 64, 2, [2]int{2, 1}},
	{128, 128, 128, 3, [2]int{2, 1}},
}

// TMemLayout describes the tensor-memory staging layout of a wave.
type TMemLayout struct {
	Columns      int  `json:"columns"`
	Phases       int  `json:"phases"`
	DoubleBuffer bool `json:"double_buffer"`
	StageN       int  `json:"stage_n"`
}

// IOExtent is one coalesced prefetch range inside a wave.
type IOExtent struct {
	Layer    string `json:"layer"`
	StartPID int64  `json:"start_pid"`
	EndPID   int64  `json:"end_pid"`
}

// WaveSpec is the runtime contract for a single execution wave.
type WaveSpec struct {
	PackOrder    []int64    `json:"pack_order"`
	TileOrder    [][2]int   `json:"tile_order"`
	BM           int        `json:"bm"`
	BN           int        `json:"bn"`
	BK           int        `json:"bk"`
	ClusterShape [2]int     `json:"cluster_shape"`
	TMem         TMemLayout `json:"tmem_layout"`
	IOExtents    []IOExtent `json:"io_extents"`
	SwapWindow   [2]int     `json:"swap_window"`
}

// DTypeBytes returns the element width for a dtype name, defaulting to the
// conservative 2 bytes.
func DTypeBytes(dtype string) int {
	switch dtype {
	case "float16", "fp16", "bfloat16", "bf16":
		return 2
	case "float32", "fp32":
		return 4
	default:
		return 2
	}
}

func resolveWhitelist(whitelist []TileConfig) []TileConfig {
	if len(whitelist) > 0 {
		return whitelist
	}
	return DefaultTileConfigs
}

// SelectTileConfig returns the first whitelisted config whose bk satisfies
// the 32-byte K granularity for the dtype.
func SelectTileConfig(dtype string, whitelist []TileConfig) (TileConfig, error) {
	configs := resolveWhitelist(whitelist)
	bpe := DTypeBytes(dtype)
	for _, cfg := range configs {
		if (cfg.BK*bpe)%32 == 0 {
			return cfg, nil
		}
	}
	return TileConfig{}, errors.Wrapf(ErrInvalidInput, "no tile config satisfies 32B K granularity for dtype=%s", dtype)
}

// ValidateWaveSpec checks the runtime contract: required layout fields, a
// whitelisted (bm, bn, bk, cluster, stage) shape, dtype granularity for bk,
// and a well-formed swap window.
func ValidateWaveSpec(spec WaveSpec, dtype string, whitelist []TileConfig) error {
	if len(spec.TileOrder) == 0 {
		return errors.Wrap(ErrInvalidInput, "wave spec missing tile_order")
	}
	if spec.TMem.Columns <= 0 || spec.TMem.Phases <= 0 || spec.TMem.StageN <= 0 {
		return errors.Wrap(ErrInvalidInput, "wave spec tmem_layout incomplete")
	}

	matched := false
	for _, cfg := range resolveWhitelist(whitelist) {
		if spec.BM == cfg.BM && spec.BN == cfg.BN && spec.BK == cfg.BK &&
			spec.ClusterShape == cfg.Cluster && spec.TMem.StageN == cfg.Stage {
			matched = true
			break
		}
	}
	if !matched {
		return errors.Wrap(ErrInvalidInput, "wave spec shape/cluster not in whitelist")
	}

	if (spec.BK*DTypeBytes(dtype))%32 != 0 {
		return errors.Wrapf(ErrInvalidInput, "wave spec bk=%d fails tensor core granularity for dtype=%s", spec.BK, dtype)
	}

	if spec.SwapWindow[0] < 0 || spec.SwapWindow[1] <= spec.SwapWindow[0] {
		return errors.Wrapf(ErrInvalidInput, "invalid swap window (%d, %d); must satisfy 0 <= begin < end", spec.SwapWindow[0], spec.SwapWindow[1])
	}
	return nil
}

// snakeOrder is a row-major traversal with odd rows reversed.
func snakeOrder(rows, cols int) [][2]int {
	order := make([][2]int, 0, rows*cols)
	for r := 0; r < rows; r++ {
		if r%2 == 0 {
			for c := 0; c < cols; c++ {
				order = append(order, [2]int{r, c})
			}
		} else {
			for c := cols - 1; c >= 0; c-- {
				order = append(order, [2]int{r, c})
			}
		}
	}
	return order
}

// packOrderIDs converts request ids to numeric pack codes: numeric ids are
// used directly, anything else is factorized in first-appearance order.
func packOrderIDs(reqs []KVRequest) []int64 {
	out := make([]int64, len(reqs))
	numeric := true
	for i, r := range reqs {
		v, err := strconv.ParseInt(r.ReqID, 10, 64)
		if err != nil {
			numeric = false
			break
		}
		out[i] = v
	}
	if numeric {
		return out
	}
	seen := make(map[string]int64, len(reqs))
	var next int64
	for i, r := range reqs {
		code, ok := seen[r.ReqID]
		if !ok {
			code = next
			seen[r.ReqID] = code
			next++
		}
		out[i] = code
	}
	return out
}

// BuildWaveSpecs derives one validated WaveSpec per (node, tier_dst) plan
// group: io_extents mirror the plan's coalesced ranges, pack_order lists
// request ids sorted by (pcluster, deadline), and the tile grid is a snake
// swizzle sized to the op count.
func BuildWaveSpecs(plan []PlanOp, reqs []KVRequest, clusters []int64, dtype string, whitelist []TileConfig) ([]WaveSpec, error) {
	if len(plan) == 0 {
		return nil, nil
	}
	cfg, err := SelectTileConfig(dtype, whitelist)
	if err != nil {
		return nil, err
	}
	tmem := TMemLayout{Columns: 8, Phases: 4, DoubleBuffer: true, StageN: cfg.Stage}

	type groupKey struct {
		node    string
		tierDst int
	}
	var order []groupKey
	groups := make(map[groupKey][]PlanOp)
	for _, op := range plan {
		gk := groupKey{op.Node, op.TierDst}
		if _, ok := groups[gk]; !ok {
			order = append(order, gk)
		}
		groups[gk] = append(groups[gk], op)
	}

	if len(clusters) == 0 {
		clusters = factorizePrefixes(reqs)
	}

	waves := make([]WaveSpec, 0, len(order))
	for _, gk := range order {
		ops := groups[gk]

		extents := make([]IOExtent, 0, len(ops))
		layers := make(map[int]struct{}, len(ops))
		for _, op := range ops {
			layers[op.Layer] = struct{}{}
			if op.EndPID >= op.StartPID {
				extents = append(extents, IOExtent{
					Layer:    strconv.Itoa(op.Layer),
					StartPID: op.StartPID,
					EndPID:   op.EndPID,
				})
			}
		}

		// Pack order: requests on this group's layers, grouped by cluster
		// then earliest deadline.
		type packRow struct {
			idx      int
			pcluster int64
			deadline int64
		}
		packRows := make([]packRow, 0, len(reqs))
		for i, r := range reqs {
			if _, ok := layers[r.Layer]; !ok {
				continue
			}
			packRows = append(packRows, packRow{idx: i, pcluster: clusters[i], deadline: r.DeadlineMS})
		}
		sort.SliceStable(packRows, func(i, j int) bool {
			if packRows[i].pcluster != packRows[j].pcluster {
				return packRows[i].pcluster < packRows[j].pcluster
			}
			return packRows[i].deadline < packRows[j].deadline
		})
		subset := make([]KVRequest, len(packRows))
		for i, pr := range packRows {
			subset[i] = reqs[pr.idx]
		}
		packOrder := packOrderIDs(subset)

		tiles := len(extents)
		if tiles < 1 {
			tiles = 1
		}
		rows := int(math.Ceil(math.Sqrt(float64(tiles))))
		if rows < 1 {
			rows = 1
		}
		cols := int(math.Ceil(float64(tiles) / float64(rows)))
		for rows*cols < tiles {
			cols++
		}
		tileOrder := snakeOrder(rows, cols)[:tiles]

		wave := WaveSpec{
			PackOrder:    packOrder,
			TileOrder:    tileOrder,
			BM:           cfg.BM,
			BN:           cfg.BN,
			BK:           cfg.BK,
			ClusterShape: cfg.Cluster,
			TMem:         tmem,
			IOExtents:    extents,
			SwapWindow:   [2]int{len(extents), len(extents) + len(tileOrder)},
		}
		if err := ValidateWaveSpec(wave, dtype, whitelist); err != nil {
			return nil, err
		}
		waves = append(waves, wave)
	}
	return waves, nil
}
