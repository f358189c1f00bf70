package planner

import (
	"math"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
)

// HeatSketch approximates per-page hotness with a Count-Min sketch for the
// upper bound and a Space-Saving top-k for the report surface, with
// exponential decay between windows. It is maintained outside the planning
// window; within a window its export is read-only input.

// CountMin is a conservative frequency sketch. Row hashes are seeded 32-bit
// hashes of the key bytes.
type CountMin struct {
	width int
	depth int
	seed  uint32
	table [][]int64
}

// NewCountMin allocates a width x depth sketch.
func NewCountMin(width, depth int, seed uint32) *CountMin {
	t := make([][]int64, depth)
	for i := range t {
		t[i] = make([]int64, width)
	}
	return &CountMin{width: width, depth: depth, seed: seed, table: t}
}

func (cm *CountMin) slot(key string, row int) int {
	h := xxhash.ChecksumString32S(key, cm.seed+uint32(row)) & 0x7FFFFFFF
	return int(h) % cm.width
}

// Add increments the key's counters.
func (cm *CountMin) Add(key string, c int64) {
	for i := 0; i < cm.depth; i++ {
		cm.table[i][cm.slot(key, i)] += c
	}
}

// Query returns the minimum counter across rows, an upper bound on the true
// count.
func (cm *CountMin) Query(key string) int64 {
	est := cm.table[0][cm.slot(key, 0)]
	for i := 1; i < cm.depth; i++ {
		if v := cm.table[i][cm.slot(key, i)]; v < est {
			est = v
		}
	}
	return est
}

type ssCounter struct {
	count int64
	err   int64
}

// spaceSaving keeps approximate top-k counters, replacing the minimum when
// a new key arrives at capacity.
type spaceSaving struct {
	k        int
	counters map[string]ssCounter
}

func newSpaceSaving(k int) *spaceSaving {
	return &spaceSaving{k: k, counters: make(map[string]ssCounter, k)}
}

func (ss *spaceSaving) add(key string, c int64) {
	if cur, ok := ss.counters[key]; ok {
		cur.count += c
		ss.counters[key] = cur
		return
	}
	if len(ss.counters) < ss.k {
		ss.counters[key] = ssCounter{count: c}
		return
	}
	minKey := ""
	minCount := int64(math.MaxInt64)
	for k2, v := range ss.counters {
		if v.count < minCount || (v.count == minCount && (minKey == "" || k2 < minKey)) {
			minKey = k2
			minCount = v.count
		}
	}
	delete(ss.counters, minKey)
	ss.counters[key] = ssCounter{count: minCount + c, err: minCount}
}

// HeatSketch combines CountMin and Space-Saving with time-based exponential
// decay. Safe for concurrent use.
type HeatSketch struct {
	mu          sync.Mutex
	cms         *CountMin
	ss          *spaceSaving
	decayLambda float64
	lastDecay   time.Time
	now         func() time.Time
}

// NewHeatSketch builds a sketch; decayLambda is the per-second decay rate.
func NewHeatSketch(width, depth, k int, decayLambda float64) *HeatSketch {
	now := time.Now
	return &HeatSketch{
		cms:         NewCountMin(width, depth, 1337),
		ss:          newSpaceSaving(k),
		decayLambda: decayLambda,
		lastDecay:   now(),
		now:         now,
	}
}

// Add records c hits for the key.
func (hs *HeatSketch) Add(key string, c int64) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.cms.Add(key, c)
	hs.ss.add(key, c)
}

// Decay scales the top-k counters by exp(-lambda * dt) since the previous
// decay. The Count-Min rows are left as upper bounds.
func (hs *HeatSketch) Decay() {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	nowT := hs.now()
	dt := nowT.Sub(hs.lastDecay).Seconds()
	if dt < 0 {
		dt = 0
	}
	hs.lastDecay = nowT
	f := math.Exp(-hs.decayLambda * dt)
	for k, v := range hs.ss.counters {
		hs.ss.counters[k] = ssCounter{count: int64(float64(v.count) * f), err: int64(float64(v.err) * f)}
	}
}

// Estimate intersects the Count-Min upper bound with the top-k counter when
// present.
func (hs *HeatSketch) Estimate(key string) int64 {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	est := hs.cms.Query(key)
	if v, ok := hs.ss.counters[key]; ok && v.count < est {
		est = v.count
	}
	return est
}

// ExportHeat snapshots the tracked keys and their decayed counts.
func (hs *HeatSketch) ExportHeat() map[string]int64 {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	out := make(map[string]int64, len(hs.ss.counters))
	for k, v := range hs.ss.counters {
		out[k] = v.count
	}
	return out
}
