package planner

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeatSketch_AddAndEstimate(t *testing.T) {
	hs := NewHeatSketch(1024, 4, 128, 0.01)
	for i := 0; i < 25; i++ {
		hs.Add("0:7", 1)
	}
	hs.Add("1:3", 2)

	assert.Equal(t, int64(25), hs.Estimate("0:7"))
	assert.Equal(t, int64(2), hs.Estimate("1:3"))
	assert.Equal(t, int64(0), hs.Estimate("9:9"))
}

func TestHeatSketch_ExportHeat(t *testing.T) {
	hs := NewHeatSketch(1024, 4, 128, 0.01)
	hs.Add("0:1", 5)
	hs.Add("0:2", 3)

	heat := hs.ExportHeat()
	require.Len(t, heat, 2)
	assert.Equal(t, int64(5), heat["0:1"])
	assert.Equal(t, int64(3), heat["0:2"])
}

func TestHeatSketch_DecayShrinksCounts(t *testing.T) {
	hs := NewHeatSketch(1024, 4, 128, 0.5)
	hs.Add("0:1", 100)

	// Pin the clock two seconds ahead so the decay factor is exp(-1).
	base := hs.lastDecay
	hs.now = func() time.Time { return base.Add(2 * time.Second) }
	hs.Decay()

	got := hs.ExportHeat()["0:1"]
	assert.Less(t, got, int64(100))
	assert.Greater(t, got, int64(0))
	assert.InDelta(t, 36, float64(got), 2)
}

func TestHeatSketch_TopKReplacement(t *testing.T) {
	hs := NewHeatSketch(1024, 4, 2, 0.01)
	hs.Add("a", 10)
	hs.Add("b", 5)
	hs.Add("c", 1) // evicts the min counter, inheriting its count as error

	heat := hs.ExportHeat()
	assert.Len(t, heat, 2)
	assert.Contains(t, heat, "a")
	assert.Contains(t, heat, "c")
	assert.Equal(t, int64(6), heat["c"])
}

func TestCountMin_UpperBound(t *testing.T) {
	cm := NewCountMin(512, 4, 1)
	for i := 0; i < 200; i++ {
		cm.Add(fmt.Sprintf("key-%d", i), 1)
	}
	// Estimates never undercount.
	for i := 0; i < 200; i++ {
		assert.GreaterOrEqual(t, cm.Query(fmt.Sprintf("key-%d", i)), int64(1))
	}
}
