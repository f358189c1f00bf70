package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageKeyEncodeDecode(t *testing.T) {
	k := PageKey{
		ModelID:      "m70b",
		ModelVersion: "v1",
		DType:        "float16",
		NKVHeads:     8,
		DHead:        128,
		Layer:        17,
		PageID:       4096,
	}
	encoded := k.Encode()
	assert.Equal(t, "m70b:v1:float16:8:128:17:4096", encoded)

	back, err := DecodePageKey(encoded)
	require.NoError(t, err)
	assert.Equal(t, k, back)
}

func TestDecodePageKey_Malformed(t *testing.T) {
	for _, s := range []string{"", "a:b", "a:b:c:x:1:2:3", "a:b:c:1:2:3:notanint"} {
		_, err := DecodePageKey(s)
		assert.Errorf(t, err, "expected failure for %q", s)
	}
}

func TestPageTable_SetGetExists(t *testing.T) {
	pt := NewPageTable()
	k := PageKey{ModelID: "m", ModelVersion: "v", DType: "f16", NKVHeads: 2, DHead: 64, Layer: 0, PageID: 1}

	assert.False(t, pt.Exists(k))
	pt.Set(k, Location{Tier: 1, Node: "n0"})
	loc, ok := pt.Get(k)
	require.True(t, ok)
	assert.Equal(t, "n0", loc.Node)
	assert.True(t, pt.Exists(k))
}

func TestPageTable_IterLayerPages(t *testing.T) {
	pt := NewPageTable()
	for _, pid := range []int64{5, 1, 3} {
		pt.Set(PageKey{ModelID: "m", ModelVersion: "v", DType: "f16", NKVHeads: 2, DHead: 64, Layer: 2, PageID: pid},
			Location{Tier: 0})
	}
	pt.Set(PageKey{ModelID: "m", ModelVersion: "v", DType: "f16", NKVHeads: 2, DHead: 64, Layer: 3, PageID: 9},
		Location{Tier: 0})

	var pids []int64
	pt.IterLayerPages("m", "v", 2, func(k PageKey, _ Location) {
		pids = append(pids, k.PageID)
	})
	assert.Equal(t, []int64{1, 3, 5}, pids)
}

func TestContiguousRuns(t *testing.T) {
	assert.Nil(t, ContiguousRuns(nil))
	assert.Equal(t, [][2]int64{{4, 4}}, ContiguousRuns([]int64{4}))
	assert.Equal(t, [][2]int64{{1, 3}, {7, 8}}, ContiguousRuns([]int64{3, 1, 2, 8, 7}))
	assert.Equal(t, [][2]int64{{1, 2}}, ContiguousRuns([]int64{1, 1, 2}))
}
