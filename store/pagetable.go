package store

import "sort"

// Location records where a page currently lives.
type Location struct {
	Tier  int
	Node  string
	Path  string // file backend
	GPUID int
}

// PageTable is a minimal in-memory map from PageKey to Location. It is a
// lookup aid for adapters; the store itself never consults it.
type PageTable struct {
	loc map[string]Location
}

// NewPageTable returns an empty table.
func NewPageTable() *PageTable {
	return &PageTable{loc: make(map[string]Location)}
}

// Set records the location for a key.
func (t *PageTable) Set(key PageKey, location Location) {
	t.loc[key.Encode()] = location
}

// Get returns the location for a key.
func (t *PageTable) Get(key PageKey) (Location, bool) {
	l, ok := t.loc[key.Encode()]
	return l, ok
}

// Exists reports whether a key has a recorded location.
func (t *PageTable) Exists(key PageKey) bool {
	_, ok := t.loc[key.Encode()]
	return ok
}

// BulkGet looks up many keys; misses yield zero Locations with ok=false in
// the parallel slice.
func (t *PageTable) BulkGet(keys []PageKey) ([]Location, []bool) {
	locs := make([]Location, len(keys))
	found := make([]bool, len(keys))
	for i, k := range keys {
		locs[i], found[i] = t.Get(k)
	}
	return locs, found
}

// IterLayerPages visits every recorded page of one (model, version, layer)
// in page-id order.
func (t *PageTable) IterLayerPages(modelID, modelVersion string, layer int, visit func(PageKey, Location)) {
	type entry struct {
		key PageKey
		loc Location
	}
	var entries []entry
	for encoded, loc := range t.loc {
		k, err := DecodePageKey(encoded)
		if err != nil {
			continue
		}
		if k.ModelID == modelID && k.ModelVersion == modelVersion && k.Layer == layer {
			entries = append(entries, entry{k, loc})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key.PageID < entries[j].key.PageID })
	for _, e := range entries {
		visit(e.key, e.loc)
	}
}

// ContiguousRuns collapses a set of page ids into sorted inclusive
// [start, end] runs.
func ContiguousRuns(pageIDs []int64) [][2]int64 {
	if len(pageIDs) == 0 {
		return nil
	}
	ids := make([]int64, len(pageIDs))
	copy(ids, pageIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var runs [][2]int64
	start, prev := ids[0], ids[0]
	for _, p := range ids[1:] {
		if p == prev+1 || p == prev {
			prev = p
			continue
		}
		runs = append(runs, [2]int64{start, prev})
		start, prev = p, p
	}
	runs = append(runs, [2]int64{start, prev})
	return runs
}
