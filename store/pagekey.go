package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// PageKey uniquely identifies one KV-cache page within a model version.
type PageKey struct {
	ModelID      string
	ModelVersion string
	DType        string
	NKVHeads     int
	DHead        int
	Layer        int
	PageID       int64
}

// Encode renders the compact, collision-free string form used by adapters
// and the page table.
func (k PageKey) Encode() string {
	return fmt.Sprintf("%s:%s:%s:%d:%d:%d:%d",
		k.ModelID, k.ModelVersion, k.DType, k.NKVHeads, k.DHead, k.Layer, k.PageID)
}

// DecodePageKey parses the string form produced by Encode.
func DecodePageKey(s string) (PageKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 7 {
		return PageKey{}, errors.Errorf("store: malformed page key %q", s)
	}
	nHeads, err := strconv.Atoi(parts[3])
	if err != nil {
		return PageKey{}, errors.Wrapf(err, "store: page key %q n_kv_heads", s)
	}
	dHead, err := strconv.Atoi(parts[4])
	if err != nil {
		return PageKey{}, errors.Wrapf(err, "store: page key %q d_head", s)
	}
	layer, err := strconv.Atoi(parts[5])
	if err != nil {
		return PageKey{}, errors.Wrapf(err, "store: page key %q layer", s)
	}
	pageID, err := strconv.ParseInt(parts[6], 10, 64)
	if err != nil {
		return PageKey{}, errors.Wrapf(err, "store: page key %q page_id", s)
	}
	return PageKey{
		ModelID:      parts[0],
		ModelVersion: parts[1],
		DType:        parts[2],
		NKVHeads:     nHeads,
		DHead:        dHead,
		Layer:        layer,
		PageID:       pageID,
	}, nil
}
