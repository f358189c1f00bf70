package planner

import (
	"encoding/binary"

	"github.com/OneOfOne/xxhash"
	"github.com/pkg/errors"
)

// Prefix clustering maps requests whose prompts likely share KV prefix state
// to the same small integer code, so the coalescer can merge their I/O.
// Assignment is pure and stable across processes: only the request contents
// and the parameters feed the hashes.

// HashBucket maps a prefix id to a stable bucket via a 32-bit hash of its
// UTF-8 bytes.
func HashBucket(prefixID string, buckets int) int64 {
	if buckets < 1 {
		buckets = 1
	}
	return int64(xxhash.ChecksumString32(prefixID) % uint32(buckets))
}

// AssignClusters produces one cluster code per request by hash bucketing
// prefix_id.
func AssignClusters(reqs []KVRequest, buckets int) []int64 {
	out := make([]int64, len(reqs))
	for i, r := range reqs {
		out[i] = HashBucket(r.PrefixID, buckets)
	}
	return out
}

// AssignClustersMinHash produces cluster codes via MinHash + banding so that
// highly similar prefixes collide with overwhelming probability. Token-level
// k-grams over PrefixTokens are preferred; rows without tokens fall back to
// k-shingles of prefix_id. numHashes must divide evenly into bands.
func AssignClustersMinHash(reqs []KVRequest, numHashes, bands, k int) ([]int64, error) {
	if numHashes <= 0 || bands <= 0 || numHashes%bands != 0 {
		return nil, errors.Wrapf(ErrInvalidInput, "num_hashes %d must be divisible by bands %d", numHashes, bands)
	}
	rowsPerBand := numHashes / bands

	raw := make([]uint32, len(reqs))
	for i, r := range reqs {
		var sig []uint32
		if len(r.PrefixTokens) > 0 {
			sig = tokenSignature(r.PrefixTokens, numHashes, k)
		} else {
			sig = shingleSignature(r.PrefixID, numHashes, k)
		}
		raw[i] = bandCombine(sig, bands, rowsPerBand)
	}

	// Compact raw 32-bit ids into dense codes in first-appearance order.
	codes := make([]int64, len(raw))
	seen := make(map[uint32]int64, len(raw))
	var next int64
	for i, id := range raw {
		code, ok := seen[id]
		if !ok {
			code = next
			seen[id] = code
			next++
		}
		codes[i] = code
	}
	return codes, nil
}

// tokenSignature computes numHashes min-hashes over the k-grams of a token
// sequence. Sequences shorter than k contribute a single gram.
func tokenSignature(tokens []int, numHashes, k int) []uint32 {
	var grams [][]int
	if len(tokens) < k {
		grams = [][]int{tokens}
	} else {
		grams = make([][]int, 0, len(tokens)-k+1)
		for i := 0; i+k <= len(tokens); i++ {
			grams = append(grams, tokens[i:i+k])
		}
	}

	sig := make([]uint32, numHashes)
	buf := make([]byte, 0, 4+4*k)
	for seed := 0; seed < numHashes; seed++ {
		minVal := uint32(0)
		for gi, g := range grams {
			buf = buf[:0]
			buf = binary.LittleEndian.AppendUint32(buf, uint32(seed))
			for _, t := range g {
				buf = binary.LittleEndian.AppendUint32(buf, uint32(t))
			}
			h := xxhash.Checksum32(buf) & 0x7FFFFFFF
			if gi == 0 || h < minVal {
				minVal = h
			}
		}
		sig[seed] = minVal
	}
	return sig
}

// shingleSignature computes min-hashes over the k-character shingles of a
// prefix id string.
func shingleSignature(s string, numHashes, k int) []uint32 {
	var shingles []string
	if len(s) <= k {
		shingles = []string{s}
	} else {
		shingles = make([]string, 0, len(s)-k+1)
		for i := 0; i+k <= len(s); i++ {
			shingles = append(shingles, s[i:i+k])
		}
	}

	sig := make([]uint32, numHashes)
	for seed := 0; seed < numHashes; seed++ {
		minVal := uint32(0)
		for si, sh := range shingles {
			h := xxhash.ChecksumString32S(sh, uint32(seed)) & 0x7FFFFFFF
			if si == 0 || h < minVal {
				minVal = h
			}
		}
		sig[seed] = minVal
	}
	return sig
}

// bandCombine splits the signature into contiguous bands, hashes each band's
// rows to a 32-bit band key, and hashes the concatenated band keys to the
// raw cluster id.
func bandCombine(sig []uint32, bands, rowsPerBand int) uint32 {
	bandBuf := make([]byte, 0, 4*rowsPerBand)
	combo := make([]byte, 0, 4*bands)
	for b := 0; b < bands; b++ {
		bandBuf = bandBuf[:0]
		for _, v := range sig[b*rowsPerBand : (b+1)*rowsPerBand] {
			bandBuf = binary.LittleEndian.AppendUint32(bandBuf, v)
		}
		key := xxhash.Checksum32S(bandBuf, uint32(b))
		combo = binary.LittleEndian.AppendUint32(combo, key)
	}
	return xxhash.Checksum32(combo)
}

// RowClusters assigns each request its own cluster code (its row index).
// Used when prefix fan-out is disabled: coalescing then never merges I/O
// across distinct request rows.
func RowClusters(reqs []KVRequest) []int64 {
	out := make([]int64, len(reqs))
	for i := range reqs {
		out[i] = int64(i)
	}
	return out
}
