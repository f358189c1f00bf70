package planner

import "fmt"

// ContextShard describes context-parallel ownership: rank owns every page id
// p with p % worldSize == rank. Engines that pre-shard their demands should
// not apply this again.
type ContextShard struct {
	WorldSize int
	Rank      int
}

// ShardRequests splits each request interval into the single-page requests
// owned by the shard's rank. Splitting to single pages keeps modulo
// ownership exact for non-contiguous ownership patterns. Identity when
// worldSize <= 1.
func ShardRequests(reqs []KVRequest, shard ContextShard) []KVRequest {
	if shard.WorldSize <= 1 {
		return reqs
	}
	ws := shard.WorldSize
	rank := ((shard.Rank % ws) + ws) % ws

	out := make([]KVRequest, 0, len(reqs))
	for _, r := range reqs {
		if r.PageEnd < r.PageStart {
			continue
		}
		for pid := r.PageStart; pid <= r.PageEnd; pid++ {
			if int(pid%int64(ws)) != rank {
				continue
			}
			sub := r
			sub.ReqID = fmt.Sprintf("%s-sh%d", r.ReqID, pid)
			sub.PageStart = pid
			sub.PageEnd = pid
			out = append(out, sub)
		}
	}
	return out
}
