package planner

// Storage tiers. Bandwidth caps are bytes per planning window.
const (
	TierStorage = 0
	TierHost    = 1
	TierDevice  = 2
)

// Request source labels attached by adapters. The planner never branches on
// them; they ride along for telemetry and routing.
const (
	SourceLive = "live"
	SourceHint = "hint"
)

// KVRequest is one page-interval demand row: a sequence on a node wants
// pages [PageStart, PageEnd] of one layer moved TierSrc -> TierDst before
// DeadlineMS.
type KVRequest struct {
	ReqID        string  `json:"req_id"`
	Node         string  `json:"node"`
	ModelID      string  `json:"model_id"`
	ModelVersion string  `json:"model_version"`
	PrefixID     string  `json:"prefix_id"`
	PrefixTokens []int   `json:"prefix_tokens,omitempty"` // optional, enables token-level MinHash
	Layer        int     `json:"layer"`
	PageStart    int64   `json:"page_start"` // inclusive
	PageEnd      int64   `json:"page_end"`   // inclusive, >= PageStart
	TierSrc      int     `json:"tier_src"`
	TierDst      int     `json:"tier_dst"`
	DeadlineMS   int64   `json:"deadline_ms"`
	PageBytes    int64   `json:"page_bytes"`
	Tenant       string  `json:"tenant"`
	EstFillMS    float64 `json:"est_fill_ms"`
	Source       string  `json:"request_source,omitempty"`
}

// HeatRow is the read-only hotness estimate for one (layer, page).
// Produced externally (see HeatSketch); missing rows are treated as
// DecayHits=0, TenantWeight=1 during scoring.
type HeatRow struct {
	Layer        int     `json:"layer"`
	PageID       int64   `json:"page_id"`
	DecayHits    int64   `json:"decay_hits"`
	TenantWeight float64 `json:"tenant_weight"`
	SizeBytes    int64   `json:"size_bytes,omitempty"`
}

// TierCap bounds a destination tier for the window.
type TierCap struct {
	Tier          int   `json:"tier"`
	BandwidthCaps int64 `json:"bandwidth_caps"` // bytes per window
	FreeBytes     int64 `json:"free_bytes"`
}

// TenantCap is a per-(tenant, tier) byte budget for the window. Tenants
// without an entry are unlimited.
type TenantCap struct {
	Tenant        string `json:"tenant"`
	Tier          int    `json:"tier"`
	BandwidthCaps int64  `json:"bandwidth_caps"`
}

// LayerLat is the per-layer compute latency used for overlap depth and
// cumulative deadline derivation.
type LayerLat struct {
	Layer int     `json:"layer"`
	LatMS float64 `json:"lat_ms"`
}

// PlanOp is one coalesced transfer the executor should issue.
type PlanOp struct {
	Node       string  `json:"node"`
	TierSrc    int     `json:"tier_src"`
	TierDst    int     `json:"tier_dst"`
	PCluster   int64   `json:"pcluster"`
	Layer      int     `json:"layer"`
	RunID      int64   `json:"run_id"`
	StartPID   int64   `json:"start_pid"`
	EndPID     int64   `json:"end_pid"`
	Bytes      int64   `json:"bytes"`
	DeadlineMS int64   `json:"deadline_ms"`
	Fanout     int64   `json:"fanout"`
	Overlap    int     `json:"overlap"`  // 1..3 sub-stream depth hint
	Priority   float64 `json:"priority"` // min urgency of merged rows
	PageBytes  int64   `json:"page_bytes"`
	RouteHint  string  `json:"route_hint,omitempty"`
}

// EvictKey names one eviction victim.
type EvictKey struct {
	Layer  int   `json:"layer"`
	PageID int64 `json:"page_id"`
}

// AdmitKey names one page to promote into persistent storage.
type AdmitKey struct {
	Layer   int   `json:"layer"`
	PageID  int64 `json:"page_id"`
	TierDst int   `json:"tier_dst"`
}

// Inputs bundles the per-window tables consumed by RunWindow. Clusters, when
// non-empty, must be parallel to Requests; otherwise RunWindow factorizes
// PrefixID into dense codes.
type Inputs struct {
	Requests   []KVRequest
	Clusters   []int64
	Heat       []HeatRow
	TierCaps   []TierCap
	TenantCaps []TenantCap
	LayerLat   []LayerLat
	NowMS      int64
}

// DropStats counts rows removed by each planner gate. Capacity drops are not
// errors; they are surfaced to telemetry through these counts.
type DropStats struct {
	ScoreFilter int64
	TenantCap   int64
	MinIO       int64
	TierCap     int64
	OpCap       int64
}

// Result is the output of one planning window.
type Result struct {
	Plan      []PlanOp
	Evict     []EvictKey
	Admission []AdmitKey
	Drops     DropStats
}
