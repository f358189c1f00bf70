package planner

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Knobs are the planner thresholds and toggles. Zero value is not useful;
// start from DefaultKnobs.
type Knobs struct {
	PMin            float64 `json:"pmin"`
	UMin            float64 `json:"umin"`
	Alpha           float64 `json:"alpha"`
	Beta            float64 `json:"beta"`
	MinIOBytes      int64   `json:"min_io_bytes"`
	MaxOpsPerTier   int     `json:"max_ops_per_tier"`
	WindowMS        int64   `json:"window_ms"`
	ReuseThreshold  float64 `json:"reuse_threshold"`
	EnableAdmission bool    `json:"enable_admission"`
	EnableEviction  bool    `json:"enable_eviction"`
	EnforceTierCaps bool    `json:"enforce_tier_caps"`
}

// DefaultKnobs returns the documented defaults.
func DefaultKnobs() Knobs {
	return Knobs{
		PMin:            1.0,
		UMin:            0.0,
		Alpha:           1.0,
		Beta:            0.0,
		MinIOBytes:      512 * 1024,
		MaxOpsPerTier:   64,
		WindowMS:        20,
		ReuseThreshold:  10.0,
		EnableAdmission: true,
		EnableEviction:  true,
		EnforceTierCaps: true,
	}
}

// referenceMode reports whether BODOCACHE_PURE_PY requests the
// debug/reference pipeline: same canonical stages, with per-stage row
// accounting logged at debug level.
func referenceMode() bool {
	v := strings.ToLower(os.Getenv("BODOCACHE_PURE_PY"))
	return v == "1" || v == "true" || v == "yes"
}

// RunWindow plans one window. It is a pure function of its inputs: the same
// tables and knobs produce a byte-identical Result. Input slices are not
// retained.
func RunWindow(in Inputs, k Knobs) (Result, error) {
	if err := validateInputs(in); err != nil {
		return Result{}, err
	}

	clusters := in.Clusters
	if len(clusters) == 0 {
		clusters = factorizePrefixes(in.Requests)
	}

	debug := referenceMode()

	cands, dropScore := scoreAndFilter(in.Requests, clusters, in.Heat, in.NowMS, k)
	if debug {
		logrus.Debugf("planner: score+filter kept %d of %d rows", len(cands), len(in.Requests))
	}
	cands, dropTenant := applyTenantCaps(cands, in.TenantCaps)
	if debug {
		logrus.Debugf("planner: tenant credit gate kept %d rows", len(cands))
	}
	runs, dropMinIO := coalesceIntervals(cands, k.MinIOBytes)
	if debug {
		logrus.Debugf("planner: coalesced into %d runs >= %d bytes", len(runs), k.MinIOBytes)
	}
	plan, dropTier, dropOps := applyCaps(runs, in.TierCaps, in.LayerLat, k)
	if debug {
		logrus.Debugf("planner: caps kept %d ops (tier drops %d, op-cap drops %d)", len(plan), dropTier, dropOps)
	}

	res := Result{
		Plan: plan,
		Drops: DropStats{
			ScoreFilter: dropScore,
			TenantCap:   dropTenant,
			MinIO:       dropMinIO,
			TierCap:     dropTier,
			OpCap:       dropOps,
		},
	}
	if k.EnableEviction {
		res.Evict = EvictionDecisions(plan, in.Heat, in.TierCaps)
	}
	if k.EnableAdmission {
		res.Admission = AdmissionDecisions(in.Requests, in.Heat, k.ReuseThreshold)
	}
	return res, nil
}

func validateInputs(in Inputs) error {
	if len(in.Clusters) != 0 && len(in.Clusters) != len(in.Requests) {
		return errors.Wrapf(ErrInvalidInput, "clusters length %d != requests length %d", len(in.Clusters), len(in.Requests))
	}
	for _, r := range in.Requests {
		if r.PageEnd < r.PageStart {
			return errors.Wrapf(ErrInvalidInput, "request %s: page_end %d < page_start %d", r.ReqID, r.PageEnd, r.PageStart)
		}
		if r.PageBytes <= 0 {
			return errors.Wrapf(ErrInvalidInput, "request %s: page_bytes must be positive", r.ReqID)
		}
	}
	return nil
}

// factorizePrefixes maps each distinct prefix_id to a dense small integer in
// first-appearance order. This is the default cluster assignment when no
// explicit clustering ran.
func factorizePrefixes(reqs []KVRequest) []int64 {
	codes := make([]int64, len(reqs))
	seen := make(map[string]int64, len(reqs))
	var next int64
	for i, r := range reqs {
		code, ok := seen[r.PrefixID]
		if !ok {
			code = next
			seen[r.PrefixID] = code
			next++
		}
		codes[i] = code
	}
	return codes
}

// AttachRouteHints annotates each plan op with "prefix:<prefix_id>" of a
// representative request covering the op's range on the same route. Live
// requests win over speculative hints. Ops with no covering request are left
// unhinted.
func AttachRouteHints(plan []PlanOp, reqs []KVRequest) {
	for i := range plan {
		op := &plan[i]
		var chosen *KVRequest
		for j := range reqs {
			r := &reqs[j]
			if r.Layer != op.Layer || r.TierSrc != op.TierSrc || r.TierDst != op.TierDst {
				continue
			}
			if r.PageEnd < op.StartPID || r.PageStart > op.EndPID {
				continue
			}
			if r.Source != SourceHint {
				chosen = r
				break
			}
			if chosen == nil {
				chosen = r
			}
		}
		if chosen != nil {
			op.RouteHint = "prefix:" + chosen.PrefixID
		}
	}
}

// MergeHintRequests appends speculative rows that do not duplicate a live
// request on (prefix_id, layer, page range, tenant, route). Returned rows
// carry their source label.
func MergeHintRequests(live, hints []KVRequest) []KVRequest {
	type identity struct {
		prefixID         string
		layer            int
		pageStart        int64
		pageEnd          int64
		tenant           string
		tierSrc, tierDst int
	}
	key := func(r KVRequest) identity {
		return identity{r.PrefixID, r.Layer, r.PageStart, r.PageEnd, r.Tenant, r.TierSrc, r.TierDst}
	}

	out := make([]KVRequest, 0, len(live)+len(hints))
	seen := make(map[identity]struct{}, len(live))
	for _, r := range live {
		r.Source = SourceLive
		seen[key(r)] = struct{}{}
		out = append(out, r)
	}
	for _, h := range hints {
		if _, dup := seen[key(h)]; dup {
			continue
		}
		h.Source = SourceHint
		seen[key(h)] = struct{}{}
		out = append(out, h)
	}
	return out
}
