// Package planner implements the per-window KV-cache prefetch planning
// pipeline: score and filter page-interval demands, gate them by tenant
// credits, coalesce adjacent ranges into large I/Os, cap the result per
// tier, and annotate overlap depth and priority. It also hosts the
// admission/eviction side decisions, prefix clustering, wave/tile
// validation, and the heat sketch that feeds the scorer.
//
// The pipeline is a pure function of its inputs: identical inputs yield an
// identical plan. Per-window tables are values owned by the caller and are
// never retained across calls.
package planner
