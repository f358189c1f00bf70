package agent

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bodocache/bodocache/planner"
	"github.com/bodocache/bodocache/store"
	"github.com/bodocache/bodocache/telemetry"
)

// ReadyEvent announces one completed plan row to the consuming engine.
type ReadyEvent struct {
	Node     string `json:"node"`
	Layer    int    `json:"layer"`
	StartPID int64  `json:"start_pid"`
	EndPID   int64  `json:"end_pid"`
	Bytes    int64  `json:"bytes"`
}

// Dest describes where a row's data should land, as resolved by the engine
// integration.
type Dest struct {
	Ptr   any
	GPUID int
}

// DestResolver maps a ready event's coordinates to a destination buffer.
// Returning ok=false routes the row onto the plain-read path.
type DestResolver func(ReadyEvent) (Dest, bool)

// ExecStats summarizes one executed plan.
type ExecStats struct {
	Ops        int
	Bytes      int64
	DurationMS float64
	Ready      int64
	OnTime     int64
}

// ExecOptions tunes one Execute call.
type ExecOptions struct {
	OnReady        func(ReadyEvent)
	DestResolver   DestResolver
	NowMS          int64
	CaptureMetrics bool
}

// Executor walks finalized plans against a segmented store and an optional
// copy engine. It holds no per-window state; a single Executor may serve
// overlapping windows.
type Executor struct {
	Store     *store.SegmentedStore
	Engine    CopyEngine // nil: always plain reads
	PageBytes int64      // fallback when a row carries no page_bytes
	Trace     *telemetry.TraceRecorder
	Metrics   *telemetry.Metrics
}

// Execute dispatches every plan row exactly once. Rows are walked in plan
// order, which the planner emits deadline-ascending within each
// (node, tier_src, tier_dst). Row-level I/O failures are logged and skipped;
// the rest of the plan proceeds.
func (ex *Executor) Execute(plan []planner.PlanOp, modelID, modelVersion string, opts ExecOptions) ExecStats {
	stats := ExecStats{}
	if len(plan) == 0 {
		return stats
	}
	start := time.Now()

	var ready, onTime int64
	for i := range plan {
		row := &plan[i]
		pageBytes := row.PageBytes
		if pageBytes <= 0 {
			pageBytes = ex.PageBytes
		}
		var nbytes int64
		if row.EndPID >= row.StartPID {
			nbytes = (row.EndPID - row.StartPID + 1) * pageBytes
		}
		stats.Ops++
		stats.Bytes += nbytes

		ev := ReadyEvent{
			Node:     row.Node,
			Layer:    row.Layer,
			StartPID: row.StartPID,
			EndPID:   row.EndPID,
			Bytes:    nbytes,
		}

		// fired guards at-most-once completion for this row even if a
		// misbehaving engine invokes done twice.
		fired := new(atomic.Bool)
		deadlineRel := float64(row.DeadlineMS - opts.NowMS)
		complete := func() {
			if !fired.CompareAndSwap(false, true) {
				return
			}
			atomic.AddInt64(&ready, 1)
			if opts.CaptureMetrics {
				finishRel := float64(time.Since(start).Microseconds()) / 1000.0
				met := finishRel <= deadlineRel
				if met {
					atomic.AddInt64(&onTime, 1)
				}
				if ex.Metrics != nil {
					ex.Metrics.ReadyOps.Inc()
					if met {
						ex.Metrics.OnTimeOps.Inc()
					}
				}
				if ex.Trace != nil {
					ex.Trace.Record(telemetry.PrefetchEvent{
						NowMS:         opts.NowMS,
						Node:          row.Node,
						ModelID:       modelID,
						ModelVersion:  modelVersion,
						Layer:         row.Layer,
						StartPID:      row.StartPID,
						EndPID:        row.EndPID,
						Bytes:         nbytes,
						DeadlineRelMS: deadlineRel,
						FinishRelMS:   finishRel,
						OnTime:        met,
					})
				}
			}
			if opts.OnReady != nil {
				safeNotify(opts.OnReady, ev)
			}
		}

		if ex.submitViaEngine(row, modelID, modelVersion, pageBytes, nbytes, ev, opts, complete) {
			continue
		}

		// Plain read path: read synchronously and mark ready.
		if _, err := ex.Store.ReadRange(modelID, modelVersion, row.Layer, row.StartPID, row.EndPID, pageBytes); err != nil {
			logrus.Warnf("agent: read range layer=%d [%d,%d] failed: %v", row.Layer, row.StartPID, row.EndPID, err)
			continue
		}
		if nbytes > 0 {
			complete()
		}
	}

	stats.Ready = atomic.LoadInt64(&ready)
	stats.OnTime = atomic.LoadInt64(&onTime)
	stats.DurationMS = float64(time.Since(start).Microseconds()) / 1000.0
	return stats
}

// submitViaEngine tries the pinned-buffer engine path for one row. It
// reports false when the row should fall back to a plain read; engine panics
// are treated as engine failure, not a window failure.
func (ex *Executor) submitViaEngine(row *planner.PlanOp, modelID, modelVersion string, pageBytes, nbytes int64, ev ReadyEvent, opts ExecOptions, complete func()) (submitted bool) {
	if ex.Engine == nil || opts.DestResolver == nil || nbytes <= 0 {
		return false
	}
	dst, ok := opts.DestResolver(ev)
	if !ok {
		return false
	}
	provider, ok := ex.Engine.(HostBufferProvider)
	if !ok {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			logrus.Warnf("agent: copy engine failed, falling back to plain read: %v", r)
			submitted = false
		}
	}()

	buf := provider.AcquireHostBuffer(nbytes)
	if _, err := ex.Store.ReadRangeInto(modelID, modelVersion, row.Layer, row.StartPID, row.EndPID, pageBytes, buf); err != nil {
		logrus.Warnf("agent: read into pinned buffer layer=%d [%d,%d] failed: %v", row.Layer, row.StartPID, row.EndPID, err)
		// The read itself failed; the row is skipped, not retried.
		return true
	}
	op := &CopyOp{
		Src:        buf,
		Dst:        dst.Ptr,
		Bytes:      nbytes,
		StreamID:   row.Overlap - 1,
		GPUID:      dst.GPUID,
		DeadlineMS: row.DeadlineMS,
	}
	// Single-op batch keeps the completion context simple.
	ex.Engine.Submit([]*CopyOp{op}, func(*CopyOp) { complete() })
	return true
}

// ExecuteWave reads the I/O extents of a wave spec and fires on_ready per
// extent. This is the simulator-friendly wave path; it bypasses the copy
// engine.
func (ex *Executor) ExecuteWave(wave planner.WaveSpec, modelID, modelVersion string, pageBytes int64, onReady func(ReadyEvent)) ExecStats {
	stats := ExecStats{}
	start := time.Now()
	if pageBytes <= 0 {
		pageBytes = ex.PageBytes
	}
	for _, ext := range wave.IOExtents {
		if ext.EndPID < ext.StartPID {
			continue
		}
		layer, err := strconv.Atoi(ext.Layer)
		if err != nil {
			logrus.Warnf("agent: wave extent has non-numeric layer %q", ext.Layer)
			continue
		}
		nbytes := (ext.EndPID - ext.StartPID + 1) * pageBytes
		if _, err := ex.Store.ReadRange(modelID, modelVersion, layer, ext.StartPID, ext.EndPID, pageBytes); err != nil {
			logrus.Warnf("agent: wave read layer=%d [%d,%d] failed: %v", layer, ext.StartPID, ext.EndPID, err)
			continue
		}
		stats.Ops++
		stats.Bytes += nbytes
		stats.Ready++
		if onReady != nil {
			safeNotify(onReady, ReadyEvent{Layer: layer, StartPID: ext.StartPID, EndPID: ext.EndPID, Bytes: nbytes})
		}
	}
	stats.DurationMS = float64(time.Since(start).Microseconds()) / 1000.0
	return stats
}

// safeNotify shields the executor from panics in advisory callbacks.
func safeNotify(fn func(ReadyEvent), ev ReadyEvent) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Warnf("agent: on_ready callback panicked: %v", r)
		}
	}()
	fn(ev)
}
