// Package telemetry provides the prefetch trace recorder and the Prometheus
// collectors for planner drop accounting. It stores pure data types and has
// no dependency on the planner or agent packages.
package telemetry

import (
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PrefetchEvent captures one completed prefetch op with its deadline
// accounting, relative to the window start.
type PrefetchEvent struct {
	WindowMS      int64   `json:"window_ms"`
	NowMS         int64   `json:"now_ms"`
	Node          string  `json:"node"`
	ModelID       string  `json:"model_id"`
	ModelVersion  string  `json:"model_version"`
	Layer         int     `json:"layer"`
	StartPID      int64   `json:"start_pid"`
	EndPID        int64   `json:"end_pid"`
	Bytes         int64   `json:"bytes"`
	DeadlineRelMS float64 `json:"deadline_rel_ms"`
	FinishRelMS   float64 `json:"finish_rel_ms"`
	OnTime        bool    `json:"on_time"`
}

// TraceRecorder accumulates prefetch events across windows. Completion
// callbacks may record from any goroutine.
type TraceRecorder struct {
	mu     sync.Mutex
	events []PrefetchEvent
}

// NewTraceRecorder returns an empty recorder.
func NewTraceRecorder() *TraceRecorder {
	return &TraceRecorder{}
}

// Record appends one event.
func (tr *TraceRecorder) Record(ev PrefetchEvent) {
	tr.mu.Lock()
	tr.events = append(tr.events, ev)
	tr.mu.Unlock()
}

// Events snapshots the recorded events.
func (tr *TraceRecorder) Events() []PrefetchEvent {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]PrefetchEvent, len(tr.events))
	copy(out, tr.events)
	return out
}

// Len reports the number of recorded events.
func (tr *TraceRecorder) Len() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.events)
}

// WriteJSONL dumps the events one JSON object per line.
func (tr *TraceRecorder) WriteJSONL(w io.Writer) error {
	for _, ev := range tr.Events() {
		line, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}
