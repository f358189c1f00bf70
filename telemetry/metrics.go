package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the planner's capacity accounting. Rows removed by cap
// stages are not errors; these counters are how they surface.
type Metrics struct {
	PlanOps       prometheus.Counter
	PlanBytes     prometheus.Counter
	DroppedRows   *prometheus.CounterVec
	ReadyOps      prometheus.Counter
	OnTimeOps     prometheus.Counter
	ReportCounter *prometheus.CounterVec
}

// Gate label values for DroppedRows.
const (
	GateScore     = "score_filter"
	GateTenantCap = "tenant_cap"
	GateMinIO     = "min_io"
	GateTierCap   = "tier_cap"
	GateOpCap     = "op_cap"
)

// NewMetrics registers the collector set on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PlanOps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bodocache_plan_ops_total",
			Help: "Coalesced plan ops emitted across windows.",
		}),
		PlanBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bodocache_plan_bytes_total",
			Help: "Bytes scheduled for transfer across windows.",
		}),
		DroppedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bodocache_dropped_rows_total",
			Help: "Rows removed by each planner gate.",
		}, []string{"gate"}),
		ReadyOps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bodocache_ready_ops_total",
			Help: "Executor completions observed.",
		}),
		OnTimeOps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bodocache_on_time_ops_total",
			Help: "Executor completions that met their deadline.",
		}),
		ReportCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bodocache_report_total",
			Help: "Opaque counters accepted on the report endpoint.",
		}, []string{"name"}),
	}
	reg.MustRegister(m.PlanOps, m.PlanBytes, m.DroppedRows, m.ReadyOps, m.OnTimeOps, m.ReportCounter)
	return m
}

// ObserveWindow records one planned window: op/byte totals plus drop counts
// per gate.
func (m *Metrics) ObserveWindow(ops int, bytes int64, drops map[string]int64) {
	m.PlanOps.Add(float64(ops))
	m.PlanBytes.Add(float64(bytes))
	for gate, n := range drops {
		if n > 0 {
			m.DroppedRows.WithLabelValues(gate).Add(float64(n))
		}
	}
}
