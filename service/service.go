// Package service wraps the planner pipeline in a thin JSON request/response
// shell: POST /get_plan plans one window, POST /report ingests opaque
// counters, and /metrics exposes the Prometheus registry.
package service

import (
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/bodocache/bodocache/planner"
	"github.com/bodocache/bodocache/telemetry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// planRequest is the /get_plan wire payload. Absent knob keys fall back to
// the documented defaults.
type planRequest struct {
	Requests   []planner.KVRequest `json:"requests"`
	Heat       []planner.HeatRow   `json:"heat"`
	TierCaps   []planner.TierCap   `json:"tier_caps"`
	TenantCaps []planner.TenantCap `json:"tenant_caps"`
	LayerLat   []planner.LayerLat  `json:"layer_lat"`
	NowMS      int64               `json:"now_ms"`
	Knobs      knobsWire           `json:"knobs"`
}

// knobsWire uses pointers so "absent" and "zero" stay distinguishable.
type knobsWire struct {
	PMin            *float64 `json:"pmin"`
	UMin            *float64 `json:"umin"`
	Alpha           *float64 `json:"alpha"`
	Beta            *float64 `json:"beta"`
	MinIOBytes      *int64   `json:"min_io_bytes"`
	MaxOpsPerTier   *int     `json:"max_ops_per_tier"`
	WindowMS        *int64   `json:"window_ms"`
	EnableAdmission *bool    `json:"enable_admission"`
	EnableEviction  *bool    `json:"enable_eviction"`
	EnforceTierCaps *bool    `json:"enforce_tier_caps"`
}

func (w knobsWire) resolve() planner.Knobs {
	k := planner.DefaultKnobs()
	if w.PMin != nil {
		k.PMin = *w.PMin
	}
	if w.UMin != nil {
		k.UMin = *w.UMin
	}
	if w.Alpha != nil {
		k.Alpha = *w.Alpha
	}
	if w.Beta != nil {
		k.Beta = *w.Beta
	}
	if w.MinIOBytes != nil {
		k.MinIOBytes = *w.MinIOBytes
	}
	if w.MaxOpsPerTier != nil {
		k.MaxOpsPerTier = *w.MaxOpsPerTier
	}
	if w.WindowMS != nil {
		k.WindowMS = *w.WindowMS
	}
	if w.EnableAdmission != nil {
		k.EnableAdmission = *w.EnableAdmission
	}
	if w.EnableEviction != nil {
		k.EnableEviction = *w.EnableEviction
	}
	if w.EnforceTierCaps != nil {
		k.EnforceTierCaps = *w.EnforceTierCaps
	}
	return k
}

type planResponse struct {
	Plan      []planner.PlanOp   `json:"plan"`
	Evict     []planner.EvictKey `json:"evict"`
	Admission []planner.AdmitKey `json:"admission"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server hosts the plan endpoints.
type Server struct {
	log      *logrus.Logger
	metrics  *telemetry.Metrics
	registry *prometheus.Registry
}

// NewServer wires a server with its own Prometheus registry.
func NewServer(log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	reg := prometheus.NewRegistry()
	return &Server{
		log:      log,
		metrics:  telemetry.NewMetrics(reg),
		registry: reg,
	}
}

// Handler returns the HTTP handler for the service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/get_plan", s.handleGetPlan)
	mux.HandleFunc("/report", s.handleReport)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.send(w, http.StatusMethodNotAllowed, errorResponse{Error: "POST required"})
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.send(w, http.StatusBadRequest, errorResponse{Error: "read body: " + err.Error()})
		return
	}
	var req planRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.send(w, http.StatusBadRequest, errorResponse{Error: "invalid json: " + err.Error()})
		return
	}

	res, err := planner.RunWindow(planner.Inputs{
		Requests:   req.Requests,
		Heat:       req.Heat,
		TierCaps:   req.TierCaps,
		TenantCaps: req.TenantCaps,
		LayerLat:   req.LayerLat,
		NowMS:      req.NowMS,
	}, req.Knobs.resolve())
	if err != nil {
		s.log.Warnf("service: plan window failed: %v", err)
		s.send(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	var planBytes int64
	for _, op := range res.Plan {
		planBytes += op.Bytes
	}
	s.metrics.ObserveWindow(len(res.Plan), planBytes, map[string]int64{
		telemetry.GateScore:     res.Drops.ScoreFilter,
		telemetry.GateTenantCap: res.Drops.TenantCap,
		telemetry.GateMinIO:     res.Drops.MinIO,
		telemetry.GateTierCap:   res.Drops.TierCap,
		telemetry.GateOpCap:     res.Drops.OpCap,
	})

	resp := planResponse{
		Plan:      res.Plan,
		Evict:     res.Evict,
		Admission: res.Admission,
	}
	if resp.Plan == nil {
		resp.Plan = []planner.PlanOp{}
	}
	if resp.Evict == nil {
		resp.Evict = []planner.EvictKey{}
	}
	if resp.Admission == nil {
		resp.Admission = []planner.AdmitKey{}
	}
	s.send(w, http.StatusOK, resp)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.send(w, http.StatusMethodNotAllowed, errorResponse{Error: "POST required"})
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.send(w, http.StatusBadRequest, errorResponse{Error: "read body: " + err.Error()})
		return
	}
	var counters map[string]float64
	if err := json.Unmarshal(body, &counters); err != nil {
		s.send(w, http.StatusBadRequest, errorResponse{Error: "invalid json: " + err.Error()})
		return
	}
	for name, v := range counters {
		s.metrics.ReportCounter.WithLabelValues(name).Add(v)
	}
	s.send(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) send(w http.ResponseWriter, code int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		s.log.Errorf("service: encode response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		s.log.Warnf("service: write response: %v", err)
	}
}

// ListenAndServe runs the service until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	s.log.Infof("planner service listening on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}
