// cmd/run.go
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bodocache/bodocache/agent"
	"github.com/bodocache/bodocache/planner"
	"github.com/bodocache/bodocache/store"
	"github.com/bodocache/bodocache/telemetry"
	"github.com/bodocache/bodocache/workload"
)

var (
	runConfigPath string
	runStagedPath string

	runWindowMS int64
	runMinIO    int64
	runMaxOps   int
	runPMin     float64
	runUMin     float64
	runAlpha    float64
	runBeta     float64

	runPrefixFanout  bool
	runTenantCredits bool
	runAdmission     bool
	runEviction      bool
	runOverlap       bool
	runEnforceCaps   bool

	runRequests   int
	runLayers     int
	runSeed       int64
	runStreams    int
	runSegRoot    string
	runTraceOut   string
	runKeepSegDir bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Plan and execute one synthetic window end to end",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := planner.LoadConfig(runConfigPath, runStagedPath)
		if err != nil {
			logrus.Fatalf("load config: %v", err)
		}
		applyRunOverrides(cmd, &cfg)

		nowMS := time.Now().UnixMilli()
		spec := workload.DefaultSpec(nowMS)
		spec.NumRequests = runRequests
		spec.NumLayers = runLayers
		spec.Seed = runSeed

		reqs := workload.Requests(spec)
		var clusters []int64
		if cfg.ABFlags.EnablePrefixFanout {
			clusters, err = planner.AssignClustersMinHash(reqs, 32, 8, 4)
			if err != nil {
				logrus.Fatalf("cluster assignment: %v", err)
			}
		} else {
			clusters = planner.RowClusters(reqs)
		}

		credits := cfg.TenantCreditsBytes
		if !cfg.ABFlags.EnableTenantCredits {
			credits = 1 << 62
		}

		in := planner.Inputs{
			Requests:   reqs,
			Clusters:   clusters,
			Heat:       workload.Heat(reqs),
			TierCaps:   workload.TierCaps(),
			TenantCaps: workload.TenantCaps(reqs, credits),
			LayerLat:   workload.LayerLat(spec.NumLayers),
			NowMS:      nowMS,
		}
		res, err := planner.RunWindow(in, cfg.Knobs())
		if err != nil {
			logrus.Fatalf("plan window: %v", err)
		}
		if len(res.Plan) == 0 {
			fmt.Println("No plan ops produced.")
			return
		}
		printPlanSummary(res)

		timings := agent.SimulatePlanStreams(res.Plan, in.TierCaps, cfg.WindowMS, runStreams, cfg.ABFlags.EnableOverlap, in.LayerLat)
		sum := agent.SummarizeExec(timings)
		fmt.Printf("  prefetch_timeliness=%.2f avg_finish_ms=%.1f ops=%d (multistream)\n",
			sum.PrefetchTimeliness, sum.AvgFinishMS, sum.Ops)

		execStats, err := executePlan(res.Plan, nowMS)
		if err != nil {
			logrus.Fatalf("execute plan: %v", err)
		}
		fmt.Printf("  node_agent_exec: ops=%d bytes=%.2fMB duration_ms=%.1f\n",
			execStats.Ops, float64(execStats.Bytes)/1024/1024, execStats.DurationMS)
	},
}

func applyRunOverrides(cmd *cobra.Command, cfg *planner.RuntimeConfig) {
	f := cmd.Flags()
	if f.Changed("window-ms") {
		cfg.WindowMS = runWindowMS
	}
	if f.Changed("min-io") {
		cfg.MinIOBytes = runMinIO
	}
	if f.Changed("max-ops") {
		cfg.MaxOpsPerTier = runMaxOps
	}
	if f.Changed("pmin") {
		cfg.Thresholds.PMin = runPMin
	}
	if f.Changed("umin") {
		cfg.Thresholds.UMin = runUMin
	}
	if f.Changed("alpha") {
		cfg.Popularity.Alpha = runAlpha
	}
	if f.Changed("beta") {
		cfg.Popularity.Beta = runBeta
	}
	if f.Changed("prefix-fanout") {
		cfg.ABFlags.EnablePrefixFanout = runPrefixFanout
	}
	if f.Changed("tenant-credits") {
		cfg.ABFlags.EnableTenantCredits = runTenantCredits
	}
	if f.Changed("admission") {
		cfg.ABFlags.EnableAdmission = runAdmission
	}
	if f.Changed("eviction") {
		cfg.ABFlags.EnableEviction = runEviction
	}
	if f.Changed("overlap") {
		cfg.ABFlags.EnableOverlap = runOverlap
	}
	if f.Changed("enforce-tier-caps") {
		cfg.ABFlags.EnforceTierCaps = runEnforceCaps
	}
}

func printPlanSummary(res planner.Result) {
	var totalBytes, totalFanout int64
	maxFanout := int64(0)
	for _, op := range res.Plan {
		totalBytes += op.Bytes
		totalFanout += op.Fanout
		if op.Fanout > maxFanout {
			maxFanout = op.Fanout
		}
	}
	n := len(res.Plan)
	fmt.Println("Plan summary:")
	fmt.Printf("  ops=%d avg_io=%.1fKB total=%.2fMB\n",
		n, float64(totalBytes)/float64(n)/1024, float64(totalBytes)/1024/1024)
	fmt.Printf("  mean_fanout=%.2f max_fanout=%d evict=%d admit=%d\n",
		float64(totalFanout)/float64(n), maxFanout, len(res.Evict), len(res.Admission))
	for i, op := range res.Plan {
		if i >= 10 {
			break
		}
		fmt.Printf("  %s src=%d dst=%d pc=%d layer=%d run=%d bytes=%d deadline=%d fanout=%d overlap=%d prio=%.2f\n",
			op.Node, op.TierSrc, op.TierDst, op.PCluster, op.Layer, op.RunID,
			op.Bytes, op.DeadlineMS, op.Fanout, op.Overlap, op.Priority)
	}
}

// executePlan seeds a segment root covering the plan's ranges and drives the
// executor over it with plain reads.
func executePlan(plan []planner.PlanOp, nowMS int64) (agent.ExecStats, error) {
	root := runSegRoot
	if root == "" {
		dir, err := os.MkdirTemp("", "bodocache-segments-")
		if err != nil {
			return agent.ExecStats{}, err
		}
		if !runKeepSegDir {
			defer os.RemoveAll(dir)
		}
		root = dir
	}
	st, err := store.NewSegmentedStore(root)
	if err != nil {
		return agent.ExecStats{}, err
	}
	if err := seedPlanSegments(st, plan); err != nil {
		return agent.ExecStats{}, err
	}

	tr := telemetry.NewTraceRecorder()
	ex := &agent.Executor{Store: st, PageBytes: 256 * 1024, Trace: tr}
	stats := ex.Execute(plan, "m70b", "v1", agent.ExecOptions{NowMS: nowMS, CaptureMetrics: true})

	if runTraceOut != "" {
		f, err := os.Create(runTraceOut)
		if err != nil {
			return stats, err
		}
		defer f.Close()
		if err := tr.WriteJSONL(f); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runConfigPath, "config", "configs/runtime.yaml", "Runtime config path")
	f.StringVar(&runStagedPath, "staged-config", "", "Optional staged config overlaid before the runtime config")

	f.Int64Var(&runWindowMS, "window-ms", 20, "Planner window duration in ms")
	f.Int64Var(&runMinIO, "min-io", 524288, "Minimum IO size in bytes for coalesced ops")
	f.IntVar(&runMaxOps, "max-ops", 64, "Max ops per (node,tier) per window")
	f.Float64Var(&runPMin, "pmin", 1.0, "Popularity threshold")
	f.Float64Var(&runUMin, "umin", 0.0, "Urgency threshold")
	f.Float64Var(&runAlpha, "alpha", 1.0, "Popularity weight alpha")
	f.Float64Var(&runBeta, "beta", 0.0, "Popularity weight beta")

	f.BoolVar(&runPrefixFanout, "prefix-fanout", true, "Cluster requests by prefix similarity")
	f.BoolVar(&runTenantCredits, "tenant-credits", true, "Apply per-tenant byte credits")
	f.BoolVar(&runAdmission, "admission", true, "Emit admission decisions")
	f.BoolVar(&runEviction, "eviction", true, "Emit eviction decisions")
	f.BoolVar(&runOverlap, "overlap", true, "Use overlap hints in the multistream model")
	f.BoolVar(&runEnforceCaps, "enforce-tier-caps", true, "Enforce per-tier byte caps")

	f.IntVar(&runRequests, "requests", 200, "Synthetic request count")
	f.IntVar(&runLayers, "layers", 8, "Synthetic layer count")
	f.Int64Var(&runSeed, "seed", 42, "Workload seed")
	f.IntVar(&runStreams, "streams", 4, "Streams per tier in the multistream model")
	f.StringVar(&runSegRoot, "segments", "", "Segment root (default: temp dir, removed on exit)")
	f.StringVar(&runTraceOut, "trace-out", "", "Write prefetch trace JSONL to this path")
	f.BoolVar(&runKeepSegDir, "keep-segments", false, "Keep the temp segment dir")

	rootCmd.AddCommand(runCmd)
}
