// cmd/root_test.go
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodocache/bodocache/planner"
	"github.com/bodocache/bodocache/store"
)

func TestRunCommandFlagsRegistered(t *testing.T) {
	for _, name := range []string{
		"window-ms", "min-io", "max-ops", "pmin", "umin", "alpha", "beta",
		"prefix-fanout", "tenant-credits", "admission", "eviction",
		"overlap", "enforce-tier-caps",
		"requests", "layers", "seed", "streams", "segments", "trace-out",
	} {
		assert.NotNilf(t, runCmd.Flags().Lookup(name), "missing flag --%s", name)
	}
}

func TestApplyRunOverrides_OnlyChangedFlags(t *testing.T) {
	cfg := planner.DefaultConfig()
	f := runCmd.Flags()
	require.NoError(t, f.Set("min-io", "1024"))
	require.NoError(t, f.Set("eviction", "false"))
	defer func() {
		// Reset for other tests; Changed state is per-process.
		_ = f.Set("min-io", "524288")
		_ = f.Set("eviction", "true")
	}()

	applyRunOverrides(runCmd, &cfg)

	assert.Equal(t, int64(1024), cfg.MinIOBytes)
	assert.False(t, cfg.ABFlags.EnableEviction)
	assert.Equal(t, 1.0, cfg.Thresholds.PMin, "untouched flags leave config values alone")
}

func TestSeedPlanSegments_CoversPlanRanges(t *testing.T) {
	st, err := store.NewSegmentedStore(t.TempDir())
	require.NoError(t, err)

	plan := []planner.PlanOp{
		{Layer: 0, StartPID: 0, EndPID: 3, PageBytes: 4096},
		{Layer: 1, StartPID: 2, EndPID: 2, PageBytes: 4096},
	}
	require.NoError(t, seedPlanSegments(st, plan))

	data, err := st.ReadRange("m70b", "v1", 0, 0, 3, 4096)
	require.NoError(t, err)
	assert.Len(t, data, 4*4096)

	data, err = st.ReadRange("m70b", "v1", 1, 2, 2, 4096)
	require.NoError(t, err)
	assert.Len(t, data, 4096)
}

func TestSubcommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "serve", "seed", "promote"} {
		assert.Truef(t, names[want], "missing subcommand %q", want)
	}
}
