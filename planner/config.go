package planner

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Thresholds groups the score-filter cutoffs.
type Thresholds struct {
	PMin float64 `yaml:"pmin"`
	UMin float64 `yaml:"umin"`
}

// Popularity groups the popularity score weights.
type Popularity struct {
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
}

// ABFlags groups the pipeline stage toggles used for A/B experiments.
type ABFlags struct {
	EnablePrefixFanout  bool `yaml:"enable_prefix_fanout"`
	EnableTenantCredits bool `yaml:"enable_tenant_credits"`
	EnableAdmission     bool `yaml:"enable_admission"`
	EnableEviction      bool `yaml:"enable_eviction"`
	EnableOverlap       bool `yaml:"enable_overlap"`
	EnforceTierCaps     bool `yaml:"enforce_tier_caps"`
}

// RuntimeConfig is the on-disk planner configuration. A staged file may be
// promoted over the runtime file; loading merges defaults <- staged <-
// runtime.
type RuntimeConfig struct {
	WindowMS           int64      `yaml:"window_ms"`
	MinIOBytes         int64      `yaml:"min_io_bytes"`
	MaxOpsPerTier      int        `yaml:"max_ops_per_tier"`
	Thresholds         Thresholds `yaml:"thresholds"`
	Popularity         Popularity `yaml:"popularity"`
	ABFlags            ABFlags    `yaml:"ab_flags"`
	TenantCreditsBytes int64      `yaml:"tenant_credits_bytes"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() RuntimeConfig {
	return RuntimeConfig{
		WindowMS:      20,
		MinIOBytes:    524288,
		MaxOpsPerTier: 64,
		Thresholds:    Thresholds{PMin: 1.0, UMin: 0.0},
		Popularity:    Popularity{Alpha: 1.0, Beta: 0.0},
		ABFlags: ABFlags{
			EnablePrefixFanout:  true,
			EnableTenantCredits: true,
			EnableAdmission:     true,
			EnableEviction:      true,
			EnableOverlap:       true,
			EnforceTierCaps:     true,
		},
		TenantCreditsBytes: 32 * 1024 * 1024,
	}
}

// Knobs translates the config into planner knobs.
func (c RuntimeConfig) Knobs() Knobs {
	k := DefaultKnobs()
	k.PMin = c.Thresholds.PMin
	k.UMin = c.Thresholds.UMin
	k.Alpha = c.Popularity.Alpha
	k.Beta = c.Popularity.Beta
	k.MinIOBytes = c.MinIOBytes
	k.MaxOpsPerTier = c.MaxOpsPerTier
	k.WindowMS = c.WindowMS
	k.EnableAdmission = c.ABFlags.EnableAdmission
	k.EnableEviction = c.ABFlags.EnableEviction
	k.EnforceTierCaps = c.ABFlags.EnforceTierCaps
	return k
}

// LoadConfig reads the runtime config, overlaying an optional staged file
// first, then the runtime file, over the defaults. Missing files are
// skipped.
func LoadConfig(runtimePath, stagedPath string) (RuntimeConfig, error) {
	cfg := DefaultConfig()
	if stagedPath != "" {
		if err := overlayYAML(&cfg, stagedPath); err != nil {
			return cfg, err
		}
	}
	if err := overlayYAML(&cfg, runtimePath); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func overlayYAML(cfg *RuntimeConfig, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	// Unmarshal into the current struct: present keys overwrite, absent keys
	// keep their prior values, which gives the deep-merge behavior.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return nil
}

// PromoteConfig copies the staged config over the runtime config, creating
// the runtime directory if needed.
func PromoteConfig(stagedPath, runtimePath string) error {
	src, err := os.Open(stagedPath)
	if err != nil {
		return errors.Wrapf(err, "open staged config %s", stagedPath)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(runtimePath), 0o755); err != nil {
		return errors.Wrapf(err, "create config dir for %s", runtimePath)
	}
	dst, err := os.Create(runtimePath)
	if err != nil {
		return errors.Wrapf(err, "create runtime config %s", runtimePath)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errors.Wrapf(err, "promote %s -> %s", stagedPath, runtimePath)
	}
	return nil
}
