// Package config holds every tunable of the cutout pipeline.
//
// Two presets reproduce the two tuned heuristics: flood-fill seeding from
// the image corners, and tonal HSV thresholding. A YAML file may override
// any field of the chosen preset; command-line flags override the file.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Strategy string

const (
	StrategyFloodFill Strategy = "flood-fill"
	StrategyTonal     Strategy = "tonal"
)

type CoreMode string

const (
	CoreErode    CoreMode = "erode"
	CoreDistance CoreMode = "distance"
)

type SolverKind string

const (
	SolverGrabCut SolverKind = "grabcut"
	SolverLabels  SolverKind = "labels"
)

// Trimap controls initial label classification.
type Trimap struct {
	BorderMargin     int `yaml:"border_margin"`
	WhiteTolerance   int `yaml:"white_tolerance"`
	SureBGValue      int `yaml:"sure_bg_value"`
	SureBGSaturation int `yaml:"sure_bg_saturation"`
	SoftBGValue      int `yaml:"soft_bg_value"`
	SoftBGSaturation int `yaml:"soft_bg_saturation"`
}

// Refine controls the morphological stabilisation of the trimap.
type Refine struct {
	ShadowExpand  int      `yaml:"shadow_expand"`
	SeedSmoothing int      `yaml:"seed_smoothing"`
	CoreMode      CoreMode `yaml:"core_mode"`
	CoreErode     int      `yaml:"core_erode"`
	CoreRadius    float64  `yaml:"core_radius"`
}

type Solver struct {
	Kind       SolverKind `yaml:"kind"`
	Iterations int        `yaml:"iterations"`
}

// Alpha controls post-solve cleanup of the matte.
type Alpha struct {
	OpeningKernel      int     `yaml:"opening_kernel"`
	BlurSigma          float64 `yaml:"blur_sigma"`
	ResidualCutoff     int     `yaml:"residual_cutoff"`
	ResidualValue      int     `yaml:"residual_value"`
	ResidualSaturation int     `yaml:"residual_saturation"`
	ShadowExclusion    bool    `yaml:"shadow_exclusion"`
}

type Batch struct {
	Input        string `yaml:"input"`
	Output       string `yaml:"output"`
	Recursive    bool   `yaml:"recursive"`
	Workers      int    `yaml:"workers"`
	Suffix       string `yaml:"suffix"`
	SkipExisting bool   `yaml:"skip_existing"`
	DebugDir     string `yaml:"debug_dir"`

	// MemoryLimitMB caps what one image may allocate in OpenCV buffers;
	// 0 keeps the arena default.
	MemoryLimitMB int `yaml:"memory_limit_mb"`
}

type Config struct {
	Strategy Strategy `yaml:"strategy"`
	Trimap   Trimap   `yaml:"trimap"`
	Refine   Refine   `yaml:"refine"`
	Solver   Solver   `yaml:"solver"`
	Alpha    Alpha    `yaml:"alpha"`
	Batch    Batch    `yaml:"batch"`
}

var ErrUnknownStrategy = errors.New("unknown trimap strategy")

// Default returns the preset for strategy.
func Default(strategy Strategy) (*Config, error) {
	cfg := &Config{
		Strategy: strategy,
		Trimap: Trimap{
			WhiteTolerance:   10,
			SureBGValue:      250,
			SureBGSaturation: 10,
			SoftBGValue:      235,
			SoftBGSaturation: 25,
		},
		Refine: Refine{
			CoreErode:  1,
			CoreRadius: 5,
		},
		Solver: Solver{Kind: SolverGrabCut},
		Alpha: Alpha{
			OpeningKernel:      3,
			ResidualCutoff:     220,
			ResidualValue:      248,
			ResidualSaturation: 12,
		},
		Batch: Batch{
			Input:  "1_sources",
			Output: "2_clean",
		},
	}

	switch strategy {
	case StrategyFloodFill:
		cfg.Trimap.BorderMargin = 1
		cfg.Refine.ShadowExpand = 4
		cfg.Refine.CoreMode = CoreErode
		cfg.Solver.Iterations = 7
		cfg.Alpha.BlurSigma = 0.6
		cfg.Alpha.ShadowExclusion = true
	case StrategyTonal:
		cfg.Trimap.BorderMargin = 6
		cfg.Refine.SeedSmoothing = 5
		cfg.Refine.CoreMode = CoreDistance
		cfg.Solver.Iterations = 5
		cfg.Alpha.BlurSigma = 0.7
		cfg.Batch.Suffix = "-cutout"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	return cfg, nil
}

// Load builds a config from the preset named in the YAML file at path
// (or strategy, when non-empty) and overlays the file's fields on it.
// An empty path yields the plain preset.
func Load(path string, strategy Strategy) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if strategy == "" {
		var head struct {
			Strategy Strategy `yaml:"strategy"`
		}
		if err := yaml.Unmarshal(data, &head); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		strategy = head.Strategy
	}
	if strategy == "" {
		strategy = StrategyFloodFill
	}

	cfg, err := Default(strategy)
	if err != nil {
		return nil, err
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		// the preset decides the strategy even if the file names another
		cfg.Strategy = strategy
	}

	return cfg, nil
}

// Write stores cfg as YAML, mostly for seeding a config file from a preset.
func Write(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Strategy == StrategyFloodFill || c.Strategy == StrategyTonal, "strategy must be %q or %q, got %q", StrategyFloodFill, StrategyTonal, c.Strategy)

	t := c.Trimap
	check(t.BorderMargin >= 0, "trimap.border_margin must be >= 0, got %d", t.BorderMargin)
	check(inByte(t.WhiteTolerance), "trimap.white_tolerance must be within 0..255, got %d", t.WhiteTolerance)
	check(inByte(t.SureBGValue) && inByte(t.SoftBGValue), "trimap value thresholds must be within 0..255")
	check(inByte(t.SureBGSaturation) && inByte(t.SoftBGSaturation), "trimap saturation thresholds must be within 0..255")
	check(t.SoftBGValue <= t.SureBGValue, "trimap.soft_bg_value (%d) must not exceed sure_bg_value (%d)", t.SoftBGValue, t.SureBGValue)

	r := c.Refine
	check(r.ShadowExpand >= 0, "refine.shadow_expand must be >= 0, got %d", r.ShadowExpand)
	check(r.SeedSmoothing >= 0, "refine.seed_smoothing must be >= 0, got %d", r.SeedSmoothing)
	check(r.CoreMode == CoreErode || r.CoreMode == CoreDistance, "refine.core_mode must be %q or %q, got %q", CoreErode, CoreDistance, r.CoreMode)
	check(r.CoreErode >= 0, "refine.core_erode must be >= 0, got %d", r.CoreErode)
	check(r.CoreRadius >= 0, "refine.core_radius must be >= 0, got %g", r.CoreRadius)

	check(c.Solver.Kind == SolverGrabCut || c.Solver.Kind == SolverLabels, "solver.kind must be %q or %q, got %q", SolverGrabCut, SolverLabels, c.Solver.Kind)
	check(c.Solver.Iterations >= 1 && c.Solver.Iterations <= 50, "solver.iterations must be within 1..50, got %d", c.Solver.Iterations)

	a := c.Alpha
	check(a.OpeningKernel >= 0 && a.OpeningKernel <= 31, "alpha.opening_kernel must be within 0..31, got %d", a.OpeningKernel)
	check(a.BlurSigma >= 0 && a.BlurSigma <= 10, "alpha.blur_sigma must be within 0..10, got %g", a.BlurSigma)
	check(a.ResidualCutoff >= 0 && a.ResidualCutoff <= 256, "alpha.residual_cutoff must be within 0..256, got %d", a.ResidualCutoff)
	check(inByte(a.ResidualValue) && inByte(a.ResidualSaturation), "alpha residual thresholds must be within 0..255")

	check(c.Batch.Workers >= 0, "batch.workers must be >= 0, got %d", c.Batch.Workers)
	check(c.Batch.MemoryLimitMB >= 0, "batch.memory_limit_mb must be >= 0, got %d", c.Batch.MemoryLimitMB)

	return errors.Join(errs...)
}

func inByte(v int) bool {
	return v >= 0 && v <= 255
}
