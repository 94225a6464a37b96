package trimap

import (
	"fmt"

	"backdrop-cutout/internal/config"
	"backdrop-cutout/internal/opencv/memory"
	"backdrop-cutout/internal/opencv/safe"
)

// Refiner tightens a freshly built Trimap: it pulls soft shadows into the
// probable background, smooths the subject seed and carves a certain
// foreground core out of the probable foreground.
type Refiner struct {
	ShadowExpand  int
	SeedSmoothing int
	CoreMode      config.CoreMode
	CoreErode     int
	CoreRadius    float64
}

func NewRefiner(cfg config.Refine) *Refiner {
	return &Refiner{
		ShadowExpand:  cfg.ShadowExpand,
		SeedSmoothing: cfg.SeedSmoothing,
		CoreMode:      cfg.CoreMode,
		CoreErode:     cfg.CoreErode,
		CoreRadius:    cfg.CoreRadius,
	}
}

// Refine rewrites res.Trimap in place and sets res.Expanded.
func (r *Refiner) Refine(arena *memory.Arena, res *Result) error {
	if res == nil || res.Trimap == nil {
		return fmt.Errorf("refine: no trimap")
	}
	if err := safe.ValidatePlane(res.Background, "refine"); err != nil {
		return err
	}
	if err := safe.ValidateSameSize(res.Trimap.Mat(), res.Background, "refine"); err != nil {
		return err
	}

	labels, err := res.Trimap.Bytes()
	if err != nil {
		return fmt.Errorf("refine: %w", err)
	}
	rows, cols := res.Trimap.Rows(), res.Trimap.Cols()

	// CertainBG from the builder is final
	certain := selectLabels(labels, rows, cols, func(l Label) bool { return l == CertainBG })
	restore := func() {
		for i, v := range certain.data {
			if v != 0 {
				labels[i] = byte(CertainBG)
			}
		}
	}

	if err := r.captureShadows(arena, labels, rows, cols); err != nil {
		return err
	}
	restore()

	if err := r.smoothSeed(arena, labels, rows, cols); err != nil {
		return err
	}
	restore()

	if err := r.promoteCore(arena, labels, rows, cols); err != nil {
		return err
	}
	restore()

	if err := res.Trimap.store(arena, labels); err != nil {
		return fmt.Errorf("refine: %w", err)
	}

	base, err := planeFromMat(res.Background)
	if err != nil {
		return err
	}
	expanded, err := base.dilate(arena, max(1, r.ShadowExpand))
	if err != nil {
		return fmt.Errorf("refine: expand background: %w", err)
	}
	if res.Expanded, err = expanded.toMat(arena, "expanded_bg"); err != nil {
		return err
	}

	return nil
}

// captureShadows grows the background labels; cells reached by the
// growth become ProbableBG, the rest ProbableFG.
func (r *Refiner) captureShadows(arena *memory.Arena, labels []byte, rows, cols int) error {
	if r.ShadowExpand <= 0 {
		return nil
	}

	bg := selectLabels(labels, rows, cols, func(l Label) bool { return l == CertainBG || l == ProbableBG })
	dilated, err := bg.dilate(arena, r.ShadowExpand)
	if err != nil {
		return fmt.Errorf("refine: shadow capture: %w", err)
	}

	for i, v := range dilated.data {
		switch {
		case Label(labels[i]) == CertainBG:
		case v != 0:
			labels[i] = byte(ProbableBG)
		default:
			labels[i] = byte(ProbableFG)
		}
	}
	return nil
}

// smoothSeed opens and closes the non-background region. Seed cells become
// ProbableFG; foreground candidates the smoothing removed fall back to
// ProbableBG.
func (r *Refiner) smoothSeed(arena *memory.Arena, labels []byte, rows, cols int) error {
	if r.SeedSmoothing <= 0 {
		return nil
	}

	seed := selectLabels(labels, rows, cols, Label.Foreground)
	smoothed, err := seed.smooth(arena, r.SeedSmoothing)
	if err != nil {
		return fmt.Errorf("refine: seed smoothing: %w", err)
	}

	for i, v := range smoothed.data {
		switch {
		case Label(labels[i]) == CertainBG:
		case v != 0:
			labels[i] = byte(ProbableFG)
		case Label(labels[i]) == ProbableFG:
			labels[i] = byte(ProbableBG)
		}
	}
	return nil
}

// promoteCore turns the interior of the ProbableFG region into CertainFG.
func (r *Refiner) promoteCore(arena *memory.Arena, labels []byte, rows, cols int) error {
	candidates := selectLabels(labels, rows, cols, func(l Label) bool { return l == ProbableFG })
	if !candidates.any() {
		return nil
	}

	var core plane
	var err error
	switch r.CoreMode {
	case config.CoreErode:
		if r.CoreErode <= 0 {
			return nil
		}
		core, err = candidates.erode(arena, r.CoreErode)
	case config.CoreDistance:
		core, err = candidates.beyond(arena, r.CoreRadius)
	default:
		return fmt.Errorf("refine: unknown core mode %q", r.CoreMode)
	}
	if err != nil {
		return fmt.Errorf("refine: foreground core: %w", err)
	}

	for i, v := range core.data {
		if v != 0 && Label(labels[i]) == ProbableFG {
			labels[i] = byte(CertainFG)
		}
	}
	return nil
}
