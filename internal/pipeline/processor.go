package pipeline

import (
	"context"
	"fmt"
	"image"

	"backdrop-cutout/internal/alpha"
	"backdrop-cutout/internal/analysis"
	"backdrop-cutout/internal/compose"
	"backdrop-cutout/internal/config"
	"backdrop-cutout/internal/opencv/memory"
	"backdrop-cutout/internal/opencv/safe"
	"backdrop-cutout/internal/segment"
	"backdrop-cutout/internal/trimap"
)

// Output is the result of one processed image.
type Output struct {
	Image   *image.NRGBA
	Labels  []byte
	Counts  trimap.Counts
	Metrics MatteMetrics
	Width   int
	Height  int
}

// Processor runs analysis, trimap construction, refinement, segmentation,
// alpha cleanup and compositing for one raster at a time. It holds no
// per-image state and is safe for concurrent use.
type Processor struct {
	strategy      trimap.Strategy
	refiner       *trimap.Refiner
	solver        segment.Solver
	alpha         *alpha.Processor
	iterations    int
	logger        Logger
	timingTracker TimingTracker
}

// NewProcessor wires the stages selected by cfg. A nil solver picks the
// one named in cfg.Solver.Kind.
func NewProcessor(cfg *config.Config, solver segment.Solver, logger Logger, timingTracker TimingTracker) (*Processor, error) {
	strategy, err := trimap.NewStrategy(cfg)
	if err != nil {
		return nil, err
	}
	if solver == nil {
		if solver, err = segment.NewSolver(cfg.Solver.Kind); err != nil {
			return nil, err
		}
	}

	return &Processor{
		strategy:      strategy,
		refiner:       trimap.NewRefiner(cfg.Refine),
		solver:        solver,
		alpha:         alpha.New(cfg.Alpha),
		iterations:    cfg.Solver.Iterations,
		logger:        logger,
		timingTracker: timingTracker,
	}, nil
}

func (p *Processor) Strategy() string { return p.strategy.Name() }
func (p *Processor) Solver() string   { return p.solver.Name() }

// stage times fn under name, after checking ctx.
func (p *Processor) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timed := p.timingTracker.StartTiming(ctx, name)
	defer p.timingTracker.EndTiming(timed)
	return fn()
}

// Process cuts the subject out of raster. All intermediate Mats come from
// arena; the caller releases it.
func (p *Processor) Process(ctx context.Context, arena *memory.Arena, raster *safe.Mat) (*Output, error) {
	if err := safe.ValidateColor(raster, "process"); err != nil {
		return nil, fmt.Errorf("input validation failed: %w", err)
	}

	var (
		ch     *analysis.Channels
		res    *trimap.Result
		mask   *segment.Mask
		matte  *safe.Mat
		merged *safe.Mat
		out    = &Output{Width: raster.Cols(), Height: raster.Rows()}
	)

	err := p.stage(ctx, "analyze", func() (err error) {
		ch, err = analysis.Analyze(arena, raster)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("color analysis: %w", err)
	}

	err = p.stage(ctx, "trimap", func() (err error) {
		if res, err = p.strategy.Build(arena, ch); err != nil {
			return err
		}
		return p.refiner.Refine(arena, res)
	})
	if err != nil {
		return nil, fmt.Errorf("trimap: %w", err)
	}

	if out.Labels, err = res.Trimap.Bytes(); err != nil {
		return nil, fmt.Errorf("trimap: %w", err)
	}
	if out.Counts, err = res.Trimap.Count(); err != nil {
		return nil, fmt.Errorf("trimap: %w", err)
	}

	err = p.stage(ctx, "segment", func() (err error) {
		mask, err = p.solver.Segment(arena, raster, res.Trimap, p.iterations)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.solver.Name(), err)
	}

	err = p.stage(ctx, "alpha", func() (err error) {
		matte, err = p.alpha.Process(arena, mask, ch, res)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("alpha: %w", err)
	}

	err = p.stage(ctx, "compose", func() (err error) {
		if merged, err = compose.Merge(arena, raster, matte); err != nil {
			return err
		}
		out.Image, err = compose.ToNRGBA(merged)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}

	out.Metrics, err = p.measure(matte, ch, out)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("ImageProcessor", "processing completed", map[string]interface{}{
		"strategy":    p.strategy.Name(),
		"solver":      p.solver.Name(),
		"size":        fmt.Sprintf("%dx%d", out.Width, out.Height),
		"certain_bg":  out.Counts.CertainBG,
		"probable_bg": out.Counts.ProbableBG,
		"probable_fg": out.Counts.ProbableFG,
		"certain_fg":  out.Counts.CertainFG,
		"coverage":    fmt.Sprintf("%.3f", out.Metrics.Coverage),
		"iou":         fmt.Sprintf("%.3f", out.Metrics.IoU),
	})

	return out, nil
}

func (p *Processor) measure(matte *safe.Mat, ch *analysis.Channels, out *Output) (MatteMetrics, error) {
	alphaData, err := matte.Bytes()
	if err != nil {
		return MatteMetrics{}, fmt.Errorf("metrics: %w", err)
	}
	grayData, err := ch.Gray.Bytes()
	if err != nil {
		return MatteMetrics{}, fmt.Errorf("metrics: %w", err)
	}
	return MeasureMatte(alphaData, out.Labels, grayData, out.Width, out.Height)
}
