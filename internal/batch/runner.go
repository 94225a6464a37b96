package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"backdrop-cutout/internal/config"
	"backdrop-cutout/internal/debug/memtracker"
	"backdrop-cutout/internal/debug/timing"
	"backdrop-cutout/internal/opencv/memory"
	"backdrop-cutout/internal/pipeline"
	"backdrop-cutout/internal/system"

	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"
)

// Options is the batch section of the config with defaults resolved.
type Options struct {
	InputRoot    string
	OutputRoot   string
	Suffix       string
	Workers      int
	SkipExisting bool
	DebugDir     string
	// MemoryLimit caps the bytes one image's arena may allocate; 0 keeps the arena default.
	MemoryLimit int64
}

func OptionsFrom(b config.Batch) Options {
	return Options{
		InputRoot:    b.Input,
		OutputRoot:   b.Output,
		Suffix:       b.Suffix,
		Workers:      b.Workers,
		SkipExisting: b.SkipExisting,
		DebugDir:     b.DebugDir,
		MemoryLimit:  int64(b.MemoryLimitMB) << 20,
	}
}

// Runner processes a list of inputs with a bounded pool. Each image gets
// its own arena, so a failure or a leak in one never reaches another.
type Runner struct {
	opts      Options
	loader    *pipeline.Loader
	processor *pipeline.Processor
	saver     *pipeline.Saver
	logger    pipeline.Logger
	tracker   *timing.Tracker
	mem       *memtracker.Tracker

	stopping atomic.Bool
	mu       sync.Mutex
	running  chan struct{}
}

func NewRunner(opts Options, processor *pipeline.Processor, logger pipeline.Logger, tracker *timing.Tracker) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = system.DefaultWorkers()
	}
	if tracker == nil {
		tracker = timing.NewTracker()
	}

	return &Runner{
		opts:      opts,
		loader:    pipeline.NewLoader(logger, tracker),
		processor: processor,
		saver:     pipeline.NewSaver(logger, tracker),
		logger:    logger,
		tracker:   tracker,
		mem:       memtracker.NewTracker(),
	}
}

func (r *Runner) Workers() int { return r.opts.Workers }

// Shutdown stops new images from being scheduled and waits for the ones
// already running to finish.
func (r *Runner) Shutdown() {
	if r.stopping.Swap(true) {
		return
	}
	r.logger.Debug("BatchRunner", "stopping, waiting for images in flight", nil)

	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if running != nil {
		<-running
	}
}

// Run processes inputs and reports every one of them. It returns once all
// scheduled images are finished; images never started because ctx was
// cancelled or Shutdown was called are reported as canceled.
func (r *Runner) Run(ctx context.Context, inputs []string) *Report {
	report := &Report{
		RunID:   ksuid.New().String(),
		Started: time.Now(),
		Results: make([]Result, len(inputs)),
	}

	running := make(chan struct{})
	r.mu.Lock()
	r.running = running
	r.mu.Unlock()
	defer close(running)

	outputs := r.plan(inputs, report)

	r.logger.Info("BatchRunner", "batch started", map[string]interface{}{
		"run_id":   report.RunID,
		"images":   len(inputs),
		"workers":  r.opts.Workers,
		"strategy": r.processor.Strategy(),
		"solver":   r.processor.Solver(),
	})

	var g errgroup.Group
	g.SetLimit(r.opts.Workers)

	for i, input := range inputs {
		if report.Results[i].Status != StatusPending {
			continue
		}
		if ctx.Err() != nil || r.stopping.Load() {
			report.Results[i].Status = StatusCanceled
			report.Results[i].Kind = pipeline.KindCanceled
			continue
		}

		i, input, output := i, input, outputs[i]
		g.Go(func() error {
			report.Results[i] = r.processOne(ctx, input, output)
			return nil
		})
	}

	g.Wait()

	report.Elapsed = time.Since(report.Started)
	report.Stages = r.tracker.Summary()
	report.Memory = r.mem.GetStats()
	return report
}

// plan resolves output paths and fails inputs whose output would collide
// with an earlier input's.
func (r *Runner) plan(inputs []string, report *Report) []string {
	outputs := make([]string, len(inputs))
	claimed := make(map[string]string, len(inputs))

	for i, input := range inputs {
		out := OutputPath(r.opts.InputRoot, r.opts.OutputRoot, input, r.opts.Suffix)
		outputs[i] = out
		report.Results[i] = Result{Input: input, Output: out, Status: StatusPending}

		if first, ok := claimed[out]; ok {
			err := fmt.Errorf("%w: output %s already claimed by %s", pipeline.ErrWrite, out, first)
			report.Results[i].Status = StatusFailed
			report.Results[i].Kind = pipeline.KindOf(err)
			report.Results[i].Err = err
			r.logger.Error("BatchRunner", err, map[string]interface{}{
				"input": input,
				"kind":  string(pipeline.KindWrite),
			})
			continue
		}
		claimed[out] = input
	}

	return outputs
}

func (r *Runner) processOne(ctx context.Context, input, output string) Result {
	start := time.Now()
	res := Result{Input: input, Output: output}

	if r.opts.SkipExisting {
		if _, err := os.Stat(output); err == nil {
			res.Status = StatusSkipped
			r.logger.Debug("BatchRunner", "output exists, skipping", map[string]interface{}{
				"input":  input,
				"output": output,
			})
			return res
		}
	}

	metrics, err := r.cutout(ctx, input, output)
	res.Duration = time.Since(start)

	if err != nil {
		res.Kind = pipeline.KindOf(err)
		res.Err = err
		res.Status = StatusFailed
		if res.Kind == pipeline.KindCanceled {
			res.Status = StatusCanceled
		}
		r.logger.Error("BatchRunner", err, map[string]interface{}{
			"input": input,
			"kind":  string(res.Kind),
		})
		return res
	}

	res.Status = StatusOK
	res.Coverage = metrics.Coverage
	fields := map[string]interface{}{
		"input":    input,
		"output":   output,
		"coverage": fmt.Sprintf("%.3f", metrics.Coverage),
		"duration": res.Duration.Round(time.Millisecond).String(),
	}
	if metrics.Empty() {
		r.logger.Warning("BatchRunner", "no subject kept, output is fully transparent", fields)
	} else {
		r.logger.Info("BatchRunner", "image processed", fields)
	}
	return res
}

func (r *Runner) cutout(ctx context.Context, input, output string) (metrics pipeline.MatteMetrics, err error) {
	arena := memory.NewArena(filepath.Base(input), r.opts.MemoryLimit)
	defer func() {
		closed := arena.Release()
		stats := arena.Stats()
		r.mem.Observe(input, stats, closed)
		r.logger.Debug("BatchRunner", "arena released", map[string]interface{}{
			"input":      input,
			"closed":     closed,
			"peak_bytes": stats.PeakBytes,
		})
	}()

	// an OpenCV panic takes out this image only
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic processing %s: %v", input, p)
		}
	}()

	raster, err := r.loader.Load(ctx, arena, input)
	if err != nil {
		return metrics, err
	}

	out, err := r.processor.Process(ctx, arena, raster)
	if err != nil {
		return metrics, err
	}

	if err := ctx.Err(); err != nil {
		return metrics, err
	}
	if err := r.saver.Save(ctx, output, out.Image); err != nil {
		return metrics, err
	}

	if r.opts.DebugDir != "" {
		path := DebugPath(r.opts.InputRoot, r.opts.DebugDir, input)
		if err := r.saver.SaveTrimap(ctx, path, out.Labels, out.Width, out.Height); err != nil {
			r.logger.Warning("BatchRunner", "trimap dump failed", map[string]interface{}{
				"input": input,
				"path":  path,
				"error": err.Error(),
			})
		}
	}

	return out.Metrics, nil
}
