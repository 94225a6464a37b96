package batch

import (
	"sort"
	"time"

	"backdrop-cutout/internal/debug/memtracker"
	"backdrop-cutout/internal/debug/timing"
	"backdrop-cutout/internal/logger"
	"backdrop-cutout/internal/pipeline"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusOK       Status = "ok"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Result is the outcome of one input image.
type Result struct {
	Input    string
	Output   string
	Status   Status
	Kind     pipeline.Kind
	Err      error
	Duration time.Duration
	// Coverage is the fraction of the output left non-transparent.
	Coverage float64
}

type Counts struct {
	OK       int
	Skipped  int
	Failed   int
	Canceled int
	ByKind   map[pipeline.Kind]int
}

// Report collects a batch run. Results are in input order.
type Report struct {
	RunID   string
	Started time.Time
	Elapsed time.Duration
	Results []Result
	Stages  []timing.Stage
	Memory  memtracker.MemoryStats
}

func (r *Report) Counts() Counts {
	c := Counts{ByKind: make(map[pipeline.Kind]int)}
	for _, res := range r.Results {
		switch res.Status {
		case StatusOK:
			c.OK++
		case StatusSkipped:
			c.Skipped++
		case StatusFailed:
			c.Failed++
			c.ByKind[res.Kind]++
		case StatusCanceled, StatusPending:
			c.Canceled++
		}
	}
	return c
}

// Failed reports whether any image failed or was left unprocessed.
func (r *Report) Failed() bool {
	c := r.Counts()
	return c.Failed > 0 || c.Canceled > 0
}

// Failures returns the failed results.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// Log writes the run summary and per-stage timings.
func (r *Report) Log(log logger.Logger) {
	c := r.Counts()

	fields := map[string]interface{}{
		"run_id":   r.RunID,
		"total":    len(r.Results),
		"ok":       c.OK,
		"skipped":  c.Skipped,
		"failed":   c.Failed,
		"canceled": c.Canceled,
		"elapsed":  r.Elapsed.Round(time.Millisecond).String(),
	}
	if r.Memory.Images > 0 {
		fields["peak_image_bytes"] = r.Memory.PeakBytes
		fields["peak_image"] = r.Memory.PeakTag
	}

	kinds := make([]string, 0, len(c.ByKind))
	for k := range c.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fields["failed_"+k] = c.ByKind[pipeline.Kind(k)]
	}

	if c.Failed > 0 || c.Canceled > 0 {
		log.Warning("BatchRunner", "batch finished with failures", fields)
	} else {
		log.Info("BatchRunner", "batch finished", fields)
	}

	for _, s := range r.Stages {
		log.Debug("BatchRunner", "stage timing", map[string]interface{}{
			"stage":   s.Operation,
			"count":   s.Count,
			"average": s.Average.String(),
			"max":     s.Max.String(),
		})
	}
}
