package timing

import (
	"context"
	"sort"
	"sync"
	"time"
)

type timingKey struct{}

type TimingInfo struct {
	Operation string
	StartTime time.Time
}

// Stage aggregates all recorded durations of one operation.
type Stage struct {
	Operation string
	Count     int
	Total     time.Duration
	Average   time.Duration
	Max       time.Duration
}

type Tracker struct {
	timings map[string][]time.Duration
	mu      sync.RWMutex
	enabled bool
}

func NewTracker() *Tracker {
	return &Tracker{
		timings: make(map[string][]time.Duration),
		enabled: true,
	}
}

// StartTiming returns a child of parent carrying the start of operation.
// Cancellation of parent still propagates through the returned context.
func (tt *Tracker) StartTiming(parent context.Context, operation string) context.Context {
	if parent == nil {
		parent = context.Background()
	}

	tt.mu.RLock()
	enabled := tt.enabled
	tt.mu.RUnlock()
	if !enabled {
		return parent
	}

	return context.WithValue(parent, timingKey{}, TimingInfo{
		Operation: operation,
		StartTime: time.Now(),
	})
}

// EndTiming records the elapsed time of the operation started in ctx and
// returns it. Contexts not produced by StartTiming record nothing.
func (tt *Tracker) EndTiming(ctx context.Context) time.Duration {
	timingInfo, ok := ctx.Value(timingKey{}).(TimingInfo)
	if !ok {
		return 0
	}

	duration := time.Since(timingInfo.StartTime)

	tt.mu.Lock()
	if tt.enabled {
		tt.timings[timingInfo.Operation] = append(tt.timings[timingInfo.Operation], duration)
	}
	tt.mu.Unlock()

	return duration
}

// Time runs fn as operation and records its duration.
func (tt *Tracker) Time(ctx context.Context, operation string, fn func() error) error {
	timed := tt.StartTiming(ctx, operation)
	defer tt.EndTiming(timed)
	return fn()
}

func (tt *Tracker) GetTimings(operation string) []time.Duration {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	timings := tt.timings[operation]
	if timings == nil {
		return nil
	}

	result := make([]time.Duration, len(timings))
	copy(result, timings)
	return result
}

func (tt *Tracker) GetAverageTime(operation string) time.Duration {
	timings := tt.GetTimings(operation)
	if len(timings) == 0 {
		return 0
	}

	var total time.Duration
	for _, duration := range timings {
		total += duration
	}

	return total / time.Duration(len(timings))
}

// Summary returns one Stage per operation, sorted by name.
func (tt *Tracker) Summary() []Stage {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	stages := make([]Stage, 0, len(tt.timings))
	for operation, timings := range tt.timings {
		stage := Stage{Operation: operation, Count: len(timings)}
		for _, d := range timings {
			stage.Total += d
			if d > stage.Max {
				stage.Max = d
			}
		}
		if stage.Count > 0 {
			stage.Average = stage.Total / time.Duration(stage.Count)
		}
		stages = append(stages, stage)
	}

	sort.Slice(stages, func(i, j int) bool { return stages[i].Operation < stages[j].Operation })
	return stages
}

func (tt *Tracker) SetEnabled(enabled bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.enabled = enabled
}

func (tt *Tracker) Reset(operation string) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if operation == "" {
		tt.timings = make(map[string][]time.Duration)
	} else {
		delete(tt.timings, operation)
	}
}
