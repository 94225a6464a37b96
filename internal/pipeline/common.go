package pipeline

import (
	"context"
	"time"
)

// Logger is the subset of logger.Logger the pipeline writes to.
type Logger interface {
	Debug(component string, message string, fields map[string]interface{})
	Info(component string, message string, fields map[string]interface{})
	Warning(component string, message string, fields map[string]interface{})
	Error(component string, err error, fields map[string]interface{})
}

// TimingTracker records per-stage durations; *timing.Tracker satisfies it.
type TimingTracker interface {
	StartTiming(parent context.Context, operation string) context.Context
	EndTiming(ctx context.Context) time.Duration
}
