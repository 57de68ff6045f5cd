package timing

import (
	"context"
	"sort"
	"sync"
	"time"

	"pano-calib/internal/logger"
)

type timingKey struct{}

type TimingInfo struct {
	Operation string
	StartTime time.Time
}

// StageTiming summarises every run of one operation.
type StageTiming struct {
	Operation string
	Count     int
	Total     time.Duration
	Average   time.Duration
}

type Tracker struct {
	timings map[string][]time.Duration
	mu      sync.RWMutex
	now     func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		timings: make(map[string][]time.Duration),
		now:     time.Now,
	}
}

// StartTiming derives a context carrying the operation start time from parent.
func (tt *Tracker) StartTiming(parent context.Context, operation string) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, timingKey{}, TimingInfo{
		Operation: operation,
		StartTime: tt.now(),
	})
}

// EndTiming records the duration for the operation started in ctx.
func (tt *Tracker) EndTiming(ctx context.Context) time.Duration {
	timingInfo, ok := ctx.Value(timingKey{}).(TimingInfo)
	if !ok {
		return 0
	}

	duration := tt.now().Sub(timingInfo.StartTime)

	tt.mu.Lock()
	tt.timings[timingInfo.Operation] = append(tt.timings[timingInfo.Operation], duration)
	tt.mu.Unlock()

	return duration
}

// Time runs fn as operation and records how long it took.
func (tt *Tracker) Time(ctx context.Context, operation string, fn func(context.Context) error) error {
	stageCtx := tt.StartTiming(ctx, operation)
	defer tt.EndTiming(stageCtx)
	return fn(stageCtx)
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

// Summary returns one entry per operation, slowest total first.
func (tt *Tracker) Summary() []StageTiming {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	summary := make([]StageTiming, 0, len(tt.timings))
	for operation, timings := range tt.timings {
		var total time.Duration
		for _, d := range timings {
			total += d
		}
		summary = append(summary, StageTiming{
			Operation: operation,
			Count:     len(timings),
			Total:     total,
			Average:   total / time.Duration(len(timings)),
		})
	}

	sort.Slice(summary, func(i, j int) bool {
		if summary[i].Total == summary[j].Total {
			return summary[i].Operation < summary[j].Operation
		}
		return summary[i].Total > summary[j].Total
	})
	return summary
}

func (tt *Tracker) LogSummary(log logger.Logger) {
	for _, stage := range tt.Summary() {
		log.Debug("Timing", "stage timing", map[string]interface{}{
			"operation": stage.Operation,
			"count":     stage.Count,
			"total_ms":  stage.Total.Milliseconds(),
			"avg_ms":    stage.Average.Milliseconds(),
		})
	}
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
