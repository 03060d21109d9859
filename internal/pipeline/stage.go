package pipeline

import (
	"context"
	"fmt"
	"sync"
)

// Stage is a point in the statement-to-analysis flow.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageNormalizing Stage = "normalizing"
	StageExtracting  Stage = "extracting"
	StageValidating  Stage = "validating"
	StageAggregating Stage = "aggregating"
	StageComplete    Stage = "complete"
	StageFailed      Stage = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// next lists the forward transitions. Failed is reachable from every
// non-terminal stage and is not listed.
var next = map[Stage][]Stage{
	StageIdle:        {StageNormalizing, StageAggregating},
	StageNormalizing: {StageExtracting},
	StageExtracting:  {StageValidating},
	StageValidating:  {StageAggregating, StageComplete},
	StageAggregating: {StageComplete},
}

// StageObserver is notified of every stage change.
type StageObserver interface {
	StageChanged(ctx context.Context, stage Stage)
}

// StageObserverFunc adapts a function to StageObserver.
type StageObserverFunc func(ctx context.Context, stage Stage)

// StageChanged calls f.
func (f StageObserverFunc) StageChanged(ctx context.Context, stage Stage) {
	f(ctx, stage)
}

// StageTracker enforces the stage transitions of a single run and forwards
// them to an observer. Analysis-only runs go straight from idle to aggregating;
// extraction-only runs finish after validating.
type StageTracker struct {
	mu       sync.Mutex
	current  Stage
	observer StageObserver
}

// NewStageTracker returns a tracker in StageIdle. observer may be nil.
func NewStageTracker(observer StageObserver) *StageTracker {
	return &StageTracker{current: StageIdle, observer: observer}
}

// Current returns the current stage.
func (t *StageTracker) Current() Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Advance moves to stage. Moving to the current stage is a no-op.
func (t *StageTracker) Advance(ctx context.Context, stage Stage) error {
	t.mu.Lock()
	from := t.current
	if from == stage {
		t.mu.Unlock()
		return nil
	}
	if !allowed(from, stage) {
		t.mu.Unlock()
		return fmt.Errorf("StageTracker.Advance: invalid transition %s -> %s", from, stage)
	}
	t.current = stage
	t.mu.Unlock()

	if t.observer != nil {
		t.observer.StageChanged(ctx, stage)
	}
	return nil
}

// Fail moves to StageFailed unless the run has already finished.
func (t *StageTracker) Fail(ctx context.Context) {
	_ = t.Advance(ctx, StageFailed)
}

func allowed(from, to Stage) bool {
	if from.Terminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}
