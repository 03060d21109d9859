package metrics

import (
	"time"
)

// Collector records pipeline metrics.
// Implementations must not receive transaction content, only labels and counts.
type Collector interface {
	// Reasoning engine calls
	RecordReasoning(provider, task, outcome string, duration time.Duration)

	// Pipeline entry points
	RecordExtraction(kind, outcome string, transactions int, duration time.Duration)
	RecordAnalysis(outcome string, subscriptions int, duration time.Duration)

	// Circuit breaker
	RecordBreakerState(name string, state BreakerState)

	// Async jobs
	RecordJob(stage string)
}

// BreakerState represents the state of the reasoning circuit breaker.
type BreakerState int

const (
	// BreakerClosed means calls reach the reasoning engine.
	BreakerClosed BreakerState = iota
	// BreakerOpen means calls fail fast.
	BreakerOpen
	// BreakerHalfOpen means a limited number of probe calls are let through.
	BreakerHalfOpen
)

// String returns the string representation of the breaker state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Outcome turns an error into the "success"/"error" label pair used by collectors.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// NoOpCollector is used when metrics are not needed (CLI, tests).
type NoOpCollector struct{}

// RecordReasoning does nothing.
func (NoOpCollector) RecordReasoning(provider, task, outcome string, duration time.Duration) {}

// RecordExtraction does nothing.
func (NoOpCollector) RecordExtraction(kind, outcome string, transactions int, duration time.Duration) {
}

// RecordAnalysis does nothing.
func (NoOpCollector) RecordAnalysis(outcome string, subscriptions int, duration time.Duration) {}

// RecordBreakerState does nothing.
func (NoOpCollector) RecordBreakerState(name string, state BreakerState) {}

// RecordJob does nothing.
func (NoOpCollector) RecordJob(stage string) {}
