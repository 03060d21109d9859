package runlog

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Run describes one pipeline invocation. It never carries statement text,
// descriptions or amounts: only what is needed to watch error rates and latency.
type Run struct {
	RunID            string
	Operation        string // extract, analyze, explain, job
	SourceKind       string // csv, pdf or empty
	Provider         string
	Status           string
	ErrorKind        string // domain.ClassifyError label
	TransactionCount int
	Duration         time.Duration
	StartedAt        time.Time
	RunDate          civil.Date
}

// NewRun starts a Run record for operation.
func NewRun(operation, sourceKind string) Run {
	now := time.Now().UTC()
	return Run{
		RunID:      uuid.NewString(),
		Operation:  operation,
		SourceKind: sourceKind,
		StartedAt:  now,
		RunDate:    civil.DateOf(now),
	}
}

// Finish fills in the outcome fields.
func (r Run) Finish(errorKind string, transactions int) Run {
	r.Duration = time.Since(r.StartedAt)
	r.TransactionCount = transactions
	r.ErrorKind = errorKind
	r.Status = StatusSuccess
	if errorKind != "" && errorKind != "none" {
		r.Status = StatusFailed
	}
	return r
}

// Recorder stores run telemetry.
type Recorder interface {
	Record(ctx context.Context, run Run) error
	Recent(ctx context.Context, limit int) ([]Run, error)
}

// NoOpRecorder discards runs. It is the default when no telemetry sink is configured.
type NoOpRecorder struct{}

// Record does nothing.
func (NoOpRecorder) Record(ctx context.Context, run Run) error { return nil }

// Recent returns no runs.
func (NoOpRecorder) Recent(ctx context.Context, limit int) ([]Run, error) { return nil, nil }
