package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/just-save/internal/domain"
	"github.com/dvloznov/just-save/internal/pipeline"
)

// ErrJobNotFound is returned for unknown, expired or already consumed jobs.
var ErrJobNotFound = errors.New("job not found")

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed. Failed jobs are not retried.
	JobStatusFailed JobStatus = "failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// AnalysisJob runs the whole statement-to-analysis pipeline for one upload.
type AnalysisJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Kind is the statement format.
	Kind domain.SourceKind `json:"kind"`

	// Input is the statement text. It is dropped once the job finishes.
	Input pipeline.Input `json:"-"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// Stage is the pipeline stage last reported for this job.
	Stage pipeline.Stage `json:"stage"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`

	// Error is the user-facing message for a failed job.
	Error string `json:"error,omitempty"`

	// ErrorKind is the domain.ClassifyError label for a failed job.
	ErrorKind string `json:"error_kind,omitempty"`

	// Result is set when the job completed.
	Result *domain.Analysis `json:"analysis,omitempty"`
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// Publish enqueues an analysis job. It assigns JobID when empty.
	Publish(ctx context.Context, job *AnalysisJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error marks the job failed.
type JobHandler func(ctx context.Context, job *AnalysisJob) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *AnalysisJob) error

	// GetJob retrieves a job by ID. Expired jobs are reported as ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*AnalysisJob, error)

	// ListJobs retrieves jobs with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*AnalysisJob, error)

	// UpdateStage records the pipeline stage a running job reached.
	UpdateStage(ctx context.Context, jobID string, stage pipeline.Stage) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// AnalysisRunner is the part of pipeline.Service a job needs.
type AnalysisRunner interface {
	Run(ctx context.Context, in pipeline.Input, observer pipeline.StageObserver) (*domain.Analysis, error)
}
