package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/just-save/internal/jobs"
	"github.com/dvloznov/just-save/internal/pipeline"
)

// DefaultTTL is how long a job stays readable after it was created.
const DefaultTTL = 48 * time.Hour

// Store is an in-memory implementation of JobStore.
// It stores jobs in memory and is safe for concurrent use.
// Jobs expire after the TTL; with consumeOnRead a finished job is also
// removed the first time it is read.
type Store struct {
	mu            sync.RWMutex
	jobs          map[string]*jobs.AnalysisJob
	ttl           time.Duration
	consumeOnRead bool
	now           func() time.Time
}

// NewStore creates a new in-memory job store. A non-positive ttl selects DefaultTTL.
func NewStore(ttl time.Duration, consumeOnRead bool) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		jobs:          make(map[string]*jobs.AnalysisJob),
		ttl:           ttl,
		consumeOnRead: consumeOnRead,
		now:           time.Now,
	}
}

// SaveJob implements the JobStore interface.
// It saves or updates a job in memory.
func (s *Store) SaveJob(ctx context.Context, job *jobs.AnalysisJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ExpiresAt.IsZero() {
		created := job.CreatedAt
		if created.IsZero() {
			created = s.now()
		}
		job.ExpiresAt = created.Add(s.ttl)
	}

	// Create a copy to avoid external modifications
	jobCopy := *job
	jobCopy.Input = pipeline.Input{}
	s.jobs[job.JobID] = &jobCopy

	return nil
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("GetJob: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	if s.expired(job) {
		delete(s.jobs, jobID)
		return nil, fmt.Errorf("GetJob: %s expired: %w", jobID, jobs.ErrJobNotFound)
	}

	jobCopy := *job
	if s.consumeOnRead && job.Status == jobs.JobStatusCompleted {
		delete(s.jobs, jobID)
	}
	return &jobCopy, nil
}

// ListJobs implements the JobStore interface. Jobs are returned newest first.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.AnalysisJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*jobs.AnalysisJob{}

	for _, job := range s.jobs {
		if s.expired(job) {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}

		jobCopy := *job
		result = append(result, &jobCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.AnalysisJob{}, nil
		}
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// UpdateStage implements the JobStore interface.
func (s *Store) UpdateStage(ctx context.Context, jobID string, stage pipeline.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("UpdateStage: %s: %w", jobID, jobs.ErrJobNotFound)
	}

	job.Stage = stage
	return nil
}

// Sweep removes expired jobs and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, job := range s.jobs {
		if s.expired(job) {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

// StartJanitor sweeps expired jobs every interval until ctx is done.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

func (s *Store) expired(job *jobs.AnalysisJob) bool {
	return !s.now().Before(job.ExpiresAt)
}

// Ensure Store implements JobStore interface.
var _ jobs.JobStore = (*Store)(nil)
