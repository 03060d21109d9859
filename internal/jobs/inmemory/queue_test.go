package inmemory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/just-save/internal/domain"
	"github.com/dvloznov/just-save/internal/jobs"
	"github.com/dvloznov/just-save/internal/metrics"
	"github.com/dvloznov/just-save/internal/pipeline"
)

// MockRunner is a mock implementation of jobs.AnalysisRunner
type MockRunner struct {
	RunFunc func(ctx context.Context, in pipeline.Input, observer pipeline.StageObserver) (*domain.Analysis, error)
	calls   atomic.Int32
}

func (m *MockRunner) Run(ctx context.Context, in pipeline.Input, observer pipeline.StageObserver) (*domain.Analysis, error) {
	m.calls.Add(1)
	return m.RunFunc(ctx, in, observer)
}

// MockCollector records job stages.
type MockCollector struct {
	metrics.NoOpCollector
	mu     sync.Mutex
	stages []string
}

func (m *MockCollector) RecordJob(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, stage)
}

// runStages drives observer through stages the way a StageTracker would.
func runStages(ctx context.Context, observer pipeline.StageObserver, stages ...pipeline.Stage) {
	for _, s := range stages {
		observer.StageChanged(ctx, s)
	}
}

func waitForStatus(t *testing.T, s *Store, id string) *jobs.AnalysisJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.GetJob(context.Background(), id)
		if err == nil && job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return nil
}

func startQueue(t *testing.T, runner jobs.AnalysisRunner, m metrics.Collector) (*Queue, *Store) {
	t.Helper()
	store := NewStore(time.Hour, false)
	q := NewQueue(10, 2, store)

	ctx, cancel := context.WithCancel(context.Background())
	if err := q.Start(ctx, jobs.NewAnalysisHandler(runner, store, m)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = q.Close()
	})
	return q, store
}

func TestQueue_CompletesJob(t *testing.T) {
	want := &domain.Analysis{TotalSpent: 42.5, Insights: domain.DefaultInsights()}
	var gotContent string
	runner := &MockRunner{
		RunFunc: func(ctx context.Context, in pipeline.Input, observer pipeline.StageObserver) (*domain.Analysis, error) {
			gotContent = in.Content
			runStages(ctx, observer, pipeline.StageNormalizing, pipeline.StageExtracting, pipeline.StageValidating, pipeline.StageAggregating, pipeline.StageComplete)
			return want, nil
		},
	}
	m := &MockCollector{}
	q, store := startQueue(t, runner, m)

	job := &jobs.AnalysisJob{Input: pipeline.Input{Content: "csv text", DeclaredSize: 8, Kind: domain.SourceCSV}}
	if err := q.Publish(context.Background(), job); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if job.JobID == "" {
		t.Fatal("Publish() should assign a job ID")
	}

	got := waitForStatus(t, store, job.JobID)
	if got.Status != jobs.JobStatusCompleted || got.Stage != pipeline.StageComplete {
		t.Errorf("job = %s/%s, want completed/complete", got.Status, got.Stage)
	}
	if got.Result == nil || got.Result.TotalSpent != 42.5 {
		t.Errorf("Result = %+v", got.Result)
	}
	if got.Kind != domain.SourceCSV || got.StartedAt == nil || got.CompletedAt == nil {
		t.Errorf("job metadata = %+v", got)
	}
	if gotContent != "csv text" {
		t.Errorf("runner saw content %q", gotContent)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stages) != 5 || m.stages[4] != "complete" {
		t.Errorf("recorded stages = %v", m.stages)
	}
}

func TestQueue_FailedJobIsNotRetried(t *testing.T) {
	runner := &MockRunner{
		RunFunc: func(ctx context.Context, in pipeline.Input, observer pipeline.StageObserver) (*domain.Analysis, error) {
			runStages(ctx, observer, pipeline.StageNormalizing, pipeline.StageExtracting, pipeline.StageFailed)
			return nil, domain.NewPipelineError("ExtractTransactions", domain.SourcePDF, "sorry", domain.ErrReasoningTimeout)
		},
	}
	q, store := startQueue(t, runner, nil)

	job := &jobs.AnalysisJob{Input: pipeline.Input{Content: "pdf text", Kind: domain.SourcePDF}}
	if err := q.Publish(context.Background(), job); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got := waitForStatus(t, store, job.JobID)
	if got.Status != jobs.JobStatusFailed || got.Stage != pipeline.StageFailed {
		t.Errorf("job = %s/%s, want failed/failed", got.Status, got.Stage)
	}
	if got.ErrorKind != "reasoning_timeout" {
		t.Errorf("ErrorKind = %q", got.ErrorKind)
	}
	if got.Error != domain.UserMessage(domain.ErrReasoningTimeout, domain.SourcePDF) {
		t.Errorf("Error = %q, want the generic user message", got.Error)
	}
	if got.Result != nil {
		t.Error("failed job should carry no result")
	}

	time.Sleep(50 * time.Millisecond)
	if n := runner.calls.Load(); n != 1 {
		t.Errorf("runner called %d times, want 1", n)
	}
}

func TestQueue_PanicFailsJob(t *testing.T) {
	runner := &MockRunner{
		RunFunc: func(ctx context.Context, in pipeline.Input, observer pipeline.StageObserver) (*domain.Analysis, error) {
			panic("boom")
		},
	}
	q, store := startQueue(t, runner, nil)

	job := &jobs.AnalysisJob{Input: pipeline.Input{Kind: domain.SourceCSV}}
	if err := q.Publish(context.Background(), job); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got := waitForStatus(t, store, job.JobID)
	if got.Status != jobs.JobStatusFailed || got.ErrorKind != "other" {
		t.Errorf("job = %s (%s), want failed (other)", got.Status, got.ErrorKind)
	}
}

func TestQueue_PublishAfterClose(t *testing.T) {
	q := NewQueue(1, 1, nil)
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := q.Publish(context.Background(), &jobs.AnalysisJob{}); err == nil {
		t.Error("Publish() on a closed queue should fail")
	}
	if err := q.Start(context.Background(), nil); err == nil {
		t.Error("Start() on a closed queue should fail")
	}
}
