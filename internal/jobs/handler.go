package jobs

import (
	"context"

	"github.com/dvloznov/just-save/internal/logger"
	"github.com/dvloznov/just-save/internal/metrics"
	"github.com/dvloznov/just-save/internal/pipeline"
)

// NewAnalysisHandler returns a JobHandler that runs the pipeline for a job,
// publishing every stage change to store and m.
func NewAnalysisHandler(runner AnalysisRunner, store JobStore, m metrics.Collector) JobHandler {
	if m == nil {
		m = metrics.NoOpCollector{}
	}

	return func(ctx context.Context, job *AnalysisJob) error {
		observer := pipeline.StageObserverFunc(func(ctx context.Context, stage pipeline.Stage) {
			job.Stage = stage
			m.RecordJob(string(stage))

			if store == nil {
				return
			}
			if err := store.UpdateStage(ctx, job.JobID, stage); err != nil {
				log := logger.FromContext(ctx)
				log.Warn().Err(err).Str("job_id", job.JobID).Str("stage", string(stage)).Msg("Failed to record job stage")
			}
		})

		a, err := runner.Run(ctx, job.Input, observer)
		if err != nil {
			return err
		}
		job.Result = a
		return nil
	}
}
