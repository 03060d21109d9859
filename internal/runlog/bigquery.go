package runlog

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

const (
	// DefaultDataset is used when RUNLOG_DATASET is unset.
	DefaultDataset = "just_save"

	runsTable = "pipeline_runs"
)

// RunRow is the BigQuery row for one pipeline run.
type RunRow struct {
	RunID     string     `bigquery:"run_id"`     // REQUIRED
	Operation string     `bigquery:"operation"`  // REQUIRED
	StartedTS time.Time  `bigquery:"started_ts"` // REQUIRED
	RunDate   civil.Date `bigquery:"run_date"`   // REQUIRED, partition column

	SourceKind bigquery.NullString `bigquery:"source_kind"` // NULLABLE
	Provider   bigquery.NullString `bigquery:"provider"`    // NULLABLE

	Status           string              `bigquery:"status"`            // REQUIRED
	ErrorKind        bigquery.NullString `bigquery:"error_kind"`        // NULLABLE
	TransactionCount int64               `bigquery:"transaction_count"` // REQUIRED
	DurationMS       int64               `bigquery:"duration_ms"`       // REQUIRED
}

func toRow(r Run) RunRow {
	row := RunRow{
		RunID:            r.RunID,
		Operation:        r.Operation,
		StartedTS:        r.StartedAt,
		RunDate:          r.RunDate,
		Status:           r.Status,
		TransactionCount: int64(r.TransactionCount),
		DurationMS:       r.Duration.Milliseconds(),
	}
	if r.SourceKind != "" {
		row.SourceKind = bigquery.NullString{StringVal: r.SourceKind, Valid: true}
	}
	if r.Provider != "" {
		row.Provider = bigquery.NullString{StringVal: r.Provider, Valid: true}
	}
	if r.ErrorKind != "" && r.ErrorKind != "none" {
		row.ErrorKind = bigquery.NullString{StringVal: r.ErrorKind, Valid: true}
	}
	return row
}

func fromRow(row RunRow) Run {
	return Run{
		RunID:            row.RunID,
		Operation:        row.Operation,
		SourceKind:       row.SourceKind.StringVal,
		Provider:         row.Provider.StringVal,
		Status:           row.Status,
		ErrorKind:        row.ErrorKind.StringVal,
		TransactionCount: int(row.TransactionCount),
		Duration:         time.Duration(row.DurationMS) * time.Millisecond,
		StartedAt:        row.StartedTS,
		RunDate:          row.RunDate,
	}
}

// BigQueryRecorder appends runs to <project>.<dataset>.pipeline_runs.
type BigQueryRecorder struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewBigQueryRecorder creates a recorder with a shared BigQuery client.
func NewBigQueryRecorder(ctx context.Context, projectID, datasetID string) (*BigQueryRecorder, error) {
	if datasetID == "" {
		datasetID = DefaultDataset
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryRecorder: creating client: %w", err)
	}
	return &BigQueryRecorder{client: client, projectID: projectID, datasetID: datasetID}, nil
}

// Close closes the underlying BigQuery client.
func (r *BigQueryRecorder) Close() error {
	return r.client.Close()
}

// EnsureTable creates the runs table if it doesn't exist.
func (r *BigQueryRecorder) EnsureTable(ctx context.Context) error {
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS `+"`%s.%s.%s`"+` (
			run_id            STRING NOT NULL,
			operation         STRING NOT NULL,
			started_ts        TIMESTAMP NOT NULL,
			run_date          DATE NOT NULL,
			source_kind       STRING,
			provider          STRING,
			status            STRING NOT NULL,
			error_kind        STRING,
			transaction_count INT64 NOT NULL,
			duration_ms       INT64 NOT NULL
		)
		PARTITION BY run_date
	`, r.projectID, r.datasetID, runsTable)

	return r.exec(ctx, "EnsureTable", r.client.Query(sql))
}

// Record inserts one run with a DML INSERT.
func (r *BigQueryRecorder) Record(ctx context.Context, run Run) error {
	row := toRow(run)

	q := r.client.Query(fmt.Sprintf(`
		INSERT %s.%s (
			run_id,
			operation,
			started_ts,
			run_date,
			source_kind,
			provider,
			status,
			error_kind,
			transaction_count,
			duration_ms
		)
		VALUES (
			@run_id,
			@operation,
			@started_ts,
			@run_date,
			@source_kind,
			@provider,
			@status,
			@error_kind,
			@transaction_count,
			@duration_ms
		)
	`, r.datasetID, runsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: row.RunID},
		{Name: "operation", Value: row.Operation},
		{Name: "started_ts", Value: row.StartedTS},
		{Name: "run_date", Value: row.RunDate},
		{Name: "source_kind", Value: row.SourceKind},
		{Name: "provider", Value: row.Provider},
		{Name: "status", Value: row.Status},
		{Name: "error_kind", Value: row.ErrorKind},
		{Name: "transaction_count", Value: row.TransactionCount},
		{Name: "duration_ms", Value: row.DurationMS},
	}

	return r.exec(ctx, "Record", q)
}

// Recent returns the latest runs, newest first.
func (r *BigQueryRecorder) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	q := r.client.Query(fmt.Sprintf(`
		SELECT run_id, operation, started_ts, run_date, source_kind, provider,
		       status, error_kind, transaction_count, duration_ms
		FROM %s.%s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, r.datasetID, runsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("Recent: reading runs: %w", err)
	}

	var runs []Run
	for {
		var row RunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Recent: iterating results: %w", err)
		}
		runs = append(runs, fromRow(row))
	}

	return runs, nil
}

func (r *BigQueryRecorder) exec(ctx context.Context, op string, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: running query: %w", op, err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%s: job error: %w", op, err)
	}

	return nil
}
