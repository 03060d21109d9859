package reasoning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/just-save/internal/domain"
	"github.com/dvloznov/just-save/internal/metrics"
)

// Budget is the maximum number of output tokens a call may produce.
type Budget int32

const (
	// BudgetLarge covers extraction and analysis, which enumerate many transactions.
	BudgetLarge Budget = 8192
	// BudgetSmall covers short prose such as explanations.
	BudgetSmall Budget = 1024
)

// Task labels used for metrics and logs.
const (
	TaskExtractCSV = "extract_csv"
	TaskExtractPDF = "extract_pdf"
	TaskAnalyze    = "analyze"
	TaskExplain    = "explain"
)

// Request is one prompt/response round trip.
type Request struct {
	Prompt string
	Budget Budget
	Task   string
}

// MarshalZerologObject logs a request without its prompt, which carries user data.
func (r Request) MarshalZerologObject(e *zerolog.Event) {
	e.Str("task", r.Task).Int32("budget", int32(r.Budget)).Int("prompt_len", len(r.Prompt))
}

// Reasoner returns the engine's raw textual response for a prompt.
// Implementations never retry; a failed call is reported to the caller as is.
type Reasoner interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ReasonerFunc adapts a function to the Reasoner interface.
type ReasonerFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f ReasonerFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// mapError converts a provider error into the pipeline taxonomy.
// A deadline becomes ErrReasoningTimeout; caller cancellation is passed through
// so that abandoned requests are not reported as engine failures.
func mapError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, domain.ErrReasoningTimeout)
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%s: %w", op, context.Canceled)
	default:
		return fmt.Errorf("%s: %w: %v", op, domain.ErrReasoningUnavailable, err)
	}
}

// observe records one call on the collector.
func observe(m metrics.Collector, provider string, req Request, start time.Time, err error) {
	outcome := "success"
	switch {
	case errors.Is(err, domain.ErrReasoningTimeout):
		outcome = "timeout"
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	case err != nil:
		outcome = "error"
	}
	m.RecordReasoning(provider, req.Task, outcome, time.Since(start))
}
