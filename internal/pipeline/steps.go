package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/just-save/internal/domain"
	"github.com/dvloznov/just-save/internal/logger"
	"github.com/dvloznov/just-save/internal/reasoning"
)

// PipelineStep represents a single step in the extraction pipeline.
type PipelineStep interface {
	Stage() Stage
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Input        Input
	Text         string // normalized statement text
	Prompt       string
	Raw          string // engine response as received
	Payload      string // sanitized JSON
	Transactions []domain.Transaction
}

// Step 1: NormalizeStep checks size limits and truncates the statement text.
type NormalizeStep struct {
	Limits Limits
}

func (s *NormalizeStep) Stage() Stage { return StageNormalizing }

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	text, err := Normalize(state.Input.Content, state.Input.DeclaredSize, state.Input.Kind, s.Limits)
	if err != nil {
		return err
	}
	state.Text = text
	return nil
}

// Step 2: BuildPromptStep picks the extraction prompt for the source kind.
type BuildPromptStep struct{}

func (s *BuildPromptStep) Stage() Stage { return StageExtracting }

func (s *BuildPromptStep) Execute(ctx context.Context, state *PipelineState) error {
	switch state.Input.Kind {
	case domain.SourceCSV:
		state.Prompt = BuildCSVPrompt(state.Text)
	case domain.SourcePDF:
		state.Prompt = BuildPDFPrompt(state.Text)
	default:
		return fmt.Errorf("BuildPromptStep: %w: %q", domain.ErrUnsupportedSource, state.Input.Kind)
	}
	return nil
}

// Step 3: ReasonStep sends the prompt to the reasoning engine under a timeout.
type ReasonStep struct {
	Reasoner reasoning.Reasoner
	Timeout  time.Duration
}

func (s *ReasonStep) Stage() Stage { return StageExtracting }

func (s *ReasonStep) Execute(ctx context.Context, state *PipelineState) error {
	task := reasoning.TaskExtractCSV
	if state.Input.Kind == domain.SourcePDF {
		task = reasoning.TaskExtractPDF
	}

	raw, err := complete(ctx, s.Reasoner, s.Timeout, reasoning.Request{
		Prompt: state.Prompt,
		Budget: reasoning.BudgetLarge,
		Task:   task,
	})
	if err != nil {
		return err
	}
	state.Raw = raw
	return nil
}

// Step 4: SanitizeStep locates the JSON array in the response.
type SanitizeStep struct{}

func (s *SanitizeStep) Stage() Stage { return StageValidating }

func (s *SanitizeStep) Execute(ctx context.Context, state *PipelineState) error {
	payload, err := ExtractJSON(state.Raw, ShapeArray)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Debug().
			Str("kind", string(state.Input.Kind)).
			Str("raw", logger.Truncate(state.Raw, 500)).
			Msg("No JSON array in extraction response")
		return err
	}
	state.Payload = payload
	return nil
}

// Step 5: ValidateStep decodes the payload and keeps well-formed records.
type ValidateStep struct{}

func (s *ValidateStep) Stage() Stage { return StageValidating }

func (s *ValidateStep) Execute(ctx context.Context, state *PipelineState) error {
	txs, err := ParseTransactions(state.Payload)
	if err != nil {
		return err
	}
	state.Transactions = txs
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially, moving tracker to each
// step's stage before running it. tracker may be nil.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState, tracker *StageTracker) error {
	for i, step := range p.steps {
		if tracker != nil {
			if err := tracker.Advance(ctx, step.Stage()); err != nil {
				return fmt.Errorf("pipeline step %d: %w", i+1, err)
			}
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Stage(), err)
		}
	}
	return nil
}

// NewExtractionPipeline creates the standard 5-step pipeline that turns
// statement text into validated transactions.
func NewExtractionPipeline(r reasoning.Reasoner, limits Limits, timeout time.Duration) *Pipeline {
	return NewPipeline(
		&NormalizeStep{Limits: limits},
		&BuildPromptStep{},
		&ReasonStep{Reasoner: r, Timeout: timeout},
		&SanitizeStep{},
		&ValidateStep{},
	)
}

// complete runs one reasoning call bounded by timeout. Caller cancellation
// still propagates through ctx.
func complete(ctx context.Context, r reasoning.Reasoner, timeout time.Duration, req reasoning.Request) (string, error) {
	if timeout <= 0 {
		timeout = DefaultReasoningTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := logger.FromContext(ctx)
	log.Debug().Object("request", req).Msg("Calling reasoning engine")

	raw, err := r.Complete(ctx, req)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrReasoningTimeout) {
		return "", fmt.Errorf("complete: %v: %w", err, domain.ErrReasoningTimeout)
	}
	return raw, err
}
