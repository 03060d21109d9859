package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/just-save/internal/domain"
	"github.com/dvloznov/just-save/internal/reasoning"
)

// Input is a statement as handed to an Extractor.
type Input struct {
	// Content is the statement text: the CSV itself, or text extracted from a PDF.
	Content string
	// DeclaredSize is the size in bytes of the uploaded file.
	DeclaredSize int64
	Kind         domain.SourceKind
}

// Extractor turns statement text into validated transactions.
// Errors are *domain.PipelineError values wrapping a domain sentinel.
type Extractor interface {
	Extract(ctx context.Context, in Input, tracker *StageTracker) ([]domain.Transaction, error)
}

// ReasoningExtractor extracts transactions through the reasoning engine.
type ReasoningExtractor struct {
	pipeline *Pipeline
}

// NewReasoningExtractor creates an extractor running the standard extraction pipeline.
func NewReasoningExtractor(r reasoning.Reasoner, limits Limits, timeout time.Duration) *ReasoningExtractor {
	return &ReasoningExtractor{pipeline: NewExtractionPipeline(r, limits, timeout)}
}

// Extract runs the pipeline over in.
func (e *ReasoningExtractor) Extract(ctx context.Context, in Input, tracker *StageTracker) ([]domain.Transaction, error) {
	state := &PipelineState{Input: in}
	if err := e.pipeline.Execute(ctx, state, tracker); err != nil {
		return nil, domain.NewPipelineError("ExtractTransactions", in.Kind, state.Raw, err)
	}
	return state.Transactions, nil
}
