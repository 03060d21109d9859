package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/just-save/internal/domain"
	"github.com/dvloznov/just-save/internal/logger"
	"github.com/dvloznov/just-save/internal/metrics"
	"github.com/dvloznov/just-save/internal/reasoning"
	"github.com/dvloznov/just-save/internal/runlog"
)

// recordTimeout bounds one run telemetry write.
const recordTimeout = 10 * time.Second

// Extractor names accepted in Options.Extractor.
const (
	ExtractorReasoning = "reasoning"
	ExtractorHeuristic = "heuristic"
)

// Options configures a Service. Zero values select the defaults.
type Options struct {
	Limits           Limits
	ReasoningTimeout time.Duration
	Extractor        string
	Provider         string // reasoning provider name, for run telemetry
	Metrics          metrics.Collector
	Runs             runlog.Recorder
}

// Service runs the statement-to-analysis pipeline. It holds no per-request
// state and is safe for concurrent use.
type Service struct {
	reasoner  reasoning.Reasoner
	extractor Extractor
	limits    Limits
	timeout   time.Duration
	provider  string
	metrics   metrics.Collector
	runs      runlog.Recorder
}

// NewService creates a Service. r may be nil only with the heuristic
// extractor, in which case Analyze and Explain fail with ErrNotConfigured.
func NewService(r reasoning.Reasoner, opts Options) (*Service, error) {
	s := &Service{
		reasoner: r,
		limits:   opts.Limits.withDefaults(),
		timeout:  opts.ReasoningTimeout,
		provider: opts.Provider,
		metrics:  opts.Metrics,
		runs:     opts.Runs,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultReasoningTimeout
	}
	if s.metrics == nil {
		s.metrics = metrics.NoOpCollector{}
	}
	if s.runs == nil {
		s.runs = runlog.NoOpRecorder{}
	}

	switch strings.ToLower(opts.Extractor) {
	case "", ExtractorReasoning:
		if r == nil {
			return nil, fmt.Errorf("NewService: reasoning extractor without a reasoner: %w", domain.ErrNotConfigured)
		}
		s.extractor = NewReasoningExtractor(r, s.limits, s.timeout)
	case ExtractorHeuristic:
		s.extractor = NewHeuristicExtractor(s.limits)
	default:
		return nil, fmt.Errorf("NewService: unknown extractor %q", opts.Extractor)
	}

	return s, nil
}

// Limits returns the effective size limits.
func (s *Service) Limits() Limits {
	return s.limits
}

// ExtractTransactions turns statement text into validated transactions.
// declaredSize is the size of the uploaded file.
func (s *Service) ExtractTransactions(ctx context.Context, content string, declaredSize int64, kind domain.SourceKind) ([]domain.Transaction, error) {
	tracker := NewStageTracker(nil)
	txs, err := s.extract(ctx, Input{Content: content, DeclaredSize: declaredSize, Kind: kind}, tracker)
	if err != nil {
		tracker.Fail(ctx)
		return nil, err
	}
	_ = tracker.Advance(ctx, StageComplete)
	return txs, nil
}

// Analyze produces an Analysis from already extracted transactions using one
// reasoning call. TotalSpent is always computed locally.
func (s *Service) Analyze(ctx context.Context, txs []domain.Transaction) (*domain.Analysis, error) {
	tracker := NewStageTracker(nil)
	if err := tracker.Advance(ctx, StageAggregating); err != nil {
		return nil, err
	}
	a, err := s.analyze(ctx, txs)
	if err != nil {
		tracker.Fail(ctx)
		return nil, err
	}
	_ = tracker.Advance(ctx, StageComplete)
	return a, nil
}

// Run executes extraction and analysis in sequence, reporting each stage to
// observer (which may be nil).
func (s *Service) Run(ctx context.Context, in Input, observer StageObserver) (*domain.Analysis, error) {
	tracker := NewStageTracker(observer)

	txs, err := s.extract(ctx, in, tracker)
	if err != nil {
		tracker.Fail(ctx)
		return nil, err
	}

	if err := tracker.Advance(ctx, StageAggregating); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	a, err := s.analyze(ctx, txs)
	if err != nil {
		tracker.Fail(ctx)
		return nil, err
	}

	_ = tracker.Advance(ctx, StageComplete)
	return a, nil
}

// Explain asks the engine for a short plain-language summary of an analysis.
func (s *Service) Explain(ctx context.Context, a *domain.Analysis) (string, error) {
	run := runlog.NewRun("explain", "")

	text, err := s.explain(ctx, a)
	s.record(ctx, run, err, 0)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (s *Service) explain(ctx context.Context, a *domain.Analysis) (string, error) {
	const op = "Explain"

	if a == nil {
		return "", domain.NewPipelineError(op, "", "", domain.ErrEmptyInput)
	}
	if s.reasoner == nil {
		return "", domain.NewPipelineError(op, "", "", domain.ErrNotConfigured)
	}

	raw, err := complete(ctx, s.reasoner, s.timeout, reasoning.Request{
		Prompt: BuildExplainPrompt(a),
		Budget: reasoning.BudgetSmall,
		Task:   reasoning.TaskExplain,
	})
	if err != nil {
		return "", domain.NewPipelineError(op, "", "", err)
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		return "", domain.NewPipelineError(op, "", raw, fmt.Errorf("explain: empty response: %w", domain.ErrReasoningUnavailable))
	}
	return text, nil
}

func (s *Service) extract(ctx context.Context, in Input, tracker *StageTracker) ([]domain.Transaction, error) {
	log := logger.FromContext(ctx)
	start := time.Now()
	run := runlog.NewRun("extract", string(in.Kind))

	txs, err := s.extractor.Extract(ctx, in, tracker)

	s.metrics.RecordExtraction(string(in.Kind), metrics.Outcome(err), len(txs), time.Since(start))
	s.record(ctx, run, err, len(txs))

	if err != nil {
		log.Warn().
			Str("kind", string(in.Kind)).
			Str("error_kind", domain.ClassifyError(err)).
			Err(err).
			Msg("Transaction extraction failed")
		return nil, err
	}

	log.Info().
		Str("kind", string(in.Kind)).
		Int("transactions", len(txs)).
		Dur("duration", time.Since(start)).
		Msg("Transactions extracted")
	return txs, nil
}

func (s *Service) analyze(ctx context.Context, txs []domain.Transaction) (*domain.Analysis, error) {
	log := logger.FromContext(ctx)
	start := time.Now()
	run := runlog.NewRun("analyze", "")

	a, err := s.buildAnalysis(ctx, txs)

	subs := 0
	if a != nil {
		subs = len(a.Subscriptions)
	}
	s.metrics.RecordAnalysis(metrics.Outcome(err), subs, time.Since(start))
	s.record(ctx, run, err, len(txs))

	if err != nil {
		log.Warn().
			Str("error_kind", domain.ClassifyError(err)).
			Err(err).
			Msg("Analysis failed")
		return nil, err
	}

	log.Info().
		Int("transactions", len(txs)).
		Int("subscriptions", subs).
		Int("categories", len(a.CategorySpending)).
		Dur("duration", time.Since(start)).
		Msg("Analysis complete")
	return a, nil
}

func (s *Service) buildAnalysis(ctx context.Context, txs []domain.Transaction) (*domain.Analysis, error) {
	const op = "Analyze"
	log := logger.FromContext(ctx)

	if len(txs) == 0 {
		return nil, domain.NewPipelineError(op, "", "", domain.ErrEmptyInput)
	}

	valid := ValidTransactions(txs)
	if len(valid) == 0 {
		return nil, domain.NewPipelineError(op, "", "",
			fmt.Errorf("0 of %d transactions valid: %w", len(txs), domain.ErrNoTransactionsFound))
	}
	if dropped := len(txs) - len(valid); dropped > 0 {
		log.Warn().Int("dropped", dropped).Int("kept", len(valid)).Msg("Dropped invalid transactions before analysis")
	}
	txs = valid

	debits := domain.Debits(txs)
	total := TotalSpent(txs)

	// Nothing to categorise; the engine would only be asked about an empty list.
	if len(debits) == 0 {
		return &domain.Analysis{
			Subscriptions:    []domain.Subscription{},
			CategorySpending: []domain.CategorySpending{},
			TotalSpent:       0,
			Insights:         domain.DefaultInsights(),
		}, nil
	}

	if s.reasoner == nil {
		return nil, domain.NewPipelineError(op, "", "", domain.ErrNotConfigured)
	}

	raw, err := complete(ctx, s.reasoner, s.timeout, reasoning.Request{
		Prompt: BuildAnalysisPrompt(debits, total),
		Budget: reasoning.BudgetLarge,
		Task:   reasoning.TaskAnalyze,
	})
	if err != nil {
		return nil, domain.NewPipelineError(op, "", "", err)
	}

	// A missing closing brace is not fatal here: decodeAnalysis can still
	// recover the fields before a truncated insights block.
	payload, _ := ExtractJSON(raw, ShapeObject)
	resp, err := decodeAnalysis(payload, stripFences(raw))
	if err != nil {
		log.Debug().Str("raw", logger.Truncate(raw, 500)).Msg("Unusable analysis response")
		return nil, domain.NewPipelineError(op, "", raw, err)
	}

	if resp.InsightsErr != nil {
		log.Warn().Err(resp.InsightsErr).Msg("Insights missing or malformed, using defaults")
	}

	return &domain.Analysis{
		Subscriptions:    ResolveSubscriptions(resp.Subscriptions, debits),
		CategorySpending: Categorize(debits, resp.Categories, total),
		TotalSpent:       total,
		Insights:         resp.Insights,
	}, nil
}

// record stores run telemetry. Failures are logged and never reach the caller.
func (s *Service) record(ctx context.Context, run runlog.Run, err error, transactions int) {
	run = run.Finish(domain.ClassifyError(err), transactions)
	run.Provider = s.provider

	if errors.Is(err, context.Canceled) {
		run.ErrorKind = "canceled"
	}

	// Detached from the request so canceled runs are kept, but bounded so a
	// slow sink cannot hold the response.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if rerr := s.runs.Record(rctx, run); rerr != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(rerr).Str("operation", run.Operation).Msg("Failed to record pipeline run")
	}
}
