package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/just-save/internal/audit"
	"github.com/dvloznov/just-save/internal/config"
	"github.com/dvloznov/just-save/internal/domain"
	"github.com/dvloznov/just-save/internal/logger"
	"github.com/dvloznov/just-save/internal/metrics"
	"github.com/dvloznov/just-save/internal/pdftext"
	"github.com/dvloznov/just-save/internal/pipeline"
	"github.com/dvloznov/just-save/internal/reasoning"
	"github.com/dvloznov/just-save/internal/runlog"
	"github.com/dvloznov/just-save/internal/source"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr so stdout stays machine-readable.
	log := logger.NewWithConfig(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	switch os.Args[1] {
	case "extract":
		runExtract(cfg, log)
	case "analyze":
		runAnalyze(cfg, log)
	case "explain":
		runExplain(cfg, log)
	case "audit":
		runAudit(cfg, log)
	case "runs":
		runRuns(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("just save CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  extract   Extract transactions from a CSV or PDF statement")
	fmt.Println("  analyze   Extract and analyze a statement")
	fmt.Println("  explain   Analyze a statement and explain the result in plain language")
	fmt.Println("  audit     Analyze a statement and build a subscription audit")
	fmt.Println("  runs      Show recent pipeline runs (needs RUNLOG_PROJECT)")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nStatements may be local paths or gs://bucket/object URIs.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// app holds what every statement command needs.
type app struct {
	cfg    *config.Config
	svc    *pipeline.Service
	loader *source.Loader
	pdf    pdftext.Extractor
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger, location string) *app {
	a := &app{cfg: cfg, pdf: pdftext.NewFitzExtractor()}

	var engine reasoning.Reasoner
	if cfg.UsesReasoningExtractor() || cfg.Reasoning.GeminiAPIKey != "" || cfg.Reasoning.GigaChatAPIKey != "" {
		breaker, err := reasoning.New(ctx, cfg.Engine(), metrics.NoOpCollector{}, log)
		if err != nil {
			log.Fatal().Err(err).Str("provider", cfg.Reasoning.Provider).Msg("Failed to configure reasoning engine")
		}
		engine = breaker
	}

	runs := a.recorder(ctx, log)

	svc, err := pipeline.NewService(engine, pipeline.Options{
		Limits:           cfg.Limits(),
		ReasoningTimeout: cfg.Reasoning.Timeout,
		Extractor:        cfg.Pipeline.Extractor,
		Provider:         cfg.Reasoning.Provider,
		Runs:             runs,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pipeline")
	}
	a.svc = svc

	var objects source.ObjectReader
	if source.IsGCSURI(location) {
		gcs, err := source.NewGCSReader(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		a.closers = append(a.closers, gcs.Close)
		objects = gcs
	}
	a.loader = source.NewLoader(objects, svc.Limits().MaxBytes)

	return a
}

func (a *app) recorder(ctx context.Context, log zerolog.Logger) runlog.Recorder {
	if a.cfg.RunLog.Project == "" {
		return runlog.NoOpRecorder{}
	}
	rec, err := runlog.NewBigQueryRecorder(ctx, a.cfg.RunLog.Project, a.cfg.RunLog.Dataset)
	if err != nil {
		log.Warn().Err(err).Msg("Run telemetry disabled")
		return runlog.NoOpRecorder{}
	}
	a.closers = append(a.closers, rec.Close)
	return rec
}

func (a *app) Close() {
	for _, c := range a.closers {
		_ = c()
	}
}

// input loads the statement at location and turns it into pipeline input.
func (a *app) input(ctx context.Context, location string) (pipeline.Input, error) {
	st, err := a.loader.Load(ctx, location)
	if err != nil {
		return pipeline.Input{}, err
	}

	text := string(st.Data)
	if st.Kind == domain.SourcePDF {
		text, err = a.pdf.ExtractText(ctx, st.Data)
		if err != nil {
			return pipeline.Input{Kind: st.Kind}, err
		}
	}

	return pipeline.Input{Content: text, DeclaredSize: int64(len(st.Data)), Kind: st.Kind}, nil
}

// analyze runs the full pipeline, logging stage changes.
func (a *app) analyze(ctx context.Context, in pipeline.Input) (*domain.Analysis, error) {
	log := logger.FromContext(ctx)
	observer := pipeline.StageObserverFunc(func(ctx context.Context, stage pipeline.Stage) {
		log.Debug().Str("stage", string(stage)).Msg("Stage changed")
	})
	return a.svc.Run(ctx, in, observer)
}

func commandContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	return logger.WithContext(ctx, log), cancel
}

// fail prints the user-facing message and exits. Details go to the log.
func fail(log zerolog.Logger, kind domain.SourceKind, err error) {
	log.Debug().Err(err).Str("error_kind", domain.ClassifyError(err)).Msg("Command failed")
	fmt.Fprintln(os.Stderr, "Error:", domain.UserMessage(err, kind))
	os.Exit(1)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, "Error: writing output:", err)
		os.Exit(1)
	}
}

func statementFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	file := fs.String("file", "", "Statement path or gs:// URI (.csv or .pdf)")
	return fs, file
}

func requireFile(log zerolog.Logger, fs *flag.FlagSet, file string) {
	if file == "" {
		fmt.Fprintf(os.Stderr, "Usage: cli %s -file PATH\n", fs.Name())
		fs.PrintDefaults()
		os.Exit(1)
	}
	log.Debug().Str("file", source.FilenameFromURI(file)).Msg("Loading statement")
}

func runExtract(cfg *config.Config, log zerolog.Logger) {
	fs, file := statementFlags("extract")
	fs.Parse(os.Args[2:])
	requireFile(log, fs, *file)

	ctx, cancel := commandContext(log)
	defer cancel()

	a := newApp(ctx, cfg, log, *file)
	defer a.Close()

	in, err := a.input(ctx, *file)
	if err != nil {
		fail(log, in.Kind, err)
	}

	txs, err := a.svc.ExtractTransactions(ctx, in.Content, in.DeclaredSize, in.Kind)
	if err != nil {
		fail(log, in.Kind, err)
	}

	printJSON(map[string]interface{}{"transactions": txs})
}

func runAnalyze(cfg *config.Config, log zerolog.Logger) {
	fs, file := statementFlags("analyze")
	fs.Parse(os.Args[2:])
	requireFile(log, fs, *file)

	ctx, cancel := commandContext(log)
	defer cancel()

	a := newApp(ctx, cfg, log, *file)
	defer a.Close()

	in, err := a.input(ctx, *file)
	if err != nil {
		fail(log, in.Kind, err)
	}

	analysis, err := a.analyze(ctx, in)
	if err != nil {
		fail(log, in.Kind, err)
	}

	printJSON(map[string]interface{}{"analysis": analysis})
}

func runExplain(cfg *config.Config, log zerolog.Logger) {
	fs, file := statementFlags("explain")
	fs.Parse(os.Args[2:])
	requireFile(log, fs, *file)

	ctx, cancel := commandContext(log)
	defer cancel()

	a := newApp(ctx, cfg, log, *file)
	defer a.Close()

	in, err := a.input(ctx, *file)
	if err != nil {
		fail(log, in.Kind, err)
	}

	analysis, err := a.analyze(ctx, in)
	if err != nil {
		fail(log, in.Kind, err)
	}

	text, err := a.svc.Explain(ctx, analysis)
	if err != nil {
		fail(log, "", err)
	}

	fmt.Println(text)
}

func runAudit(cfg *config.Config, log zerolog.Logger) {
	fs, file := statementFlags("audit")
	cancelList := fs.String("cancel", "", "Comma-separated subscription names to cancel")
	keepList := fs.String("keep", "", "Comma-separated subscription names to keep")
	investigateList := fs.String("investigate", "", "Comma-separated subscription names to investigate")
	fs.Parse(os.Args[2:])
	requireFile(log, fs, *file)

	ctx, cancel := commandContext(log)
	defer cancel()

	a := newApp(ctx, cfg, log, *file)
	defer a.Close()

	in, err := a.input(ctx, *file)
	if err != nil {
		fail(log, in.Kind, err)
	}

	analysis, err := a.analyze(ctx, in)
	if err != nil {
		fail(log, in.Kind, err)
	}

	items := audit.Decide(analysis.Subscriptions, splitList(*cancelList), splitList(*investigateList), splitList(*keepList))
	printJSON(audit.Build(items, time.Now()))
}

func runRuns(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of runs to show")
	fs.Parse(os.Args[2:])

	if cfg.RunLog.Project == "" {
		fmt.Fprintln(os.Stderr, "Error: RUNLOG_PROJECT is not set")
		os.Exit(1)
	}

	ctx, cancel := commandContext(log)
	defer cancel()

	rec, err := runlog.NewBigQueryRecorder(ctx, cfg.RunLog.Project, cfg.RunLog.Dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create run log recorder")
	}
	defer rec.Close()

	runs, err := rec.Recent(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query runs")
	}

	fmt.Printf("\n=== Recent runs (%d) ===\n", len(runs))
	for _, r := range runs {
		errKind := r.ErrorKind
		if errKind == "" {
			errKind = "-"
		}
		fmt.Printf("%s  %-8s %-4s %-8s %-7s %-22s %4d txs  %s\n",
			r.StartedAt.Format(time.RFC3339), r.Operation, r.SourceKind, r.Provider, r.Status, errKind,
			r.TransactionCount, r.Duration.Round(time.Millisecond))
	}
	fmt.Println()
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
