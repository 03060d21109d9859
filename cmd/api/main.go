package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/just-save/internal/api/handlers"
	"github.com/dvloznov/just-save/internal/config"
	"github.com/dvloznov/just-save/internal/jobs"
	"github.com/dvloznov/just-save/internal/jobs/inmemory"
	"github.com/dvloznov/just-save/internal/logger"
	"github.com/dvloznov/just-save/internal/metrics/prometheus"
	"github.com/dvloznov/just-save/internal/pdftext"
	"github.com/dvloznov/just-save/internal/pipeline"
	"github.com/dvloznov/just-save/internal/reasoning"
	"github.com/dvloznov/just-save/internal/runlog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Invalid configuration")
	}

	port := flag.String("port", cfg.Server.Port, "HTTP server port (or set PORT env)")
	flag.Parse()

	log := logger.NewWithConfig(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	ctx := logger.WithContext(context.Background(), log)

	collector := prometheus.NewPrometheusCollector("just_save")
	if err := collector.Register(); err != nil {
		log.Fatal().Err(err).Msg("Failed to register metrics")
	}

	// A missing credential stops the process here rather than on the first upload.
	var engine reasoning.Reasoner
	if cfg.UsesReasoningExtractor() || cfg.Reasoning.GeminiAPIKey != "" || cfg.Reasoning.GigaChatAPIKey != "" {
		breaker, err := reasoning.New(ctx, cfg.Engine(), collector, log)
		if err != nil {
			log.Fatal().Err(err).Str("provider", cfg.Reasoning.Provider).Msg("Failed to configure reasoning engine")
		}
		engine = breaker
	} else {
		log.Warn().Msg("No reasoning engine configured - analyze and explain will be unavailable")
	}

	var runs runlog.Recorder = runlog.NoOpRecorder{}
	if cfg.RunLog.Project != "" {
		rec, err := runlog.NewBigQueryRecorder(ctx, cfg.RunLog.Project, cfg.RunLog.Dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create run log recorder")
		}
		defer rec.Close()

		if err := rec.EnsureTable(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to ensure run log table - run telemetry may be lost")
		}
		runs = rec
	}

	svc, err := pipeline.NewService(engine, pipeline.Options{
		Limits:           cfg.Limits(),
		ReasoningTimeout: cfg.Reasoning.Timeout,
		Extractor:        cfg.Pipeline.Extractor,
		Provider:         cfg.Reasoning.Provider,
		Metrics:          collector,
		Runs:             runs,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pipeline")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore(cfg.Jobs.TTL, cfg.Jobs.ConsumeOnRead)
	jobQueue := inmemory.NewQueue(cfg.Jobs.Buffer, cfg.Jobs.Workers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobStore.StartJanitor(workerCtx, time.Hour)

	go func() {
		log.Info().Int("workers", cfg.Jobs.Workers).Msg("Starting job workers")
		if err := jobQueue.Start(workerCtx, jobs.NewAnalysisHandler(svc, jobStore, collector)); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	router := handlers.NewRouter(handlers.RouterConfig{
		Service:        svc,
		PDF:            pdftext.NewFitzExtractor(),
		Publisher:      jobQueue,
		Store:          jobStore,
		Metrics:        collector,
		MetricsHandler: collector.Handler(),
		Log:            log,
		APIKey:         cfg.Server.APIKey,
		CORSOrigin:     cfg.Server.CORSOrigin,
	})

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", *port).
			Str("provider", cfg.Reasoning.Provider).
			Str("extractor", cfg.Pipeline.Extractor).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight jobs finish before cancelling their context.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
