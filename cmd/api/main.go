package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-agent/internal/agent"
	"github.com/dvloznov/finance-agent/internal/api/handlers"
	"github.com/dvloznov/finance-agent/internal/api/middleware"
	"github.com/dvloznov/finance-agent/internal/config"
	"github.com/dvloznov/finance-agent/internal/gcsuploader"
	"github.com/dvloznov/finance-agent/internal/ingest"
	"github.com/dvloznov/finance-agent/internal/insights"
	"github.com/dvloznov/finance-agent/internal/jobs"
	"github.com/dvloznov/finance-agent/internal/jobs/inmemory"
	"github.com/dvloznov/finance-agent/internal/llm"
	"github.com/dvloznov/finance-agent/internal/logger"
	"github.com/dvloznov/finance-agent/internal/store"
	"github.com/dvloznov/finance-agent/internal/tools"
	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	log := logger.New()
	ctx := context.Background()

	st, err := store.New(ctx, cfg.ProjectID, cfg.DatasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to store")
	}
	defer st.Close()

	backoffBase := time.Duration(cfg.IngestBackoffBaseMs) * time.Millisecond
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, cfg.IngestWorkers, cfg.IngestRetryMax, backoffBase, jobStore)

	orchestrator := ingest.New(st, gcsuploader.NewGCSStorageService(), cfg.SourcePriority, cfg.IngestWorkers, cfg.IngestRetryMax, backoffBase, jobStore, log)

	provider, err := newLLMProvider(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct LLM provider")
	}
	adapter := llm.NewAdapter(provider, cfg.LLMTimeout)

	registry := tools.NewRegistry()
	tools.RegisterBaseTools(registry, st)

	insightCache := insights.NewCache(time.Duration(cfg.InsightCacheTTLSeconds) * time.Second)
	insightsEngine := insights.New(registry, adapter, insightCache)

	memory := agent.NewMemory(time.Duration(cfg.ConversationTTLSeconds)*time.Second, cfg.ConversationMaxMessages)
	llmBackoffBase := time.Duration(cfg.LLMBackoffBaseMs) * time.Millisecond
	controller := agent.New(adapter, registry, memory, cfg.LLMRetryMax, llmBackoffBase, log)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		switch j := job.(type) {
		case *jobs.IngestFileJob:
			log.Info().Str("job_id", j.JobID).Str("file_path", j.FilePath).Msg("processing ingest-file job")
			_, err := orchestrator.IngestFile(ctx, j.FilePath, "")
			return err
		case *jobs.IngestBatchJob:
			log.Info().Str("job_id", j.JobID).Int("files", len(j.FilePaths)).Msg("processing ingest-batch job")
			_, err := orchestrator.IngestBatch(ctx, j.FilePaths, nil)
			return err
		default:
			return fmt.Errorf("unexpected job type: %T", job)
		}
	}

	go func() {
		log.Info().Msg("starting ingestion job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("job worker stopped with error")
		}
	}()

	go sweepLoop(workerCtx, time.Minute, func() { memory.Sweep(time.Now()) })
	go sweepLoop(workerCtx, time.Minute, func() { insightCache.Sweep(time.Now()) })

	healthHandler := handlers.NewHealthHandler(st, log)
	ingestHandler := handlers.NewIngestHandler(orchestrator, jobQueue, log)
	financialDataHandler := handlers.NewFinancialDataHandler(st, log)
	accountsHandler := handlers.NewAccountsHandler(st, log)
	queryHandler := handlers.NewQueryHandler(controller, log)
	insightsHandler := handlers.NewInsightsHandler(insightsEngine, log)

	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/detailed", healthHandler.HealthDetailed).Methods(http.MethodGet)

	router.HandleFunc("/data/ingest", ingestHandler.IngestFile).Methods(http.MethodPost)
	router.HandleFunc("/data/ingest/batch", ingestHandler.IngestBatch).Methods(http.MethodPost)
	router.HandleFunc("/data/status", ingestHandler.Status).Methods(http.MethodGet)

	router.HandleFunc("/financial-data", financialDataHandler.List).Methods(http.MethodGet)
	router.HandleFunc("/financial-data/{period}", financialDataHandler.Aggregate).Methods(http.MethodGet)

	router.HandleFunc("/accounts", accountsHandler.List).Methods(http.MethodGet)
	router.HandleFunc("/accounts/{id}", accountsHandler.Get).Methods(http.MethodGet)
	router.HandleFunc("/accounts/{id}/hierarchy", accountsHandler.Hierarchy).Methods(http.MethodGet)

	// /query and /insights/{kind} reach the LLM Adapter, so on top of the
	// server's connection timeouts they get the whole-request ceiling
	// spec.md §5 requires for agent turns.
	queryTimeout := middleware.Timeout(60*time.Second, "query timed out")
	router.Handle("/query", queryTimeout(http.HandlerFunc(queryHandler.Query))).Methods(http.MethodPost)
	router.Handle("/insights/{kind}", queryTimeout(http.HandlerFunc(insightsHandler.Get))).Methods(http.MethodGet)

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(router),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error stopping job queue")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close job queue")
	}

	log.Info().Msg("server exited")
}

func newLLMProvider(ctx context.Context, cfg config.Config) (llm.Provider, error) {
	switch cfg.LLMProvider {
	case "ProviderY", "ProviderZ":
		return llm.NewHTTPProvider(cfg.LLMProvider, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel), nil
	default:
		return llm.NewGeminiProvider(ctx, cfg.LLMModel)
	}
}

// sweepLoop runs fn on a fixed interval until ctx is cancelled, mirroring
// the teacher's job-worker background-goroutine shape.
func sweepLoop(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
