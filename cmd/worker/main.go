// Command worker runs the three background loops the API process starts
// inline (job consumer, conversation-memory reaper, insight-cache reaper)
// as their own process, grounded on the teacher's cmd/api/main.go
// job-worker-goroutine wiring but factored out since spec.md's ambient
// stack now has three independent periodic loops instead of one.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-agent/internal/agent"
	"github.com/dvloznov/finance-agent/internal/config"
	"github.com/dvloznov/finance-agent/internal/gcsuploader"
	"github.com/dvloznov/finance-agent/internal/ingest"
	"github.com/dvloznov/finance-agent/internal/insights"
	"github.com/dvloznov/finance-agent/internal/jobs"
	"github.com/dvloznov/finance-agent/internal/jobs/inmemory"
	"github.com/dvloznov/finance-agent/internal/logger"
	"github.com/dvloznov/finance-agent/internal/store"
)

func main() {
	log := logger.New()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(ctx, cfg.ProjectID, cfg.DatasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to store")
	}
	defer st.Close()

	backoffBase := time.Duration(cfg.IngestBackoffBaseMs) * time.Millisecond
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, cfg.IngestWorkers, cfg.IngestRetryMax, backoffBase, jobStore)
	orchestrator := ingest.New(st, gcsuploader.NewGCSStorageService(), cfg.SourcePriority, cfg.IngestWorkers, cfg.IngestRetryMax, backoffBase, jobStore, log)

	insightCache := insights.NewCache(time.Duration(cfg.InsightCacheTTLSeconds) * time.Second)
	memory := agent.NewMemory(time.Duration(cfg.ConversationTTLSeconds)*time.Second, cfg.ConversationMaxMessages)

	handler := func(ctx context.Context, job jobs.Job) error {
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

	log.Info().Msg("starting worker service")

	go func() {
		if err := jobQueue.Start(ctx, handler); err != nil {
			log.Error().Err(err).Msg("job consumer stopped with error")
		}
	}()
	go sweepLoop(ctx, time.Minute, func() { memory.Sweep(time.Now()) })
	go sweepLoop(ctx, time.Minute, func() { insightCache.Sweep(time.Now()) })

	log.Info().Msg("worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during graceful shutdown")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close job queue")
	}

	log.Info().Msg("worker service exited")
}

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
