// Command ingest is a CLI over the same operations the API server exposes,
// grounded on the teacher's cmd/cli/main.go subcommand-switch style: one
// flag.NewFlagSet per subcommand, dispatched on os.Args[1].
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/finance-agent/internal/agent"
	"github.com/dvloznov/finance-agent/internal/config"
	"github.com/dvloznov/finance-agent/internal/domain"
	"github.com/dvloznov/finance-agent/internal/gcsuploader"
	"github.com/dvloznov/finance-agent/internal/ingest"
	"github.com/dvloznov/finance-agent/internal/jobs/inmemory"
	"github.com/dvloznov/finance-agent/internal/llm"
	"github.com/dvloznov/finance-agent/internal/logger"
	"github.com/dvloznov/finance-agent/internal/store"
	"github.com/dvloznov/finance-agent/internal/tools"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		runIngest(log)
	case "batch":
		runBatch(log)
	case "status":
		runStatus(log)
	case "query":
		runQuery(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finance Agent CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  ingest <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest    Parse and ingest one financial data file")
	fmt.Println("  batch     Parse and ingest a batch of files")
	fmt.Println("  status    Look up an ingestion batch's status")
	fmt.Println("  query     Send an ad-hoc natural-language query to the agent")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'ingest <command> -h' for more information on a command.")
}

func loadStore(ctx context.Context, log zerolog.Logger) (*store.Store, config.Config) {
	cfg, err := config.Load(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}
	st, err := store.New(ctx, cfg.ProjectID, cfg.DatasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to store")
	}
	return st, cfg
}

func newOrchestrator(st *store.Store, cfg config.Config, log zerolog.Logger) *ingest.Orchestrator {
	jobStore := inmemory.NewStore()
	backoffBase := time.Duration(cfg.IngestBackoffBaseMs) * time.Millisecond
	return ingest.New(st, gcsuploader.NewGCSStorageService(), cfg.SourcePriority, cfg.IngestWorkers, cfg.IngestRetryMax, backoffBase, jobStore, log)
}

func runIngest(log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	path := fs.String("path", "", "path or gs:// URI of the file to ingest")
	source := fs.String("source", "", "optional source dialect hint")
	fs.Parse(os.Args[2:])

	if *path == "" {
		log.Fatal().Msg("--path is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	st, cfg := loadStore(ctx, log)
	defer st.Close()

	orchestrator := newOrchestrator(st, cfg, log)
	result, err := orchestrator.IngestFile(ctx, *path, domain.SourceType(*source))
	if err != nil {
		log.Fatal().Err(err).Msg("ingestion failed")
	}
	printJSON(result)
}

func runBatch(log zerolog.Logger) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	paths := fs.String("paths", "", "comma-separated list of paths to ingest")
	fs.Parse(os.Args[2:])

	if *paths == "" {
		log.Fatal().Msg("--paths is required")
	}
	fileList := strings.Split(*paths, ",")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	st, cfg := loadStore(ctx, log)
	defer st.Close()

	orchestrator := newOrchestrator(st, cfg, log)
	result, err := orchestrator.IngestBatch(ctx, fileList, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("batch ingestion failed")
	}
	printJSON(result)
}

func runStatus(log zerolog.Logger) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	batchID := fs.String("batch-id", "", "batch id to look up")
	fs.Parse(os.Args[2:])

	if *batchID == "" {
		log.Fatal().Msg("--batch-id is required")
	}

	ctx := context.Background()
	st, cfg := loadStore(ctx, log)
	defer st.Close()

	orchestrator := newOrchestrator(st, cfg, log)
	job, err := orchestrator.Status(ctx, *batchID)
	if err != nil {
		log.Fatal().Err(err).Msg("status lookup failed")
	}
	printJSON(job)
}

func runQuery(log zerolog.Logger) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	question := fs.String("q", "", "natural-language question for the agent")
	conversationID := fs.String("conversation-id", "", "optional existing conversation id")
	maxIterations := fs.Int("max-iterations", agent.DefaultMaxIterations, "max tool-calling iterations before forcing a summary")
	fs.Parse(os.Args[2:])

	if *question == "" {
		log.Fatal().Msg("--q is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	st, cfg := loadStore(ctx, log)
	defer st.Close()

	provider, err := newLLMProvider(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct LLM provider")
	}
	adapter := llm.NewAdapter(provider, cfg.LLMTimeout)

	registry := tools.NewRegistry()
	tools.RegisterBaseTools(registry, st)

	memory := agent.NewMemory(time.Duration(cfg.ConversationTTLSeconds)*time.Second, cfg.ConversationMaxMessages)
	llmBackoffBase := time.Duration(cfg.LLMBackoffBaseMs) * time.Millisecond
	controller := agent.New(adapter, registry, memory, cfg.LLMRetryMax, llmBackoffBase, log)

	result, err := controller.ProcessQuery(ctx, *question, *conversationID, *maxIterations)
	if err != nil {
		log.Fatal().Err(err).Msg("query failed")
	}
	printJSON(result)
}

func newLLMProvider(ctx context.Context, cfg config.Config) (llm.Provider, error) {
	switch cfg.LLMProvider {
	case "ProviderY", "ProviderZ":
		return llm.NewHTTPProvider(cfg.LLMProvider, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel), nil
	default:
		return llm.NewGeminiProvider(ctx, cfg.LLMModel)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
