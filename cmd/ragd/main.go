// Ragd is a retrieval-augmented generation daemon: documents go in,
// grounded answers come out.
//
// It ingests uploaded or directory-dropped documents into a Qdrant
// collection and answers questions against them over HTTP.
//
// Configuration is loaded from an optional YAML file and environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	ragd
//
//	# Configure via file and environment
//	SERVER_PORT=9090 QDRANT_HOST=qdrant ragd -config ragd.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunk"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/extraction"
	ragdhttp "github.com/fyrsmithlabs/ragd/internal/http"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/llm"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/query"
	"github.com/fyrsmithlabs/ragd/internal/status"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
	"github.com/fyrsmithlabs/ragd/internal/watcher"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  ragd           Start the ragd daemon\n")
			fmt.Fprintf(os.Stderr, "  ragd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("ragd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the daemon together and blocks until ctx is cancelled:
// config, logger, Qdrant store, embedding provider, chat model, status
// registry, ingestion orchestrator, optional directory watcher, HTTP
// server. Returns nil on graceful shutdown.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logging.Sync(logger)

	logger.Info("starting ragd",
		zap.String("version", version),
		zap.String("commit", gitCommit))

	store, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
		Host:           cfg.Qdrant.Host,
		Port:           cfg.Qdrant.Port,
		CollectionName: cfg.Qdrant.CollectionName,
		VectorSize:     cfg.Qdrant.VectorSize,
		UseTLS:         cfg.Qdrant.UseTLS,
		MaxRetries:     cfg.Qdrant.MaxRetries,
		RetryBackoff:   cfg.Qdrant.RetryBackoff,
	}, logger)
	if err != nil {
		return fmt.Errorf("connecting to qdrant: %w", err)
	}
	defer store.Close()

	if err := store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensuring collection: %w", err)
	}

	embedder, err := embeddings.NewProvider(embeddings.Config{
		Provider:   cfg.Embeddings.Provider,
		BaseURL:    cfg.Embeddings.BaseURL,
		Model:      cfg.Embeddings.Model,
		APIKey:     cfg.Embeddings.APIKey,
		VectorSize: int(cfg.Qdrant.VectorSize),
	})
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}

	generator, err := llm.NewGenerator(ctx, llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating chat model: %w", err)
	}

	registry := status.NewRegistry(logger)
	if err := registry.Rebuild(ctx, storeLister{store}); err != nil {
		// the store is reachable but listing failed; degraded but usable
		logger.Warn("rebuilding status registry from store failed", zap.Error(err))
	}

	splitter, err := chunk.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("creating splitter: %w", err)
	}

	pipeline, err := ingest.NewPipeline(
		extraction.New(logger),
		splitter,
		embedder,
		store,
		cfg.Ingest.BatchSize,
		logger,
	)
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	orchestrator, err := ingest.NewOrchestrator(pipeline, registry, store, cfg.Ingest.Workers, logger)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}
	defer orchestrator.Close()

	queryService, err := query.NewService(embedder, store, generator, cfg.Query.TopK, logger)
	if err != nil {
		return fmt.Errorf("creating query service: %w", err)
	}

	if cfg.Watcher.Enabled {
		w, err := watcher.New(cfg.Watcher, orchestrator, logger)
		if err != nil {
			return fmt.Errorf("creating watcher: %w", err)
		}
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watcher stopped", zap.Error(err))
			}
		}()
	}

	server, err := ragdhttp.NewServer(
		orchestrator,
		queryService,
		registry,
		store,
		cfg.Watcher.AcceptsExtension,
		logger,
		&ragdhttp.Config{
			Host:              cfg.Server.Host,
			Port:              cfg.Server.Port,
			MaxQuestionLength: cfg.Query.MaxQuestionLength,
		},
	)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// storeLister adapts the vector store's document listing to the status
// registry's rebuild contract.
type storeLister struct {
	store vectorstore.Store
}

func (l storeLister) ListDocuments(ctx context.Context) (map[string]status.DocumentStat, error) {
	stats, err := l.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]status.DocumentStat, len(stats))
	for filename, stat := range stats {
		out[filename] = status.DocumentStat{
			Chunks:     stat.Chunks,
			UploadedAt: stat.UploadedAt,
		}
	}
	return out, nil
}
