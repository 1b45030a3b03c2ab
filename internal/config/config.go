// Package config provides configuration loading for ragd.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// Config is the root configuration for the ragd daemon.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    logging.Config   `koanf:"logging"`
	Qdrant     QdrantConfig     `koanf:"qdrant"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	LLM        LLMConfig        `koanf:"llm"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Query      QueryConfig      `koanf:"query"`
	Watcher    WatcherConfig    `koanf:"watcher"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// QdrantConfig holds Qdrant gRPC client settings.
type QdrantConfig struct {
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	CollectionName string        `koanf:"collection_name"`
	VectorSize     uint64        `koanf:"vector_size"`
	UseTLS         bool          `koanf:"use_tls"`
	MaxRetries     int           `koanf:"max_retries"`
	RetryBackoff   time.Duration `koanf:"retry_backoff"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint, including TEI)
	// or "ollama".
	Provider string `koanf:"provider"`
	BaseURL  string `koanf:"base_url"`
	Model    string `koanf:"model"`
	APIKey   string `koanf:"api_key"`
}

// LLMConfig selects and configures the chat model used for answers.
type LLMConfig struct {
	// Provider is "openai", "ollama" or "googleai". OpenRouter and other
	// OpenAI-compatible gateways use "openai" with a custom base URL.
	Provider    string        `koanf:"provider"`
	Model       string        `koanf:"model"`
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	Temperature float64       `koanf:"temperature"`
	MaxTokens   int           `koanf:"max_tokens"`
	Timeout     time.Duration `koanf:"timeout"`
}

// IngestConfig holds chunking and pipeline settings.
type IngestConfig struct {
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`
	BatchSize    int `koanf:"batch_size"`
	// Workers caps concurrent ingestion runs scheduled by the orchestrator.
	Workers int `koanf:"workers"`
}

// QueryConfig holds retrieval settings.
type QueryConfig struct {
	TopK              int `koanf:"top_k"`
	MaxQuestionLength int `koanf:"max_question_length"`
}

// WatcherConfig holds directory polling settings.
type WatcherConfig struct {
	Enabled       bool          `koanf:"enabled"`
	InputDir      string        `koanf:"input_dir"`
	ProcessedDir  string        `koanf:"processed_dir"`
	ErrorDir      string        `koanf:"error_dir"`
	Interval      time.Duration `koanf:"interval"`
	MaxConcurrent int           `koanf:"max_concurrent"`
	Extensions    []string      `koanf:"extensions"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Fields == nil {
		cfg.Logging.Fields = map[string]string{"service": "ragd"}
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334 // gRPC port, not the 6333 REST port
	}
	if cfg.Qdrant.CollectionName == "" {
		cfg.Qdrant.CollectionName = "documents"
	}
	if cfg.Qdrant.VectorSize == 0 {
		cfg.Qdrant.VectorSize = 384 // bge-small / all-MiniLM dimensions
	}
	if cfg.Qdrant.MaxRetries == 0 {
		cfg.Qdrant.MaxRetries = 3
	}
	if cfg.Qdrant.RetryBackoff == 0 {
		cfg.Qdrant.RetryBackoff = time.Second
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "openai"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8081/v1"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.3
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 120 * time.Second
	}

	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 300
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 50
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 50
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 8
	}

	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 10
	}
	if cfg.Query.MaxQuestionLength == 0 {
		cfg.Query.MaxQuestionLength = 10000
	}

	if cfg.Watcher.Interval == 0 {
		cfg.Watcher.Interval = 5 * time.Second
	}
	if cfg.Watcher.MaxConcurrent == 0 {
		cfg.Watcher.MaxConcurrent = 3
	}
	if len(cfg.Watcher.Extensions) == 0 {
		cfg.Watcher.Extensions = []string{
			"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx",
			"txt", "html", "xml", "md",
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("qdrant: invalid port %d", c.Qdrant.Port)
	}
	if c.Qdrant.CollectionName == "" {
		return fmt.Errorf("qdrant: collection name required")
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest: chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 {
		return fmt.Errorf("ingest: chunk_overlap cannot be negative, got %d", c.Ingest.ChunkOverlap)
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest: chunk_overlap %d must be smaller than chunk_size %d",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest: batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest: workers must be positive, got %d", c.Ingest.Workers)
	}
	if c.Query.TopK <= 0 {
		return fmt.Errorf("query: top_k must be positive, got %d", c.Query.TopK)
	}
	if c.Watcher.Enabled {
		if c.Watcher.InputDir == "" {
			return fmt.Errorf("watcher: input_dir required when enabled")
		}
		if c.Watcher.ProcessedDir == "" {
			return fmt.Errorf("watcher: processed_dir required when enabled")
		}
		if c.Watcher.ErrorDir == "" {
			return fmt.Errorf("watcher: error_dir required when enabled")
		}
		if c.Watcher.MaxConcurrent <= 0 {
			return fmt.Errorf("watcher: max_concurrent must be positive, got %d", c.Watcher.MaxConcurrent)
		}
		if c.Watcher.Interval <= 0 {
			return fmt.Errorf("watcher: interval must be positive")
		}
	}
	switch c.LLM.Provider {
	case "openai", "ollama", "googleai":
	default:
		return fmt.Errorf("llm: unknown provider %q", c.LLM.Provider)
	}
	switch c.Embeddings.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("embeddings: unknown provider %q", c.Embeddings.Provider)
	}
	return nil
}

// AcceptsExtension reports whether a filename matches the accepted-extension
// list. Matching is case-insensitive on the extension after the last dot.
func (w WatcherConfig) AcceptsExtension(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return false
	}
	ext := strings.ToLower(filename[idx+1:])
	for _, accepted := range w.Extensions {
		if ext == strings.ToLower(accepted) {
			return true
		}
	}
	return false
}
