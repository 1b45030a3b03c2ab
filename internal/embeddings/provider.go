// Package embeddings provides embedding generation via multiple providers.
//
// Providers are selected once at startup. The "openai" provider speaks the
// OpenAI embeddings API and therefore also covers TEI and other compatible
// local servers via a custom base URL; "ollama" talks to a local Ollama
// instance. Both are driven through langchaingo's embedder abstraction.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider generates vector embeddings from text.
//
// The same provider must be used for ingestion and queries so both live in
// the same embedding space.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts,
	// order-preserving.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the configured model.
	Dimension() int
}

// Config holds configuration for creating an embedding provider.
type Config struct {
	// Provider is "openai" or "ollama".
	Provider string

	// BaseURL is the endpoint, e.g. http://localhost:8081/v1 for a TEI
	// server or http://localhost:11434 for Ollama.
	BaseURL string

	// Model is the embedding model name.
	Model string

	// APIKey authenticates against hosted endpoints; optional for local
	// OpenAI-compatible services.
	APIKey string

	// VectorSize overrides the dimension detected from the model name.
	VectorSize int
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}

	dimension := cfg.VectorSize
	if dimension == 0 {
		dimension = detectDimensionFromModel(cfg.Model)
	}

	switch cfg.Provider {
	case "openai", "":
		apiKey := cfg.APIKey
		if apiKey == "" {
			// Local OpenAI-compatible services accept any token.
			apiKey = "none"
		}
		client, err := openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(apiKey),
			openai.WithEmbeddingModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("creating openai embedding client: %w", err)
		}
		embedder, err := lcembeddings.NewEmbedder(client, lcembeddings.WithStripNewLines(true))
		if err != nil {
			return nil, fmt.Errorf("creating embedder: %w", err)
		}
		return &langchainProvider{embedder: embedder, dimension: dimension}, nil

	case "ollama":
		client, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("creating ollama embedding client: %w", err)
		}
		embedder, err := lcembeddings.NewEmbedder(client, lcembeddings.WithStripNewLines(true))
		if err != nil {
			return nil, fmt.Errorf("creating embedder: %w", err)
		}
		return &langchainProvider{embedder: embedder, dimension: dimension}, nil

	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// langchainProvider adapts a langchaingo embedder to the Provider interface.
type langchainProvider struct {
	embedder  lcembeddings.Embedder
	dimension int
}

func (p *langchainProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}

func (p *langchainProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vector, nil
}

func (p *langchainProvider) Dimension() int {
	return p.dimension
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384, the dimension of the bge-small and MiniLM families.
func detectDimensionFromModel(model string) int {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "text-embedding-3-large"):
		return 3072
	case strings.Contains(m, "text-embedding-3-small"), strings.Contains(m, "ada-002"):
		return 1536
	case strings.Contains(m, "nomic-embed"):
		return 768
	case strings.Contains(m, "large"):
		return 1024
	case strings.Contains(m, "base"):
		return 768
	case strings.Contains(m, "small"), strings.Contains(m, "mini"):
		return 384
	default:
		return 384
	}
}
