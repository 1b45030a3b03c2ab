// Package llm provides text generation via a configurable model backend.
//
// One Generator is built at startup from configuration; per-call dispatch
// never re-selects the provider. OpenRouter and other OpenAI-compatible
// gateways are reached through the "openai" provider with a custom base URL.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrGenerationFailed indicates the model backend failed or timed out.
	// Callers treat this as recoverable.
	ErrGenerationFailed = errors.New("generation failed")
)

// Generator produces a free-text completion from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config holds configuration for creating a Generator.
type Config struct {
	// Provider is "openai", "ollama" or "googleai".
	Provider string

	// Model is the chat model name.
	Model string

	// APIKey authenticates hosted providers (openai, googleai).
	APIKey string

	// BaseURL overrides the endpoint, e.g. https://openrouter.ai/api/v1
	// or http://localhost:11434 for Ollama.
	BaseURL string

	// Temperature controls sampling randomness.
	Temperature float64

	// MaxTokens bounds the completion length.
	MaxTokens int

	// Timeout bounds a single generation call.
	Timeout time.Duration
}

// generator drives any langchaingo model through a single code path.
type generator struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// NewGenerator builds a Generator for the configured provider.
func NewGenerator(ctx context.Context, cfg Config) (Generator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}

	var model llms.Model
	var err error

	switch cfg.Provider {
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: api key required for openai provider", ErrInvalidConfig)
		}
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating openai model: %w", err)
		}

	case "ollama":
		opts := []ollama.Option{
			ollama.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating ollama model: %w", err)
		}

	case "googleai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: api key required for googleai provider", ErrInvalidConfig)
		}
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("creating googleai model: %w", err)
		}

	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}

	return &generator{
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}, nil
}

// Generate invokes the model with the prompt. Backend failures are wrapped
// in ErrGenerationFailed.
func (g *generator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	opts := []llms.CallOption{
		llms.WithTemperature(g.temperature),
	}
	if g.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(g.maxTokens))
	}

	answer, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	return answer, nil
}
