// Package llm provides LLM provider integrations for the analyze pipeline.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyResponse is returned when the model produced no text, including
// when a provider safety filter blocked the answer.
var ErrEmptyResponse = errors.New("llm: empty response")

// Provider defines the interface for LLM integrations.
type Provider interface {
	// Complete sends one system instruction and one user message and returns
	// the raw model text.
	Complete(ctx context.Context, req Request) (string, error)

	// Name returns the provider name for logging/debugging.
	Name() string
}

// ModelLister is implemented by providers that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Request contains the input for a single completion.
type Request struct {
	System string // Instruction document (schema, rules, output format)
	Prompt string // Free text from the user
	JSON   bool   // Ask the provider for a JSON object when it supports it
}

// Config holds LLM provider configuration.
type Config struct {
	Provider    string        // "gemini", "openai" or "anthropic"
	APIKey      string        // API key for the provider
	Model       string        // Model name (empty = provider default)
	BaseURL     string        // Base URL (for OpenRouter, proxies, etc.)
	Temperature float32       // Sampling temperature
	MaxTokens   int           // Max tokens for response (0 = provider default)
	Timeout     time.Duration // Per-call timeout (0 = none beyond ctx)
}

// Default models per provider.
const (
	DefaultGeminiModel    = "gemini-1.5-pro-latest"
	DefaultOpenAIModel    = "gpt-4o"
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
)

// NewProvider creates an LLM provider based on configuration.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = "gemini"
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for provider %q", cfg.Provider)
	}

	switch cfg.Provider {
	case "gemini":
		if cfg.Model == "" {
			cfg.Model = DefaultGeminiModel
		}
		return NewGeminiProvider(ctx, cfg)

	case "openai":
		if cfg.Model == "" {
			cfg.Model = DefaultOpenAIModel
		}
		return NewOpenAIProvider(cfg), nil

	case "anthropic":
		if cfg.Model == "" {
			cfg.Model = DefaultAnthropicModel
		}
		return NewAnthropicProvider(cfg), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: gemini, openai, anthropic)", cfg.Provider)
	}
}

// Close releases provider resources when the provider holds any.
func Close(p Provider) error {
	if c, ok := p.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
