// Package embedding implements the Embedding Provider contract (C2): mapping
// text to fixed-width dense vectors. Batching policy belongs to the
// document store, not this package; providers here only embed whatever
// slice they're handed.
package embedding

import (
	"context"

	"github.com/docindex/docindex/internal/errors"
)

// Provider identifies a recognized embedding backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderVertex    Provider = "vertex"
	ProviderGemini    Provider = "gemini"
	ProviderAWS       Provider = "aws"
	ProviderMicrosoft Provider = "microsoft"
	ProviderSageMaker Provider = "sagemaker"
	ProviderStatic    Provider = "static"
)

// Config enumerates the recognized configuration options for an embedding
// provider.
type Config struct {
	Provider    Provider
	Model       string
	APIKey      string
	Credentials string
	BaseURL     string
}

// Embedder maps text to dense vectors.
type Embedder interface {
	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// EmbedDocuments embeds a batch of document strings, preserving order.
	// Callers (the Store) may split a larger request into sub-batches.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the model's native output width (D_model).
	Dimensions() int
	// ModelName identifies the model for cache keys and dimension memoization.
	ModelName() string
	Close() error
}

// New constructs an Embedder for the given configuration. ProviderStatic
// needs no credentials and is meant for local/offline use and tests; every
// other provider requires at least one of APIKey/Credentials and fails with
// a ConfigError otherwise (upstream SDK specifics are out of scope: all
// non-static providers are modeled as equivalent REST embedding endpoints,
// differing only in base URL and headers).
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "", ProviderStatic:
		return NewStaticEmbedder(), nil
	case ProviderOpenAI, ProviderVertex, ProviderGemini, ProviderAWS, ProviderMicrosoft, ProviderSageMaker:
		if cfg.APIKey == "" && cfg.Credentials == "" {
			return nil, errors.ConfigError("embedding provider "+string(cfg.Provider)+" requires credentials", nil)
		}
		if cfg.Model == "" {
			return nil, errors.ConfigError("embedding provider "+string(cfg.Provider)+" requires a model name", nil)
		}
		return newRESTEmbedder(cfg), nil
	default:
		return nil, errors.ConfigError("unknown embedding provider: "+string(cfg.Provider), nil)
	}
}
