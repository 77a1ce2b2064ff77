package embeddings

import (
	"fmt"
	"strings"
	"time"
)

// ProviderConfig holds provider-independent configuration used by the
// factory. Fields that only apply to one provider are ignored by the
// others.
type ProviderConfig struct {
	// Provider selects the backend: fastembed, tei, or openai.
	Provider string

	// Model is the embedding model identifier.
	Model string

	// CacheDir is where fastembed stores downloaded models.
	CacheDir string

	// BaseURL is the endpoint for tei, or an override for openai.
	BaseURL string

	// APIKey authenticates against the openai API.
	APIKey string

	// Timeout bounds a single remote embed request.
	Timeout time.Duration

	// MaxBatchSize caps texts per openai request.
	MaxBatchSize int

	// RateLimit is the maximum requests per second against remote
	// providers. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the rate limiter burst size.
	RateBurst int

	// ShowProgress enables the fastembed model download progress bar.
	ShowProgress bool
}

// NewProvider creates an embedding provider from configuration. Remote
// providers are wrapped with a rate limiter when RateLimit is set.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:                cfg.Model,
			CacheDir:             cfg.CacheDir,
			ShowDownloadProgress: cfg.ShowProgress,
		})

	case "tei":
		provider, err := NewTEIProvider(TEIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return maybeRateLimit(provider, cfg), nil

	case "openai":
		provider, err := NewOpenAIProvider(OpenAIConfig{
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			BaseURL:      cfg.BaseURL,
			MaxBatchSize: cfg.MaxBatchSize,
		})
		if err != nil {
			return nil, err
		}
		return maybeRateLimit(provider, cfg), nil

	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

func maybeRateLimit(provider Provider, cfg ProviderConfig) Provider {
	if cfg.RateLimit <= 0 {
		return provider
	}
	return NewRateLimited(provider, cfg.RateLimit, cfg.RateBurst)
}

// detectDimensionFromModel guesses the embedding dimension from the
// model name when it is not in the known tables. Covers the common
// sentence-transformers sizing conventions.
func detectDimensionFromModel(model string) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	name := strings.ToLower(model)
	switch {
	case strings.Contains(name, "large"):
		return 1024
	case strings.Contains(name, "base"):
		return 768
	case strings.Contains(name, "small"), strings.Contains(name, "mini"):
		return 384
	default:
		return 384
	}
}
