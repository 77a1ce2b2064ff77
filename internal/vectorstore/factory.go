package vectorstore

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config selects and configures an Index backend.
type Config struct {
	// Provider is the backend: chromem (default) or qdrant.
	Provider string

	// Host and Port locate the Qdrant gRPC endpoint.
	Host string
	Port int

	// UseTLS enables TLS for the Qdrant connection.
	UseTLS bool

	// APIKey authenticates against Qdrant Cloud.
	APIKey string

	// Path is the chromem storage directory. Empty means in-memory.
	Path string

	// Metric is the similarity metric: cosine (default), dot, or euclid.
	Metric string

	// MaxRetries and RetryBackoff tune transient-failure retries.
	MaxRetries   int
	RetryBackoff time.Duration
}

// New creates an Index for the configured provider.
func New(cfg Config, logger *zap.Logger) (Index, error) {
	switch cfg.Provider {
	case "", "chromem":
		return NewChromemIndex(ChromemConfig{Path: cfg.Path}, logger)

	case "qdrant":
		distance, err := DistanceFromMetric(cfg.Metric)
		if err != nil {
			return nil, err
		}
		return NewQdrantIndex(QdrantConfig{
			Host:         cfg.Host,
			Port:         cfg.Port,
			APIKey:       cfg.APIKey,
			UseTLS:       cfg.UseTLS,
			Distance:     distance,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
		})

	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
