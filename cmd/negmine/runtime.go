package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"

	"github.com/fyrsmithlabs/negmine/internal/config"
	"github.com/fyrsmithlabs/negmine/internal/embeddings"
	"github.com/fyrsmithlabs/negmine/internal/logging"
	"github.com/fyrsmithlabs/negmine/internal/telemetry"
	"github.com/fyrsmithlabs/negmine/internal/vectorstore"
)

// runtime bundles the dependencies shared by every subcommand:
// configuration, the logger, and the telemetry providers.
type runtime struct {
	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry
}

// initRuntime loads configuration and brings up telemetry and logging.
//
// Initialization order matters: telemetry first, because the logger tees
// entries into the OTEL log bridge when telemetry is enabled.
func initRuntime(ctx context.Context) (*runtime, error) {
	// Best effort; a missing .env file is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.Logging.Format = flagLogFormat
	}

	telCfg := telemetry.NewDefaultConfig()
	telCfg.Enabled = cfg.Telemetry.Enabled
	if cfg.Telemetry.Endpoint != "" {
		telCfg.Endpoint = cfg.Telemetry.Endpoint
	}
	if cfg.Telemetry.Protocol != "" {
		telCfg.Protocol = cfg.Telemetry.Protocol
	}
	if cfg.Telemetry.ServiceName != "" {
		telCfg.ServiceName = cfg.Telemetry.ServiceName
	}
	if cfg.Telemetry.ServiceVersion != "" {
		telCfg.ServiceVersion = cfg.Telemetry.ServiceVersion
	} else {
		telCfg.ServiceVersion = version
	}
	telCfg.Insecure = cfg.Telemetry.Insecure
	telCfg.Sampling.Rate = cfg.Telemetry.SampleRate

	tel, err := telemetry.New(ctx, telCfg)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	logger, err := logging.New(&logging.Config{
		Level:       level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		Development: cfg.Logging.Development,
		OTEL:        tel.IsEnabled(),
		Fields:      map[string]string{"service": telCfg.ServiceName},
	}, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	return &runtime{cfg: cfg, logger: logger, tel: tel}, nil
}

// Close flushes the logger and shuts telemetry down. Safe to defer
// immediately after initRuntime.
func (r *runtime) Close() {
	if r == nil {
		return
	}
	if r.logger != nil {
		_ = r.logger.Sync()
	}
	// Shutdown applies its own configured timeout.
	_ = r.tel.Shutdown(context.Background())
}

// openProvider builds the embedding provider from config.
func (r *runtime) openProvider() (embeddings.Provider, error) {
	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:     r.cfg.Embeddings.Provider,
		Model:        r.cfg.Embeddings.Model,
		CacheDir:     r.cfg.Embeddings.CacheDir,
		BaseURL:      r.cfg.Embeddings.BaseURL,
		APIKey:       r.cfg.Embeddings.APIKey.Value(),
		Timeout:      r.cfg.Embeddings.Timeout.Duration(),
		MaxBatchSize: r.cfg.Embeddings.MaxBatchSize,
		RateLimit:    r.cfg.Embeddings.RateLimit,
		RateBurst:    r.cfg.Embeddings.RateBurst,
		ShowProgress: r.cfg.Embeddings.ShowDownloadProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	return provider, nil
}

// openIndex builds the vector index from config.
func (r *runtime) openIndex() (vectorstore.Index, error) {
	index, err := vectorstore.New(vectorstore.Config{
		Provider:     r.cfg.VectorStore.Provider,
		Host:         r.cfg.VectorStore.Host,
		Port:         r.cfg.VectorStore.Port,
		UseTLS:       r.cfg.VectorStore.UseTLS,
		APIKey:       r.cfg.VectorStore.APIKey.Value(),
		Path:         r.cfg.VectorStore.Path,
		Metric:       r.cfg.VectorStore.Metric,
		MaxRetries:   r.cfg.VectorStore.MaxRetries,
		RetryBackoff: r.cfg.VectorStore.RetryBackoff.Duration(),
	}, r.logger.Underlying())
	if err != nil {
		return nil, fmt.Errorf("creating vector index: %w", err)
	}
	return index, nil
}
