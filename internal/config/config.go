// Package config provides configuration loading for negmine.
//
// Configuration is loaded from an optional YAML file, overridden by
// NEGMINE_-prefixed environment variables, with sensible defaults for
// everything else.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the complete negmine configuration.
type Config struct {
	Dataset     DatasetConfig     `koanf:"dataset"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Mining      MiningConfig      `koanf:"mining"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Push        PushConfig        `koanf:"push"`
}

// DatasetConfig holds input/output file locations. Both may be overridden
// per run by CLI flags.
type DatasetConfig struct {
	Pairs string `koanf:"pairs"`
	Out   string `koanf:"out"`
}

// EmbeddingsConfig configures the sentence encoder.
type EmbeddingsConfig struct {
	// Provider selects the encoder backend: fastembed, tei, or openai.
	Provider string `koanf:"provider"`
	// Model is the model identifier understood by the provider.
	Model string `koanf:"model"`
	// CacheDir is where fastembed stores downloaded model files.
	CacheDir string `koanf:"cache_dir"`
	// BaseURL is the endpoint of a text-embeddings-inference server
	// (tei provider only).
	BaseURL string `koanf:"base_url"`
	// APIKey authenticates the openai provider. Falls back to
	// OPENAI_API_KEY when unset.
	APIKey Secret `koanf:"api_key"`
	// Timeout bounds a single encode call.
	Timeout Duration `koanf:"timeout"`
	// MaxBatchSize caps texts per remote request; larger inputs are
	// split into sub-batches.
	MaxBatchSize int `koanf:"max_batch_size"`
	// RateLimit throttles remote encode calls in requests per second.
	// Zero disables throttling.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
	// ShowDownloadProgress prints model download progress (fastembed).
	ShowDownloadProgress bool `koanf:"show_download_progress"`
}

// VectorStoreConfig configures the similarity index.
type VectorStoreConfig struct {
	// Provider selects the index backend: chromem or qdrant.
	Provider string `koanf:"provider"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	UseTLS   bool   `koanf:"use_tls"`
	APIKey   Secret `koanf:"api_key"`
	// Path enables persistent storage for chromem. Empty means in-memory.
	Path string `koanf:"path"`
	// Metric is the similarity metric: cosine, dot, or euclid.
	Metric string `koanf:"metric"`
	// Timeout bounds collection management calls (list, info, drop).
	Timeout Duration `koanf:"timeout"`
	// MaxRetries bounds retry attempts for transient qdrant failures.
	MaxRetries   int      `koanf:"max_retries"`
	RetryBackoff Duration `koanf:"retry_backoff"`
}

// MiningConfig configures the mining pass itself.
type MiningConfig struct {
	// Collection is the index collection name. Empty means a fresh
	// per-run name is generated.
	Collection      string `koanf:"collection"`
	UpsertBatchSize int    `koanf:"upsert_batch_size"`
	QueryBatchSize  int    `koanf:"query_batch_size"`
	TopK            int    `koanf:"top_k"`
	// Seed seeds the candidate shuffle. Zero means time-seeded.
	Seed int64 `koanf:"seed"`
	// KeepCollection skips collection teardown after a successful run.
	KeepCollection bool `koanf:"keep_collection"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `koanf:"level"`
	Format      string `koanf:"format"`
	Output      string `koanf:"output"`
	Development bool   `koanf:"development"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled        bool    `koanf:"enabled"`
	Endpoint       string  `koanf:"endpoint"`
	Protocol       string  `koanf:"protocol"`
	ServiceName    string  `koanf:"service_name"`
	ServiceVersion string  `koanf:"service_version"`
	Insecure       bool    `koanf:"insecure"`
	SampleRate     float64 `koanf:"sample_rate"`
}

// PushConfig configures the optional Prometheus Pushgateway push at the
// end of a run. An empty URL disables the push.
type PushConfig struct {
	URL string `koanf:"url"`
	Job string `koanf:"job"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Embeddings defaults
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = Duration(30 * time.Second)
	}
	if cfg.Embeddings.MaxBatchSize == 0 {
		cfg.Embeddings.MaxBatchSize = 2048
	}
	if cfg.Embeddings.RateLimit > 0 && cfg.Embeddings.RateBurst == 0 {
		cfg.Embeddings.RateBurst = 1
	}

	// VectorStore defaults (chromem is default - embedded, no external deps)
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Host == "" {
		cfg.VectorStore.Host = "localhost"
	}
	if cfg.VectorStore.Port == 0 {
		cfg.VectorStore.Port = 6334
	}
	if cfg.VectorStore.Metric == "" {
		cfg.VectorStore.Metric = "cosine"
	}
	if cfg.VectorStore.Timeout == 0 {
		cfg.VectorStore.Timeout = Duration(30 * time.Second)
	}
	if cfg.VectorStore.MaxRetries == 0 {
		cfg.VectorStore.MaxRetries = 3
	}
	if cfg.VectorStore.RetryBackoff == 0 {
		cfg.VectorStore.RetryBackoff = Duration(100 * time.Millisecond)
	}

	// Mining defaults
	if cfg.Mining.UpsertBatchSize == 0 {
		cfg.Mining.UpsertBatchSize = 64
	}
	if cfg.Mining.QueryBatchSize == 0 {
		cfg.Mining.QueryBatchSize = 100
	}
	if cfg.Mining.TopK == 0 {
		cfg.Mining.TopK = 10
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	// Telemetry defaults
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "negmine"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}

	// Push defaults
	if cfg.Push.Job == "" {
		cfg.Push.Job = "negmine"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := c.Embeddings.Validate(); err != nil {
		return fmt.Errorf("embeddings: %w", err)
	}
	if err := c.VectorStore.Validate(); err != nil {
		return fmt.Errorf("vectorstore: %w", err)
	}
	if err := c.Mining.Validate(); err != nil {
		return fmt.Errorf("mining: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

// Validate checks encoder configuration.
func (c *EmbeddingsConfig) Validate() error {
	switch c.Provider {
	case "fastembed", "tei", "openai":
	default:
		return fmt.Errorf("unknown provider: %q (expected fastembed, tei, or openai)", c.Provider)
	}
	if c.Provider == "tei" && c.BaseURL == "" {
		return fmt.Errorf("tei provider requires base_url")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("max_batch_size must be positive, got %d", c.MaxBatchSize)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}
	return nil
}

// Validate checks index configuration.
func (c *VectorStoreConfig) Validate() error {
	switch c.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("unknown provider: %q (expected chromem or qdrant)", c.Provider)
	}
	switch c.Metric {
	case "cosine", "dot", "euclid":
	default:
		return fmt.Errorf("unknown metric: %q (expected cosine, dot, or euclid)", c.Metric)
	}
	if c.Provider == "qdrant" {
		if c.Host == "" {
			return fmt.Errorf("qdrant provider requires host")
		}
		if c.Port < 1 || c.Port > 65535 {
			return fmt.Errorf("invalid port: %d", c.Port)
		}
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}
	return nil
}

// Validate checks mining parameters.
func (c *MiningConfig) Validate() error {
	if c.UpsertBatchSize < 1 {
		return fmt.Errorf("upsert_batch_size must be positive, got %d", c.UpsertBatchSize)
	}
	if c.QueryBatchSize < 1 {
		return fmt.Errorf("query_batch_size must be positive, got %d", c.QueryBatchSize)
	}
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	return nil
}

// Validate checks logger configuration.
func (c *LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown level: %q", c.Level)
	}
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown format: %q (expected json or console)", c.Format)
	}
	return nil
}

// Validate checks telemetry configuration.
func (c *TelemetryConfig) Validate() error {
	switch c.Protocol {
	case "grpc", "http/protobuf":
	default:
		return fmt.Errorf("unknown protocol: %q (expected grpc or http/protobuf)", c.Protocol)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be in [0, 1], got %f", c.SampleRate)
	}
	return nil
}
