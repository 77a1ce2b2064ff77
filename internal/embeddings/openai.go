package embeddings

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

const (
	defaultOpenAIModel     = "text-embedding-3-small"
	defaultOpenAIBatchSize = 2048
	openaiMaxConcurrency   = 8
)

// openaiDimensions maps OpenAI embedding models to their output dimensions.
var openaiDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig holds configuration for the OpenAI embedding provider.
type OpenAIConfig struct {
	// APIKey authenticates against the API. Falls back to the
	// OPENAI_API_KEY environment variable when empty.
	APIKey string

	// Model is the embedding model. Defaults to text-embedding-3-small.
	Model string

	// BaseURL overrides the API endpoint, for proxies and
	// OpenAI-compatible servers.
	BaseURL string

	// MaxBatchSize caps the number of texts per API request.
	// Defaults to 2048, the API limit.
	MaxBatchSize int
}

// ApplyDefaults fills in default values.
func (c *OpenAIConfig) ApplyDefaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Model == "" {
		c.Model = defaultOpenAIModel
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = defaultOpenAIBatchSize
	}
}

// Validate validates the configuration.
func (c *OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: API key required (set OPENAI_API_KEY)", ErrInvalidConfig)
	}
	return nil
}

// OpenAIProvider generates embeddings via the OpenAI embeddings API.
type OpenAIProvider struct {
	config    OpenAIConfig
	client    *openai.Client
	dimension int
	metrics   *Metrics
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a new OpenAI embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	dimension, ok := openaiDimensions[cfg.Model]
	if !ok {
		dimension = detectDimensionFromModel(cfg.Model)
	}

	return &OpenAIProvider{
		config:    cfg,
		client:    openai.NewClientWithConfig(clientCfg),
		dimension: dimension,
		metrics:   NewMetrics(),
	}, nil
}

// EmbedPassages generates embeddings for passage texts. OpenAI models
// are symmetric, so passages and queries share the same code path.
func (s *OpenAIProvider) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	return s.embed(ctx, texts, "embed_passages")
}

// EmbedQueries generates embeddings for query texts.
func (s *OpenAIProvider) EmbedQueries(ctx context.Context, texts []string) ([][]float32, error) {
	return s.embed(ctx, texts, "embed_queries")
}

func (s *OpenAIProvider) embed(ctx context.Context, texts []string, operation string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, operation, time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	results := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(openaiMaxConcurrency)
	for offset := 0; offset < len(texts); offset += s.config.MaxBatchSize {
		end := offset + s.config.MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		offset, batch := offset, texts[offset:end]
		g.Go(func() error {
			vectors, err := s.embedBatch(gctx, batch)
			if err != nil {
				return err
			}
			copy(results[offset:], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		genErr = err
		return nil, genErr
	}

	return results, nil
}

func (s *OpenAIProvider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(s.config.Model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingFailed, len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		l2Normalize(vec)
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimension returns the embedding dimension for the configured model.
func (s *OpenAIProvider) Dimension() int {
	return s.dimension
}

// ModelName returns the configured model identifier.
func (s *OpenAIProvider) ModelName() string {
	return s.config.Model
}

// Close is a no-op for OpenAI since it uses HTTP.
func (s *OpenAIProvider) Close() error {
	return nil
}

// l2Normalize scales vec to unit length in place. OpenAI vectors are
// normalized already in most cases; doing it here keeps cosine and dot
// rankings identical regardless of endpoint.
func l2Normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
