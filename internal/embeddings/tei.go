package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TEIConfig holds configuration for the text-embeddings-inference provider.
type TEIConfig struct {
	// BaseURL is the base URL of the TEI server.
	BaseURL string

	// Model is the model the server runs. Used for dimension detection
	// and prefix selection, not sent on the wire.
	Model string

	// Timeout bounds a single embed request. Defaults to 30s.
	Timeout time.Duration
}

// Validate validates the configuration.
func (c TEIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return nil
}

// TEIProvider generates embeddings via a text-embeddings-inference server.
type TEIProvider struct {
	config    TEIConfig
	client    *http.Client
	dimension int
	metrics   *Metrics
}

var _ Provider = (*TEIProvider)(nil)

// NewTEIProvider creates a new TEI embedding provider.
func NewTEIProvider(cfg TEIConfig) (*TEIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &TEIProvider{
		config:    cfg,
		client:    &http.Client{Timeout: timeout},
		dimension: detectDimensionFromModel(cfg.Model),
		metrics:   NewMetrics(),
	}, nil
}

// teiRequest is the request body for the TEI embed endpoint.
type teiRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// EmbedPassages generates embeddings for passage texts.
func (s *TEIProvider) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	return s.embed(ctx, texts, "embed_passages", passagePrefix(s.config.Model))
}

// EmbedQueries generates embeddings for query texts.
func (s *TEIProvider) EmbedQueries(ctx context.Context, texts []string) ([][]float32, error) {
	return s.embed(ctx, texts, "embed_queries", queryPrefix(s.config.Model))
}

// embed posts one batch to the server, applying the model's prefix to
// each text. TEI returns raw vectors in input order.
func (s *TEIProvider) embed(ctx context.Context, texts []string, operation, prefix string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, operation, time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	inputs := texts
	if prefix != "" {
		inputs = make([]string, len(texts))
		for i, t := range texts {
			inputs[i] = prefix + t
		}
	}

	body, err := json.Marshal(teiRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		genErr = fmt.Errorf("marshaling request: %w", err)
		return nil, genErr
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		genErr = fmt.Errorf("creating request: %w", err)
		return nil, genErr
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		genErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		return nil, genErr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		genErr = fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
		return nil, genErr
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		genErr = fmt.Errorf("decoding response: %w", err)
		return nil, genErr
	}

	if len(vectors) != len(texts) {
		genErr = fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
		return nil, genErr
	}

	return vectors, nil
}

// Dimension returns the embedding dimension based on the configured model.
func (s *TEIProvider) Dimension() int {
	return s.dimension
}

// ModelName returns the configured model identifier.
func (s *TEIProvider) ModelName() string {
	return s.config.Model
}

// Close is a no-op for TEI since it uses HTTP.
func (s *TEIProvider) Close() error {
	return nil
}

// passagePrefix returns the passage-side prefix for the model. BGE
// models are trained with asymmetric prefixes; the local fastembed path
// applies them internally, so the HTTP path must match.
func passagePrefix(model string) string {
	if strings.Contains(strings.ToLower(model), "bge") {
		return "passage: "
	}
	return ""
}

// queryPrefix returns the query-side prefix for the model.
func queryPrefix(model string) string {
	if strings.Contains(strings.ToLower(model), "bge") {
		return "query: "
	}
	return ""
}
