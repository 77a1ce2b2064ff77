// Package embeddings provides sentence encoding via multiple providers.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder generates dense vectors for batches of text. Passages and
// queries are embedded through separate methods because retrieval models
// like BGE apply different prefixes to each side.
type Embedder interface {
	// EmbedPassages embeds passage texts for indexing.
	EmbedPassages(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQueries embeds query texts for searching.
	EmbedQueries(ctx context.Context, texts []string) ([][]float32, error)
}

// Provider is an Embedder with model metadata and lifecycle.
type Provider interface {
	Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// ModelName returns the configured model identifier.
	ModelName() string
	// Close releases resources held by the provider.
	Close() error
}
