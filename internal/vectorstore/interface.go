// Package vectorstore provides similarity index implementations.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionExists is returned when attempting to create an existing collection.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyPoints indicates empty or nil points.
	ErrEmptyPoints = errors.New("empty or nil points")

	// ErrInvalidVector indicates a vector whose dimension does not match the collection.
	ErrInvalidVector = errors.New("invalid vector")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against naming rules.
// Rejects uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Point is a vector with its caller-assigned identifier.
type Point struct {
	ID     string
	Vector []float32
}

// Match is a single similarity search hit.
type Match struct {
	// ID is the caller-assigned point identifier.
	ID string

	// Score is the similarity score. Higher is more similar under
	// cosine and dot metrics.
	Score float32
}

// CollectionInfo holds metadata about a collection.
type CollectionInfo struct {
	Name      string
	Points    uint64
	Dimension uint64
}

// Index is a similarity index over fixed-dimension vectors.
//
// Implementations preserve caller-assigned point IDs across upsert and
// query: every Match.ID equals the Point.ID it was stored under.
type Index interface {
	// EnsureCollection creates the collection if it does not exist.
	// Existing collections are left untouched.
	EnsureCollection(ctx context.Context, collection string, dimension int) error

	// Upsert inserts or replaces points by ID.
	Upsert(ctx context.Context, collection string, points []Point) error

	// QueryBatch runs a top-k similarity search for each vector and
	// returns one result list per input vector, in input order. Each
	// list holds at most topK matches ordered by descending score.
	QueryBatch(ctx context.Context, collection string, vectors [][]float32, topK int) ([][]Match, error)

	// CollectionExists reports whether the collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// ListCollections returns all collection names.
	ListCollections(ctx context.Context) ([]string, error)

	// GetCollectionInfo returns metadata about a collection.
	// Returns ErrCollectionNotFound when it does not exist.
	GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error)

	// DeleteCollection deletes a collection and all its points.
	DeleteCollection(ctx context.Context, collection string) error

	// Close releases client resources.
	Close() error
}
