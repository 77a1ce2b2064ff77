package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("negmine.vectorstore.chromem")

// ChromemConfig holds configuration for the embedded chromem index.
type ChromemConfig struct {
	// Path is the storage directory. Empty means in-memory only.
	Path string

	// Compress enables gzip compression for persisted collections.
	Compress bool
}

// ChromemIndex is an Index implementation backed by the embedded
// chromem-go database. It needs no external service, which makes it the
// default backend for local runs and tests.
type ChromemIndex struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	// dimensions tracks the vector dimension per collection, keyed by
	// collection name. chromem does not expose this itself.
	dimensions sync.Map
}

var _ Index = (*ChromemIndex)(nil)

// NewChromemIndex creates a ChromemIndex. With an empty path the index
// lives in memory and is lost on exit.
func NewChromemIndex(config ChromemConfig, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		expandedPath, err := expandPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path %s: %w", config.Path, err)
		}
		db, err = chromem.NewPersistentDB(expandedPath, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		config.Path = expandedPath
	}

	logger.Debug("chromem index initialized",
		zap.String("path", config.Path),
		zap.Bool("persistent", config.Path != ""),
	)

	return &ChromemIndex{
		db:     db,
		config: config,
		logger: logger,
	}, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// embeddingFunc returns a chromem.EmbeddingFunc that rejects use.
// All vectors are precomputed, so chromem must never embed on its own.
// Passing nil is not an option: chromem then falls back to its default
// OpenAI embedder.
func (s *ChromemIndex) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("collection holds precomputed vectors only")
	}
}

// EnsureCollection creates the collection if it does not already exist.
func (s *ChromemIndex) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	_, span := chromemTracer.Start(ctx, "ChromemIndex.EnsureCollection")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("dimension", dimension),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dimension)
	}

	_, err := s.db.GetOrCreateCollection(collection, nil, s.embeddingFunc())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("getting/creating collection %s: %w", collection, err)
	}

	s.dimensions.Store(collection, dimension)

	s.logger.Debug("ensured chromem collection",
		zap.String("collection", collection),
		zap.Int("dimension", dimension),
	)

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Upsert inserts or replaces points by ID.
func (s *ChromemIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.Int("point_count", len(points)),
		attribute.String("collection", collection),
	)

	if len(points) == 0 {
		return ErrEmptyPoints
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	coll := s.db.GetCollection(collection, s.embeddingFunc())
	if coll == nil {
		span.SetStatus(codes.Error, "collection not found")
		return ErrCollectionNotFound
	}

	dimension, _ := s.collectionDimension(collection)

	start := time.Now()
	docs := make([]chromem.Document, len(points))
	for i, point := range points {
		if len(point.Vector) == 0 {
			return fmt.Errorf("%w: point %q has empty vector", ErrInvalidVector, point.ID)
		}
		if dimension > 0 && len(point.Vector) != dimension {
			return fmt.Errorf("%w: point %q has dimension %d, collection expects %d",
				ErrInvalidVector, point.ID, len(point.Vector), dimension)
		}
		docs[i] = chromem.Document{
			ID:        point.ID,
			Metadata:  map[string]string{"id": point.ID},
			Embedding: point.Vector,
		}
	}

	// Concurrency of 1 since embeddings are already computed.
	err := coll.AddDocuments(ctx, docs, 1)
	ObserveOperation("chromem", "upsert", time.Since(start))
	if err != nil {
		RecordUpsert("chromem", 0, false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents to collection %s: %w", collection, err)
	}

	RecordUpsert("chromem", len(points), true)
	span.SetAttributes(attribute.Int("points_added", len(points)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// QueryBatch runs one top-k search per vector. chromem has no batch
// query API, so this loops over the vectors.
func (s *ChromemIndex) QueryBatch(ctx context.Context, collection string, vectors [][]float32, topK int) ([][]Match, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.QueryBatch")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("query_count", len(vectors)),
		attribute.Int("top_k", topK),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return [][]Match{}, nil
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, topK)
	}

	coll := s.db.GetCollection(collection, s.embeddingFunc())
	if coll == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, ErrCollectionNotFound
	}

	dimension, _ := s.collectionDimension(collection)

	// Cap k at collection size (chromem requires nResults <= doc count).
	count := coll.Count()
	k := topK
	if k > count {
		k = count
	}

	start := time.Now()
	matches := make([][]Match, len(vectors))
	for i, vector := range vectors {
		if dimension > 0 && len(vector) != dimension {
			RecordQuery("chromem", false)
			return nil, fmt.Errorf("%w: query %d has dimension %d, collection expects %d",
				ErrInvalidVector, i, len(vector), dimension)
		}
		if count == 0 {
			matches[i] = []Match{}
			continue
		}

		results, err := coll.QueryEmbedding(ctx, vector, k, nil, nil)
		if err != nil {
			RecordQuery("chromem", false)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("querying collection %s: %w", collection, err)
		}

		matches[i] = make([]Match, len(results))
		for j, result := range results {
			matches[i][j] = Match{
				ID:    result.ID,
				Score: result.Similarity,
			}
		}
	}
	ObserveOperation("chromem", "query_batch", time.Since(start))

	RecordQuery("chromem", true)
	span.SetAttributes(attribute.Int("result_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// CollectionExists checks if a collection exists.
func (s *ChromemIndex) CollectionExists(ctx context.Context, collection string) (bool, error) {
	_, span := chromemTracer.Start(ctx, "ChromemIndex.CollectionExists")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return false, err
	}

	exists := s.db.GetCollection(collection, s.embeddingFunc()) != nil

	span.SetStatus(codes.Ok, "success")
	return exists, nil
}

// ListCollections returns a list of all collection names.
func (s *ChromemIndex) ListCollections(ctx context.Context) ([]string, error) {
	_, span := chromemTracer.Start(ctx, "ChromemIndex.ListCollections")
	defer span.End()

	collectionsMap := s.db.ListCollections()
	names := make([]string, 0, len(collectionsMap))
	for name := range collectionsMap {
		names = append(names, name)
	}

	span.SetAttributes(attribute.Int("collection_count", len(names)))
	span.SetStatus(codes.Ok, "success")
	return names, nil
}

// GetCollectionInfo returns metadata about a collection.
func (s *ChromemIndex) GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	_, span := chromemTracer.Start(ctx, "ChromemIndex.GetCollectionInfo")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	coll := s.db.GetCollection(collection, s.embeddingFunc())
	if coll == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, ErrCollectionNotFound
	}

	dimension, _ := s.collectionDimension(collection)
	info := &CollectionInfo{
		Name:      collection,
		Points:    uint64(coll.Count()),
		Dimension: uint64(dimension),
	}

	span.SetAttributes(attribute.Int("point_count", int(info.Points)))
	span.SetStatus(codes.Ok, "success")
	return info, nil
}

// DeleteCollection deletes a collection and all its points.
func (s *ChromemIndex) DeleteCollection(ctx context.Context, collection string) error {
	_, span := chromemTracer.Start(ctx, "ChromemIndex.DeleteCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	if err := s.db.DeleteCollection(collection); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", collection, err)
	}

	s.dimensions.Delete(collection)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close is a no-op. chromem holds no external connections.
func (s *ChromemIndex) Close() error {
	return nil
}

func (s *ChromemIndex) collectionDimension(collection string) (int, bool) {
	if v, ok := s.dimensions.Load(collection); ok {
		return v.(int), true
	}
	return 0, false
}
