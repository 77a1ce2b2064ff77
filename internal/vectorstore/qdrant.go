package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("negmine.vectorstore.qdrant")

// pointIDNamespace is the UUID namespace for deriving stable point IDs
// from non-numeric, non-UUID identifiers.
var pointIDNamespace = uuid.MustParse("8e2ab7f6-3c40-4a21-9b23-5a1edfb2a48c")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (NOT HTTP REST port).
	// Default: 6334 (gRPC), not 6333 (HTTP)
	Port int

	// APIKey authenticates against Qdrant Cloud. Empty for local.
	APIKey string

	// UseTLS enables TLS encryption for the gRPC connection.
	UseTLS bool

	// Distance is the similarity metric for vector search.
	Distance qdrant.Distance

	// MaxRetries is the maximum number of retry attempts for transient failures.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries.
	// Doubles on each retry.
	// Default: 1 second
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int

	// CircuitBreakerThreshold is the number of failures before opening circuit.
	// Default: 5
	CircuitBreakerThreshold int
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024 // 50MB
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.Distance == 0 {
		c.Distance = qdrant.Distance_Cosine
	}
}

// DistanceFromMetric maps a metric name to the Qdrant distance enum.
func DistanceFromMetric(metric string) (qdrant.Distance, error) {
	switch metric {
	case "", "cosine":
		return qdrant.Distance_Cosine, nil
	case "dot":
		return qdrant.Distance_Dot, nil
	case "euclid":
		return qdrant.Distance_Euclid, nil
	default:
		return qdrant.Distance_UnknownDistance, fmt.Errorf("%w: unknown metric %q", ErrInvalidConfig, metric)
	}
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts, temporary unavailability.
// Returns false for invalid config, not found, permission denied.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantIndex is an Index implementation using Qdrant's native gRPC client.
//
// gRPC transport (port 6334) avoids the HTTP layer's payload limits and
// gives binary protobuf encoding for large upsert batches.
type QdrantIndex struct {
	// client is the official Qdrant Go gRPC client
	client *qdrant.Client

	// config holds the index configuration
	config QdrantConfig

	// collections is a cache of collection existence to avoid repeated checks
	collections sync.Map

	// circuitBreaker tracks failures for circuit breaker pattern
	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

var _ Index = (*QdrantIndex)(nil)

// NewQdrantIndex creates a QdrantIndex and verifies connectivity with a
// health check.
func NewQdrantIndex(config QdrantConfig) (*QdrantIndex, error) {
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if !config.UseTLS {
		fmt.Fprintf(os.Stderr, "WARNING: Qdrant gRPC using plaintext (TLS disabled). Insecure for production.\n")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	index := &QdrantIndex{
		client: client,
		config: config,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := index.healthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	return index, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantIndex) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// healthCheck performs a health check on the Qdrant connection.
func (s *QdrantIndex) healthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.HealthCheck")
	defer span.End()

	_, err := s.client.HealthCheck(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("health check failed: %w", err)
	}

	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// retryOperation retries an operation with exponential backoff.
func (s *QdrantIndex) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			s.resetCircuitBreaker()
			return nil
		}

		if s.isCircuitOpen() {
			return fmt.Errorf("%s: circuit breaker open", operationName)
		}

		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		s.recordFailure()

		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (s *QdrantIndex) recordFailure() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures++
	s.circuitBreaker.lastFail = time.Now()
}

func (s *QdrantIndex) resetCircuitBreaker() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures = 0
}

func (s *QdrantIndex) isCircuitOpen() bool {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()

	if s.circuitBreaker.failures >= s.config.CircuitBreakerThreshold {
		// Allow retry after 30 seconds
		if time.Since(s.circuitBreaker.lastFail) > 30*time.Second {
			s.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

// EnsureCollection creates the collection if it does not already exist.
func (s *QdrantIndex) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.EnsureCollection")
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

	exists, err := s.CollectionExists(ctx, collection)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("checking collection %s: %w", collection, err)
	}
	if exists {
		span.SetStatus(codes.Ok, "exists")
		return nil
	}

	err = s.retryOperation(ctx, "create_collection", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: s.config.Distance,
			}),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", collection, err)
	}

	s.collections.Store(collection, true)

	span.SetStatus(codes.Ok, "created")
	return nil
}

// Upsert inserts or replaces points by ID. The caller-assigned ID is
// preserved in the payload so queries can return it unchanged.
func (s *QdrantIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Upsert")
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

	start := time.Now()
	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, point := range points {
		if len(point.Vector) == 0 {
			return fmt.Errorf("%w: point %q has empty vector", ErrInvalidVector, point.ID)
		}
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrantPointID(point.ID),
			Vectors: qdrant.NewVectors(point.Vector...),
			Payload: map[string]*qdrant.Value{
				"id": {Kind: &qdrant.Value_StringValue{StringValue: point.ID}},
			},
		}
	}

	err := s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         qdrantPoints,
		})
		return err
	})
	ObserveOperation("qdrant", "upsert", time.Since(start))
	if err != nil {
		RecordUpsert("qdrant", 0, false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to collection %s: %w", collection, err)
	}

	RecordUpsert("qdrant", len(points), true)
	span.SetAttributes(attribute.Int("points_added", len(points)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// QueryBatch runs one top-k search per vector in a single request.
func (s *QdrantIndex) QueryBatch(ctx context.Context, collection string, vectors [][]float32, topK int) ([][]Match, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.QueryBatch")
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

	queries := make([]*qdrant.QueryPoints, len(vectors))
	for i, vector := range vectors {
		queries[i] = &qdrant.QueryPoints{
			CollectionName: collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(topK)),
			WithPayload:    qdrant.NewWithPayload(true),
		}
	}

	start := time.Now()
	var batchResults []*qdrant.BatchResult
	err := s.retryOperation(ctx, "query_batch", func() error {
		res, err := s.client.QueryBatch(ctx, &qdrant.QueryBatchPoints{
			CollectionName: collection,
			QueryPoints:    queries,
		})
		if err != nil {
			return err
		}
		batchResults = res
		return nil
	})
	ObserveOperation("qdrant", "query_batch", time.Since(start))
	if err != nil {
		RecordQuery("qdrant", false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	if len(batchResults) != len(vectors) {
		RecordQuery("qdrant", false)
		return nil, fmt.Errorf("querying collection %s: got %d result lists for %d queries", collection, len(batchResults), len(vectors))
	}

	matches := make([][]Match, len(batchResults))
	for i, result := range batchResults {
		matches[i] = make([]Match, len(result.Result))
		for j, point := range result.Result {
			matches[i][j] = Match{
				ID:    scoredPointID(point),
				Score: point.Score,
			}
		}
	}

	RecordQuery("qdrant", true)
	span.SetAttributes(attribute.Int("result_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// CollectionExists checks if a collection exists.
func (s *QdrantIndex) CollectionExists(ctx context.Context, collection string) (bool, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.CollectionExists")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return false, err
	}

	if _, ok := s.collections.Load(collection); ok {
		return true, nil
	}

	var exists bool
	err := s.retryOperation(ctx, "collection_exists", func() error {
		info, err := s.client.GetCollectionInfo(ctx, collection)
		if err != nil {
			st, ok := status.FromError(err)
			if ok && st.Code() == grpccodes.NotFound {
				exists = false
				return nil
			}
			return err
		}
		exists = info != nil
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("checking collection %s: %w", collection, err)
	}

	if exists {
		s.collections.Store(collection, true)
	}

	span.SetStatus(codes.Ok, "success")
	return exists, nil
}

// ListCollections returns a list of all collection names.
func (s *QdrantIndex) ListCollections(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.ListCollections")
	defer span.End()

	var collections []string
	err := s.retryOperation(ctx, "list_collections", func() error {
		result, err := s.client.ListCollections(ctx)
		if err != nil {
			return err
		}
		collections = result
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	span.SetAttributes(attribute.Int("collection_count", len(collections)))
	span.SetStatus(codes.Ok, "success")
	return collections, nil
}

// GetCollectionInfo returns metadata about a collection.
func (s *QdrantIndex) GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.GetCollectionInfo")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	var info *CollectionInfo
	err := s.retryOperation(ctx, "get_collection_info", func() error {
		collInfo, err := s.client.GetCollectionInfo(ctx, collection)
		if err != nil {
			st, ok := status.FromError(err)
			if ok && st.Code() == grpccodes.NotFound {
				return ErrCollectionNotFound
			}
			return err
		}

		info = &CollectionInfo{Name: collection}
		if collInfo.PointsCount != nil {
			info.Points = *collInfo.PointsCount
		}
		if params := collInfo.GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
			info.Dimension = params.Size
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrCollectionNotFound) {
			span.SetStatus(codes.Error, "collection not found")
			return nil, ErrCollectionNotFound
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("getting collection info for %s: %w", collection, err)
	}

	span.SetAttributes(attribute.Int("point_count", int(info.Points)))
	span.SetStatus(codes.Ok, "success")
	return info, nil
}

// DeleteCollection deletes a collection and all its points.
func (s *QdrantIndex) DeleteCollection(ctx context.Context, collection string) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.DeleteCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	err := s.retryOperation(ctx, "delete_collection", func() error {
		return s.client.DeleteCollection(ctx, collection)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", collection, err)
	}

	s.collections.Delete(collection)

	span.SetStatus(codes.Ok, "success")
	return nil
}

// qdrantPointID maps a caller-assigned ID to a Qdrant point ID.
// Decimal IDs map to numeric point IDs, UUIDs pass through, and
// anything else derives a stable UUID so re-upserts overwrite.
func qdrantPointID(id string) *qdrant.PointId {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return qdrant.NewIDNum(n)
	}
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(pointIDNamespace, []byte(id)).String())
}

// scoredPointID recovers the caller-assigned ID from a scored point,
// preferring the payload copy written at upsert time.
func scoredPointID(point *qdrant.ScoredPoint) string {
	if point.Payload != nil {
		if value, ok := point.Payload["id"]; ok {
			if s, ok := value.Kind.(*qdrant.Value_StringValue); ok {
				return s.StringValue
			}
		}
	}
	if point.Id != nil {
		switch id := point.Id.PointIdOptions.(type) {
		case *qdrant.PointId_Num:
			return strconv.FormatUint(id.Num, 10)
		case *qdrant.PointId_Uuid:
			return id.Uuid
		}
	}
	return ""
}
