// Package mining implements hard-negative mining over a similarity index.
//
// Given (query, positive) pairs, the miner indexes the distinct positive
// passages, then for each query retrieves its nearest passages and picks
// a random one that differs from the query's own positive. The output is
// (query, positive, negative) triplets for training retrieval models.
package mining

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/negmine/internal/dataset"
	"github.com/fyrsmithlabs/negmine/internal/embeddings"
	"github.com/fyrsmithlabs/negmine/internal/vectorstore"
)

var tracer = otel.Tracer("negmine.mining")

// ErrUnknownPassage is returned when the index returns a point ID that
// was never upserted. It means the collection holds foreign data and
// the run cannot be trusted.
var ErrUnknownPassage = errors.New("unknown passage id in search results")

// ErrInvalidConfig indicates invalid miner configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// TripletWriter receives mined triplets.
type TripletWriter interface {
	Write(t dataset.Triplet) error
}

// Config holds miner tuning parameters.
type Config struct {
	// Collection is the index collection holding the passages.
	Collection string

	// UpsertBatchSize is the number of passages encoded and upserted
	// per round trip. Default: 64
	UpsertBatchSize int

	// QueryBatchSize is the number of queries searched per round trip.
	// Default: 100
	QueryBatchSize int

	// TopK is the number of candidates retrieved per query.
	// Default: 10
	TopK int

	// Seed seeds the candidate shuffle. Zero means time-seeded;
	// any other value makes runs reproducible.
	Seed int64

	// Progress renders a progress bar on stderr.
	Progress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.UpsertBatchSize == 0 {
		c.UpsertBatchSize = 64
	}
	if c.QueryBatchSize == 0 {
		c.QueryBatchSize = 100
	}
	if c.TopK == 0 {
		c.TopK = 10
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if err := vectorstore.ValidateCollectionName(c.Collection); err != nil {
		return err
	}
	if c.UpsertBatchSize <= 0 {
		return fmt.Errorf("%w: upsert batch size must be positive, got %d", ErrInvalidConfig, c.UpsertBatchSize)
	}
	if c.QueryBatchSize <= 0 {
		return fmt.Errorf("%w: query batch size must be positive, got %d", ErrInvalidConfig, c.QueryBatchSize)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, c.TopK)
	}
	return nil
}

// Stats summarizes one mining run.
type Stats struct {
	// Pairs is the number of input pairs processed.
	Pairs int

	// DistinctPassages is the number of unique passage texts indexed.
	DistinctPassages int

	// Upserted is the number of points written to the index. Equals
	// DistinctPassages after a complete run.
	Upserted int

	// Queried is the number of queries searched.
	Queried int

	// Triplets is the number of triplets written.
	Triplets int

	// SkippedNoNegative counts queries whose candidates all matched
	// the positive, so no triplet was written.
	SkippedNoNegative int
}

// Miner mines hard negatives from a similarity index.
type Miner struct {
	embedder embeddings.Embedder
	index    vectorstore.Index
	config   Config
	logger   *zap.Logger
	rng      *rand.Rand
}

// New creates a Miner. The embedder and index must outlive the miner;
// the miner closes neither.
func New(embedder embeddings.Embedder, index vectorstore.Index, config Config, logger *zap.Logger) (*Miner, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder required", ErrInvalidConfig)
	}
	if index == nil {
		return nil, fmt.Errorf("%w: index required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Miner{
		embedder: embedder,
		index:    index,
		config:   config,
		logger:   logger,
		rng:      rand.New(rand.NewSource(seed)),
	}, nil
}

// Run indexes the distinct passages from pairs, then mines one negative
// per query and writes the triplets to out. Pairs must come from a
// single dataset read: passage IDs are pair ordinals.
func (m *Miner) Run(ctx context.Context, pairs []dataset.Pair, out TripletWriter) (*Stats, error) {
	ctx, span := tracer.Start(ctx, "Miner.Run")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", m.config.Collection),
		attribute.Int("pairs", len(pairs)),
		attribute.Int("top_k", m.config.TopK),
	)

	stats := &Stats{Pairs: len(pairs)}
	if len(pairs) == 0 {
		span.SetStatus(codes.Ok, "empty input")
		return stats, nil
	}

	idToText, err := m.indexPassages(ctx, pairs, stats)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := m.mineNegatives(ctx, pairs, idToText, out, stats); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	RecordRun(stats)
	span.SetAttributes(
		attribute.Int("distinct_passages", stats.DistinctPassages),
		attribute.Int("triplets", stats.Triplets),
		attribute.Int("skipped_no_negative", stats.SkippedNoNegative),
	)
	span.SetStatus(codes.Ok, "success")

	m.logger.Info("mining run complete",
		zap.Int("pairs", stats.Pairs),
		zap.Int("distinct_passages", stats.DistinctPassages),
		zap.Int("triplets", stats.Triplets),
		zap.Int("skipped_no_negative", stats.SkippedNoNegative),
	)
	return stats, nil
}

// indexPassages deduplicates passages by text and upserts them in
// batches. A passage's ID is the zero-based ordinal of the first pair
// it appeared in. Returns the ID to text mapping for filtering.
func (m *Miner) indexPassages(ctx context.Context, pairs []dataset.Pair, stats *Stats) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "Miner.indexPassages")
	defer span.End()

	bar := m.newBar(len(pairs), "indexing passages")

	seen := make(map[string]struct{}, len(pairs))
	idToText := make(map[string]string, len(pairs))

	batchIDs := make([]string, 0, m.config.UpsertBatchSize)
	batchTexts := make([]string, 0, m.config.UpsertBatchSize)

	flush := func() error {
		if len(batchTexts) == 0 {
			return nil
		}
		vectors, err := m.embedder.EmbedPassages(ctx, batchTexts)
		if err != nil {
			return fmt.Errorf("embedding passages: %w", err)
		}
		if len(vectors) != len(batchTexts) {
			return fmt.Errorf("embedding passages: got %d vectors for %d texts", len(vectors), len(batchTexts))
		}

		points := make([]vectorstore.Point, len(batchIDs))
		for i, id := range batchIDs {
			points[i] = vectorstore.Point{ID: id, Vector: vectors[i]}
		}
		if err := m.index.Upsert(ctx, m.config.Collection, points); err != nil {
			return fmt.Errorf("upserting passages: %w", err)
		}

		stats.Upserted += len(points)
		m.logger.Debug("upserted passage batch",
			zap.String("collection", m.config.Collection),
			zap.Int("batch_size", len(points)),
			zap.Int("total", stats.Upserted),
		)

		batchIDs = batchIDs[:0]
		batchTexts = batchTexts[:0]
		return nil
	}

	for ordinal, pair := range pairs {
		_ = bar.Add(1)
		if _, dup := seen[pair.Passage]; dup {
			continue
		}
		seen[pair.Passage] = struct{}{}

		id := strconv.Itoa(ordinal)
		idToText[id] = pair.Passage
		batchIDs = append(batchIDs, id)
		batchTexts = append(batchTexts, pair.Passage)
		stats.DistinctPassages++

		if len(batchTexts) == m.config.UpsertBatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}

	// The trailing partial batch must reach the index too, or the last
	// passages would never surface as candidates.
	if err := flush(); err != nil {
		return nil, err
	}
	_ = bar.Finish()

	span.SetAttributes(
		attribute.Int("distinct_passages", stats.DistinctPassages),
		attribute.Int("upserted", stats.Upserted),
	)
	span.SetStatus(codes.Ok, "success")
	return idToText, nil
}

// mineNegatives searches the index for every query in input order and
// writes at most one triplet per query.
func (m *Miner) mineNegatives(ctx context.Context, pairs []dataset.Pair, idToText map[string]string, out TripletWriter, stats *Stats) error {
	ctx, span := tracer.Start(ctx, "Miner.mineNegatives")
	defer span.End()

	bar := m.newBar(len(pairs), "mining negatives")

	for start := 0; start < len(pairs); start += m.config.QueryBatchSize {
		end := min(start+m.config.QueryBatchSize, len(pairs))
		chunk := pairs[start:end]

		queries := make([]string, len(chunk))
		for i, pair := range chunk {
			queries[i] = pair.Query
		}

		vectors, err := m.embedder.EmbedQueries(ctx, queries)
		if err != nil {
			return fmt.Errorf("embedding queries: %w", err)
		}
		if len(vectors) != len(queries) {
			return fmt.Errorf("embedding queries: got %d vectors for %d texts", len(vectors), len(queries))
		}

		results, err := m.index.QueryBatch(ctx, m.config.Collection, vectors, m.config.TopK)
		if err != nil {
			return fmt.Errorf("querying index: %w", err)
		}
		if len(results) != len(chunk) {
			return fmt.Errorf("querying index: got %d result lists for %d queries", len(results), len(chunk))
		}

		for i, matches := range results {
			pair := chunk[i]
			stats.Queried++
			_ = bar.Add(1)

			negative, found, err := m.pickNegative(matches, pair.Passage, idToText)
			if err != nil {
				return err
			}
			if !found {
				stats.SkippedNoNegative++
				m.logger.Debug("no negative candidate for query",
					zap.Int("pair", start+i),
					zap.Int("candidates", len(matches)),
				)
				continue
			}

			if err := out.Write(dataset.Triplet{
				Query:    pair.Query,
				Positive: pair.Passage,
				Negative: negative,
			}); err != nil {
				return fmt.Errorf("writing triplet: %w", err)
			}
			stats.Triplets++
		}

		m.logger.Debug("mined query batch",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("triplets", stats.Triplets),
		)
	}
	_ = bar.Finish()

	span.SetAttributes(attribute.Int("triplets", stats.Triplets))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// pickNegative shuffles the candidates and returns the text of the
// first one that differs from the positive. Filtering compares passage
// texts, not IDs, so duplicate passages stored under another pair's ID
// never leak back as "negatives".
func (m *Miner) pickNegative(matches []vectorstore.Match, positive string, idToText map[string]string) (string, bool, error) {
	shuffled := make([]vectorstore.Match, len(matches))
	copy(shuffled, matches)
	m.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	for _, match := range shuffled {
		text, ok := idToText[match.ID]
		if !ok {
			return "", false, fmt.Errorf("%w: %q", ErrUnknownPassage, match.ID)
		}
		if text != positive {
			return text, true, nil
		}
	}
	return "", false, nil
}

// newBar returns a progress bar, or a silent one when progress is off.
func (m *Miner) newBar(total int, description string) *progressbar.ProgressBar {
	if !m.config.Progress {
		return progressbar.DefaultSilent(int64(total))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
