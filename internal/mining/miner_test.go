package mining_test

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/negmine/internal/dataset"
	"github.com/fyrsmithlabs/negmine/internal/mining"
	"github.com/fyrsmithlabs/negmine/internal/vectorstore"
)

const testCollection = "mining_test"

// textVector derives a deterministic unit vector from text, so equal
// texts always embed identically and distinct texts (almost) never do.
func textVector(text string, dim int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	r := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		v := r.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	scale := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= scale
	}
	return vec
}

// fakeEmbedder embeds texts with textVector and records batch sizes.
type fakeEmbedder struct {
	dim            int
	passageBatches []int
	queryBatches   []int
}

func newFakeEmbedder() *fakeEmbedder { return &fakeEmbedder{dim: 8} }

func (f *fakeEmbedder) embed(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = textVector(t, f.dim)
	}
	return out
}

func (f *fakeEmbedder) EmbedPassages(_ context.Context, texts []string) ([][]float32, error) {
	f.passageBatches = append(f.passageBatches, len(texts))
	return f.embed(texts), nil
}

func (f *fakeEmbedder) EmbedQueries(_ context.Context, texts []string) ([][]float32, error) {
	f.queryBatches = append(f.queryBatches, len(texts))
	return f.embed(texts), nil
}

// fakeIndex is an in-memory cosine index recording upsert batch sizes.
type fakeIndex struct {
	collections   map[string]map[string][]float32
	upsertBatches []int
	queryCalls    int
}

var _ vectorstore.Index = (*fakeIndex)(nil)

func newFakeIndex() *fakeIndex {
	return &fakeIndex{collections: make(map[string]map[string][]float32)}
}

func (f *fakeIndex) EnsureCollection(_ context.Context, collection string, _ int) error {
	if _, ok := f.collections[collection]; !ok {
		f.collections[collection] = make(map[string][]float32)
	}
	return nil
}

func (f *fakeIndex) Upsert(_ context.Context, collection string, points []vectorstore.Point) error {
	coll, ok := f.collections[collection]
	if !ok {
		coll = make(map[string][]float32)
		f.collections[collection] = coll
	}
	f.upsertBatches = append(f.upsertBatches, len(points))
	for _, p := range points {
		coll[p.ID] = p.Vector
	}
	return nil
}

func (f *fakeIndex) QueryBatch(_ context.Context, collection string, vectors [][]float32, topK int) ([][]vectorstore.Match, error) {
	coll, ok := f.collections[collection]
	if !ok {
		return nil, vectorstore.ErrCollectionNotFound
	}
	f.queryCalls++

	out := make([][]vectorstore.Match, len(vectors))
	for i, query := range vectors {
		matches := make([]vectorstore.Match, 0, len(coll))
		for id, stored := range coll {
			var dot float32
			for d := range query {
				dot += query[d] * stored[d]
			}
			matches = append(matches, vectorstore.Match{ID: id, Score: dot})
		}
		sort.Slice(matches, func(a, b int) bool {
			if matches[a].Score != matches[b].Score {
				return matches[a].Score > matches[b].Score
			}
			return matches[a].ID < matches[b].ID
		})
		if len(matches) > topK {
			matches = matches[:topK]
		}
		out[i] = matches
	}
	return out, nil
}

func (f *fakeIndex) CollectionExists(_ context.Context, collection string) (bool, error) {
	_, ok := f.collections[collection]
	return ok, nil
}

func (f *fakeIndex) ListCollections(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(f.collections))
	for name := range f.collections {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeIndex) GetCollectionInfo(_ context.Context, collection string) (*vectorstore.CollectionInfo, error) {
	coll, ok := f.collections[collection]
	if !ok {
		return nil, vectorstore.ErrCollectionNotFound
	}
	return &vectorstore.CollectionInfo{Name: collection, Points: uint64(len(coll))}, nil
}

func (f *fakeIndex) DeleteCollection(_ context.Context, collection string) error {
	delete(f.collections, collection)
	return nil
}

func (f *fakeIndex) Close() error { return nil }

// memWriter collects triplets, optionally failing after N writes.
type memWriter struct {
	triplets []dataset.Triplet
	failAt   int
}

func (w *memWriter) Write(t dataset.Triplet) error {
	if w.failAt > 0 && len(w.triplets)+1 >= w.failAt {
		return fmt.Errorf("disk full")
	}
	w.triplets = append(w.triplets, t)
	return nil
}

// newMiner builds a miner over fresh fakes with a fixed seed.
func newMiner(t *testing.T, embedder *fakeEmbedder, index *fakeIndex, config mining.Config) *mining.Miner {
	t.Helper()
	if config.Collection == "" {
		config.Collection = testCollection
	}
	if config.Seed == 0 {
		config.Seed = 1
	}
	miner, err := mining.New(embedder, index, config, zap.NewNop())
	require.NoError(t, err)
	return miner
}

func TestMiner_Run_TwoPairs(t *testing.T) {
	embedder := newFakeEmbedder()
	index := newFakeIndex()
	miner := newMiner(t, embedder, index, mining.Config{TopK: 2})

	pairs := []dataset.Pair{
		{Query: "q1", Passage: "p1"},
		{Query: "q2", Passage: "p2"},
	}

	w := &memWriter{}
	stats, err := miner.Run(context.Background(), pairs, w)
	require.NoError(t, err)

	// With two distinct passages and k=2, each query sees both
	// candidates and the only valid negative is the other positive.
	require.Equal(t, []dataset.Triplet{
		{Query: "q1", Positive: "p1", Negative: "p2"},
		{Query: "q2", Positive: "p2", Negative: "p1"},
	}, w.triplets)

	assert.Equal(t, 2, stats.Pairs)
	assert.Equal(t, 2, stats.DistinctPassages)
	assert.Equal(t, 2, stats.Upserted)
	assert.Equal(t, 2, stats.Queried)
	assert.Equal(t, 2, stats.Triplets)
	assert.Equal(t, 0, stats.SkippedNoNegative)
}

func TestMiner_Run_DeduplicatesPassages(t *testing.T) {
	embedder := newFakeEmbedder()
	index := newFakeIndex()
	miner := newMiner(t, embedder, index, mining.Config{TopK: 3})

	pairs := []dataset.Pair{
		{Query: "q1", Passage: "shared"},
		{Query: "q2", Passage: "shared"},
		{Query: "q3", Passage: "rare"},
	}

	w := &memWriter{}
	stats, err := miner.Run(context.Background(), pairs, w)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.DistinctPassages)
	assert.Equal(t, 2, stats.Upserted)
	assert.Equal(t, 3, stats.Queried)

	// Both duplicate-positive queries still get mined, and the only
	// possible negative for them is the other passage.
	require.Len(t, w.triplets, 3)
	assert.Equal(t, dataset.Triplet{Query: "q1", Positive: "shared", Negative: "rare"}, w.triplets[0])
	assert.Equal(t, dataset.Triplet{Query: "q2", Positive: "shared", Negative: "rare"}, w.triplets[1])
	assert.Equal(t, dataset.Triplet{Query: "q3", Positive: "rare", Negative: "shared"}, w.triplets[2])
}

func TestMiner_Run_AllCandidatesPositiveSkipsQuery(t *testing.T) {
	embedder := newFakeEmbedder()
	index := newFakeIndex()
	miner := newMiner(t, embedder, index, mining.Config{TopK: 5})

	pairs := []dataset.Pair{{Query: "q1", Passage: "only"}}

	w := &memWriter{}
	stats, err := miner.Run(context.Background(), pairs, w)
	require.NoError(t, err)

	assert.Empty(t, w.triplets)
	assert.Equal(t, 1, stats.Queried)
	assert.Equal(t, 0, stats.Triplets)
	assert.Equal(t, 1, stats.SkippedNoNegative)
}

func TestMiner_Run_UnknownCandidateFails(t *testing.T) {
	embedder := newFakeEmbedder()
	index := newFakeIndex()

	// A point the miner never upserted: foreign data in the collection.
	require.NoError(t, index.EnsureCollection(context.Background(), testCollection, 8))
	require.NoError(t, index.Upsert(context.Background(), testCollection, []vectorstore.Point{
		{ID: "zzz", Vector: textVector("foreign", 8)},
	}))
	index.upsertBatches = nil

	miner := newMiner(t, embedder, index, mining.Config{TopK: 5})
	pairs := []dataset.Pair{{Query: "q1", Passage: "mine"}}

	_, err := miner.Run(context.Background(), pairs, &memWriter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, mining.ErrUnknownPassage)
	assert.Contains(t, err.Error(), "zzz")
}

func TestMiner_Run_FlushesFinalPartialBatch(t *testing.T) {
	tests := []struct {
		name        string
		passages    int
		batchSize   int
		wantBatches []int
	}{
		{name: "partial tail", passages: 10, batchSize: 4, wantBatches: []int{4, 4, 2}},
		{name: "single short batch", passages: 3, batchSize: 64, wantBatches: []int{3}},
		{name: "exact multiple", passages: 8, batchSize: 4, wantBatches: []int{4, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := newFakeEmbedder()
			index := newFakeIndex()
			miner := newMiner(t, embedder, index, mining.Config{
				UpsertBatchSize: tt.batchSize,
				TopK:            2,
			})

			pairs := make([]dataset.Pair, tt.passages)
			for i := range pairs {
				pairs[i] = dataset.Pair{
					Query:   fmt.Sprintf("q%d", i),
					Passage: fmt.Sprintf("p%d", i),
				}
			}

			stats, err := miner.Run(context.Background(), pairs, &memWriter{})
			require.NoError(t, err)

			assert.Equal(t, tt.wantBatches, index.upsertBatches)
			assert.Equal(t, tt.wantBatches, embedder.passageBatches)
			assert.Equal(t, tt.passages, stats.Upserted)
			assert.Equal(t, stats.DistinctPassages, stats.Upserted)
		})
	}
}

func TestMiner_Run_QueryBatching(t *testing.T) {
	embedder := newFakeEmbedder()
	index := newFakeIndex()
	miner := newMiner(t, embedder, index, mining.Config{
		QueryBatchSize: 3,
		TopK:           4,
	})

	pairs := make([]dataset.Pair, 7)
	for i := range pairs {
		pairs[i] = dataset.Pair{
			Query:   fmt.Sprintf("q%d", i),
			Passage: fmt.Sprintf("p%d", i),
		}
	}

	w := &memWriter{}
	stats, err := miner.Run(context.Background(), pairs, w)
	require.NoError(t, err)

	assert.Equal(t, []int{3, 3, 1}, embedder.queryBatches)
	assert.Equal(t, 3, index.queryCalls)
	assert.Equal(t, 7, stats.Queried)

	// Triplets come out in input order even across batches.
	require.Len(t, w.triplets, 7)
	for i, triplet := range w.triplets {
		assert.Equal(t, fmt.Sprintf("q%d", i), triplet.Query)
	}
}

func TestMiner_Run_NegativesAreValid(t *testing.T) {
	embedder := newFakeEmbedder()
	index := newFakeIndex()
	miner := newMiner(t, embedder, index, mining.Config{TopK: 5})

	passages := make(map[string]struct{})
	pairs := make([]dataset.Pair, 20)
	for i := range pairs {
		// Every fourth pair reuses a passage.
		passage := fmt.Sprintf("passage %d", i/4*4)
		pairs[i] = dataset.Pair{Query: fmt.Sprintf("query %d", i), Passage: passage}
		passages[passage] = struct{}{}
	}

	w := &memWriter{}
	stats, err := miner.Run(context.Background(), pairs, w)
	require.NoError(t, err)

	assert.Equal(t, len(passages), stats.DistinctPassages)

	perQuery := make(map[string]int)
	for _, triplet := range w.triplets {
		assert.NotEqual(t, triplet.Positive, triplet.Negative, "negative equals positive for %q", triplet.Query)
		_, known := passages[triplet.Negative]
		assert.True(t, known, "negative %q is not an indexed passage", triplet.Negative)
		perQuery[triplet.Query]++
	}
	for query, count := range perQuery {
		assert.Equal(t, 1, count, "query %q has %d triplets", query, count)
	}
}

func TestMiner_Run_SeededRunsAreReproducible(t *testing.T) {
	pairs := make([]dataset.Pair, 12)
	for i := range pairs {
		pairs[i] = dataset.Pair{
			Query:   fmt.Sprintf("query %d", i),
			Passage: fmt.Sprintf("passage %d", i%5),
		}
	}

	run := func() []dataset.Triplet {
		miner := newMiner(t, newFakeEmbedder(), newFakeIndex(), mining.Config{TopK: 4, Seed: 42})
		w := &memWriter{}
		_, err := miner.Run(context.Background(), pairs, w)
		require.NoError(t, err)
		return w.triplets
	}

	assert.Equal(t, run(), run())
}

func TestMiner_Run_EmptyInput(t *testing.T) {
	embedder := newFakeEmbedder()
	index := newFakeIndex()
	miner := newMiner(t, embedder, index, mining.Config{})

	w := &memWriter{}
	stats, err := miner.Run(context.Background(), nil, w)
	require.NoError(t, err)

	assert.Equal(t, &mining.Stats{}, stats)
	assert.Empty(t, w.triplets)
	assert.Empty(t, embedder.passageBatches)
	assert.Empty(t, embedder.queryBatches)
}

func TestMiner_Run_WriterErrorPropagates(t *testing.T) {
	embedder := newFakeEmbedder()
	index := newFakeIndex()
	miner := newMiner(t, embedder, index, mining.Config{TopK: 2})

	pairs := []dataset.Pair{
		{Query: "q1", Passage: "p1"},
		{Query: "q2", Passage: "p2"},
	}

	_, err := miner.Run(context.Background(), pairs, &memWriter{failAt: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writing triplet")
}

func TestNew_Validation(t *testing.T) {
	embedder := newFakeEmbedder()
	index := newFakeIndex()
	logger := zap.NewNop()

	_, err := mining.New(embedder, index, mining.Config{Collection: "Bad-Name"}, logger)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidCollectionName)

	_, err = mining.New(embedder, index, mining.Config{Collection: "ok", TopK: -1}, logger)
	assert.ErrorIs(t, err, mining.ErrInvalidConfig)

	_, err = mining.New(nil, index, mining.Config{Collection: "ok"}, logger)
	assert.ErrorIs(t, err, mining.ErrInvalidConfig)

	_, err = mining.New(embedder, nil, mining.Config{Collection: "ok"}, logger)
	assert.ErrorIs(t, err, mining.ErrInvalidConfig)
}

func TestConfig_ApplyDefaults(t *testing.T) {
	config := mining.Config{Collection: "ok"}
	config.ApplyDefaults()

	assert.Equal(t, 64, config.UpsertBatchSize)
	assert.Equal(t, 100, config.QueryBatchSize)
	assert.Equal(t, 10, config.TopK)
}
