package embeddings_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/negmine/internal/embeddings"
)

// stubProvider counts calls and returns fixed vectors.
type stubProvider struct {
	passageCalls atomic.Int64
	queryCalls   atomic.Int64
	closed       bool
}

var _ embeddings.Provider = (*stubProvider)(nil)

func (s *stubProvider) EmbedPassages(_ context.Context, texts []string) ([][]float32, error) {
	s.passageCalls.Add(1)
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (s *stubProvider) EmbedQueries(_ context.Context, texts []string) ([][]float32, error) {
	s.queryCalls.Add(1)
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0, 1}
	}
	return out, nil
}

func (s *stubProvider) Dimension() int    { return 2 }
func (s *stubProvider) ModelName() string { return "stub-model" }
func (s *stubProvider) Close() error      { s.closed = true; return nil }

func TestRateLimited_Passthrough(t *testing.T) {
	stub := &stubProvider{}
	limited := embeddings.NewRateLimited(stub, 100, 10)

	vectors, err := limited.EmbedPassages(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, int64(1), stub.passageCalls.Load())

	vectors, err = limited.EmbedQueries(context.Background(), []string{"q"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, int64(1), stub.queryCalls.Load())

	assert.Equal(t, 2, limited.Dimension())
	assert.Equal(t, "stub-model", limited.ModelName())

	require.NoError(t, limited.Close())
	assert.True(t, stub.closed)
}

func TestRateLimited_CanceledContext(t *testing.T) {
	stub := &stubProvider{}
	limited := embeddings.NewRateLimited(stub, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := limited.EmbedPassages(ctx, []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), stub.passageCalls.Load())
}

func TestRateLimited_BurstFloor(t *testing.T) {
	// A burst below 1 would deadlock the limiter; the wrapper raises it.
	limited := embeddings.NewRateLimited(&stubProvider{}, 10, 0)

	_, err := limited.EmbedQueries(context.Background(), []string{"q"})
	require.NoError(t, err)
}
