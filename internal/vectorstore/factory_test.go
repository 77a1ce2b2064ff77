package vectorstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/negmine/internal/vectorstore"
)

func TestNew_DefaultsToChromem(t *testing.T) {
	index, err := vectorstore.New(vectorstore.Config{}, zap.NewNop())
	require.NoError(t, err)

	_, ok := index.(*vectorstore.ChromemIndex)
	assert.True(t, ok, "expected chromem index, got %T", index)
}

func TestNew_ChromemExplicit(t *testing.T) {
	index, err := vectorstore.New(vectorstore.Config{Provider: "chromem"}, zap.NewNop())
	require.NoError(t, err)

	_, ok := index.(*vectorstore.ChromemIndex)
	assert.True(t, ok)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := vectorstore.New(vectorstore.Config{Provider: "pinecone"}, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "pinecone")
}

func TestNew_QdrantRejectsBadMetric(t *testing.T) {
	_, err := vectorstore.New(vectorstore.Config{
		Provider: "qdrant",
		Host:     "localhost",
		Port:     6334,
		Metric:   "hamming",
	}, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}
