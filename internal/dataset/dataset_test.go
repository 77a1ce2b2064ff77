package dataset_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/negmine/internal/dataset"
)

func TestParsePairs_WellFormed(t *testing.T) {
	input := "what is a cat\tA cat is a small mammal.\n" +
		"what is a dog\tA dog is a domesticated canine.\n"

	pairs, stats, err := dataset.ParsePairs(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, pairs, 2)
	assert.Equal(t, dataset.Pair{Query: "what is a cat", Passage: "A cat is a small mammal."}, pairs[0])
	assert.Equal(t, dataset.Pair{Query: "what is a dog", Passage: "A dog is a domesticated canine."}, pairs[1])
	assert.Equal(t, 2, stats.Lines)
	assert.Equal(t, 0, stats.Skipped)
}

func TestParsePairs_MalformedSkipped(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantPairs int
		wantSkip  int
	}{
		{
			name:      "no tab",
			input:     "just a query with no passage\nq\tp\n",
			wantPairs: 1,
			wantSkip:  1,
		},
		{
			name:      "too many fields",
			input:     "q\tp\textra\nq2\tp2\n",
			wantPairs: 1,
			wantSkip:  1,
		},
		{
			name:      "empty line",
			input:     "q\tp\n\nq2\tp2\n",
			wantPairs: 2,
			wantSkip:  1,
		},
		{
			name:      "all malformed",
			input:     "one\ntwo\nthree\n",
			wantPairs: 0,
			wantSkip:  3,
		},
		{
			name:      "empty fields are valid",
			input:     "\t\nq\t\n\tp\n",
			wantPairs: 3,
			wantSkip:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs, stats, err := dataset.ParsePairs(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Len(t, pairs, tt.wantPairs)
			assert.Equal(t, tt.wantSkip, stats.Skipped)
			assert.Len(t, stats.SkippedLines, tt.wantSkip)
		})
	}
}

func TestParsePairs_SkippedLineNumbers(t *testing.T) {
	input := "q1\tp1\nmalformed\nq2\tp2\nalso bad\n"

	_, stats, err := dataset.ParsePairs(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, stats.SkippedLines)
}

func TestParsePairs_CRLF(t *testing.T) {
	input := "q1\tp1\r\nq2\tp2\r\n"

	pairs, stats, err := dataset.ParsePairs(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "p1", pairs[0].Passage, "trailing CR must be stripped")
	assert.Equal(t, "p2", pairs[1].Passage)
	assert.Equal(t, 0, stats.Skipped)
}

func TestParsePairs_Idempotent(t *testing.T) {
	input := "q1\tp1\nbad line\nq2\tp2\n"

	first, _, err := dataset.ParsePairs(strings.NewReader(input))
	require.NoError(t, err)
	second, _, err := dataset.ParsePairs(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestParsePairs_LongLine(t *testing.T) {
	// Longer than the default 64KB scanner token size.
	passage := strings.Repeat("x", 200*1024)
	input := "q\t" + passage + "\n"

	pairs, _, err := dataset.ParsePairs(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, passage, pairs[0].Passage)
}

func TestReadPairs_MissingFile(t *testing.T) {
	_, _, err := dataset.ReadPairs(filepath.Join(t.TempDir(), "nope.tsv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open pairs file")
}

func TestReadPairs_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.tsv")
	require.NoError(t, os.WriteFile(path, []byte("q\tp\n"), 0644))

	pairs, stats, err := dataset.ReadPairs(path)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, 1, stats.Lines)
}

func TestTripletWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triplets.tsv")

	tw, err := dataset.OpenTripletWriter(path)
	require.NoError(t, err)

	require.NoError(t, tw.Write(dataset.Triplet{
		Query:    "what is a cat",
		Positive: "A cat is a small mammal.",
		Negative: "A dog is a domesticated canine.",
	}))
	require.NoError(t, tw.Write(dataset.Triplet{
		Query:    "q2",
		Positive: "p2",
		Negative: "n2",
	}))
	assert.Equal(t, 2, tw.Count())
	require.NoError(t, tw.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	want := "what is a cat\tA cat is a small mammal.\tA dog is a domesticated canine.\n" +
		"q2\tp2\tn2\n"
	assert.Equal(t, want, string(data))
}

func TestTripletWriter_Truncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triplets.tsv")
	require.NoError(t, os.WriteFile(path, []byte("stale contents\n"), 0644))

	tw, err := dataset.OpenTripletWriter(path)
	require.NoError(t, err)
	require.NoError(t, tw.Write(dataset.Triplet{Query: "q", Positive: "p", Negative: "n"}))
	require.NoError(t, tw.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "q\tp\tn\n", string(data))
}
