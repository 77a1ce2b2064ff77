// Negmine mines hard negatives for training retrieval models.
//
// Given a TSV of (query, positive passage) pairs, negmine embeds every
// distinct passage, loads the vectors into a similarity index, searches
// the index with each query, and writes (query, positive, negative)
// triplets where the negative is a retrieved passage that is not the
// query's own positive.
//
// Configuration is loaded from a YAML file plus NEGMINE_* environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Mine triplets with the default local stack
//	negmine mine --pairs pairs.tsv --out triplets.tsv
//
//	# Inspect the vector store
//	negmine collections list
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	// global flags
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "negmine",
	Short: "Hard-negative miner for retrieval training data",
	Long: `negmine builds training triplets for retrieval models.

It reads (query, positive passage) pairs from a TSV file, indexes the
passages in a vector store, retrieves the nearest passages for every
query, and emits (query, positive, negative) triplets suitable for
contrastive training.

Examples:
  # Mine with the built-in local stack (fastembed + chromem)
  negmine mine --pairs pairs.tsv --out triplets.tsv

  # Reproducible run against a Qdrant server
  NEGMINE_VECTORSTORE_PROVIDER=qdrant negmine mine \
    --pairs pairs.tsv --out triplets.tsv --seed 42

  # Keep the collection around for inspection
  negmine mine --pairs pairs.tsv --out triplets.tsv \
    --collection msmarco_dev --keep-collection`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default ~/.config/negmine/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: console or json")
}
