package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/negmine/internal/dataset"
	"github.com/fyrsmithlabs/negmine/internal/mining"
)

var (
	// mine command flags
	minePairs       string
	mineOut         string
	mineCollection  string
	mineModel       string
	mineTopK        int
	mineUpsertBatch int
	mineQueryBatch  int
	mineSeed        int64
	mineKeep        bool
	mineProgress    bool
)

func init() {
	rootCmd.AddCommand(mineCmd)

	mineCmd.Flags().StringVar(&minePairs, "pairs", "", "input TSV of (query, positive passage) pairs (required)")
	mineCmd.Flags().StringVar(&mineOut, "out", "", "output TSV for (query, positive, negative) triplets (required)")
	mineCmd.Flags().StringVar(&mineCollection, "collection", "", "collection name (default: a fresh auto-generated name)")
	mineCmd.Flags().StringVar(&mineModel, "model", "", "embedding model (overrides config)")
	mineCmd.Flags().IntVar(&mineTopK, "top-k", 0, "candidates retrieved per query (overrides config)")
	mineCmd.Flags().IntVar(&mineUpsertBatch, "upsert-batch", 0, "passages encoded and upserted per batch (overrides config)")
	mineCmd.Flags().IntVar(&mineQueryBatch, "query-batch", 0, "queries searched per batch (overrides config)")
	mineCmd.Flags().Int64Var(&mineSeed, "seed", 0, "candidate shuffle seed, 0 means time-seeded")
	mineCmd.Flags().BoolVar(&mineKeep, "keep-collection", false, "keep the collection after the run instead of dropping it")
	mineCmd.Flags().BoolVar(&mineProgress, "progress", false, "render a progress bar on stderr")
	_ = mineCmd.MarkFlagRequired("pairs")
	_ = mineCmd.MarkFlagRequired("out")
}

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Mine hard negatives from a pairs file",
	Long: `Mine hard negatives from a TSV of (query, positive passage) pairs.

Every distinct passage is embedded and indexed, then each query retrieves
its nearest passages. The first retrieved passage whose text differs from
the query's positive becomes the negative; queries whose candidates are
all the positive itself are skipped.

Examples:
  # Mine with the built-in local stack
  negmine mine --pairs pairs.tsv --out triplets.tsv

  # Reproducible run with a progress bar
  negmine mine --pairs pairs.tsv --out triplets.tsv --seed 42 --progress

  # Reuse a named collection across runs
  negmine mine --pairs pairs.tsv --out triplets.tsv \
    --collection msmarco_dev --keep-collection`,
	RunE: runMine,
}

func runMine(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rt, err := initRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger.Underlying()

	// Cancel the run on SIGINT/SIGTERM so partial work shuts down cleanly.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		logger.Warn("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	applyMineOverrides(cmd, rt)

	pairs, rstats, err := dataset.ReadPairs(minePairs)
	if err != nil {
		return err
	}
	logger.Info("loaded pairs",
		zap.String("path", minePairs),
		zap.Int("lines", rstats.Lines),
		zap.Int("pairs", len(pairs)),
		zap.Int("skipped", rstats.Skipped))
	if rstats.Skipped > 0 {
		logger.Warn("skipped malformed lines", zap.Ints("line_numbers", rstats.SkippedLines))
	}

	provider, err := rt.openProvider()
	if err != nil {
		return err
	}
	defer provider.Close()

	index, err := rt.openIndex()
	if err != nil {
		return err
	}
	defer index.Close()

	collection := rt.cfg.Mining.Collection
	if collection == "" {
		collection = autoCollectionName()
	}

	if err := index.EnsureCollection(ctx, collection, provider.Dimension()); err != nil {
		return fmt.Errorf("ensuring collection %q: %w", collection, err)
	}
	logger.Info("using collection",
		zap.String("collection", collection),
		zap.String("model", provider.ModelName()),
		zap.Int("dimension", provider.Dimension()))

	if !rt.cfg.Mining.KeepCollection {
		// Drop with a fresh context: the run context may already be
		// canceled when cleanup fires.
		defer func() {
			dropCtx, dropCancel := context.WithTimeout(context.Background(), rt.cfg.VectorStore.Timeout.Duration())
			defer dropCancel()
			if err := index.DeleteCollection(dropCtx, collection); err != nil {
				logger.Warn("dropping collection failed",
					zap.String("collection", collection), zap.Error(err))
				return
			}
			logger.Info("dropped collection", zap.String("collection", collection))
		}()
	}

	writer, err := dataset.OpenTripletWriter(mineOut)
	if err != nil {
		return err
	}

	miner, err := mining.New(provider, index, mining.Config{
		Collection:      collection,
		UpsertBatchSize: rt.cfg.Mining.UpsertBatchSize,
		QueryBatchSize:  rt.cfg.Mining.QueryBatchSize,
		TopK:            rt.cfg.Mining.TopK,
		Seed:            rt.cfg.Mining.Seed,
		Progress:        mineProgress,
	}, logger)
	if err != nil {
		writer.Close()
		return err
	}

	stats, runErr := miner.Run(ctx, pairs, writer)
	if cerr := writer.Close(); cerr != nil && runErr == nil {
		runErr = cerr
	}
	if runErr != nil {
		return runErr
	}

	pushMetrics(rt)

	fmt.Printf("Mined %d triplets from %d pairs (%d distinct passages)\n",
		stats.Triplets, stats.Pairs, stats.DistinctPassages)
	if stats.SkippedNoNegative > 0 {
		fmt.Printf("Skipped %d queries with no usable negative\n", stats.SkippedNoNegative)
	}
	if rstats.Skipped > 0 {
		fmt.Printf("Skipped %d malformed input lines\n", rstats.Skipped)
	}
	fmt.Printf("Output: %s\n", mineOut)

	return nil
}

// applyMineOverrides copies explicitly set flags over the loaded config.
// Only changed flags override, so config and environment values survive.
func applyMineOverrides(cmd *cobra.Command, rt *runtime) {
	if cmd.Flags().Changed("collection") {
		rt.cfg.Mining.Collection = mineCollection
	}
	if cmd.Flags().Changed("model") {
		rt.cfg.Embeddings.Model = mineModel
	}
	if cmd.Flags().Changed("top-k") {
		rt.cfg.Mining.TopK = mineTopK
	}
	if cmd.Flags().Changed("upsert-batch") {
		rt.cfg.Mining.UpsertBatchSize = mineUpsertBatch
	}
	if cmd.Flags().Changed("query-batch") {
		rt.cfg.Mining.QueryBatchSize = mineQueryBatch
	}
	if cmd.Flags().Changed("seed") {
		rt.cfg.Mining.Seed = mineSeed
	}
	if cmd.Flags().Changed("keep-collection") {
		rt.cfg.Mining.KeepCollection = mineKeep
	}
}

// autoCollectionName returns a fresh collection name for a single run.
func autoCollectionName() string {
	return "negmine_" + uuid.New().String()[:8]
}

// pushMetrics pushes the accumulated Prometheus metrics to the configured
// Pushgateway. Batch jobs have no scrape endpoint, so the push at the end
// of a run is the only way the counters leave the process. Failures are
// logged, never fatal.
func pushMetrics(rt *runtime) {
	if rt.cfg.Push.URL == "" {
		return
	}
	err := push.New(rt.cfg.Push.URL, rt.cfg.Push.Job).
		Gatherer(prometheus.DefaultGatherer).
		Push()
	if err != nil {
		rt.logger.Underlying().Warn("pushing metrics failed",
			zap.String("url", rt.cfg.Push.URL), zap.Error(err))
		return
	}
	rt.logger.Underlying().Debug("pushed metrics",
		zap.String("url", rt.cfg.Push.URL), zap.String("job", rt.cfg.Push.Job))
}
