package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/text"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/metrics"
)

var buildCmd = &cobra.Command{
	Use:       "build granular|context|all",
	Short:     "Rebuild indexes from every PROCESSED work",
	ValidArgs: []string{indexstore.Granular, indexstore.Context, "all"},
	Long: `Re-chunks and re-embeds every PROCESSED work and replaces the index
wholesale. The indexer service must be stopped while a rebuild runs, since
both write the same segment logs.`,
	Args: cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flavors := []string{args[0]}
	if args[0] == "all" {
		flavors = []string{indexstore.Granular, indexstore.Context}
	}

	store, closeDB, err := openCatalog(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	m := metrics.New()
	embedder, closer, err := embedding.New(cfg.Embedding, m)
	if err != nil {
		return err
	}
	defer closer.Close()
	batcher, err := embedding.NewBatcher(embedder, cfg.Embedding.BatchSize, cfg.Embedding.Concurrency, m)
	if err != nil {
		return err
	}
	defer batcher.Close()

	var publisher indexer.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexUpdated)
		defer producer.Close()
		publisher = producer
	}

	builder := indexer.NewBuilder(store, pipeline.NewProcessor("", text.NewRuleSegmenter()), batcher, publisher, m, cfg.Worker.Concurrency)
	policies := map[string]pipeline.Policy{
		indexstore.Granular: pipeline.PolicyFromConfig(indexstore.Granular, cfg.Index.Granular, cfg.Index.Denylist),
		indexstore.Context:  pipeline.PolicyFromConfig(indexstore.Context, cfg.Index.Context, cfg.Index.Denylist),
	}

	for _, flavor := range flavors {
		target, err := indexstore.Open(cfg.Index.DataDir, flavor, indexstore.WithMaxSegments(cfg.Index.MaxSegmentsBeforeMerge))
		if err != nil {
			return err
		}
		report, err := builder.Build(ctx, target, policies[flavor])
		if err != nil {
			return fmt.Errorf("building %s index: %w", flavor, err)
		}
		cmd.Printf("%s: %d rows from %d of %d works (generation %d, %s)\n",
			flavor, report.Rows, report.Indexed, report.Works, report.Generation, report.Duration.Round(time.Millisecond))
		cmd.Printf("  filtered: %d oversized, %d too short, %d junk\n",
			report.Filtered.Oversized, report.Filtered.TooShort, report.Filtered.Junk)
		if len(report.Skipped) > 0 {
			cmd.Printf("  unreadable works skipped: %v\n", report.Skipped)
		}
		if report.FailedBatches > 0 {
			cmd.Printf("  embedding batches failed: %d\n", report.FailedBatches)
		}
	}
	return nil
}
