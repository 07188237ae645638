package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/convert"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/text"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single indexing cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service",
		"data_dir", cfg.Index.DataDir,
		"index_context", cfg.Worker.IndexContext,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	db, err := database.New(cfg.Catalog)
	if err != nil {
		slog.Error("failed to connect to catalog", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	works := catalog.NewStore(db)
	if err := works.EnsureSchema(ctx); err != nil {
		slog.Error("failed to prepare catalog schema", "error", err)
		os.Exit(1)
	}

	granular, err := indexstore.Open(cfg.Index.DataDir, indexstore.Granular, indexstore.WithMaxSegments(cfg.Index.MaxSegmentsBeforeMerge))
	if err != nil {
		slog.Error("failed to open granular index", "error", err)
		os.Exit(1)
	}
	var ctxStore *indexstore.Store
	if cfg.Worker.IndexContext {
		ctxStore, err = indexstore.Open(cfg.Index.DataDir, indexstore.Context, indexstore.WithMaxSegments(cfg.Index.MaxSegmentsBeforeMerge))
		if err != nil {
			slog.Error("failed to open context index", "error", err)
			os.Exit(1)
		}
	}

	embedder, closer, err := embedding.New(cfg.Embedding, m)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}
	defer closer.Close()
	batcher, err := embedding.NewBatcher(embedder, cfg.Embedding.BatchSize, cfg.Embedding.Concurrency, m)
	if err != nil {
		slog.Error("failed to create embedding batcher", "error", err)
		os.Exit(1)
	}
	defer batcher.Close()

	var (
		publisher indexer.Publisher
		collector *analytics.Collector
	)
	if cfg.Kafka.Enabled {
		updates := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexUpdated)
		defer updates.Close()
		publisher = updates

		events := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer events.Close()
		collector = analytics.NewCollector(events, 1000, 50, 2*time.Second)
		collector.Start(ctx)
		defer collector.Close()
	}

	worker := indexer.NewWorker(
		works,
		convert.NewPDFToText(cfg.Converter),
		pipeline.NewProcessor("", text.NewRuleSegmenter()),
		batcher,
		granular, pipeline.PolicyFromConfig(indexstore.Granular, cfg.Index.Granular, cfg.Index.Denylist),
		ctxStore, pipeline.PolicyFromConfig(indexstore.Context, cfg.Index.Context, cfg.Index.Denylist),
		publisher, collector, m,
		indexer.WorkerOptionsFromConfig(cfg.Worker),
	)

	if *once {
		report, err := worker.RunOnce(ctx)
		if err != nil {
			slog.Error("indexing cycle failed", "error", err)
			os.Exit(1)
		}
		slog.Info("indexing cycle finished",
			"pending", report.Pending,
			"processed", report.Processed,
			"deferred", report.Deferred,
			"failed_conversion", report.FailedConversion,
			"failed_processing", report.FailedProcessing,
			"granular_rows", report.GranularRows,
			"context_rows", report.ContextRows,
		)
		return
	}

	shutdownMetrics := func(context.Context) error { return nil }
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}()

	if cfg.Kafka.Enabled {
		ingested := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.WorkIngested, "indexer", indexer.HandleWorkIngested(worker), kafka.FromStart())
		go func() {
			if err := ingested.Start(ctx); err != nil {
				slog.Error("work-ingested consumer error", "error", err)
			}
		}()
		slog.Info("indexer listening for uploads", "topic", cfg.Kafka.Topics.WorkIngested)
	}

	worker.Start(ctx)
	slog.Info("indexer service stopped")
}
