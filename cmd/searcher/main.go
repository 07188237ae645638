package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/search"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/text"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/scriptura/pkg/redis"
)

const snapshotInterval = time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "data_dir", cfg.Index.DataDir)

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

	var stores []*indexstore.Store
	for _, flavor := range []string{indexstore.Granular, indexstore.Context} {
		store, err := indexstore.Open(cfg.Index.DataDir, flavor, indexstore.ReadOnly())
		if err != nil {
			slog.Error("failed to open index store", "flavor", flavor, "error", err)
			os.Exit(1)
		}
		stores = append(stores, store)
	}

	embedder, closer, err := embedding.New(cfg.Embedding, m)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}
	defer closer.Close()
	slog.Info("embedder ready", "name", embedder.Name(), "dimension", embedder.Dimension())

	svc, err := search.NewService(stores, embedder, text.NewRuleSegmenter(), works, search.OptionsFromConfig(cfg.Search), m)
	if err != nil {
		slog.Error("failed to create search service", "error", err)
		os.Exit(1)
	}

	var queryCache *search.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = search.NewQueryCache(redisClient, cfg.Redis.CacheTTL, m)
			svc.OnReload(func(flavor string, generation uint64) {
				deleted, err := queryCache.Invalidate(context.Background())
				if err != nil {
					slog.Error("cache invalidation after reload failed", "flavor", flavor, "error", err)
					return
				}
				slog.Info("search cache invalidated", "flavor", flavor, "generation", generation, "keys_deleted", deleted)
			})
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	if err := svc.ReloadAll(ctx); err != nil {
		slog.Error("failed to load indexes", "error", err)
		os.Exit(1)
	}

	if cfg.Search.WatchIndex {
		watcher, err := search.NewWatcher(svc)
		if err != nil {
			slog.Warn("index watcher unavailable, relying on kafka for reloads", "error", err)
		} else {
			go watcher.Run(ctx)
		}
	}

	aggregator := analytics.NewAggregator()
	snapshots := analytics.NewSnapshotStore(db)
	if err := snapshots.EnsureSchema(ctx); err != nil {
		slog.Warn("analytics snapshots disabled", "error", err)
		snapshots = nil
	} else if prev, err := snapshots.LatestSnapshot(ctx); err != nil {
		slog.Warn("failed to restore analytics snapshot", "error", err)
	} else if prev != nil {
		aggregator.Restore(*prev)
	}

	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		hostname, _ := os.Hostname()

		updates := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexUpdated, "searcher-"+hostname, svc.HandleIndexUpdated)
		go func() {
			if err := updates.Start(ctx); err != nil {
				slog.Error("index-updated consumer error", "error", err)
			}
		}()

		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 10000, 100, 2*time.Second)

		events := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, "analytics-"+hostname, aggregator.HandleMessage)
		go func() {
			if err := events.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()
		slog.Info("kafka consumers started",
			"index_topic", cfg.Kafka.Topics.IndexUpdated,
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
		)
	} else {
		collector = analytics.NewCollector(analytics.LocalPublisher{Aggregator: aggregator}, 10000, 100, 2*time.Second)
	}
	collector.Start(ctx)
	defer collector.Close()

	var snapshotsDone <-chan struct{}
	if snapshots != nil {
		snapshotsDone = snapshots.StartPeriodicSave(ctx, aggregator, snapshotInterval)
	}

	checker := health.NewChecker()
	checker.Register("catalog", health.PingCheck(works.Ping, false))
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping, true))
	} else {
		checker.Register("redis", health.PingCheck(nil, true))
	}
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		result := health.ComponentHealth{Status: health.StatusUp}
		var missing []string
		for _, st := range svc.Stats() {
			if st.Loaded {
				continue
			}
			missing = append(missing, st.Flavor)
			// Thematic search alone being down still leaves citations served.
			if st.Flavor == indexstore.Granular {
				result.Status = health.StatusDown
			} else if result.Status == health.StatusUp {
				result.Status = health.StatusDegraded
			}
		}
		if len(missing) > 0 {
			result.Message = fmt.Sprintf("not loaded: %v", missing)
		}
		return result
	})

	mux := http.NewServeMux()
	search.NewHandler(svc, queryCache, collector, m).Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Metrics(m),
		middleware.RateLimit(cfg.Search.RateLimit, cfg.Search.RateBurst),
		middleware.Timeout(cfg.Server.WriteTimeout),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdownMetrics := func(context.Context) error { return nil }
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	if snapshotsDone != nil {
		<-snapshotsDone
	}
	slog.Info("search service stopped")
}
