// Command ingestion starts the work upload HTTP service.
//
// The service accepts new works via POST /api/v1/works, stores the PDF,
// catalogues the work and, in direct mode, publishes it to Kafka for the
// indexer. Catalogued PDFs are served under their download URL.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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
	"path"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Server.Port, "mode", cfg.Ingestion.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	slog.Info("connected to catalog", "driver", db.Driver())

	var events publisher.EventPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.WorkIngested)
		defer producer.Close()
		events = producer
		slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.WorkIngested)
	} else if cfg.Ingestion.Mode == "direct" {
		slog.Warn("kafka disabled, direct uploads wait for the indexer's next poll")
	}

	m := metrics.New()
	pub := publisher.New(works, events, cfg.Ingestion, "")
	h := handler.New(pub, works, cfg.Ingestion.MaxUploadSize)

	checker := health.NewChecker()
	checker.Register("catalog", health.PingCheck(works.Ping, false))

	mux := http.NewServeMux()
	h.Register(mux)
	pdfPrefix := path.Join("/", cfg.Ingestion.PDFDir) + "/"
	mux.Handle("GET "+pdfPrefix, http.StripPrefix(pdfPrefix, http.FileServer(http.Dir(cfg.Ingestion.PDFDir))))
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID, middleware.Metrics(m)),
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
	slog.Info("ingestion service listening", "addr", server.Addr, "pdfs", pdfPrefix)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
