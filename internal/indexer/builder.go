package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/chunker"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/filter"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/metrics"
)

// ErrEmptyRebuild is returned when a rebuild over a non-empty catalog would
// leave the flavor without usable rows. The previous generation is kept.
var ErrEmptyRebuild = errors.New("rebuild produced no usable rows")

// BuildReport summarizes a full rebuild of one flavor.
type BuildReport struct {
	Flavor        string        `json:"flavor"`
	Works         int           `json:"works"`
	Indexed       int           `json:"indexed"`
	Skipped       []int64       `json:"skipped,omitempty"`
	Rows          int           `json:"rows"`
	Filtered      filter.Stats  `json:"filtered"`
	FailedBatches int           `json:"failed_batches"`
	Generation    uint64        `json:"generation"`
	Duration      time.Duration `json:"duration"`
}

// Builder rebuilds a flavor from scratch out of every PROCESSED work. It
// must not run while a Worker writes to the same store.
type Builder struct {
	catalog     Catalog
	processor   *pipeline.Processor
	batcher     *embedding.Batcher
	publisher   Publisher
	metrics     *metrics.Metrics
	concurrency int
	logger      *slog.Logger
}

func NewBuilder(cat Catalog, proc *pipeline.Processor, batcher *embedding.Batcher, publisher Publisher, m *metrics.Metrics, concurrency int) *Builder {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Builder{
		catalog:     cat,
		processor:   proc,
		batcher:     batcher,
		publisher:   publisher,
		metrics:     m,
		concurrency: concurrency,
		logger:      slog.Default().With("component", "index-builder"),
	}
}

// Build replaces store's contents. Granular rows keep positions for failed
// embedding batches as zero vectors; context rows of failed batches are
// dropped. Works whose text cannot be read are skipped and logged. When the
// catalog has works but every one was skipped, every embedding batch failed
// or no row survived, Build returns ErrEmptyRebuild without touching store.
func (b *Builder) Build(ctx context.Context, store *indexstore.Store, policy pipeline.Policy) (*BuildReport, error) {
	start := time.Now()
	flavor := store.Flavor()
	works, err := b.catalog.List(ctx, catalog.Filter{Status: catalog.StatusProcessed})
	if err != nil {
		return nil, fmt.Errorf("listing processed works: %w", err)
	}
	b.logger.Info("rebuilding index", "flavor", flavor, "works", len(works))

	results := make([]*pipeline.Result, len(works))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i := range works {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := b.processor.Process(&works[i], policy)
			if err != nil {
				b.logger.Warn("skipping work", "work_id", works[i].ID, "title", works[i].Title, "error", err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &BuildReport{Flavor: flavor, Works: len(works)}
	var chunks []chunker.Chunk
	for i, res := range results {
		if res == nil {
			report.Skipped = append(report.Skipped, works[i].ID)
			continue
		}
		report.Filtered.Add(res.Stats)
		observeFilter(b.metrics, flavor, res.Stats)
		if len(res.Chunks) > 0 {
			report.Indexed++
		}
		chunks = append(chunks, res.Chunks...)
	}

	failure := embedding.SkipFailed
	if flavor == indexstore.Granular {
		failure = embedding.ZeroFill
	}
	batch, err := b.batcher.Embed(ctx, chunkTexts(chunks), failure)
	if err != nil {
		return nil, fmt.Errorf("embedding %s chunks: %w", flavor, err)
	}
	report.FailedBatches = batch.FailedBatches
	records := toRecords(chunks, batch.Vectors, batch.Kept)
	if len(works) > 0 {
		var reason string
		switch {
		case len(report.Skipped) == len(works):
			reason = "every work was skipped"
		case batch.Batches > 0 && batch.FailedBatches == batch.Batches:
			reason = "every embedding batch failed"
		case len(records) == 0:
			reason = "no rows survived"
		}
		if reason != "" {
			b.logger.Error("refusing to replace index",
				"flavor", flavor,
				"reason", reason,
				"works", len(works),
				"skipped", len(report.Skipped),
				"failed_batches", batch.FailedBatches,
				"generation", store.Generation(),
			)
			return nil, fmt.Errorf("%w: %s for %s", ErrEmptyRebuild, reason, flavor)
		}
	}
	if err := store.Replace(records); err != nil {
		return nil, fmt.Errorf("writing %s index: %w", flavor, err)
	}
	report.Rows = len(records)
	report.Generation = store.Generation()
	report.Duration = time.Since(start)

	ids, err := store.WorkIDs()
	if err == nil {
		if err := publishUpdate(ctx, b.publisher, store, ids, true); err != nil {
			b.logger.Error("publishing index update failed", "flavor", flavor, "error", err)
		}
	}
	b.logger.Info("index rebuilt",
		"flavor", flavor,
		"works", report.Works,
		"indexed", report.Indexed,
		"skipped", len(report.Skipped),
		"rows", report.Rows,
		"failed_batches", report.FailedBatches,
		"duration", report.Duration,
	)
	return report, nil
}
