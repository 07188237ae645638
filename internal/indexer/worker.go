package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/chunker"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/convert"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/filter"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/metrics"
)

// CycleReport summarizes one incremental pass.
type CycleReport struct {
	Pending          int          `json:"pending"`
	Processed        []int64      `json:"processed,omitempty"`
	Recovered        []int64      `json:"recovered,omitempty"`
	Deferred         []int64      `json:"deferred,omitempty"`
	FailedConversion []int64      `json:"failed_conversion,omitempty"`
	FailedProcessing []int64      `json:"failed_processing,omitempty"`
	GranularRows     int          `json:"granular_rows"`
	ContextRows      int          `json:"context_rows"`
	Filtered         filter.Stats `json:"filtered"`
	FailedBatches    int          `json:"failed_batches"`
}

// Idle reports whether the cycle found nothing to do.
func (r *CycleReport) Idle() bool { return r.Pending == 0 }

// flavorTarget is one store the worker appends to.
type flavorTarget struct {
	store  *indexstore.Store
	policy pipeline.Policy
}

// prepared is one work after conversion and chunking.
type prepared struct {
	work    catalog.Work
	status  catalog.Status
	reason  error
	chunks  map[string][]chunker.Chunk
	stats   map[string]filter.Stats
	started time.Time
}

type WorkerOptions struct {
	PollInterval time.Duration
	ErrorBackoff time.Duration
	Concurrency  int
}

func WorkerOptionsFromConfig(cfg config.WorkerConfig) WorkerOptions {
	return WorkerOptions{
		PollInterval: cfg.PollInterval,
		ErrorBackoff: cfg.ErrorBackoff,
		Concurrency:  cfg.Concurrency,
	}
}

// Worker is the single writer of the index stores. Each cycle turns the
// catalog's PENDING works into index rows and a terminal status.
type Worker struct {
	catalog   Catalog
	converter convert.Converter
	processor *pipeline.Processor
	batcher   *embedding.Batcher
	targets   []flavorTarget
	publisher Publisher
	collector *analytics.Collector
	metrics   *metrics.Metrics
	opts      WorkerOptions
	nudge     chan struct{}
	logger    *slog.Logger
}

// NewWorker indexes into granular and, when ctxStore is non-nil, into the
// context store too. publisher, collector and m may be nil.
func NewWorker(cat Catalog, conv convert.Converter, proc *pipeline.Processor, batcher *embedding.Batcher,
	granular *indexstore.Store, granularPolicy pipeline.Policy,
	ctxStore *indexstore.Store, contextPolicy pipeline.Policy,
	publisher Publisher, collector *analytics.Collector, m *metrics.Metrics, opts WorkerOptions) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = 30 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	targets := []flavorTarget{{store: granular, policy: granularPolicy}}
	if ctxStore != nil {
		targets = append(targets, flavorTarget{store: ctxStore, policy: contextPolicy})
	}
	return &Worker{
		catalog:   cat,
		converter: conv,
		processor: proc,
		batcher:   batcher,
		targets:   targets,
		publisher: publisher,
		collector: collector,
		metrics:   m,
		opts:      opts,
		nudge:     make(chan struct{}, 1),
		logger:    slog.Default().With("component", "indexer"),
	}
}

// Nudge asks for a cycle before the next poll tick.
func (w *Worker) Nudge() {
	select {
	case w.nudge <- struct{}{}:
	default:
	}
}

// Start runs cycles until ctx is done. A failed or panicking cycle is logged
// and followed by the error back-off instead of the poll interval.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("indexer worker started",
		"poll_interval", w.opts.PollInterval,
		"concurrency", w.opts.Concurrency,
		"flavors", len(w.targets),
	)
	for {
		wait := w.opts.PollInterval
		if _, err := w.safeRunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				w.logger.Info("indexer worker stopping")
				return
			}
			w.logger.Error("indexing cycle failed", "error", err, "backoff", w.opts.ErrorBackoff)
			wait = w.opts.ErrorBackoff
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("indexer worker stopping")
			return
		case <-w.nudge:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (w *Worker) safeRunOnce(ctx context.Context) (report *CycleReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("indexing cycle panicked: %v", r)
			w.observeCycle("error")
		}
	}()
	return w.RunOnce(ctx)
}

func (w *Worker) observeCycle(result string) {
	if w.metrics != nil {
		w.metrics.WorkerCyclesTotal.WithLabelValues(result).Inc()
	}
}

// RunOnce processes every PENDING work once. With nothing pending it
// touches neither the stores nor the catalog.
func (w *Worker) RunOnce(ctx context.Context) (*CycleReport, error) {
	pending, err := w.catalog.ListPending(ctx)
	if err != nil {
		w.observeCycle("error")
		return nil, fmt.Errorf("listing pending works: %w", err)
	}
	report := &CycleReport{Pending: len(pending)}
	if len(pending) == 0 {
		w.observeCycle("idle")
		return report, nil
	}
	w.logger.Info("indexing cycle started", "pending", len(pending))

	present := make(map[string]map[int64]bool, len(w.targets))
	for _, t := range w.targets {
		set, err := presentWorks(t.store)
		if err != nil {
			w.observeCycle("error")
			return nil, fmt.Errorf("reading %s manifest: %w", t.store.Flavor(), err)
		}
		present[t.store.Flavor()] = set
	}

	works, err := w.prepareAll(ctx, pending, present)
	if err != nil {
		w.observeCycle("error")
		return nil, err
	}

	survivors := make(map[string]map[int64]int, len(w.targets))
	appended := make(map[string][]int64, len(w.targets))
	for _, t := range w.targets {
		flavor := t.store.Flavor()
		var chunks []chunker.Chunk
		for _, p := range works {
			chunks = append(chunks, p.chunks[flavor]...)
		}
		batch, err := w.batcher.Embed(ctx, chunkTexts(chunks), embedding.SkipFailed)
		if err != nil {
			w.observeCycle("error")
			return nil, fmt.Errorf("embedding %s chunks: %w", flavor, err)
		}
		report.FailedBatches += batch.FailedBatches
		records := toRecords(chunks, batch.Vectors, batch.Kept)
		if err := t.store.Append(records); err != nil {
			w.observeCycle("error")
			return nil, fmt.Errorf("appending to %s index: %w", flavor, err)
		}
		counts := make(map[int64]int)
		for _, r := range records {
			counts[r.WorkID]++
		}
		survivors[flavor] = counts
		for id := range counts {
			appended[flavor] = append(appended[flavor], id)
		}
		if flavor == indexstore.Granular {
			report.GranularRows += len(records)
		} else {
			report.ContextRows += len(records)
		}
	}

	for _, p := range works {
		w.settle(ctx, p, survivors, report)
	}

	for _, t := range w.targets {
		flavor := t.store.Flavor()
		if len(appended[flavor]) == 0 {
			continue
		}
		if err := publishUpdate(ctx, w.publisher, t.store, appended[flavor], false); err != nil {
			w.logger.Error("publishing index update failed", "flavor", flavor, "error", err)
		}
		if _, err := t.store.Compact(); err != nil {
			w.logger.Error("compaction failed", "flavor", flavor, "error", err)
		}
	}

	w.observeCycle("indexed")
	w.logger.Info("indexing cycle finished",
		"pending", report.Pending,
		"processed", len(report.Processed),
		"recovered", len(report.Recovered),
		"deferred", len(report.Deferred),
		"failed_conversion", len(report.FailedConversion),
		"failed_processing", len(report.FailedProcessing),
		"granular_rows", report.GranularRows,
		"context_rows", report.ContextRows,
	)
	return report, nil
}

// prepareAll converts and chunks works on a bounded pool, keeping catalog
// order.
func (w *Worker) prepareAll(ctx context.Context, pending []catalog.Work, present map[string]map[int64]bool) ([]*prepared, error) {
	out := make([]*prepared, len(pending))
	pool, err := ants.NewPool(w.opts.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg        sync.WaitGroup
		submitErr error
	)
	for i := range pending {
		idx := i
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			out[idx] = w.prepare(ctx, pending[idx], present)
		}); err != nil {
			wg.Done()
			submitErr = fmt.Errorf("submitting work %d: %w", pending[idx].ID, err)
			break
		}
	}
	wg.Wait()
	if submitErr != nil {
		return nil, submitErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (w *Worker) prepare(ctx context.Context, work catalog.Work, present map[string]map[int64]bool) *prepared {
	p := &prepared{
		work:    work,
		chunks:  make(map[string][]chunker.Chunk),
		stats:   make(map[string]filter.Stats),
		started: time.Now(),
	}
	var needed []flavorTarget
	for _, t := range w.targets {
		if !present[t.store.Flavor()][work.ID] {
			needed = append(needed, t)
		}
	}
	if len(needed) == 0 {
		p.status = catalog.StatusProcessed
		return p
	}

	if work.PDFPath != "" {
		src, dst := w.processor.Path(work.PDFPath), w.processor.Path(work.TextPath)
		if err := w.converter.Convert(ctx, src, dst); err != nil {
			p.status, p.reason = catalog.StatusFailedConversion, err
			return p
		}
	}
	sentences, _, err := w.processor.Sentences(&work)
	if err != nil {
		p.status, p.reason = catalog.StatusFailedProcessing, err
		return p
	}
	for _, t := range needed {
		flavor := t.store.Flavor()
		res, err := pipeline.Apply(work.ID, sentences, t.policy)
		if err != nil {
			p.status, p.reason = catalog.StatusFailedProcessing, err
			return p
		}
		if res.TooShort {
			w.logger.Info("work too short for one window",
				"work_id", work.ID,
				"flavor", flavor,
				"sentences", res.Sentences,
				"window", t.policy.Chunk.Size,
			)
		}
		observeFilter(w.metrics, flavor, res.Stats)
		p.stats[flavor] = res.Stats
		if flavor == indexstore.Granular && len(res.Chunks) == 0 {
			p.status = catalog.StatusFailedProcessing
			p.reason = fmt.Errorf("no granular chunk survived filtering (%d sentences)", res.Sentences)
			p.chunks = map[string][]chunker.Chunk{}
			return p
		}
		p.chunks[flavor] = res.Chunks
	}
	return p
}

// settle writes the work's status. A work that produced chunks for some
// store but lost all of them to embedding failures stays PENDING; the
// stores it already reached are skipped on the next cycle.
func (w *Worker) settle(ctx context.Context, p *prepared, survivors map[string]map[int64]int, report *CycleReport) {
	id := p.work.ID
	for _, st := range p.stats {
		report.Filtered.Add(st)
	}

	status := p.status
	if status == "" {
		status = catalog.StatusProcessed
		for flavor, chunks := range p.chunks {
			if len(chunks) > 0 && survivors[flavor][id] == 0 {
				status = catalog.StatusPending
			}
		}
	}

	switch status {
	case catalog.StatusPending:
		report.Deferred = append(report.Deferred, id)
		w.logger.Warn("work deferred, embeddings failed", "work_id", id)
		return
	case catalog.StatusFailedConversion:
		report.FailedConversion = append(report.FailedConversion, id)
		w.logger.Error("conversion failed", "work_id", id, "title", p.work.Title, "error", p.reason)
	case catalog.StatusFailedProcessing:
		report.FailedProcessing = append(report.FailedProcessing, id)
		w.logger.Error("processing failed", "work_id", id, "title", p.work.Title, "error", p.reason)
	case catalog.StatusProcessed:
		if len(p.chunks) == 0 {
			report.Recovered = append(report.Recovered, id)
		} else {
			report.Processed = append(report.Processed, id)
		}
	}

	if err := w.catalog.UpdateStatus(ctx, id, status); err != nil {
		w.logger.Error("updating work status failed", "work_id", id, "status", status, "error", err)
		return
	}
	if w.metrics != nil {
		w.metrics.WorksIndexedTotal.WithLabelValues(string(status)).Inc()
	}
	for flavor, st := range p.stats {
		w.collector.Track(indexEvent(&p.work, flavor, status, survivors[flavor][id], st.Total()-st.Accepted, time.Since(p.started)))
	}
}
