package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/metrics"
)

// DefaultBatchSize is the number of texts sent to the embedder per call.
const DefaultBatchSize = 512

// FailurePolicy decides what happens to the texts of a batch that failed.
type FailurePolicy int

const (
	// SkipFailed drops the failed batch; Batch.Kept tells the caller which
	// inputs survived so it can drop the matching metadata.
	SkipFailed FailurePolicy = iota
	// ZeroFill substitutes zero vectors so the output stays aligned with
	// the input.
	ZeroFill
)

func (p FailurePolicy) String() string {
	if p == ZeroFill {
		return "zero_fill"
	}
	return "skip_failed"
}

// Batch is the outcome of one Batcher.Embed call. Vectors[i] belongs to
// input Kept[i].
type Batch struct {
	Vectors       [][]float32
	Kept          []int
	Batches       int
	FailedBatches int
	Dimension     int
}

// Batcher splits inputs into fixed-size batches and embeds them on a
// bounded worker pool.
type Batcher struct {
	embedder  Embedder
	batchSize int
	pool      *ants.Pool
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewBatcher creates a Batcher. Non-positive sizes fall back to
// DefaultBatchSize and a single worker.
func NewBatcher(e Embedder, batchSize, concurrency int, m *metrics.Metrics) (*Batcher, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, fmt.Errorf("creating embedding pool: %w", err)
	}
	return &Batcher{
		embedder:  e,
		batchSize: batchSize,
		pool:      pool,
		metrics:   m,
		logger:    slog.Default().With("component", "embed-batcher", "embedder", e.Name()),
	}, nil
}

// Close releases the worker pool.
func (b *Batcher) Close() {
	b.pool.Release()
}

// Embedder returns the wrapped embedder.
func (b *Batcher) Embedder() Embedder {
	return b.embedder
}

type batchResult struct {
	lo, hi  int
	vectors [][]float32
	err     error
}

// Embed embeds texts batch by batch. A batch fails when the embedder errors
// or returns a different number of vectors than texts; failed batches are
// handled per policy. Embed itself fails only when ctx ends or a zero-fill
// is needed but no dimension is known.
func (b *Batcher) Embed(ctx context.Context, texts []string, policy FailurePolicy) (*Batch, error) {
	if len(texts) == 0 {
		return &Batch{Dimension: b.embedder.Dimension()}, nil
	}
	nb := (len(texts) + b.batchSize - 1) / b.batchSize
	results := make([]batchResult, nb)

	var wg sync.WaitGroup
	for i := 0; i < nb; i++ {
		lo := i * b.batchSize
		hi := min(lo+b.batchSize, len(texts))
		results[i] = batchResult{lo: lo, hi: hi}
		wg.Add(1)
		idx := i
		err := b.pool.Submit(func() {
			defer wg.Done()
			vecs, err := b.embedder.EmbedTexts(ctx, texts[lo:hi])
			if err == nil && len(vecs) != hi-lo {
				err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), hi-lo)
			}
			results[idx].vectors = vecs
			results[idx].err = err
		})
		if err != nil {
			wg.Done()
			results[i].err = fmt.Errorf("submitting batch: %w", err)
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dim := b.embedder.Dimension()
	if dim <= 0 {
		for _, r := range results {
			if r.err == nil && len(r.vectors) > 0 {
				dim = len(r.vectors[0])
				break
			}
		}
	}
	for i := range results {
		if results[i].err != nil || dim <= 0 {
			continue
		}
		for _, v := range results[i].vectors {
			if len(v) != dim {
				results[i].err = fmt.Errorf("vector dimension %d, want %d", len(v), dim)
				break
			}
		}
	}

	out := &Batch{
		Vectors:   make([][]float32, 0, len(texts)),
		Kept:      make([]int, 0, len(texts)),
		Batches:   len(results),
		Dimension: dim,
	}
	for i, r := range results {
		if r.err == nil {
			b.observe("ok")
			out.Vectors = append(out.Vectors, r.vectors...)
			for j := r.lo; j < r.hi; j++ {
				out.Kept = append(out.Kept, j)
			}
			continue
		}
		b.observe("failed")
		out.FailedBatches++
		b.logger.Warn("embedding batch failed",
			"batch", i,
			"size", r.hi-r.lo,
			"policy", policy.String(),
			"error", r.err,
		)
		if policy != ZeroFill {
			continue
		}
		if dim <= 0 {
			return nil, errors.New("cannot zero-fill failed batch: embedding dimension unknown")
		}
		for j := r.lo; j < r.hi; j++ {
			out.Vectors = append(out.Vectors, make([]float32, dim))
			out.Kept = append(out.Kept, j)
		}
	}
	return out, nil
}

func (b *Batcher) observe(status string) {
	if b.metrics != nil {
		b.metrics.EmbedBatchesTotal.WithLabelValues(status).Inc()
	}
}
