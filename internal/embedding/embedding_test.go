package embedding

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/resilience"
)

var errBoom = errors.New("boom")

// fakeEmbedder encodes each text's length in the first component.
type fakeEmbedder struct {
	dim       int
	reportDim bool
	failOn    string
	short     bool

	mu    sync.Mutex
	calls int
	seen  []string
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.seen = append(f.seen, texts...)
	f.mu.Unlock()
	for _, t := range texts {
		if f.failOn != "" && t == f.failOn {
			return nil, errBoom
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		v[0] = float32(len(t))
		out[i] = v
	}
	if f.short && len(out) > 1 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int {
	if f.reportDim {
		return f.dim
	}
	return 0
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newBatcher(t *testing.T, e Embedder, size int) (*Batcher, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	b, err := NewBatcher(e, size, 2, m)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b, m
}

func TestBatcherSkipFailed(t *testing.T) {
	e := &fakeEmbedder{dim: 4, reportDim: true, failOn: "bad"}
	b, m := newBatcher(t, e, 2)

	out, err := b.Embed(context.Background(), []string{"a", "bb", "bad", "dddd", "eeeee"}, SkipFailed)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 4}, out.Kept)
	require.Len(t, out.Vectors, 3)
	assert.Equal(t, float32(1), out.Vectors[0][0])
	assert.Equal(t, float32(2), out.Vectors[1][0])
	assert.Equal(t, float32(5), out.Vectors[2][0])
	assert.Equal(t, 3, out.Batches)
	assert.Equal(t, 1, out.FailedBatches)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmbedBatchesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbedBatchesTotal.WithLabelValues("failed")))
}

func TestBatcherZeroFill(t *testing.T) {
	e := &fakeEmbedder{dim: 3, failOn: "bad"}
	b, _ := newBatcher(t, e, 2)

	out, err := b.Embed(context.Background(), []string{"a", "bb", "bad", "dddd", "eeeee"}, ZeroFill)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, out.Kept)
	require.Len(t, out.Vectors, 5)
	assert.Equal(t, []float32{0, 0, 0}, out.Vectors[2])
	assert.Equal(t, []float32{0, 0, 0}, out.Vectors[3])
	assert.Equal(t, float32(5), out.Vectors[4][0])
	assert.Equal(t, 3, out.Dimension)
}

func TestBatcherWrongCountIsFailure(t *testing.T) {
	e := &fakeEmbedder{dim: 2, reportDim: true, short: true}
	b, _ := newBatcher(t, e, 2)

	out, err := b.Embed(context.Background(), []string{"a", "b", "c"}, SkipFailed)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, out.Kept)
	assert.Equal(t, 1, out.FailedBatches)
}

func TestBatcherZeroFillWithoutDimension(t *testing.T) {
	e := &fakeEmbedder{dim: 2, failOn: "x"}
	b, _ := newBatcher(t, e, 1)

	_, err := b.Embed(context.Background(), []string{"x"}, ZeroFill)
	assert.Error(t, err)
}

func TestBatcherEmpty(t *testing.T) {
	e := &fakeEmbedder{dim: 2, reportDim: true}
	b, _ := newBatcher(t, e, 2)

	out, err := b.Embed(context.Background(), nil, SkipFailed)
	require.NoError(t, err)
	assert.Empty(t, out.Vectors)
	assert.Equal(t, 0, e.callCount())
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashEmbedder(t *testing.T) {
	h := NewHash(64)
	vecs, err := h.EmbedTexts(context.Background(), []string{
		"o mar estava calmo naquela manhã",
		"o mar estava calmo naquela tarde",
		"dívidas e contratos do banco",
		"",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 4)

	again, _ := h.EmbedTexts(context.Background(), []string{"o mar estava calmo naquela manhã"})
	assert.Equal(t, vecs[0], again[0])
	assert.InDelta(t, 1.0, cosine(vecs[0], vecs[0]), 1e-6)
	assert.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
	assert.Equal(t, make([]float32, 64), vecs[3])
	assert.Equal(t, 64, h.Dimension())
}

func TestCachedEmbedder(t *testing.T) {
	e := &fakeEmbedder{dim: 3, reportDim: true}
	c, err := NewCached(e, "", true)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	first, err := c.EmbedTexts(context.Background(), []string{"alpha", "be"})
	require.NoError(t, err)
	assert.Equal(t, 1, e.callCount())

	second, err := c.EmbedTexts(context.Background(), []string{"alpha", "be"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, e.callCount())

	mixed, err := c.EmbedTexts(context.Background(), []string{"gamma", "alpha"})
	require.NoError(t, err)
	assert.Equal(t, 2, e.callCount())
	assert.Equal(t, float32(5), mixed[0][0])
	assert.Equal(t, float32(5), mixed[1][0])
	assert.Equal(t, "gamma", e.seen[len(e.seen)-1])
}

// flaky fails the first n calls.
type flaky struct {
	fakeEmbedder
	failures int
}

func (f *flaky) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.calls++
		f.mu.Unlock()
		return nil, errBoom
	}
	f.mu.Unlock()
	return f.fakeEmbedder.EmbedTexts(ctx, texts)
}

func TestResilientRetries(t *testing.T) {
	f := &flaky{fakeEmbedder: fakeEmbedder{dim: 2, reportDim: true}, failures: 2}
	r := NewResilient(f, resilience.CircuitBreakerConfig{FailureThreshold: 5},
		resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond})

	vecs, err := r.EmbedTexts(context.Background(), []string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, float32(3), vecs[0][0])
	assert.Equal(t, 3, f.callCount())
	assert.Equal(t, resilience.StateClosed, r.State())
}

func TestResilientStopsOnOpenCircuit(t *testing.T) {
	f := &flaky{fakeEmbedder: fakeEmbedder{dim: 2}, failures: 100}
	r := NewResilient(f, resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour},
		resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond})

	_, err := r.EmbedTexts(context.Background(), []string{"abc"})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 1, f.callCount())
	assert.Equal(t, resilience.StateOpen, r.State())
}

func TestNew(t *testing.T) {
	_, _, err := New(config.EmbeddingConfig{Provider: "nope"}, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "nope"))

	e, closer, err := New(config.EmbeddingConfig{Provider: "hash", Dimension: 8, CacheDir: t.TempDir()}, nil)
	require.NoError(t, err)
	defer closer.Close()
	assert.IsType(t, &Cached{}, e)
	assert.Equal(t, 8, e.Dimension())

	e, _, err = New(config.EmbeddingConfig{Provider: "ollama", Model: "nomic-embed-text", Dimension: 768}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Resilient{}, e)
	assert.Equal(t, "ollama:nomic-embed-text", e.Name())
}
