package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexstore"
	apperrors "github.com/Adithya-Monish-Kumar-K/scriptura/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/kafka"
)

const testDim = 64

type fakeCatalog struct {
	works map[int64]*catalog.Work
	err   error
	block bool
	calls int
}

func (f *fakeCatalog) GetMany(ctx context.Context, ids []int64) (map[int64]*catalog.Work, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int64]*catalog.Work)
	for _, id := range ids {
		if w, ok := f.works[id]; ok {
			out[id] = w
		}
	}
	return out, nil
}

type failingEmbedder struct{ embedding.Embedder }

func (failingEmbedder) EmbedTexts(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("model offline")
}

func newCatalog() *fakeCatalog {
	year := 1899
	return &fakeCatalog{works: map[int64]*catalog.Work{
		1: {ID: 1, Title: "Dom Casmurro", Author: "Machado de Assis", Year: &year, PDFPath: "pdfs/dom_casmurro.pdf"},
		2: {ID: 2, Title: "Iracema", Author: "José de Alencar"},
		4: {ID: 4, Title: "O Cortiço", Author: "Aluísio Azevedo"},
	}}
}

func embedRecords(t *testing.T, workID int64, texts ...string) []indexstore.Record {
	t.Helper()
	vecs, err := embedding.NewHash(testDim).EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	out := make([]indexstore.Record, len(texts))
	for i, text := range texts {
		out[i] = indexstore.Record{WorkID: workID, Text: text, Vector: vecs[i]}
	}
	return out
}

type fixture struct {
	dataDir string
	writers map[string]*indexstore.Store
	catalog *fakeCatalog
	service *Service
}

func newFixture(t *testing.T, opts Options, build bool) *fixture {
	t.Helper()
	f := &fixture{dataDir: t.TempDir(), writers: map[string]*indexstore.Store{}, catalog: newCatalog()}
	var readers []*indexstore.Store
	for _, flavor := range []string{indexstore.Granular, indexstore.Context} {
		w, err := indexstore.Open(f.dataDir, flavor)
		require.NoError(t, err)
		f.writers[flavor] = w
		r, err := indexstore.Open(f.dataDir, flavor, indexstore.ReadOnly())
		require.NoError(t, err)
		readers = append(readers, r)
	}
	if build {
		g := f.writers[indexstore.Granular]
		require.NoError(t, g.Append(embedRecords(t, 1, "Capitu tinha olhos de ressaca.", "Bentinho desconfiava de tudo.")))
		require.NoError(t, g.Append(embedRecords(t, 2, "Verdes mares bravios de minha terra natal.", "Capitu tinha olhos verdes.")))
		require.NoError(t, g.Append(embedRecords(t, 3, "Capitu tinha olhos de cigana oblíqua.")))
		require.NoError(t, g.Append(embedRecords(t, 4, "O cortiço acordava cedo.")))

		c := f.writers[indexstore.Context]
		require.NoError(t, c.Append(embedRecords(t, 1, "Capitu tinha olhos de ressaca. Bentinho desconfiava de tudo. O ciúme crescia.")))
		require.NoError(t, c.Append(embedRecords(t, 2, "Verdes mares bravios de minha terra natal. A jandaia cantava na fronde.")))
		require.NoError(t, c.Append(embedRecords(t, 4, "O cortiço acordava cedo. As lavadeiras batiam roupa.")))
	}
	svc, err := NewService(readers, embedding.NewHash(testDim), nil, f.catalog, opts, nil)
	require.NoError(t, err)
	require.NoError(t, svc.ReloadAll(context.Background()))
	f.service = svc
	return f
}

func TestCitationRanksAndDedupsWorks(t *testing.T) {
	f := newFixture(t, DefaultOptions(), true)

	results, err := f.service.Citation(context.Background(), "Capitu tinha olhos de ressaca. Segunda frase ignorada.")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 3)

	top := results[0]
	assert.Equal(t, int64(1), top.Work.ID)
	assert.InDelta(t, 1.0, top.Score, 1e-3)
	assert.Equal(t, "Capitu tinha olhos de ressaca.", top.MatchedText)
	assert.Equal(t, "Dom Casmurro", top.Work.Title)
	assert.Equal(t, 1899, *top.Work.Year)
	assert.Equal(t, "/pdfs/dom_casmurro.pdf", top.Work.DownloadURL)

	seen := map[int64]bool{}
	for i, r := range results {
		assert.False(t, seen[r.Work.ID], "work %d repeated", r.Work.ID)
		seen[r.Work.ID] = true
		assert.NotEqual(t, int64(3), r.Work.ID, "work missing from the catalog must be skipped")
		if i > 0 {
			assert.LessOrEqual(t, r.Score, results[i-1].Score)
		}
	}
	assert.Equal(t, 1, f.catalog.calls)
}

func TestCitationValidation(t *testing.T) {
	f := newFixture(t, DefaultOptions(), true)

	_, err := f.service.Citation(context.Background(), "abc")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))

	_, err = f.service.Citation(context.Background(), "       ")
	assert.ErrorIs(t, err, apperrors.ErrNoSentences)
	assert.Equal(t, http.StatusUnprocessableEntity, apperrors.HTTPStatusCode(err))
}

func TestMissingIndexIsUnavailable(t *testing.T) {
	f := newFixture(t, DefaultOptions(), false)

	_, err := f.service.Citation(context.Background(), "Capitu tinha olhos de ressaca.")
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))

	_, err = f.service.Theme(context.Background(), "Capitu tinha olhos de ressaca.")
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
}

func TestValidationPrecedesIndexCheck(t *testing.T) {
	f := newFixture(t, DefaultOptions(), false)

	_, err := f.service.Citation(context.Background(), "oi")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))

	_, err = f.service.Theme(context.Background(), "       ")
	assert.ErrorIs(t, err, apperrors.ErrNoSentences)
	assert.Equal(t, http.StatusUnprocessableEntity, apperrors.HTTPStatusCode(err))
}

func TestCatalogFailures(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		f := newFixture(t, DefaultOptions(), true)
		f.catalog.err = errors.New("connection refused")
		_, err := f.service.Citation(context.Background(), "Capitu tinha olhos de ressaca.")
		assert.ErrorIs(t, err, apperrors.ErrCatalogUnavailable)
		assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
	})

	t.Run("timeout", func(t *testing.T) {
		opts := DefaultOptions()
		opts.CatalogTimeout = 20 * time.Millisecond
		f := newFixture(t, opts, true)
		f.catalog.block = true
		_, err := f.service.Theme(context.Background(), "Capitu tinha olhos de ressaca.")
		assert.ErrorIs(t, err, apperrors.ErrTimeout)
		assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
	})
}

func TestEmbeddingFailure(t *testing.T) {
	f := newFixture(t, DefaultOptions(), true)
	f.service.embedder = failingEmbedder{}
	_, err := f.service.Citation(context.Background(), "Capitu tinha olhos de ressaca.")
	assert.ErrorIs(t, err, apperrors.ErrEmbedding)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
}

func TestDimensionMismatch(t *testing.T) {
	f := newFixture(t, DefaultOptions(), true)
	f.service.embedder = embedding.NewHash(testDim * 2)
	_, err := f.service.Citation(context.Background(), "Capitu tinha olhos de ressaca.")
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
}

func TestTheme(t *testing.T) {
	f := newFixture(t, DefaultOptions(), true)

	results, err := f.service.Theme(context.Background(), "Verdes mares bravios. A jandaia cantava.")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, int64(2), results[0].Work.ID)
	assert.Equal(t, "Iracema", results[0].Work.Title)
	assert.InDelta(t, 1.0, results[0].DenseScore, 1e-6)
	assert.InDelta(t, 1.0, results[0].LexicalScore, 1e-6)
	for i, r := range results {
		assert.GreaterOrEqual(t, r.DenseScore, 0.0)
		assert.LessOrEqual(t, r.DenseScore, 1.0)
		assert.GreaterOrEqual(t, r.LexicalScore, 0.0)
		assert.LessOrEqual(t, r.LexicalScore, 1.0)
		if i > 0 {
			assert.LessOrEqual(t, r.FusedScore, results[i-1].FusedScore)
		}
	}
}

func TestReloadSwapsGeneration(t *testing.T) {
	f := newFixture(t, DefaultOptions(), true)
	var reloads []uint64
	f.service.OnReload(func(flavor string, gen uint64) {
		if flavor == indexstore.Granular {
			reloads = append(reloads, gen)
		}
	})

	before := f.service.Current(indexstore.Granular)
	require.NotNil(t, before)
	assert.Equal(t, uint64(4), f.service.Generation(indexstore.Granular))

	require.NoError(t, f.service.Reload(context.Background(), indexstore.Granular))
	assert.Same(t, before, f.service.Current(indexstore.Granular))
	assert.Empty(t, reloads)

	require.NoError(t, f.writers[indexstore.Granular].Append(embedRecords(t, 4, "As lavadeiras batiam roupa.")))
	require.NoError(t, f.service.Reload(context.Background(), indexstore.Granular))
	assert.Equal(t, uint64(5), f.service.Generation(indexstore.Granular))
	assert.Equal(t, []uint64{5}, reloads)
	assert.Equal(t, 7, f.service.Current(indexstore.Granular).Snapshot.Len())
	assert.Equal(t, 6, before.Snapshot.Len(), "old snapshot is untouched")
}

func TestHandleIndexUpdated(t *testing.T) {
	f := newFixture(t, DefaultOptions(), false)
	require.NoError(t, f.writers[indexstore.Context].Append(embedRecords(t, 1, "Capitu tinha olhos de ressaca.")))

	payload, err := json.Marshal(indexstore.UpdateEvent{Flavor: indexstore.Context, Generation: 1, Rows: 1})
	require.NoError(t, err)
	require.NoError(t, f.service.HandleIndexUpdated(context.Background(), []byte(indexstore.Context), payload))

	idx := f.service.Current(indexstore.Context)
	require.NotNil(t, idx)
	require.NotNil(t, idx.Lexical)
	assert.Equal(t, 1, idx.Lexical.Len())

	assert.ErrorIs(t, f.service.HandleIndexUpdated(context.Background(), nil, []byte("not json")), kafka.ErrMalformed)
}

func TestStats(t *testing.T) {
	f := newFixture(t, DefaultOptions(), true)
	stats := f.service.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, indexstore.Granular, stats[0].Flavor)
	assert.True(t, stats[0].Loaded)
	assert.Equal(t, 6, stats[0].Rows)
	assert.Equal(t, testDim, stats[0].Dimension)
	assert.Zero(t, stats[0].Terms)
	assert.Equal(t, 3, stats[1].Rows)
	assert.Positive(t, stats[1].Terms)
}
