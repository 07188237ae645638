package catalog

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/scriptura/pkg/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	s := NewStore(database.NewFromDB(db, database.DriverSQLite))
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func year(y int) *int { return &y }

func domCasmurro() *Work {
	return &Work{
		Title:    "Dom Casmurro",
		Author:   "Machado de Assis",
		Year:     year(1899),
		Genre:    "Romance",
		Movement: "Realismo",
		TextPath: "corpus/dom_casmurro.txt",
		PDFPath:  "static/pdfs/dom_casmurro.pdf",
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	w, err := s.Create(ctx, domCasmurro(), nil)
	require.NoError(t, err)
	assert.NotZero(t, w.ID)
	assert.Equal(t, StatusPending, w.Status)

	got, err := s.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dom Casmurro", got.Title)
	require.NotNil(t, got.Year)
	assert.Equal(t, 1899, *got.Year)
	assert.Equal(t, "/static/pdfs/dom_casmurro.pdf", got.DownloadURL())
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.Get(ctx, 999)
	assert.ErrorIs(t, err, apperrors.ErrWorkNotFound)
}

func TestCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Create(ctx, domCasmurro(), nil)
	require.NoError(t, err)

	_, err = s.Create(ctx, domCasmurro(), nil)
	assert.ErrorIs(t, err, apperrors.ErrWorkExists)
}

func TestCreateRollsBackOnHookError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	hookErr := errors.New("disk full")

	_, err := s.Create(ctx, domCasmurro(), func(*Work) error { return hookErr })
	assert.ErrorIs(t, err, hookErr)

	works, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, works)
}

func TestStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a, err := s.Create(ctx, domCasmurro(), nil)
	require.NoError(t, err)
	b, err := s.Create(ctx, &Work{Title: "Iracema", Author: "José de Alencar", TextPath: "corpus/iracema.txt"}, nil)
	require.NoError(t, err)
	_, err = s.Create(ctx, &Work{Title: "Upload", Author: "X", TextPath: "corpus/upload.txt", Status: StatusUnderReview}, nil)
	require.NoError(t, err)

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, a.ID, pending[0].ID)
	assert.Equal(t, "", pending[1].DownloadURL())

	require.NoError(t, s.UpdateStatus(ctx, a.ID, StatusProcessed))
	require.NoError(t, s.UpdateStatus(ctx, b.ID, StatusFailedConversion))
	pending, err = s.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.ErrorIs(t, s.UpdateStatus(ctx, 12345, StatusProcessed), apperrors.ErrWorkNotFound)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Seed(ctx, []Work{
		{Title: "Dom Casmurro", Author: "Machado de Assis", Genre: "Romance", Movement: "Realismo", TextPath: "corpus/dom_casmurro.txt"},
		{Title: "Iracema", Author: "José de Alencar", Genre: "Romance Indianista", Movement: "Romantismo", TextPath: "corpus/iracema.txt"},
		{Title: "O Alienista", Author: "Machado de Assis", Genre: "Novela", Movement: "Realismo", TextPath: "corpus/o_alienista.txt"},
	})
	require.NoError(t, err)

	works, err := s.List(ctx, Filter{Author: "machado"})
	require.NoError(t, err)
	assert.Len(t, works, 2)

	works, err = s.List(ctx, Filter{Movement: "romantismo"})
	require.NoError(t, err)
	require.Len(t, works, 1)
	assert.Equal(t, "Iracema", works[0].Title)

	works, err = s.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, works, 1)
}

func TestGetMany(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	w, err := s.Create(ctx, domCasmurro(), nil)
	require.NoError(t, err)

	got, err := s.GetMany(ctx, []int64{w.ID, 77})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "Dom Casmurro", got[w.ID].Title)

	got, err = s.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	works := []Work{*domCasmurro(), {Title: "Iracema", Author: "José de Alencar", TextPath: "corpus/iracema.txt"}}

	added, err := s.Seed(ctx, works)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = s.Seed(ctx, works)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	ids, err := s.IDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "works.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`works:
  - title: "Iracema"
    author: "José de Alencar"
    year: 1865
    text_path: corpus/iracema.txt
    pdf_path: static/pdfs/iracema.pdf
`), 0o644))
	works, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, works, 1)
	assert.Equal(t, 1865, *works[0].Year)

	require.NoError(t, os.WriteFile(path, []byte("works:\n  - title: x\n"), 0o644))
	_, err = LoadSeed(path)
	assert.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("EM_REVISAO")
	require.NoError(t, err)
	assert.Equal(t, StatusUnderReview, st)
	assert.False(t, st.Terminal())
	assert.True(t, StatusFailedProcessing.Terminal())

	_, err = ParseStatus("DONE")
	assert.Error(t, err)
}
