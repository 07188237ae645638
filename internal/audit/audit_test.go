package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexstore"
)

type fakeCatalog struct {
	works []catalog.Work
	err   error
}

func (f *fakeCatalog) List(_ context.Context, _ catalog.Filter) ([]catalog.Work, error) {
	return f.works, f.err
}

type brokenIndex struct{}

func (brokenIndex) Flavor() string            { return indexstore.Context }
func (brokenIndex) WorkIDs() ([]int64, error) { return nil, indexstore.ErrCorruptSegment }

func rows(ids ...int64) []indexstore.Record {
	out := make([]indexstore.Record, len(ids))
	for i, id := range ids {
		out[i] = indexstore.Record{WorkID: id, Text: "frase", Vector: []float32{1, 0}}
	}
	return out
}

func works() *fakeCatalog {
	return &fakeCatalog{works: []catalog.Work{
		{ID: 1, Status: catalog.StatusProcessed},
		{ID: 2, Status: catalog.StatusProcessed},
		{ID: 3, Status: catalog.StatusPending},
	}}
}

func TestRunInSync(t *testing.T) {
	dir := t.TempDir()
	granular, err := indexstore.Open(dir, indexstore.Granular)
	require.NoError(t, err)
	require.NoError(t, granular.Append(rows(1, 2, 2)))
	ctxStore, err := indexstore.Open(dir, indexstore.Context)
	require.NoError(t, err)
	require.NoError(t, ctxStore.Append(rows(2)))

	report, err := Run(context.Background(), works(), []Index{granular, ctxStore})
	require.NoError(t, err)
	assert.Equal(t, 3, report.CatalogWorks)
	assert.Equal(t, 2, report.Processed)
	require.Len(t, report.Flavors, 2)

	g := report.Flavors[0]
	assert.True(t, g.Present)
	assert.True(t, g.Strict)
	assert.Equal(t, 2, g.Indexed)
	assert.Empty(t, g.MissingInIndex)

	c := report.Flavors[1]
	assert.False(t, c.Strict)
	assert.Equal(t, []int64{1}, c.MissingInIndex)
	assert.True(t, c.InSync())
	assert.True(t, report.InSync())
}

func TestRunDetectsMismatch(t *testing.T) {
	granular, err := indexstore.Open(t.TempDir(), indexstore.Granular)
	require.NoError(t, err)
	require.NoError(t, granular.Append(rows(1, 9)))

	report, err := Run(context.Background(), works(), []Index{granular})
	require.NoError(t, err)
	fr := report.Flavors[0]
	assert.Equal(t, []int64{2}, fr.MissingInIndex)
	assert.Equal(t, []int64{9}, fr.MissingInCatalog)
	assert.False(t, report.InSync())
}

func TestRunMissingIndex(t *testing.T) {
	granular, err := indexstore.Open(t.TempDir(), indexstore.Granular)
	require.NoError(t, err)

	report, err := Run(context.Background(), works(), []Index{granular})
	require.NoError(t, err)
	fr := report.Flavors[0]
	assert.False(t, fr.Present)
	assert.Equal(t, []int64{1, 2}, fr.MissingInIndex)
	assert.False(t, report.InSync())
}

func TestRunEmptyCatalogIsNotInSync(t *testing.T) {
	report, err := Run(context.Background(), &fakeCatalog{}, nil)
	require.NoError(t, err)
	assert.False(t, report.InSync())
}

func TestRunErrors(t *testing.T) {
	_, err := Run(context.Background(), &fakeCatalog{err: errors.New("db down")}, nil)
	assert.Error(t, err)

	_, err = Run(context.Background(), works(), []Index{brokenIndex{}})
	assert.ErrorIs(t, err, indexstore.ErrCorruptSegment)
}
