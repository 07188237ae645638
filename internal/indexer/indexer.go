// Package indexer keeps the on-disk indexes in step with the catalog: an
// incremental worker that drains PENDING works and a builder that rebuilds
// a flavor from every PROCESSED work.
package indexer

import (
	"context"
	"errors"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/chunker"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/filter"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/metrics"
)

// Catalog is the part of the catalog the indexer drives.
type Catalog interface {
	ListPending(ctx context.Context) ([]catalog.Work, error)
	List(ctx context.Context, f catalog.Filter) ([]catalog.Work, error)
	UpdateStatus(ctx context.Context, id int64, status catalog.Status) error
}

// Publisher announces new index generations. *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// toRecords pairs embedded vectors with their chunks. vectors[i] belongs to
// chunks[kept[i]].
func toRecords(chunks []chunker.Chunk, vectors [][]float32, kept []int) []indexstore.Record {
	records := make([]indexstore.Record, len(kept))
	for i, k := range kept {
		records[i] = indexstore.Record{
			WorkID: chunks[k].WorkID,
			Text:   chunks[k].Text,
			Vector: vectors[i],
		}
	}
	return records
}

func chunkTexts(chunks []chunker.Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}

// presentWorks is the set of works with rows in store; an unbuilt index is
// empty.
func presentWorks(store *indexstore.Store) (map[int64]bool, error) {
	ids, err := store.WorkIDs()
	if errors.Is(err, indexstore.ErrIndexNotFound) {
		return map[int64]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

func observeFilter(m *metrics.Metrics, flavor string, st filter.Stats) {
	if m == nil {
		return
	}
	m.ChunksFilteredTotal.WithLabelValues(flavor, "accepted").Add(float64(st.Accepted))
	m.ChunksFilteredTotal.WithLabelValues(flavor, "oversized").Add(float64(st.Oversized))
	m.ChunksFilteredTotal.WithLabelValues(flavor, "too_short").Add(float64(st.TooShort))
	m.ChunksFilteredTotal.WithLabelValues(flavor, "junk").Add(float64(st.Junk))
}

func publishUpdate(ctx context.Context, pub Publisher, store *indexstore.Store, works []int64, rebuilt bool) error {
	if pub == nil {
		return nil
	}
	m, err := store.Manifest()
	if err != nil {
		return err
	}
	ev := indexstore.UpdateEvent{
		Flavor:     store.Flavor(),
		Generation: m.Generation,
		Rows:       m.Rows(),
		Works:      works,
		Rebuilt:    rebuilt,
		At:         time.Now().UTC(),
	}
	return pub.PublishBatch(ctx, []kafka.Event{{Key: store.Flavor(), Value: ev}})
}

func indexEvent(w *catalog.Work, flavor string, status catalog.Status, rows, rejected int, latency time.Duration) analytics.IndexEvent {
	return analytics.IndexEvent{
		Type:      analytics.EventIndex,
		WorkID:    w.ID,
		Title:     w.Title,
		Flavor:    flavor,
		Status:    string(status),
		Rows:      rows,
		Rejected:  rejected,
		LatencyMs: latency.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
}
