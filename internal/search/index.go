package search

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/lexical"
)

// Index is one immutable, query-ready generation of a flavor. The context
// flavor also carries a BM25 index over the same rows.
type Index struct {
	Flavor   string
	Snapshot *indexstore.Snapshot
	Lexical  *lexical.Index
	LoadedAt time.Time
}

func newIndex(snap *indexstore.Snapshot) *Index {
	idx := &Index{
		Flavor:   snap.Flavor,
		Snapshot: snap,
		LoadedAt: time.Now().UTC(),
	}
	if snap.Flavor == indexstore.Context {
		idx.Lexical = lexical.Build(snap.Texts())
	}
	return idx
}

func (idx *Index) workOf(row int) int64 {
	return idx.Snapshot.Chunks[row].WorkID
}

// IndexStats describes a loaded flavor.
type IndexStats struct {
	Flavor     string    `json:"flavor"`
	Loaded     bool      `json:"loaded"`
	Rows       int       `json:"rows"`
	Dimension  int       `json:"dimension"`
	Generation uint64    `json:"generation"`
	Terms      int       `json:"terms,omitempty"`
	LoadedAt   time.Time `json:"loaded_at,omitempty"`
}
