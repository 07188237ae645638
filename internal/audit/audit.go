// Package audit checks that the catalog and the persisted indexes agree on
// which works have been indexed.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexstore"
)

// Catalog lists works.
type Catalog interface {
	List(ctx context.Context, f catalog.Filter) ([]catalog.Work, error)
}

// Index is the read side of one flavor's store.
type Index interface {
	Flavor() string
	WorkIDs() ([]int64, error)
}

// FlavorReport compares one flavor's work ids with the catalog.
type FlavorReport struct {
	Flavor  string `json:"flavor"`
	Present bool   `json:"present"`
	Indexed int    `json:"indexed"`
	// MissingInIndex are PROCESSED works without rows in the index.
	MissingInIndex []int64 `json:"missing_in_index"`
	// MissingInCatalog are indexed ids the catalog does not know.
	MissingInCatalog []int64 `json:"missing_in_catalog"`
	// Strict flavors must hold every processed work. The context flavor is
	// not strict: works shorter than one window have no rows there.
	Strict bool `json:"strict"`
}

// InSync reports whether the flavor agrees with the catalog.
func (r FlavorReport) InSync() bool {
	if !r.Present || len(r.MissingInCatalog) > 0 {
		return false
	}
	return !r.Strict || len(r.MissingInIndex) == 0
}

// Report is the outcome of one audit.
type Report struct {
	CatalogWorks int            `json:"catalog_works"`
	Processed    int            `json:"processed"`
	Flavors      []FlavorReport `json:"flavors"`
}

// InSync reports whether the catalog is non-empty and every flavor agrees
// with it.
func (r *Report) InSync() bool {
	if r.CatalogWorks == 0 {
		return false
	}
	for _, f := range r.Flavors {
		if !f.InSync() {
			return false
		}
	}
	return true
}

// Run audits each index against the catalog.
func Run(ctx context.Context, cat Catalog, indexes []Index) (*Report, error) {
	logger := slog.Default().With("component", "audit")

	works, err := cat.List(ctx, catalog.Filter{})
	if err != nil {
		return nil, fmt.Errorf("listing catalog: %w", err)
	}
	known := make(map[int64]struct{}, len(works))
	var processed []int64
	for _, w := range works {
		known[w.ID] = struct{}{}
		if w.Status == catalog.StatusProcessed {
			processed = append(processed, w.ID)
		}
	}

	report := &Report{CatalogWorks: len(works), Processed: len(processed)}
	for _, idx := range indexes {
		fr := FlavorReport{
			Flavor:           idx.Flavor(),
			Strict:           idx.Flavor() == indexstore.Granular,
			MissingInIndex:   []int64{},
			MissingInCatalog: []int64{},
		}
		ids, err := idx.WorkIDs()
		switch {
		case errors.Is(err, indexstore.ErrIndexNotFound):
			logger.Warn("index not built", "flavor", fr.Flavor)
			fr.MissingInIndex = append(fr.MissingInIndex, processed...)
			report.Flavors = append(report.Flavors, fr)
			continue
		case err != nil:
			return nil, fmt.Errorf("reading %s index: %w", fr.Flavor, err)
		}

		fr.Present = true
		fr.Indexed = len(ids)
		for _, id := range processed {
			if _, found := slices.BinarySearch(ids, id); !found {
				fr.MissingInIndex = append(fr.MissingInIndex, id)
			}
		}
		for _, id := range ids {
			if _, ok := known[id]; !ok {
				fr.MissingInCatalog = append(fr.MissingInCatalog, id)
			}
		}
		if !fr.InSync() {
			logger.Warn("index out of sync with catalog",
				"flavor", fr.Flavor,
				"missing_in_index", len(fr.MissingInIndex),
				"missing_in_catalog", len(fr.MissingInCatalog),
			)
		}
		report.Flavors = append(report.Flavors, fr)
	}
	return report, nil
}
