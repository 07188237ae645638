package search

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/indexstore"
)

const reloadDebounce = 250 * time.Millisecond

// Watcher reloads a flavor when its MANIFEST is replaced on disk.
type Watcher struct {
	service *Service
	watcher *fsnotify.Watcher
	flavors map[string]string
	logger  *slog.Logger
}

// NewWatcher watches the directory of every store the service serves.
func NewWatcher(service *Service) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating index watcher: %w", err)
	}
	w := &Watcher{
		service: service,
		watcher: fw,
		flavors: make(map[string]string),
		logger:  slog.Default().With("component", "index-watcher"),
	}
	for flavor, store := range service.stores {
		if err := fw.Add(store.Dir()); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watching %s: %w", store.Dir(), err)
		}
		w.flavors[filepath.Clean(store.Dir())] = flavor
	}
	return w, nil
}

// Run blocks until ctx is done. Bursts of events on the same flavor collapse
// into one reload.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(reloadDebounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != indexstore.ManifestName {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if flavor, ok := w.flavors[filepath.Dir(ev.Name)]; ok {
				pending[flavor] = time.Now()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("index watcher error", "error", err)
		case now := <-ticker.C:
			for flavor, seen := range pending {
				if now.Sub(seen) < reloadDebounce {
					continue
				}
				delete(pending, flavor)
				if err := w.service.Reload(ctx, flavor); err != nil {
					w.logger.Error("index reload failed", "flavor", flavor, "error", err)
				}
			}
		}
	}
}
