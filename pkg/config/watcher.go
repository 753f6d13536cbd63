package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of write/rename events editors emit
// when saving, so the catalog is reloaded once per save.
const reloadDebounce = 500 * time.Millisecond

// ReloadFunc receives each successfully loaded catalog.
type ReloadFunc func(*Catalog)

// CatalogWatcher reloads the catalog when its file changes. Invalid
// files are logged and skipped; the previous catalog stays active.
type CatalogWatcher struct {
	path     string
	reload   ReloadFunc
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCatalogWatcher creates a watcher for the given catalog path.
// The parent directory is watched rather than the file itself: most
// editors replace files on save, which drops inode-level watches.
func NewCatalogWatcher(path string, reload ReloadFunc) (*CatalogWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating catalog watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watching catalog directory: %w", err)
	}
	return &CatalogWatcher{
		path:    path,
		reload:  reload,
		watcher: fw,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start begins watching in a goroutine.
func (w *CatalogWatcher) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop ends watching and waits for the goroutine to finish.
// Safe to call multiple times.
func (w *CatalogWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *CatalogWatcher) run() {
	defer w.wg.Done()
	defer func() { _ = w.watcher.Close() }()

	var debounce *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(reloadDebounce)
			} else {
				debounce.Reset(reloadDebounce)
			}
			pending = debounce.C

		case <-pending:
			pending = nil
			w.reloadOnce()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Catalog watcher error", "error", err)
		}
	}
}

// reloadOnce loads and validates the catalog file, handing the result to
// the reload callback. Load failures keep the previous catalog.
func (w *CatalogWatcher) reloadOnce() {
	catalog, err := LoadCatalog(w.path)
	if err != nil {
		slog.Error("Catalog reload failed, keeping previous catalog",
			"path", w.path, "error", err)
		return
	}
	slog.Info("Catalog reloaded", "path", w.path, "models", catalog.Len())
	w.reload(catalog)
}
