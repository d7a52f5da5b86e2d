// Package watcher re-uploads documents to a vector store when they change
// on disk.
package watcher

import (
	"context"
	"io"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/hunkim/solar-vector-store/internal/client"
	"github.com/hunkim/solar-vector-store/internal/fs"
)

// Uploader is the part of the API client the watcher needs.
type Uploader interface {
	Upload(ctx context.Context, storeID, filename string, content io.Reader) (*client.UploadResult, error)
	DeleteFile(ctx context.Context, storeID, fileID string) error
}

// Upload records what was last uploaded for a path.
type Upload struct {
	FileID string
	Hash   string
}

// Watcher watches a directory tree and keeps a vector store in sync with it.
type Watcher struct {
	walker   *fs.FileWalker
	storeID  string
	uploader Uploader

	trackedMu sync.Mutex
	tracked   map[string]Upload

	// debounce holds pending file events to batch process
	debounce     map[string]fsnotify.Op
	debounceMu   sync.Mutex
	debounceTime time.Duration

	// callback for status updates
	onEvent func(event string, path string)
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceTime sets the debounce duration for batching events.
func WithDebounceTime(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounceTime = d
	}
}

// WithEventCallback sets a callback for file events.
func WithEventCallback(fn func(event string, path string)) Option {
	return func(w *Watcher) {
		w.onEvent = fn
	}
}

// New creates a watcher over the walker's root that uploads into storeID.
func New(walker *fs.FileWalker, storeID string, up Uploader, opts ...Option) *Watcher {
	w := &Watcher{
		walker:       walker,
		storeID:      storeID,
		uploader:     up,
		tracked:      make(map[string]Upload),
		debounce:     make(map[string]fsnotify.Op),
		debounceTime: 500 * time.Millisecond,
		onEvent:      func(string, string) {},
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Track records an upload made before watching started, so a later change
// replaces it instead of adding a second record.
func (w *Watcher) Track(path string, u Upload) {
	w.trackedMu.Lock()
	defer w.trackedMu.Unlock()
	w.tracked[path] = u
}

// Tracked returns a copy of the tracked uploads keyed by absolute path.
func (w *Watcher) Tracked() map[string]Upload {
	w.trackedMu.Lock()
	defer w.trackedMu.Unlock()
	return maps.Clone(w.tracked)
}

// Start begins watching for file changes. Blocks until context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := w.addDirectories(watcher, w.walker.Root()); err != nil {
		return err
	}

	log.Info("Watching for file changes", "root", w.walker.Root(), "store", w.storeID)

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, watcher)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", "error", err)
		}
	}
}

// addDirectories recursively adds the directories below root that the
// walker would visit.
func (w *Watcher) addDirectories(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.walker.SkipDir(path) {
			return filepath.SkipDir
		}

		if err := watcher.Add(path); err != nil {
			log.Debug("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// handleEvent queues a single file system event.
func (w *Watcher) handleEvent(event fsnotify.Event, watcher *fsnotify.Watcher) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.walker.SkipDir(path) {
				if err := w.addDirectories(watcher, path); err != nil {
					log.Debug("Failed to watch new directory", "path", path, "error", err)
				}
			}
			return
		}
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return
	}

	w.debounceMu.Lock()
	w.debounce[path] |= event.Op
	w.debounceMu.Unlock()
}

// processDebounced processes debounced file events periodically.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(w.debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flushDebounced(ctx)
		}
	}
}

// flushDebounced processes all pending debounced events. A path that still
// exists is uploaded again whatever the events said; a path that is gone is
// deleted from the store.
func (w *Watcher) flushDebounced(ctx context.Context) {
	w.debounceMu.Lock()
	if len(w.debounce) == 0 {
		w.debounceMu.Unlock()
		return
	}
	events := w.debounce
	w.debounce = make(map[string]fsnotify.Op)
	w.debounceMu.Unlock()

	for path := range events {
		select {
		case <-ctx.Done():
			return
		default:
		}

		relPath, err := filepath.Rel(w.walker.Root(), path)
		if err != nil {
			relPath = path
		}

		if _, err := os.Stat(path); err != nil {
			removed, err := w.handleDelete(ctx, path)
			if err != nil {
				log.Error("Failed to handle delete", "path", relPath, "error", err)
			} else if removed {
				w.onEvent("delete", relPath)
				log.Info("Removed from store", "file", relPath)
			}
			continue
		}

		uploaded, err := w.handleModify(ctx, path)
		if err != nil {
			log.Error("Failed to upload", "path", relPath, "error", err)
		} else if uploaded {
			w.onEvent("upload", relPath)
			log.Info("Uploaded", "file", relPath)
		}
	}
}

// handleModify uploads a new or changed file, replacing its previous
// upload. Unchanged content and filtered paths are skipped.
func (w *Watcher) handleModify(ctx context.Context, path string) (bool, error) {
	info, ok := w.walker.Accept(path)
	if !ok {
		return false, nil
	}

	w.trackedMu.Lock()
	prev, tracked := w.tracked[path]
	w.trackedMu.Unlock()

	if tracked && prev.Hash == info.Hash {
		return false, nil
	}
	if tracked {
		if err := w.uploader.DeleteFile(ctx, w.storeID, prev.FileID); err != nil {
			log.Warn("Failed to delete previous upload", "file", info.RelPath, "file_id", prev.FileID, "error", err)
		}
		w.untrack(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	res, err := w.uploader.Upload(ctx, w.storeID, filepath.Base(path), f)
	if err != nil {
		return false, err
	}

	w.Track(path, Upload{FileID: res.FileID, Hash: info.Hash})
	return true, nil
}

// handleDelete removes the upload of a path that no longer exists.
func (w *Watcher) handleDelete(ctx context.Context, path string) (bool, error) {
	w.trackedMu.Lock()
	prev, tracked := w.tracked[path]
	w.trackedMu.Unlock()
	if !tracked {
		return false, nil
	}

	if err := w.uploader.DeleteFile(ctx, w.storeID, prev.FileID); err != nil {
		return false, err
	}
	w.untrack(path)
	return true, nil
}

func (w *Watcher) untrack(path string) {
	w.trackedMu.Lock()
	defer w.trackedMu.Unlock()
	delete(w.tracked, path)
}
