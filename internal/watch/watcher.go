package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher tails one or more drop directories recursively and ingests files as
// they appear. Rapid write bursts on the same path are coalesced with a
// debounce timer so partially written files are picked up once, after the
// writer settles.
type Watcher struct {
	svc      *Service
	roots    []string
	debounce time.Duration
}

func NewWatcher(svc *Service, roots []string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{svc: svc, roots: roots, debounce: debounce}
}

// Run blocks until ctx is cancelled. New subdirectories are added to the
// watch set as they are created.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	for _, root := range w.roots {
		if err := addRecursive(fsw, root); err != nil {
			return err
		}
	}

	var (
		mu      sync.Mutex
		pending = map[string]struct{}{}
		timer   *time.Timer
	)
	flush := func() {
		mu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		clear(pending)
		mu.Unlock()

		for _, p := range paths {
			if ctx.Err() != nil {
				return
			}
			if _, err := w.svc.IngestPath(ctx, p); err != nil {
				w.svc.logger.Warn("watch.ingest_failed", "path", p, "error", err)
			}
		}
	}

	w.svc.logger.Info("watch.started", "roots", w.roots, "debounce", w.debounce.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op.Has(fsnotify.Create) {
				// May be a new subdirectory; adding a plain file is a no-op
				// failure we ignore.
				_ = addRecursive(fsw, ev.Name)
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			if !ingestable(ev.Name) {
				continue
			}
			mu.Lock()
			pending[ev.Name] = struct{}{}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, flush)
			mu.Unlock()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.svc.logger.Error("watch.error", "error", err)
		}
	}
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() && !isHidden(path) {
			return fsw.Add(path)
		}
		return nil
	})
}
