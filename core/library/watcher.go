package library

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"LocalSpot/logger"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates a Library when files under its root change.
// Bursts of events (a whole album being copied in) collapse into one
// invalidation once the tree has been quiet for the debounce interval.
type Watcher struct {
	lib      *Library
	debounce time.Duration
	fsw      *fsnotify.Watcher
}

// NewWatcher registers the root and every directory below it.
func NewWatcher(lib *Library, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create library watcher: %w", err)
	}
	w := &Watcher{lib: lib, debounce: debounce, fsw: fsw}
	if err := fsw.Add(lib.Root()); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch library root %s: %w", lib.Root(), err)
	}
	w.addTree(lib.Root())
	return w, nil
}

// addTree adds dir's subdirectories. Failures only cost us events for that subtree.
func (w *Watcher) addTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() || path == w.lib.Root() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			logger.Warn("cannot watch library directory",
				logger.String("path", path),
				logger.ErrorField(err))
			return fs.SkipDir
		}
		return nil
	})
}

// relevant reports whether an event can change the index.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if IsAudioFile(event.Name) {
		return true
	}
	// Removed or renamed directories can't be stat'ed anymore; assume they mattered.
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		return filepath.Ext(event.Name) == ""
	}
	info, err := os.Stat(event.Name)
	return err == nil && info.IsDir()
}

// Run processes events until ctx is done, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	pending := false

	logger.Info("watching library for changes",
		logger.String("root", w.lib.Root()),
		logger.Duration("debounce", w.debounce))

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(event.Name); err != nil {
						logger.Warn("cannot watch new directory",
							logger.String("path", event.Name),
							logger.ErrorField(err))
					}
					w.addTree(event.Name)
				}
			}
			if !w.relevant(event) {
				continue
			}
			logger.Debug("library change detected",
				logger.String("path", event.Name),
				logger.String("op", event.Op.String()))
			pending = true
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("library watcher error", logger.ErrorField(err))

		case <-timer.C:
			if pending {
				pending = false
				w.lib.Invalidate()
			}
		}
	}
}
