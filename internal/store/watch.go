package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/waykeep/waykeep/internal/logger"
)

// Watch observes the backing file for external edits and calls onChange
// for each one, so hand-edits to the store take effect without a restart.
// Writes made through Save are recognized by content and skipped. The
// watcher stops when ctx is cancelled. onChange runs on the watcher
// goroutine and must only signal, not touch the store.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory %s: %w", dir, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create store watcher: %w", err)
	}
	// Watch the directory, not the file: editors and our own atomic saves
	// replace the file, which silently drops a direct file watch.
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != s.path {
					continue
				}
				if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
					continue
				}
				if s.isOwnContent() {
					continue
				}
				logger.Debug("layout store changed on disk", "path", s.path, "op", ev.Op.String())
				onChange()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("store watcher error", "error", err)
			}
		}
	}()
	return nil
}
