package gloss

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"glosskit/core"
)

// WatchDictionary reloads the dictionary file at path whenever it is
// written or replaced and hands each successfully parsed dictionary to
// onReload. A file that fails to parse is logged and skipped so the last
// good dictionary stays active. The watch ends when ctx is cancelled.
func WatchDictionary(ctx context.Context, path string, logger *core.Logger, onReload func(*Dictionary)) error {
	if logger == nil {
		logger = core.GetLogger()
	}
	logger = logger.With(map[string]any{"component": "dictionary_watch", "path": path})

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("gloss: create watcher: %w", err)
	}
	// Editors often replace the file instead of writing it in place, so the
	// directory is watched rather than the file itself.
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("gloss: watch %q: %w", filepath.Dir(target), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				dict, err := LoadDictionaryFile(target)
				if err != nil {
					logger.Warn("dictionary reload failed, keeping previous", "error", err)
					continue
				}
				logger.Info("dictionary reloaded", "entries", dict.Len())
				onReload(dict)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("dictionary watcher error", "error", err)
			}
		}
	}()
	return nil
}
