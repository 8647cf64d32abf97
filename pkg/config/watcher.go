package config

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/ensemble-ai/ensemble/pkg/logger"
)

// WatchFile watches the config file and logs a warning when it changes.
// Settings are immutable once loaded; a restart applies the new file.
// Returns a stop function. A missing file or watch failure is non-fatal.
func WatchFile(ctx context.Context, path string) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	log := logger.GetLogger()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
					log.Warn("config file changed, restart to apply", "path", event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", "error", err)
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}
