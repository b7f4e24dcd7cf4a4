package testing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"signflow/pkg/logging"
)

// DefaultWatchDebounce is how long a watcher waits for further changes
// before it reruns the suite.
const DefaultWatchDebounce = 500 * time.Millisecond

// Watcher reruns a callback whenever scenario or fixture files change.
// Bursts of writes, as editors produce on save, trigger one rerun.
type Watcher struct {
	paths    []string
	debounce time.Duration
	logger   TestLogger
}

// NewWatcher watches the given files or directories. A file is watched
// through its directory so editors that replace files on save still
// trigger reruns.
func NewWatcher(paths []string, debounce time.Duration, logger TestLogger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	return &Watcher{paths: paths, debounce: debounce, logger: logger}
}

// Run calls run once, then again after every change, until ctx is done.
// run is never called concurrently with itself.
func (w *Watcher) Run(ctx context.Context, run func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, p := range w.paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("cannot watch %s: %w", p, err)
		}
		dir := abs
		if !info.IsDir() {
			dir = filepath.Dir(abs)
			files[abs] = true
		}
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("cannot watch %s: %w", dir, err)
		}
		dirs[dir] = true
		logging.Debug("Watcher", "Watching directory: %s", dir)
	}
	if len(dirs) == 0 {
		return fmt.Errorf("nothing to watch: built-in scenarios cannot change, pass --config with a scenario path")
	}

	run(ctx)
	w.logger.Info("👀 Watching for changes (Ctrl+C to stop)\n")

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event, files) {
				continue
			}
			logging.Debug("Watcher", "Change detected: %s %s", event.Op, event.Name)
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("Watcher", err, "Filesystem watcher error")

		case <-timer.C:
			w.logger.Info("\n🔁 Change detected, rerunning\n\n")
			run(ctx)
			w.logger.Info("👀 Watching for changes (Ctrl+C to stop)\n")
		}
	}
}

// relevant keeps writes to watched files and to YAML or coordinate files in
// watched directories.
func (w *Watcher) relevant(event fsnotify.Event, files map[string]bool) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if files[event.Name] {
		return true
	}
	ext := filepath.Ext(event.Name)
	return isYAMLFile(event.Name) || ext == ".json" || ext == ".pdf"
}
