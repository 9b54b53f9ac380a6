package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config document whenever its file changes on disk,
// mirroring the teacher's hot-reload pattern for long-running deployments.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	envPath   string
	onReload  func(*Document)
	done      chan struct{}
}

// NewWatcher starts watching path for writes and calls onReload with the
// newly parsed document each time it changes. Call Close to stop.
func NewWatcher(path, envPath string, onReload func(*Document)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(path); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w := &Watcher{fsWatcher: fsWatcher, path: path, envPath: envPath, onReload: onReload, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			doc, err := Load(w.path, w.envPath)
			if err != nil {
				slog.Error("config: hot-reload failed", "path", w.path, "err", err)
				continue
			}
			slog.Info("config: hot-reloaded", "path", w.path)
			w.onReload(doc)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("config: watcher error", "err", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsWatcher.Close()
}
