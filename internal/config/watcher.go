package config

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// RulesWatcher monitors the rule file for changes using fsnotify, firing a
// callback so the active program can be re-parsed and replaced atomically.
//
// The watcher runs a background goroutine that processes fsnotify events.
// Call Close() to stop the watcher and release resources.
type RulesWatcher struct {
	fsWatcher *fsnotify.Watcher
	done      chan struct{}
}

// NewRulesWatcher watches the directory containing rulesPath and invokes
// onChange whenever that file is written or created. Watching the parent
// directory instead of the file itself survives editors that replace the
// file by rename.
func NewRulesWatcher(rulesPath string, onChange func()) (*RulesWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	dir := filepath.Dir(rulesPath)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}

	w := &RulesWatcher{
		fsWatcher: fw,
		done:      make(chan struct{}),
	}

	base := filepath.Base(rulesPath)
	go w.processEvents(base, onChange)

	slog.Info("rule file watcher started", "path", rulesPath)
	return w, nil
}

// processEvents reads fsnotify events and dispatches the reload callback.
// Runs in a background goroutine until Close() is called.
func (w *RulesWatcher) processEvents(base string, onChange func()) {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			// Writes, creates and renames all show up when editors
			// save; removes mean the file is gone and there is
			// nothing to reload.
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			slog.Info("rule file changed, reloading", "file", event.Name)
			onChange()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("rule file watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// Close stops the watcher goroutine and releases the underlying fsnotify
// watcher. Safe to call multiple times.
func (w *RulesWatcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	return w.fsWatcher.Close()
}
