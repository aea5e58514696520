package controller

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"bridgeagent/pkg/logging"
)

// DefaultDebounceInterval is how long the watcher waits after the last file
// event before reloading.
const DefaultDebounceInterval = 500 * time.Millisecond

// Watch reloads the identity whenever its files change, until ctx is done.
// It uses fsnotify on the identity directory and falls back to polling file
// modification times when the directory cannot be watched.
func (id *Identity) Watch(ctx context.Context) error {
	w := &certWatcher{
		dir:      id.config.Dir,
		files:    []string{id.config.CertFile, id.config.KeyFile, id.config.CAFile},
		interval: id.config.WatchInterval,
		debounce: DefaultDebounceInterval,
		onChange: func() {
			if err := id.Reload(); err != nil {
				logging.Error(subsystem, err, "Failed to reload client certificate, keeping the previous one")
			}
		},
	}
	return w.run(ctx)
}

type certWatcher struct {
	dir      string
	files    []string
	interval time.Duration
	debounce time.Duration
	onChange func()

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
	modTimes      map[string]time.Time
}

func (w *certWatcher) run(ctx context.Context) error {
	defer w.stopDebounce()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn(subsystem, "fsnotify not available, polling %s every %s: %v", w.dir, w.interval, err)
		return w.poll(ctx)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		logging.Warn(subsystem, "Cannot watch %s, polling every %s: %v", w.dir, w.interval, err)
		return w.poll(ctx)
	}

	logging.Info(subsystem, "Watching %s for certificate changes", w.dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.Error(subsystem, err, "fsnotify error")
		}
	}
}

func (w *certWatcher) handleEvent(event fsnotify.Event) {
	if !w.relevant(filepath.Base(event.Name)) {
		return
	}
	// Secret mounts swap files by rename, which shows up as Create.
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	logging.Debug(subsystem, "Certificate file changed: %s", event.Name)
	w.trigger()
}

func (w *certWatcher) relevant(name string) bool {
	for _, f := range w.files {
		if f == name {
			return true
		}
	}
	return false
}

func (w *certWatcher) trigger() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, w.onChange)
}

func (w *certWatcher) stopDebounce() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
}

func (w *certWatcher) poll(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.changed()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if w.changed() {
				logging.Debug(subsystem, "Certificate file changes detected via polling")
				w.trigger()
			}
		}
	}
}

// changed refreshes the recorded modification times and reports whether any
// differ from the previous call. The first call only records.
func (w *certWatcher) changed() bool {
	first := w.modTimes == nil
	if first {
		w.modTimes = make(map[string]time.Time, len(w.files))
	}

	changed := false
	for _, f := range w.files {
		info, err := os.Stat(filepath.Join(w.dir, f))
		if err != nil {
			continue
		}
		if prev, ok := w.modTimes[f]; !first && (!ok || !info.ModTime().Equal(prev)) {
			changed = true
		}
		w.modTimes[f] = info.ModTime()
	}
	return changed
}
