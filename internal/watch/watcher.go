// Package watch triggers repeated ingestion, either when the corpus
// directory changes or on a cron schedule.
package watch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the corpus must stay quiet before the callback
// runs.
const DefaultDebounce = 2 * time.Second

// CorpusWatcher watches a corpus directory and calls back once changes have
// settled. Bursts of events (an editor save, a batch copy) collapse into a
// single call. Calls never overlap.
type CorpusWatcher struct {
	dir      string
	debounce time.Duration
	callback func()
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewCorpusWatcher creates a watcher for dir. A non-positive debounce takes
// DefaultDebounce.
func NewCorpusWatcher(dir string, debounce time.Duration, callback func()) *CorpusWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &CorpusWatcher{
		dir:      dir,
		debounce: debounce,
		callback: callback,
		done:     make(chan struct{}),
	}
}

// Start begins watching. Call Stop to clean up.
func (cw *CorpusWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if err := w.Add(cw.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch: %s: %w", cw.dir, err)
	}
	cw.watcher = w

	go cw.loop()
	slog.Info("watch: watching corpus", "dir", cw.dir, "debounce", cw.debounce)
	return nil
}

// Stop shuts the watcher down and waits for a running callback to return.
func (cw *CorpusWatcher) Stop() {
	if cw.watcher == nil {
		return
	}
	_ = cw.watcher.Close()
	<-cw.done
}

func (cw *CorpusWatcher) loop() {
	defer close(cw.done)

	// Reset on a stopped timer never delivers a stale tick (Go 1.23+).
	timer := time.NewTimer(cw.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case evt, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !relevant(evt) {
				continue
			}
			slog.Debug("watch: corpus changed", "file", filepath.Base(evt.Name), "op", evt.Op.String())
			timer.Reset(cw.debounce)
		case <-timer.C:
			if cw.callback != nil {
				cw.callback()
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watch: watcher error", "error", err)
		}
	}
}

// relevant reports whether evt may change what ingestion would read.
// Hidden files are ignored, matching the corpus loader.
func relevant(evt fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(evt.Name), ".") {
		return false
	}
	return evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0
}
