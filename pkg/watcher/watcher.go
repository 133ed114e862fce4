// Package watcher re-imports the data directory when its CSV or JSON files
// change on disk.
package watcher

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses editor saves and multi-file copies into one
// reload.
const DefaultDebounce = 500 * time.Millisecond

// Watcher turns bursts of filesystem events into single callbacks.
type Watcher struct {
	dir      string
	debounce time.Duration
	onChange func(ctx context.Context, changed []string)
	fs       *fsnotify.Watcher
	logf     func(string, ...any)
}

// New watches dir. onChange receives the sorted base names that changed
// during the burst and runs on the watcher goroutine, so reloads never
// overlap.
func New(dir string, debounce time.Duration, onChange func(ctx context.Context, changed []string)) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{dir: dir, debounce: debounce, onChange: onChange, fs: fw, logf: log.Printf}, nil
}

// Relevant reports whether an event on name should trigger a reload.
func Relevant(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".csv", ".json":
		return true
	}
	return false
}

const reloadOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// Run blocks until ctx ends, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fs.Close()

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending = map[string]struct{}{}
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
	}
	defer stopTimer()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&reloadOps == 0 || !Relevant(ev.Name) {
				continue
			}
			pending[filepath.Base(ev.Name)] = struct{}{}
			stopTimer()
			timer = time.NewTimer(w.debounce)
			fire = timer.C

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logf("watcher %s: %v", w.dir, err)

		case <-fire:
			fire = nil
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			sort.Strings(changed)
			pending = map[string]struct{}{}
			w.logf("Data files changed: %s", strings.Join(changed, ", "))
			w.onChange(ctx, changed)
		}
	}
}
