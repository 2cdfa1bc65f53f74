// Package watch triggers a callback when the local database changes and on
// a fixed interval. It drives `lists sync --watch`.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Options configures Run.
type Options struct {
	// Dir is watched non-recursively.
	Dir string
	// Match selects the file names (base names) that count as changes.
	// Nil matches every file.
	Match func(name string) bool
	// Debounce coalesces bursts of writes into one trigger.
	Debounce time.Duration
	// Interval triggers periodically regardless of file activity. Zero disables it.
	Interval time.Duration
	// Immediate triggers once before waiting for events.
	Immediate bool
	Logger    *slog.Logger
}

// Files returns a Match func accepting exactly the given base names.
func Files(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

// Run calls fn on every trigger until ctx is done. Triggers arriving while
// fn runs, including fn's own writes to the watched files, are coalesced
// into at most one follow-up call, so fn must not write when it has nothing
// to do. Errors from fn are logged and do not stop the loop.
func Run(ctx context.Context, opts Options, fn func(context.Context) error) error {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(opts.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", opts.Dir, err)
	}

	var tick <-chan time.Time
	if opts.Interval > 0 {
		t := time.NewTicker(opts.Interval)
		defer t.Stop()
		tick = t.C
	}

	trigger := func(reason string) {
		log.Debug("watch: trigger", "reason", reason)
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			log.Warn("watch: run failed", "reason", reason, "err", err)
		}
	}

	if opts.Immediate {
		trigger("start")
	}

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if opts.Match != nil && !opts.Match(filepath.Base(ev.Name)) {
				continue
			}
			debounce = time.After(opts.Debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch: watcher error", "err", err)

		case <-debounce:
			debounce = nil
			trigger("change")

		case <-tick:
			trigger("interval")
		}
	}
}
