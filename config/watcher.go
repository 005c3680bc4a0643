package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the bursts of write events editors and atomic
// renames produce into a single change notification.
const DefaultDebounce = 250 * time.Millisecond

// Watcher observes one configuration file and reports changes. Callers
// typically respond by re-running the orchestration pass.
type Watcher struct {
	path     string
	log      *slog.Logger
	debounce time.Duration
	fw       *fsnotify.Watcher
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger overrides the logger.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// WithDebounce adjusts the event coalescing window.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher starts watching path. Close releases the underlying watcher.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}

	w := &Watcher{
		path:     path,
		log:      slog.Default(),
		debounce: DefaultDebounce,
		fw:       fw,
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	return w, nil
}

// Run blocks, invoking onChange after each debounced modification, until the
// context is canceled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.log.Debug("config file event", "path", w.path, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			// Editors often replace the file; re-add so renames keep
			// delivering events.
			_ = w.fw.Add(w.path)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watcher error", "err", err)
		case <-fire:
			timer = nil
			fire = nil
			onChange()
		}
	}
}

// Close releases the underlying filesystem watcher.
func (w *Watcher) Close() error { return w.fw.Close() }
