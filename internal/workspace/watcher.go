package workspace

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher invalidates store records when files change on disk. It only
// observes the real filesystem; stores backed by in-memory filesystems rely
// on modification-time checks alone.
type Watcher struct {
	store    *Store
	fsw      *fsnotify.Watcher
	onChange func(path string)
	done     chan struct{}
}

// NewWatcher watches dirs (non-recursively) and invalidates store entries on
// write, remove, and rename. onChange, if non-nil, is called after each
// invalidation from the watcher goroutine.
func NewWatcher(store *Store, dirs []string, onChange func(path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	return &Watcher{
		store:    store,
		fsw:      fsw,
		onChange: onChange,
		done:     make(chan struct{}),
	}, nil
}

// Run processes events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.store.Invalidate(ev.Name)
			w.store.log.Debug("invalidated", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			if w.onChange != nil {
				w.onChange(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.store.log.Warn("watcher error", zap.Error(err))
		}
	}
}

// Close stops the underlying watcher. A running Run returns once the event
// channels close; wait on Done to observe that.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Done is closed when Run returns.
func (w *Watcher) Done() <-chan struct{} { return w.done }
