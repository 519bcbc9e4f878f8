// Package watcher provides file system watching for the roster state file,
// reporting external edits and deletions.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Op is the kind of change reported to the callback.
type Op int

const (
	// OpModified means the target was written or created.
	OpModified Op = iota + 1
	// OpRemoved means the target or its directory was removed.
	OpRemoved
)

func (o Op) String() string {
	switch o {
	case OpModified:
		return "modified"
	case OpRemoved:
		return "removed"
	}
	return "unknown"
}

// Watcher monitors a file for changes and calls onChange after a debounce.
// It watches the parent directory since fsnotify cannot watch non-existent
// files and atomic writes replace the file by rename.
type Watcher struct {
	targetPath string
	parentPath string
	onChange   func(Op)
	watcher    *fsnotify.Watcher
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	running    bool
	debounce   time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a new Watcher for the given target path.
func New(targetPath string, onChange func(Op), opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &Watcher{
		targetPath: filepath.Clean(targetPath),
		parentPath: filepath.Dir(filepath.Clean(targetPath)),
		onChange:   onChange,
		watcher:    fsw,
		ctx:        ctx,
		cancel:     cancel,
		debounce:   100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addWatch(); err != nil {
		log.Warn().Err(err).Str("path", w.parentPath).Msg("Failed to add initial watch")
		// Continue anyway - the directory may be created later.
	}

	go w.watchLoop()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	w.cancel()
	return w.watcher.Close()
}

func (w *Watcher) addWatch() error {
	if _, err := os.Stat(w.parentPath); err != nil {
		return err
	}
	return w.watcher.Add(w.parentPath)
}

// watchLoop coalesces bursts of events into one callback per debounce
// window. A removal not followed by a re-creation wins over modifications.
func (w *Watcher) watchLoop() {
	var (
		debounceTimer *time.Timer
		pending       Op
		pendingMu     sync.Mutex
	)

	schedule := func(op Op) {
		pendingMu.Lock()
		if op == OpRemoved || pending == 0 {
			pending = op
		}
		pendingMu.Unlock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(w.debounce, func() {
			pendingMu.Lock()
			op := pending
			pending = 0
			pendingMu.Unlock()
			if op != 0 {
				w.fire(op)
			}
		})
	}

	for {
		select {
		case <-w.ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			eventPath := filepath.Clean(event.Name)

			switch {
			case eventPath == w.parentPath && event.Op&fsnotify.Remove != 0:
				log.Info().Str("path", w.parentPath).Msg("State directory deleted")
				schedule(OpRemoved)

			case eventPath == w.parentPath && event.Op&fsnotify.Create != 0:
				log.Info().Str("path", w.parentPath).Msg("State directory recreated, re-establishing watch")
				_ = w.addWatch()

			case eventPath != w.targetPath:

			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if _, err := os.Stat(w.targetPath); err == nil {
					// Replaced in place by an atomic rename.
					schedule(OpModified)
					continue
				}
				schedule(OpRemoved)

			case event.Op&fsnotify.Create != 0:
				// A re-created target cancels a pending removal.
				pendingMu.Lock()
				pending = 0
				pendingMu.Unlock()
				schedule(OpModified)

			case event.Op&fsnotify.Write != 0:
				schedule(OpModified)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) fire(op Op) {
	log.Debug().Str("path", w.targetPath).Stringer("op", op).Msg("State file changed")
	if w.onChange != nil {
		w.onChange(op)
	}
	if op == OpRemoved {
		// The parent may have been removed with the file.
		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := w.addWatch(); err != nil {
				log.Warn().Err(err).Str("path", w.parentPath).Msg("Failed to re-establish watch after deletion")
			}
		}()
	}
}
