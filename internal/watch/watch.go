// Package watch reports changes to a working tree as they happen.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"pgit/internal/ignore"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultDebounce = 200 * time.Millisecond

// Watcher collects file system events below root and delivers them in
// batches once the tree has been quiet for the debounce interval.
type Watcher struct {
	root     string
	ignore   *ignore.Spec
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *zap.Logger
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New starts watching every directory under root that spec does not
// ignore.
func New(root string, spec *ignore.Spec, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		root:     root,
		ignore:   spec,
		watcher:  fw,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// addTree registers dir and its non-ignored subdirectories.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.rel(path); ok && rel != "." && w.ignore.Match(rel) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	})
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		w.logger.Error("getting relative path", zap.String("path", path), zap.Error(err))
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Run forwards batches of changed paths to changed until ctx is done.
// Paths in a batch are relative to root, sorted and unique.
func (w *Watcher) Run(ctx context.Context, changed chan<- []string) error {
	pending := make(map[string]bool)

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if rel, keep := w.handleEvent(event); keep {
				pending[rel] = true
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			sort.Strings(batch)
			pending = make(map[string]bool)

			select {
			case changed <- batch:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// handleEvent returns the relative path of event and whether it should be
// reported.
func (w *Watcher) handleEvent(event fsnotify.Event) (string, bool) {
	rel, ok := w.rel(event.Name)
	if !ok || w.ignore.Match(rel) {
		return "", false
	}

	if event.Has(fsnotify.Create) {
		if err := w.addTree(event.Name); err != nil {
			// Files vanish between the event and the walk; only log.
			w.logger.Debug("watching new path", zap.String("path", rel), zap.Error(err))
		}
	}

	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return "", false
	}

	w.logger.Debug("file event", zap.String("path", rel), zap.Stringer("op", event.Op))
	return rel, true
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
