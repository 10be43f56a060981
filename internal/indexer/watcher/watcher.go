// Package watcher triggers full index rebuilds when files under the document
// root change. Events are debounced so that a burst of writes causes one
// rebuild.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	debounce time.Duration
	exclude  []string
	trigger  func(ctx context.Context)
	logger   *slog.Logger

	events   atomic.Int64
	triggers atomic.Int64
}

// New watches every directory under root that no exclude pattern matches.
// trigger is called once per quiet period of length debounce that follows
// at least one event.
func New(root string, debounce time.Duration, exclude []string, trigger func(ctx context.Context)) (*Watcher, error) {
	if debounce <= 0 {
		return nil, fmt.Errorf("debounce must be positive, got %v", debounce)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	w := &Watcher{
		fsw:      fsw,
		root:     root,
		debounce: debounce,
		exclude:  exclude,
		trigger:  trigger,
		logger:   slog.Default().With("component", "watcher", "root", root),
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is done, then releases the underlying
// watcher. It must be called at most once.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	w.logger.Info("watching for changes", "directories", len(w.fsw.WatchList()), "debounce", w.debounce)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping")
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.events.Add(1)
			if ev.Has(fsnotify.Create) {
				if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.Warn("watching new directory failed", "path", ev.Name, "error", err)
					}
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "error", err)
		case <-timerC:
			timerC = nil
			w.triggers.Add(1)
			w.logger.Info("changes detected, rebuilding", "events", w.events.Load())
			w.trigger(ctx)
		}
	}
}

// Stats reports how many relevant events were seen and how many rebuilds
// they caused.
func (w *Watcher) Stats() (events, triggers int64) {
	return w.events.Load(), w.triggers.Load()
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	return !w.excluded(ev.Name)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("walking %s: %w", dir, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.excluded(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) excluded(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range w.exclude {
		if doublestar.MatchUnvalidated(p, rel) {
			return true
		}
	}
	return false
}
