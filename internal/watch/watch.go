// Package watch turns raw filesystem notifications from fsnotify into the
// moduletracker.RawFileEvent stream ModuleTracker.ApplyEvents expects,
// batching events that arrive within one tick the way an editor's
// save-and-format cycle tends to produce several writes in quick
// succession.
package watch

import (
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"buildtrack/internal/modulepath"
	"buildtrack/internal/moduletracker"
)

// Watcher watches a set of search roots and emits batches of
// moduletracker.RawFileEvent on Events, coalesced over batchWindow.
type Watcher struct {
	fsw         *fsnotify.Watcher
	finder      *modulepath.Finder
	batchWindow time.Duration

	Events chan []moduletracker.RawFileEvent
	Errors chan error

	done chan struct{}
}

const defaultBatchWindow = 50 * time.Millisecond

// New creates a Watcher over every root in finder, recursively.
func New(finder *modulepath.Finder) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:         fsw,
		finder:      finder,
		batchWindow: defaultBatchWindow,
		Events:      make(chan []moduletracker.RawFileEvent, 16),
		Errors:      make(chan error, 16),
		done:        make(chan struct{}),
	}
	for _, root := range finder.Roots {
		if err := w.addTree(root.Dir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepathWalkDirs(dir, func(path string) error {
		return w.fsw.Add(path)
	})
}

// filepathWalkDirs invokes fn for dir and every directory beneath it,
// skipping directories it cannot read rather than failing the whole walk.
func filepathWalkDirs(dir string, fn func(path string) error) error {
	if err := fn(dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := filepathWalkDirs(dir+string(os.PathSeparator)+e.Name(), fn); err != nil {
			return err
		}
	}
	return nil
}

// Run drains the underlying fsnotify watcher until Close is called,
// coalescing events into batches no more often than every batchWindow and
// publishing them on Events.
func (w *Watcher) Run() {
	var pending []moduletracker.RawFileEvent
	ticker := time.NewTicker(w.batchWindow)
	defer ticker.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		select {
		case w.Events <- batch:
		case <-w.done:
		}
	}

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				flush()
				return
			}
			if rfe, ok := w.classify(ev); ok {
				pending = append(pending, rfe)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				continue
			}
			select {
			case w.Errors <- err:
			case <-w.done:
				return
			}
		case <-ticker.C:
			flush()
		case <-w.done:
			flush()
			return
		}
	}
}

func (w *Watcher) classify(ev fsnotify.Event) (moduletracker.RawFileEvent, bool) {
	root, ok := w.finder.OwningRoot(ev.Name)
	if !ok {
		return moduletracker.RawFileEvent{}, false
	}
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addTree(ev.Name)
			return moduletracker.RawFileEvent{}, false
		}
		mp, ok := w.finder.ClassifyAbsolute(root, ev.Name)
		if !ok {
			return moduletracker.RawFileEvent{}, false
		}
		return moduletracker.RawFileEvent{Kind: moduletracker.NewOrChanged, Path: *mp}, true
	}
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		mp, ok := w.finder.ClassifyAbsolute(root, ev.Name)
		if !ok {
			return moduletracker.RawFileEvent{}, false
		}
		return moduletracker.RawFileEvent{Kind: moduletracker.Removed, Path: *mp}, true
	}
	return moduletracker.RawFileEvent{}, false
}

// Close stops Run and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
