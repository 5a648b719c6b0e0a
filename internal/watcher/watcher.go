// Package watcher turns file-system notifications on a set of watched roots
// into deduplicated Change records collected in a PendingSet.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/docserve/internal/errors"
	"github.com/conneroisu/docserve/internal/logging"
)

// Root is a path the watcher subscribes to. A recursive root covers every
// directory below it; a non-recursive file root only reports that file.
type Root struct {
	Path      string
	Recursive bool
}

// Options configures a Watcher.
type Options struct {
	// Ignore holds glob patterns matched against every path segment.
	Ignore []string
	// IgnoreDirs are directories whose contents never produce changes.
	IgnoreDirs []string
	// ResubscribeAttempts bounds how often a vanished root is re-added.
	ResubscribeAttempts int
	// ResubscribeBackoff is the delay before the first re-add; it doubles
	// on every attempt.
	ResubscribeBackoff time.Duration
	// OnChange observes every change pushed to the pending set.
	OnChange func(Change)
}

// dirWatch describes why a directory is subscribed.
type dirWatch struct {
	// all is set when every entry in the directory is of interest.
	all bool
	// recursive is set when new subdirectories must be subscribed too.
	recursive bool
	// files restricts events to these paths when all is false.
	files map[string]struct{}
}

// Watcher subscribes to file-system events and feeds a PendingSet.
type Watcher struct {
	fs      *fsnotify.Watcher
	pending *PendingSet
	opts    Options
	logger  logging.Logger

	mutex   sync.RWMutex
	roots   []Root
	dirs    map[string]*dirWatch
	started bool

	startMu   sync.Mutex
	rewatchMu sync.Mutex
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New creates a watcher for roots. Nothing is subscribed until Start.
func New(pending *PendingSet, roots []Root, opts Options, logger logging.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewWatchError("WATCH_INIT", "cannot create file watcher", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.ResubscribeBackoff <= 0 {
		opts.ResubscribeBackoff = 200 * time.Millisecond
	}

	return &Watcher{
		fs:      w,
		pending: pending,
		opts:    opts,
		logger:  logger.WithComponent("watcher"),
		roots:   append([]Root(nil), roots...),
		dirs:    make(map[string]*dirWatch),
		done:    make(chan struct{}),
	}, nil
}

// Start subscribes the roots and begins delivering changes. Calling Start on
// a running watcher does nothing.
func (w *Watcher) Start() error {
	w.startMu.Lock()
	defer w.startMu.Unlock()

	w.mutex.RLock()
	started := w.started
	roots := w.roots
	w.mutex.RUnlock()
	if started {
		return nil
	}

	if err := w.Rewatch(roots); err != nil {
		return err
	}

	w.mutex.Lock()
	w.started = true
	w.mutex.Unlock()

	w.wg.Add(1)
	go w.watchLoop()

	return nil
}

// Stop unsubscribes everything and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}

// Roots returns the current subscription set.
func (w *Watcher) Roots() []Root {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return append([]Root(nil), w.roots...)
}

// Rewatch replaces the subscription set. New directories are subscribed
// before old ones are dropped, and events arriving in between are accepted
// if either set covers them.
func (w *Watcher) Rewatch(roots []Root) error {
	return w.rewatch(roots, false)
}

// rewatch adds the directories roots need. With force set every directory
// is added again, including those the bookkeeping already holds.
func (w *Watcher) rewatch(roots []Root, force bool) error {
	w.rewatchMu.Lock()
	defer w.rewatchMu.Unlock()

	next := make(map[string]*dirWatch)
	for _, root := range roots {
		w.collect(root, next)
	}

	w.mutex.Lock()
	previous := w.dirs
	union := make(map[string]*dirWatch, len(previous)+len(next))
	for dir, dw := range previous {
		union[dir] = dw
	}
	for dir, dw := range next {
		union[dir] = mergeWatch(union[dir], dw)
	}
	w.dirs = union
	w.mutex.Unlock()

	for dir := range next {
		if _, ok := previous[dir]; ok && !force {
			continue
		}
		if err := w.fs.Add(dir); err != nil {
			w.logger.Warn(context.Background(), err, "Cannot watch directory", "path", dir)
			delete(next, dir)
		}
	}

	w.mutex.Lock()
	w.dirs = next
	w.roots = append([]Root(nil), roots...)
	w.mutex.Unlock()

	for dir := range previous {
		if _, ok := next[dir]; !ok {
			_ = w.fs.Remove(dir)
		}
	}

	w.logger.Debug(context.Background(), "Watch set updated", "roots", len(roots), "directories", len(next))
	return nil
}

// collect records the directories root needs into dirs.
func (w *Watcher) collect(root Root, dirs map[string]*dirWatch) {
	path, err := filepath.Abs(root.Path)
	if err != nil {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		w.logger.Warn(context.Background(), err, "Skipping missing watch root", "path", path)
		return
	}

	if !info.IsDir() {
		dir := filepath.Dir(path)
		dirs[dir] = mergeWatch(dirs[dir], &dirWatch{files: map[string]struct{}{path: {}}})
		return
	}

	if !root.Recursive {
		dirs[path] = mergeWatch(dirs[path], &dirWatch{all: true})
		return
	}

	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != path && w.ignored(p) {
			return filepath.SkipDir
		}
		dirs[p] = mergeWatch(dirs[p], &dirWatch{all: true, recursive: true})
		return nil
	})
}

func mergeWatch(a, b *dirWatch) *dirWatch {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	merged := &dirWatch{
		all:       a.all || b.all,
		recursive: a.recursive || b.recursive,
	}
	if !merged.all {
		merged.files = make(map[string]struct{}, len(a.files)+len(b.files))
		for f := range a.files {
			merged.files[f] = struct{}{}
		}
		for f := range b.files {
			merged.files[f] = struct{}{}
		}
	}
	return merged
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.handleError(err)
		}
	}
}

// ignored reports whether path is excluded by the ignore rules.
func (w *Watcher) ignored(path string) bool {
	for _, dir := range w.opts.IgnoreDirs {
		if dir != "" && Within(path, dir) {
			return true
		}
	}
	return matchesIgnore(path, w.opts.Ignore)
}

// accepted reports whether path is covered by the current subscription.
func (w *Watcher) accepted(path string) (covered bool, recursive bool) {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	if dw, ok := w.dirs[filepath.Dir(path)]; ok {
		if dw.all {
			return true, dw.recursive
		}
		if _, ok := dw.files[path]; ok {
			return true, false
		}
	}
	if dw, ok := w.dirs[path]; ok && dw.all {
		return true, dw.recursive
	}
	return false, false
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	if IsBackupFile(path) || w.ignored(path) {
		return
	}

	covered, recursive := w.accepted(path)
	if !covered {
		// The parent of a file root is watched without being covered.
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			w.forget(path)
		}
		return
	}

	var kind EventKind
	switch {
	case event.Has(fsnotify.Create):
		kind = EventCreated
	case event.Has(fsnotify.Write):
		kind = EventModified
	case event.Has(fsnotify.Remove):
		kind = EventDeleted
	case event.Has(fsnotify.Rename):
		kind = EventMoved
	default:
		// Permission changes do not affect the rendered output.
		return
	}

	switch kind {
	case EventModified:
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return
		}
	case EventCreated:
		if info, err := os.Stat(path); err == nil && info.IsDir() && recursive {
			w.subscribeNewDir(path)
		}
	case EventDeleted, EventMoved:
		w.forget(path)
	}

	w.push(Change{Path: path, Kind: kind})
}

func (w *Watcher) push(change Change) {
	w.pending.Add(change)
	if w.opts.OnChange != nil {
		w.opts.OnChange(change)
	}
}

// subscribeNewDir watches a directory created under a recursive root and
// records the files that appeared in it before the watch was in place.
func (w *Watcher) subscribeNewDir(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if w.ignored(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if addErr := w.fs.Add(p); addErr != nil {
				w.logger.Warn(context.Background(), addErr, "Cannot watch new directory", "path", p)
				return filepath.SkipDir
			}
			w.mutex.Lock()
			w.dirs[p] = mergeWatch(w.dirs[p], &dirWatch{all: true, recursive: true})
			w.mutex.Unlock()
			return nil
		}
		if !IsBackupFile(p) {
			w.push(Change{Path: p, Kind: EventCreated})
		}
		return nil
	})
}

// forget drops bookkeeping for a removed path and schedules a
// resubscription for every root whose own subscription went with it. A file
// root is subscribed through its parent directory, so deleting the file
// alone leaves it covered.
func (w *Watcher) forget(path string) {
	type watched struct {
		root Root
		key  string
		dir  bool
	}

	w.mutex.Lock()
	var candidates []watched
	for _, root := range w.roots {
		abs, err := filepath.Abs(root.Path)
		if err != nil {
			continue
		}
		if _, ok := w.dirs[abs]; ok {
			candidates = append(candidates, watched{root: root, key: abs, dir: true})
		} else if _, ok := w.dirs[filepath.Dir(abs)]; ok {
			candidates = append(candidates, watched{root: root, key: filepath.Dir(abs)})
		}
	}
	for dir := range w.dirs {
		if Within(dir, path) {
			delete(w.dirs, dir)
		}
	}
	w.mutex.Unlock()

	for _, c := range candidates {
		if !Within(c.key, path) {
			continue
		}
		w.wg.Add(1)
		go w.resubscribe(c.root, c.dir)
	}
}

// restored reports whether a lost root is subscribed again, either by a
// real create event under a recursive parent or by resubscribe itself.
func (w *Watcher) restored(path string, dir bool) bool {
	if !dir {
		path = filepath.Dir(path)
	}
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	_, ok := w.dirs[path]
	return ok
}

// resubscribe re-adds a root that vanished, with exponential backoff. A
// root that does not come back is abandoned. The synthetic create is only
// pushed when no real event restored the subscription first.
func (w *Watcher) resubscribe(root Root, dir bool) {
	defer w.wg.Done()

	abs, err := filepath.Abs(root.Path)
	if err != nil {
		return
	}

	delay := w.opts.ResubscribeBackoff
	for attempt := 1; attempt <= w.opts.ResubscribeAttempts; attempt++ {
		select {
		case <-w.done:
			return
		case <-time.After(delay):
		}
		delay *= 2

		if w.restored(abs, dir) {
			return
		}
		if _, err := os.Stat(abs); err != nil {
			continue
		}

		added := make(map[string]*dirWatch)
		w.collect(root, added)
		subscribed := 0
		for d, dw := range added {
			if err := w.fs.Add(d); err != nil {
				continue
			}
			w.mutex.Lock()
			w.dirs[d] = mergeWatch(w.dirs[d], dw)
			w.mutex.Unlock()
			subscribed++
		}
		if subscribed == 0 {
			continue
		}

		w.logger.Info(context.Background(), "Re-subscribed watch root", "path", root.Path, "attempt", attempt)
		w.push(Change{Path: abs, Kind: EventCreated})
		return
	}

	err = errors.NewWatchError("RESUBSCRIBE_FAILED", "abandoning watch root", nil).
		WithPath(root.Path).
		WithContext("attempts", w.opts.ResubscribeAttempts)
	w.logger.Warn(context.Background(), err, "Watch root is gone", "path", root.Path)
}

// handleError treats backend errors as transient: every directory of the
// current roots is added to the backend again.
func (w *Watcher) handleError(err error) {
	w.logger.Warn(context.Background(), err, "File watcher error")

	select {
	case <-w.done:
		return
	default:
	}

	if rewatchErr := w.rewatch(w.Roots(), true); rewatchErr != nil {
		w.logger.Warn(context.Background(), rewatchErr, "Re-subscribing after watcher error failed")
	}
}
