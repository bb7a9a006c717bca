// Package watcher multiplexes directory watches for project nodes.
//
// Many nodes may watch the same folder. The kernel watch is shared and
// reference counted, and every sub directory of a watched folder is watched
// too. Change notifications are coalesced and then delivered to the owners
// of the changed folder and of each of its watched ancestors.
package watcher

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"qmakemodel/internal/shared/observability"
	"qmakemodel/internal/shared/util"
)

// DefaultCoalesce is the quiet period before queued folder changes are
// delivered.
const DefaultCoalesce = 200 * time.Millisecond

// Owner receives the enumerated contents of a changed folder and reports
// whether it saw files appear or disappear.
type Owner interface {
	FolderChanged(folder string, files map[string]struct{}) bool
}

// backend is the kernel facing part of the watcher.
type backend interface {
	Add(dir string) error
	Remove(dir string) error
	Changes() <-chan string
	Errors() <-chan error
	Close() error
}

type fsnotifyBackend struct {
	w       *fsnotify.Watcher
	changes chan string
	done    chan struct{}
}

func newFsnotifyBackend() (*fsnotifyBackend, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	b := &fsnotifyBackend{w: fsw, changes: make(chan string, 64), done: make(chan struct{})}
	go b.translate()
	return b, nil
}

// translate turns file events into the directory that changed.
func (b *fsnotifyBackend) translate() {
	defer close(b.changes)
	for {
		select {
		case ev, ok := <-b.w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case b.changes <- filepath.ToSlash(filepath.Dir(ev.Name)):
			case <-b.done:
				return
			}
		case <-b.done:
			return
		}
	}
}

func (b *fsnotifyBackend) Add(dir string) error    { return b.w.Add(dir) }
func (b *fsnotifyBackend) Remove(dir string) error { return b.w.Remove(dir) }
func (b *fsnotifyBackend) Changes() <-chan string  { return b.changes }
func (b *fsnotifyBackend) Errors() <-chan error    { return b.w.Errors }

func (b *fsnotifyBackend) Close() error {
	close(b.done)
	return b.w.Close()
}

type Option func(*FolderWatcher) error

// WithCoalesce sets the quiet period before changes are delivered.
func WithCoalesce(d time.Duration) Option {
	return func(w *FolderWatcher) error {
		if d > 0 {
			w.coalesce = d
		}
		return nil
	}
}

// WithExcludeDirs skips sub directories whose base name matches one of the
// glob patterns.
func WithExcludeDirs(patterns []string) Option {
	return func(w *FolderWatcher) error {
		for _, pattern := range patterns {
			g, err := glob.Compile(pattern)
			if err != nil {
				return err
			}
			w.exclude = append(w.exclude, g)
		}
		return nil
	}
}

// WithExecutor runs owner notifications through post, typically the
// event loop that owns the project tree.
func WithExecutor(post func(func())) Option {
	return func(w *FolderWatcher) error {
		w.post = post
		return nil
	}
}

// WithRefresh sets fn to run once per delivery in which an owner reported
// added or removed files.
func WithRefresh(fn func()) Option {
	return func(w *FolderWatcher) error {
		w.onRefresh = fn
		return nil
	}
}

type FolderWatcher struct {
	mu        sync.Mutex
	backend   backend
	owners    map[string]map[Owner]int
	subdirs   map[string]map[string]struct{}
	refs      map[string]int
	pending   map[string]struct{}
	timer     *time.Timer
	coalesce  time.Duration
	exclude   []glob.Glob
	post      func(func())
	onRefresh func()
	closed    bool
	done      chan struct{}
}

// New creates a watcher backed by fsnotify.
func New(opts ...Option) (*FolderWatcher, error) {
	b, err := newFsnotifyBackend()
	if err != nil {
		return nil, err
	}
	w, err := newWithBackend(b, opts...)
	if err != nil {
		b.Close()
		return nil, err
	}
	return w, nil
}

func newWithBackend(b backend, opts ...Option) (*FolderWatcher, error) {
	w := &FolderWatcher{
		backend:  b,
		owners:   map[string]map[Owner]int{},
		subdirs:  map[string]map[string]struct{}{},
		refs:     map[string]int{},
		pending:  map[string]struct{}{},
		coalesce: DefaultCoalesce,
		post:     func(fn func()) { fn() },
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	go w.run()
	return w, nil
}

func (w *FolderWatcher) run() {
	changes, errs := w.backend.Changes(), w.backend.Errors()
	for {
		select {
		case dir, ok := <-changes:
			if !ok {
				return
			}
			observability.WatcherEventsTotal.Inc()
			w.FolderChanged(dir)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Error("watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// Start ties the watcher's lifetime to ctx.
func (w *FolderWatcher) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			w.Close()
		case <-w.done:
		}
	}()
}

func (w *FolderWatcher) excluded(dir string) bool {
	base := path.Base(strings.TrimSuffix(dir, "/"))
	for _, g := range w.exclude {
		if g.Match(base) {
			return true
		}
	}
	return false
}

func (w *FolderWatcher) addRef(dir string) {
	w.refs[dir]++
	if w.refs[dir] > 1 {
		return
	}
	if err := w.backend.Add(strings.TrimSuffix(dir, "/")); err != nil {
		slog.Debug("cannot watch folder", "folder", dir, "error", err)
	}
}

func (w *FolderWatcher) release(dir string) {
	if w.refs[dir] == 0 {
		return
	}
	w.refs[dir]--
	if w.refs[dir] > 0 {
		return
	}
	delete(w.refs, dir)
	if err := w.backend.Remove(strings.TrimSuffix(dir, "/")); err != nil {
		slog.Debug("cannot unwatch folder", "folder", dir, "error", err)
	}
}

func (w *FolderWatcher) watchSubdirs(root string) {
	subs := w.subdirs[root]
	if subs == nil {
		subs = map[string]struct{}{}
		w.subdirs[root] = subs
	}
	for _, sub := range util.RecursiveDirs(root) {
		if _, ok := subs[sub]; ok || w.excluded(sub) {
			continue
		}
		subs[sub] = struct{}{}
		w.addRef(sub)
	}
}

// Watch registers owner for every folder, including its sub directories.
func (w *FolderWatcher) Watch(folders []string, owner Owner) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	for _, folder := range folders {
		f := util.WithTrailingSlash(util.CleanPath(folder))
		set := w.owners[f]
		if set == nil {
			set = map[Owner]int{}
			w.owners[f] = set
			w.addRef(f)
			w.watchSubdirs(f)
		}
		set[owner]++
	}
	observability.WatchedFolders.Set(float64(len(w.refs)))
}

// Unwatch drops one registration of owner per folder. The kernel watch
// goes away with the last owner.
func (w *FolderWatcher) Unwatch(folders []string, owner Owner) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, folder := range folders {
		f := util.WithTrailingSlash(util.CleanPath(folder))
		set := w.owners[f]
		if set == nil || set[owner] == 0 {
			continue
		}
		set[owner]--
		if set[owner] == 0 {
			delete(set, owner)
		}
		if len(set) > 0 {
			continue
		}
		delete(w.owners, f)
		w.release(f)
		for sub := range w.subdirs[f] {
			w.release(sub)
		}
		delete(w.subdirs, f)
	}
	observability.WatchedFolders.Set(float64(len(w.refs)))
}

// WatchedCount returns the number of directories held by the kernel watch.
func (w *FolderWatcher) WatchedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.refs)
}

// OwnersOf returns the number of distinct owners registered for folder.
func (w *FolderWatcher) OwnersOf(folder string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.owners[util.WithTrailingSlash(util.CleanPath(folder))])
}

// FolderChanged queues folder for delivery after the coalesce period.
func (w *FolderWatcher) FolderChanged(folder string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending[util.CleanPath(folder)] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.coalesce, w.Flush)
}

// Flush delivers every queued change now.
func (w *FolderWatcher) Flush() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	folders := util.SortedStringKeys(w.pending)
	w.pending = map[string]struct{}{}
	w.mu.Unlock()

	if len(folders) == 0 {
		return
	}
	w.post(func() {
		changed := false
		for _, folder := range folders {
			if w.deliver(folder) {
				changed = true
			}
		}
		if changed && w.onRefresh != nil {
			w.onRefresh()
		}
	})
}

// ownersAbove collects the owners of folder and of its ancestors.
func (w *FolderWatcher) ownersAbove(folder string) []Owner {
	w.mu.Lock()
	defer w.mu.Unlock()
	var owners []Owner
	dir := folder
	for {
		for o := range w.owners[util.WithTrailingSlash(dir)] {
			owners = append(owners, o)
		}
		parent := path.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return owners
}

// deliver notifies every owner on the path to folder and then picks up
// newly created sub directories.
func (w *FolderWatcher) deliver(folder string) bool {
	owners := w.ownersAbove(folder)
	changed := false
	if len(owners) > 0 {
		files := util.RecursiveEnumerate(folder)
		for _, o := range owners {
			if o.FolderChanged(folder, files) {
				changed = true
			}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	key := util.WithTrailingSlash(folder)
	for root := range w.owners {
		if util.HasPathPrefix(key, root) {
			w.watchSubdirs(root)
		}
	}
	observability.WatchedFolders.Set(float64(len(w.refs)))
	return changed
}

// Close stops event delivery and releases the kernel watch.
func (w *FolderWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.done)
	w.mu.Unlock()
	return w.backend.Close()
}
