package cli

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"qmakemodel/internal/core/buildsystem"
)

var projectFileGlob = glob.MustCompile("*.{pro,pri,prf}")

// projectFileWatcher turns saves of evaluated project files into
// NotifyChanged calls. Wildcard folders are tracked by the build system
// itself.
type projectFileWatcher struct {
	w      *fsnotify.Watcher
	notify func(string)
	dirs   map[string]struct{}
}

func newProjectFileWatcher(notify func(string)) (*projectFileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &projectFileWatcher{w: w, notify: notify, dirs: make(map[string]struct{})}, nil
}

// sync watches the directories of the nodes in u and drops the rest.
func (p *projectFileWatcher) sync(u *buildsystem.Update) {
	if u == nil {
		return
	}
	want := make(map[string]struct{}, len(u.Nodes))
	for _, n := range u.Nodes {
		want[path.Dir(n.Path)] = struct{}{}
	}
	for dir := range want {
		if _, ok := p.dirs[dir]; ok {
			continue
		}
		if err := p.w.Add(filepath.FromSlash(dir)); err != nil {
			slog.Warn("failed to watch project directory", "dir", dir, "error", err)
			continue
		}
		p.dirs[dir] = struct{}{}
	}
	for dir := range p.dirs {
		if _, ok := want[dir]; ok {
			continue
		}
		_ = p.w.Remove(filepath.FromSlash(dir))
		delete(p.dirs, dir)
	}
}

func (p *projectFileWatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-p.w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !projectFileGlob.Match(filepath.Base(ev.Name)) {
				continue
			}
			slog.Debug("project file changed", "path", ev.Name)
			p.notify(filepath.ToSlash(ev.Name))
		case err, ok := <-p.w.Errors:
			if !ok {
				return
			}
			slog.Warn("project file watcher error", "error", err)
		}
	}
}

func (p *projectFileWatcher) Close() error {
	return p.w.Close()
}
