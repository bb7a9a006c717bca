package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"qmakemodel/internal/core/buildsystem"
	"qmakemodel/internal/core/config"
)

// updateSink receives every published update with the state at the time.
type updateSink func(*buildsystem.Update, buildsystem.State)

// liveSystem follows the build system of the current watch session.
type liveSystem struct {
	cur atomic.Pointer[buildsystem.BuildSystem]
}

func (l *liveSystem) State() buildsystem.State {
	if b := l.cur.Load(); b != nil {
		return b.State()
	}
	return buildsystem.Idle
}

func (l *liveSystem) PendingEvaluations() int {
	if b := l.cur.Load(); b != nil {
		return b.PendingEvaluations()
	}
	return 0
}

func (l *liveSystem) LastUpdate() *buildsystem.Update {
	if b := l.cur.Load(); b != nil {
		return b.LastUpdate()
	}
	return nil
}

// runSession evaluates cfg and keeps the model current until ctx ends.
func runSession(ctx context.Context, cfg *config.Config, live *liveSystem, sink updateSink) error {
	b, err := buildsystem.New(cfg)
	if err != nil {
		return err
	}
	updates := b.Subscribe()
	if err := b.Start(ctx); err != nil {
		return err
	}
	defer b.Shutdown()
	live.cur.Store(b)

	pw, err := newProjectFileWatcher(b.NotifyChanged)
	if err != nil {
		return fmt.Errorf("create project file watcher: %w", err)
	}
	defer pw.Close()
	go pw.run(ctx)

	slog.Info("watching project", "file", b.ProjectFile(), "build_dir", b.BuildDir(b.ProjectFile()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			pw.sync(u)
			sink(u, b.State())
		}
	}
}

// watchLoop runs sessions until ctx ends. A change of the config file at
// cfgPath replaces the session with one using the reloaded settings.
func watchLoop(ctx context.Context, cfg *config.Config, cfgPath, projectArg string, live *liveSystem, sink updateSink) error {
	reloads := make(chan *config.Config, 1)
	if cfgPath != "" {
		cw := config.NewWatcher(cfgPath, func(next *config.Config) {
			if projectArg != "" {
				next.Project.File = projectArg
			}
			for {
				select {
				case reloads <- next:
					return
				default:
				}
				select {
				case <-reloads:
				default:
				}
			}
		})
		if err := cw.Start(ctx); err != nil {
			slog.Warn("config reload disabled", "path", cfgPath, "error", err)
		} else {
			defer cw.Stop()
		}
	}

	for {
		sessionCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func(c *config.Config) { done <- runSession(sessionCtx, c, live, sink) }(cfg)

		select {
		case <-ctx.Done():
			cancel()
			return <-done
		case err := <-done:
			cancel()
			return err
		case next := <-reloads:
			cancel()
			if err := <-done; err != nil {
				return err
			}
			slog.Info("configuration changed, restarting evaluation", "path", cfgPath)
			cfg = next
		}
	}
}
