// Package buildsystem owns the live project tree and schedules its
// evaluation. All tree access happens on one loop goroutine; evaluations
// run on a bounded worker pool and hand immutable results back to the loop.
package buildsystem

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"qmakemodel/internal/core/config"
	"qmakemodel/internal/core/errors"
	"qmakemodel/internal/core/watcher"
	"qmakemodel/internal/engine/buildstep"
	"qmakemodel/internal/engine/project"
	"qmakemodel/internal/engine/reader"
	"qmakemodel/internal/shared/util"
)

type Option func(*BuildSystem)

// WithFolderRegistry replaces the fsnotify folder watcher.
func WithFolderRegistry(r project.FolderRegistry) Option {
	return func(b *BuildSystem) { b.folders = r }
}

// WithGlobals sets the constructor of the shared evaluator globals.
func WithGlobals(create func() *reader.Globals) Option {
	return func(b *BuildSystem) { b.createGlobals = create }
}

func WithVFS(v *reader.VFS) Option {
	return func(b *BuildSystem) { b.vfs = v }
}

type BuildSystem struct {
	cfg            *config.Config
	projectFile    string
	projectDir     string
	buildDir       string
	step           buildstep.QmakeStep
	parserArgs     []string
	mkspec         string
	updateInterval time.Duration

	tree          *project.Tree
	vfs           *reader.VFS
	factory       *reader.Factory
	createGlobals func() *reader.Globals
	folders       project.FolderRegistry
	watcher       *watcher.FolderWatcher
	refresh       *util.Throttle
	sem           *semaphore.Weighted
	workers       sync.WaitGroup

	qmu     sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	started bool
	stop    context.CancelFunc
	loopCtx context.Context

	// Loop owned.
	state              State
	partial            []project.NodeID
	cancelEvaluate     bool
	pending            int
	generation         uint64
	genCtx             context.Context
	genCancel          context.CancelFunc
	genSpan            trace.Span
	genStarted         time.Time
	genFull            bool
	genDiagnostics     []project.Diagnostic
	genDeltas          []project.FileDelta
	timer              *time.Timer
	timerSeq           uint64
	firstParseNeeded   bool
	invalidateContents bool
	idleWaiters        []chan struct{}

	stateMirror   atomic.Int32
	pendingMirror atomic.Int64
	last          atomic.Pointer[Update]

	subMu       sync.Mutex
	subscribers []chan *Update
}

// New prepares a build system for cfg.Project.File. Nothing is evaluated
// before Start.
func New(cfg *config.Config, opts ...Option) (*BuildSystem, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	file := strings.TrimSpace(cfg.Project.File)
	if file == "" {
		return nil, errors.New(errors.CodeValidationError, "project file must not be empty")
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "resolve project file"), errors.CtxPath, file)
	}
	projectFile := util.CleanPath(filepath.ToSlash(abs))
	projectDir := path.Dir(projectFile)
	buildDir := projectDir
	if bd := strings.TrimSpace(cfg.Project.BuildDir); bd != "" {
		buildDir = util.ResolvePath(projectDir, bd)
	}

	step := QmakeStepFor(cfg, projectFile)
	parserArgs, err := step.ParserArguments()
	if err != nil {
		return nil, err
	}
	mkspec, _ := step.Mkspec()

	workers := cfg.Scheduler.Workers
	if workers <= 0 {
		workers = 1
	}
	interval := cfg.Scheduler.UpdateInterval
	if interval <= 0 {
		interval = config.DefaultUpdateInterval
	}

	b := &BuildSystem{
		cfg:              cfg,
		projectFile:      projectFile,
		projectDir:       projectDir,
		buildDir:         buildDir,
		step:             step,
		parserArgs:       parserArgs,
		mkspec:           mkspec,
		updateInterval:   interval,
		sem:              semaphore.NewWeighted(int64(workers)),
		wake:             make(chan struct{}, 1),
		done:             make(chan struct{}),
		state:            Idle,
		firstParseNeeded: true,
	}
	for _, opt := range opts {
		opt(b)
	}

	rate := cfg.Watch.RefreshRate
	if rate <= 0 {
		rate = 1
	}
	b.refresh = util.NewThrottle(rate, func() { b.Post(b.refreshCodeModel) })

	if b.folders == nil {
		w, err := watcher.New(
			watcher.WithCoalesce(cfg.Watch.Coalesce),
			watcher.WithExcludeDirs(cfg.Watch.ExcludeDirs),
			watcher.WithExecutor(b.Post),
			watcher.WithRefresh(b.refresh.Trigger),
		)
		if err != nil {
			return nil, fmt.Errorf("create folder watcher: %w", err)
		}
		b.watcher = w
		b.folders = w
	}
	if b.createGlobals == nil {
		b.createGlobals = b.defaultGlobals
	}
	if b.vfs == nil {
		b.vfs = reader.NewVFS(0)
	}
	b.factory = reader.NewFactory(reader.NewShared(b.createGlobals), b.vfs)
	b.tree = project.NewTree(
		project.WithFolderRegistry(b.folders),
		project.WithScheduleUpdate(func(id project.NodeID) { b.scheduleAsyncUpdate(id, ParseLater) }),
	)
	b.tree.SetRoot(projectFile)
	return b, nil
}

// defaultGlobals mirrors what a qmake run in the build directory would
// see: the kit spec, Qt properties, the process environment and the
// parser arguments of the qmake step.
func (b *BuildSystem) defaultGlobals() *reader.Globals {
	g := reader.HostGlobals()
	if b.mkspec != "" {
		g.Spec = b.mkspec
	}
	for k, v := range b.cfg.Qmake.Properties {
		g.Properties[k] = v
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			g.Environment[k] = v
		}
	}
	g.SourceDir = b.projectDir
	g.BuildDir = b.BuildDir(b.projectFile)
	g.Sysroot = b.cfg.Project.Sysroot
	g.CommandLine = append([]string(nil), b.parserArgs...)
	return g
}

func (b *BuildSystem) ProjectFile() string { return b.projectFile }

func (b *BuildSystem) ProjectDir() string { return b.projectDir }

// QmakeStep returns the qmake invocation the configuration describes.
func (b *BuildSystem) QmakeStep() buildstep.QmakeStep { return b.step }

// BuildDir maps the directory of proFilePath into the build directory,
// keeping its position relative to the project directory.
func (b *BuildSystem) BuildDir(proFilePath string) string {
	dir := path.Dir(util.CleanPath(proFilePath))
	rel, err := filepath.Rel(filepath.FromSlash(b.projectDir), filepath.FromSlash(dir))
	if err != nil {
		return b.buildDir
	}
	return util.CleanPath(path.Join(b.buildDir, filepath.ToSlash(rel)))
}

// Post queues fn to run on the loop goroutine. It never blocks.
func (b *BuildSystem) Post(fn func()) {
	b.qmu.Lock()
	b.queue = append(b.queue, fn)
	b.qmu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Start runs the loop until ctx ends or Shutdown is called and requests
// the first evaluation.
func (b *BuildSystem) Start(ctx context.Context) error {
	b.qmu.Lock()
	if b.started {
		b.qmu.Unlock()
		return errors.New(errors.CodeConflict, "build system already started")
	}
	b.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	b.loopCtx = loopCtx
	b.stop = cancel
	b.qmu.Unlock()

	if b.watcher != nil {
		b.watcher.Start(loopCtx)
	}
	go b.run(loopCtx)
	b.ScheduleUpdateAllNowOrLater()
	return nil
}

func (b *BuildSystem) run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			return
		case <-b.wake:
			b.drain()
		}
	}
}

func (b *BuildSystem) drain() {
	for {
		b.qmu.Lock()
		batch := b.queue
		b.queue = nil
		b.qmu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}

// Shutdown stops the loop, discards in-flight results and waits for the
// workers to return.
func (b *BuildSystem) Shutdown() {
	b.qmu.Lock()
	started, stop := b.started, b.stop
	b.qmu.Unlock()
	if !started {
		return
	}
	stop()
	<-b.done
	b.workers.Wait()
}

func (b *BuildSystem) shutdown() {
	b.setState(ShuttingDown)
	if b.timer != nil {
		b.timer.Stop()
	}
	if b.genCancel != nil {
		b.genCancel()
	}
	if b.genSpan != nil {
		b.genSpan.End()
		b.genSpan = nil
	}
	b.refresh.Stop()
	b.tree.Clear()
	if b.watcher != nil {
		_ = b.watcher.Close()
	}

	b.subMu.Lock()
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
	b.subMu.Unlock()
}

func (b *BuildSystem) State() State {
	return State(b.stateMirror.Load())
}

// PendingEvaluations is the number of node evaluations not yet applied.
func (b *BuildSystem) PendingEvaluations() int {
	return int(b.pendingMirror.Load())
}

// LastUpdate returns the snapshot of the last completed generation, nil
// before the first one.
func (b *BuildSystem) LastUpdate() *Update {
	return b.last.Load()
}

// Diagnostics returns the problems reported by the last completed
// generation.
func (b *BuildSystem) Diagnostics() []project.Diagnostic {
	u := b.last.Load()
	if u == nil {
		return nil
	}
	return append([]project.Diagnostic(nil), u.Diagnostics...)
}

// Subscribe returns a channel receiving every published update. A slow
// reader only sees the latest one. The channel closes on shutdown.
func (b *BuildSystem) Subscribe() <-chan *Update {
	ch := make(chan *Update, 1)
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if b.State() == ShuttingDown {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// WaitIdle blocks until no update is pending or running.
func (b *BuildSystem) WaitIdle(ctx context.Context) error {
	ch := make(chan struct{})
	b.Post(func() {
		if b.state == Idle && b.pending == 0 && !b.firstParseNeeded {
			close(ch)
			return
		}
		b.idleWaiters = append(b.idleWaiters, ch)
	})
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return errors.New(errors.CodeCanceled, "build system shut down")
	}
}

// ScheduleUpdateAll requests a full evaluation.
func (b *BuildSystem) ScheduleUpdateAll(delay Delay) {
	b.Post(func() { b.scheduleUpdateAll(delay) })
}

// ScheduleUpdateAllNowOrLater parses at once before the first completed
// generation and debounced afterwards.
func (b *BuildSystem) ScheduleUpdateAllNowOrLater() {
	b.Post(func() {
		if b.firstParseNeeded {
			b.scheduleUpdateAll(ParseNow)
			return
		}
		b.scheduleUpdateAll(ParseLater)
	})
}

// ScheduleAsyncUpdateFile requests evaluation of the .pro file owning
// file, which may be a .pro or an included .pri.
func (b *BuildSystem) ScheduleAsyncUpdateFile(file string, delay Delay) {
	file = util.CleanPath(filepath.ToSlash(file))
	b.Post(func() {
		id := b.tree.FindPriFile(b.tree.Root(), file)
		n := b.tree.Node(id)
		if n == nil {
			return
		}
		if n.Kind != project.KindPro {
			id = n.ProFile
		}
		b.tree.SetParseInProgressRecursive(id, true)
		b.scheduleAsyncUpdate(id, delay)
	})
}

// NotifyChanged reacts to a project file edited outside the watcher: the
// cached parse is dropped and the owning .pro is evaluated at once.
func (b *BuildSystem) NotifyChanged(file string) {
	file = util.CleanPath(filepath.ToSlash(file))
	b.Post(func() {
		var hits []project.NodeID
		b.tree.Walk(func(id project.NodeID, n *project.Node) bool {
			if n.Path == file {
				hits = append(hits, n.ProFile)
			}
			return true
		})
		if len(hits) == 0 {
			return
		}
		b.vfs.Discard(file)
		for _, id := range hits {
			b.tree.SetParseInProgressRecursive(id, true)
			b.scheduleAsyncUpdate(id, ParseNow)
		}
	})
}

// BuildFinished records the outcome of a build. After a successful build
// the next evaluation rereads file contents instead of trusting the cache.
func (b *BuildSystem) BuildFinished(success bool) {
	if !success {
		return
	}
	b.Post(func() { b.invalidateContents = true })
}

func (b *BuildSystem) setState(s State) {
	b.state = s
	b.stateMirror.Store(int32(s))
}
