package buildsystem

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"qmakemodel/internal/engine/project"
	"qmakemodel/internal/shared/observability"
)

func (b *BuildSystem) scheduleUpdateAll(delay Delay) {
	if b.state == ShuttingDown {
		slog.Debug("update suppressed", "reason", "shutting down")
		return
	}
	if b.cancelEvaluate {
		// The canceled generation re-arms a full update once it drains.
		slog.Debug("update suppressed", "reason", "cancel in progress")
		return
	}

	b.tree.SetParseInProgressRecursive(b.tree.Root(), true)

	if b.state == InProgress {
		b.cancelEvaluate = true
		if b.genCancel != nil {
			b.genCancel()
		}
		b.setState(FullUpdatePending)
		slog.Debug("canceling generation for full update", "generation", b.generation)
		return
	}

	b.partial = nil
	b.setState(FullUpdatePending)
	b.startAsyncTimer(delay)
}

// scheduleAsyncUpdate queues the .pro node id for a partial update. The
// queue never holds a node together with one of its ancestors.
func (b *BuildSystem) scheduleAsyncUpdate(id project.NodeID, delay Delay) {
	if b.state == ShuttingDown || b.cancelEvaluate {
		return
	}
	b.tree.SetParseInProgressRecursive(id, true)

	switch b.state {
	case FullUpdatePending:
		b.startAsyncTimer(delay)
	case Idle, PartialUpdatePending:
		b.setState(PartialUpdatePending)
		add := true
		kept := b.partial[:0]
		for _, queued := range b.partial {
			switch {
			case !add:
				kept = append(kept, queued)
			case queued == id:
				add = false
				kept = append(kept, queued)
			case b.tree.IsParent(id, queued):
				// id covers the queued descendant.
			case b.tree.IsParent(queued, id):
				add = false
				kept = append(kept, queued)
			default:
				kept = append(kept, queued)
			}
		}
		b.partial = kept
		if add {
			b.partial = append(b.partial, id)
		}
		b.startAsyncTimer(delay)
	case InProgress:
		// Files changed while evaluating; only a full pass is safe.
		b.scheduleUpdateAll(delay)
	}
}

func (b *BuildSystem) startAsyncTimer(delay Delay) {
	interval := time.Duration(0)
	if delay == ParseLater {
		interval = b.updateInterval
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timerSeq++
	seq := b.timerSeq
	b.timer = time.AfterFunc(interval, func() {
		b.Post(func() {
			if seq == b.timerSeq {
				b.asyncUpdate()
			}
		})
	})
}

func (b *BuildSystem) asyncUpdate() {
	if b.state != FullUpdatePending && b.state != PartialUpdatePending {
		return
	}
	if b.invalidateContents {
		b.invalidateContents = false
		b.vfs.InvalidateContents()
	} else {
		b.vfs.InvalidateCache()
	}

	full := b.state == FullUpdatePending
	b.generation++
	spanCtx, span := observability.Tracer.Start(b.loopCtx, "buildsystem.generation")
	span.SetAttributes(
		attribute.Int64("generation", int64(b.generation)),
		attribute.Bool("full", full),
	)
	b.genSpan = span
	b.genCtx, b.genCancel = context.WithCancel(spanCtx)
	b.genStarted = time.Now()
	b.genFull = full
	b.genDiagnostics = nil
	b.genDeltas = nil

	slog.Debug("starting generation", "generation", b.generation, "full", full, "partial", len(b.partial))
	if full {
		b.startEvaluation(b.tree.Root())
	} else {
		for _, id := range b.partial {
			b.startEvaluation(id)
		}
	}
	b.partial = nil
	b.setState(InProgress)
	if b.pending == 0 {
		b.generationDrained()
	}
}

// startEvaluation hands one .pro node to the worker pool. The worker only
// sees the immutable input and reports back through Post.
func (b *BuildSystem) startEvaluation(id project.NodeID) {
	n := b.tree.Node(id)
	if n == nil || n.Kind != project.KindPro {
		return
	}
	in := b.tree.EvalInputFor(id)
	in.BuildDir = b.BuildDir(n.Path)
	in.Sysroot = b.cfg.Project.Sysroot
	in.NewReader = func() project.EvalReader { return b.factory.NewReader() }

	gen, ctx := b.generation, b.genCtx
	b.incrementPending()
	b.workers.Add(1)
	go func() {
		defer b.workers.Done()
		result := b.evaluate(ctx, in)
		b.Post(func() { b.applyResult(gen, ctx, id, result) })
	}()
}

func (b *BuildSystem) evaluate(ctx context.Context, in project.EvalInput) *project.EvalResult {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return &project.EvalResult{State: project.EvalAbort}
	}
	defer b.sem.Release(1)

	ctx, span := observability.Tracer.Start(ctx, "buildsystem.evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("pro_file", in.ProjectFilePath))

	result := project.Evaluate(ctx, in)
	if result.State == project.EvalFail {
		span.SetStatus(codes.Error, "evaluation failed")
	}
	return result
}

func (b *BuildSystem) applyResult(gen uint64, ctx context.Context, id project.NodeID, result *project.EvalResult) {
	if b.state == ShuttingDown {
		return
	}
	defer b.decrementPending()

	if gen != b.generation || ctx.Err() != nil || b.cancelEvaluate || result.State == project.EvalAbort {
		observability.GenerationsDiscardedTotal.Inc()
		slog.Debug("discarding evaluation result", "generation", gen, "current", b.generation)
		return
	}
	if b.tree.Node(id) == nil {
		return
	}

	out := b.tree.ApplyEvaluate(id, result, false)
	for _, d := range out.Diagnostics {
		slog.Warn("project file problem", "path", d.Path, "severity", d.Severity.String(), "message", d.Message)
	}
	b.genDiagnostics = append(b.genDiagnostics, out.Diagnostics...)
	b.genDeltas = append(b.genDeltas, out.Deltas...)
	for _, child := range out.NewProFiles {
		b.startEvaluation(child)
	}
}

func (b *BuildSystem) incrementPending() {
	b.pending++
	b.pendingMirror.Store(int64(b.pending))
	observability.PendingEvaluations.Set(float64(b.pending))
}

func (b *BuildSystem) decrementPending() {
	b.pending--
	b.pendingMirror.Store(int64(b.pending))
	observability.PendingEvaluations.Set(float64(b.pending))
	if b.pending == 0 {
		b.generationDrained()
	}
}

// generationDrained runs once the last evaluation of a generation is in.
func (b *BuildSystem) generationDrained() {
	b.cancelEvaluate = false
	if b.genCancel != nil {
		b.genCancel()
	}
	if b.genSpan != nil {
		b.genSpan.End()
		b.genSpan = nil
	}

	switch b.state {
	case FullUpdatePending, PartialUpdatePending:
		b.tree.SetParseInProgressRecursive(b.tree.Root(), true)
		b.startAsyncTimer(ParseLater)
		return
	case ShuttingDown:
		return
	}

	b.setState(Idle)
	b.firstParseNeeded = false
	observability.GenerationsCompletedTotal.Inc()

	u := b.snapshot()
	attrs := []any{
		"generation", b.generation,
		"full", b.genFull,
		"pro_files", len(b.tree.AllProFiles(b.tree.Root())),
		"diagnostics", len(u.Diagnostics),
		"deltas", len(u.Deltas),
	}
	if !b.genStarted.IsZero() {
		attrs = append(attrs, "duration", time.Since(b.genStarted))
	}
	slog.Info("project evaluated", attrs...)
	b.publish(u)

	for _, ch := range b.idleWaiters {
		close(ch)
	}
	b.idleWaiters = nil
}

// refreshCodeModel republishes after the folder watcher changed file sets
// outside of an evaluation.
func (b *BuildSystem) refreshCodeModel() {
	if b.state != Idle || b.firstParseNeeded {
		return
	}
	observability.CodeModelRefreshTotal.Inc()
	b.publish(b.snapshot())
}

func (b *BuildSystem) publish(u *Update) {
	b.last.Store(u)
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- u:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- u
		}
	}
}
