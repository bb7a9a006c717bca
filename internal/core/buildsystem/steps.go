package buildsystem

import (
	"context"
	"strings"

	"qmakemodel/internal/core/config"
	"qmakemodel/internal/core/errors"
	"qmakemodel/internal/engine/buildstep"
	"qmakemodel/internal/engine/project"
	"qmakemodel/internal/shared/util"
)

// QmakeStepFor builds the qmake invocation described by cfg for projectFile.
func QmakeStepFor(cfg *config.Config, projectFile string) buildstep.QmakeStep {
	q := cfg.Qmake
	step := buildstep.QmakeStep{
		ProjectFile:        projectFile,
		QtVersion:          q.QtVersion,
		KitMkspec:          cfg.Project.Mkspec,
		BuildConfig:        buildstep.NewBuildConfig(q.Debug, q.BuildAll),
		DefaultBuildConfig: buildstep.NewBuildConfig(q.DefaultDebug, q.DefaultBuildAll),
		Config: buildstep.Config{
			OsType:            osTypeFor(cfg.Toolchain.TargetTriple),
			SysRoot:           cfg.Project.Sysroot,
			TargetTriple:      cfg.Toolchain.TargetTriple,
			QmlDebugging:      buildstep.ParseTriState(q.QmlDebugging),
			QtQuickCompiler:   buildstep.ParseTriState(q.QtQuickCompiler),
			SeparateDebugInfo: buildstep.ParseTriState(q.SeparateDebugInfo),
		},
		UserArgs:        q.UserArgs,
		ExtraArgs:       append([]string(nil), q.ExtraArgs...),
		ExtraParserArgs: append([]string(nil), q.ExtraParserArgs...),
	}
	return step
}

func osTypeFor(triple string) buildstep.OsType {
	triple = strings.ToLower(triple)
	if !strings.Contains(triple, "ios") {
		return buildstep.NoOsType
	}
	if strings.Contains(triple, "simulator") || strings.HasPrefix(triple, "x86_64") {
		return buildstep.IphoneSimulator
	}
	return buildstep.IphoneOS
}

// MakeStepFor returns the make invocation for the top level Makefile, or
// for the sub project sub when it is not nil.
func MakeStepFor(cfg *config.Config, buildDir string, sub *buildstep.SubNode) buildstep.MakeStep {
	bt := buildstep.Release
	if cfg.Qmake.Debug {
		bt = buildstep.Debug
	}
	return buildstep.MakeStep{
		BuildDir:  buildDir,
		BuildType: bt,
		UserArgs:  cfg.Qmake.MakeArgs,
		SubNode:   sub,
	}
}

// SubNodeFor describes the evaluated sub project proFile for a partial
// make run.
func (b *BuildSystem) SubNodeFor(ctx context.Context, proFile string) (buildstep.SubNode, error) {
	proFile = util.CleanPath(proFile)
	type answer struct {
		sub buildstep.SubNode
		err error
	}
	ch := make(chan answer, 1)
	b.Post(func() {
		id := b.tree.FindProFile(proFile)
		n := b.tree.Node(id)
		if n == nil {
			ch <- answer{err: errors.AddContext(errors.New(errors.CodeNotFound, "sub project not in tree"), errors.CtxPath, proFile)}
			return
		}
		values := b.tree.VariableValue(id, project.VarConfig)
		buildDir := b.BuildDir(n.Path)
		sub := buildstep.SubNode{
			ProFile:                n.Path,
			Makefile:               b.tree.SingleVariableValue(id, project.VarMakefile),
			BuildDir:               buildDir,
			DebugAndRelease:        contains(values, "debug_and_release"),
			ObjectParallelToSource: contains(values, "object_parallel_to_source"),
			ObjectExtension:        b.tree.SingleVariableValue(id, project.VarObjectExt),
		}
		if dir := b.tree.SingleVariableValue(id, project.VarObjectsDir); dir != "" {
			sub.ObjectsDir = util.ResolvePath(buildDir, dir)
		}
		ch <- answer{sub: sub}
	})
	select {
	case a := <-ch:
		return a.sub, a.err
	case <-ctx.Done():
		return buildstep.SubNode{}, ctx.Err()
	case <-b.done:
		return buildstep.SubNode{}, errors.New(errors.CodeCanceled, "build system shut down")
	}
}
