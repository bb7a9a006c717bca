package project

import (
	"context"
	"os"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"qmakemodel/internal/engine/reader"
	"qmakemodel/internal/shared/observability"
	"qmakemodel/internal/shared/util"
)

// EvalReader is a reader the evaluation owns for the duration of one call.
type EvalReader interface {
	reader.Reader
	SetExtraVars(vars map[string][]string)
	SetExtraConfigs(configs []string)
	Close()
}

// ReaderFactory hands out fresh readers bound to the build system's
// shared globals and file cache.
type ReaderFactory func() EvalReader

type EvalInput struct {
	ProjectDir      string
	ProjectFilePath string
	BuildDir        string
	Sysroot         string
	NewReader       ReaderFactory
	// ParentFilePaths holds the evaluated file and its ancestors.
	ParentFilePaths map[string]struct{}
	Included        bool
}

// PriResult is the per-file outcome of one evaluation.
type PriResult struct {
	Folders                 map[string]struct{}
	RecursiveEnumerateFiles map[string]struct{}
	FoundExact              map[FileType]map[string]struct{}
	FoundCumulative         map[FileType]map[string]struct{}
}

func newPriResult() PriResult {
	return PriResult{
		Folders:                 map[string]struct{}{},
		RecursiveEnumerateFiles: map[string]struct{}{},
		FoundExact:              map[FileType]map[string]struct{}{},
		FoundCumulative:         map[FileType]map[string]struct{}{},
	}
}

func (r *PriResult) found(t FileType, cumulative bool) map[string]struct{} {
	m := r.FoundExact
	if cumulative {
		m = r.FoundCumulative
	}
	set, ok := m[t]
	if !ok {
		set = map[string]struct{}{}
		m[t] = set
	}
	return set
}

// ChildNode describes a node to create under the evaluated .pro file.
// Pro children carry no result; they are evaluated on their own.
type ChildNode struct {
	Kind                 NodeKind
	Path                 string
	IncludedInExactParse bool
	Result               *PriResult
	Children             []*ChildNode

	parent *ChildNode
}

type EvalResult struct {
	State                  EvalState
	ProjectType            ProjectType
	BuildDir               string
	Errors                 []string
	SubProjectsNotToDeploy []string
	ExactSubdirs           map[string]struct{}
	Root                   PriResult
	Children               []*ChildNode
	ProFiles               []string
	TargetInfo             TargetInformation
	Installs               InstallsList
	Vars                   VarTable
	WildcardDirs           map[string]struct{}
	FeatureRoots           []string
}

// includedPri is the working include tree built from reader edges.
type includedPri struct {
	name     string
	subdir   bool
	parent   *includedPri
	children map[string]*includedPri
	result   PriResult
}

func newIncludedPri(name string, subdir bool, parent *includedPri) *includedPri {
	return &includedPri{
		name:     name,
		subdir:   subdir,
		parent:   parent,
		children: map[string]*includedPri{},
		result:   newPriResult(),
	}
}

func (p *includedPri) sortedChildren() []*includedPri {
	out := make([]*includedPri, 0, len(p.children))
	for _, name := range util.SortedStringKeys(p.children) {
		out = append(out, p.children[name])
	}
	return out
}

func (p *includedPri) hasAncestor(name string) bool {
	for n := p; n != nil; n = n.parent {
		if n.name == name {
			return true
		}
	}
	return false
}

// evaluateOne accepts the project file and, when BUILDS is set, evaluates
// the first build pass with its own reader. The returned build pass reader
// is r itself when no BUILDS exist, nil when r failed.
func evaluateOne(ctx context.Context, in EvalInput, r EvalReader, mode reader.LoadMode) (EvalReader, bool) {
	if err := r.Accept(ctx, in.ProjectFilePath, mode); err != nil {
		return nil, false
	}
	builds := r.Values("BUILDS")
	if len(builds) == 0 {
		return r, true
	}

	build := builds[0]
	configs := append(r.Values(build+".CONFIG"), build, "build_pass", "qtc_run")
	name := r.Values(build + ".name")
	if len(name) == 0 {
		name = []string{build}
	}

	bp := in.NewReader()
	bp.SetExtraVars(map[string][]string{
		"BUILD_PASS": {build},
		"BUILD_NAME": name,
	})
	bp.SetExtraConfigs(configs)
	if err := bp.Accept(ctx, in.ProjectFilePath, mode); err != nil {
		bp.Close()
		return nil, true
	}
	return bp, true
}

// Evaluate runs the exact and cumulative passes for one .pro file and
// reduces them into an immutable result. It never touches a live tree.
func Evaluate(ctx context.Context, in EvalInput) *EvalResult {
	ctx, span := observability.Tracer.Start(ctx, "project.Evaluate",
		trace.WithAttributes(attribute.String("pro_file", in.ProjectFilePath)))
	defer span.End()

	result := &EvalResult{
		ExactSubdirs: map[string]struct{}{},
		WildcardDirs: map[string]struct{}{},
		Root:         newPriResult(),
		BuildDir:     in.BuildDir,
	}
	if ctx.Err() != nil {
		result.State = EvalAbort
		return result
	}

	readerExact := in.NewReader()
	defer readerExact.Close()
	readerCumulative := in.NewReader()
	defer readerCumulative.Close()

	exactMode := reader.Exact
	if !in.Included {
		exactMode = reader.Cumulative
	}
	exactBuildPass, exactOk := evaluateOne(ctx, in, readerExact, exactMode)
	cumulativeBuildPass, cumulOk := evaluateOne(ctx, in, readerCumulative, reader.Cumulative)
	if exactBuildPass != nil && exactBuildPass != readerExact {
		defer exactBuildPass.Close()
	}
	if cumulativeBuildPass != nil && cumulativeBuildPass != readerCumulative {
		defer cumulativeBuildPass.Close()
	}

	result.Errors = util.RemoveDuplicates(append(readerExact.Errors(), readerCumulative.Errors()...))
	switch {
	case ctx.Err() != nil:
		result.State = EvalAbort
	case exactOk:
		result.State = EvalOk
	case cumulOk:
		result.State = EvalPartial
	default:
		result.State = EvalFail
	}
	span.SetAttributes(attribute.String("state", result.State.String()))
	observability.EvaluationsTotal.WithLabelValues(result.State.String()).Inc()
	if result.State == EvalFail || result.State == EvalAbort {
		if result.State == EvalFail {
			span.SetStatus(codes.Error, "evaluation failed")
		}
		return result
	}

	root := newIncludedPri(in.ProjectFilePath, false, nil)
	proToResult := map[string]*PriResult{}

	if result.State == EvalOk {
		result.ProjectType = projectTypeFromTemplate(readerExact.TemplateType())
	} else {
		result.ProjectType = projectTypeFromTemplate(readerCumulative.TemplateType())
	}

	if result.State == EvalOk {
		if result.ProjectType == SubDirs {
			var errs []string
			subDirs := subDirsPaths(readerExact, in.ProjectDir, &result.SubProjectsNotToDeploy, &errs)
			result.Errors = append(result.Errors, errs...)
			for _, sub := range subDirs {
				root.children[sub] = newIncludedPri(sub, true, root)
				result.ExactSubdirs[sub] = struct{}{}
			}
		}
		mapIncludeFiles(root, readerExact.IncludeFiles(), proToResult)
	}

	if result.ProjectType == SubDirs {
		for _, sub := range subDirsPaths(readerCumulative, in.ProjectDir, nil, nil) {
			if _, ok := root.children[sub]; !ok {
				root.children[sub] = newIncludedPri(sub, true, root)
			}
		}
	}
	mapIncludeFiles(root, readerCumulative.IncludeFiles(), proToResult)

	var exactReader, cumulativeReader reader.Reader = readerExact, readerCumulative
	if exactBuildPass != nil {
		exactReader = exactBuildPass
	}
	if cumulativeBuildPass != nil {
		cumulativeReader = cumulativeBuildPass
	}

	exactSourceFiles := map[string][]reader.SourceFile{}
	cumulativeSourceFiles := map[string][]reader.SourceFile{}
	baseExact := baseVPaths(exactReader, in.ProjectDir, in.BuildDir)
	baseCumulative := baseVPaths(cumulativeReader, in.ProjectDir, in.BuildDir)

	for _, t := range FileTypes() {
		for _, variable := range varNames(t, exactReader) {
			// Files found by the exact pass are skipped by the cumulative
			// one, so cumulative only holds the extra candidates.
			handled := map[string]bool{}
			if result.State == EvalOk {
				vpaths := fullVPaths(baseExact, exactReader, variable, in.ProjectDir)
				files := exactReader.AbsoluteFileValues(variable, in.ProjectDir, vpaths, handled, result.WildcardDirs)
				exactSourceFiles[variable] = files
				extractSources(proToResult, &root.result, files, t, false)
			}
			vpaths := fullVPaths(baseCumulative, cumulativeReader, variable, in.ProjectDir)
			files := cumulativeReader.AbsoluteFileValues(variable, in.ProjectDir, vpaths, handled, result.WildcardDirs)
			cumulativeSourceFiles[variable] = files
			extractSources(proToResult, &root.result, files, t, true)
		}
	}

	// Installs are taken even from a partial evaluation so the tree shows
	// a best effort list of deployed folders.
	if exactBuildPass != nil {
		result.Installs = installsList(exactBuildPass, in.ProjectFilePath, in.ProjectDir, in.BuildDir)
	}
	extractInstalls(proToResult, &root.result, result.Installs)

	if result.State == EvalOk {
		result.TargetInfo = targetInformation(readerExact, exactBuildPass, in.BuildDir, in.ProjectFilePath)
		result.Vars = variableTable(exactReader, in, exactSourceFiles, cumulativeSourceFiles)
		result.FeatureRoots = readerExact.FeatureRoots()
	}

	queue := []*includedPri{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		processValues(&cur.result)
		queue = append(queue, cur.sortedChildren()...)
	}
	result.Root = root.result

	materialize(in, result, root)
	return result
}

// mapIncludeFiles adds the include edges of one pass to the working tree.
// An edge back to a file already on the path from the root is dropped.
func mapIncludeFiles(root *includedPri, includes []reader.IncludeFile, proToResult map[string]*PriResult) {
	byParent := map[string][]string{}
	for _, inc := range includes {
		byParent[inc.Parent] = append(byParent[inc.Parent], inc.Path)
	}

	queue := []*includedPri{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.subdir {
			continue
		}
		for _, child := range byParent[cur.name] {
			if _, ok := cur.children[child]; ok || cur.hasAncestor(child) {
				continue
			}
			node := newIncludedPri(child, false, cur)
			cur.children[child] = node
			proToResult[child] = &node.result
		}
		queue = append(queue, cur.sortedChildren()...)
	}
}

func extractSources(proToResult map[string]*PriResult, fallback *PriResult, files []reader.SourceFile, t FileType, cumulative bool) {
	for _, f := range files {
		target, ok := proToResult[f.ProFile]
		if !ok {
			target = fallback
		}
		target.found(t, cumulative)[f.Path] = struct{}{}
	}
}

func extractInstalls(proToResult map[string]*PriResult, fallback *PriResult, installs InstallsList) {
	for _, item := range installs.Items {
		for _, f := range item.Files {
			target, ok := proToResult[f.ProFile]
			if !ok {
				target = fallback
			}
			target.Folders[f.Path] = struct{}{}
		}
	}
}

// processValues turns install folders into enumerated files and moves
// enumerated files into the QML and unknown buckets.
func processValues(r *PriResult) {
	for folder := range r.Folders {
		st, err := os.Stat(folder)
		switch {
		case err != nil:
			delete(r.Folders, folder)
		case st.IsDir():
			for f := range util.RecursiveEnumerate(folder) {
				r.RecursiveEnumerateFiles[f] = struct{}{}
			}
		default:
			r.RecursiveEnumerateFiles[folder] = struct{}{}
			delete(r.Folders, folder)
		}
	}

	for _, t := range FileTypes() {
		for _, buckets := range []map[FileType]map[string]struct{}{r.FoundExact, r.FoundCumulative} {
			found := buckets[t]
			for f := range found {
				delete(r.RecursiveEnumerateFiles, f)
			}
			next := filterFilesProVariables(t, found)
			for f := range filterFilesRecursiveEnumerata(t, r.RecursiveEnumerateFiles) {
				next[f] = struct{}{}
			}
			if len(next) == 0 {
				delete(buckets, t)
				continue
			}
			buckets[t] = next
		}
	}
}

func materialize(in EvalInput, result *EvalResult, root *includedPri) {
	type pending struct {
		node *ChildNode
		tree *includedPri
	}
	queue := []pending{{nil, root}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range cur.tree.sortedChildren() {
			if _, loop := in.ParentFilePaths[child.name]; loop {
				continue
			}
			loop := false
			for n := cur.node; n != nil && !loop; n = n.parent {
				loop = n.Path == child.name
			}
			if loop {
				continue
			}

			node := &ChildNode{Path: child.name, parent: cur.node}
			if child.subdir {
				_, exact := result.ExactSubdirs[child.name]
				node.Kind = KindPro
				node.IncludedInExactParse = in.Included && exact
				result.ProFiles = append(result.ProFiles, child.name)
			} else {
				childResult := child.result
				node.Kind = KindPri
				node.IncludedInExactParse = in.Included && result.State == EvalOk
				node.Result = &childResult
				queue = append(queue, pending{node, child})
			}

			if cur.node == nil {
				result.Children = append(result.Children, node)
			} else {
				cur.node.Children = append(cur.node.Children, node)
			}
		}
	}
	sort.Strings(result.ProFiles)
}

func fileListForVar(files map[string][]reader.SourceFile, names ...string) []string {
	var out []string
	for _, name := range names {
		for _, f := range files[name] {
			out = append(out, f.Path)
		}
	}
	return out
}

func variableTable(r reader.Reader, in EvalInput, exactFiles, cumulativeFiles map[string][]reader.SourceFile) VarTable {
	pch := r.FixifiedValues("PRECOMPILED_HEADER", in.ProjectDir, in.BuildDir, false)
	pchPaths := make([]string, 0, len(pch))
	for _, f := range pch {
		pchPaths = append(pchPaths, f.Path)
	}

	return VarTable{
		VarDefines:                     r.Values("DEFINES"),
		VarIncludePath:                 includePaths(r, in.Sysroot, in.BuildDir, in.ProjectDir),
		VarCppFlags:                    r.Values("QMAKE_CXXFLAGS"),
		VarCFlags:                      r.Values("QMAKE_CFLAGS"),
		VarExactSource:                 fileListForVar(exactFiles, "SOURCES", "HEADERS", "OBJECTIVE_HEADERS"),
		VarCumulativeSource:            fileListForVar(cumulativeFiles, "SOURCES", "HEADERS", "OBJECTIVE_HEADERS"),
		VarUiDir:                       {uiDirPath(r, in.BuildDir)},
		VarHeaderExtension:             {r.Value("QMAKE_EXT_H")},
		VarCppExtension:                {r.Value("QMAKE_EXT_CPP")},
		VarMocDir:                      {mocDirPath(r, in.BuildDir)},
		VarExactResource:               fileListForVar(exactFiles, "RESOURCES"),
		VarCumulativeResource:          fileListForVar(cumulativeFiles, "RESOURCES"),
		VarPkgConfig:                   r.Values("PKGCONFIG"),
		VarPrecompiledHeader:           pchPaths,
		VarLibDirectories:              libDirectories(r),
		VarConfig:                      r.Values("CONFIG"),
		VarQmlImportPath:               r.AbsolutePathValues("QML_IMPORT_PATH", in.ProjectDir),
		VarQmlDesignerImportPath:       r.AbsolutePathValues("QML_DESIGNER_IMPORT_PATH", in.ProjectDir),
		VarMakefile:                    r.Values("MAKEFILE"),
		VarQt:                          r.Values("QT"),
		VarObjectExt:                   r.Values("QMAKE_EXT_OBJ"),
		VarObjectsDir:                  r.Values("OBJECTS_DIR"),
		VarVersion:                     r.Values("VERSION"),
		VarTargetExt:                   r.Values("TARGET_EXT"),
		VarTargetVersionExt:            r.Values("TARGET_VERSION_EXT"),
		VarStaticLibExtension:          r.Values("QMAKE_EXTENSION_STATICLIB"),
		VarShLibExtension:              r.Values("QMAKE_EXTENSION_SHLIB"),
		VarAndroidAbi:                  r.Values("ANDROID_TARGET_ARCH"),
		VarAndroidDeploySettingsFile:   r.Values("ANDROID_DEPLOYMENT_SETTINGS_FILE"),
		VarAndroidPackageSourceDir:     r.Values("ANDROID_PACKAGE_SOURCE_DIR"),
		VarAndroidAbis:                 r.Values("ANDROID_ABIS"),
		VarAndroidApplicationArguments: r.Values("ANDROID_APPLICATION_ARGUMENTS"),
		VarAndroidExtraLibs:            r.Values("ANDROID_EXTRA_LIBS"),
		VarAppmanPackageDir:            r.Values("AM_PACKAGE_DIR"),
		VarAppmanManifest:              r.Values("AM_MANIFEST"),
		VarIsoIcons:                    r.Values("ISO_ICONS"),
		VarQmakeProjectName:            r.Values("QMAKE_PROJECT_NAME"),
		VarQmakeCc:                     r.Values("QMAKE_CC"),
		VarQmakeCxx:                    r.Values("QMAKE_CXX"),
	}
}
