package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qmakemodel/internal/core/watcher"
)

type fakeRegistry struct {
	owners map[string][]watcher.Owner
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{owners: map[string][]watcher.Owner{}}
}

func (r *fakeRegistry) Watch(folders []string, owner watcher.Owner) {
	for _, f := range folders {
		r.owners[f] = append(r.owners[f], owner)
	}
}

func (r *fakeRegistry) Unwatch(folders []string, owner watcher.Owner) {
	for _, f := range folders {
		list := r.owners[f]
		for i, o := range list {
			if o == owner {
				r.owners[f] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(r.owners[f]) == 0 {
			delete(r.owners, f)
		}
	}
}

func applyProject(t *testing.T, tree *Tree, id NodeID) ApplyOutcome {
	t.Helper()
	n := tree.Node(id)
	require.NotNil(t, n)
	in := tree.EvalInputFor(id)
	f := newFactory()
	in.NewReader = func() EvalReader { return f.NewReader() }
	in.BuildDir = in.ProjectDir + "/build"
	return tree.ApplyEvaluate(id, Evaluate(context.Background(), in), false)
}

func TestApplyEvaluate_PopulatesProNode(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "main.cpp", "")
	pro := writeFile(t, dir, "app.pro", "TARGET = demo\nSOURCES = main.cpp\nDEFINES += FOO=1 BAR\nQMAKE_PROJECT_NAME = Demo App\n")

	tree := NewTree()
	root := tree.SetRoot(pro)
	assert.True(t, tree.Node(root).Pro.ParseInProgress)

	out := applyProject(t, tree, root)

	n := tree.Node(root)
	assert.Empty(t, out.NewProFiles)
	assert.False(t, n.Pro.ParseInProgress)
	assert.True(t, n.Pro.ValidParse)
	assert.Equal(t, Application, n.Pro.ProjectType)
	assert.Equal(t, "demo", n.Pro.TargetInfo.Target)
	assert.Equal(t, "Demo", n.DisplayName())
	assert.Equal(t, []SourceFile{{Path: main, Origin: ExactParse}}, n.Files[FileSource])
	assert.Equal(t, "#define FOO 1\n#define BAR 1\n", tree.CxxDefines(root))
	require.Len(t, out.Deltas, 1)
	assert.Equal(t, FileSource, out.Deltas[0].Type)
	assert.Equal(t, []string{main}, out.Deltas[0].Added)
}

func TestApplyEvaluate_SubProjectsAndStaleHandles(t *testing.T) {
	dir := t.TempDir()
	lib := writeFile(t, dir, "lib/lib.pro", "TEMPLATE = lib\n")
	writeFile(t, dir, "app/app.pro", "TEMPLATE = app\n")
	pro := writeFile(t, dir, "all.pro", "TEMPLATE = subdirs\nSUBDIRS = lib app\n")

	tree := NewTree()
	root := tree.SetRoot(pro)
	out := applyProject(t, tree, root)

	require.Len(t, out.NewProFiles, 2)
	for _, id := range out.NewProFiles {
		n := tree.Node(id)
		require.NotNil(t, n)
		assert.Equal(t, KindPro, n.Kind)
		assert.True(t, n.Pro.ParseInProgress)
		assert.True(t, tree.IsParent(root, id))
		assert.False(t, tree.IsParent(id, root))
	}
	libID := tree.FindProFile(lib)
	require.True(t, libID.Valid())
	applyProject(t, tree, libID)
	assert.Equal(t, SharedLibrary, tree.Node(libID).Pro.ProjectType)
	assert.Len(t, tree.AllProFiles(root), 3)

	stale := out.NewProFiles
	again := applyProject(t, tree, root)
	for _, id := range stale {
		assert.Nil(t, tree.Node(id))
	}
	require.Len(t, again.NewProFiles, 2)
	for _, id := range again.NewProFiles {
		assert.NotNil(t, tree.Node(id))
	}
	assert.Equal(t, 3, tree.Len())
}

func findDelta(deltas []FileDelta, node string, ft FileType) (FileDelta, bool) {
	for _, d := range deltas {
		if d.Node == node && d.Type == ft {
			return d, true
		}
	}
	return FileDelta{}, false
}

func TestApplyEvaluate_RescanWithoutChangesHasNoDeltas(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a/main.cpp", "")
	writeFile(t, dir, "b/lib.cpp", "")
	writeFile(t, dir, "a/a.pro", "SOURCES = main.cpp\n")
	writeFile(t, dir, "b/b.pro", "TEMPLATE = lib\nSOURCES = lib.cpp\n")
	pro := writeFile(t, dir, "all.pro", "TEMPLATE = subdirs\nSUBDIRS = a b\n")

	tree := NewTree()
	root := tree.SetRoot(pro)
	first := applyProject(t, tree, root)
	var initial []FileDelta
	for _, id := range first.NewProFiles {
		initial = append(initial, applyProject(t, tree, id).Deltas...)
	}
	require.NotEmpty(t, initial)

	again := applyProject(t, tree, root)
	assert.Empty(t, again.Deltas)
	require.Len(t, again.NewProFiles, 2)
	for _, id := range again.NewProFiles {
		assert.Empty(t, applyProject(t, tree, id).Deltas)
	}
}

func TestApplyEvaluate_DroppedSubProjectReportsRemovedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a/main.cpp", "")
	lib := writeFile(t, dir, "b/lib.cpp", "")
	writeFile(t, dir, "a/a.pro", "SOURCES = main.cpp\n")
	bPro := writeFile(t, dir, "b/b.pro", "TEMPLATE = lib\nSOURCES = lib.cpp\n")
	pro := writeFile(t, dir, "all.pro", "TEMPLATE = subdirs\nSUBDIRS = a b\n")

	tree := NewTree()
	root := tree.SetRoot(pro)
	for _, id := range applyProject(t, tree, root).NewProFiles {
		applyProject(t, tree, id)
	}

	require.NoError(t, os.WriteFile(filepath.FromSlash(pro), []byte("TEMPLATE = subdirs\nSUBDIRS = a\n"), 0o644))
	out := applyProject(t, tree, root)
	require.Len(t, out.NewProFiles, 1)

	d, ok := findDelta(out.Deltas, bPro, FileSource)
	require.True(t, ok, "no delta for %s in %+v", bPro, out.Deltas)
	assert.Equal(t, []string{lib}, d.Removed)
	assert.Empty(t, d.Added)

	assert.Empty(t, applyProject(t, tree, out.NewProFiles[0]).Deltas)
}

func TestApplyEvaluate_FailureMarksInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "common.pri", "")
	pro := writeFile(t, dir, "app.pro", "include(common.pri)\n")

	tree := NewTree()
	root := tree.SetRoot(pro)
	applyProject(t, tree, root)
	require.Len(t, tree.Node(root).Children, 1)

	require.NoError(t, os.WriteFile(filepath.FromSlash(pro), []byte("unix {\n"), 0o644))
	f := newFactory()
	in := tree.EvalInputFor(root)
	in.NewReader = func() EvalReader { return f.NewReader() }
	out := tree.ApplyEvaluate(root, Evaluate(context.Background(), in), false)

	n := tree.Node(root)
	assert.Equal(t, Invalid, n.Pro.ProjectType)
	assert.False(t, n.Pro.ValidParse)
	assert.False(t, n.Pro.ParseInProgress)
	assert.Empty(t, n.Children)
	require.NotEmpty(t, out.Diagnostics)
	last := out.Diagnostics[len(out.Diagnostics)-1]
	assert.Equal(t, SeverityError, last.Severity)
	assert.Equal(t, "Error while parsing file "+pro+". Giving up.", last.Message)
}

func TestApplyEvaluate_CanceledKeepsChildren(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "common.pri", "")
	pro := writeFile(t, dir, "app.pro", "include(common.pri)\n")

	tree := NewTree()
	root := tree.SetRoot(pro)
	applyProject(t, tree, root)
	tree.SetParseInProgressRecursive(root, true)

	tree.ApplyEvaluate(root, &EvalResult{State: EvalOk}, true)

	n := tree.Node(root)
	assert.Len(t, n.Children, 1)
	assert.False(t, n.Pro.ValidParse)
	assert.False(t, n.Pro.ParseInProgress)
	assert.Equal(t, Application, n.Pro.ProjectType)
}

func TestApplyEvaluate_WatchesInstallFolders(t *testing.T) {
	dir := t.TempDir()
	qml := writeFile(t, dir, "assets/main.qml", "")
	pro := writeFile(t, dir, "app.pro", "deploy.path = /opt/demo\ndeploy.files = assets\nINSTALLS += deploy\n")
	assets := filepath.ToSlash(dir) + "/assets"

	reg := newFakeRegistry()
	tree := NewTree(WithFolderRegistry(reg))
	root := tree.SetRoot(pro)
	applyProject(t, tree, root)

	require.Len(t, reg.owners[assets], 1)
	assert.Equal(t, []SourceFile{{Path: qml, Origin: ExactParse}}, tree.Node(root).Files[FileQML])
	assert.True(t, tree.DeploysFolder(root, assets+"/sub"))
	assert.True(t, tree.DeploysFolder(root, assets))
	assert.False(t, tree.DeploysFolder(root, assets+"x"))
	assert.True(t, tree.KnowsFile(root, qml))

	extra := writeFile(t, dir, "assets/extra.qml", "")
	files := map[string]struct{}{qml: {}, extra: {}}
	owner := reg.owners[assets][0]
	assert.True(t, owner.FolderChanged(assets+"/", files))
	assert.False(t, owner.FolderChanged(assets+"/", files))
	assert.Equal(t, []SourceFile{
		{Path: extra, Origin: ExactParse},
		{Path: qml, Origin: ExactParse},
	}, tree.Node(root).Files[FileQML])

	assert.True(t, owner.FolderChanged(assets+"/", map[string]struct{}{extra: {}}))
	assert.Equal(t, []SourceFile{{Path: extra, Origin: ExactParse}}, tree.Node(root).Files[FileQML])

	require.NoError(t, os.WriteFile(filepath.FromSlash(pro), []byte("SOURCES =\n"), 0o644))
	f := newFactory()
	in := tree.EvalInputFor(root)
	in.NewReader = func() EvalReader { return f.NewReader() }
	tree.ApplyEvaluate(root, Evaluate(context.Background(), in), false)
	assert.Empty(t, reg.owners)
}

func TestFolderChanged_KeepsSiblingFolders(t *testing.T) {
	dir := t.TempDir()
	one := writeFile(t, dir, "assets/x/one.qml", "")
	two := writeFile(t, dir, "assets/y/two.qml", "")
	pro := writeFile(t, dir, "app.pro", "deploy.path = /opt/demo\ndeploy.files = assets\nINSTALLS += deploy\n")
	assets := filepath.ToSlash(dir) + "/assets"

	reg := newFakeRegistry()
	tree := NewTree(WithFolderRegistry(reg))
	root := tree.SetRoot(pro)
	applyProject(t, tree, root)
	require.Len(t, reg.owners[assets], 1)
	owner := reg.owners[assets][0]
	require.True(t, tree.KnowsFile(root, two))

	three := writeFile(t, dir, "assets/x/three.qml", "")
	assert.True(t, owner.FolderChanged(assets+"/x", map[string]struct{}{one: {}, three: {}}))
	assert.True(t, tree.KnowsFile(root, two))
	assert.True(t, tree.KnowsFile(root, three))

	require.NoError(t, os.Remove(filepath.FromSlash(two)))
	assert.True(t, owner.FolderChanged(assets+"/y", map[string]struct{}{}))
	assert.False(t, tree.KnowsFile(root, two))
	assert.True(t, tree.KnowsFile(root, one))
	assert.Equal(t, []SourceFile{
		{Path: one, Origin: ExactParse},
		{Path: three, Origin: ExactParse},
	}, tree.Node(root).Files[FileQML])
}

func TestApplyEvaluate_WildcardChangeSchedulesUpdate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/a.cpp", "")
	pro := writeFile(t, dir, "app.pro", "SOURCES = src/*.cpp\n")
	src := filepath.ToSlash(dir) + "/src"

	reg := newFakeRegistry()
	var scheduled []NodeID
	tree := NewTree(WithFolderRegistry(reg), WithScheduleUpdate(func(id NodeID) { scheduled = append(scheduled, id) }))
	root := tree.SetRoot(pro)
	applyProject(t, tree, root)

	require.Len(t, reg.owners[src], 1)
	assert.Equal(t, []string{src}, tree.WildcardDirs(root))
	assert.True(t, tree.IsFileFromWildcard(root, src+"/a.cpp"))
	owner := reg.owners[src][0]

	assert.False(t, owner.FolderChanged(src, nil))
	assert.Empty(t, scheduled)

	writeFile(t, dir, "src/b.cpp", "")
	assert.False(t, owner.FolderChanged(src, nil))
	assert.Equal(t, []NodeID{root}, scheduled)
	assert.True(t, tree.Node(root).Pro.ParseInProgress)
}

func TestTree_FindPriAndCollectFiles(t *testing.T) {
	dir := t.TempDir()
	form := writeFile(t, dir, "gui/dialog.ui", "")
	pri := writeFile(t, dir, "gui/gui.pri", "FORMS += $$PWD/dialog.ui\n")
	pro := writeFile(t, dir, "app.pro", "include(gui/gui.pri)\nUI_DIR = generated\n")

	tree := NewTree()
	root := tree.SetRoot(pro)
	applyProject(t, tree, root)

	priID := tree.FindPriFile(root, pri)
	require.True(t, priID.Valid())
	assert.Equal(t, KindPri, tree.Node(priID).Kind)
	assert.Equal(t, root, tree.ParentProFile(priID))
	assert.Equal(t, []NodeID{priID}, tree.SubPriFilesExact(root))
	assert.Equal(t, []string{form}, tree.CollectFiles(root, FileForm))
	assert.False(t, tree.FindProFile(pri).Valid())

	buildDir := filepath.ToSlash(dir) + "/build"
	want := buildDir + "/generated/ui_dialog.h"
	assert.Equal(t, []string{want}, tree.GeneratedFiles(root, buildDir, form, FileForm))
	require.Len(t, tree.ExtraCompilers(root), 1)
	assert.Equal(t, ExtraCompiler{Source: form, Type: FileForm, Generated: []string{want}}, tree.ExtraCompilers(root)[0])
}

func TestTree_GeneratedStateChartFiles(t *testing.T) {
	tree := NewTree()
	root := tree.SetRoot("/src/app.pro")
	tree.Node(root).Pro.Vars = VarTable{VarHeaderExtension: {".h"}, VarCppExtension: {".cpp"}}

	assert.Nil(t, tree.GeneratedFiles(root, "", "/src/machine.scxml", FileStateChart))
	assert.Equal(t, []string{"/build/machine.h", "/build/machine.cpp"},
		tree.GeneratedFiles(root, "/build", "/src/machine.scxml", FileStateChart))
	assert.Nil(t, tree.GeneratedFiles(root, "/build", "/src/a.cpp", FileSource))
}

func TestTree_EvalInputCarriesAncestors(t *testing.T) {
	dir := t.TempDir()
	sub := writeFile(t, dir, "lib/lib.pro", "")
	pro := writeFile(t, dir, "all.pro", "TEMPLATE = subdirs\nSUBDIRS = lib\n")

	tree := NewTree()
	root := tree.SetRoot(pro)
	out := applyProject(t, tree, root)
	require.Len(t, out.NewProFiles, 1)

	in := tree.EvalInputFor(out.NewProFiles[0])
	assert.Equal(t, sub, in.ProjectFilePath)
	assert.Equal(t, filepath.ToSlash(dir)+"/lib", in.ProjectDir)
	assert.Contains(t, in.ParentFilePaths, pro)
	assert.Contains(t, in.ParentFilePaths, sub)
	assert.True(t, in.Included)
}

func TestTree_ClearReleasesWatches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "assets/a.txt", "")
	pro := writeFile(t, dir, "app.pro", "deploy.path = /opt\ndeploy.files = assets\nINSTALLS += deploy\n")

	reg := newFakeRegistry()
	tree := NewTree(WithFolderRegistry(reg))
	root := tree.SetRoot(pro)
	applyProject(t, tree, root)
	require.NotEmpty(t, reg.owners)

	tree.Clear()
	assert.Empty(t, reg.owners)
	assert.Nil(t, tree.Node(root))
	assert.Zero(t, tree.Len())
}
