package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qmakemodel/internal/engine/reader"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return filepath.ToSlash(p)
}

func newFactory() *reader.Factory {
	return reader.NewFactory(reader.NewShared(func() *reader.Globals { return reader.DefaultGlobals("linux") }), reader.NewVFS(64))
}

func inputFor(f *reader.Factory, proFile string) EvalInput {
	dir := filepath.ToSlash(filepath.Dir(proFile))
	return EvalInput{
		ProjectDir:      dir,
		ProjectFilePath: proFile,
		BuildDir:        dir + "/build",
		NewReader:       func() EvalReader { return f.NewReader() },
		ParentFilePaths: map[string]struct{}{proFile: {}},
		Included:        true,
	}
}

func keys(m map[string]struct{}) []string {
	return sortedSet(m)
}

func TestEvaluate_Application(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "main.cpp", "")
	header := writeFile(t, dir, "widget.h", "")
	form := writeFile(t, dir, "widget.ui", "")
	pro := writeFile(t, dir, "app.pro", `TEMPLATE = app
TARGET = demo
SOURCES = main.cpp missing.cpp
HEADERS = widget.h
FORMS = widget.ui
DEFINES += APP_VERSION=2 USE_GUI
QMAKE_PROJECT_NAME = Demo
`)

	result := Evaluate(context.Background(), inputFor(newFactory(), pro))

	require.Equal(t, EvalOk, result.State)
	assert.Equal(t, Application, result.ProjectType)
	assert.Equal(t, []string{main}, keys(result.Root.FoundExact[FileSource]))
	assert.Equal(t, []string{header}, keys(result.Root.FoundExact[FileHeader]))
	assert.Equal(t, []string{form}, keys(result.Root.FoundExact[FileForm]))
	assert.Equal(t, []string{"APP_VERSION=2", "USE_GUI"}, result.Vars[VarDefines])
	assert.Equal(t, []string{"Demo"}, result.Vars[VarQmakeProjectName])
	assert.True(t, result.TargetInfo.Valid)
	assert.Equal(t, "demo", result.TargetInfo.Target)
	assert.Empty(t, result.Children)
}

func TestEvaluate_ExactFilesAreSubsetOfCumulative(t *testing.T) {
	dir := t.TempDir()
	unixFile := writeFile(t, dir, "unix.cpp", "")
	winFile := writeFile(t, dir, "win.cpp", "")
	writeFile(t, dir, "main.cpp", "")
	pro := writeFile(t, dir, "app.pro", `SOURCES = main.cpp
unix {
    SOURCES += unix.cpp
} else {
    SOURCES += win.cpp
}
`)

	result := Evaluate(context.Background(), inputFor(newFactory(), pro))
	require.Equal(t, EvalOk, result.State)

	assert.Contains(t, result.Root.FoundExact[FileSource], unixFile)
	assert.NotContains(t, result.Root.FoundExact[FileSource], winFile)
	assert.Contains(t, result.Root.FoundCumulative[FileSource], winFile)

	tree := NewTree()
	root := tree.SetRoot(pro)
	tree.ApplyEvaluate(root, result, false)

	all := map[string]FileOrigin{}
	for _, sf := range tree.Node(root).Files[FileSource] {
		all[sf.Path] = sf.Origin
	}
	for f := range result.Root.FoundExact[FileSource] {
		origin, ok := all[f]
		require.True(t, ok, f)
		assert.Equal(t, ExactParse, origin)
	}
	assert.Equal(t, CumulativeParse, all[winFile])
}

func TestEvaluate_SubDirs(t *testing.T) {
	dir := t.TempDir()
	lib := writeFile(t, dir, "lib/lib.pro", "TEMPLATE = lib\n")
	app := writeFile(t, dir, "app/app.pro", "TEMPLATE = app\n")
	pro := writeFile(t, dir, "all.pro", `TEMPLATE = subdirs
SUBDIRS = lib app ghost
app.CONFIG += no_default_target
`)

	result := Evaluate(context.Background(), inputFor(newFactory(), pro))

	require.Equal(t, EvalOk, result.State)
	assert.Equal(t, SubDirs, result.ProjectType)
	assert.Equal(t, []string{app, lib}, result.ProFiles)
	for _, c := range result.Children {
		assert.Equal(t, KindPro, c.Kind)
		assert.True(t, c.IncludedInExactParse)
	}
	assert.Equal(t, []string{app}, result.SubProjectsNotToDeploy)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[len(result.Errors)-1], `Could not find .pro file for subdirectory "ghost"`)
}

func TestEvaluate_IncludedPriOwnsItsFiles(t *testing.T) {
	dir := t.TempDir()
	common := writeFile(t, dir, "common/common.cpp", "")
	writeFile(t, dir, "main.cpp", "")
	pri := writeFile(t, dir, "common/common.pri", "SOURCES += $$PWD/common.cpp\n")
	pro := writeFile(t, dir, "app.pro", "SOURCES = main.cpp\ninclude(common/common.pri)\n")

	result := Evaluate(context.Background(), inputFor(newFactory(), pro))

	require.Equal(t, EvalOk, result.State)
	require.Len(t, result.Children, 1)
	child := result.Children[0]
	assert.Equal(t, KindPri, child.Kind)
	assert.Equal(t, pri, child.Path)
	assert.Contains(t, child.Result.FoundExact[FileSource], common)
	assert.NotContains(t, result.Root.FoundExact[FileSource], common)
}

func TestEvaluate_CircularIncludeTerminates(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.pri", "include(b.pri)\n")
	b := writeFile(t, dir, "b.pri", "include(a.pri)\n")
	pro := writeFile(t, dir, "app.pro", "include(a.pri)\n")

	result := Evaluate(context.Background(), inputFor(newFactory(), pro))

	require.Equal(t, EvalOk, result.State)
	require.Len(t, result.Children, 1)
	assert.Equal(t, a, result.Children[0].Path)
	require.Len(t, result.Children[0].Children, 1)
	assert.Equal(t, b, result.Children[0].Children[0].Path)
	assert.Empty(t, result.Children[0].Children[0].Children)
}

func TestEvaluate_SyntaxErrorFails(t *testing.T) {
	dir := t.TempDir()
	pro := writeFile(t, dir, "broken.pro", "unix {\nSOURCES = a.cpp\n")

	result := Evaluate(context.Background(), inputFor(newFactory(), pro))

	assert.Equal(t, EvalFail, result.State)
	assert.NotEmpty(t, result.Errors)
}

func TestEvaluate_CanceledContextAborts(t *testing.T) {
	dir := t.TempDir()
	pro := writeFile(t, dir, "app.pro", "SOURCES = a.cpp\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := Evaluate(ctx, inputFor(newFactory(), pro))

	assert.Equal(t, EvalAbort, result.State)
}

func TestEvaluate_InstallsFeedWatchedFolders(t *testing.T) {
	dir := t.TempDir()
	qml := writeFile(t, dir, "assets/main.qml", "")
	txt := writeFile(t, dir, "assets/readme.txt", "")
	pro := writeFile(t, dir, "app.pro", "deploy.path = /opt/demo\ndeploy.files = assets\nINSTALLS += deploy\n")

	result := Evaluate(context.Background(), inputFor(newFactory(), pro))

	require.Equal(t, EvalOk, result.State)
	require.Len(t, result.Installs.Items, 1)
	assert.Equal(t, "/opt/demo", result.Installs.Items[0].Path)
	assert.Equal(t, []string{filepath.ToSlash(dir) + "/assets"}, keys(result.Root.Folders))
	assert.Contains(t, result.Root.FoundExact[FileQML], qml)
	assert.Contains(t, result.Root.FoundExact[FileUnknown], txt)
}

func TestEvaluate_WildcardDirsRecorded(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "src/a.cpp", "")
	b := writeFile(t, dir, "src/b.cpp", "")
	pro := writeFile(t, dir, "app.pro", "SOURCES = src/*.cpp\n")

	result := Evaluate(context.Background(), inputFor(newFactory(), pro))

	require.Equal(t, EvalOk, result.State)
	assert.Equal(t, []string{a, b}, keys(result.Root.FoundExact[FileSource]))
	assert.Equal(t, []string{filepath.ToSlash(dir) + "/src"}, keys(result.WildcardDirs))
}
