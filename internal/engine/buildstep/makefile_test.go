package buildstep

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qmakemodel/internal/shared/util"
)

func TestParseCommandLine_QtTable(t *testing.T) {
	const project = "../untitled7/untitled7.pro"
	cases := []struct {
		name     string
		command  string
		unparsed string
	}{
		{"Qt 5.7", "-spec linux-g++ CONFIG+=debug CONFIG+=qml_debug -o Makefile ../untitled7/untitled7.pro", "-spec linux-g++"},
		{"Qt 5.7 extra1", "SOMETHING=ELSE -spec linux-g++ CONFIG+=debug CONFIG+=qml_debug -o Makefile ../untitled7/untitled7.pro", "-spec linux-g++ SOMETHING=ELSE"},
		{"Qt 5.7 extra2", "-spec linux-g++ SOMETHING=ELSE CONFIG+=debug CONFIG+=qml_debug -o Makefile ../untitled7/untitled7.pro", "-spec linux-g++ SOMETHING=ELSE"},
		{"Qt 5.7 extra3", "-spec linux-g++ CONFIG+=debug SOMETHING=ELSE CONFIG+=qml_debug -o Makefile ../untitled7/untitled7.pro", "-spec linux-g++ SOMETHING=ELSE"},
		{"Qt 5.7 extra4", "-spec linux-g++ CONFIG+=debug CONFIG+=qml_debug SOMETHING=ELSE -o Makefile ../untitled7/untitled7.pro", "-spec linux-g++ SOMETHING=ELSE"},
		{"Qt 5.7 extra5", "-spec linux-g++ CONFIG+=debug CONFIG+=qml_debug -o Makefile SOMETHING=ELSE ../untitled7/untitled7.pro", "-spec linux-g++ SOMETHING=ELSE"},
		{"Qt 5.7 extra6", "-spec linux-g++ CONFIG+=debug CONFIG+=qml_debug -o Makefile ../untitled7/untitled7.pro SOMETHING=ELSE", "-spec linux-g++ SOMETHING=ELSE"},
		{"Qt 5.8", "-o Makefile ../untitled7/untitled7.pro -spec linux-g++ CONFIG+=debug CONFIG+=qml_debug", "-spec linux-g++"},
		{"Qt 5.8 extra1", "SOMETHING=ELSE -o Makefile ../untitled7/untitled7.pro -spec linux-g++ CONFIG+=debug CONFIG+=qml_debug", "-spec linux-g++ SOMETHING=ELSE"},
		{"Qt 5.8 extra2", "-o Makefile SOMETHING=ELSE ../untitled7/untitled7.pro -spec linux-g++ CONFIG+=debug CONFIG+=qml_debug", "-spec linux-g++ SOMETHING=ELSE"},
		{"Qt 5.8 extra3", "-o Makefile ../untitled7/untitled7.pro SOMETHING=ELSE -spec linux-g++ CONFIG+=debug CONFIG+=qml_debug", "-spec linux-g++ SOMETHING=ELSE"},
		{"Qt 5.8 extra4", "-o Makefile ../untitled7/untitled7.pro -spec linux-g++ SOMETHING=ELSE CONFIG+=debug CONFIG+=qml_debug", "-spec linux-g++ SOMETHING=ELSE"},
		{"Qt 5.8 extra5", "-o Makefile ../untitled7/untitled7.pro -spec linux-g++ CONFIG+=debug SOMETHING=ELSE CONFIG+=qml_debug", "-spec linux-g++ SOMETHING=ELSE"},
		{"Qt 5.8 extra6", "-o Makefile ../untitled7/untitled7.pro -spec linux-g++ CONFIG+=debug CONFIG+=qml_debug SOMETHING=ELSE", "-spec linux-g++ SOMETHING=ELSE"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info, err := ParseCommandLine(tc.command, project, FilterKnownConfigValues)
			require.NoError(t, err)

			want, err := util.SplitArgs(tc.unparsed)
			require.NoError(t, err)
			assert.Equal(t, want, info.UnparsedArguments)
			assert.Equal(t, DebugBuild, info.EffectiveBuildConfig(0))
			assert.Equal(t, NoOsType, info.Config.OsType)
			assert.Equal(t, Enabled, info.Config.QmlDebugging)
			assert.NotEqual(t, Enabled, info.Config.QtQuickCompiler)
			assert.NotEqual(t, Enabled, info.Config.SeparateDebugInfo)
		})
	}
}

func TestParseCommandLine_ConfigSwitches(t *testing.T) {
	info, err := ParseCommandLine(
		`app.pro CONFIG-=debug_and_release "CONFIG+=iphoneos qtquickcompiler" CONFIG-=qml_debug CONFIG+=force_debug_info -after DEFINES+=LATE`,
		"app.pro", FilterKnownConfigValues)
	require.NoError(t, err)

	assert.Equal(t, IphoneOS, info.Config.OsType)
	assert.Equal(t, Enabled, info.Config.QtQuickCompiler)
	assert.Equal(t, Disabled, info.Config.QmlDebugging)
	assert.Equal(t, DebugBuild, info.EffectiveBuildConfig(DebugBuild|BuildAll))
	assert.Equal(t, []string{"CONFIG+=force_debug_info", "-after", "DEFINES+=LATE"}, info.UnparsedArguments)
}

func TestParseCommandLine_SeparateDebugInfoPair(t *testing.T) {
	info, err := ParseCommandLine("CONFIG+=force_debug_info CONFIG+=separate_debug_info CONFIG+=release", "", FilterKnownConfigValues)
	require.NoError(t, err)
	assert.Equal(t, Enabled, info.Config.SeparateDebugInfo)
	assert.Empty(t, info.UnparsedArguments)
	assert.Equal(t, BuildConfig(0), info.EffectiveBuildConfig(DebugBuild))

	unfiltered, err := ParseCommandLine("CONFIG+=release", "", DoNotFilterKnownConfigValues)
	require.NoError(t, err)
	assert.Equal(t, []string{"CONFIG+=release"}, unfiltered.UnparsedArguments)
}

func writeMakefile(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "Makefile")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestParseMakefile(t *testing.T) {
	dir := t.TempDir()
	qmake := filepath.Join(dir, "qmake")
	require.NoError(t, os.WriteFile(qmake, nil, 0o755))

	makefile := writeMakefile(t, filepath.Join(dir), "#############\n"+
		"# Project:  ../src/app.pro\n"+
		"# Command: /opt/qt/bin/qmake -o Makefile ../src/app.pro -spec linux-g++ CONFIG+=debug\n"+
		"QMAKE         = "+qmake+"\n")

	info := ParseMakefile(makefile, FilterKnownConfigValues)
	assert.Equal(t, MakefileOkay, info.State)
	assert.Equal(t, util.ResolvePath(filepath.ToSlash(dir), "../src/app.pro"), info.SrcProFile)
	assert.Equal(t, util.CleanPath(qmake), info.QmakePath)
	assert.Equal(t, []string{"-spec", "linux-g++"}, info.UnparsedArguments)
	assert.Equal(t, DebugBuild, info.EffectiveBuildConfig(0))
}

func TestParseMakefile_States(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, MakefileMissing, ParseMakefile(filepath.Join(dir, "nope"), FilterKnownConfigValues).State)

	noCommand := writeMakefile(t, dir, "# Project: app.pro\n")
	assert.Equal(t, MakefileCouldNotParse, ParseMakefile(noCommand, FilterKnownConfigValues).State)

	noProject := writeMakefile(t, dir, "# Command: /bin/qmake app.pro\n")
	assert.Equal(t, MakefileCouldNotParse, ParseMakefile(noProject, FilterKnownConfigValues).State)
}

func TestCompareMakefile(t *testing.T) {
	dir := t.TempDir()
	project := filepath.ToSlash(filepath.Join(dir, "app.pro"))
	step := QmakeStep{
		ProjectFile:        project,
		QtVersion:          "6.5.0",
		KitMkspec:          "linux-g++",
		BuildConfig:        DebugBuild,
		DefaultBuildConfig: 0,
		Config:             Config{QmlDebugging: Enabled},
	}

	assert.Equal(t, MakefileNotFound, mustCompare(t, filepath.Join(dir, "Makefile"), step))

	writeMakefile(t, dir, "# Project: app.pro\n# Command: /qt/bin/qmake -o Makefile app.pro -spec linux-g++ CONFIG+=debug CONFIG+=qml_debug\n")
	assert.Equal(t, MakefileMatches, mustCompare(t, filepath.Join(dir, "Makefile"), step))

	release := step
	release.BuildConfig = 0
	assert.Equal(t, MakefileIncompatible, mustCompare(t, filepath.Join(dir, "Makefile"), release))

	other := step
	other.ProjectFile = filepath.ToSlash(filepath.Join(dir, "other.pro"))
	assert.Equal(t, MakefileForWrongProject, mustCompare(t, filepath.Join(dir, "Makefile"), other))

	extra := step
	extra.UserArgs = "DEFINES+=X"
	assert.Equal(t, MakefileIncompatible, mustCompare(t, filepath.Join(dir, "Makefile"), extra))
}

func mustCompare(t *testing.T, makefile string, step QmakeStep) MakefileMatch {
	t.Helper()
	m, err := CompareMakefile(makefile, "", step)
	require.NoError(t, err)
	return m
}
