package buildstep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qmakemodel/internal/core/errors"
)

func TestConfigCommandLineArguments(t *testing.T) {
	assert.Empty(t, ConfigCommandLineArguments(DebugBuild|BuildAll, DebugBuild|BuildAll))
	assert.Equal(t, []string{"CONFIG-=debug_and_release", "CONFIG+=release"}, ConfigCommandLineArguments(DebugBuild|BuildAll, 0))
	assert.Equal(t, []string{"CONFIG+=debug_and_release", "CONFIG+=debug"}, ConfigCommandLineArguments(0, DebugBuild|BuildAll))
}

func TestConfigArguments(t *testing.T) {
	c := Config{
		OsType:            IphoneSimulator,
		QmlDebugging:      Enabled,
		QtQuickCompiler:   Disabled,
		SeparateDebugInfo: Enabled,
		SysRoot:           "/sdk",
		TargetTriple:      "arm64-apple-ios",
	}
	assert.Equal(t, []string{
		"CONFIG+=iphonesimulator", "CONFIG+=simulator",
		"CONFIG+=qml_debug",
		"CONFIG-=qtquickcompiler",
		"CONFIG+=force_debug_info", "CONFIG+=separate_debug_info",
		`QMAKE_CFLAGS+=--sysroot="/sdk"`, `QMAKE_CXXFLAGS+=--sysroot="/sdk"`, `QMAKE_LFLAGS+=--sysroot="/sdk"`,
		"QMAKE_CFLAGS+=--target=arm64-apple-ios", "QMAKE_CXXFLAGS+=--target=arm64-apple-ios", "QMAKE_LFLAGS+=--target=arm64-apple-ios",
	}, c.Arguments())

	assert.Equal(t, []string{"CONFIG-=separate_debug_info"}, Config{SeparateDebugInfo: Disabled}.Arguments())
	assert.Empty(t, Config{}.Arguments())
}

func TestParseTriState(t *testing.T) {
	assert.Equal(t, Enabled, ParseTriState(" Enabled"))
	assert.Equal(t, Disabled, ParseTriState("disabled"))
	assert.Equal(t, Default, ParseTriState(""))
	assert.Equal(t, Default, ParseTriState("maybe"))
}

func TestQmakeStep_Arguments(t *testing.T) {
	step := QmakeStep{
		ProjectFile:        "/src/app/app.pro",
		QtVersion:          "6.5.0",
		KitMkspec:          "linux-g++",
		BuildConfig:        DebugBuild,
		DefaultBuildConfig: 0,
		Config:             Config{QmlDebugging: Enabled},
		UserArgs:           `"DEFINES+=NAME=\"x y\"" QMAKE_LFLAGS+=$$ORIGIN`,
		ExtraArgs:          []string{"-after CONFIG+=extra"},
	}

	args, err := step.Arguments()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/src/app/app.pro", "-spec", "linux-g++",
		"CONFIG+=debug", "CONFIG+=qml_debug",
		`DEFINES+=NAME="x y"`, "QMAKE_LFLAGS+=$$ORIGIN",
		"-after", "CONFIG+=extra",
	}, args)

	parser, err := step.ParserArguments()
	require.NoError(t, err)
	assert.NotContains(t, parser, "QMAKE_LFLAGS+=$$ORIGIN")
	assert.Contains(t, parser, "CONFIG+=qml_debug")
}

func TestQmakeStep_QtFourAndUserSpec(t *testing.T) {
	step := QmakeStep{
		ProjectFile: "/p/app.pro",
		SubNodeFile: "/p/lib/lib.pro",
		QtVersion:   "4.8.7",
		KitMkspec:   "linux-g++",
		UserArgs:    "-spec linux-clang",
	}
	args, err := step.Arguments()
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/lib/lib.pro", "-r", "-spec", "linux-clang"}, args)

	spec, err := step.Mkspec()
	require.NoError(t, err)
	assert.Equal(t, "linux-clang", spec)
	assert.False(t, step.RunsMakeQmakeAll())
}

func TestQmakeStep_InvalidUserArgs(t *testing.T) {
	_, err := QmakeStep{ProjectFile: "/p/app.pro", UserArgs: `"open`}.Arguments()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}

func TestQmakeStep_CommandLine(t *testing.T) {
	step := QmakeStep{ProjectFile: "/p/my app.pro", QtVersion: "6.2.0"}
	line, err := step.CommandLine("/qt/bin/qmake", "make", "Makefile")
	require.NoError(t, err)
	assert.Equal(t, "/qt/bin/qmake '/p/my app.pro' && make -f Makefile qmake_all", line)
}

func TestMakeStep_Arguments(t *testing.T) {
	args, check, err := MakeStep{BuildDir: "/b", UserArgs: "-j8"}.Arguments()
	require.NoError(t, err)
	assert.Equal(t, []string{"-j8"}, args)
	assert.Equal(t, "/b/Makefile", check)

	args, check, err = MakeStep{BuildDir: "/b", Makefile: "GNUmakefile"}.Arguments()
	require.NoError(t, err)
	assert.Equal(t, []string{"-f", "GNUmakefile"}, args)
	assert.Equal(t, "/b/GNUmakefile", check)
}

func TestMakeStep_FileBuild(t *testing.T) {
	sub := &SubNode{
		ProFile:         "/src/lib/lib.pro",
		BuildDir:        "/b/lib",
		DebugAndRelease: true,
		ObjectExtension: ".o",
	}
	args, check, err := MakeStep{BuildDir: "/b", BuildType: Release, SubNode: sub, FileNode: "/src/lib/widget.cpp"}.Arguments()
	require.NoError(t, err)
	assert.Equal(t, []string{"-f", "Makefile.Release", "release/widget.o"}, args)
	assert.Equal(t, "/b/lib/Makefile.Release", check)

	sub.DebugAndRelease = false
	sub.ObjectParallelToSource = true
	args, _, err = MakeStep{BuildDir: "/b", BuildType: Debug, SubNode: sub, FileNode: "/src/lib/core/model.cpp"}.Arguments()
	require.NoError(t, err)
	assert.Equal(t, []string{"core/model.o"}, args)
}
