package cpp

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gccPart() *ProjectPart {
	return &ProjectPart{
		ID:                 "/proj/app.pro app",
		ProjectFile:        "/proj/app.pro",
		TopLevelProject:    "/proj",
		LanguageVersion:    CXX17,
		LanguageExtensions: ExtensionGnu,
		ToolchainType:      ToolchainGcc,
		TargetTriple:       "x86_64-pc-linux-gnu",
		WordWidth:          64,
		QtVersion:          Qt6,
	}
}

func msvcPart() *ProjectPart {
	return &ProjectPart{
		ID:              "/proj/app.pro app",
		TopLevelProject: "/proj",
		LanguageVersion: CXX20,
		ToolchainType:   ToolchainMsvc,
		TargetTriple:    "x86_64-pc-windows-msvc",
		WordWidth:       64,
		ToolchainMacros: []Macro{
			{Key: "_MSC_FULL_VER", Value: "192829333"},
			{Key: "_MSC_VER", Value: "1928"},
			{Key: "_CPPUNWIND", Value: "1"},
		},
		ProjectMacros: []Macro{{Key: "UNICODE", Value: "1"}},
		HeaderPaths:   []HeaderPath{UserHeaderPath("/proj/inc")},
		CompilerFlags: []string{"/std:c++20", "/EHsc", "/Zc:wchar_t"},
	}
}

func TestBuild_IsDeterministic(t *testing.T) {
	part := gccPart()
	part.CompilerFlags = []string{"-fPIC", "-gcc-toolchain", "/opt/gcc"}
	part.ProjectMacros = []Macro{{Key: "FOO", Value: "1"}}
	part.HeaderPaths = []HeaderPath{UserHeaderPath("/proj/src"), BuiltInHeaderPath("/usr/include")}
	b := NewCompilerOptionsBuilder(part, BuilderOptions{Tweak: TweakYes, ClangVersion: "17", ClangIncludeDir: "/clang/include"})

	first := b.Build(CXXSource, true)
	second := b.Build(CXXSource, true)

	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, countOf(first, "--gcc-toolchain=/opt/gcc"))
}

func countOf(args []string, arg string) int {
	n := 0
	for _, a := range args {
		if a == arg {
			n++
		}
	}
	return n
}

func TestBuild_GccArgumentOrder(t *testing.T) {
	part := gccPart()
	part.CompilerFlags = []string{"-O2", "-fPIC", "-Wall", "-I", "/x", "-I/y", "-std=gnu++17", "-pedantic"}
	part.ProjectMacros = []Macro{
		{Key: "FOO", Value: "1"},
		{Key: "VERSION", Value: "3"},
		{Key: "__cplusplus", Value: "201703L"},
		{Key: "_FORTIFY_SOURCE", Value: "2"},
		{Key: "__has_include(x)", Value: "1"},
	}
	part.HeaderPaths = []HeaderPath{
		UserHeaderPath("/proj/src"),
		SystemHeaderPath("/usr/include/qt6"),
		BuiltInHeaderPath("/usr/lib/gcc/include"),
	}

	got := NewCompilerOptionsBuilder(part, BuilderOptions{}).Build(CXXSource, false)

	assert.Equal(t, []string{
		"-fPIC", "-std=gnu++17",
		"-fsyntax-only", "-m64", "--target=x86_64-pc-linux-gnu",
		"-x", "c++",
		"-DFOO", "-DVERSION=3",
		"-I", "/proj/src",
		"-I", "/usr/include/qt6",
	}, got)
}

func TestBuild_KeepsWarningsWhenRequested(t *testing.T) {
	part := gccPart()
	part.CompilerFlags = []string{"-Wall", "-w"}
	got := NewCompilerOptionsBuilder(part, BuilderOptions{UseBuildSystemWarnings: true}).Build(CXXSource, false)
	assert.Equal(t, []string{"-Wall", "-w"}, got[:2])
}

func TestBuild_LanguageMismatchYieldsNothing(t *testing.T) {
	cPart := gccPart()
	cPart.LanguageVersion = C11
	assert.Empty(t, NewCompilerOptionsBuilder(cPart, BuilderOptions{}).Build(CXXSource, false))
	assert.NotEmpty(t, NewCompilerOptionsBuilder(cPart, BuilderOptions{}).Build(CSource, false))

	cxxPart := gccPart()
	assert.Empty(t, NewCompilerOptionsBuilder(cxxPart, BuilderOptions{}).Build(CSource, false))
	assert.Empty(t, NewCompilerOptionsBuilder(cxxPart, BuilderOptions{}).Build(CHeader, false))
}

func TestBuild_MsvcStyle(t *testing.T) {
	got := NewCompilerOptionsBuilder(msvcPart(), BuilderOptions{}).Build(CXXSource, false)

	const fn = "someLegalAndLongishFunctionNameThatWorksAroundQTCREATORBUG-24580"
	assert.Equal(t, []string{
		"--driver-mode=cl", "-clang:-std=c++20", "-EHsc", "-Zc:wchar_t",
		"/Zs", "-m64", "--target=x86_64-pc-windows-msvc",
		"/TP",
		"-fcxx-exceptions", "-fexceptions",
		"-fms-compatibility-version=19.28",
		"-DUNICODE",
		`-D__FUNCSIG__="void __cdecl ` + fn + `(void)"`,
		`-D__FUNCTION__="` + fn + `"`,
		`-D__FUNCDNAME__="?` + fn + `@@YAXXZ"`,
		"-I", "/proj/inc",
	}, got)
}

func TestBuild_ClStyleLanguageVersion(t *testing.T) {
	part := msvcPart()
	part.CompilerFlags = nil
	part.LanguageVersion = CXX2b

	got := NewCompilerOptionsBuilder(part, BuilderOptions{}).Build(CXXSource, false)
	assert.Contains(t, got, "/std:c++latest")

	part.LanguageVersion = CXX11
	got = NewCompilerOptionsBuilder(part, BuilderOptions{}).Build(CXXSource, false)
	assert.Contains(t, got, "/clang:-std=c++11")
}

func TestBuild_OldMsvcUndefinesClangMacros(t *testing.T) {
	part := msvcPart()
	part.ToolchainMacros = []Macro{{Key: "_MSC_FULL_VER", Value: "130000000"}}
	part.IsMsvc2015 = true

	got := NewCompilerOptionsBuilder(part, BuilderOptions{}).Build(CXXSource, false)

	assert.Contains(t, got, "-fms-compatibility-version=13.00")
	assert.Contains(t, got, "-U__clang__")
	assert.Contains(t, got, "-U__clang_version__")
	assert.Contains(t, got, "-U__cpp_rtti")
	assert.NotContains(t, got, "-fexceptions")

	part = msvcPart()
	got = NewCompilerOptionsBuilder(part, BuilderOptions{}).Build(CXXSource, false)
	assert.NotContains(t, got, "-U__clang__")
	assert.NotContains(t, got, "-U__cpp_rtti")
}

func TestBuild_C18SpelledAs17(t *testing.T) {
	part := gccPart()
	part.LanguageVersion = C18
	part.LanguageExtensions = ExtensionNone
	part.CompilerFlags = []string{"-std=c18"}
	got := NewCompilerOptionsBuilder(part, BuilderOptions{}).Build(CSource, false)
	assert.Contains(t, got, "-std=c17")
	assert.NotContains(t, got, "-std=c18")

	part.CompilerFlags = nil
	part.LanguageExtensions = ExtensionGnu
	got = NewCompilerOptionsBuilder(part, BuilderOptions{}).Build(CSource, false)
	assert.Contains(t, got, "-std=gnu17")
	assert.Contains(t, got, "c")
}

func TestUpdateFileLanguage_ReplacesExistingOption(t *testing.T) {
	part := gccPart()
	part.CompilerFlags = []string{"-x", "c"}
	got := NewCompilerOptionsBuilder(part, BuilderOptions{}).Build(CXXHeader, false)

	assert.Equal(t, 1, countOf(got, "-x"))
	idx := slices.Index(got, "-x")
	assert.Equal(t, "c++-header", got[idx+1])

	part.LanguageExtensions |= ExtensionObjectiveC
	part.CompilerFlags = nil
	got = NewCompilerOptionsBuilder(part, BuilderOptions{}).Build(CXXSource, false)
	assert.Equal(t, "objective-c++", got[slices.Index(got, "-x")+1])
}

func TestBuild_TargetTriple(t *testing.T) {
	part := gccPart()
	part.CompilerFlags = []string{"-target", "armv7-none-eabi"}
	assert.Contains(t, NewCompilerOptionsBuilder(part, BuilderOptions{}).Build(CXXSource, false), "--target=armv7-none-eabi")

	part.TripleAuthoritative = true
	got := NewCompilerOptionsBuilder(part, BuilderOptions{}).Build(CXXSource, false)
	assert.Contains(t, got, "--target=x86_64-pc-linux-gnu")
	assert.NotContains(t, got, "--target=armv7-none-eabi")
}

func TestBuild_ToolchainMacrosForCustomToolchains(t *testing.T) {
	part := gccPart()
	part.ToolchainMacros = []Macro{{Key: "TC", Value: "1"}, {Key: "TC", Value: "1"}, {Key: "GONE", Type: MacroUndefine}}

	assert.NotContains(t, NewCompilerOptionsBuilder(part, BuilderOptions{}).Build(CXXSource, false), "-DTC")

	part.ToolchainType = ToolchainCustom
	got := NewCompilerOptionsBuilder(part, BuilderOptions{}).Build(CXXSource, false)
	assert.Equal(t, 1, countOf(got, "-DTC"))
	assert.Contains(t, got, "-UGONE")

	part.ToolchainType = ToolchainGcc
	got = NewCompilerOptionsBuilder(part, BuilderOptions{Env: Env{UseToolchainMacros: true}}).Build(CXXSource, false)
	assert.Contains(t, got, "-DTC")

	part.ToolchainType = ToolchainQnx
	got = NewCompilerOptionsBuilder(part, BuilderOptions{}).Build(CXXSource, false)
	assert.Contains(t, got, "-D_LIBCPP_HAS_NO_BUILTIN_OPERATOR_NEW_DELETE")
}

func TestBuild_BlacklistAndIncludedFiles(t *testing.T) {
	dir := filepath.ToSlash(t.TempDir())
	config := dir + "/config.h"
	pch := dir + "/pch.h"
	require.NoError(t, os.WriteFile(config, nil, 0o644))
	require.NoError(t, os.WriteFile(pch, nil, 0o644))

	part := gccPart()
	part.CompilerFlags = []string{"-fPIC", "-fno-rtti", "-include", "ignored.h"}
	part.IncludedFiles = []string{config, pch, dir + "/missing.h"}
	part.PrecompiledHeaders = []string{pch}
	opts := BuilderOptions{Env: Env{OptionsBlacklist: []string{"-fPIC"}}}

	got := NewCompilerOptionsBuilder(part, opts).Build(CXXSource, true)
	assert.NotContains(t, got, "-fPIC")
	assert.NotContains(t, got, "ignored.h")
	assert.Equal(t, "-fno-rtti", got[0])

	idx := slices.Index(got, "-include")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, []string{"-include", config, "-include", pch}, got[idx:idx+4])
	assert.Equal(t, 2, countOf(got, "-include"))

	got = NewCompilerOptionsBuilder(part, opts).Build(CXXSource, false)
	assert.Equal(t, 1, countOf(got, "-include"))
}

func TestBuild_ProjectConfigFileUsesDialect(t *testing.T) {
	part := msvcPart()
	part.ProjectConfigFile = "/proj/config.h"
	got := NewCompilerOptionsBuilder(part, BuilderOptions{}).Build(CXXSource, false)
	idx := slices.Index(got, "/FI")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "/proj/config.h", got[idx+1])
}

func TestHeaderPathOptions_UserAndSystemClassification(t *testing.T) {
	part := gccPart()
	part.HeaderPaths = []HeaderPath{
		UserHeaderPath("/proj"),
		UserHeaderPath("/proj/src"),
		UserHeaderPath("/opt/lib/include"),
		SystemHeaderPath("/usr/include/qt6"),
		FrameworkHeaderPath("/Library/Frameworks"),
	}

	b := NewCompilerOptionsBuilder(part, BuilderOptions{UseSystemHeader: true})
	b.AddHeaderPathOptions()
	assert.Equal(t, []string{
		"-I", "/proj",
		"-I", "/proj/src",
		"-isystem", "/opt/lib/include",
		"-isystem", "/usr/include/qt6",
		"-F", "/Library/Frameworks",
	}, b.Options())

	part.TopLevelProject = ""
	b = NewCompilerOptionsBuilder(part, BuilderOptions{UseSystemHeader: true})
	b.AddHeaderPathOptions()
	assert.Equal(t, "-I", b.Options()[4])

	part.TopLevelProject = "/proj"
	b = NewCompilerOptionsBuilder(part, BuilderOptions{})
	b.AddHeaderPathOptions()
	assert.Equal(t, 4, countOf(b.Options(), "-I"))
}

func TestHeaderPathOptions_SystemPathsInClMode(t *testing.T) {
	part := msvcPart()
	part.HeaderPaths = []HeaderPath{SystemHeaderPath("/sdk/include")}
	got := NewCompilerOptionsBuilder(part, BuilderOptions{UseSystemHeader: true}).Build(CXXSource, false)
	idx := slices.Index(got, "/clang:-isystem")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "/clang:/sdk/include", got[idx+1])
}

func TestHeaderPathOptions_Tweaked(t *testing.T) {
	part := gccPart()
	part.HeaderPaths = []HeaderPath{
		UserHeaderPath("/proj/src"),
		BuiltInHeaderPath("/usr/include"),
		BuiltInHeaderPath("/usr/lib/clang/15/include"),
		BuiltInHeaderPath("/usr/include/c++/12"),
	}
	got := NewCompilerOptionsBuilder(part, BuilderOptions{
		Tweak: TweakYes, ClangVersion: "17", ClangIncludeDir: "/clang/include",
	}).Build(CXXSource, false)

	assert.Equal(t, []string{"-nostdinc", "-nostdinc++"}, got[:2])
	idx := slices.Index(got, "/proj/src")
	require.Greater(t, idx, 0)
	assert.Equal(t, []string{
		"-I", "/proj/src",
		"-isystem", "/usr/include/c++/12",
		"-isystem", "/clang/include",
		"-isystem", "/usr/include",
	}, got[idx-1:])
}

func TestInsertWrappedHeaders_BeforeFirstInclude(t *testing.T) {
	res := t.TempDir()
	for _, d := range []string{"wrappedQtHeaders/QtCore", "wrappedMingwHeaders"} {
		require.NoError(t, os.MkdirAll(filepath.Join(res, "cplusplus", d), 0o755))
	}
	part := gccPart()
	part.ToolchainType = ToolchainMinGW
	part.CompilerFlags = []string{"-fkeep-inline-dllexport"}
	part.ProjectMacros = []Macro{{Key: "__GCC_ASM_FLAG_OUTPUTS__", Value: "1"}}
	part.HeaderPaths = []HeaderPath{UserHeaderPath("/proj/src")}

	got := NewCompilerOptionsBuilder(part, BuilderOptions{Tweak: TweakYes, ClangVersion: "17", ResourceDir: res}).Build(CXXSource, false)

	assert.NotContains(t, got, "-fkeep-inline-dllexport")
	assert.NotContains(t, got, "-D__GCC_ASM_FLAG_OUTPUTS__")
	first := slices.Index(got, "-I")
	require.GreaterOrEqual(t, first, 0)
	base := filepath.Join(res, "cplusplus")
	assert.Equal(t, []string{
		"-I", filepath.Join(base, "wrappedMingwHeaders"),
		"-I", filepath.Join(base, "wrappedQtHeaders"),
		"-I", filepath.Join(base, "wrappedQtHeaders", "QtCore"),
		"-I", "/proj/src",
	}, got[first:first+8])

	got = NewCompilerOptionsBuilder(part, BuilderOptions{Tweak: TweakNo, ResourceDir: res}).Build(CXXSource, false)
	assert.NotContains(t, got, filepath.Join(base, "wrappedQtHeaders"))
}
