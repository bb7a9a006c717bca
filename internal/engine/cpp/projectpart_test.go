package cpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyFile(t *testing.T) {
	cases := map[string]FileKind{
		"main.cpp":   CXXSource,
		"legacy.C":   CXXSource,
		"util.c":     CSource,
		"util.h":     AmbiguousHeader,
		"view.hpp":   CXXHeader,
		"Widget.H":   CXXHeader,
		"bridge.mm":  ObjCXXSource,
		"kernel.cu":  CudaSource,
		"readme.txt": Unsupported,
	}
	for file, want := range cases {
		assert.Equal(t, want, ClassifyFile(file), file)
	}
	assert.True(t, CHeader.IsC())
	assert.True(t, CudaSource.IsCxx())
	assert.False(t, AmbiguousHeader.IsC() || AmbiguousHeader.IsCxx())
}

func TestMacrosFromDefines(t *testing.T) {
	got := MacrosFromDefines("#define FOO 1\n#define MSG \"hello world\"\n#undef BAR\n// noise\n")
	assert.Equal(t, []Macro{
		{Key: "FOO", Value: "1"},
		{Key: "MSG", Value: `"hello world"`},
		{Key: "BAR", Type: MacroUndefine},
	}, got)
	assert.Equal(t, "-DFOO", got[0].KeyValue("-D"))
	assert.Equal(t, "-DEMPTY=", Macro{Key: "EMPTY"}.KeyValue("-D"))
}

func TestGenerateProjectParts_SplitsByLanguage(t *testing.T) {
	raw := RawProjectPart{
		DisplayName: "mixed",
		ProjectFile: "/p/mixed.pro",
		Files:       []string{"/p/main.cpp", "/p/util.c", "/p/util.h", "/p/notes.txt"},
		FileIsActive: func(f string) bool {
			return f != "/p/util.c"
		},
		FlagsForC:   RawFlags{CommandLineFlags: []string{"-std=gnu99"}},
		FlagsForCxx: RawFlags{CommandLineFlags: []string{"-std=c++20"}},
	}

	parts := GenerateProjectParts(raw, ToolchainInfo{Type: ToolchainGcc})

	require.Len(t, parts, 2)
	cxx, c := parts[0], parts[1]
	assert.Equal(t, "mixed (C++)", cxx.DisplayName)
	assert.Equal(t, "/p/mixed.pro mixed (C++)", cxx.ID)
	assert.Equal(t, CXX20, cxx.LanguageVersion)
	assert.Equal(t, []File{
		{Path: "/p/main.cpp", Kind: CXXSource, Active: true},
		{Path: "/p/util.h", Kind: AmbiguousHeader, Active: true},
	}, cxx.Files)

	assert.Equal(t, "mixed (C)", c.DisplayName)
	assert.Equal(t, C99, c.LanguageVersion)
	assert.NotZero(t, c.LanguageExtensions&ExtensionGnu)
	assert.Equal(t, []File{{Path: "/p/util.c", Kind: CSource}}, c.Files)
}

func TestGenerateProjectParts_HeadersOnlyAreCxx(t *testing.T) {
	parts := GenerateProjectParts(RawProjectPart{DisplayName: "hdr", Files: []string{"/p/a.h"}}, ToolchainInfo{})
	require.Len(t, parts, 1)
	assert.Equal(t, "hdr", parts[0].DisplayName)
	assert.False(t, parts[0].IsCPart())
}

func TestNewProjectPart_LanguageAndHeaders(t *testing.T) {
	raw := RawProjectPart{
		ProjectFile:     "/p/app.pro",
		TopLevelProject: "/p",
		HeaderPaths:     []HeaderPath{UserHeaderPath("/p/inc"), BuiltInHeaderPath("/usr/include")},
	}
	tc := ToolchainInfo{
		Type:               ToolchainMsvc,
		Macros:             []Macro{{Key: "__cplusplus", Value: "201402L"}},
		BuiltInHeaderPaths: []HeaderPath{BuiltInHeaderPath("/usr/include"), BuiltInHeaderPath("/msvc/include")},
	}

	part := NewProjectPart(raw, LanguageCxx, []File{{Path: "/p/x.mm", Kind: ObjCXXSource}}, tc)

	assert.Equal(t, "/p/app.pro", part.ID)
	assert.Equal(t, CXX14, part.LanguageVersion)
	assert.NotZero(t, part.LanguageExtensions&ExtensionMicrosoft)
	assert.NotZero(t, part.LanguageExtensions&ExtensionObjectiveC)
	assert.Equal(t, []HeaderPath{
		UserHeaderPath("/p/inc"),
		BuiltInHeaderPath("/usr/include"),
		BuiltInHeaderPath("/msvc/include"),
	}, part.HeaderPaths)
	assert.True(t, part.HasProject())
	assert.True(t, part.BelongsTo("/p"))
	assert.False(t, part.BelongsTo(""))
}

func TestNewProjectPart_DefaultVersions(t *testing.T) {
	assert.Equal(t, CXX17, NewProjectPart(RawProjectPart{}, LanguageCxx, nil, ToolchainInfo{}).LanguageVersion)
	assert.Equal(t, C11, NewProjectPart(RawProjectPart{}, LanguageC, nil, ToolchainInfo{}).LanguageVersion)
	assert.Equal(t, "c++17", CXX17.String())
}
