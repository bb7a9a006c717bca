// Package cpp turns evaluated project data into code model project parts and
// synthesizes the compiler invocations used to parse their files.
package cpp

import (
	"bufio"
	"strings"
)

// Toolchain type identifiers.
const (
	ToolchainGcc       = "gcc"
	ToolchainClang     = "clang"
	ToolchainMinGW     = "mingw"
	ToolchainMsvc      = "msvc"
	ToolchainClangCl   = "clang-cl"
	ToolchainQnx       = "qnx"
	ToolchainBareMetal = "baremetal"
	ToolchainCustom    = "custom"
)

func isBareMetal(toolchain string) bool {
	return strings.HasPrefix(toolchain, ToolchainBareMetal)
}

type MacroType int

const (
	MacroDefine MacroType = iota
	MacroUndefine
)

type Macro struct {
	Key   string
	Value string
	Type  MacroType
}

// KeyValue renders the macro as a command line definition, e.g. -DKEY=VALUE.
// A value of "1" is implied.
func (m Macro) KeyValue(prefix string) string {
	if m.Type == MacroUndefine {
		return prefix + m.Key
	}
	switch m.Value {
	case "":
		return prefix + m.Key + "="
	case "1":
		return prefix + m.Key
	default:
		return prefix + m.Key + "=" + m.Value
	}
}

// MacrosFromDefines parses "#define KEY VALUE" and "#undef KEY" lines.
func MacrosFromDefines(text string) []Macro {
	var macros []Macro
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(strings.TrimSpace(line[1:]))
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "define":
			m := Macro{Key: fields[1], Type: MacroDefine}
			rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line[1:]), "define"))
			rest = strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
			m.Value = rest
			macros = append(macros, m)
		case "undef":
			macros = append(macros, Macro{Key: fields[1], Type: MacroUndefine})
		}
	}
	return macros
}

type HeaderPathType int

const (
	HeaderPathUser HeaderPathType = iota
	HeaderPathBuiltIn
	HeaderPathSystem
	HeaderPathFramework
)

type HeaderPath struct {
	Path string
	Type HeaderPathType
}

func UserHeaderPath(p string) HeaderPath      { return HeaderPath{Path: p, Type: HeaderPathUser} }
func SystemHeaderPath(p string) HeaderPath    { return HeaderPath{Path: p, Type: HeaderPathSystem} }
func BuiltInHeaderPath(p string) HeaderPath   { return HeaderPath{Path: p, Type: HeaderPathBuiltIn} }
func FrameworkHeaderPath(p string) HeaderPath { return HeaderPath{Path: p, Type: HeaderPathFramework} }

// LanguageVersion orders all C versions before all C++ versions.
type LanguageVersion int

const (
	LanguageVersionNone LanguageVersion = iota
	C89
	C99
	C11
	C18
	CXX98
	CXX03
	CXX11
	CXX14
	CXX17
	CXX20
	CXX2b

	LatestC   = C18
	LatestCxx = CXX2b
)

var languageVersionNames = map[LanguageVersion]string{
	C89: "c89", C99: "c99", C11: "c11", C18: "c18",
	CXX98: "c++98", CXX03: "c++03", CXX11: "c++11", CXX14: "c++14",
	CXX17: "c++17", CXX20: "c++20", CXX2b: "c++2b",
}

func (v LanguageVersion) String() string {
	if name, ok := languageVersionNames[v]; ok {
		return name
	}
	return "none"
}

func (v LanguageVersion) IsC() bool { return v != LanguageVersionNone && v <= LatestC }

type LanguageExtensions uint

const (
	ExtensionGnu LanguageExtensions = 1 << iota
	ExtensionMicrosoft
	ExtensionBorland
	ExtensionOpenMP
	ExtensionObjectiveC

	ExtensionNone LanguageExtensions = 0
)

type QtVersion int

const (
	QtNone QtVersion = iota
	Qt5
	Qt6
)

// QtVersionFromString maps a "major.minor.patch" version to its major line.
func QtVersionFromString(v string) QtVersion {
	switch {
	case strings.HasPrefix(v, "5"):
		return Qt5
	case strings.HasPrefix(v, "6"):
		return Qt6
	default:
		return QtNone
	}
}

// Language is the broad language a caller prefers when choosing parts.
type Language int

const (
	LanguageC Language = iota
	LanguageCxx
)
