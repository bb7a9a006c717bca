package cpp

import (
	"strconv"
	"strings"
)

type BuildTargetType int

const (
	TargetUnknown BuildTargetType = iota
	TargetExecutable
	TargetLibrary
)

// RawFlags are the compiler flags a build system reports for one language.
type RawFlags struct {
	CommandLineFlags []string
}

// RawProjectPart is the build system's description of one project before
// it is split per language.
type RawProjectPart struct {
	DisplayName       string
	ProjectFile       string
	BuildSystemTarget string
	BuildTargetType   BuildTargetType
	TopLevelProject   string
	SelectedForBuild  bool
	Files             []string
	// FileIsActive reports whether a file belongs to the current
	// configuration. A nil func marks every file active.
	FileIsActive       func(string) bool
	PrecompiledHeaders []string
	IncludedFiles      []string
	ProjectConfigFile  string
	HeaderPaths        []HeaderPath
	ProjectMacros      []Macro
	QtVersion          QtVersion
	FlagsForC          RawFlags
	FlagsForCxx        RawFlags
}

// ToolchainInfo is the kit side of a project part.
type ToolchainInfo struct {
	Type                string
	TargetTriple        string
	TripleAuthoritative bool
	WordWidth           int
	InstallDir          string
	Msvc2015            bool
	Macros              []Macro
	BuiltInHeaderPaths  []HeaderPath
	ExtraCodeModelFlags []string
}

// ProjectPart is an immutable code model configuration shared by a set of
// files of one language.
type ProjectPart struct {
	ID                  string
	DisplayName         string
	ProjectFile         string
	TopLevelProject     string
	BuildSystemTarget   string
	BuildTargetType     BuildTargetType
	LanguageVersion     LanguageVersion
	LanguageExtensions  LanguageExtensions
	QtVersion           QtVersion
	ToolchainType       string
	TargetTriple        string
	TripleAuthoritative bool
	WordWidth           int
	IsMsvc2015          bool
	ToolchainInstallDir string
	ToolchainMacros     []Macro
	ProjectMacros       []Macro
	HeaderPaths         []HeaderPath
	PrecompiledHeaders  []string
	IncludedFiles       []string
	ProjectConfigFile   string
	CompilerFlags       []string
	ExtraCodeModelFlags []string
	SelectedForBuilding bool
	Files               []File
}

// HasProject reports whether the part was created from a project rather
// than being a fallback.
func (p *ProjectPart) HasProject() bool { return p.TopLevelProject != "" }

// BelongsTo reports whether the part stems from the given top level project.
func (p *ProjectPart) BelongsTo(topLevelProject string) bool {
	if topLevelProject == "" {
		return !p.HasProject()
	}
	return p.TopLevelProject == topLevelProject
}

func (p *ProjectPart) IsCPart() bool { return p.LanguageVersion.IsC() }

// NewProjectPart builds a part for the given language from a raw part. The
// header paths of the raw part come first, followed by the toolchain's
// built-in paths that are not already present.
func NewProjectPart(raw RawProjectPart, lang Language, files []File, tc ToolchainInfo) *ProjectPart {
	flags := raw.FlagsForCxx
	if lang == LanguageC {
		flags = raw.FlagsForC
	}
	version, ext := languageFromFlags(flags.CommandLineFlags, lang, tc)
	for _, f := range files {
		if f.Kind.IsObjC() {
			ext |= ExtensionObjectiveC
			break
		}
	}

	id := raw.ProjectFile
	if raw.DisplayName != "" {
		id += " " + raw.DisplayName
	}

	headers := append([]HeaderPath(nil), raw.HeaderPaths...)
	seen := make(map[HeaderPath]struct{}, len(headers))
	for _, hp := range headers {
		seen[hp] = struct{}{}
	}
	for _, hp := range tc.BuiltInHeaderPaths {
		if _, ok := seen[hp]; !ok {
			seen[hp] = struct{}{}
			headers = append(headers, hp)
		}
	}

	return &ProjectPart{
		ID:                  id,
		DisplayName:         raw.DisplayName,
		ProjectFile:         raw.ProjectFile,
		TopLevelProject:     raw.TopLevelProject,
		BuildSystemTarget:   raw.BuildSystemTarget,
		BuildTargetType:     raw.BuildTargetType,
		LanguageVersion:     version,
		LanguageExtensions:  ext,
		QtVersion:           raw.QtVersion,
		ToolchainType:       tc.Type,
		TargetTriple:        tc.TargetTriple,
		TripleAuthoritative: tc.TripleAuthoritative,
		WordWidth:           tc.WordWidth,
		IsMsvc2015:          tc.Msvc2015,
		ToolchainInstallDir: tc.InstallDir,
		ToolchainMacros:     append([]Macro(nil), tc.Macros...),
		ProjectMacros:       append([]Macro(nil), raw.ProjectMacros...),
		HeaderPaths:         headers,
		PrecompiledHeaders:  append([]string(nil), raw.PrecompiledHeaders...),
		IncludedFiles:       append([]string(nil), raw.IncludedFiles...),
		ProjectConfigFile:   raw.ProjectConfigFile,
		CompilerFlags:       append([]string(nil), flags.CommandLineFlags...),
		ExtraCodeModelFlags: append([]string(nil), tc.ExtraCodeModelFlags...),
		SelectedForBuilding: raw.SelectedForBuild,
		Files:               files,
	}
}

// GenerateProjectParts splits a raw part into one part per language found
// in its files. Ambiguous headers go with C++ unless the project only has C
// sources.
func GenerateProjectParts(raw RawProjectPart, tc ToolchainInfo) []*ProjectPart {
	var cFiles, cxxFiles, ambiguous []File
	for _, p := range raw.Files {
		kind := ClassifyFile(p)
		if kind == Unsupported {
			continue
		}
		active := raw.FileIsActive == nil || raw.FileIsActive(p)
		f := File{Path: p, Kind: kind, Active: active}
		switch {
		case kind == AmbiguousHeader:
			ambiguous = append(ambiguous, f)
		case kind.IsC():
			cFiles = append(cFiles, f)
		default:
			cxxFiles = append(cxxFiles, f)
		}
	}

	hasC := len(cFiles) > 0
	hasCxx := len(cxxFiles) > 0 || (!hasC && len(ambiguous) > 0)
	if hasCxx {
		cxxFiles = append(cxxFiles, ambiguous...)
	} else {
		cFiles = append(cFiles, ambiguous...)
	}

	var parts []*ProjectPart
	multiple := hasC && hasCxx
	if hasCxx {
		r := raw
		if multiple {
			r.DisplayName += " (C++)"
		}
		parts = append(parts, NewProjectPart(r, LanguageCxx, cxxFiles, tc))
	}
	if hasC {
		r := raw
		if multiple {
			r.DisplayName += " (C)"
		}
		parts = append(parts, NewProjectPart(r, LanguageC, cFiles, tc))
	}
	return parts
}

var stdVersions = map[string]LanguageVersion{
	"c89": C89, "c90": C89, "iso9899:1990": C89,
	"c99": C99, "c9x": C99,
	"c11": C11, "c1x": C11,
	"c17": C18, "c18": C18,
	"c++98": CXX98, "c++03": CXX03,
	"c++11": CXX11, "c++0x": CXX11,
	"c++14": CXX14, "c++1y": CXX14,
	"c++17": CXX17, "c++1z": CXX17,
	"c++20": CXX20, "c++2a": CXX20,
	"c++23": CXX2b, "c++2b": CXX2b, "c++latest": CXX2b,
}

// languageFromFlags detects the language version from a -std or /std flag,
// then from the toolchain's language macros, then falls back to a default.
func languageFromFlags(flags []string, lang Language, tc ToolchainInfo) (LanguageVersion, LanguageExtensions) {
	var ext LanguageExtensions
	if tc.Type == ToolchainMsvc || tc.Type == ToolchainClangCl {
		ext |= ExtensionMicrosoft
	}
	for _, flag := range flags {
		var std string
		switch {
		case strings.HasPrefix(flag, "-std="):
			std = flag[len("-std="):]
		case strings.HasPrefix(flag, "--std="):
			std = flag[len("--std="):]
		case strings.HasPrefix(flag, "/std:"), strings.HasPrefix(flag, "-std:"):
			std = flag[len("/std:"):]
		case flag == "-fopenmp" || strings.EqualFold(flag, "/openmp"):
			ext |= ExtensionOpenMP
			continue
		default:
			continue
		}
		if strings.HasPrefix(std, "gnu") {
			ext |= ExtensionGnu
			std = "c" + std[len("gnu"):]
		}
		if v, ok := stdVersions[std]; ok && v.IsC() == (lang == LanguageC) {
			return v, ext
		}
	}
	if v := versionFromMacros(tc.Macros, lang); v != LanguageVersionNone {
		return v, ext
	}
	if lang == LanguageC {
		return C11, ext
	}
	return CXX17, ext
}

func versionFromMacros(macros []Macro, lang Language) LanguageVersion {
	key := "__cplusplus"
	if lang == LanguageC {
		key = "__STDC_VERSION__"
	}
	for _, m := range macros {
		if m.Key != key {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimSuffix(m.Value, "L"), "l"), 10, 64)
		if err != nil {
			return LanguageVersionNone
		}
		if lang == LanguageC {
			switch {
			case n > 201112:
				return C18
			case n > 199901:
				return C11
			default:
				return C99
			}
		}
		switch {
		case n > 202002:
			return CXX2b
		case n > 201703:
			return CXX20
		case n > 201402:
			return CXX17
		case n > 201103:
			return CXX14
		case n > 199711:
			return CXX11
		default:
			return CXX98
		}
	}
	return LanguageVersionNone
}
