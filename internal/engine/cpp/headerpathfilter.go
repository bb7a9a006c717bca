package cpp

import (
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"qmakemodel/internal/shared/util"
)

// TweakMode controls whether built-in header paths are replaced by the
// code model's own.
type TweakMode int

const (
	TweakNo TweakMode = iota
	TweakYes
	TweakTools
)

var (
	// include/c++, include/g++, libc++/include and libc++abi/include
	cxxIncludeRe = regexp.MustCompile(`\A((.*/include/.*(g\+\+|c\+\+).*)|(.*libc\+\+/include)|(.*libc\+\+abi.*/include)|(/usr/local/include))\z`)
	// clang's own intrinsics headers that do not match the code model's clang
	clangSystemIncludeRe = regexp.MustCompile(`\A.*/lib\d*/clang/\d+(\.\d+){0,2}/include\z`)
)

// HeaderPathFilter sorts the header paths of a part into built-in, system
// and user paths.
type HeaderPathFilter struct {
	Part             *ProjectPart
	Tweak            TweakMode
	ClangVersion     string
	ClangIncludeDir  string
	ResourceDir      string
	ProjectDirectory string
	BuildDirectory   string

	BuiltIn []HeaderPath
	System  []HeaderPath
	User    []HeaderPath
}

func (f *HeaderPathFilter) Process() {
	f.BuiltIn, f.System, f.User = nil, nil, nil
	f.addPreIncludesPath()
	for _, hp := range f.Part.HeaderPaths {
		f.filter(hp)
	}
	if f.Tweak != TweakNo {
		f.tweak()
	}
}

func (f *HeaderPathFilter) isProjectHeaderPath(p string) bool {
	projectDir := util.WithTrailingSlash(f.ProjectDirectory)
	buildDir := util.WithTrailingSlash(f.BuildDirectory)
	return strings.HasPrefix(p, projectDir) || strings.HasPrefix(p, buildDir)
}

func (f *HeaderPathFilter) filter(hp HeaderPath) {
	if hp.Path == "" {
		return
	}
	switch hp.Type {
	case HeaderPathBuiltIn:
		f.BuiltIn = append(f.BuiltIn, hp)
	case HeaderPathSystem, HeaderPathFramework:
		f.System = append(f.System, hp)
	case HeaderPathUser:
		if f.isProjectHeaderPath(hp.Path) {
			f.User = append(f.User, hp)
		} else {
			f.System = append(f.System, hp)
		}
	}
}

func (f *HeaderPathFilter) addPreIncludesPath() {
	if f.ProjectDirectory == "" {
		return
	}
	f.System = append(f.System, SystemHeaderPath(path.Join(f.ProjectDirectory, ".pre_includes")))
}

func (f *HeaderPathFilter) removeGccInternalIncludePaths() {
	tc := f.Part.ToolchainType
	if (tc != ToolchainGcc && tc != ToolchainMinGW) || f.Part.ToolchainInstallDir == "" {
		return
	}
	install := util.CleanPath(f.Part.ToolchainInstallDir)
	kept := f.BuiltIn[:0]
	for _, hp := range f.BuiltIn {
		p := util.CleanPath(hp.Path)
		if p == install+"/include" || p == install+"/include-fixed" {
			continue
		}
		kept = append(kept, hp)
	}
	f.BuiltIn = kept
}

// tweak drops the compiler's own clang headers, moves the C++ standard
// library paths to the front and inserts the code model's clang headers
// right after them.
func (f *HeaderPathFilter) tweak() {
	kept := f.BuiltIn[:0]
	for _, hp := range f.BuiltIn {
		if !clangSystemIncludeRe.MatchString(hp.Path) {
			kept = append(kept, hp)
		}
	}
	f.BuiltIn = kept
	f.removeGccInternalIncludePaths()

	sort.SliceStable(f.BuiltIn, func(i, j int) bool {
		return cxxIncludeRe.MatchString(f.BuiltIn[i].Path) && !cxxIncludeRe.MatchString(f.BuiltIn[j].Path)
	})
	split := 0
	for split < len(f.BuiltIn) && cxxIncludeRe.MatchString(f.BuiltIn[split].Path) {
		split++
	}

	if f.ClangVersion == "" {
		return
	}
	dir := f.clangIncludeDirectory()
	if dir == "" {
		return
	}
	out := make([]HeaderPath, 0, len(f.BuiltIn)+1)
	out = append(out, f.BuiltIn[:split]...)
	out = append(out, BuiltInHeaderPath(dir))
	out = append(out, f.BuiltIn[split:]...)
	f.BuiltIn = out
}

// clangIncludeDirectory prefers the headers shipped in the resource
// directory and falls back to the configured include directory.
func (f *HeaderPathFilter) clangIncludeDirectory() string {
	if f.ResourceDir != "" {
		dir := path.Join(f.ResourceDir, "clang", "lib", "clang", f.ClangVersion, "include")
		if _, err := os.Stat(path.Join(dir, "stdint.h")); err == nil {
			return dir
		}
	}
	return util.CleanPath(f.ClangIncludeDir)
}
