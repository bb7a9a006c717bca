package reader

import (
	"os"
	"path"
	"runtime"
	"strings"
	"sync"

	"qmakemodel/internal/shared/util"
)

// Globals is the evaluator context shared by every reader of one build
// system: mkspec, platform scopes, properties, command-line assignments
// and the source/build directory pair. It is read-only once built.
type Globals struct {
	Spec         string
	Platforms    []string
	Properties   map[string]string
	Environment  map[string]string
	CommandLine  []string
	SourceDir    string
	BuildDir     string
	Sysroot      string
	FeatureRoots []string
	BaseVars     map[string][]string
}

// DefaultGlobals returns platform defaults for goos, in the shape a host
// mkspec would provide them.
func DefaultGlobals(goos string) *Globals {
	g := &Globals{
		Properties:  map[string]string{},
		Environment: map[string]string{},
		BaseVars: map[string][]string{
			"TEMPLATE":       {"app"},
			"CONFIG":         {"qt", "warn_on", "release"},
			"QT":             {"core", "gui"},
			"QMAKE_EXT_H":    {".h"},
			"QMAKE_EXT_CPP":  {".cpp"},
			"QMAKE_EXT_UI":   {".ui"},
			"QMAKE_EXT_PRL":  {".prl"},
			"QMAKE_CC":       {"gcc"},
			"QMAKE_CXX":      {"g++"},
			"QMAKE_EXT_OBJ":  {".o"},
			"QMAKE_HOST.os":  {hostName(goos)},
			"QMAKE_QMAKE":    {"qmake"},
			"QMAKE_VERSION":  {"3.1"},
			"QMAKE_PLATFORM": nil,
		},
	}
	switch goos {
	case "windows":
		g.Spec = "win32-g++"
		g.Platforms = []string{"win32", "windows"}
		g.BaseVars["QMAKE_EXT_OBJ"] = []string{".obj"}
		g.BaseVars["QMAKE_EXTENSION_SHLIB"] = []string{"dll"}
		g.BaseVars["QMAKE_EXTENSION_STATICLIB"] = []string{"lib"}
	case "darwin":
		g.Spec = "macx-clang"
		g.Platforms = []string{"unix", "mac", "macos", "macx", "osx", "darwin"}
		g.BaseVars["QMAKE_CC"] = []string{"clang"}
		g.BaseVars["QMAKE_CXX"] = []string{"clang++"}
		g.BaseVars["QMAKE_EXTENSION_SHLIB"] = []string{"dylib"}
		g.BaseVars["QMAKE_EXTENSION_STATICLIB"] = []string{"a"}
	default:
		g.Spec = "linux-g++"
		g.Platforms = []string{"unix", "linux", "posix"}
		g.BaseVars["QMAKE_EXTENSION_SHLIB"] = []string{"so"}
		g.BaseVars["QMAKE_EXTENSION_STATICLIB"] = []string{"a"}
	}
	g.BaseVars["QMAKE_PLATFORM"] = append([]string(nil), g.Platforms...)
	return g
}

// HostGlobals returns DefaultGlobals for the running OS.
func HostGlobals() *Globals {
	return DefaultGlobals(runtime.GOOS)
}

func hostName(goos string) string {
	switch goos {
	case "windows":
		return "Windows"
	case "darwin":
		return "Darwin"
	default:
		return "Linux"
	}
}

// OutDir maps a source directory to its shadow build directory.
func (g *Globals) OutDir(dir string) string {
	if g == nil || g.BuildDir == "" || g.SourceDir == "" {
		return dir
	}
	if !util.HasPathPrefix(dir, g.SourceDir) {
		return dir
	}
	rel := strings.TrimPrefix(util.CleanPath(dir), util.CleanPath(g.SourceDir))
	return util.CleanPath(path.Join(g.BuildDir, rel))
}

func (g *Globals) property(name string) (string, bool) {
	name = strings.TrimSuffix(strings.TrimSuffix(name, "/get"), "/src")
	v, ok := g.Properties[name]
	return v, ok
}

func (g *Globals) env(name string) string {
	if v, ok := g.Environment[name]; ok {
		return v
	}
	return os.Getenv(name)
}

// Shared hands out one Globals to every reader and tears it down when the
// last reader releases it.
type Shared struct {
	mu      sync.Mutex
	create  func() *Globals
	globals *Globals
	refs    int
}

func NewShared(create func() *Globals) *Shared {
	if create == nil {
		create = HostGlobals
	}
	return &Shared{create: create}
}

// Acquire returns the shared globals, creating them on first use.
func (s *Shared) Acquire() *Globals {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.globals == nil {
		s.globals = s.create()
	}
	s.refs++
	return s.globals
}

// Release drops one reference. The globals are discarded at zero.
func (s *Shared) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return
	}
	s.refs--
	if s.refs == 0 {
		s.globals = nil
	}
}

func (s *Shared) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// Live reports whether globals currently exist.
func (s *Shared) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globals != nil
}
