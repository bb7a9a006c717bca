// Package buildstep synthesizes the qmake and make command lines for a
// project and reads back the qmake call recorded in a generated Makefile.
package buildstep

import (
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"qmakemodel/internal/core/errors"
	"qmakemodel/internal/shared/util"
)

type TriState int

const (
	Default TriState = iota
	Enabled
	Disabled
)

// ParseTriState accepts "enabled", "disabled" and "default" in any case.
// Anything else is Default.
func ParseTriState(s string) TriState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enabled":
		return Enabled
	case "disabled":
		return Disabled
	default:
		return Default
	}
}

func (t TriState) String() string {
	switch t {
	case Enabled:
		return "enabled"
	case Disabled:
		return "disabled"
	default:
		return "default"
	}
}

type OsType int

const (
	NoOsType OsType = iota
	IphoneSimulator
	IphoneOS
)

// BuildConfig is the qmake build configuration bit set.
type BuildConfig uint

const (
	NoBuild    BuildConfig = 1
	DebugBuild BuildConfig = 2
	BuildAll   BuildConfig = 8
)

// NewBuildConfig builds the flag set from debug and debug_and_release
// switches.
func NewBuildConfig(debug, buildAll bool) BuildConfig {
	var c BuildConfig
	if debug {
		c |= DebugBuild
	}
	if buildAll {
		c |= BuildAll
	}
	return c
}

// Config holds the CONFIG switches qmake is called with on top of the
// build configuration.
type Config struct {
	OsType            OsType
	SysRoot           string
	TargetTriple      string
	QmlDebugging      TriState
	QtQuickCompiler   TriState
	SeparateDebugInfo TriState
}

func (c Config) Arguments() []string {
	var args []string
	switch c.OsType {
	case IphoneSimulator:
		args = append(args, "CONFIG+=iphonesimulator", "CONFIG+=simulator")
	case IphoneOS:
		args = append(args, "CONFIG+=iphoneos", "CONFIG+=device")
	}

	switch c.QmlDebugging {
	case Enabled:
		args = append(args, "CONFIG+=qml_debug")
	case Disabled:
		args = append(args, "CONFIG-=qml_debug")
	}

	switch c.QtQuickCompiler {
	case Enabled:
		args = append(args, "CONFIG+=qtquickcompiler")
	case Disabled:
		args = append(args, "CONFIG-=qtquickcompiler")
	}

	switch c.SeparateDebugInfo {
	case Enabled:
		args = append(args, "CONFIG+=force_debug_info", "CONFIG+=separate_debug_info")
	case Disabled:
		args = append(args, "CONFIG-=separate_debug_info")
	}

	if c.SysRoot != "" {
		for _, v := range []string{"QMAKE_CFLAGS", "QMAKE_CXXFLAGS", "QMAKE_LFLAGS"} {
			args = append(args, v+`+=--sysroot="`+c.SysRoot+`"`)
		}
		if c.TargetTriple != "" {
			for _, v := range []string{"QMAKE_CFLAGS", "QMAKE_CXXFLAGS", "QMAKE_LFLAGS"} {
				args = append(args, v+"+=--target="+c.TargetTriple)
			}
		}
	}
	return args
}

// ConfigCommandLineArguments returns the CONFIG changes that turn the Qt
// version's default build configuration into the requested one.
func ConfigCommandLineArguments(defaultConfig, user BuildConfig) []string {
	var result []string
	if defaultConfig&BuildAll != 0 && user&BuildAll == 0 {
		result = append(result, "CONFIG-=debug_and_release")
	}
	if defaultConfig&BuildAll == 0 && user&BuildAll != 0 {
		result = append(result, "CONFIG+=debug_and_release")
	}
	if defaultConfig&DebugBuild != 0 && user&DebugBuild == 0 {
		result = append(result, "CONFIG+=release")
	}
	if defaultConfig&DebugBuild == 0 && user&DebugBuild != 0 {
		result = append(result, "CONFIG+=debug")
	}
	return result
}

// QmakeStep describes one qmake run.
type QmakeStep struct {
	ProjectFile string
	// SubNodeFile is set when only one sub project is built.
	SubNodeFile        string
	QtVersion          string
	KitMkspec          string
	BuildConfig        BuildConfig
	DefaultBuildConfig BuildConfig
	Config             Config
	UserArgs           string
	ExtraArgs          []string
	ExtraParserArgs    []string
}

func qtMajor(version string) int {
	major, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0
	}
	return n
}

// Arguments returns the full qmake argument list: project, -r for Qt 4,
// -spec unless the user passed one, CONFIG changes, deduced switches, then
// the user and extra arguments.
func (s QmakeStep) Arguments() ([]string, error) {
	userArgs, err := util.SplitArgs(s.UserArgs)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidationError, "invalid qmake user arguments")
	}

	var args []string
	if s.SubNodeFile != "" {
		args = append(args, filepath.FromSlash(s.SubNodeFile))
	} else {
		args = append(args, filepath.FromSlash(s.ProjectFile))
	}

	if qtMajor(s.QtVersion) < 5 {
		args = append(args, "-r")
	}

	if !hasSpec(userArgs) {
		if spec, err := s.Mkspec(); err != nil {
			return nil, err
		} else if spec != "" {
			args = append(args, "-spec", filepath.FromSlash(spec))
		}
	}

	args = append(args, ConfigCommandLineArguments(s.DefaultBuildConfig, s.BuildConfig)...)
	args = append(args, s.Config.Arguments()...)
	args = append(args, userArgs...)
	for _, extra := range s.ExtraArgs {
		split, err := util.SplitArgs(extra)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeValidationError, "invalid qmake extra arguments")
		}
		args = append(args, split...)
	}
	return args, nil
}

func hasSpec(args []string) bool {
	for i, a := range args {
		if a == "-spec" && i+1 < len(args) {
			return true
		}
	}
	return false
}

// Mkspec returns the spec passed in the user or extra arguments, falling
// back to the kit's.
func (s QmakeStep) Mkspec() (string, error) {
	all, err := util.SplitArgs(s.UserArgs)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeValidationError, "invalid qmake user arguments")
	}
	for _, extra := range s.ExtraArgs {
		split, err := util.SplitArgs(extra)
		if err != nil {
			return "", errors.Wrap(err, errors.CodeValidationError, "invalid qmake extra arguments")
		}
		all = append(all, split...)
	}
	return Mkspec(all, s.KitMkspec), nil
}

// Mkspec finds "-spec <name>" in args or returns kitDefault.
func Mkspec(args []string, kitDefault string) string {
	for i, a := range args {
		if a == "-spec" && i+1 < len(args) {
			return util.CleanPath(args[i+1])
		}
	}
	return kitDefault
}

// ParserArguments are the arguments handed to the project evaluator: the
// extra parser arguments first, then every qmake argument free of shell
// expansions.
func (s QmakeStep) ParserArguments() ([]string, error) {
	args, err := s.Arguments()
	if err != nil {
		return nil, err
	}
	result := append([]string(nil), s.ExtraParserArgs...)
	for _, a := range args {
		if !strings.ContainsAny(a, "$`") {
			result = append(result, a)
		}
	}
	return result, nil
}

// RunsMakeQmakeAll reports whether "make qmake_all" follows qmake.
func (s QmakeStep) RunsMakeQmakeAll() bool { return qtMajor(s.QtVersion) >= 5 }

// CommandLine renders the effective qmake call, followed by the make
// qmake_all call for Qt 5 and later.
func (s QmakeStep) CommandLine(qmake, make, makefile string) (string, error) {
	args, err := s.Arguments()
	if err != nil {
		return "", err
	}
	line := util.JoinArgs(append([]string{qmake}, args...))
	if s.RunsMakeQmakeAll() {
		line += " && " + util.JoinArgs(append([]string{make}, MakeQmakeAllArguments(makefile)...))
	}
	return line, nil
}

// MakeQmakeAllArguments returns the arguments of the make call that runs
// qmake in every sub directory.
func MakeQmakeAllArguments(makefile string) []string {
	var args []string
	if makefile != "" {
		args = append(args, "-f", makefile)
	}
	return append(args, "qmake_all")
}

type BuildType int

const (
	Debug BuildType = iota
	Release
)

// SubNode describes the sub project of a partial build.
type SubNode struct {
	ProFile                string
	Makefile               string
	BuildDir               string
	DebugAndRelease        bool
	ObjectsDir             string
	ObjectParallelToSource bool
	ObjectExtension        string
}

// MakeStep describes one make run.
type MakeStep struct {
	BuildDir  string
	Makefile  string
	BuildType BuildType
	UserArgs  string
	SubNode   *SubNode
	// FileNode is the single source file to compile, if any. It requires
	// SubNode.
	FileNode string
}

// Arguments returns the make arguments and the Makefile whose existence
// gates the build.
func (m MakeStep) Arguments() ([]string, string, error) {
	userArgs, err := util.SplitArgs(m.UserArgs)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.CodeValidationError, "invalid make arguments")
	}

	var args []string
	var makefileToCheck string
	workingDir := m.BuildDir
	if sub := m.SubNode; sub != nil {
		workingDir = sub.BuildDir
		makefile := sub.Makefile
		if makefile == "" {
			makefile = "Makefile"
		}
		// File builds only have rules in Makefile.Debug and Makefile.Release.
		if sub.DebugAndRelease && m.FileNode != "" {
			if m.BuildType == Debug {
				makefile += ".Debug"
			} else {
				makefile += ".Release"
			}
		}
		if makefile != "Makefile" {
			args = append(args, "-f", makefile)
		}
		makefileToCheck = path.Join(workingDir, makefile)
	} else if m.Makefile != "" {
		args = append(args, "-f", m.Makefile)
		makefileToCheck = path.Join(workingDir, m.Makefile)
	} else {
		makefileToCheck = path.Join(workingDir, "Makefile")
	}

	args = append(args, userArgs...)

	if m.FileNode != "" && m.SubNode != nil {
		args = append(args, m.objectFile(workingDir))
	}
	return args, makefileToCheck, nil
}

func (m MakeStep) objectFile(workingDir string) string {
	sub := m.SubNode
	objectsDir := sub.ObjectsDir
	if objectsDir == "" {
		objectsDir = sub.BuildDir
		if sub.DebugAndRelease {
			if m.BuildType == Debug {
				objectsDir += "/debug"
			} else {
				objectsDir += "/release"
			}
		}
	}

	if sub.ObjectParallelToSource {
		sourceDir := path.Dir(m.FileNode)
		proDir := path.Dir(sub.ProFile)
		if rel, ok := relativeChild(sourceDir, proDir); ok {
			objectsDir = path.Clean(util.WithTrailingSlash(objectsDir) + rel)
		}
	}

	relObjectsDir, err := filepath.Rel(filepath.FromSlash(workingDir), filepath.FromSlash(objectsDir))
	if err != nil || relObjectsDir == "." {
		relObjectsDir = ""
	}
	if relObjectsDir != "" {
		relObjectsDir = filepath.ToSlash(relObjectsDir) + "/"
	}
	base := path.Base(m.FileNode)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return relObjectsDir + base + sub.ObjectExtension
}

func relativeChild(p, dir string) (string, bool) {
	if !util.IsChildOf(p, dir) {
		return "", false
	}
	return strings.TrimPrefix(util.CleanPath(p), util.WithTrailingSlash(util.CleanPath(dir))), true
}
