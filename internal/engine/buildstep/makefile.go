package buildstep

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"qmakemodel/internal/core/errors"
	"qmakemodel/internal/shared/util"
)

type MakefileState int

const (
	MakefileOkay MakefileState = iota
	MakefileMissing
	MakefileCouldNotParse
)

func (s MakefileState) String() string {
	switch s {
	case MakefileMissing:
		return "missing"
	case MakefileCouldNotParse:
		return "could-not-parse"
	default:
		return "okay"
	}
}

// ParseMode selects whether known CONFIG values stay in the unparsed
// arguments.
type ParseMode int

const (
	FilterKnownConfigValues ParseMode = iota
	DoNotFilterKnownConfigValues
)

var (
	assignmentRe = regexp.MustCompile(`^([^\s+-]*)\s*(\+=|=|-=|~=)(.*)$`)
	qmakeLineRe  = regexp.MustCompile(`^QMAKE\s*=(.*)$`)
)

type assignment struct {
	variable string
	op       string
	value    string
}

func (a assignment) String() string { return a.variable + a.op + a.value }

// MakefileInfo is what a generated Makefile says about the qmake call
// that produced it.
type MakefileInfo struct {
	State      MakefileState
	QmakePath  string
	SrcProFile string
	Config     Config
	// UnparsedArguments are the qmake arguments not folded into Config or
	// the build configuration.
	UnparsedArguments []string

	explicitDebug      bool
	explicitRelease    bool
	explicitBuildAll   bool
	explicitNoBuildAll bool
}

// ParseMakefile reads the "# Project:", "# Command:" and "QMAKE =" lines
// of a qmake generated Makefile. A missing or unreadable file is reported
// through State, not as an error.
func ParseMakefile(makefile string, mode ParseMode) *MakefileInfo {
	info := &MakefileInfo{}
	lines, err := readLines(makefile)
	if err != nil {
		slog.Debug("makefile not readable", "makefile", makefile, "error", err)
		info.State = MakefileMissing
		return info
	}

	info.QmakePath = qmakeBinaryFromLines(lines)

	project := strings.TrimSpace(findLine(lines, "# Project:"))
	if project == "" {
		slog.Debug("makefile has no project line", "makefile", makefile)
		info.State = MakefileCouldNotParse
		return info
	}
	project = strings.TrimSpace(project[strings.IndexByte(project, ':')+1:])
	info.SrcProFile = util.ResolvePath(filepath.ToSlash(filepath.Dir(makefile)), project)

	command := strings.TrimSpace(findLine(lines, "# Command:"))
	if command == "" {
		slog.Debug("makefile has no command line", "makefile", makefile)
		info.State = MakefileCouldNotParse
		return info
	}
	if err := info.parseCommandLine(trimCommand(command), project, mode); err != nil {
		slog.Debug("makefile command line not parsable", "makefile", makefile, "error", err)
		info.State = MakefileCouldNotParse
		return info
	}
	info.State = MakefileOkay
	return info
}

// ParseCommandLine parses a qmake argument string the way it appears after
// the binary on a Makefile's command line.
func ParseCommandLine(command, project string, mode ParseMode) (*MakefileInfo, error) {
	info := &MakefileInfo{}
	if err := info.parseCommandLine(command, project, mode); err != nil {
		return nil, err
	}
	return info, nil
}

func readLines(p string) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

func findLine(lines []string, key string) string {
	for _, l := range lines {
		if strings.HasPrefix(l, key) {
			return l
		}
	}
	return ""
}

// trimCommand drops "# Command: /path/to/qmake" and keeps the arguments.
func trimCommand(line string) string {
	if len(line) <= 11 {
		return ""
	}
	i := strings.IndexByte(line[11:], ' ')
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(line[11+i:])
}

func qmakeBinaryFromLines(lines []string) string {
	for _, l := range lines {
		m := qmakeLineRe.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		p := strings.TrimSpace(m[1])
		if _, err := os.Stat(p); err == nil {
			return util.CleanPath(p)
		}
	}
	return ""
}

func (m *MakefileInfo) parseCommandLine(command, project string, mode ParseMode) error {
	args, err := util.SplitArgs(command)
	if err != nil {
		return errors.Wrap(err, errors.CodeParse, "split qmake command line")
	}

	var assignments, after []assignment
	afterSeen := false
	ignoreNext := false
	var rest []string
	for _, a := range args {
		switch {
		case ignoreNext:
			ignoreNext = false
		case a == project:
		case a == "-after":
			afterSeen = true
		case strings.Contains(a, "="):
			sub := assignmentRe.FindStringSubmatch(a)
			if sub == nil {
				slog.Debug("qmake argument looks like an assignment but is not one", "arg", a)
				continue
			}
			as := assignment{variable: sub[1], op: sub[2], value: strings.TrimSpace(sub[3])}
			if afterSeen {
				after = append(after, as)
			} else {
				assignments = append(assignments, as)
			}
		case a == "-o":
			ignoreNext = true
		case a == platformFlag():
		default:
			rest = append(rest, a)
		}
	}

	filtered := m.parseAssignments(assignments)
	slog.Debug("parsed qmake command line",
		"explicit_debug", m.explicitDebug,
		"explicit_release", m.explicitRelease,
		"explicit_build_all", m.explicitBuildAll,
		"explicit_no_build_all", m.explicitNoBuildAll,
		"qml_debug", m.Config.QmlDebugging.String(),
		"qtquickcompiler", m.Config.QtQuickCompiler.String(),
		"separate_debug_info", m.Config.SeparateDebugInfo.String())

	use := assignments
	if mode == FilterKnownConfigValues {
		use = filtered
	}
	for _, a := range use {
		rest = append(rest, a.String())
	}
	if len(after) > 0 {
		rest = append(rest, "-after")
		for _, a := range after {
			rest = append(rest, a.String())
		}
	}
	m.UnparsedArguments = rest
	return nil
}

func platformFlag() string {
	switch filepath.Separator {
	case '\\':
		return "-win32"
	default:
		return "-unix"
	}
}

// parseAssignments folds the CONFIG values it knows into the build
// configuration and Config, returning the assignments left over.
func (m *MakefileInfo) parseAssignments(assignments []assignment) []assignment {
	foundSeparateDebugInfo := false
	foundForceDebugInfo := false
	var filtered []assignment
	for _, a := range assignments {
		if a.variable != "CONFIG" {
			filtered = append(filtered, a)
			continue
		}
		add := a.op == "+="
		var keep []string
		for _, v := range strings.Split(a.value, " ") {
			switch v {
			case "debug":
				m.explicitDebug, m.explicitRelease = add, !add
			case "release":
				m.explicitDebug, m.explicitRelease = !add, add
			case "debug_and_release":
				m.explicitBuildAll, m.explicitNoBuildAll = add, !add
			case "iphonesimulator":
				m.Config.OsType = NoOsType
				if add {
					m.Config.OsType = IphoneSimulator
				}
			case "iphoneos":
				m.Config.OsType = NoOsType
				if add {
					m.Config.OsType = IphoneOS
				}
			case "qml_debug":
				m.Config.QmlDebugging = enabledIf(add)
			case "qtquickcompiler":
				m.Config.QtQuickCompiler = enabledIf(add)
			case "force_debug_info":
				foundForceDebugInfo = add
			case "separate_debug_info":
				foundSeparateDebugInfo = add
				m.Config.SeparateDebugInfo = enabledIf(add)
			default:
				keep = append(keep, v)
			}
		}
		if len(keep) > 0 {
			filtered = append(filtered, assignment{variable: a.variable, op: a.op, value: strings.Join(keep, " ")})
		}
	}

	switch {
	case foundForceDebugInfo && foundSeparateDebugInfo:
		m.Config.SeparateDebugInfo = Enabled
	case foundForceDebugInfo:
		filtered = append(filtered, assignment{variable: "CONFIG", op: "+=", value: "force_debug_info"})
	case foundSeparateDebugInfo:
		filtered = append(filtered, assignment{variable: "CONFIG", op: "+=", value: "separate_debug_info"})
	}
	return filtered
}

func enabledIf(b bool) TriState {
	if b {
		return Enabled
	}
	return Disabled
}

// EffectiveBuildConfig applies the explicit debug/release and
// debug_and_release switches to the Qt version's default.
func (m *MakefileInfo) EffectiveBuildConfig(defaultConfig BuildConfig) BuildConfig {
	c := defaultConfig
	if m.explicitDebug {
		c |= DebugBuild
	} else if m.explicitRelease {
		c &^= DebugBuild
	}
	if m.explicitBuildAll {
		c |= BuildAll
	} else if m.explicitNoBuildAll {
		c &^= BuildAll
	}
	return c
}

type MakefileMatch int

const (
	MakefileMatches MakefileMatch = iota
	MakefileNotFound
	MakefileIncompatible
	MakefileForWrongProject
)

func (m MakefileMatch) String() string {
	switch m {
	case MakefileNotFound:
		return "missing"
	case MakefileIncompatible:
		return "incompatible"
	case MakefileForWrongProject:
		return "wrong-project"
	default:
		return "matches"
	}
}

// CompareMakefile checks whether the Makefile in a build directory was
// produced by the qmake call the step would run now.
func CompareMakefile(makefile, qmake string, step QmakeStep) (MakefileMatch, error) {
	info := ParseMakefile(makefile, DoNotFilterKnownConfigValues)
	switch info.State {
	case MakefileMissing:
		return MakefileNotFound, nil
	case MakefileCouldNotParse:
		return MakefileIncompatible, nil
	}

	if util.CleanPath(info.SrcProFile) != util.CleanPath(step.ProjectFile) {
		slog.Debug("makefile belongs to another project", "makefile", makefile, "project", info.SrcProFile)
		return MakefileForWrongProject, nil
	}
	if qmake != "" && info.QmakePath != "" && util.CleanPath(info.QmakePath) != util.CleanPath(qmake) {
		slog.Debug("makefile was generated by another qmake", "makefile", makefile, "qmake", info.QmakePath)
		return MakefileIncompatible, nil
	}
	if info.EffectiveBuildConfig(step.DefaultBuildConfig) != step.BuildConfig {
		return MakefileIncompatible, nil
	}

	userArgs, err := util.SplitArgs(step.UserArgs)
	if err != nil {
		return MakefileIncompatible, errors.Wrap(err, errors.CodeValidationError, "invalid qmake user arguments")
	}
	want := append(ConfigCommandLineArguments(step.DefaultBuildConfig, step.BuildConfig), userArgs...)
	want = append(want, step.Config.Arguments()...)
	for _, extra := range step.ExtraArgs {
		split, err := util.SplitArgs(extra)
		if err != nil {
			return MakefileIncompatible, errors.Wrap(err, errors.CodeValidationError, "invalid qmake extra arguments")
		}
		want = append(want, split...)
	}
	want, _ = removeSpec(want)
	got, spec := removeSpec(info.UnparsedArguments)

	if spec != "" && step.KitMkspec != "" {
		if wantSpec := Mkspec(userArgs, step.KitMkspec); util.CleanPath(spec) != util.CleanPath(wantSpec) {
			return MakefileIncompatible, nil
		}
	}

	slices.Sort(want)
	slices.Sort(got)
	if !slices.Equal(want, got) {
		slog.Debug("makefile arguments differ", "makefile", makefile, "want", want, "got", got)
		return MakefileIncompatible, nil
	}
	return MakefileMatches, nil
}

func removeSpec(args []string) ([]string, string) {
	var out []string
	spec := ""
	for i := 0; i < len(args); i++ {
		if (args[i] == "-spec" || args[i] == "-platform") && i+1 < len(args) {
			spec = args[i+1]
			i++
			continue
		}
		out = append(out, args[i])
	}
	return out, spec
}
