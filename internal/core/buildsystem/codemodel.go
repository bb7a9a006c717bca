package buildsystem

import (
	"path"
	"strings"

	"qmakemodel/internal/core/config"
	"qmakemodel/internal/engine/cpp"
	"qmakemodel/internal/engine/project"
	"qmakemodel/internal/shared/util"
)

// rawProjectParts describes every .pro node to the code model.
func (b *BuildSystem) rawProjectParts() []cpp.RawProjectPart {
	qt := cpp.QtVersionFromString(b.cfg.Qmake.QtVersion)
	var parts []cpp.RawProjectPart
	for _, id := range b.tree.AllProFiles(b.tree.Root()) {
		n := b.tree.Node(id)
		if n == nil {
			continue
		}
		rpp := cpp.RawProjectPart{
			DisplayName:       n.DisplayName(),
			ProjectFile:       n.Path,
			BuildSystemTarget: n.Path,
			TopLevelProject:   b.projectDir,
			SelectedForBuild:  n.IncludedInExactParse,
			FlagsForCxx: cpp.RawFlags{CommandLineFlags: concat(b.cfg.Toolchain.CxxFlags,
				b.tree.VariableValue(id, project.VarCppFlags))},
			FlagsForC: cpp.RawFlags{CommandLineFlags: concat(b.cfg.Toolchain.CFlags,
				b.tree.VariableValue(id, project.VarCFlags))},
			ProjectMacros:      cpp.MacrosFromDefines(b.tree.CxxDefines(id)),
			PrecompiledHeaders: append([]string(nil), b.tree.VariableValue(id, project.VarPrecompiledHeader)...),
		}
		switch n.Pro.ProjectType {
		case project.Application:
			rpp.BuildTargetType = cpp.TargetExecutable
		case project.SharedLibrary, project.StaticLibrary:
			rpp.BuildTargetType = cpp.TargetLibrary
		}
		if contains(b.tree.VariableValue(id, project.VarConfig), "qt") {
			rpp.QtVersion = qt
		}

		seen := map[string]struct{}{}
		for _, inc := range b.tree.VariableValue(id, project.VarIncludePath) {
			if _, ok := seen[inc]; ok {
				continue
			}
			seen[inc] = struct{}{}
			rpp.HeaderPaths = append(rpp.HeaderPaths, cpp.UserHeaderPath(inc))
		}
		if fw := strings.TrimSpace(b.cfg.Toolchain.QtFrameworkPath); fw != "" {
			rpp.HeaderPaths = append(rpp.HeaderPaths, cpp.FrameworkHeaderPath(util.CleanPath(fw)))
		}

		cumulative := b.tree.VariableValue(id, project.VarCumulativeSource)
		files := concat(b.tree.VariableValue(id, project.VarExactSource), cumulative)
		for _, ec := range b.tree.ExtraCompilers(id) {
			files = append(files, ec.Generated...)
		}
		rpp.Files = util.RemoveDuplicates(files)
		inactive := make(map[string]struct{}, len(cumulative))
		for _, f := range cumulative {
			inactive[f] = struct{}{}
		}
		rpp.FileIsActive = func(f string) bool {
			_, ok := inactive[f]
			return !ok
		}
		parts = append(parts, rpp)
	}
	return parts
}

// ToolchainInfoFor describes the configured kit toolchain.
func ToolchainInfoFor(cfg *config.Config) cpp.ToolchainInfo {
	tc := cfg.Toolchain
	info := cpp.ToolchainInfo{
		Type:                tc.Type,
		TargetTriple:        tc.TargetTriple,
		TripleAuthoritative: tc.TripleAuthority,
		WordWidth:           tc.WordWidth,
		InstallDir:          tc.InstallDir,
		Msvc2015:            tc.Msvc2015,
		Macros:              cpp.MacrosFromDefines(project.CxxDefines(tc.Macros)),
		ExtraCodeModelFlags: append([]string(nil), tc.ExtraFlags...),
	}
	for _, p := range tc.IncludePaths {
		info.BuiltInHeaderPaths = append(info.BuiltInHeaderPaths, cpp.BuiltInHeaderPath(util.CleanPath(p)))
	}
	return info
}

// BuilderOptionsFor maps the code model settings onto builder options.
func BuilderOptionsFor(cfg *config.Config, env config.ClangEnv) cpp.BuilderOptions {
	return cpp.BuilderOptions{
		UseSystemHeader:        cfg.CodeModel.UseSystemHeaders,
		Tweak:                  TweakModeFor(cfg.CodeModel.TweakHeaderPaths),
		UseBuildSystemWarnings: cfg.CodeModel.UseBuildSystemWarnings,
		ClangVersion:           cfg.Toolchain.ClangVersion,
		ClangIncludeDir:        cfg.Toolchain.ClangResourceDir,
		ResourceDir:            cfg.Toolchain.CreatorResources,
		Env: cpp.Env{
			OptionsBlacklist:   append([]string(nil), env.OptionsBlacklist...),
			UseToolchainMacros: env.UseToolchainMacros,
		},
	}
}

func TweakModeFor(s string) cpp.TweakMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "no", "false":
		return cpp.TweakNo
	case "tools":
		return cpp.TweakTools
	default:
		return cpp.TweakYes
	}
}

// CodeModel indexes the project parts of one update by file.
type CodeModel struct {
	Parts []*cpp.ProjectPart

	topLevelProject string
	byFile          map[string][]*cpp.ProjectPart
	fallback        *cpp.ProjectPart
	opts            cpp.BuilderOptions
	chooser         cpp.ProjectPartChooser
}

func NewCodeModel(raw []cpp.RawProjectPart, topLevelProject string, tc cpp.ToolchainInfo, opts cpp.BuilderOptions) *CodeModel {
	m := &CodeModel{
		topLevelProject: topLevelProject,
		byFile:          map[string][]*cpp.ProjectPart{},
		opts:            opts,
	}
	for _, rpp := range raw {
		for _, part := range cpp.GenerateProjectParts(rpp, tc) {
			m.Parts = append(m.Parts, part)
			for _, f := range part.Files {
				m.byFile[f.Path] = append(m.byFile[f.Path], part)
			}
		}
	}
	m.fallback = cpp.NewProjectPart(cpp.RawProjectPart{DisplayName: "<fallback>"}, cpp.LanguageCxx, nil, tc)
	m.chooser = cpp.ProjectPartChooser{
		ProjectPartsForFile:          func(file string) []*cpp.ProjectPart { return m.byFile[file] },
		ProjectPartsFromDependencies: m.partsReaching,
		FallbackProjectPart:          func() *cpp.ProjectPart { return m.fallback },
	}
	return m
}

// partsReaching returns the parts whose user include paths contain the
// directory of file, the parts that can include it.
func (m *CodeModel) partsReaching(file string) []*cpp.ProjectPart {
	dir := path.Dir(file)
	var out []*cpp.ProjectPart
	for _, part := range m.Parts {
		for _, hp := range part.HeaderPaths {
			if hp.Type == cpp.HeaderPathUser && util.CleanPath(hp.Path) == dir {
				out = append(out, part)
				break
			}
		}
	}
	return out
}

// Choose picks the part used to parse file.
func (m *CodeModel) Choose(file string, current *cpp.ProjectPartInfo, preferredID string, projectsUpdated bool) *cpp.ProjectPartInfo {
	file = util.CleanPath(file)
	pref := cpp.LanguageCxx
	if cpp.ClassifyFile(file).IsC() {
		pref = cpp.LanguageC
	}
	return m.chooser.Choose(file, current, preferredID, m.topLevelProject, pref, projectsUpdated)
}

// Flags returns the compiler arguments for file together with the chosen
// part. An empty argument list means the file cannot be parsed.
func (m *CodeModel) Flags(file string, usePrecompiledHeaders bool) ([]string, *cpp.ProjectPartInfo) {
	info := m.Choose(file, nil, "", true)
	if info == nil || info.ProjectPart == nil {
		return nil, info
	}
	kind := cpp.ClassifyFile(util.CleanPath(file))
	if kind == cpp.AmbiguousHeader {
		kind = cpp.CXXHeader
		if info.ProjectPart.IsCPart() {
			kind = cpp.CHeader
		}
	}
	return cpp.NewCompilerOptionsBuilder(info.ProjectPart, m.opts).Build(kind, usePrecompiledHeaders), info
}

func concat(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// CodeModel indexes the project parts of u with the configured toolchain
// and the process code model environment.
func (b *BuildSystem) CodeModel(u *Update) *CodeModel {
	if u == nil {
		return NewCodeModel(nil, b.projectDir, ToolchainInfoFor(b.cfg), BuilderOptionsFor(b.cfg, config.ReadClangEnv()))
	}
	return NewCodeModel(u.ProjectParts, b.projectDir, ToolchainInfoFor(b.cfg), BuilderOptionsFor(b.cfg, config.ReadClangEnv()))
}
