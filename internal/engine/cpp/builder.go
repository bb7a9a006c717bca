package cpp

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"qmakemodel/internal/shared/util"
)

const (
	defineOption          = "-D"
	undefineOption        = "-U"
	includeUserPath       = "-I"
	includeUserPathCl     = "/I"
	includeSystemPath     = "-isystem"
	includeFileOptionGcc  = "-include"
	includeFileOptionCl   = "/FI"
	driverModeClArgument  = "--driver-mode=cl"
	wrappedHeadersBaseDir = "cplusplus"
)

// Env is the snapshot of the code model environment switches a builder
// consults. It is read once per process by the caller.
type Env struct {
	OptionsBlacklist   []string
	UseToolchainMacros bool
}

type BuilderOptions struct {
	UseSystemHeader        bool
	Tweak                  TweakMode
	UseLanguageDefines     bool
	UseBuildSystemWarnings bool
	ClangVersion           string
	ClangIncludeDir        string
	// ResourceDir holds cplusplus/wrappedQtHeaders and friends.
	ResourceDir  string
	ExtraOptions []string
	Env          Env
}

type compilerFlags struct {
	flags                      []string
	isLanguageVersionSpecified bool
}

// CompilerOptionsBuilder turns a project part into the argument list of a
// syntax-only clang invocation for one file.
type CompilerOptionsBuilder struct {
	part *ProjectPart
	opts BuilderOptions

	options        []string
	explicitTarget string
	clStyle        bool
	compilerFlags  compilerFlags
}

func NewCompilerOptionsBuilder(part *ProjectPart, opts BuilderOptions) *CompilerOptionsBuilder {
	return &CompilerOptionsBuilder{part: part, opts: opts}
}

// Build returns the arguments for a file of the given kind. An empty result
// means the part cannot describe that file and no compiler must be run.
func (b *CompilerOptionsBuilder) Build(kind FileKind, usePrecompiledHeaders bool) []string {
	b.Reset()
	b.evaluateCompilerFlags()

	if (kind == CHeader || kind == CSource) && b.part.LanguageVersion > LatestC {
		slog.Error("C file requested for a C++ project part", "part", b.part.ID, "version", b.part.LanguageVersion.String())
		return nil
	}
	if (kind == CXXHeader || kind == CXXSource) && b.part.LanguageVersion <= LatestC {
		slog.Error("C++ file requested for a C project part", "part", b.part.ID, "version", b.part.LanguageVersion.String())
		return nil
	}

	b.addCompilerFlags()

	b.AddSyntaxOnly()
	b.AddWordWidth()
	b.AddTargetTriple()
	b.UpdateFileLanguage(kind)
	b.AddLanguageVersionAndExtensions()
	b.addMsvcExceptions()

	b.addIncludedFiles(b.part.IncludedFiles)
	b.addPrecompiledHeaderOptions(usePrecompiledHeaders)
	b.addProjectConfigFileInclude()

	b.addMsvcCompatibilityVersion()
	b.addProjectMacros()
	b.undefineClangVersionMacrosForMsvc()
	b.undefineCppLanguageFeatureMacrosForMsvc2015()
	b.addDefineFunctionMacrosMsvc()
	b.addDefineFunctionMacrosQnx()

	b.AddHeaderPathOptions()

	b.add(b.opts.ExtraOptions, false)

	b.InsertWrappedQtHeaders()
	b.insertWrappedMingwHeaders()

	return b.Options()
}

// Reset clears everything derived from a previous build.
func (b *CompilerOptionsBuilder) Reset() {
	b.options = nil
	b.explicitTarget = ""
	b.clStyle = false
	b.compilerFlags = compilerFlags{}
}

func (b *CompilerOptionsBuilder) Options() []string {
	return append([]string(nil), b.options...)
}

func (b *CompilerOptionsBuilder) IsClStyle() bool { return b.clStyle }

func (b *CompilerOptionsBuilder) isMsvcLike() bool {
	return b.part.ToolchainType == ToolchainMsvc || b.part.ToolchainType == ToolchainClangCl
}

// add appends args. Options only the gcc driver understands are passed
// through with /clang: in cl mode.
func (b *CompilerOptionsBuilder) add(args []string, gccOnly bool) {
	if gccOnly && b.clStyle {
		for _, a := range args {
			b.options = append(b.options, "/clang:"+a)
		}
		return
	}
	b.options = append(b.options, args...)
}

func (b *CompilerOptionsBuilder) addOne(arg string) { b.add([]string{arg}, false) }

func (b *CompilerOptionsBuilder) prepend(arg string) {
	b.options = append([]string{arg}, b.options...)
}

// evaluateCompilerFlags filters the build system's flags. Include paths,
// optimization and precompiled header flags are dropped since they are
// added separately or do not matter for parsing.
func (b *CompilerOptionsBuilder) evaluateCompilerFlags() {
	tc := b.part.ToolchainType
	containsDriverMode := false
	skipNext, nextIsTarget, nextIsGccToolchain := false, false, false

	all := append(append([]string(nil), b.part.ExtraCodeModelFlags...), b.part.CompilerFlags...)
	for _, option := range all {
		if skipNext {
			skipNext = false
			continue
		}
		if nextIsTarget {
			nextIsTarget = false
			b.explicitTarget = option
			continue
		}
		if nextIsGccToolchain {
			nextIsGccToolchain = false
			b.compilerFlags.flags = append(b.compilerFlags.flags, "--gcc-toolchain="+option)
			continue
		}

		if slices.Contains(b.opts.Env.OptionsBlacklist, option) {
			continue
		}

		if tc == ToolchainMinGW && (option == "-fkeep-inline-dllexport" || option == "-fno-keep-inline-dllexport") {
			continue
		}

		// -w, -W, /w, /W...
		if !b.opts.UseBuildSystemWarnings && (hasPrefixFold(option, "-w") || hasPrefixFold(option, "/w") || strings.HasPrefix(option, "-pedantic")) {
			continue
		}

		if strings.HasPrefix(option, "--target=") {
			b.explicitTarget = option[len("--target="):]
			continue
		}
		if option == "-target" {
			nextIsTarget = true
			continue
		}
		if option == "-gcc-toolchain" {
			nextIsGccToolchain = true
			continue
		}

		if option == includeUserPath || option == includeSystemPath || option == includeUserPathCl {
			skipNext = true
			continue
		}
		if strings.HasPrefix(option, "-O") || strings.HasPrefix(option, "/O") || strings.HasPrefix(option, "/M") ||
			strings.HasPrefix(option, includeUserPath) || strings.HasPrefix(option, includeSystemPath) ||
			strings.HasPrefix(option, includeUserPathCl) {
			continue
		}

		// Already part of IncludedFiles.
		if option == includeFileOptionCl || option == includeFileOptionGcc {
			skipNext = true
			continue
		}

		// Precompiled header flags; the argument may be separate.
		if strings.HasPrefix(option, "/Y") || (strings.HasPrefix(option, "/F") && option != "/F") {
			if len(option) > 3 {
				skipNext = true
			}
			continue
		}

		the := option
		switch {
		case strings.HasPrefix(the, "-std=") || strings.HasPrefix(the, "--std="):
			b.compilerFlags.isLanguageVersionSpecified = true
			the = strings.ReplaceAll(the, "=c18", "=c17")
			the = strings.ReplaceAll(the, "=gnu18", "=gnu17")
		case strings.HasPrefix(the, "/std:") || strings.HasPrefix(the, "-std:"):
			b.compilerFlags.isLanguageVersionSpecified = true
		}

		if strings.HasPrefix(the, "--driver-mode=") {
			if strings.HasSuffix(the, "cl") {
				b.clStyle = true
			}
			containsDriverMode = true
		}

		if b.isMsvcLike() {
			// Unknown "-" options are ignored where "/" ones look like files.
			if strings.HasPrefix(the, "/") {
				the = "-" + the[1:]
			}
			the = strings.ReplaceAll(the, "-std:c++20", "-clang:-std=c++20")
		}

		b.compilerFlags.flags = append(b.compilerFlags.flags, the)
	}

	if !containsDriverMode && b.isMsvcLike() {
		b.clStyle = true
		b.compilerFlags.flags = append([]string{driverModeClArgument}, b.compilerFlags.flags...)
	}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func (b *CompilerOptionsBuilder) addCompilerFlags() {
	b.add(b.compilerFlags.flags, false)
}

func (b *CompilerOptionsBuilder) AddSyntaxOnly() {
	if b.clStyle {
		b.addOne("/Zs")
		return
	}
	b.addOne("-fsyntax-only")
}

func (b *CompilerOptionsBuilder) AddWordWidth() {
	if b.part.WordWidth == 64 {
		b.addOne("-m64")
		return
	}
	b.addOne("-m32")
}

// AddTargetTriple emits the build system's target unless the toolchain's
// triple is authoritative.
func (b *CompilerOptionsBuilder) AddTargetTriple() {
	target := b.explicitTarget
	if target == "" || b.part.TripleAuthoritative {
		target = b.part.TargetTriple
	}
	if target != "" {
		b.addOne("--target=" + target)
	}
}

func languageOptionGcc(kind FileKind, objcExt bool) string {
	switch kind {
	case CHeader:
		if objcExt {
			return "objective-c-header"
		}
		return "c-header"
	case ObjCHeader, ObjCXXHeader:
		return "objective-c++-header"
	case CSource:
		if objcExt {
			return "objective-c"
		}
		return "c"
	case ObjCSource:
		return "objective-c"
	case CXXSource:
		if objcExt {
			return "objective-c++"
		}
		return "c++"
	case ObjCXXSource:
		return "objective-c++"
	case OpenCLSource:
		return "cl"
	case CudaSource:
		return "cuda"
	case Unsupported:
		return ""
	default:
		if objcExt {
			return "objective-c++-header"
		}
		return "c++-header"
	}
}

// UpdateFileLanguage sets the language of the file, replacing a language
// option already present in the flags.
func (b *CompilerOptionsBuilder) UpdateFileLanguage(kind FileKind) {
	if b.clStyle {
		var option string
		switch {
		case kind.IsC():
			option = "/TC"
		case kind.IsCxx():
			option = "/TP"
		default:
			return
		}
		idx := slices.Index(b.options, "/TC")
		if idx < 0 {
			idx = slices.Index(b.options, "/TP")
		}
		if idx < 0 {
			b.addOne(option)
		} else {
			b.options[idx] = option
		}
		return
	}

	lang := languageOptionGcc(kind, b.part.LanguageExtensions&ExtensionObjectiveC != 0)
	if lang == "" {
		return
	}
	idx := slices.Index(b.options, "-x")
	if idx < 0 || idx+1 >= len(b.options) {
		b.add([]string{"-x", lang}, false)
		return
	}
	b.options[idx+1] = lang
}

var clStdOptions = map[LanguageVersion]string{
	CXX14: "/std:c++14",
	CXX17: "/std:c++17",
	CXX20: "/std:c++20",
	CXX2b: "/std:c++latest",
}

var gccStdNames = map[LanguageVersion]string{
	C89: "89", C99: "99", C11: "11", C18: "17",
	CXX98: "++98", CXX03: "++03", CXX11: "++11", CXX14: "++14",
	CXX17: "++17", CXX20: "++20", CXX2b: "++2b",
}

// AddLanguageVersionAndExtensions emits the language standard unless the
// build system's flags already carry one. c18 is spelled c17.
func (b *CompilerOptionsBuilder) AddLanguageVersionAndExtensions() {
	if b.compilerFlags.isLanguageVersionSpecified {
		return
	}
	if b.clStyle {
		if option, ok := clStdOptions[b.part.LanguageVersion]; ok {
			b.addOne(option)
			return
		}
	}
	name, ok := gccStdNames[b.part.LanguageVersion]
	if !ok {
		return
	}
	prefix := "-std=c"
	if b.part.LanguageExtensions&ExtensionGnu != 0 {
		prefix = "-std=gnu"
	}
	b.add([]string{prefix + name}, true)
}

// addMsvcExceptions re-enables exceptions which the cl driver mode turns
// off.
func (b *CompilerOptionsBuilder) addMsvcExceptions() {
	if !b.clStyle {
		return
	}
	for _, m := range b.part.ToolchainMacros {
		if m.Key == "_CPPUNWIND" {
			if b.part.LanguageVersion > LatestC {
				b.addOne("-fcxx-exceptions")
			}
			b.addOne("-fexceptions")
			return
		}
	}
}

func (b *CompilerOptionsBuilder) includeFileOption() string {
	if b.clStyle {
		return includeFileOptionCl
	}
	return includeFileOptionGcc
}

func (b *CompilerOptionsBuilder) addIncludeFile(file string) {
	if _, err := os.Stat(file); err != nil {
		return
	}
	b.add([]string{b.includeFileOption(), filepath.FromSlash(file)}, false)
}

func (b *CompilerOptionsBuilder) addIncludedFiles(files []string) {
	for _, f := range files {
		if slices.Contains(b.part.PrecompiledHeaders, f) {
			continue
		}
		b.addIncludeFile(f)
	}
}

func (b *CompilerOptionsBuilder) addPrecompiledHeaderOptions(use bool) {
	if !use {
		return
	}
	for _, pch := range b.part.PrecompiledHeaders {
		b.addIncludeFile(pch)
	}
}

func (b *CompilerOptionsBuilder) addProjectConfigFileInclude() {
	if b.part.ProjectConfigFile == "" {
		return
	}
	b.add([]string{b.includeFileOption(), filepath.FromSlash(b.part.ProjectConfigFile)}, false)
}

// msvcVersion formats _MSC_FULL_VER as "MM.mm", preferring the toolchain's
// definition over the project's.
func (b *CompilerOptionsBuilder) msvcVersion() string {
	if v := msCompatibilityVersion(b.part.ToolchainMacros); v != "" {
		return v
	}
	return msCompatibilityVersion(b.part.ProjectMacros)
}

func msCompatibilityVersion(macros []Macro) string {
	for _, m := range macros {
		if m.Key != "_MSC_FULL_VER" {
			continue
		}
		v := m.Value
		major := v[:min(2, len(v))]
		minor := ""
		if len(v) > 2 {
			minor = v[2:min(4, len(v))]
		}
		return major + "." + minor
	}
	return ""
}

func (b *CompilerOptionsBuilder) addMsvcCompatibilityVersion() {
	if !b.isMsvcLike() {
		return
	}
	if v := b.msvcVersion(); v != "" {
		b.addOne("-fms-compatibility-version=" + v)
	}
}

func (b *CompilerOptionsBuilder) addProjectMacros() {
	tc := b.part.ToolchainType
	if tc == ToolchainCustom || tc == ToolchainQnx || isBareMetal(tc) || b.opts.Env.UseToolchainMacros {
		b.AddMacros(b.part.ToolchainMacros)
	}
	b.AddMacros(b.part.ProjectMacros)
}

// AddMacros emits each macro once, skipping those the code model's front
// end must define itself.
func (b *CompilerOptionsBuilder) AddMacros(macros []Macro) {
	var options []string
	for _, m := range macros {
		if b.excludeDefineDirective(m) {
			continue
		}
		prefix := defineOption
		if m.Type == MacroUndefine {
			prefix = undefineOption
		}
		option := m.KeyValue(prefix)
		if !slices.Contains(options, option) {
			options = append(options, option)
		}
	}
	b.add(options, false)
}

var languageDefines = []string{"__cplusplus", "__STDC_VERSION__", "_MSC_BUILD", "_MSVC_LANG", "_MSC_FULL_VER", "_MSC_VER"}

func (b *CompilerOptionsBuilder) excludeDefineDirective(m Macro) bool {
	if !b.opts.UseLanguageDefines && slices.Contains(languageDefines, m.Key) {
		return true
	}
	// clang has its own __has_include and __has_include_next.
	if strings.HasPrefix(m.Key, "__has_include") {
		return true
	}
	// _FORTIFY_SOURCE pulls in headers using __builtin_va_arg_pack.
	if b.part.ToolchainType == ToolchainGcc && m.Key == "_FORTIFY_SOURCE" {
		return true
	}
	if b.part.ToolchainType == ToolchainMinGW && m.Key == "__GCC_ASM_FLAG_OUTPUTS__" {
		return true
	}
	return false
}

func (b *CompilerOptionsBuilder) undefineClangVersionMacrosForMsvc() {
	if b.part.ToolchainType != ToolchainMsvc {
		return
	}
	v, err := strconv.ParseFloat(b.msvcVersion(), 64)
	if err != nil {
		v = 0
	}
	if v >= 14 {
		return
	}
	for _, name := range []string{"__clang__", "__clang_major__", "__clang_minor__", "__clang_patchlevel__", "__clang_version__"} {
		b.addOne(undefineOption + name)
	}
}

// Language feature macros pre-defined by clang-cl but not by cl.exe 2015.
var languageFeatureMacros = []string{
	"__cpp_aggregate_bases", "__cpp_aggregate_nsdmi", "__cpp_alias_templates", "__cpp_aligned_new",
	"__cpp_attributes", "__cpp_binary_literals", "__cpp_capture_star_this", "__cpp_constexpr",
	"__cpp_constexpr_in_decltype", "__cpp_decltype", "__cpp_decltype_auto", "__cpp_deduction_guides",
	"__cpp_delegating_constructors", "__cpp_digit_separators", "__cpp_enumerator_attributes",
	"__cpp_exceptions", "__cpp_fold_expressions", "__cpp_generic_lambdas", "__cpp_guaranteed_copy_elision",
	"__cpp_hex_float", "__cpp_if_constexpr", "__cpp_impl_destroying_delete", "__cpp_inheriting_constructors",
	"__cpp_init_captures", "__cpp_initializer_lists", "__cpp_inline_variables", "__cpp_lambdas",
	"__cpp_namespace_attributes", "__cpp_nested_namespace_definitions", "__cpp_noexcept_function_type",
	"__cpp_nontype_template_args", "__cpp_nontype_template_parameter_auto", "__cpp_nsdmi",
	"__cpp_range_based_for", "__cpp_raw_strings", "__cpp_ref_qualifiers", "__cpp_return_type_deduction",
	"__cpp_rtti", "__cpp_rvalue_references", "__cpp_static_assert", "__cpp_structured_bindings",
	"__cpp_template_auto", "__cpp_threadsafe_static_init", "__cpp_unicode_characters",
	"__cpp_unicode_literals", "__cpp_user_defined_literals", "__cpp_variable_templates",
	"__cpp_variadic_templates", "__cpp_variadic_using",
}

func (b *CompilerOptionsBuilder) undefineCppLanguageFeatureMacrosForMsvc2015() {
	if b.part.ToolchainType != ToolchainMsvc || !b.part.IsMsvc2015 {
		return
	}
	for _, name := range languageFeatureMacros {
		b.addOne(undefineOption + name)
	}
}

func (b *CompilerOptionsBuilder) addDefineFunctionMacrosMsvc() {
	if b.part.ToolchainType != ToolchainMsvc {
		return
	}
	const fn = "someLegalAndLongishFunctionNameThatWorksAroundQTCREATORBUG-24580"
	b.AddMacros([]Macro{
		{Key: "__FUNCSIG__", Value: `"void __cdecl ` + fn + `(void)"`},
		{Key: "__FUNCTION__", Value: `"` + fn + `"`},
		{Key: "__FUNCDNAME__", Value: `"?` + fn + `@@YAXXZ"`},
	})
}

// QNX pairs gcc with libc++, which must not expect builtin new and delete.
func (b *CompilerOptionsBuilder) addDefineFunctionMacrosQnx() {
	if b.part.ToolchainType == ToolchainQnx {
		b.AddMacros([]Macro{{Key: "_LIBCPP_HAS_NO_BUILTIN_OPERATOR_NEW_DELETE", Value: "1"}})
	}
}

// AddHeaderPathOptions emits user paths, then system paths and, when
// header paths are tweaked, the built-in paths behind -nostdinc.
func (b *CompilerOptionsBuilder) AddHeaderPathOptions() {
	filter := HeaderPathFilter{
		Part:            b.part,
		Tweak:           b.opts.Tweak,
		ClangVersion:    b.opts.ClangVersion,
		ClangIncludeDir: b.opts.ClangIncludeDir,
		ResourceDir:     b.opts.ResourceDir,
	}
	filter.Process()

	for _, hp := range filter.User {
		b.addIncludeDirOptionForPath(hp)
	}
	for _, hp := range filter.System {
		b.addIncludeDirOptionForPath(hp)
	}

	if b.opts.Tweak == TweakNo {
		return
	}
	if b.opts.ClangVersion == "" {
		slog.Warn("tweaked header paths without a clang version", "part", b.part.ID)
	}
	b.prepend("-nostdinc++")
	b.prepend("-nostdinc")
	for _, hp := range filter.BuiltIn {
		b.addIncludeDirOptionForPath(hp)
	}
}

func (b *CompilerOptionsBuilder) addIncludeDirOptionForPath(hp HeaderPath) {
	native := filepath.FromSlash(hp.Path)
	if hp.Type == HeaderPathFramework {
		if b.clStyle {
			slog.Error("framework header path in cl mode", "path", hp.Path)
			return
		}
		b.add([]string{"-F", native}, false)
		return
	}

	system := false
	switch hp.Type {
	case HeaderPathBuiltIn:
		system = true
	case HeaderPathSystem:
		system = b.opts.UseSystemHeader
	case HeaderPathUser:
		system = b.opts.UseSystemHeader && b.part.HasProject() && !util.HasPathPrefix(hp.Path, b.part.TopLevelProject)
	}

	if system {
		b.add([]string{includeSystemPath, native}, true)
		return
	}
	b.add([]string{includeUserPath, native}, false)
}

func (b *CompilerOptionsBuilder) InsertWrappedQtHeaders() {
	if b.opts.Tweak != TweakYes || b.part.QtVersion == QtNone {
		return
	}
	b.insertWrappedHeaders([]string{"wrappedQtHeaders", "wrappedQtHeaders/QtCore"})
}

func (b *CompilerOptionsBuilder) insertWrappedMingwHeaders() {
	if b.part.ToolchainType != ToolchainMinGW {
		return
	}
	b.insertWrappedHeaders([]string{"wrappedMingwHeaders"})
}

// insertWrappedHeaders puts the shim directories right before the first
// include path so they shadow the real headers.
func (b *CompilerOptionsBuilder) insertWrappedHeaders(relPaths []string) {
	if b.opts.Tweak == TweakNo || len(relPaths) == 0 {
		return
	}
	var args []string
	for _, rel := range relPaths {
		full := filepath.Join(b.opts.ResourceDir, wrappedHeadersBaseDir, filepath.FromSlash(rel))
		if info, err := os.Stat(full); err != nil || !info.IsDir() {
			slog.Error("wrapped headers directory missing", "path", full)
			continue
		}
		args = append(args, includeUserPath, full)
	}
	if len(args) == 0 {
		return
	}

	idx := slices.IndexFunc(b.options, func(o string) bool { return strings.HasPrefix(o, includeUserPath) })
	if idx < 0 {
		b.add(args, false)
		return
	}
	out := make([]string, 0, len(b.options)+len(args))
	out = append(out, b.options[:idx]...)
	out = append(out, args...)
	out = append(out, b.options[idx:]...)
	b.options = out
}
