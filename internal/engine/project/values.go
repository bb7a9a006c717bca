package project

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"qmakemodel/internal/engine/reader"
	"qmakemodel/internal/shared/util"
)

var extraCompilerInputsHandledElsewhere = map[string]bool{
	"FORMS":              true,
	"STATECHARTS":        true,
	"RESOURCES":          true,
	"SOURCES":            true,
	"HEADERS":            true,
	"OBJECTIVE_HEADERS":  true,
	"PRECOMPILED_HEADER": true,
}

// varNames returns the qmake variables whose files land in bucket t.
func varNames(t FileType, exact reader.Reader) []string {
	switch t {
	case FileHeader:
		return []string{"HEADERS", "OBJECTIVE_HEADERS", "PRECOMPILED_HEADER"}
	case FileSource:
		vars := []string{"SOURCES"}
		for _, compiler := range exact.Values("QMAKE_EXTRA_COMPILERS") {
			for _, input := range exact.Values(compiler + ".input") {
				if !extraCompilerInputsHandledElsewhere[input] {
					vars = append(vars, input)
				}
			}
		}
		return vars
	case FileResource:
		return []string{"RESOURCES"}
	case FileForm:
		return []string{"FORMS"}
	case FileStateChart:
		return []string{"STATECHARTS"}
	case FileProject:
		return []string{"SUBDIRS"}
	case FileQML:
		return []string{"OTHER_FILES", "DISTFILES"}
	default:
		return []string{"DISTFILES", "ICON", "OTHER_FILES", "QMAKE_INFO_PLIST", "TRANSLATIONS"}
	}
}

func baseVPaths(r reader.Reader, projectDir, buildDir string) []string {
	if r == nil {
		return nil
	}
	out := r.AbsolutePathValues("VPATH", projectDir)
	out = append(out, projectDir, buildDir)
	return util.RemoveDuplicates(out)
}

func fullVPaths(base []string, r reader.Reader, variable, projectDir string) []string {
	if r == nil {
		return nil
	}
	out := r.AbsolutePathValues("VPATH_"+variable, projectDir)
	out = append(out, base...)
	return util.RemoveDuplicates(out)
}

func dirUnderBuild(value, buildDir string) string {
	if path.IsAbs(value) {
		return value
	}
	return util.CleanPath(buildDir + "/" + value)
}

func uiDirPath(r reader.Reader, buildDir string) string {
	return dirUnderBuild(r.Value("UI_DIR"), buildDir)
}

func mocDirPath(r reader.Reader, buildDir string) string {
	return dirUnderBuild(r.Value("MOC_DIR"), buildDir)
}

// sysrootify prefixes path with sysroot when the result exists and path is
// not already inside the sysroot, the source tree or the build tree.
func sysrootify(p, sysroot, baseDir, outDir string) string {
	if sysroot == "" || strings.HasPrefix(p, sysroot) || strings.HasPrefix(p, baseDir) || strings.HasPrefix(p, outDir) {
		return p
	}
	rooted := util.CleanPath(sysroot + p)
	if !pathExists(rooted) {
		return p
	}
	return rooted
}

func includePaths(r reader.Reader, sysroot, buildDir, projectDir string) []string {
	var paths []string
	nextIsIncludePath := false
	for _, flag := range r.Values("QMAKE_CXXFLAGS") {
		switch {
		case nextIsIncludePath:
			nextIsIncludePath = false
			paths = append(paths, flag)
		case strings.HasPrefix(flag, "-I"):
			paths = append(paths, flag[2:])
		case strings.HasPrefix(flag, "-isystem"):
			nextIsIncludePath = true
		}
	}

	// moc and uic output directories are accepted before they exist so the
	// list is stable across builds.
	mocDir := mocDirPath(r, buildDir)
	uiDir := uiDirPath(r, buildDir)

	tryUnfixified := false
	for _, el := range r.FixifiedValues("INCLUDEPATH", projectDir, buildDir, false) {
		p := sysrootify(el.Path, sysroot, projectDir, buildDir)
		if path.IsAbs(p) && (pathExists(p) || p == mocDir || p == uiDir) {
			paths = append(paths, p)
		} else {
			tryUnfixified = true
		}
	}

	if tryUnfixified {
		for _, raw := range r.Values("INCLUDEPATH") {
			p := sysrootify(util.CleanPath(raw), sysroot, projectDir, buildDir)
			if path.IsAbs(p) && pathExists(p) {
				paths = append(paths, p)
			}
		}
	}
	return util.RemoveDuplicates(paths)
}

func libDirectories(r reader.Reader) []string {
	var out []string
	for _, v := range r.Values("LIBS") {
		if strings.HasPrefix(v, "-L") {
			out = append(out, v[2:])
		}
	}
	return out
}

// subDirsPaths resolves SUBDIRS entries to .pro files. An entry may name a
// directory holding <dir>.pro, a .pro file, or an id with a .subdir or
// .file property.
func subDirsPaths(r reader.Reader, projectDir string, notToDeploy *[]string, errs *[]string) []string {
	var out []string
	for _, sub := range r.Values("SUBDIRS") {
		realDir := sub
		switch {
		case len(r.Values(sub+".subdir")) > 0:
			realDir = r.Value(sub + ".subdir")
		case len(r.Values(sub+".file")) > 0:
			realDir = r.Value(sub + ".file")
		}
		realDir = util.ResolvePath(projectDir, realDir)

		realFile := realDir
		if st, err := os.Stat(realDir); err == nil && st.IsDir() {
			realFile = realDir + "/" + path.Base(realDir) + ".pro"
		}

		if !pathExists(realFile) {
			if errs != nil {
				*errs = append(*errs, fmt.Sprintf("Could not find .pro file for subdirectory %q in %q.", sub, realDir))
			}
			continue
		}
		realFile = util.CleanPath(realFile)
		out = append(out, realFile)
		if notToDeploy != nil && !containsString(*notToDeploy, realFile) && r.Contains(sub+".CONFIG", "no_default_target") {
			*notToDeploy = append(*notToDeploy, realFile)
		}
	}
	return util.RemoveDuplicates(out)
}

func targetInformation(r, buildPass reader.Reader, buildDir, proFilePath string) TargetInformation {
	var ti TargetInformation
	if r == nil || buildPass == nil {
		return ti
	}
	if builds := r.Values("BUILDS"); len(builds) > 0 {
		ti.BuildTarget = r.Value(builds[0] + ".target")
	}
	ti.BuildDir = buildDir
	if len(buildPass.Values("DESTDIR")) > 0 {
		ti.DestDir = buildPass.Value("DESTDIR")
	}
	ti.Target = buildPass.Value("TARGET")
	if ti.Target == "" {
		ti.Target = baseName(proFilePath)
	}
	ti.Valid = true
	return ti
}

func installsList(r reader.Reader, proFilePath, projectDir, buildDir string) InstallsList {
	var result InstallsList
	if r == nil {
		return result
	}
	items := r.Values("INSTALLS")
	if len(items) == 0 {
		return result
	}

	type prefixPair struct{ install, dev string }
	var prefixes []prefixPair
	for _, name := range []string{"QT_INSTALL_PREFIX", "QT_INSTALL_EXAMPLES"} {
		prefixes = append(prefixes, prefixPair{r.PropertyValue(name), r.PropertyValue(name + "/dev")})
	}

	for _, item := range items {
		config := r.Values(item + ".CONFIG")
		active := !containsString(config, "no_default_install")
		executable := containsString(config, "executable")

		itemPaths := r.Values(item + ".path")
		if len(itemPaths) != 1 {
			slog.Debug("install item path is not a single value", "pro_file", proFilePath, "item", item, "values", len(itemPaths))
			if len(itemPaths) == 0 {
				continue
			}
		}
		itemPath := itemPaths[len(itemPaths)-1]
		for _, p := range prefixes {
			if p.install == p.dev || !strings.HasPrefix(itemPath, p.install) {
				continue
			}
			itemPath = p.dev + itemPath[len(p.install):]
			break
		}

		if item == "target" {
			if active {
				result.TargetPath = itemPath
			}
			continue
		}
		result.Items = append(result.Items, InstallsItem{
			Path:       itemPath,
			Files:      r.FixifiedValues(item+".files", projectDir, buildDir, true),
			Active:     active,
			Executable: executable,
		})
	}
	return result
}

// CxxDefines renders DEFINES values as preprocessor lines.
func CxxDefines(defines []string) string {
	var b strings.Builder
	for _, def := range defines {
		args, err := util.SplitArgs(def)
		if err != nil || len(args) == 0 {
			continue
		}
		b.WriteString("#define ")
		name, value, found := strings.Cut(args[0], "=")
		if !found {
			b.WriteString(name)
			b.WriteString(" 1\n")
			continue
		}
		b.WriteString(name)
		b.WriteByte(' ')
		b.WriteString(value)
		b.WriteByte('\n')
	}
	return b.String()
}

func baseName(p string) string {
	base := path.Base(p)
	if i := strings.Index(base, "."); i >= 0 {
		return base[:i]
	}
	return base
}

func completeBaseName(p string) string {
	base := path.Base(p)
	if i := strings.LastIndex(base, "."); i > 0 {
		return base[:i]
	}
	return base
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func pathExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func isDir(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}
