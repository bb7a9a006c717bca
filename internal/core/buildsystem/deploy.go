package buildsystem

import (
	"path"
	"runtime"
	"strings"

	"qmakemodel/internal/engine/cpp"
	"qmakemodel/internal/engine/project"
	"qmakemodel/internal/shared/util"
)

// DeployableFile is one file copied to a device directory on deployment.
type DeployableFile struct {
	LocalPath  string
	RemoteDir  string
	Executable bool
}

type DeploymentData struct {
	Files []DeployableFile
}

func (d *DeploymentData) add(local, remote string, executable bool) {
	d.Files = append(d.Files, DeployableFile{LocalPath: local, RemoteDir: remote, Executable: executable})
}

// ApplicationTarget is a runnable produced by an application project.
type ApplicationTarget struct {
	BuildKey              string
	DisplayName           string
	DisplayNameUniquifier string
	ProjectFilePath       string
	TargetFilePath        string
	WorkingDirectory      string
	LibraryPaths          []string
	IsRunnable            bool
	UsesTerminal          bool
}

// targetOS is the operating system binaries are built for: the one named by
// the target triple or toolchain, else the host.
func (b *BuildSystem) targetOS() string {
	triple := strings.ToLower(b.cfg.Toolchain.TargetTriple)
	switch {
	case strings.Contains(triple, "windows"), strings.Contains(triple, "mingw"), strings.Contains(triple, "msvc"):
		return "windows"
	case strings.Contains(triple, "apple"), strings.Contains(triple, "darwin"), strings.Contains(triple, "ios"):
		return "darwin"
	case strings.Contains(triple, "linux"), strings.Contains(triple, "bsd"), strings.Contains(triple, "qnx"):
		return "linux"
	}
	switch b.cfg.Toolchain.Type {
	case cpp.ToolchainMsvc, cpp.ToolchainClangCl, cpp.ToolchainMinGW:
		return "windows"
	case cpp.ToolchainQnx:
		return "linux"
	}
	return runtime.GOOS
}

func destDirFor(ti project.TargetInformation) string {
	if ti.DestDir == "" {
		return ti.BuildDir
	}
	return util.ResolvePath(ti.BuildDir, ti.DestDir)
}

// deploymentData collects install rules and build outputs starting at the
// root project.
func (b *BuildSystem) deploymentData() DeploymentData {
	var data DeploymentData
	root := b.tree.Root()
	if n := b.tree.Node(root); n == nil || n.Pro.ParseInProgress {
		return data
	}
	b.collectData(root, &data)
	return data
}

// subProjectDeployable reports whether no parent marked id's .pro with
// no_default_target.
func (b *BuildSystem) subProjectDeployable(id project.NodeID) bool {
	n := b.tree.Node(id)
	parent := b.tree.ParentProFile(id)
	if n == nil || !parent.Valid() {
		return n != nil
	}
	return !contains(b.tree.SubProjectsNotToDeploy(parent), n.Path)
}

func (b *BuildSystem) collectData(id project.NodeID, data *DeploymentData) {
	if !b.subProjectDeployable(id) {
		return
	}
	n := b.tree.Node(id)
	installs := n.Pro.Installs
	for _, item := range installs.Items {
		if !item.Active {
			continue
		}
		for _, f := range item.Files {
			data.add(f.Path, item.Path, item.Executable)
		}
	}

	switch n.Pro.ProjectType {
	case project.Application:
		if installs.TargetPath != "" {
			if exe := b.executableFor(id); exe != "" {
				data.add(exe, installs.TargetPath, true)
			}
		}
	case project.SharedLibrary, project.StaticLibrary:
		b.collectLibraryData(id, data)
	case project.SubDirs:
		for _, sub := range b.tree.SubPriFilesExact(id) {
			if c := b.tree.Node(sub); c != nil && c.Kind == project.KindPro {
				b.collectData(sub, data)
			}
		}
	}
}

func (b *BuildSystem) collectLibraryData(id project.NodeID, data *DeploymentData) {
	n := b.tree.Node(id)
	targetPath := n.Pro.Installs.TargetPath
	if targetPath == "" {
		return
	}
	ti := n.Pro.TargetInfo
	config := b.tree.VariableValue(id, project.VarConfig)
	isStatic := contains(config, "static") || n.Pro.ProjectType == project.StaticLibrary
	isPlugin := contains(config, "plugin")
	nameIsVersioned := !isPlugin && !contains(config, "unversioned_libname")
	prefixed := !(isPlugin && contains(config, "no_plugin_name_prefix"))
	version := b.tree.SingleVariableValue(id, project.VarVersion)
	dest := destDirFor(ti)
	name := ti.Target

	switch b.targetOS() {
	case "windows":
		ext := b.tree.SingleVariableValue(id, project.VarTargetVersionExt)
		if ext == "" && version != "" {
			ext, _, _ = strings.Cut(version, ".")
			if ext == "0" {
				ext = ""
			}
		}
		name += ext + "."
		if isStatic {
			name += "lib"
		} else {
			name += "dll"
		}
		data.add(path.Join(dest, name), targetPath, false)
	case "darwin":
		if contains(config, "lib_bundle") {
			dest = path.Join(dest, ti.Target+".framework")
		} else {
			if prefixed {
				name = "lib" + name
			}
			if nameIsVersioned {
				major, _, _ := strings.Cut(version, ".")
				if major == "" {
					major = "1"
				}
				name += "." + major
			}
			v := project.VarShLibExtension
			if isStatic {
				v = project.VarStaticLibExtension
			}
			name += "." + b.tree.SingleVariableValue(id, v)
		}
		data.add(path.Join(dest, name), targetPath, false)
	default:
		if prefixed {
			name = "lib" + name
		}
		if isStatic {
			return
		}
		name += ".so"
		data.add(path.Join(dest, name), targetPath, false)
		if !nameIsVersioned {
			return
		}
		if version == "" {
			version = "1.0.0"
		}
		parts := strings.Split(version, ".")
		for len(parts) < 3 {
			parts = append(parts, "0")
		}
		for ; len(parts) > 0; parts = parts[:len(parts)-1] {
			data.add(path.Join(dest, name+"."+strings.Join(parts, ".")), targetPath, false)
		}
	}
}

// executableFor returns the absolute path of the binary an application
// project builds.
func (b *BuildSystem) executableFor(id project.NodeID) string {
	n := b.tree.Node(id)
	ti := n.Pro.TargetInfo
	if ti.Target == "" {
		return ""
	}
	goos := b.targetOS()
	var target string
	switch {
	case goos == "darwin" && contains(b.tree.VariableValue(id, project.VarConfig), "app_bundle"):
		target = ti.Target + ".app/Contents/MacOS/" + ti.Target
	case b.tree.SingleVariableValue(id, project.VarTargetExt) != "":
		target = ti.Target + b.tree.SingleVariableValue(id, project.VarTargetExt)
	case goos == "windows" && !strings.HasSuffix(strings.ToLower(ti.Target), ".exe"):
		target = ti.Target + ".exe"
	default:
		target = ti.Target
	}
	return util.ResolvePath(b.projectDir, path.Join(destDirFor(ti), target))
}

// applicationTargets lists the runnables of application and script
// projects taking part in the exact parse.
func (b *BuildSystem) applicationTargets() []ApplicationTarget {
	root := b.tree.Root()
	if n := b.tree.Node(root); n == nil || n.Pro.ParseInProgress {
		return nil
	}
	var out []ApplicationTarget
	for _, id := range b.tree.AllProFiles(root) {
		n := b.tree.Node(id)
		if !n.IncludedInExactParse {
			continue
		}
		if n.Pro.ProjectType != project.Application && n.Pro.ProjectType != project.Script {
			continue
		}
		ti := n.Pro.TargetInfo
		if !ti.Valid {
			continue
		}
		config := b.tree.VariableValue(id, project.VarConfig)

		workingDir := ti.BuildDir
		if ti.DestDir != "" && ti.DestDir != ti.BuildTarget {
			workingDir = util.ResolvePath(ti.BuildDir, ti.DestDir)
		}
		if b.targetOS() == "darwin" && contains(config, "app_bundle") {
			workingDir = path.Join(workingDir, ti.Target+".app/Contents/MacOS")
		}

		app := ApplicationTarget{
			BuildKey:         n.Path,
			DisplayName:      strings.TrimSuffix(path.Base(n.Path), path.Ext(n.Path)),
			ProjectFilePath:  n.Path,
			TargetFilePath:   b.executableFor(id),
			WorkingDirectory: workingDir,
			IsRunnable:       contains(config, "qtc_runnable"),
		}
		if util.IsChildOf(n.Path, b.projectDir) {
			app.DisplayNameUniquifier = " (" + strings.TrimPrefix(n.Path, util.WithTrailingSlash(b.projectDir)) + ")"
		}
		if contains(config, "console") && !contains(config, "testcase") {
			qt := b.tree.VariableValue(id, project.VarQt)
			app.UsesTerminal = !contains(qt, "testlib") && !contains(qt, "qmltest")
		}

		proBuildDir := b.BuildDir(n.Path)
		for _, dir := range b.tree.VariableValue(id, project.VarLibDirectories) {
			app.LibraryPaths = append(app.LibraryPaths, util.ResolvePath(proBuildDir, dir))
		}
		if libs := b.cfg.Qmake.Properties["QT_INSTALL_LIBS"]; libs != "" {
			app.LibraryPaths = append(app.LibraryPaths, util.CleanPath(libs))
		}
		out = append(out, app)
	}
	return out
}
