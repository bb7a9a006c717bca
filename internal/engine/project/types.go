// Package project turns evaluated qmake project files into a tree of
// .pro/.pri nodes.
//
// Evaluate runs on worker goroutines and only produces immutable
// descriptors. Tree owns the live nodes and must only be touched from the
// goroutine that owns the build system.
package project

import (
	"qmakemodel/internal/engine/reader"
)

type NodeKind int

const (
	KindPri NodeKind = iota
	KindPro
)

func (k NodeKind) String() string {
	if k == KindPro {
		return "pro"
	}
	return "pri"
}

type ProjectType int

const (
	Invalid ProjectType = iota
	Application
	StaticLibrary
	SharedLibrary
	Script
	Aux
	SubDirs
)

func (t ProjectType) String() string {
	switch t {
	case Application:
		return "app"
	case StaticLibrary:
		return "staticlib"
	case SharedLibrary:
		return "sharedlib"
	case Script:
		return "script"
	case Aux:
		return "aux"
	case SubDirs:
		return "subdirs"
	default:
		return "invalid"
	}
}

func projectTypeFromTemplate(t reader.TemplateType) ProjectType {
	switch t {
	case reader.TemplateUnknown, reader.TemplateApplication:
		return Application
	case reader.TemplateStaticLibrary:
		return StaticLibrary
	case reader.TemplateSharedLibrary:
		return SharedLibrary
	case reader.TemplateScript:
		return Script
	case reader.TemplateAux:
		return Aux
	case reader.TemplateSubdirs:
		return SubDirs
	default:
		return Invalid
	}
}

type FileType int

const (
	FileUnknown FileType = iota
	FileHeader
	FileSource
	FileForm
	FileStateChart
	FileResource
	FileQML
	FileProject

	fileTypeCount
)

// FileTypes lists every bucket in declaration order.
func FileTypes() []FileType {
	out := make([]FileType, 0, fileTypeCount)
	for t := FileUnknown; t < fileTypeCount; t++ {
		out = append(out, t)
	}
	return out
}

func (t FileType) String() string {
	switch t {
	case FileHeader:
		return "header"
	case FileSource:
		return "source"
	case FileForm:
		return "form"
	case FileStateChart:
		return "statechart"
	case FileResource:
		return "resource"
	case FileQML:
		return "qml"
	case FileProject:
		return "project"
	default:
		return "unknown"
	}
}

type FileOrigin int

const (
	ExactParse FileOrigin = iota
	CumulativeParse
)

func (o FileOrigin) String() string {
	if o == CumulativeParse {
		return "cumulative"
	}
	return "exact"
}

// SourceFile is one file listed in a node bucket.
type SourceFile struct {
	Path   string
	Origin FileOrigin
}

type EvalState int

const (
	EvalAbort EvalState = iota
	EvalFail
	EvalPartial
	EvalOk
)

func (s EvalState) String() string {
	switch s {
	case EvalFail:
		return "fail"
	case EvalPartial:
		return "partial"
	case EvalOk:
		return "ok"
	default:
		return "abort"
	}
}

// Variable keys the typed variable table of a .pro node.
type Variable int

const (
	VarDefines Variable = iota
	VarIncludePath
	VarCppFlags
	VarCFlags
	VarExactSource
	VarCumulativeSource
	VarExactResource
	VarCumulativeResource
	VarUiDir
	VarHeaderExtension
	VarCppExtension
	VarMocDir
	VarPkgConfig
	VarPrecompiledHeader
	VarLibDirectories
	VarConfig
	VarQt
	VarQmlImportPath
	VarQmlDesignerImportPath
	VarMakefile
	VarObjectExt
	VarObjectsDir
	VarVersion
	VarTargetExt
	VarTargetVersionExt
	VarStaticLibExtension
	VarShLibExtension
	VarAndroidAbi
	VarAndroidAbis
	VarAndroidDeploySettingsFile
	VarAndroidPackageSourceDir
	VarAndroidExtraLibs
	VarAndroidApplicationArguments
	VarAppmanPackageDir
	VarAppmanManifest
	VarIsoIcons
	VarQmakeProjectName
	VarQmakeCc
	VarQmakeCxx
)

var variableNames = map[Variable]string{
	VarDefines:                     "Defines",
	VarIncludePath:                 "IncludePath",
	VarCppFlags:                    "CppFlags",
	VarCFlags:                      "CFlags",
	VarExactSource:                 "ExactSource",
	VarCumulativeSource:            "CumulativeSource",
	VarExactResource:               "ExactResource",
	VarCumulativeResource:          "CumulativeResource",
	VarUiDir:                       "UiDir",
	VarHeaderExtension:             "HeaderExtension",
	VarCppExtension:                "CppExtension",
	VarMocDir:                      "MocDir",
	VarPkgConfig:                   "PkgConfig",
	VarPrecompiledHeader:           "PrecompiledHeader",
	VarLibDirectories:              "LibDirectories",
	VarConfig:                      "Config",
	VarQt:                          "Qt",
	VarQmlImportPath:               "QmlImportPath",
	VarQmlDesignerImportPath:       "QmlDesignerImportPath",
	VarMakefile:                    "Makefile",
	VarObjectExt:                   "ObjectExt",
	VarObjectsDir:                  "ObjectsDir",
	VarVersion:                     "Version",
	VarTargetExt:                   "TargetExt",
	VarTargetVersionExt:            "TargetVersionExt",
	VarStaticLibExtension:          "StaticLibExtension",
	VarShLibExtension:              "ShLibExtension",
	VarAndroidAbi:                  "AndroidAbi",
	VarAndroidAbis:                 "AndroidAbis",
	VarAndroidDeploySettingsFile:   "AndroidDeploySettingsFile",
	VarAndroidPackageSourceDir:     "AndroidPackageSourceDir",
	VarAndroidExtraLibs:            "AndroidExtraLibs",
	VarAndroidApplicationArguments: "AndroidApplicationArguments",
	VarAppmanPackageDir:            "AppmanPackageDir",
	VarAppmanManifest:              "AppmanManifest",
	VarIsoIcons:                    "IsoIcons",
	VarQmakeProjectName:            "QmakeProjectName",
	VarQmakeCc:                     "QmakeCc",
	VarQmakeCxx:                    "QmakeCxx",
}

func (v Variable) String() string {
	if name, ok := variableNames[v]; ok {
		return name
	}
	return "Unknown"
}

// VarTable holds the typed variable values of one .pro node.
type VarTable map[Variable][]string

// Equal reports whether both tables hold the same keys with the same
// ordered values.
func (t VarTable) Equal(other VarTable) bool {
	if len(t) != len(other) {
		return false
	}
	for k, a := range t {
		b, ok := other[k]
		if !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}

func (t VarTable) clone() VarTable {
	if t == nil {
		return nil
	}
	out := make(VarTable, len(t))
	for k, v := range t {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// TargetInformation describes the binary a .pro node builds.
type TargetInformation struct {
	Valid       bool
	Target      string
	DestDir     string
	BuildDir    string
	BuildTarget string
}

// InstallsItem is one INSTALLS entry other than "target".
type InstallsItem struct {
	Path       string
	Files      []reader.SourceFile
	Active     bool
	Executable bool
}

type InstallsList struct {
	TargetPath string
	Items      []InstallsItem
}

type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic is a problem attached to a project file.
type Diagnostic struct {
	Severity Severity
	Message  string
	Path     string
}
