package project

import (
	"path"
	"strings"

	"qmakemodel/internal/engine/reader"
)

// Mime types understood when adding files to a project file.
const (
	MimeCppHeader  = "text/x-c++hdr"
	MimeCHeader    = "text/x-chdr"
	MimeCppSource  = "text/x-c++src"
	MimeObjCSource = "text/x-objcsrc"
	MimeObjCpp     = "text/x-objc++src"
	MimeCSource    = "text/x-csrc"
	MimeResource   = "application/vnd.qt.xml.resource"
	MimeForm       = "application/x-designer"
	MimeQML        = "text/x-qml"
	MimeQMLUI      = "application/x-qt.ui+qml"
	MimeSCXML      = "application/scxml+xml"
	MimeProFile    = "application/vnd.qt.qmakeprofile"
	MimePriFile    = "application/vnd.qt.qmakeproincludefile"
	MimeUnknown    = "application/octet-stream"
)

var mimeByExtension = map[string]string{
	".h":     MimeCppHeader,
	".hh":    MimeCppHeader,
	".hpp":   MimeCppHeader,
	".hxx":   MimeCppHeader,
	".h++":   MimeCppHeader,
	".cpp":   MimeCppSource,
	".cc":    MimeCppSource,
	".cxx":   MimeCppSource,
	".c++":   MimeCppSource,
	".c":     MimeCSource,
	".m":     MimeObjCSource,
	".mm":    MimeObjCpp,
	".qrc":   MimeResource,
	".ui":    MimeForm,
	".qml":   MimeQML,
	".scxml": MimeSCXML,
	".pro":   MimeProFile,
	".pri":   MimePriFile,
}

// MimeTypeForFile classifies a file by extension.
func MimeTypeForFile(p string) string {
	name := strings.ToLower(path.Base(p))
	if strings.HasSuffix(name, ".ui.qml") {
		return MimeQMLUI
	}
	if mt, ok := mimeByExtension[path.Ext(name)]; ok {
		return mt
	}
	return MimeUnknown
}

// VarNamesForFileType returns the variables that feed bucket t for the
// given evaluated project.
func VarNamesForFileType(t FileType, exact reader.Reader) []string {
	return varNames(t, exact)
}

// VarNameForAdding picks the variable a new file of mime type mt is
// appended to.
func VarNameForAdding(mt string) string {
	switch mt {
	case MimeCppHeader, MimeCHeader:
		return "HEADERS"
	case MimeCppSource, MimeObjCpp, MimeCSource:
		return "SOURCES"
	case MimeResource:
		return "RESOURCES"
	case MimeForm:
		return "FORMS"
	case MimeQML, MimeQMLUI:
		return "DISTFILES"
	case MimeSCXML:
		return "STATECHARTS"
	case MimeProFile:
		return "SUBDIRS"
	default:
		return "DISTFILES"
	}
}

// VarNamesForRemoving lists every variable shown in the project tree.
func VarNamesForRemoving() []string {
	return []string{
		"HEADERS",
		"OBJECTIVE_HEADERS",
		"PRECOMPILED_HEADER",
		"SOURCES",
		"OBJECTIVE_SOURCES",
		"RESOURCES",
		"FORMS",
		"OTHER_FILES",
		"SUBDIRS",
		"DISTFILES",
		"ICON",
		"QMAKE_INFO_PLIST",
		"STATECHARTS",
	}
}

func splitQML(t FileType, files map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(files))
	wantQML := t == FileQML
	for f := range files {
		if strings.HasSuffix(f, ".qml") == wantQML {
			out[f] = struct{}{}
		}
	}
	return out
}

// filterFilesProVariables splits files listed in OTHER_FILES/DISTFILES
// between the QML and unknown buckets. Other buckets pass through.
func filterFilesProVariables(t FileType, files map[string]struct{}) map[string]struct{} {
	if t != FileQML && t != FileUnknown {
		out := make(map[string]struct{}, len(files))
		for f := range files {
			out[f] = struct{}{}
		}
		return out
	}
	return splitQML(t, files)
}

// filterFilesRecursiveEnumerata assigns enumerated folder contents to the
// QML and unknown buckets only.
func filterFilesRecursiveEnumerata(t FileType, files map[string]struct{}) map[string]struct{} {
	if t != FileQML && t != FileUnknown {
		return map[string]struct{}{}
	}
	return splitQML(t, files)
}

// SimplifyProFilePath maps dir/name/name.pro to dir/name.
func SimplifyProFilePath(proFile string) string {
	dir := path.Dir(proFile)
	if path.Base(dir) == completeBaseName(proFile) {
		return dir
	}
	return proFile
}
