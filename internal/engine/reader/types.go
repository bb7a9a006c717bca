// Package reader evaluates qmake project files into variable tables.
//
// It implements the subset of the qmake language the project model needs:
// assignments, scopes, conditional tests, include() and value expansion.
// Two load modes exist. Exact follows only the branches the active
// configuration selects. Cumulative visits every branch and never removes
// values, so its results are a superset of the exact ones.
package reader

import "strings"

type LoadMode int

const (
	Exact LoadMode = iota
	Cumulative
)

func (m LoadMode) String() string {
	if m == Cumulative {
		return "cumulative"
	}
	return "exact"
}

type TemplateType int

const (
	TemplateUnknown TemplateType = iota
	TemplateApplication
	TemplateStaticLibrary
	TemplateSharedLibrary
	TemplateScript
	TemplateAux
	TemplateSubdirs
)

func (t TemplateType) String() string {
	switch t {
	case TemplateApplication:
		return "app"
	case TemplateStaticLibrary:
		return "staticlib"
	case TemplateSharedLibrary:
		return "lib"
	case TemplateScript:
		return "script"
	case TemplateAux:
		return "aux"
	case TemplateSubdirs:
		return "subdirs"
	default:
		return "unknown"
	}
}

// SourceFile is a resolved file value together with the project file that
// declared it.
type SourceFile struct {
	Path    string
	ProFile string
}

// IncludeFile records one include() edge seen while evaluating.
type IncludeFile struct {
	Path   string
	Parent string
}

// value is a single evaluated list element. Source is the file whose
// statement produced the element.
type value struct {
	text   string
	source string
}

func texts(vals []value) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.text
	}
	return out
}

func hasWildcard(s string) bool {
	return strings.ContainsAny(s, "*?[")
}
