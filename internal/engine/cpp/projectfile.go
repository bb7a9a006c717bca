package cpp

import (
	"path"
	"strings"
)

type FileKind int

const (
	Unsupported FileKind = iota
	CHeader
	CSource
	CXXHeader
	CXXSource
	ObjCHeader
	ObjCSource
	ObjCXXHeader
	ObjCXXSource
	CudaSource
	OpenCLSource
	AmbiguousHeader
)

var kindByExt = map[string]FileKind{
	".c":   CSource,
	".i":   CSource,
	".cpp": CXXSource,
	".cc":  CXXSource,
	".cxx": CXXSource,
	".c++": CXXSource,
	".cp":  CXXSource,
	".ii":  CXXSource,
	".inl": CXXHeader,
	".hpp": CXXHeader,
	".hh":  CXXHeader,
	".hxx": CXXHeader,
	".h++": CXXHeader,
	".m":   ObjCSource,
	".mm":  ObjCXXSource,
	".cu":  CudaSource,
	".cl":  OpenCLSource,
}

// ClassifyFile derives the kind of a source file from its suffix. A plain
// ".h" is ambiguous between C and C++; upper case ".C" and ".H" are C++.
func ClassifyFile(file string) FileKind {
	ext := path.Ext(file)
	switch ext {
	case ".h":
		return AmbiguousHeader
	case ".C":
		return CXXSource
	case ".H":
		return CXXHeader
	}
	if kind, ok := kindByExt[strings.ToLower(ext)]; ok {
		return kind
	}
	return Unsupported
}

func (k FileKind) IsHeader() bool {
	switch k {
	case CHeader, CXXHeader, ObjCHeader, ObjCXXHeader, AmbiguousHeader:
		return true
	}
	return false
}

func (k FileKind) IsSource() bool {
	switch k {
	case CSource, CXXSource, ObjCSource, ObjCXXSource, CudaSource, OpenCLSource:
		return true
	}
	return false
}

func (k FileKind) IsC() bool {
	switch k {
	case CHeader, CSource, ObjCHeader, ObjCSource:
		return true
	}
	return false
}

func (k FileKind) IsCxx() bool {
	switch k {
	case CXXHeader, CXXSource, ObjCXXHeader, ObjCXXSource, CudaSource:
		return true
	}
	return false
}

func (k FileKind) IsObjC() bool {
	switch k {
	case ObjCHeader, ObjCSource, ObjCXXHeader, ObjCXXSource:
		return true
	}
	return false
}

// File is one file of a project part and whether it is active in the
// current configuration.
type File struct {
	Path   string
	Kind   FileKind
	Active bool
}
