package config

import (
	"time"
)

type Config struct {
	Version       int           `toml:"version"`
	Project       Project       `toml:"project"`
	Qmake         Qmake         `toml:"qmake"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Watch         Watch         `toml:"watch"`
	Toolchain     Toolchain     `toml:"toolchain"`
	CodeModel     CodeModel     `toml:"code_model"`
	Settings      Settings      `toml:"settings"`
	Observability Observability `toml:"observability"`
}

type Project struct {
	File     string `toml:"file"`
	BuildDir string `toml:"build_dir"`
	Sysroot  string `toml:"sysroot"`
	Mkspec   string `toml:"mkspec"`
}

// Qmake describes how the external qmake and make binaries are driven.
type Qmake struct {
	Binary            string   `toml:"binary"`
	Make              string   `toml:"make"`
	QtVersion         string   `toml:"qt_version"`
	ExtraArgs         []string `toml:"extra_args"`
	UserArgs          string   `toml:"user_args"`
	MakeArgs          string   `toml:"make_args"`
	ExtraParserArgs   []string `toml:"extra_parser_args"`
	Debug             bool     `toml:"debug"`
	BuildAll          bool     `toml:"build_all"`
	DefaultDebug      bool     `toml:"default_debug"`
	DefaultBuildAll   bool     `toml:"default_build_all"`
	SeparateDebugInfo string   `toml:"separate_debug_info"`
	QmlDebugging      string   `toml:"qml_debugging"`
	QtQuickCompiler   string   `toml:"qt_quick_compiler"`

	Properties map[string]string `toml:"properties"`
}

type Scheduler struct {
	UpdateInterval time.Duration `toml:"update_interval"`
	Workers        int           `toml:"workers"`
}

type Watch struct {
	Coalesce    time.Duration `toml:"coalesce"`
	RefreshRate float64       `toml:"refresh_rate"`
	ExcludeDirs []string      `toml:"exclude_dirs"`
}

type Toolchain struct {
	Type             string   `toml:"type"`
	TargetTriple     string   `toml:"target_triple"`
	TripleAuthority  bool     `toml:"target_triple_authoritative"`
	WordWidth        int      `toml:"word_width"`
	InstallDir       string   `toml:"install_dir"`
	Macros           []string `toml:"macros"`
	IncludePaths     []string `toml:"include_paths"`
	CxxFlags         []string `toml:"cxx_flags"`
	CFlags           []string `toml:"c_flags"`
	ExtraFlags       []string `toml:"extra_code_model_flags"`
	Msvc2015         bool     `toml:"msvc2015"`
	QtFrameworkPath  string   `toml:"qt_framework_path"`
	ClangVersion     string   `toml:"clang_version"`
	ClangResourceDir string   `toml:"clang_resource_dir"`
	CreatorResources string   `toml:"resource_dir"`
}

type CodeModel struct {
	UseSystemHeaders       bool   `toml:"use_system_headers"`
	TweakHeaderPaths       string `toml:"tweak_header_paths"`
	UseBuildSystemWarnings bool   `toml:"use_build_system_warnings"`
	UsePrecompiledHeaders  bool   `toml:"use_precompiled_headers"`
}

type Settings struct {
	Path string `toml:"path"`
}

type Observability struct {
	Enabled       bool   `toml:"enabled"`
	Address       string `toml:"address"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	EnableTracing bool   `toml:"enable_tracing"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
