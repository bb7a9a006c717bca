package reader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"qmakemodel/internal/shared/observability"
	"qmakemodel/internal/shared/util"
)

// Reader is the evaluator contract the project model consumes.
type Reader interface {
	Accept(ctx context.Context, proFile string, mode LoadMode) error
	Values(name string) []string
	Value(name string) string
	Contains(name, value string) bool
	AbsolutePathValues(name, baseDir string) []string
	AbsoluteFileValues(name, baseDir string, searchDirs []string, handled map[string]bool, wildcardDirs map[string]struct{}) []SourceFile
	FixifiedValues(name, baseDir, buildDir string, expandWildcards bool) []SourceFile
	IncludeFiles() []IncludeFile
	TemplateType() TemplateType
	PropertyValue(name string) string
	Errors() []string
	FeatureRoots() []string
}

// ProFileReader evaluates one project file at a time against shared globals.
type ProFileReader struct {
	globals *Globals
	vfs     *VFS
	release func()
	once    sync.Once

	extraVars    map[string][]string
	extraConfigs []string

	eval *evaluator
}

// Factory creates readers bound to one build system's globals and cache.
type Factory struct {
	shared *Shared
	vfs    *VFS
}

func NewFactory(shared *Shared, vfs *VFS) *Factory {
	if shared == nil {
		shared = NewShared(nil)
	}
	if vfs == nil {
		vfs = NewVFS(0)
	}
	return &Factory{shared: shared, vfs: vfs}
}

func (f *Factory) VFS() *VFS {
	return f.vfs
}

func (f *Factory) Shared() *Shared {
	return f.shared
}

// NewReader acquires the shared globals. Close releases them.
func (f *Factory) NewReader() *ProFileReader {
	return &ProFileReader{
		globals: f.shared.Acquire(),
		vfs:     f.vfs,
		release: f.shared.Release,
	}
}

// Close releases the reader's hold on the shared globals.
func (r *ProFileReader) Close() {
	r.once.Do(func() {
		if r.release != nil {
			r.release()
		}
	})
}

// SetExtraVars presets variables before the file is evaluated.
func (r *ProFileReader) SetExtraVars(vars map[string][]string) {
	r.extraVars = vars
}

// SetExtraConfigs appends values to CONFIG before the file is evaluated.
func (r *ProFileReader) SetExtraConfigs(configs []string) {
	r.extraConfigs = configs
}

// Accept evaluates proFile. A failed evaluation still leaves the partial
// variable table readable.
func (r *ProFileReader) Accept(ctx context.Context, proFile string, mode LoadMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		observability.EvaluationDuration.WithLabelValues(mode.String()).Observe(time.Since(start).Seconds())
	}()

	proFile = util.CleanPath(proFile)
	e := newEvaluator(ctx, r.globals, r.vfs, mode, proFile)
	r.eval = e
	e.applyAssignments(r.globals.CommandLine)
	for _, name := range util.SortedStringKeys(r.extraVars) {
		e.vars[name] = nil
		for _, v := range r.extraVars[name] {
			e.vars[name] = append(e.vars[name], value{text: v})
		}
	}
	for _, c := range r.extraConfigs {
		e.vars["CONFIG"] = append(e.vars["CONFIG"], value{text: c})
	}

	err := e.evalFile(proFile)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, errEvalFailed):
		return fmt.Errorf("evaluate %s: %w", proFile, err)
	case errors.Is(err, os.ErrNotExist):
		e.errors = append(e.errors, fmt.Sprintf("Cannot read %s: No such file or directory", proFile))
		return err
	default:
		e.errors = append(e.errors, err.Error())
		return err
	}
}

func (r *ProFileReader) values(name string) []value {
	if r.eval == nil {
		return nil
	}
	return r.eval.lookup(name)
}

func (r *ProFileReader) Values(name string) []string {
	return texts(r.values(name))
}

// Value returns the values of name joined by a space.
func (r *ProFileReader) Value(name string) string {
	return strings.Join(r.Values(name), " ")
}

func (r *ProFileReader) Contains(name, val string) bool {
	for _, v := range r.values(name) {
		if v.text == val {
			return true
		}
	}
	return false
}

func (r *ProFileReader) expandEnv(s string) string {
	return os.Expand(s, func(k string) string { return r.globals.env(k) })
}

// AbsolutePathValues resolves values against baseDir, keeping existing
// directories only.
func (r *ProFileReader) AbsolutePathValues(name, baseDir string) []string {
	var out []string
	for _, v := range r.Values(name) {
		p := util.ResolvePath(baseDir, r.expandEnv(v))
		if st, err := os.Stat(p); err == nil && st.IsDir() {
			out = append(out, p)
		}
	}
	return out
}

// AbsoluteFileValues resolves file values. A value is tried against baseDir,
// then against every search directory. Values whose file name holds a
// wildcard are globbed in their directory, which is recorded in
// wildcardDirs. Missing values are dropped. handled dedups values across
// calls sharing the map.
func (r *ProFileReader) AbsoluteFileValues(name, baseDir string, searchDirs []string, handled map[string]bool, wildcardDirs map[string]struct{}) []SourceFile {
	var out []SourceFile
	for _, v := range r.values(name) {
		if handled != nil {
			if handled[v.text] {
				continue
			}
			handled[v.text] = true
		}
		el := r.expandEnv(v.text)
		abs := path.IsAbs(el)
		fn := util.ResolvePath(baseDir, el)
		if pathExists(fn) || r.vfs.Exists(fn) {
			out = append(out, SourceFile{Path: fn, ProFile: v.source})
			continue
		}
		if !abs {
			found := false
			for _, dir := range searchDirs {
				cand := util.ResolvePath(dir, el)
				if pathExists(cand) {
					out = append(out, SourceFile{Path: cand, ProFile: v.source})
					found = true
					break
				}
			}
			if found {
				continue
			}
		}
		dir, pattern := path.Split(fn)
		dir = strings.TrimSuffix(dir, "/")
		if !strings.ContainsAny(pattern, "*?") || !pathExists(dir) {
			continue
		}
		if wildcardDirs != nil {
			wildcardDirs[dir] = struct{}{}
		}
		for _, match := range globDir(dir, pattern) {
			out = append(out, SourceFile{Path: dir + "/" + match, ProFile: v.source})
		}
	}
	return out
}

// FixifiedValues resolves values against baseDir, falling back to buildDir
// for relative values that only exist there.
func (r *ProFileReader) FixifiedValues(name, baseDir, buildDir string, expandWildcards bool) []SourceFile {
	var out []SourceFile
	for _, v := range r.values(name) {
		el := r.expandEnv(v.text)
		p := util.ResolvePath(baseDir, el)
		if !path.IsAbs(el) && buildDir != "" && !pathExists(p) {
			if alt := util.ResolvePath(buildDir, el); pathExists(alt) {
				p = alt
			}
		}
		if expandWildcards && strings.ContainsAny(path.Base(p), "*?") {
			dir := path.Dir(p)
			for _, match := range globDir(dir, path.Base(p)) {
				out = append(out, SourceFile{Path: dir + "/" + match, ProFile: v.source})
			}
			continue
		}
		out = append(out, SourceFile{Path: p, ProFile: v.source})
	}
	return out
}

func (r *ProFileReader) IncludeFiles() []IncludeFile {
	if r.eval == nil {
		return nil
	}
	return append([]IncludeFile(nil), r.eval.includes...)
}

func (r *ProFileReader) TemplateType() TemplateType {
	t := strings.TrimPrefix(strings.TrimSpace(r.Value("TEMPLATE")), "vc")
	switch t {
	case "", "app":
		return TemplateApplication
	case "lib":
		if r.eval != nil && r.eval.isActiveConfig("staticlib") {
			return TemplateStaticLibrary
		}
		return TemplateSharedLibrary
	case "script":
		return TemplateScript
	case "aux":
		return TemplateAux
	case "subdirs":
		return TemplateSubdirs
	default:
		return TemplateUnknown
	}
}

func (r *ProFileReader) PropertyValue(name string) string {
	v, _ := r.globals.property(name)
	return v
}

func (r *ProFileReader) Errors() []string {
	if r.eval == nil {
		return nil
	}
	return append([]string(nil), r.eval.errors...)
}

func (r *ProFileReader) FeatureRoots() []string {
	return append([]string(nil), r.globals.FeatureRoots...)
}

func pathExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
