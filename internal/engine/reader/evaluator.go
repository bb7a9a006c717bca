package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gobwas/glob"

	"qmakemodel/internal/shared/util"
)

var errEvalFailed = errors.New("evaluation failed")

type evaluator struct {
	ctx     context.Context
	globals *Globals
	vfs     *VFS
	mode    LoadMode

	proFile string
	vars    map[string][]value
	stack   []string
	skip    int

	includes []IncludeFile
	errors   []string
}

func newEvaluator(ctx context.Context, g *Globals, vfs *VFS, mode LoadMode, proFile string) *evaluator {
	e := &evaluator{
		ctx:     ctx,
		globals: g,
		vfs:     vfs,
		mode:    mode,
		proFile: proFile,
		vars:    make(map[string][]value),
	}
	for name, vals := range g.BaseVars {
		for _, v := range vals {
			e.vars[name] = append(e.vars[name], value{text: v})
		}
	}
	return e
}

func (e *evaluator) current() string {
	if len(e.stack) == 0 {
		return e.proFile
	}
	return e.stack[len(e.stack)-1]
}

func (e *evaluator) currentDir() string {
	return path.Dir(e.current())
}

func (e *evaluator) errorf(line int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if line > 0 {
		msg = fmt.Sprintf("%s:%d: %s", e.current(), line, msg)
	}
	e.errors = append(e.errors, msg)
}

// applyAssignments evaluates command-line style "VAR+=value" strings.
func (e *evaluator) applyAssignments(assignments []string) {
	for _, a := range assignments {
		st, err := (&parser{path: e.proFile}).line(a, 0)
		if err != nil || st.kind != stmtAssign {
			e.errorf(0, "ignoring malformed assignment %q", a)
			continue
		}
		e.assign(st)
	}
}

func (e *evaluator) evalFile(file string) error {
	if err := e.ctx.Err(); err != nil {
		return err
	}
	f, err := e.vfs.Parse(file)
	if err != nil {
		return err
	}
	e.stack = append(e.stack, file)
	defer func() { e.stack = e.stack[:len(e.stack)-1] }()
	return e.evalBlock(f.stmts)
}

func (e *evaluator) evalBlock(stmts []*statement) error {
	for _, st := range stmts {
		if err := e.evalStatement(st); err != nil {
			return err
		}
	}
	return nil
}

func (e *evaluator) evalStatement(st *statement) error {
	switch st.kind {
	case stmtAssign:
		e.assign(st)
		return nil
	case stmtCall:
		_, err := e.call(st.fn, st.args, st.called, st.line)
		return err
	}

	if len(st.cond) == 0 {
		return e.evalBlock(st.then)
	}
	if first := st.cond[0]; len(st.cond) == 1 && first.called {
		switch first.fn {
		case "defineTest", "defineReplace":
			return nil
		case "for":
			return e.loop(first.args, st.then)
		}
	}

	ok, err := e.condition(st.cond, st.line)
	if err != nil {
		return err
	}
	if e.mode == Exact {
		if ok {
			return e.evalBlock(st.then)
		}
		return e.evalBlock(st.els)
	}
	if err := e.skipped(!ok, st.then); err != nil {
		return err
	}
	return e.skipped(ok, st.els)
}

// skipped runs a branch in cumulative mode, remembering whether the exact
// pass would have entered it.
func (e *evaluator) skipped(skip bool, stmts []*statement) error {
	if len(stmts) == 0 {
		return nil
	}
	if skip {
		e.skip++
		defer func() { e.skip-- }()
	}
	return e.evalBlock(stmts)
}

func (e *evaluator) loop(args []string, body []*statement) error {
	if len(args) != 2 {
		return nil
	}
	iter := e.expandString(args[0])
	list := e.lookup(e.expandString(args[1]))
	if len(list) == 0 {
		list = e.expandValues(args[1])
	}
	saved, had := e.vars[iter]
	for _, v := range list {
		e.vars[iter] = []value{v}
		if err := e.evalBlock(body); err != nil {
			return err
		}
	}
	if had {
		e.vars[iter] = saved
	} else {
		delete(e.vars, iter)
	}
	return nil
}

func (e *evaluator) condition(terms []condTerm, line int) (bool, error) {
	result := false
	for i, t := range terms {
		ok, err := e.call(t.fn, t.args, t.called, line)
		if err != nil {
			return false, err
		}
		if t.negate {
			ok = !ok
		}
		switch {
		case i == 0:
			result = ok
		case t.op == '|':
			result = result || ok
		default:
			result = result && ok
		}
	}
	return result, nil
}

func (e *evaluator) assign(st *statement) {
	name := e.expandString(st.variable)
	vals := e.expandValues(st.rhs)
	switch st.op {
	case "=":
		if e.skip == 0 {
			e.vars[name] = vals
			return
		}
		e.vars[name] = appendUnique(e.vars[name], vals)
	case "+=":
		e.vars[name] = append(e.vars[name], vals...)
	case "*=":
		e.vars[name] = appendUnique(e.vars[name], vals)
	case "-=":
		if e.mode == Cumulative {
			return
		}
		drop := make(map[string]struct{}, len(vals))
		for _, v := range vals {
			drop[v.text] = struct{}{}
		}
		kept := e.vars[name][:0:0]
		for _, v := range e.vars[name] {
			if _, ok := drop[v.text]; !ok {
				kept = append(kept, v)
			}
		}
		e.vars[name] = kept
	case "~=":
		if e.skip > 0 || len(vals) == 0 {
			return
		}
		re, repl, global, err := parseSubstitution(vals[0].text)
		if err != nil {
			e.errorf(st.line, "%v", err)
			return
		}
		out := make([]value, 0, len(e.vars[name]))
		for _, v := range e.vars[name] {
			v.text = substitute(re, repl, global, v.text)
			out = append(out, v)
		}
		e.vars[name] = out
	}
}

func appendUnique(dst, src []value) []value {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		seen[v.text] = struct{}{}
	}
	for _, v := range src {
		if _, ok := seen[v.text]; ok {
			continue
		}
		seen[v.text] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}

func parseSubstitution(expr string) (*regexp.Regexp, string, bool, error) {
	if len(expr) < 4 || expr[0] != 's' {
		return nil, "", false, fmt.Errorf("unsupported substitution %q", expr)
	}
	parts := strings.Split(expr[2:], expr[1:2])
	if len(parts) < 2 {
		return nil, "", false, fmt.Errorf("malformed substitution %q", expr)
	}
	flags := ""
	if len(parts) > 2 {
		flags = parts[2]
	}
	pattern := parts[0]
	if strings.Contains(flags, "i") {
		pattern = "(?i)" + pattern
	}
	if strings.Contains(flags, "q") {
		pattern = regexp.QuoteMeta(parts[0])
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, "", false, err
	}
	repl := regexp.MustCompile(`\\(\d)`).ReplaceAllString(parts[1], "$${$1}")
	return re, repl, strings.Contains(flags, "g"), nil
}

func substitute(re *regexp.Regexp, repl string, global bool, s string) string {
	if global {
		return re.ReplaceAllString(s, repl)
	}
	loc := re.FindStringSubmatchIndex(s)
	if loc == nil {
		return s
	}
	var out []byte
	out = re.ExpandString(out, repl, s, loc)
	return s[:loc[0]] + string(out) + s[loc[1]:]
}

// call evaluates a test function or bare config test.
func (e *evaluator) call(fn string, args []string, called bool, line int) (bool, error) {
	if !called {
		switch fn {
		case "true":
			return true, nil
		case "false", "":
			return false, nil
		}
		return e.isActiveConfig(e.expandString(fn)), nil
	}

	switch fn {
	case "include":
		return e.include(args, line)
	case "error":
		if e.mode == Exact {
			e.errorf(line, "%s", e.joinArgs(args))
			return false, errEvalFailed
		}
		return true, nil
	case "message", "warning", "log":
		slog.Debug("qmake message", "file", e.current(), "line", line, "text", e.joinArgs(args))
		return true, nil
	case "load", "requires", "export", "cache":
		return true, nil
	case "unset":
		if e.mode == Exact && len(args) > 0 {
			delete(e.vars, e.expandString(args[0]))
		}
		return true, nil
	case "CONFIG":
		switch len(args) {
		case 1:
			return e.isActiveConfig(e.expandString(args[0])), nil
		case 2:
			return e.mutuallyActive("CONFIG", e.expandString(args[0]), e.expandString(args[1])), nil
		}
		return false, nil
	case "contains":
		if len(args) < 2 {
			return false, nil
		}
		name := e.expandString(args[0])
		want := e.expandString(args[1])
		if len(args) == 3 {
			return e.mutuallyActive(name, want, e.expandString(args[2])), nil
		}
		for _, v := range e.lookup(name) {
			if matchValue(want, v.text) {
				return true, nil
			}
		}
		return false, nil
	case "isEmpty":
		if len(args) != 1 {
			return false, nil
		}
		return len(e.lookup(e.expandString(args[0]))) == 0, nil
	case "equals", "isEqual":
		if len(args) != 2 {
			return false, nil
		}
		return strings.Join(texts(e.lookup(e.expandString(args[0]))), " ") == e.expandString(args[1]), nil
	case "defined":
		if len(args) == 0 {
			return false, nil
		}
		_, ok := e.vars[e.expandString(args[0])]
		return ok, nil
	case "exists":
		if len(args) != 1 {
			return false, nil
		}
		return e.exists(e.expandString(args[0])), nil
	case "greaterThan", "lessThan":
		if len(args) != 2 {
			return false, nil
		}
		lhs, err1 := strconv.Atoi(strings.Join(texts(e.lookup(e.expandString(args[0]))), ""))
		rhs, err2 := strconv.Atoi(e.expandString(args[1]))
		if err1 != nil || err2 != nil {
			return false, nil
		}
		if fn == "greaterThan" {
			return lhs > rhs, nil
		}
		return lhs < rhs, nil
	case "qtHaveModule":
		if len(args) != 1 {
			return false, nil
		}
		mod := e.expandString(args[0])
		for _, v := range e.lookup("QT_AVAILABLE_MODULES") {
			if v.text == mod {
				return true, nil
			}
		}
		return false, nil
	}
	slog.Debug("unsupported qmake test function", "file", e.current(), "line", line, "function", fn)
	return false, nil
}

func matchValue(pattern, v string) bool {
	if pattern == v {
		return true
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return false
	}
	return re.MatchString(v)
}

func (e *evaluator) joinArgs(args []string) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, e.expandString(a))
	}
	return strings.Join(parts, ", ")
}

func (e *evaluator) isActiveConfig(name string) bool {
	if name == "" {
		return false
	}
	if hasWildcard(name) {
		g, err := glob.Compile(name)
		if err != nil {
			return false
		}
		if g.Match(e.globals.Spec) {
			return true
		}
		for _, v := range e.lookup("CONFIG") {
			if g.Match(v.text) {
				return true
			}
		}
		return false
	}
	if name == e.globals.Spec {
		return true
	}
	for _, v := range e.lookup("QMAKE_PLATFORM") {
		if v.text == name {
			return true
		}
	}
	for _, v := range e.lookup("CONFIG") {
		if v.text == name {
			return true
		}
	}
	return false
}

// mutuallyActive implements CONFIG(x, a|b): the last value of the variable
// out of the alternatives decides.
func (e *evaluator) mutuallyActive(variable, want, alternatives string) bool {
	alts := strings.Split(alternatives, "|")
	vals := e.lookup(variable)
	for i := len(vals) - 1; i >= 0; i-- {
		for _, a := range alts {
			if vals[i].text == a {
				return a == want
			}
		}
	}
	return false
}

func (e *evaluator) exists(p string) bool {
	p = util.ResolvePath(e.currentDir(), p)
	if hasWildcard(path.Base(p)) {
		return len(globDir(path.Dir(p), path.Base(p))) > 0
	}
	_, err := os.Stat(p)
	return err == nil
}

func (e *evaluator) include(args []string, line int) (bool, error) {
	if len(args) == 0 {
		return false, nil
	}
	file := util.ResolvePath(e.currentDir(), e.expandString(args[0]))
	silent := len(args) > 2 && e.expandString(args[2]) == "true"
	for _, open := range e.stack {
		if open == file {
			e.errorf(line, "Circular inclusion of %s.", file)
			return false, nil
		}
	}
	if !e.vfs.Exists(file) {
		if !silent {
			e.errorf(line, "Cannot read %s: No such file or directory", file)
		}
		return false, nil
	}
	parent := e.current()
	err := e.evalFile(file)
	switch {
	case err == nil:
		e.includes = append(e.includes, IncludeFile{Path: file, Parent: parent})
		return true, nil
	case errors.Is(err, errEvalFailed), e.ctx.Err() != nil:
		e.includes = append(e.includes, IncludeFile{Path: file, Parent: parent})
		return false, err
	default:
		e.errorf(line, "%v", err)
		return false, nil
	}
}

func (e *evaluator) lookup(name string) []value {
	switch name {
	case "PWD", "IN_PWD":
		return []value{{text: e.currentDir()}}
	case "OUT_PWD":
		return []value{{text: e.globals.OutDir(path.Dir(e.proFile))}}
	case "_PRO_FILE_":
		return []value{{text: e.proFile}}
	case "_PRO_FILE_PWD_":
		return []value{{text: path.Dir(e.proFile)}}
	case "_FILE_":
		return []value{{text: e.current()}}
	case "LITERAL_HASH":
		return []value{{text: "#"}}
	case "LITERAL_DOLLAR":
		return []value{{text: "$"}}
	case "QMAKESPEC", "QMAKE_SPEC":
		return []value{{text: e.globals.Spec}}
	}
	return e.vars[name]
}

// expandValues splits an assignment right-hand side into words and expands
// each one.
func (e *evaluator) expandValues(rhs string) []value {
	var out []value
	for _, w := range splitWords(rhs) {
		out = append(out, e.expandWord(w)...)
	}
	return out
}

func (e *evaluator) expandString(s string) string {
	vals := e.expandValues(s)
	return strings.Join(texts(vals), " ")
}

func (e *evaluator) expandWord(w string) []value {
	quoted := len(w) >= 2 && w[0] == '"' && w[len(w)-1] == '"'
	if quoted {
		w = w[1 : len(w)-1]
	}
	if !strings.Contains(w, "$$") {
		return []value{{text: w, source: e.current()}}
	}
	if !quoted {
		if kind, name, args, end := parseRef(w, 0); end == len(w) {
			switch kind {
			case refVar:
				return append([]value(nil), e.lookup(name)...)
			case refFunc:
				return e.wrap(e.replace(name, args))
			}
		}
	}

	var b strings.Builder
	for i := 0; i < len(w); {
		if !strings.HasPrefix(w[i:], "$$") {
			b.WriteByte(w[i])
			i++
			continue
		}
		kind, name, args, end := parseRef(w, i)
		switch kind {
		case refVar:
			b.WriteString(strings.Join(texts(e.lookup(name)), " "))
		case refProp:
			v, _ := e.globals.property(name)
			b.WriteString(v)
		case refEnv:
			b.WriteString(e.globals.env(name))
		case refFunc:
			b.WriteString(strings.Join(e.replace(name, args), " "))
		default:
			b.WriteString("$$")
			end = i + 2
		}
		i = end
	}
	if b.Len() == 0 {
		return nil
	}
	return []value{{text: b.String(), source: e.current()}}
}

func (e *evaluator) wrap(vals []string) []value {
	out := make([]value, len(vals))
	for i, v := range vals {
		out[i] = value{text: v, source: e.current()}
	}
	return out
}

type refKind int

const (
	refNone refKind = iota
	refVar
	refProp
	refEnv
	refFunc
)

// parseRef decodes the reference starting at s[i:] ("$$...") and returns
// the offset just past it.
func parseRef(s string, i int) (refKind, string, []string, int) {
	j := i + 2
	if j >= len(s) {
		return refNone, "", nil, j
	}
	switch s[j] {
	case '[':
		end := strings.IndexByte(s[j:], ']')
		if end < 0 {
			return refNone, "", nil, j
		}
		return refProp, s[j+1 : j+end], nil, j + end + 1
	case '(':
		end := strings.IndexByte(s[j:], ')')
		if end < 0 {
			return refNone, "", nil, j
		}
		return refEnv, s[j+1 : j+end], nil, j + end + 1
	case '{':
		end := strings.IndexByte(s[j:], '}')
		if end < 0 {
			return refNone, "", nil, j
		}
		return refVar, s[j+1 : j+end], nil, j + end + 1
	}
	k := j
	for k < len(s) && isNameChar(s[k]) {
		k++
	}
	if k == j {
		return refNone, "", nil, j
	}
	name := s[j:k]
	if k < len(s) && s[k] == '(' {
		depth := 0
		for m := k; m < len(s); m++ {
			switch s[m] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return refFunc, name, splitArgs(s[k+1 : m]), m + 1
				}
			}
		}
		return refNone, "", nil, j
	}
	return refVar, name, nil, k
}

func isNameChar(c byte) bool {
	return c == '_' || c == '.' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func splitWords(s string) []string {
	var words []string
	var cur strings.Builder
	quoted := false
	parens := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			quoted = !quoted
			cur.WriteByte(c)
		case c == '(' && !quoted:
			parens++
			cur.WriteByte(c)
		case c == ')' && !quoted:
			if parens > 0 {
				parens--
			}
			cur.WriteByte(c)
		case (c == ' ' || c == '\t') && !quoted && parens == 0:
			if cur.Len() > 0 {
				words = append(words, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		words = append(words, cur.String())
	}
	return words
}

// replace evaluates a replace function.
func (e *evaluator) replace(fn string, args []string) []string {
	arg := func(i int) string {
		if i < len(args) {
			return e.expandString(args[i])
		}
		return ""
	}
	varValues := func(i int) []string {
		return texts(e.lookup(arg(i)))
	}
	switch fn {
	case "files":
		pattern := arg(0)
		dir, base := path.Split(pattern)
		abs := util.ResolvePath(e.currentDir(), dir)
		var out []string
		for _, name := range globDir(abs, base) {
			out = append(out, path.Join(dir, name))
		}
		return out
	case "basename", "dirname":
		var out []string
		for _, v := range varValues(0) {
			if fn == "basename" {
				out = append(out, path.Base(v))
			} else {
				out = append(out, path.Dir(v))
			}
		}
		return out
	case "first", "last":
		vals := varValues(0)
		if len(vals) == 0 {
			return nil
		}
		if fn == "first" {
			return vals[:1]
		}
		return vals[len(vals)-1:]
	case "member":
		vals := varValues(0)
		idx, err := strconv.Atoi(arg(1))
		if err != nil || idx < 0 || idx >= len(vals) {
			return nil
		}
		return vals[idx : idx+1]
	case "size":
		return []string{strconv.Itoa(len(varValues(0)))}
	case "join":
		vals := varValues(0)
		if len(vals) == 0 {
			return nil
		}
		return []string{arg(2) + strings.Join(vals, arg(1)) + arg(3)}
	case "unique":
		return util.RemoveDuplicates(varValues(0))
	case "lower", "upper":
		var out []string
		for i := range args {
			for _, w := range strings.Fields(arg(i)) {
				if fn == "lower" {
					out = append(out, strings.ToLower(w))
				} else {
					out = append(out, strings.ToUpper(w))
				}
			}
		}
		return out
	case "quote", "val_escape":
		return []string{arg(0)}
	case "absolute_path":
		base := arg(1)
		if base == "" {
			base = e.currentDir()
		}
		return []string{util.ResolvePath(base, arg(0))}
	case "clean_path":
		return []string{util.CleanPath(arg(0))}
	case "relative_path":
		rel, ok := strings.CutPrefix(util.CleanPath(arg(0)), util.WithTrailingSlash(util.CleanPath(arg(1))))
		if !ok {
			return []string{arg(0)}
		}
		return []string{rel}
	case "replace":
		re, err := regexp.Compile(arg(1))
		if err != nil {
			return []string{arg(0)}
		}
		return []string{re.ReplaceAllString(arg(0), arg(2))}
	case "split":
		sep := arg(1)
		var out []string
		for _, v := range varValues(0) {
			if sep == "" {
				out = append(out, strings.Fields(v)...)
			} else {
				out = append(out, strings.Split(v, sep)...)
			}
		}
		return out
	}
	e.errorf(0, "'%s' is not a recognized replace function.", fn)
	return nil
}

// globDir lists the entries of dir whose names match pattern, sorted.
func globDir(dir, pattern string) []string {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, ent := range entries {
		if g.Match(ent.Name()) {
			out = append(out, ent.Name())
		}
	}
	sort.Strings(out)
	return out
}
