package reader

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

type stmtKind int

const (
	stmtAssign stmtKind = iota
	stmtScope
	stmtCall
)

type statement struct {
	kind stmtKind
	line int

	variable string
	op       string
	rhs      string

	cond []condTerm
	then []*statement
	els  []*statement

	fn     string
	args   []string
	called bool
}

// condTerm is one test in a scope condition. op joins it to the previous
// term and is ':' (and) or '|' (or); the first term has op 0.
type condTerm struct {
	op     byte
	negate bool
	fn     string
	args   []string
	called bool
}

// File is a parsed project file.
type File struct {
	Path        string
	Fingerprint uint64
	stmts       []*statement
}

type token struct {
	text string
	line int
}

// ParseError locates a syntax problem in a project file.
type ParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
}

// Parse turns project file contents into a statement tree.
func Parse(path string, data []byte) (*File, error) {
	toks := tokenize(data)
	p := &parser{path: path, toks: toks}
	stmts, err := p.block(false)
	if err != nil {
		return nil, err
	}
	return &File{Path: path, stmts: stmts}, nil
}

type parser struct {
	path string
	toks []token
	pos  int
}

func (p *parser) errorf(line int, format string, args ...any) error {
	return &ParseError{Path: p.path, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) peek() (token, bool) {
	if p.pos < len(p.toks) {
		return p.toks[p.pos], true
	}
	return token{}, false
}

func (p *parser) block(nested bool) ([]*statement, error) {
	var out []*statement
	var lastScope *statement
	for p.pos < len(p.toks) {
		tok := p.toks[p.pos]
		switch {
		case tok.text == "}":
			if !nested {
				return nil, p.errorf(tok.line, "unexpected '}'")
			}
			p.pos++
			return out, nil
		case tok.text == "{":
			// Anonymous block, always entered.
			p.pos++
			body, err := p.block(true)
			if err != nil {
				return nil, err
			}
			out = append(out, &statement{kind: stmtScope, line: tok.line, then: body})
			lastScope = nil
			continue
		case tok.text == "else" || strings.HasPrefix(tok.text, "else:"):
			if lastScope == nil {
				return nil, p.errorf(tok.line, "unexpected 'else'")
			}
			p.pos++
			var body []*statement
			rest := strings.TrimSpace(strings.TrimPrefix(tok.text, "else"))
			rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
			if rest == "" {
				next, ok := p.peek()
				if !ok || next.text != "{" {
					return nil, p.errorf(tok.line, "expected '{' after else")
				}
				p.pos++
				b, err := p.block(true)
				if err != nil {
					return nil, err
				}
				body = b
				lastScope.els = body
				lastScope = nil
				continue
			}
			st, err := p.statementFrom(token{text: rest, line: tok.line})
			if err != nil {
				return nil, err
			}
			lastScope.els = []*statement{st}
			if st.kind == stmtScope {
				lastScope = st
			} else {
				lastScope = nil
			}
			continue
		}

		p.pos++
		st, err := p.statementFrom(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
		if st.kind == stmtScope {
			lastScope = st
		} else {
			lastScope = nil
		}
	}
	if nested {
		line := 0
		if len(p.toks) > 0 {
			line = p.toks[len(p.toks)-1].line
		}
		return nil, p.errorf(line, "missing closing '}'")
	}
	return out, nil
}

// statementFrom parses a text token, consuming a following block if the
// token is a scope condition.
func (p *parser) statementFrom(tok token) (*statement, error) {
	if next, ok := p.peek(); ok && next.text == "{" && !isAssignment(tok.text) {
		p.pos++
		body, err := p.block(true)
		if err != nil {
			return nil, err
		}
		cond, err := parseCondition(tok.text)
		if err != nil {
			return nil, p.errorf(tok.line, "%v", err)
		}
		return &statement{kind: stmtScope, line: tok.line, cond: cond, then: body}, nil
	}
	return p.line(tok.text, tok.line)
}

func (p *parser) line(text string, line int) (*statement, error) {
	text = strings.TrimSpace(text)
	if eq := topLevelIndex(text, '='); eq >= 0 {
		opStart := eq
		op := "="
		if eq > 0 && strings.ContainsRune("+-*~", rune(text[eq-1])) {
			opStart = eq - 1
			op = text[eq-1 : eq+1]
		}
		left := text[:opStart]
		var cond []condTerm
		if colon := lastTopLevelIndex(left, ':'); colon >= 0 {
			c, err := parseCondition(left[:colon])
			if err != nil {
				return nil, p.errorf(line, "%v", err)
			}
			cond = c
			left = left[colon+1:]
		}
		name := strings.TrimSpace(left)
		if name == "" {
			return nil, p.errorf(line, "assignment needs a variable name")
		}
		assign := &statement{kind: stmtAssign, line: line, variable: name, op: op, rhs: strings.TrimSpace(text[eq+1:])}
		if cond != nil {
			return &statement{kind: stmtScope, line: line, cond: cond, then: []*statement{assign}}, nil
		}
		return assign, nil
	}

	if colon := topLevelIndex(text, ':'); colon >= 0 {
		cond, err := parseCondition(text[:colon])
		if err != nil {
			return nil, p.errorf(line, "%v", err)
		}
		inner, err := p.line(text[colon+1:], line)
		if err != nil {
			return nil, err
		}
		return &statement{kind: stmtScope, line: line, cond: cond, then: []*statement{inner}}, nil
	}

	name, args, called, err := splitCall(strings.TrimPrefix(text, "!"))
	if err != nil {
		return nil, p.errorf(line, "%v", err)
	}
	return &statement{kind: stmtCall, line: line, fn: name, args: args, called: called}, nil
}

func isAssignment(text string) bool {
	return topLevelIndex(text, '=') >= 0
}

func parseCondition(text string) ([]condTerm, error) {
	var terms []condTerm
	var op byte
	depth := 0
	quoted := false
	start := 0
	flush := func(end int, next byte) error {
		raw := strings.TrimSpace(text[start:end])
		if raw == "" {
			return fmt.Errorf("empty condition in %q", text)
		}
		term := condTerm{op: op}
		if strings.HasPrefix(raw, "!") {
			term.negate = true
			raw = strings.TrimSpace(raw[1:])
		}
		name, args, called, err := splitCall(raw)
		if err != nil {
			return err
		}
		term.fn, term.args, term.called = name, args, called
		terms = append(terms, term)
		op = next
		start = end + 1
		return nil
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0 && (c == ':' || c == '|'):
			if err := flush(i, c); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(len(text), 0); err != nil {
		return nil, err
	}
	return terms, nil
}

// splitCall splits "name(a, b)" into its name and raw arguments. A bare
// word yields called=false.
func splitCall(text string) (string, []string, bool, error) {
	text = strings.TrimSpace(text)
	open := strings.IndexByte(text, '(')
	if open < 0 {
		return text, nil, false, nil
	}
	if !strings.HasSuffix(text, ")") {
		return "", nil, false, fmt.Errorf("missing ')' in %q", text)
	}
	return strings.TrimSpace(text[:open]), splitArgs(text[open+1 : len(text)-1]), true, nil
}

func splitArgs(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var args []string
	depth := 0
	quoted := false
	start := 0
	for i := 0; i < len(text); i++ {
		switch c := text[i]; {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			args = append(args, strings.TrimSpace(text[start:i]))
			start = i + 1
		}
	}
	return append(args, strings.TrimSpace(text[start:]))
}

func topLevelIndex(text string, want byte) int {
	depth := 0
	quoted := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0 && c == want:
			return i
		}
	}
	return -1
}

func lastTopLevelIndex(text string, want byte) int {
	idx := -1
	depth := 0
	quoted := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0 && c == want:
			idx = i
		}
	}
	return idx
}

// tokenize joins continuation lines, drops comments and splits block
// braces into their own tokens.
func tokenize(data []byte) []token {
	var toks []token
	var logical strings.Builder
	startLine := 0
	lineNo := 0

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lineNo++
		raw := stripComment(sc.Text())
		trimmed := strings.TrimRight(raw, " \t\r")
		if logical.Len() == 0 {
			startLine = lineNo
		}
		if strings.HasSuffix(trimmed, "\\") {
			logical.WriteString(strings.TrimSuffix(trimmed, "\\"))
			logical.WriteByte(' ')
			continue
		}
		logical.WriteString(trimmed)
		toks = append(toks, splitBraces(logical.String(), startLine)...)
		logical.Reset()
	}
	if logical.Len() > 0 {
		toks = append(toks, splitBraces(logical.String(), startLine)...)
	}
	return toks
}

func stripComment(line string) string {
	quoted := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			quoted = !quoted
		case '#':
			if !quoted {
				return line[:i]
			}
		}
	}
	return line
}

func splitBraces(text string, line int) []token {
	var toks []token
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			toks = append(toks, token{text: s, line: line})
		}
		cur.Reset()
	}
	inAssign := false
	quoted := false
	parens := 0
	valueBraces := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '"':
			quoted = !quoted
			cur.WriteByte(c)
		case quoted:
			cur.WriteByte(c)
		case c == '$' && strings.HasPrefix(text[i:], "$${"):
			end := strings.IndexByte(text[i:], '}')
			if end < 0 {
				cur.WriteString(text[i:])
				i = len(text)
				continue
			}
			cur.WriteString(text[i : i+end+1])
			i += end
		case c == '(':
			parens++
			cur.WriteByte(c)
		case c == ')':
			if parens > 0 {
				parens--
			}
			cur.WriteByte(c)
		case parens > 0:
			cur.WriteByte(c)
		case c == '=':
			inAssign = true
			cur.WriteByte(c)
		case c == '{' && inAssign:
			valueBraces++
			cur.WriteByte(c)
		case c == '}' && inAssign && valueBraces > 0:
			valueBraces--
			cur.WriteByte(c)
		case c == '{' || c == '}':
			flush()
			toks = append(toks, token{text: string(c), line: line})
			inAssign = false
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return toks
}
