package project

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"qmakemodel/internal/core/errors"
	"qmakemodel/internal/shared/util"
)

// ProjectWriter edits project file text on behalf of the tree.
type ProjectWriter interface {
	AddFiles(proFile string, files []string, variable string) error
	RemoveFiles(proFile string, files []string, variables []string) (notRemoved []string, err error)
	RenameFile(proFile, oldPath, newPath string, variables []string) (bool, error)
	SetVariable(proFile, variable string, values []string) error
}

// TextWriter rewrites project files line by line. Added files are appended
// as a new continuation block at the end of the file.
type TextWriter struct {
	Indent string
}

func NewTextWriter() *TextWriter {
	return &TextWriter{Indent: "    "}
}

var assignmentStart = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_.]*)\s*([-+*~]?=)`)

type assignmentBlock struct {
	variable string
	first    int
	last     int
}

func readLines(file string) ([]string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		code := errors.CodeInternal
		if os.IsNotExist(err) {
			code = errors.CodeNotFound
		}
		return nil, errors.AddContext(errors.Wrap(err, code, "read project file"), errors.CtxPath, file)
	}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

func writeLines(file string, lines []string) error {
	data := strings.Join(lines, "\n") + "\n"
	if err := util.WriteFileWithDirs(file, []byte(data), 0o644); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeInternal, "write project file"), errors.CtxPath, file)
	}
	return nil
}

func assignmentBlocks(lines []string) []assignmentBlock {
	var out []assignmentBlock
	for i := 0; i < len(lines); i++ {
		m := assignmentStart.FindStringSubmatch(stripLineComment(lines[i]))
		if m == nil {
			continue
		}
		b := assignmentBlock{variable: m[1], first: i, last: i}
		for b.last < len(lines)-1 && strings.HasSuffix(strings.TrimRight(stripLineComment(lines[b.last]), " \t"), `\`) {
			b.last++
		}
		out = append(out, b)
		i = b.last
	}
	return out
}

func stripLineComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

func relativeTo(proFile, file string) string {
	rel, err := filepath.Rel(filepath.FromSlash(path.Dir(proFile)), filepath.FromSlash(file))
	if err != nil {
		return file
	}
	return filepath.ToSlash(rel)
}

func quoteValue(v string) string {
	if strings.ContainsAny(v, " \t") {
		return `"` + v + `"`
	}
	return v
}

func (w *TextWriter) AddFiles(proFile string, files []string, variable string) error {
	if len(files) == 0 {
		return nil
	}
	lines, err := readLines(proFile)
	if err != nil && !errors.IsCode(err, errors.CodeNotFound) {
		return err
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) != "" {
		lines = append(lines, "")
	}
	lines = append(lines, variable+` += \`)
	for i, f := range files {
		line := w.Indent + quoteValue(relativeTo(proFile, f))
		if i < len(files)-1 {
			line += ` \`
		}
		lines = append(lines, line)
	}
	return writeLines(proFile, lines)
}

// editValues applies fn to every value of the listed variables. fn returns
// the replacement values for one value.
func editValues(lines []string, variables []string, fn func(value string) []string) []string {
	wanted := map[string]bool{}
	for _, v := range variables {
		wanted[v] = true
	}
	blocks := assignmentBlocks(lines)
	for bi := len(blocks) - 1; bi >= 0; bi-- {
		b := blocks[bi]
		if !wanted[b.variable] {
			continue
		}
		head := assignmentStart.FindStringSubmatchIndex(lines[b.first])
		prefix := lines[b.first][:head[1]]
		var values []string
		for i := b.first; i <= b.last; i++ {
			text := stripLineComment(lines[i])
			if i == b.first {
				text = text[head[1]:]
			}
			text = strings.TrimSuffix(strings.TrimRight(text, " \t"), `\`)
			values = append(values, strings.Fields(text)...)
		}
		var kept []string
		changed := false
		for _, v := range values {
			next := fn(strings.Trim(v, `"`))
			if len(next) != 1 || next[0] != strings.Trim(v, `"`) {
				changed = true
			}
			for _, n := range next {
				kept = append(kept, quoteValue(n))
			}
		}
		if !changed {
			continue
		}
		var replacement []string
		switch len(kept) {
		case 0:
			replacement = nil
		case 1:
			replacement = []string{prefix + " " + kept[0]}
		default:
			replacement = []string{prefix + ` \`}
			for i, v := range kept {
				line := "    " + v
				if i < len(kept)-1 {
					line += ` \`
				}
				replacement = append(replacement, line)
			}
		}
		tail := append([]string(nil), lines[b.last+1:]...)
		lines = append(append(lines[:b.first], replacement...), tail...)
	}
	return lines
}

func (w *TextWriter) RemoveFiles(proFile string, files []string, variables []string) ([]string, error) {
	lines, err := readLines(proFile)
	if err != nil {
		return files, err
	}
	dir := path.Dir(proFile)
	pending := map[string]string{}
	for _, f := range files {
		pending[util.CleanPath(f)] = f
	}
	lines = editValues(lines, variables, func(v string) []string {
		abs := util.ResolvePath(dir, v)
		if _, ok := pending[abs]; ok {
			delete(pending, abs)
			return nil
		}
		return []string{v}
	})
	if len(pending) == len(files) {
		return files, nil
	}
	notRemoved := make([]string, 0, len(pending))
	for _, original := range pending {
		notRemoved = append(notRemoved, original)
	}
	sort.Strings(notRemoved)
	return notRemoved, writeLines(proFile, lines)
}

func (w *TextWriter) RenameFile(proFile, oldPath, newPath string, variables []string) (bool, error) {
	lines, err := readLines(proFile)
	if err != nil {
		return false, err
	}
	dir := path.Dir(proFile)
	oldPath = util.CleanPath(oldPath)
	found := false
	lines = editValues(lines, variables, func(v string) []string {
		if !found && util.ResolvePath(dir, v) == oldPath {
			found = true
			return []string{relativeTo(proFile, newPath)}
		}
		return []string{v}
	})
	if !found {
		return false, nil
	}
	return true, writeLines(proFile, lines)
}

// SetVariable replaces every top level assignment of variable with a single
// plain assignment.
func (w *TextWriter) SetVariable(proFile, variable string, values []string) error {
	lines, err := readLines(proFile)
	if err != nil && !errors.IsCode(err, errors.CodeNotFound) {
		return err
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quoteValue(v)
	}
	assignment := variable + " = " + strings.Join(quoted, " ")

	blocks := assignmentBlocks(lines)
	replaced := false
	for bi := len(blocks) - 1; bi >= 0; bi-- {
		b := blocks[bi]
		if b.variable != variable || strings.HasPrefix(lines[b.first], " ") || strings.HasPrefix(lines[b.first], "\t") {
			continue
		}
		var replacement []string
		if !replaced {
			replacement = []string{assignment}
			replaced = true
		}
		tail := append([]string(nil), lines[b.last+1:]...)
		lines = append(append(lines[:b.first], replacement...), tail...)
	}
	if !replaced {
		lines = append(lines, assignment)
	}
	return writeLines(proFile, lines)
}

// formResources lists the .qrc files a Designer form refers to.
func formResources(formFile string) []string {
	data, err := os.ReadFile(formFile)
	if err != nil {
		return nil
	}
	dir := path.Dir(formFile)
	set := map[string]struct{}{}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		var attr string
		switch start.Name.Local {
		case "iconset":
			attr = "resource"
		case "include":
			attr = "location"
		default:
			continue
		}
		for _, a := range start.Attr {
			if a.Name.Local == attr && a.Value != "" {
				set[util.ResolvePath(dir, a.Value)] = struct{}{}
			}
		}
	}
	return sortedSet(set)
}

// AddFiles adds files to the project file of node id, grouped by variable.
// Files already picked up from watched folders are skipped.
func (t *Tree) AddFiles(w ProjectWriter, id NodeID, files []string) ([]string, error) {
	n := t.Node(id)
	if n == nil {
		return files, errors.New(errors.CodeNotFound, "unknown project node")
	}
	byMime := map[string][]string{}
	for _, f := range files {
		mt := MimeTypeForFile(f)
		byMime[mt] = append(byMime[mt], util.CleanPath(f))
	}

	var notAdded []string
	for _, mt := range util.SortedStringKeys(byMime) {
		typeFiles := byMime[mt]

		var qrcFiles []string
		if mt == MimeForm {
			present := map[string]struct{}{}
			for _, sf := range n.Files[FileResource] {
				present[sf.Path] = struct{}{}
			}
			for _, form := range typeFiles {
				for _, qrc := range formResources(form) {
					if _, ok := present[qrc]; !ok {
						present[qrc] = struct{}{}
						qrcFiles = append(qrcFiles, qrc)
					}
				}
			}
		}

		var unique []string
		for _, f := range typeFiles {
			if _, ok := n.RecursiveEnumerateFiles[f]; !ok {
				unique = append(unique, f)
			}
		}
		sort.Strings(unique)

		if len(unique) > 0 {
			if err := w.AddFiles(n.Path, unique, VarNameForAdding(mt)); err != nil {
				return append(notAdded, unique...), err
			}
		}
		if len(qrcFiles) > 0 {
			if err := w.AddFiles(n.Path, qrcFiles, VarNameForAdding(MimeResource)); err != nil {
				return append(notAdded, qrcFiles...), err
			}
		}
	}
	return notAdded, nil
}

// RemoveFiles removes files from every file variable of node id.
func (t *Tree) RemoveFiles(w ProjectWriter, id NodeID, files []string) ([]string, error) {
	n := t.Node(id)
	if n == nil {
		return files, errors.New(errors.CodeNotFound, "unknown project node")
	}
	byMime := map[string][]string{}
	for _, f := range files {
		mt := MimeTypeForFile(f)
		byMime[mt] = append(byMime[mt], util.CleanPath(f))
	}
	var notRemoved []string
	for _, mt := range util.SortedStringKeys(byMime) {
		failed, err := w.RemoveFiles(n.Path, byMime[mt], VarNamesForRemoving())
		notRemoved = append(notRemoved, failed...)
		if err != nil {
			return notRemoved, err
		}
	}
	return notRemoved, nil
}

// RenameFile renames oldPath to newPath in node id. Files living in a
// deployed folder need no project file change, so a missing entry there
// still counts as success.
func (t *Tree) RenameFile(w ProjectWriter, id NodeID, oldPath, newPath string) (bool, error) {
	n := t.Node(id)
	if n == nil || newPath == "" {
		return false, nil
	}
	optional := t.DeploysFolder(id, path.Dir(oldPath))
	found, err := w.RenameFile(n.Path, oldPath, newPath, VarNamesForRemoving())
	if err != nil {
		return false, err
	}
	if !found {
		return optional, nil
	}
	return true, nil
}

// AddSubProject lists proFile in SUBDIRS of node id.
func (t *Tree) AddSubProject(w ProjectWriter, id NodeID, proFile string) (bool, error) {
	n := t.Node(id)
	if n == nil {
		return false, nil
	}
	proFile = util.CleanPath(proFile)
	if _, ok := n.RecursiveEnumerateFiles[proFile]; ok {
		return true, nil
	}
	if err := w.AddFiles(n.Path, []string{SimplifyProFilePath(proFile)}, VarNameForAdding(MimeProFile)); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveSubProjects drops proFile from SUBDIRS, in either its full or its
// simplified directory form.
func (t *Tree) RemoveSubProjects(w ProjectWriter, id NodeID, proFile string) (bool, error) {
	n := t.Node(id)
	if n == nil {
		return false, nil
	}
	proFile = util.CleanPath(proFile)
	failedOriginal, err := w.RemoveFiles(n.Path, []string{proFile}, []string{"SUBDIRS"})
	if err != nil {
		return false, err
	}
	failedSimplified, err := w.RemoveFiles(n.Path, []string{SimplifyProFilePath(proFile)}, []string{"SUBDIRS"})
	if err != nil {
		return false, err
	}
	return len(failedOriginal) == 0 || len(failedSimplified) == 0, nil
}

// SetVariable sets a plain variable in the project file of node id.
func (t *Tree) SetVariable(w ProjectWriter, id NodeID, variable string, values []string) error {
	n := t.Node(id)
	if n == nil {
		return errors.New(errors.CodeNotFound, "unknown project node")
	}
	return w.SetVariable(n.Path, variable, values)
}
