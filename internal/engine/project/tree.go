package project

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"qmakemodel/internal/core/watcher"
	"qmakemodel/internal/shared/observability"
	"qmakemodel/internal/shared/util"
)

// NodeID is a generation checked handle into a Tree. The zero value never
// refers to a node.
type NodeID struct {
	idx uint32
	gen uint32
}

func (id NodeID) Valid() bool {
	return id.gen != 0
}

func (id NodeID) String() string {
	return fmt.Sprintf("%d@%d", id.idx, id.gen)
}

// ProState is the extra state a .pro node carries.
type ProState struct {
	ProjectType            ProjectType
	Vars                   VarTable
	ValidParse             bool
	ParseInProgress        bool
	TargetInfo             TargetInformation
	Installs               InstallsList
	SubProjectsNotToDeploy []string
	FeatureRoots           []string
	DisplayName            string
	BuildDir               string
	ExtraCompilers         []ExtraCompiler

	wildcardDirs  map[string][]string
	wildcardOwner *wildcardOwner
	applied       bool
}

// ExtraCompiler binds a form or state chart to the files generated from it.
type ExtraCompiler struct {
	Source    string
	Type      FileType
	Generated []string
}

type Node struct {
	Kind                    NodeKind
	Path                    string
	Parent                  NodeID
	Children                []NodeID
	ProFile                 NodeID
	Files                   map[FileType][]SourceFile
	WatchedFolders          map[string]struct{}
	RecursiveEnumerateFiles map[string]struct{}
	IncludedInExactParse    bool
	Pro                     *ProState

	owner *priOwner
}

// Dir returns the directory holding the node's file.
func (n *Node) Dir() string {
	return path.Dir(n.Path)
}

// DisplayName is the project name set in the file, else the file name.
func (n *Node) DisplayName() string {
	if n.Pro != nil && n.Pro.DisplayName != "" {
		return n.Pro.DisplayName
	}
	return path.Base(n.Path)
}

// FolderRegistry is the folder watcher as seen by the tree.
type FolderRegistry interface {
	Watch(folders []string, owner watcher.Owner)
	Unwatch(folders []string, owner watcher.Owner)
}

type slot struct {
	gen  uint32
	node *Node
}

// Tree owns the live .pro/.pri nodes. It is not safe for concurrent use.
type Tree struct {
	slots []slot
	free  []uint32
	live  int
	root  NodeID

	folders        FolderRegistry
	scheduleUpdate func(NodeID)

	// retired keeps the files of .pro nodes dropped by a re-apply of their
	// parent until the re-created node is applied, keyed by path.
	retired map[string]retiredPro
}

type retiredPro struct {
	parent string
	files  fileSnapshot
}

type TreeOption func(*Tree)

// WithFolderRegistry routes folder watch registration to r.
func WithFolderRegistry(r FolderRegistry) TreeOption {
	return func(t *Tree) { t.folders = r }
}

// WithScheduleUpdate sets the hook used when a node asks to be evaluated
// again.
func WithScheduleUpdate(fn func(NodeID)) TreeOption {
	return func(t *Tree) { t.scheduleUpdate = fn }
}

func NewTree(opts ...TreeOption) *Tree {
	t := &Tree{
		// slot 0 stays empty so a zero NodeID never resolves.
		slots:   []slot{{}},
		retired: map[string]retiredPro{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tree) alloc(n *Node) NodeID {
	var idx uint32
	if len(t.free) > 0 {
		idx = t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
	} else {
		t.slots = append(t.slots, slot{})
		idx = uint32(len(t.slots) - 1)
	}
	s := &t.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.node = n
	t.live++
	id := NodeID{idx: idx, gen: s.gen}
	n.owner = &priOwner{tree: t, id: id}
	return id
}

func (t *Tree) release(id NodeID) {
	n := t.Node(id)
	if n == nil {
		return
	}
	t.watchFolders(id, nil)
	if n.Pro != nil {
		t.updateWildcardDirs(id, nil)
	}
	t.slots[id.idx].node = nil
	t.free = append(t.free, id.idx)
	t.live--
}

// Node resolves id, returning nil for stale or zero handles.
func (t *Tree) Node(id NodeID) *Node {
	if id.gen == 0 || int(id.idx) >= len(t.slots) {
		return nil
	}
	s := t.slots[id.idx]
	if s.gen != id.gen {
		return nil
	}
	return s.node
}

func (t *Tree) Root() NodeID {
	return t.root
}

// Len returns the number of live nodes.
func (t *Tree) Len() int {
	return t.live
}

// SetRoot discards the current tree and creates a root .pro node.
func (t *Tree) SetRoot(proFile string) NodeID {
	t.Clear()
	proFile = util.CleanPath(proFile)
	n := &Node{
		Kind:                 KindPro,
		Path:                 proFile,
		IncludedInExactParse: true,
		Pro:                  &ProState{ParseInProgress: true},
	}
	t.root = t.alloc(n)
	n.ProFile = t.root
	observability.ProjectNodes.Set(float64(t.live))
	return t.root
}

// Clear tears the whole tree down, releasing every folder watch.
func (t *Tree) Clear() {
	if t.Node(t.root) != nil {
		t.makeEmpty(t.root)
		t.release(t.root)
	}
	t.root = NodeID{}
	t.retired = map[string]retiredPro{}
	observability.ProjectNodes.Set(float64(t.live))
}

func (t *Tree) makeEmpty(id NodeID) {
	n := t.Node(id)
	if n == nil {
		return
	}
	for _, c := range n.Children {
		t.makeEmpty(c)
		t.release(c)
	}
	n.Children = nil
}

func (t *Tree) addChild(parent NodeID, n *Node) NodeID {
	p := t.Node(parent)
	n.Parent = parent
	id := t.alloc(n)
	p.Children = append(p.Children, id)
	return id
}

// Walk visits the tree in pre-order from the root. Returning false from fn
// skips the node's children.
func (t *Tree) Walk(fn func(id NodeID, n *Node) bool) {
	t.walkFrom(t.root, fn)
}

func (t *Tree) walkFrom(id NodeID, fn func(NodeID, *Node) bool) {
	n := t.Node(id)
	if n == nil || !fn(id, n) {
		return
	}
	for _, c := range n.Children {
		t.walkFrom(c, fn)
	}
}

// AllProFiles returns from and every .pro node below it, parents first.
func (t *Tree) AllProFiles(from NodeID) []NodeID {
	var out []NodeID
	t.walkFrom(from, func(id NodeID, n *Node) bool {
		if n.Kind == KindPro {
			out = append(out, id)
		}
		return true
	})
	return out
}

// FindPriFile returns the first node for file below from.
func (t *Tree) FindPriFile(from NodeID, file string) NodeID {
	file = util.CleanPath(file)
	var found NodeID
	t.walkFrom(from, func(id NodeID, n *Node) bool {
		if found.Valid() {
			return false
		}
		if n.Path == file {
			found = id
			return false
		}
		return true
	})
	return found
}

// FindProFile returns the .pro node for file anywhere in the tree.
func (t *Tree) FindProFile(file string) NodeID {
	id := t.FindPriFile(t.root, file)
	if n := t.Node(id); n == nil || n.Kind != KindPro {
		return NodeID{}
	}
	return id
}

// IsParent reports whether ancestor is a .pro node above node.
func (t *Tree) IsParent(ancestor, node NodeID) bool {
	n := t.Node(node)
	for n != nil {
		parentID := n.Parent
		n = t.Node(parentID)
		if n != nil && n.Kind == KindPro && parentID == ancestor {
			return true
		}
	}
	return false
}

// ParentProFile returns the closest .pro node above id.
func (t *Tree) ParentProFile(id NodeID) NodeID {
	n := t.Node(id)
	for n != nil {
		parentID := n.Parent
		n = t.Node(parentID)
		if n != nil && n.Kind == KindPro {
			return parentID
		}
	}
	return NodeID{}
}

func (t *Tree) SetParseInProgressRecursive(id NodeID, b bool) {
	for _, pro := range t.AllProFiles(id) {
		t.Node(pro).Pro.ParseInProgress = b
	}
}

func (t *Tree) SetValidParseRecursive(id NodeID, b bool) {
	for _, pro := range t.AllProFiles(id) {
		t.Node(pro).Pro.ValidParse = b
	}
}

// ScheduleUpdate marks id and its sub projects as in progress and hands id
// to the scheduler hook.
func (t *Tree) ScheduleUpdate(id NodeID) {
	n := t.Node(id)
	if n == nil {
		return
	}
	if n.Kind != KindPro {
		id = n.ProFile
	}
	t.SetParseInProgressRecursive(id, true)
	if t.scheduleUpdate != nil {
		t.scheduleUpdate(id)
	}
}

// EvalInputFor fills the tree derived part of an evaluation input.
func (t *Tree) EvalInputFor(id NodeID) EvalInput {
	n := t.Node(id)
	if n == nil {
		return EvalInput{}
	}
	in := EvalInput{
		ProjectDir:      n.Dir(),
		ProjectFilePath: n.Path,
		Included:        n.IncludedInExactParse,
		ParentFilePaths: map[string]struct{}{},
	}
	for p := n; p != nil; p = t.Node(p.Parent) {
		in.ParentFilePaths[p.Path] = struct{}{}
	}
	return in
}

// FileDelta is the change of one bucket of one node between two applies.
type FileDelta struct {
	Node    string
	Type    FileType
	Added   []string
	Removed []string
}

// ApplyOutcome reports what applying a result changed.
type ApplyOutcome struct {
	NewProFiles []NodeID
	Diagnostics []Diagnostic
	Deltas      []FileDelta
}

// ApplyEvaluate installs result into the .pro node id. Children are
// replaced, never patched. canceled marks a result from a superseded
// generation.
func (t *Tree) ApplyEvaluate(id NodeID, result *EvalResult, canceled bool) (out ApplyOutcome) {
	n := t.Node(id)
	if n == nil || n.Pro == nil || result == nil {
		return out
	}
	for _, msg := range result.Errors {
		out.Diagnostics = append(out.Diagnostics, Diagnostic{Severity: SeverityError, Message: msg, Path: n.Path})
	}
	if result.State == EvalAbort || canceled {
		t.SetValidParseRecursive(id, false)
		t.SetParseInProgressRecursive(id, false)
		return out
	}

	before := t.snapshotFiles(id)
	if r, ok := t.retired[n.Path]; ok && !n.Pro.applied {
		before = r.files
		delete(t.retired, n.Path)
	}
	n.Pro.applied = true
	defer func() {
		out.Deltas = diffSnapshots(before, t.snapshotFiles(id))
		out.Deltas = append(out.Deltas, t.dropOrphans(id)...)
		observability.ProjectNodes.Set(float64(t.live))
	}()

	if result.State == EvalFail {
		t.SetValidParseRecursive(id, false)
		t.SetParseInProgressRecursive(id, false)
		out.Diagnostics = append(out.Diagnostics, Diagnostic{
			Severity: SeverityError,
			Message:  fmt.Sprintf("Error while parsing file %s. Giving up.", n.Path),
			Path:     n.Path,
		})
		if n.Pro.ProjectType == Invalid {
			return out
		}
		t.retire(id)
		t.makeEmpty(id)
		n.Pro.ProjectType = Invalid
		return out
	}

	slog.Debug("updating files", "pro_file", n.Path, "state", result.State.String())

	if result.ProjectType != n.Pro.ProjectType {
		for _, c := range n.Children {
			if child := t.Node(c); child != nil && child.Kind == KindPro {
				t.SetValidParseRecursive(c, false)
				t.SetParseInProgressRecursive(c, false)
			}
		}
		n.Pro.ProjectType = result.ProjectType
	}

	t.retire(id)
	t.makeEmpty(id)
	for _, c := range result.Children {
		t.addDescriptor(id, id, c, &out.NewProFiles)
	}
	t.update(id, &result.Root)

	n.Pro.BuildDir = result.BuildDir
	n.Pro.ValidParse = result.State == EvalOk
	if n.Pro.ValidParse {
		n.Pro.TargetInfo = result.TargetInfo
		n.Pro.SubProjectsNotToDeploy = append([]string(nil), result.SubProjectsNotToDeploy...)
		n.Pro.Installs = result.Installs
		if !n.Pro.Vars.Equal(result.Vars) {
			n.Pro.Vars = result.Vars.clone()
		}
		n.Pro.DisplayName = t.SingleVariableValue(id, VarQmakeProjectName)
		n.Pro.FeatureRoots = append([]string(nil), result.FeatureRoots...)
	}

	t.updateWildcardDirs(id, result.WildcardDirs)
	n.Pro.ParseInProgress = false
	t.updateGeneratedFiles(id)
	return out
}

// retire records the files of the .pro nodes below id before they are
// dropped. A node that was re-created but never applied keeps its older
// record.
func (t *Tree) retire(id NodeID) {
	for _, pro := range t.AllProFiles(id) {
		if pro == id {
			continue
		}
		n := t.Node(pro)
		if _, ok := t.retired[n.Path]; ok && !n.Pro.applied {
			continue
		}
		parent := ""
		if p := t.Node(t.ParentProFile(pro)); p != nil {
			parent = p.Path
		}
		t.retired[n.Path] = retiredPro{parent: parent, files: t.snapshotFiles(pro)}
	}
}

// dropOrphans reports as removed the files of retired sub projects of id
// that the last apply did not re-create, and of their own sub projects.
func (t *Tree) dropOrphans(id NodeID) []FileDelta {
	n := t.Node(id)
	if n == nil {
		return nil
	}
	current := map[string]struct{}{}
	for _, pro := range t.AllProFiles(id) {
		current[t.Node(pro).Path] = struct{}{}
	}
	var orphans []string
	for p, r := range t.retired {
		if _, ok := current[p]; !ok && r.parent == n.Path {
			orphans = append(orphans, p)
		}
	}
	sort.Strings(orphans)

	var out []FileDelta
	for len(orphans) > 0 {
		p := orphans[0]
		orphans = orphans[1:]
		r, ok := t.retired[p]
		if !ok {
			continue
		}
		delete(t.retired, p)
		out = append(out, diffSnapshots(r.files, fileSnapshot{})...)
		var below []string
		for q, rq := range t.retired {
			if rq.parent == p {
				below = append(below, q)
			}
		}
		sort.Strings(below)
		orphans = append(orphans, below...)
	}
	return out
}

func (t *Tree) addDescriptor(parent, pro NodeID, desc *ChildNode, newPros *[]NodeID) {
	n := &Node{
		Kind:                 desc.Kind,
		Path:                 desc.Path,
		IncludedInExactParse: desc.IncludedInExactParse,
	}
	id := t.addChild(parent, n)
	if desc.Kind == KindPro {
		n.ProFile = id
		n.Pro = &ProState{ParseInProgress: true}
		*newPros = append(*newPros, id)
		return
	}
	n.ProFile = pro
	if desc.Result != nil {
		t.update(id, desc.Result)
	}
	for _, c := range desc.Children {
		t.addDescriptor(id, pro, c, newPros)
	}
}

// update replaces the file buckets of a node. Exact files win over
// cumulative duplicates.
func (t *Tree) update(id NodeID, r *PriResult) {
	n := t.Node(id)
	n.RecursiveEnumerateFiles = copySet(r.RecursiveEnumerateFiles)
	t.watchFolders(id, r.Folders)

	n.Files = map[FileType][]SourceFile{}
	for _, ft := range FileTypes() {
		exact := r.FoundExact[ft]
		var files []SourceFile
		for _, p := range sortedSet(exact) {
			files = append(files, SourceFile{Path: p, Origin: ExactParse})
		}
		for _, p := range sortedSet(r.FoundCumulative[ft]) {
			if _, ok := exact[p]; !ok {
				files = append(files, SourceFile{Path: p, Origin: CumulativeParse})
			}
		}
		if len(files) > 0 {
			sort.SliceStable(files, func(i, j int) bool { return files[i].Path < files[j].Path })
			n.Files[ft] = files
		}
	}
}

func (t *Tree) watchFolders(id NodeID, folders map[string]struct{}) {
	n := t.Node(id)
	var toWatch, toUnwatch []string
	for f := range n.WatchedFolders {
		if _, ok := folders[f]; !ok {
			toUnwatch = append(toUnwatch, f)
		}
	}
	for f := range folders {
		if _, ok := n.WatchedFolders[f]; !ok {
			toWatch = append(toWatch, f)
		}
	}
	sort.Strings(toWatch)
	sort.Strings(toUnwatch)
	if t.folders != nil {
		if len(toUnwatch) > 0 {
			t.folders.Unwatch(toUnwatch, n.owner)
		}
		if len(toWatch) > 0 {
			t.folders.Watch(toWatch, n.owner)
		}
	}
	n.WatchedFolders = copySet(folders)
}

// FolderChanged reconciles the enumerated contents of a watched folder.
// It reports whether any file was added or removed.
func (t *Tree) FolderChanged(id NodeID, changedFolder string, newFiles map[string]struct{}) bool {
	n := t.Node(id)
	if n == nil {
		return false
	}

	added := map[string]struct{}{}
	for f := range newFiles {
		if _, ok := n.RecursiveEnumerateFiles[f]; !ok {
			added[f] = struct{}{}
		}
	}
	removed := map[string]struct{}{}
	for f := range n.RecursiveEnumerateFiles {
		if _, ok := newFiles[f]; !ok && util.IsChildOf(f, changedFolder) {
			removed[f] = struct{}{}
		}
	}
	if len(added) == 0 && len(removed) == 0 {
		return false
	}

	// Only the changed folder was enumerated. Entries elsewhere stay.
	merged := make(map[string]struct{}, len(n.RecursiveEnumerateFiles)+len(added))
	for f := range n.RecursiveEnumerateFiles {
		if _, gone := removed[f]; !gone {
			merged[f] = struct{}{}
		}
	}
	for f := range added {
		merged[f] = struct{}{}
	}
	n.RecursiveEnumerateFiles = merged
	if n.Files == nil {
		n.Files = map[FileType][]SourceFile{}
	}
	for _, ft := range FileTypes() {
		add := filterFilesRecursiveEnumerata(ft, added)
		remove := filterFilesRecursiveEnumerata(ft, removed)
		if len(add) == 0 && len(remove) == 0 {
			continue
		}
		slog.Debug("folder contents changed", "node", n.Path, "type", ft.String(), "added", len(add), "removed", len(remove))

		current := n.Files[ft]
		present := make(map[string]struct{}, len(current))
		for _, sf := range current {
			present[sf.Path] = struct{}{}
		}
		var next []SourceFile
		for _, sf := range current {
			if _, gone := remove[sf.Path]; !gone {
				next = append(next, sf)
			}
		}
		for _, p := range sortedSet(add) {
			if _, ok := present[p]; !ok {
				next = append(next, SourceFile{Path: p, Origin: ExactParse})
			}
		}
		sort.SliceStable(next, func(i, j int) bool { return next[i].Path < next[j].Path })
		if len(next) == 0 {
			delete(n.Files, ft)
		} else {
			n.Files[ft] = next
		}
	}
	return true
}

// DeploysFolder reports whether folder lies in one of the node's watched
// install folders.
func (t *Tree) DeploysFolder(id NodeID, folder string) bool {
	n := t.Node(id)
	if n == nil {
		return false
	}
	f := util.WithTrailingSlash(folder)
	for wf := range n.WatchedFolders {
		if !strings.HasPrefix(f, wf) {
			continue
		}
		if strings.HasSuffix(wf, "/") || (len(wf) < len(f) && f[len(wf)] == '/') {
			return true
		}
	}
	return false
}

// KnowsFile reports whether file was found by enumerating watched folders.
func (t *Tree) KnowsFile(id NodeID, file string) bool {
	n := t.Node(id)
	if n == nil {
		return false
	}
	_, ok := n.RecursiveEnumerateFiles[file]
	return ok
}

// SubPriFilesExact returns the direct children included by the exact pass.
func (t *Tree) SubPriFilesExact(id NodeID) []NodeID {
	n := t.Node(id)
	if n == nil {
		return nil
	}
	var out []NodeID
	for _, c := range n.Children {
		if child := t.Node(c); child != nil && child.IncludedInExactParse {
			out = append(out, c)
		}
	}
	return out
}

// CollectFiles gathers bucket ft of id and of every .pri below it, not
// crossing into sub projects.
func (t *Tree) CollectFiles(id NodeID, ft FileType) []string {
	set := map[string]struct{}{}
	var collect func(NodeID)
	collect = func(cur NodeID) {
		n := t.Node(cur)
		if n == nil {
			return
		}
		for _, sf := range n.Files[ft] {
			set[sf.Path] = struct{}{}
		}
		for _, c := range n.Children {
			if child := t.Node(c); child != nil && child.Kind == KindPri {
				collect(c)
			}
		}
	}
	collect(id)
	return sortedSet(set)
}

func (t *Tree) VariableValue(id NodeID, v Variable) []string {
	n := t.Node(id)
	if n == nil || n.Pro == nil {
		return nil
	}
	return n.Pro.Vars[v]
}

func (t *Tree) SingleVariableValue(id NodeID, v Variable) string {
	values := t.VariableValue(id, v)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// CxxDefines renders the node's DEFINES as preprocessor lines.
func (t *Tree) CxxDefines(id NodeID) string {
	return CxxDefines(t.VariableValue(id, VarDefines))
}

// SubProjectsNotToDeploy returns sub projects marked no_default_target.
func (t *Tree) SubProjectsNotToDeploy(id NodeID) []string {
	n := t.Node(id)
	if n == nil || n.Pro == nil {
		return nil
	}
	return n.Pro.SubProjectsNotToDeploy
}

// GeneratedFiles returns the files a form or state chart compiles into.
func (t *Tree) GeneratedFiles(id NodeID, buildDir, sourceFile string, ft FileType) []string {
	switch ft {
	case FileForm:
		location := buildDir
		if uiDir := t.VariableValue(id, VarUiDir); len(uiDir) > 0 && uiDir[0] != "" {
			location = uiDir[0]
		}
		if location == "" {
			return nil
		}
		name := "ui_" + completeBaseName(sourceFile) + t.SingleVariableValue(id, VarHeaderExtension)
		return []string{util.CleanPath(location + "/" + name)}
	case FileStateChart:
		if buildDir == "" {
			return nil
		}
		location := buildDir + "/" + completeBaseName(sourceFile)
		return []string{
			location + t.SingleVariableValue(id, VarHeaderExtension),
			location + t.SingleVariableValue(id, VarCppExtension),
		}
	}
	return nil
}

func (t *Tree) updateGeneratedFiles(id NodeID) {
	n := t.Node(id)
	n.Pro.ExtraCompilers = nil
	switch n.Pro.ProjectType {
	case Application, SharedLibrary, StaticLibrary:
	default:
		return
	}
	for _, ft := range []FileType{FileForm, FileStateChart} {
		for _, src := range t.CollectFiles(id, ft) {
			generated := t.GeneratedFiles(id, n.Pro.BuildDir, src, ft)
			if len(generated) > 0 {
				n.Pro.ExtraCompilers = append(n.Pro.ExtraCompilers, ExtraCompiler{Source: src, Type: ft, Generated: generated})
			}
		}
	}
}

// ExtraCompilers returns the generator bindings of a .pro node.
func (t *Tree) ExtraCompilers(id NodeID) []ExtraCompiler {
	n := t.Node(id)
	if n == nil || n.Pro == nil {
		return nil
	}
	return n.Pro.ExtraCompilers
}

// IsFileFromWildcard reports whether file sits in a wildcard directory of
// the .pro node and was present at the last listing.
func (t *Tree) IsFileFromWildcard(id NodeID, file string) bool {
	n := t.Node(id)
	if n == nil || n.Pro == nil {
		return false
	}
	entries, ok := n.Pro.wildcardDirs[path.Dir(file)]
	if !ok {
		return false
	}
	return containsString(entries, path.Base(file))
}

func (t *Tree) updateWildcardDirs(id NodeID, dirs map[string]struct{}) {
	n := t.Node(id)
	if n.Pro.wildcardDirs == nil {
		n.Pro.wildcardDirs = map[string][]string{}
	}
	if n.Pro.wildcardOwner == nil {
		n.Pro.wildcardOwner = &wildcardOwner{tree: t, id: id}
	}

	var toWatch, toUnwatch []string
	for d := range dirs {
		if _, ok := n.Pro.wildcardDirs[d]; !ok {
			n.Pro.wildcardDirs[d] = dirEntries(d)
			toWatch = append(toWatch, d)
		}
	}
	for d := range n.Pro.wildcardDirs {
		if _, ok := dirs[d]; !ok {
			delete(n.Pro.wildcardDirs, d)
			toUnwatch = append(toUnwatch, d)
		}
	}
	sort.Strings(toWatch)
	sort.Strings(toUnwatch)
	if t.folders != nil {
		if len(toUnwatch) > 0 {
			t.folders.Unwatch(toUnwatch, n.Pro.wildcardOwner)
		}
		if len(toWatch) > 0 {
			t.folders.Watch(toWatch, n.Pro.wildcardOwner)
		}
	}
}

// WildcardDirs lists the watched wildcard directories of a .pro node.
func (t *Tree) WildcardDirs(id NodeID) []string {
	n := t.Node(id)
	if n == nil || n.Pro == nil {
		return nil
	}
	return util.SortedStringKeys(n.Pro.wildcardDirs)
}

func (t *Tree) wildcardDirChanged(id NodeID, dir string) {
	n := t.Node(id)
	if n == nil || n.Pro == nil {
		return
	}
	dir = util.CleanPath(dir)
	old, ok := n.Pro.wildcardDirs[dir]
	if !ok {
		return
	}
	entries := dirEntries(dir)
	if equalStrings(old, entries) {
		return
	}
	n.Pro.wildcardDirs[dir] = entries
	t.ScheduleUpdate(id)
}

// priOwner forwards folder events to a node's enumerated files.
type priOwner struct {
	tree *Tree
	id   NodeID
}

func (o *priOwner) FolderChanged(folder string, files map[string]struct{}) bool {
	return o.tree.FolderChanged(o.id, folder, files)
}

// wildcardOwner re-evaluates a .pro node when a wildcard directory listing
// changes. It never reports a file change itself.
type wildcardOwner struct {
	tree *Tree
	id   NodeID
}

func (o *wildcardOwner) FolderChanged(folder string, _ map[string]struct{}) bool {
	o.tree.wildcardDirChanged(o.id, folder)
	return false
}

type fileSnapshot map[string]map[FileType]map[string]struct{}

// snapshotFiles records the buckets of id and of the .pri nodes below it.
func (t *Tree) snapshotFiles(id NodeID) fileSnapshot {
	snap := fileSnapshot{}
	var visit func(NodeID)
	visit = func(cur NodeID) {
		n := t.Node(cur)
		if n == nil {
			return
		}
		buckets := snap[n.Path]
		if buckets == nil {
			buckets = map[FileType]map[string]struct{}{}
			snap[n.Path] = buckets
		}
		for ft, files := range n.Files {
			set := buckets[ft]
			if set == nil {
				set = map[string]struct{}{}
				buckets[ft] = set
			}
			for _, sf := range files {
				set[sf.Path] = struct{}{}
			}
		}
		for _, c := range n.Children {
			if child := t.Node(c); child != nil && child.Kind == KindPri {
				visit(c)
			}
		}
	}
	visit(id)
	return snap
}

func diffSnapshots(before, after fileSnapshot) []FileDelta {
	nodes := map[string]struct{}{}
	for p := range before {
		nodes[p] = struct{}{}
	}
	for p := range after {
		nodes[p] = struct{}{}
	}
	var out []FileDelta
	for _, p := range sortedSet(nodes) {
		for _, ft := range FileTypes() {
			oldSet, newSet := before[p][ft], after[p][ft]
			var d FileDelta
			for f := range newSet {
				if _, ok := oldSet[f]; !ok {
					d.Added = append(d.Added, f)
				}
			}
			for f := range oldSet {
				if _, ok := newSet[f]; !ok {
					d.Removed = append(d.Removed, f)
				}
			}
			if len(d.Added) == 0 && len(d.Removed) == 0 {
				continue
			}
			sort.Strings(d.Added)
			sort.Strings(d.Removed)
			d.Node = p
			d.Type = ft
			out = append(out, d)
		}
	}
	return out
}

func dirEntries(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func copySet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

func sortedSet(in map[string]struct{}) []string {
	return util.SortedStringKeys(in)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
