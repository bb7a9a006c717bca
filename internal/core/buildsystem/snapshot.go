package buildsystem

import (
	"time"

	"qmakemodel/internal/engine/cpp"
	"qmakemodel/internal/engine/project"
)

// Update is the immutable view of the tree published after a generation
// or a folder refresh. Readers may keep it for as long as they like.
type Update struct {
	Generation   uint64
	Full         bool
	ProjectFile  string
	PublishedAt  time.Time
	Nodes        []NodeSummary
	ProjectParts []cpp.RawProjectPart
	Deployment   DeploymentData
	Applications []ApplicationTarget
	Diagnostics  []project.Diagnostic
	Deltas       []project.FileDelta
}

// NodeSummary is one tree node in pre-order.
type NodeSummary struct {
	Path            string
	Kind            project.NodeKind
	Depth           int
	ProjectType     project.ProjectType
	DisplayName     string
	ValidParse      bool
	ParseInProgress bool
	Files           map[project.FileType][]project.SourceFile
}

// Node returns the first summary for path.
func (u *Update) Node(path string) (NodeSummary, bool) {
	for _, n := range u.Nodes {
		if n.Path == path {
			return n, true
		}
	}
	return NodeSummary{}, false
}

// Part returns the raw project part of the .pro file path.
func (u *Update) Part(path string) (cpp.RawProjectPart, bool) {
	for _, p := range u.ProjectParts {
		if p.ProjectFile == path {
			return p, true
		}
	}
	return cpp.RawProjectPart{}, false
}

func (b *BuildSystem) snapshot() *Update {
	u := &Update{
		Generation:   b.generation,
		Full:         b.genFull,
		ProjectFile:  b.projectFile,
		PublishedAt:  time.Now(),
		ProjectParts: b.rawProjectParts(),
		Deployment:   b.deploymentData(),
		Applications: b.applicationTargets(),
		Diagnostics:  append([]project.Diagnostic(nil), b.genDiagnostics...),
		Deltas:       append([]project.FileDelta(nil), b.genDeltas...),
	}

	depth := map[project.NodeID]int{}
	b.tree.Walk(func(id project.NodeID, n *project.Node) bool {
		d := 0
		if parent, ok := depth[n.Parent]; ok {
			d = parent + 1
		}
		depth[id] = d
		s := NodeSummary{
			Path:        n.Path,
			Kind:        n.Kind,
			Depth:       d,
			DisplayName: n.DisplayName(),
			Files:       make(map[project.FileType][]project.SourceFile, len(n.Files)),
		}
		if n.Pro != nil {
			s.ProjectType = n.Pro.ProjectType
			s.ValidParse = n.Pro.ValidParse
			s.ParseInProgress = n.Pro.ParseInProgress
		}
		for ft, files := range n.Files {
			s.Files[ft] = append([]project.SourceFile(nil), files...)
		}
		u.Nodes = append(u.Nodes, s)
		return true
	})
	return u
}
