package formats

import (
	"fmt"
	"strings"

	"qmakemodel/internal/core/buildsystem"
	"qmakemodel/internal/engine/project"
)

type MermaidGenerator struct {
	includePri bool
}

func NewMermaidGenerator() *MermaidGenerator {
	return &MermaidGenerator{includePri: true}
}

// SetIncludePri controls whether included .pri files appear as nodes.
func (m *MermaidGenerator) SetIncludePri(include bool) {
	m.includePri = include
}

// Generate draws the project tree of u as a flowchart. Sub projects hang
// off their subdirs parent with solid edges, includes with dotted ones.
func (m *MermaidGenerator) Generate(u *buildsystem.Update) (string, error) {
	var b strings.Builder
	b.WriteString("flowchart TD\n")

	nodes := make([]buildsystem.NodeSummary, 0, len(u.Nodes))
	for _, n := range u.Nodes {
		if n.Kind == project.KindPri && !m.includePri {
			continue
		}
		nodes = append(nodes, n)
	}
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Path)
	}
	ids := makeIDs(names)

	var invalid, pending []string
	for _, n := range nodes {
		id := ids[n.Path]
		label := escapeLabel(nodeLabel(n))
		if n.Kind == project.KindPri {
			b.WriteString(fmt.Sprintf("  %s([\"%s\"])\n", id, label))
			continue
		}
		b.WriteString(fmt.Sprintf("  %s[\"%s\"]\n", id, label))
		switch {
		case n.ParseInProgress:
			pending = append(pending, id)
		case !n.ValidParse:
			invalid = append(invalid, id)
		}
	}

	// Pre-order with depths: the parent is the closest earlier node one
	// level up.
	var stack []buildsystem.NodeSummary
	for _, n := range nodes {
		for len(stack) > 0 && stack[len(stack)-1].Depth >= n.Depth {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			edge := "-->"
			if n.Kind == project.KindPri {
				edge = "-.->"
			}
			b.WriteString(fmt.Sprintf("  %s %s %s\n", ids[parent.Path], edge, ids[n.Path]))
		}
		stack = append(stack, n)
	}

	if len(invalid) > 0 {
		b.WriteString("  classDef invalid fill:#fee2e2,stroke:#dc2626,color:#000000\n")
		b.WriteString(fmt.Sprintf("  class %s invalid\n", strings.Join(invalid, ",")))
	}
	if len(pending) > 0 {
		b.WriteString("  classDef pending fill:#f1f5f9,stroke:#64748b,stroke-dasharray: 4 2,color:#000000\n")
		b.WriteString(fmt.Sprintf("  class %s pending\n", strings.Join(pending, ",")))
	}
	return b.String(), nil
}
