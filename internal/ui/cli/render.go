package cli

import (
	"fmt"
	"path"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"qmakemodel/internal/core/buildsystem"
	"qmakemodel/internal/engine/project"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)

	enumeratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			MarginRight(1)
)

// fileCounts returns the number of exact and cumulative-only files of a
// node over all file types.
func fileCounts(n buildsystem.NodeSummary) (exact, cumulative int) {
	for _, files := range n.Files {
		for _, f := range files {
			if f.Origin == project.ExactParse {
				exact++
			} else {
				cumulative++
			}
		}
	}
	return exact, cumulative
}

func nodeLabel(n buildsystem.NodeSummary) string {
	name := path.Base(n.Path)
	exact, cumulative := fileCounts(n)
	counts := statusStyle.Render(fmt.Sprintf("exact=%d cumulative=%d", exact, cumulative))
	if n.Kind != project.KindPro {
		return fmt.Sprintf("%s %s %s", name, statusStyle.Render("(pri)"), counts)
	}

	status := successStyle.Render(n.ProjectType.String())
	switch {
	case n.ParseInProgress:
		status = statusStyle.Render("parsing")
	case !n.ValidParse:
		status = errorStyle.Render("invalid")
	}
	label := name
	if n.DisplayName != "" && n.DisplayName != name {
		label += " " + statusStyle.Render("\""+n.DisplayName+"\"")
	}
	return fmt.Sprintf("%s [%s] %s", label, status, counts)
}

// renderTree draws the node summaries, which are in pre-order, as a tree.
func renderTree(nodes []buildsystem.NodeSummary) string {
	if len(nodes) == 0 {
		return statusStyle.Render("No project loaded.")
	}
	root := tree.Root(nodeLabel(nodes[0])).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(enumeratorStyle).
		RootStyle(titleStyle)

	stack := []*tree.Tree{root}
	for _, n := range nodes[1:] {
		for len(stack) > n.Depth {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			stack = []*tree.Tree{root}
		}
		sub := tree.Root(nodeLabel(n))
		stack[len(stack)-1].Child(sub)
		stack = append(stack, sub)
	}
	return root.String()
}

func renderDiagnostics(diags []project.Diagnostic) string {
	if len(diags) == 0 {
		return successStyle.Render("No problems found.")
	}
	lines := make([]string, 0, len(diags))
	for _, d := range diags {
		style := warningStyle
		if d.Severity == project.SeverityError {
			style = errorStyle
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s", style.Render(d.Severity.String()), d.Path, d.Message))
	}
	return strings.Join(lines, "\n")
}

// renderUpdate is the full evaluate report.
func renderUpdate(u *buildsystem.Update) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Project " + u.ProjectFile))
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(fmt.Sprintf("generation %d | %d project parts | %d applications | %d deployable files",
		u.Generation, len(u.ProjectParts), len(u.Applications), len(u.Deployment.Files))))
	b.WriteString("\n\n")
	b.WriteString(renderTree(u.Nodes))
	b.WriteString("\n\n")
	b.WriteString(renderDiagnostics(u.Diagnostics))
	b.WriteString("\n")
	return b.String()
}
