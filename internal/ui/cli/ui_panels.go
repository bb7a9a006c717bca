package cli

import (
	"fmt"
	"strings"

	"qmakemodel/internal/engine/project"
)

func renderHelp(m model) string {
	keys := "Keys: tab panel | / filter | enter details | esc back | o edit project file | q quit"
	if m.mode == panelDiagnostics {
		keys = "Keys: tab panel | / filter | q quit"
	}
	return statusStyle.Render(keys)
}

func renderProjectPanel(m model) string {
	summary := m.projectList.View()
	details := renderNodeSummary(m)
	if m.hasDetails {
		details = renderNodeDetails(m)
	}
	return summary + "\n\n" + details
}

func renderNodeSummary(m model) string {
	n, ok := m.selectedNode()
	if !ok {
		return statusStyle.Render("No project loaded.")
	}
	exact, cumulative := fileCounts(n)
	lines := []string{
		"Selected Node",
		fmt.Sprintf("  Path: %s", n.Path),
		fmt.Sprintf("  Kind: %s", n.Kind),
	}
	if n.Kind == project.KindPro {
		lines = append(lines,
			fmt.Sprintf("  Type: %s", n.ProjectType),
			fmt.Sprintf("  Valid parse: %t", n.ValidParse),
		)
	}
	lines = append(lines,
		fmt.Sprintf("  Files: %d exact, %d cumulative only", exact, cumulative),
		"  Press enter for files and compiler settings.",
	)
	return strings.Join(lines, "\n")
}

func renderNodeDetails(m model) string {
	n, ok := m.selectedNode()
	if !ok {
		return statusStyle.Render("No project loaded.")
	}
	lines := []string{fmt.Sprintf("Node Detail: %s", n.Path)}
	for _, ft := range project.FileTypes() {
		files := n.Files[ft]
		if len(files) == 0 {
			continue
		}
		names := make([]string, 0, len(files))
		for _, f := range files {
			name := f.Path
			if f.Origin == project.CumulativeParse {
				name += " (cumulative)"
			}
			names = append(names, name)
		}
		lines = append(lines, fmt.Sprintf("  %s (%d): %s", ft, len(files), strings.Join(names, ", ")))
	}

	if part, ok := m.update.Part(n.Path); ok && n.Kind == project.KindPro {
		includes := make([]string, 0, len(part.HeaderPaths))
		for _, hp := range part.HeaderPaths {
			includes = append(includes, hp.Path)
		}
		defines := make([]string, 0, len(part.ProjectMacros))
		for _, mc := range part.ProjectMacros {
			defines = append(defines, mc.KeyValue("-D"))
		}
		lines = append(lines,
			fmt.Sprintf("  Include paths (%d): %s", len(includes), strings.Join(includes, ", ")),
			fmt.Sprintf("  Defines (%d): %s", len(defines), strings.Join(defines, " ")),
		)
	}
	lines = append(lines, "  Press esc to exit details, o to edit the project file.")
	return strings.Join(lines, "\n")
}
