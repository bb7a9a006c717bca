package formats

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"qmakemodel/internal/core/buildsystem"
	"qmakemodel/internal/engine/project"
)

type MarkdownReportOptions struct {
	Version         string
	GeneratedAt     time.Time
	TableOfContents bool
	IncludeMermaid  bool
	MermaidDiagram  string
}

type MarkdownGenerator struct{}

func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{}
}

func (m *MarkdownGenerator) Generate(u *buildsystem.Update, opts MarkdownReportOptions) (string, error) {
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now().UTC()
	}
	root := path.Dir(u.ProjectFile)

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("title: qmake Project Report\n")
	b.WriteString("project: " + nonEmpty(path.Base(u.ProjectFile), "unknown") + "\n")
	b.WriteString("generated_at: " + opts.GeneratedAt.UTC().Format(time.RFC3339) + "\n")
	b.WriteString("version: " + nonEmpty(opts.Version, "unknown") + "\n")
	b.WriteString("---\n\n")

	b.WriteString("# Project Report\n\n")
	if opts.TableOfContents {
		b.WriteString("## Table of Contents\n")
		b.WriteString("- [Summary](#summary)\n")
		b.WriteString("- [Projects](#projects)\n")
		b.WriteString("- [Applications](#applications)\n")
		b.WriteString("- [Deployment](#deployment)\n")
		b.WriteString("- [Problems](#problems)\n")
		if opts.IncludeMermaid && strings.TrimSpace(opts.MermaidDiagram) != "" {
			b.WriteString("- [Project Diagram](#project-diagram)\n")
		}
		b.WriteString("\n")
	}

	pro, pri := 0, 0
	for _, n := range u.Nodes {
		if n.Kind == project.KindPro {
			pro++
		} else {
			pri++
		}
	}
	b.WriteString("## Summary\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("| --- | --- |\n")
	b.WriteString(fmt.Sprintf("| Generation | %d |\n", u.Generation))
	b.WriteString(fmt.Sprintf("| Project Files | %d |\n", pro))
	b.WriteString(fmt.Sprintf("| Include Files | %d |\n", pri))
	b.WriteString(fmt.Sprintf("| Project Parts | %d |\n", len(u.ProjectParts)))
	b.WriteString(fmt.Sprintf("| Applications | %d |\n", len(u.Applications)))
	b.WriteString(fmt.Sprintf("| Deployable Files | %d |\n", len(u.Deployment.Files)))
	b.WriteString(fmt.Sprintf("| Problems | %d |\n\n", len(u.Diagnostics)))

	m.writeProjects(&b, u.Nodes, root)
	m.writeApplications(&b, u.Applications, root)
	m.writeDeployment(&b, u.Deployment, root)
	m.writeProblems(&b, u.Diagnostics, root)

	if opts.IncludeMermaid && strings.TrimSpace(opts.MermaidDiagram) != "" {
		b.WriteString("## Project Diagram\n")
		b.WriteString("```mermaid\n")
		b.WriteString(strings.TrimSpace(opts.MermaidDiagram))
		b.WriteString("\n```\n")
	}
	return b.String(), nil
}

func (m *MarkdownGenerator) writeProjects(b *strings.Builder, nodes []buildsystem.NodeSummary, root string) {
	b.WriteString("## Projects\n")
	if len(nodes) == 0 {
		b.WriteString("No project loaded.\n\n")
		return
	}
	b.WriteString("| File | Type | Status | Exact Files |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, n := range nodes {
		status := "ok"
		switch {
		case n.Kind == project.KindPri:
			status = "-"
		case n.ParseInProgress:
			status = "parsing"
		case !n.ValidParse:
			status = "invalid"
		}
		exact := 0
		for _, files := range n.Files {
			for _, f := range files {
				if f.Origin == project.ExactParse {
					exact++
				}
			}
		}
		indent := strings.Repeat("&nbsp;&nbsp;", n.Depth)
		b.WriteString(fmt.Sprintf("| %s`%s` | %s | %s | %d |\n", indent, relativePath(root, n.Path), nodeKindLabel(n), status, exact))
	}
	b.WriteString("\n")
}

func (m *MarkdownGenerator) writeApplications(b *strings.Builder, apps []buildsystem.ApplicationTarget, root string) {
	b.WriteString("## Applications\n")
	if len(apps) == 0 {
		b.WriteString("No runnable targets.\n\n")
		return
	}
	b.WriteString("| Name | Executable | Working Directory | Terminal |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, a := range apps {
		terminal := "no"
		if a.UsesTerminal {
			terminal = "yes"
		}
		b.WriteString(fmt.Sprintf("| %s | `%s` | `%s` | %s |\n",
			a.DisplayName+a.DisplayNameUniquifier,
			relativePath(root, a.TargetFilePath),
			relativePath(root, a.WorkingDirectory),
			terminal))
	}
	b.WriteString("\n")
}

func (m *MarkdownGenerator) writeDeployment(b *strings.Builder, data buildsystem.DeploymentData, root string) {
	b.WriteString("## Deployment\n")
	if len(data.Files) == 0 {
		b.WriteString("Nothing to deploy.\n\n")
		return
	}
	b.WriteString("| Local File | Remote Directory | Executable |\n")
	b.WriteString("| --- | --- | --- |\n")
	for _, f := range data.Files {
		exec := ""
		if f.Executable {
			exec = "yes"
		}
		b.WriteString(fmt.Sprintf("| `%s` | `%s` | %s |\n", relativePath(root, f.LocalPath), f.RemoteDir, exec))
	}
	b.WriteString("\n")
}

func (m *MarkdownGenerator) writeProblems(b *strings.Builder, diags []project.Diagnostic, root string) {
	b.WriteString("## Problems\n")
	if len(diags) == 0 {
		b.WriteString("No problems found.\n\n")
		return
	}
	b.WriteString("| Severity | File | Message |\n")
	b.WriteString("| --- | --- | --- |\n")
	for _, d := range diags {
		b.WriteString(fmt.Sprintf("| %s | `%s` | %s |\n", d.Severity, relativePath(root, d.Path), strings.ReplaceAll(d.Message, "|", "\\|")))
	}
	b.WriteString("\n")
}

func relativePath(root, p string) string {
	if p == "" || root == "" {
		return p
	}
	rel, err := filepath.Rel(filepath.FromSlash(root), filepath.FromSlash(p))
	if err != nil || strings.HasPrefix(rel, "..") {
		return p
	}
	return filepath.ToSlash(rel)
}
