package formats

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"qmakemodel/internal/core/buildsystem"
	"qmakemodel/internal/engine/project"
)

func sampleUpdate() *buildsystem.Update {
	return &buildsystem.Update{
		Generation:  2,
		ProjectFile: "/src/all.pro",
		Nodes: []buildsystem.NodeSummary{
			{Path: "/src/all.pro", Kind: project.KindPro, ProjectType: project.SubDirs, ValidParse: true},
			{Path: "/src/app/app.pro", Kind: project.KindPro, Depth: 1, ProjectType: project.Application, ValidParse: true,
				Files: map[project.FileType][]project.SourceFile{
					project.FileSource: {{Path: "/src/app/main.cpp", Origin: project.ExactParse}},
				}},
			{Path: "/src/app/common.pri", Kind: project.KindPri, Depth: 2},
			{Path: "/src/lib/lib.pro", Kind: project.KindPro, Depth: 1, ProjectType: project.StaticLibrary},
		},
		Applications: []buildsystem.ApplicationTarget{
			{DisplayName: "app", TargetFilePath: "/src/app/app", WorkingDirectory: "/src/app", UsesTerminal: true},
		},
		Deployment: buildsystem.DeploymentData{Files: []buildsystem.DeployableFile{
			{LocalPath: "/src/app/app", RemoteDir: "/opt/app/bin", Executable: true},
		}},
		Diagnostics: []project.Diagnostic{
			{Severity: project.SeverityError, Path: "/src/lib/lib.pro", Message: "Parse error"},
			{Severity: project.SeverityError, Path: "/src/all.pro", Message: `Could not find .pro file for subdirectory "ghost" in "/src/ghost".`},
		},
	}
}

func TestGenerateSARIF_EmptyResults(t *testing.T) {
	data, err := GenerateSARIF(&buildsystem.Update{ProjectFile: "/src/all.pro"}, "1.0.0")
	if err != nil {
		t.Fatalf("GenerateSARIF returned error: %v", err)
	}
	var report sarifReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if report.Schema != sarifSchema {
		t.Errorf("$schema = %q, want %q", report.Schema, sarifSchema)
	}
	if report.Version != sarifVersion {
		t.Errorf("version = %q, want %q", report.Version, sarifVersion)
	}
	if len(report.Runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(report.Runs))
	}
	if len(report.Runs[0].Results) != 0 || len(report.Runs[0].Tool.Driver.Rules) != 0 {
		t.Errorf("expected no results and no rules, got %+v", report.Runs[0])
	}
}

func TestGenerateSARIF_Diagnostics(t *testing.T) {
	data, err := GenerateSARIF(sampleUpdate(), "1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var report sarifReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	results := report.Runs[0].Results
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].RuleID != ruleIDProjectError || results[0].Level != "error" {
		t.Errorf("first result = %+v", results[0])
	}
	if got := results[0].Locations[0].PhysicalLocation.ArtifactLocation.URI; got != "lib/lib.pro" {
		t.Errorf("uri = %q, want lib/lib.pro", got)
	}
	if results[1].RuleID != ruleIDMissingSubproject {
		t.Errorf("ruleId = %q, want %q", results[1].RuleID, ruleIDMissingSubproject)
	}
	if len(report.Runs[0].Tool.Driver.Rules) != 2 {
		t.Errorf("expected 2 rules, got %d", len(report.Runs[0].Tool.Driver.Rules))
	}
}

func TestRelativeURI(t *testing.T) {
	cases := map[string]string{
		"/src/a/b.pro": "a/b.pro",
		"/other/x.pri": "/other/x.pri",
		"rel/c.pro":    "rel/c.pro",
	}
	for in, want := range cases {
		if got := relativeURI("/src", in); got != want {
			t.Errorf("relativeURI(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMermaidGenerator(t *testing.T) {
	out, err := NewMermaidGenerator().Generate(sampleUpdate())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"flowchart TD",
		"all_pro --> app_pro",
		"all_pro --> lib_pro",
		"app_pro -.-> common_pri",
		"class lib_pro invalid",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("diagram missing %q:\n%s", want, out)
		}
	}

	g := NewMermaidGenerator()
	g.SetIncludePri(false)
	out, _ = g.Generate(sampleUpdate())
	if strings.Contains(out, "common_pri") {
		t.Errorf("expected includes to be hidden:\n%s", out)
	}
}

func TestMakeIDs_Unique(t *testing.T) {
	ids := makeIDs([]string{"/a/lib.pro", "/b/lib.pro", "/c/1st.pri"})
	if ids["/a/lib.pro"] != "lib_pro" || ids["/b/lib.pro"] != "lib_pro_2" {
		t.Errorf("unexpected ids: %v", ids)
	}
	if ids["/c/1st.pri"] != "n_1st_pri" {
		t.Errorf("unexpected id for digit start: %q", ids["/c/1st.pri"])
	}
}

func TestMarkdownGenerator(t *testing.T) {
	out, err := NewMarkdownGenerator().Generate(sampleUpdate(), MarkdownReportOptions{
		Version:         "1.0.0",
		GeneratedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		TableOfContents: true,
		IncludeMermaid:  true,
		MermaidDiagram:  "flowchart TD\n  a --> b",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"generated_at: 2026-01-02T03:04:05Z",
		"| Project Files | 3 |",
		"| Include Files | 1 |",
		"`lib/lib.pro` | staticlib | invalid | 0 |",
		"| app | `app/app` | `app` | yes |",
		"| `app/app` | `/opt/app/bin` | yes |",
		"| error | `lib/lib.pro` | Parse error |",
		"```mermaid",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
