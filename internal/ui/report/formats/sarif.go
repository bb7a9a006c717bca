package formats

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"qmakemodel/internal/core/buildsystem"
	"qmakemodel/internal/engine/project"
)

// SARIF v2.1.0 schema, see https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json

const (
	sarifSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
	sarifVersion = "2.1.0"

	ruleIDProjectError      = "QMK001"
	ruleIDProjectWarning    = "QMK002"
	ruleIDMissingSubproject = "QMK003"

	missingSubprojectPrefix = "Could not find .pro file for subdirectory"
)

type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	ShortDescription sarifMessage           `json:"shortDescription"`
	DefaultConfig    sarifRuleDefaultConfig `json:"defaultConfiguration"`
}

type sarifRuleDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
}

type sarifArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId"`
}

func ruleFor(d project.Diagnostic) string {
	switch {
	case strings.HasPrefix(d.Message, missingSubprojectPrefix):
		return ruleIDMissingSubproject
	case d.Severity == project.SeverityError:
		return ruleIDProjectError
	default:
		return ruleIDProjectWarning
	}
}

func levelFor(s project.Severity) string {
	if s == project.SeverityError {
		return "error"
	}
	return "warning"
}

// GenerateSARIF turns the diagnostics of u into a SARIF v2.1.0 document.
// File URIs are relative to the directory of the top level project.
func GenerateSARIF(u *buildsystem.Update, toolVersion string) ([]byte, error) {
	projectRoot := filepath.Dir(filepath.FromSlash(u.ProjectFile))
	results := make([]sarifResult, 0, len(u.Diagnostics))
	used := make(map[string]bool)
	for _, d := range u.Diagnostics {
		rule := ruleFor(d)
		used[rule] = true
		result := sarifResult{
			RuleID:  rule,
			Level:   levelFor(d.Severity),
			Message: sarifMessage{Text: d.Message},
		}
		if d.Path != "" {
			result.Locations = []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{
						URI:       relativeURI(projectRoot, d.Path),
						URIBaseID: "%SRCROOT%",
					},
				},
			}}
		}
		results = append(results, result)
	}

	report := sarifReport{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:    "qmakemodel",
						Version: toolVersion,
						Rules:   buildSARIFRules(used),
					},
				},
				Results: results,
			},
		},
	}
	return json.MarshalIndent(report, "", "  ")
}

// buildSARIFRules returns only the rules some result refers to.
func buildSARIFRules(used map[string]bool) []sarifRule {
	rules := make([]sarifRule, 0, len(used))
	if used[ruleIDProjectError] {
		rules = append(rules, sarifRule{
			ID:               ruleIDProjectError,
			Name:             "ProjectEvaluationError",
			ShortDescription: sarifMessage{Text: "A project file could not be read or evaluated."},
			DefaultConfig:    sarifRuleDefaultConfig{Level: "error"},
		})
	}
	if used[ruleIDProjectWarning] {
		rules = append(rules, sarifRule{
			ID:               ruleIDProjectWarning,
			Name:             "ProjectEvaluationWarning",
			ShortDescription: sarifMessage{Text: "Project evaluation reported a problem."},
			DefaultConfig:    sarifRuleDefaultConfig{Level: "warning"},
		})
	}
	if used[ruleIDMissingSubproject] {
		rules = append(rules, sarifRule{
			ID:               ruleIDMissingSubproject,
			Name:             "MissingSubproject",
			ShortDescription: sarifMessage{Text: "A SUBDIRS entry does not name an existing project file."},
			DefaultConfig:    sarifRuleDefaultConfig{Level: "error"},
		})
	}
	return rules
}

// relativeURI converts an absolute file path to a forward-slash relative URI
// anchored at projectRoot. Paths outside projectRoot stay absolute.
func relativeURI(projectRoot, filePath string) string {
	filePath = filepath.FromSlash(filePath)
	if projectRoot != "" && filepath.IsAbs(filePath) {
		rel, err := filepath.Rel(projectRoot, filePath)
		if err == nil && !strings.HasPrefix(rel, "..") {
			filePath = rel
		}
	}
	return filepath.ToSlash(filePath)
}
