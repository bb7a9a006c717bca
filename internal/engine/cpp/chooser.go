package cpp

import "sort"

type Hints uint

const (
	HintFallback Hints = 1 << iota
	HintAmbiguous
	HintPreferred
	HintFromProject
	HintFromDependencies

	NoHint Hints = 0
)

// ProjectPartInfo is the outcome of choosing a part for a file.
type ProjectPartInfo struct {
	ProjectPart  *ProjectPart
	ProjectParts []*ProjectPart
	Hints        Hints
}

// ProjectPartChooser picks the project part that should be used to parse a
// file.
type ProjectPartChooser struct {
	ProjectPartsForFile          func(file string) []*ProjectPart
	ProjectPartsFromDependencies func(file string) []*ProjectPart
	FallbackProjectPart          func() *ProjectPart
}

// Choose ranks the parts claiming file. With no direct claim it reuses a
// previous fallback result unless projects were updated, then tries parts
// reaching the file through includes and finally the global fallback part.
func (c *ProjectPartChooser) Choose(file string, current *ProjectPartInfo, preferredID, activeProject string, pref Language, projectsUpdated bool) *ProjectPartInfo {
	parts := c.ProjectPartsForFile(file)
	if len(parts) > 0 {
		return prioritize(parts, preferredID, activeProject, pref, false)
	}

	if !projectsUpdated && current != nil && current.ProjectPart != nil && current.Hints&HintFallback != 0 {
		return current
	}

	parts = c.ProjectPartsFromDependencies(file)
	if len(parts) == 0 {
		fallback := c.FallbackProjectPart()
		return &ProjectPartInfo{ProjectPart: fallback, ProjectParts: []*ProjectPart{fallback}, Hints: HintFallback}
	}
	return prioritize(parts, preferredID, activeProject, pref, true)
}

type scoredPart struct {
	part  *ProjectPart
	score int
}

// Scores only matter relative to each other.
const (
	scorePreferredID = 1000
	scoreActive      = 100
	scoreSelected    = 10
	scoreLanguage    = 1
)

func priority(p *ProjectPart, preferredID, activeProject string, pref Language) int {
	score := 0
	if preferredID != "" && p.ID == preferredID {
		score += scorePreferredID
	}
	if p.BelongsTo(activeProject) {
		score += scoreActive
	}
	if p.SelectedForBuilding {
		score += scoreSelected
	}
	if p.IsCPart() == (pref == LanguageC) {
		score += scoreLanguage
	}
	return score
}

func prioritize(parts []*ProjectPart, preferredID, activeProject string, pref Language, fromDependencies bool) *ProjectPartInfo {
	scored := make([]scoredPart, len(parts))
	for i, p := range parts {
		scored[i] = scoredPart{part: p, score: priority(p, preferredID, activeProject, pref)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	info := &ProjectPartInfo{ProjectPart: scored[0].part, ProjectParts: make([]*ProjectPart, len(scored))}
	for i, s := range scored {
		info.ProjectParts[i] = s.part
	}
	if len(scored) > 1 {
		info.Hints |= HintAmbiguous
	}
	if scored[0].score >= scorePreferredID {
		info.Hints |= HintPreferred
	}
	if fromDependencies {
		info.Hints |= HintFromDependencies
	} else {
		info.Hints |= HintFromProject
	}
	return info
}
