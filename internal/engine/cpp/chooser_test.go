package cpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chooserFixture struct {
	direct       []*ProjectPart
	deps         []*ProjectPart
	fallback     *ProjectPart
	depLookups   int
	fallbackUses int
}

func (f *chooserFixture) chooser() *ProjectPartChooser {
	return &ProjectPartChooser{
		ProjectPartsForFile: func(string) []*ProjectPart { return f.direct },
		ProjectPartsFromDependencies: func(string) []*ProjectPart {
			f.depLookups++
			return f.deps
		},
		FallbackProjectPart: func() *ProjectPart {
			f.fallbackUses++
			return f.fallback
		},
	}
}

func TestChoose_PreferredIDBeatsActiveProject(t *testing.T) {
	a := &ProjectPart{ID: "A", TopLevelProject: "/other", LanguageVersion: CXX17}
	b := &ProjectPart{ID: "B", TopLevelProject: "/active", LanguageVersion: CXX17}
	f := &chooserFixture{direct: []*ProjectPart{b, a}}

	info := f.chooser().Choose("/active/main.cpp", nil, "A", "/active", LanguageCxx, false)

	require.NotNil(t, info)
	assert.Same(t, a, info.ProjectPart)
	assert.Equal(t, []*ProjectPart{a, b}, info.ProjectParts)
	assert.NotZero(t, info.Hints&HintAmbiguous)
	assert.NotZero(t, info.Hints&HintPreferred)
	assert.NotZero(t, info.Hints&HintFromProject)
	assert.Zero(t, info.Hints&HintFromDependencies)
	assert.Zero(t, f.depLookups)
}

func TestChoose_ScoresAreAdditive(t *testing.T) {
	selectedC := &ProjectPart{ID: "c", TopLevelProject: "/p", LanguageVersion: C11, SelectedForBuilding: true}
	cxx := &ProjectPart{ID: "cxx", TopLevelProject: "/p", LanguageVersion: CXX17}
	f := &chooserFixture{direct: []*ProjectPart{cxx, selectedC}}

	info := f.chooser().Choose("/p/x.h", nil, "", "/p", LanguageCxx, false)
	assert.Same(t, selectedC, info.ProjectPart)
	assert.Zero(t, info.Hints&HintPreferred)

	cxx.SelectedForBuilding = true
	info = f.chooser().Choose("/p/x.h", nil, "", "/p", LanguageCxx, false)
	assert.Same(t, cxx, info.ProjectPart)
}

func TestChoose_TiesKeepInputOrder(t *testing.T) {
	first := &ProjectPart{ID: "1", LanguageVersion: CXX17}
	second := &ProjectPart{ID: "2", LanguageVersion: CXX17}
	f := &chooserFixture{direct: []*ProjectPart{first, second}}

	info := f.chooser().Choose("/x.cpp", nil, "", "/elsewhere", LanguageCxx, false)
	assert.Same(t, first, info.ProjectPart)
}

func TestChoose_SingleCandidateIsNotAmbiguous(t *testing.T) {
	only := &ProjectPart{ID: "only", LanguageVersion: CXX17}
	f := &chooserFixture{direct: []*ProjectPart{only}}

	info := f.chooser().Choose("/x.cpp", nil, "", "", LanguageCxx, false)
	assert.Equal(t, HintFromProject, info.Hints)
}

func TestChoose_FallbackIsCachedUntilProjectsUpdate(t *testing.T) {
	fallback := &ProjectPart{ID: "fallback"}
	f := &chooserFixture{fallback: fallback}
	c := f.chooser()

	first := c.Choose("/tmp/loose.cpp", nil, "", "", LanguageCxx, false)
	require.NotNil(t, first)
	assert.Same(t, fallback, first.ProjectPart)
	assert.Equal(t, HintFallback, first.Hints)
	assert.Equal(t, 1, f.depLookups)

	second := c.Choose("/tmp/loose.cpp", first, "", "", LanguageCxx, false)
	assert.Same(t, first, second)
	assert.Equal(t, 1, f.depLookups)
	assert.Equal(t, 1, f.fallbackUses)

	third := c.Choose("/tmp/loose.cpp", first, "", "", LanguageCxx, true)
	assert.NotSame(t, first, third)
	assert.Equal(t, 2, f.depLookups)
}

func TestChoose_DependencyCandidates(t *testing.T) {
	dep := &ProjectPart{ID: "dep", LanguageVersion: CXX17}
	f := &chooserFixture{deps: []*ProjectPart{dep}}

	info := f.chooser().Choose("/proj/inc/util.h", nil, "", "", LanguageCxx, false)
	assert.Same(t, dep, info.ProjectPart)
	assert.NotZero(t, info.Hints&HintFromDependencies)
	assert.Zero(t, info.Hints&HintFallback)
	assert.Zero(t, f.fallbackUses)
}
