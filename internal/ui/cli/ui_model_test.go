package cli

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qmakemodel/internal/core/buildsystem"
)

func TestModel_FilterAndFocusFlow(t *testing.T) {
	m := initialModel()

	updated, _ := m.Update(updateMsg{update: sampleUpdate(), state: buildsystem.Idle})
	state, ok := updated.(model)
	require.True(t, ok, "expected model type, got %T", updated)

	assert.Len(t, state.diagList.Items(), 1)
	assert.Len(t, state.projectList.Items(), 4)

	updated, _ = state.Update(tea.KeyMsg{Type: tea.KeyTab})
	state = updated.(model)
	assert.Equal(t, panelProjects, state.mode)

	updated, _ = state.Update(tea.KeyMsg{Type: tea.KeyTab})
	state = updated.(model)
	assert.Equal(t, panelDiagnostics, state.mode)
}

func TestModel_NodeDrillDown(t *testing.T) {
	m := initialModel()
	updated, _ := m.Update(updateMsg{update: sampleUpdate(), state: buildsystem.Idle})
	state := updated.(model)

	updated, _ = state.Update(tea.KeyMsg{Type: tea.KeyTab})
	state = updated.(model)

	updated, _ = state.Update(tea.KeyMsg{Type: tea.KeyEnter})
	state = updated.(model)
	require.True(t, state.hasDetails)

	n, ok := state.selectedNode()
	require.True(t, ok)
	assert.Equal(t, "/src/all.pro", n.Path)
	assert.Contains(t, state.View(), "Node Detail: /src/all.pro")

	updated, _ = state.Update(tea.KeyMsg{Type: tea.KeyEsc})
	state = updated.(model)
	assert.False(t, state.hasDetails)
}

func TestModel_IgnoresEmptyUpdates(t *testing.T) {
	m := initialModel()
	updated, _ := m.Update(updateMsg{state: buildsystem.InProgress})
	state := updated.(model)

	assert.Nil(t, state.update)
	assert.Equal(t, buildsystem.InProgress, state.state)
	assert.Contains(t, state.View(), "No problems")

	updated, _ = state.Update(tea.KeyMsg{Type: tea.KeyTab})
	state = updated.(model)
	updated, _ = state.Update(tea.KeyMsg{Type: tea.KeyEnter})
	state = updated.(model)
	assert.False(t, state.hasDetails)
}

func TestModel_EditResult(t *testing.T) {
	m := initialModel()
	updated, _ := m.Update(editResultMsg{target: "/src/all.pro"})
	state := updated.(model)
	assert.Contains(t, state.editStatus, "Edited: /src/all.pro")
}
