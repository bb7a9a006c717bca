package cli

import (
	"os"
	"os/exec"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

func handleKeyActions(msg tea.KeyMsg, m model) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab":
		if m.mode == panelDiagnostics {
			m.mode = panelProjects
		} else {
			m.mode = panelDiagnostics
		}
		return m, nil
	}

	if m.mode != panelProjects {
		var cmd tea.Cmd
		m.diagList, cmd = m.diagList.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "enter":
		_, m.hasDetails = m.selectedNode()
		return m, nil
	case "esc", "backspace":
		m.hasDetails = false
		return m, nil
	case "o":
		n, ok := m.selectedNode()
		if !ok {
			m.editStatus = statusStyle.Render("No project file selected.")
			return m, nil
		}
		return m, editFileCmd(n.Path)
	}

	var cmd tea.Cmd
	m.projectList, cmd = m.projectList.Update(msg)
	return m, cmd
}

// editFileCmd suspends the UI while $EDITOR runs on file. Saving the
// file triggers a reevaluation through the watcher.
func editFileCmd(file string) tea.Cmd {
	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	cmd := exec.Command(editor, file)
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		return editResultMsg{target: file, err: err}
	})
}
