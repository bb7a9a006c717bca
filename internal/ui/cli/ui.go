package cli

import (
	"fmt"
	"path"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"qmakemodel/internal/core/buildsystem"
	"qmakemodel/internal/engine/project"
)

var docStyle = lipgloss.NewStyle().Margin(1, 2)

type item struct {
	title, desc string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title + i.desc }

type panelMode int

const (
	panelDiagnostics panelMode = iota
	panelProjects
)

type model struct {
	diagList    list.Model
	projectList list.Model
	mode        panelMode

	update     *buildsystem.Update
	state      buildsystem.State
	lastUpdate time.Time

	hasDetails bool
	editStatus string
}

type updateMsg struct {
	update *buildsystem.Update
	state  buildsystem.State
}

type editResultMsg struct {
	target string
	err    error
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return handleKeyActions(msg, m)
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		width := msg.Width - h
		height := msg.Height - v - 8
		if height < 5 {
			height = 5
		}
		m.diagList.SetSize(width, height)
		m.projectList.SetSize(width, height)
	case updateMsg:
		m.state = msg.state
		if msg.update == nil {
			return m, nil
		}
		m.update = msg.update
		m.lastUpdate = msg.update.PublishedAt

		diagItems := make([]list.Item, 0, len(m.update.Diagnostics))
		for _, d := range m.update.Diagnostics {
			diagItems = append(diagItems, item{
				title: d.Severity.String(),
				desc:  fmt.Sprintf("%s: %s", d.Path, d.Message),
			})
		}
		m.diagList.SetItems(diagItems)

		projectItems := make([]list.Item, 0, len(m.update.Nodes))
		for _, n := range m.update.Nodes {
			projectItems = append(projectItems, projectItem(n))
		}
		m.projectList.SetItems(projectItems)
	case editResultMsg:
		if msg.err != nil {
			m.editStatus = statusStyle.Render(fmt.Sprintf("Editor failed: %v", msg.err))
		} else {
			m.editStatus = statusStyle.Render(fmt.Sprintf("Edited: %s", msg.target))
		}
	}

	var cmd tea.Cmd
	if m.mode == panelDiagnostics {
		m.diagList, cmd = m.diagList.Update(msg)
	} else {
		m.projectList, cmd = m.projectList.Update(msg)
	}
	return m, cmd
}

func projectItem(n buildsystem.NodeSummary) item {
	exact, cumulative := fileCounts(n)
	kind := n.Kind.String()
	if n.Kind == project.KindPro {
		kind = n.ProjectType.String()
	}
	indent := ""
	for i := 0; i < n.Depth; i++ {
		indent += "  "
	}
	return item{
		title: indent + path.Base(n.Path),
		desc:  fmt.Sprintf("%s%s | exact=%d cumulative=%d", indent, kind, exact, cumulative),
	}
}

// selectedNode is the node under the cursor of the projects panel.
func (m model) selectedNode() (buildsystem.NodeSummary, bool) {
	if m.update == nil || len(m.update.Nodes) == 0 {
		return buildsystem.NodeSummary{}, false
	}
	idx := m.projectList.Index()
	if idx < 0 || idx >= len(m.update.Nodes) {
		idx = 0
	}
	return m.update.Nodes[idx], true
}

func (m model) View() string {
	generation := uint64(0)
	nodes, parts := 0, 0
	title := "qmake Project Model"
	if m.update != nil {
		generation = m.update.Generation
		nodes = len(m.update.Nodes)
		parts = len(m.update.ProjectParts)
		title += " " + path.Base(m.update.ProjectFile)
	}
	status := statusStyle.Render(fmt.Sprintf("Last update: %v | generation %d | %s | %d nodes | %d parts",
		m.lastUpdate.Format("15:04:05"), generation, m.state, nodes, parts))

	summary := successStyle.Render("No problems")
	if m.update != nil && len(m.update.Diagnostics) > 0 {
		errs, warns := 0, 0
		for _, d := range m.update.Diagnostics {
			if d.Severity == project.SeverityError {
				errs++
			} else {
				warns++
			}
		}
		summary = fmt.Sprintf("%s | %s",
			errorStyle.Render(fmt.Sprintf("%d errors", errs)),
			warningStyle.Render(fmt.Sprintf("%d warnings", warns)))
	}

	header := fmt.Sprintf("%s\n%s | %s\n", titleStyle.MarginLeft(2).Render(title), status, summary)
	help := renderHelp(m)

	body := m.diagList.View()
	if m.mode == panelProjects {
		body = renderProjectPanel(m)
	}
	if m.editStatus != "" {
		body += "\n\n" + m.editStatus
	}

	return docStyle.Render(header + "\n" + help + "\n\n" + body)
}

func initialModel() model {
	diagList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	diagList.Title = "Diagnostics"
	diagList.SetShowStatusBar(false)
	diagList.SetFilteringEnabled(true)

	projectList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	projectList.Title = "Project Tree"
	projectList.SetShowStatusBar(false)
	projectList.SetFilteringEnabled(true)

	return model{
		diagList:    diagList,
		projectList: projectList,
		mode:        panelDiagnostics,
		lastUpdate:  time.Now(),
	}
}
