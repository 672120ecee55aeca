package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/workbench/cli/reader"
)

// InspectModel is a Bubble Tea model for inspect views.
// For traces it shows the run tree with a cursor and the selected run's
// details below it.
type InspectModel struct {
	viewType string
	data     any
	cursor   int
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < m.runCount()-1 {
				m.cursor++
			}
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewInspectTrace:
		content = m.renderInspectTrace()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("↑/↓ select run • q quit")
	return content + "\n" + help
}

func (m InspectModel) runCount() int {
	data, ok := m.data.(*reader.InspectTraceResponse)
	if !ok {
		return 0
	}
	return len(data.Runs)
}

func (m InspectModel) renderInspectTrace() string {
	data, ok := m.data.(*reader.InspectTraceResponse)
	if !ok {
		return "Invalid data type for inspect_trace"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Trace " + data.Name))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Run ID:"),
		ValueStyle.Render(data.RunID)))
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("State:"),
		StateStyle(data.State).Render(data.State)))
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Started At:"),
		ValueStyle.Render(data.StartedAt.Format("2006-01-02 15:04:05"))))
	if len(data.Tags) > 0 {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Tags:"),
			ValueStyle.Render(strings.Join(data.Tags, ", "))))
	}

	b.WriteString("\n")
	b.WriteString(TreeLines(data.Runs, m.cursor))

	if m.cursor < len(data.Runs) {
		b.WriteString("\n")
		b.WriteString(renderNode(data.Runs[m.cursor]))
	}

	return BoxStyle.Render(b.String())
}

// TreeLines renders runs as an indented tree. The run at cursor is
// highlighted; pass -1 for none.
func TreeLines(runs []reader.TraceNode, cursor int) string {
	var b strings.Builder
	for i, n := range runs {
		marker := "  "
		if i == cursor {
			marker = "> "
		}
		name := n.Name
		if i == cursor {
			name = SelectedStyle.Render(name)
		}
		line := fmt.Sprintf("%s%s%s [%s] %s",
			marker, strings.Repeat("  ", n.Depth), name, RunTypeStyle(n.RunType).Render(n.RunType), n.Duration)
		b.WriteString(line)
		b.WriteString(" ")
		b.WriteString(StateStyle(n.State).Render(n.State))
		b.WriteString("\n")
	}
	return b.String()
}

func renderNode(n reader.TraceNode) string {
	rows := [][]string{
		{"Run", n.RunID},
		{"Input", n.Input},
		{"Output", n.Output},
		{"Events", fmt.Sprintf("%d", n.Events)},
	}
	if n.Error != nil {
		rows = append(rows, []string{"Error", *n.Error})
	}

	var b strings.Builder
	for _, row := range rows {
		value := ValueStyle.Render(row[1])
		if row[0] == "Error" {
			value = errorStyle.Render(row[1])
		}
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(row[0]+":"), value))
	}
	return b.String()
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
	Up   key.Binding
	Down key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "previous run"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "next run"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
