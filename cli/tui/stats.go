package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/workbench/cli/reader"
	"github.com/pithecene-io/workbench/evaluate"
)

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewStatsTraces:
		content = m.renderStatsTraces()
	case ViewStatsEval:
		content = m.renderStatsEval()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderStatsTraces() string {
	data, ok := m.data.(*reader.TraceStats)
	if !ok {
		return "Invalid data type for stats_traces"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Trace Statistics"))
	b.WriteString("\n\n")

	traces := []string{
		m.renderStatBox("Traces", fmt.Sprintf("%d", data.Traces), highlightColor),
		m.renderStatBox("Succeeded", fmt.Sprintf("%d", data.Succeeded), successColor),
		m.renderStatBox("Failed", fmt.Sprintf("%d", data.Failed), errorColor),
		m.renderStatBox("Mean", data.MeanDuration, primaryColor),
	}
	runs := []string{
		m.renderStatBox("Runs", fmt.Sprintf("%d", data.Runs), highlightColor),
		m.renderStatBox("Chain", fmt.Sprintf("%d", data.ChainRuns), mutedColor),
		m.renderStatBox("LLM", fmt.Sprintf("%d", data.LLMRuns), mutedColor),
		m.renderStatBox("Tool", fmt.Sprintf("%d", data.ToolRuns), mutedColor),
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, traces...))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, runs...))

	return b.String()
}

func (m StatsModel) renderStatsEval() string {
	data, ok := m.data.([]evaluate.ColumnSummary)
	if !ok {
		return "Invalid data type for stats_eval"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Evaluation Summary"))
	b.WriteString("\n\n")

	if len(data) == 0 {
		b.WriteString(HelpStyle.Render("No generated columns yet"))
		return b.String()
	}

	boxes := make([]string, 0, len(data))
	for _, s := range data {
		color := highlightColor
		if s.Stat == evaluate.StatMean {
			color = successColor
		}
		label := fmt.Sprintf("%s (%s)", strings.TrimPrefix(s.Column, "__"), s.Stat)
		boxes = append(boxes, m.renderStatBox(label, fmt.Sprintf("%.2f", s.Value), color))
	}

	// Wrap at four boxes per row.
	for start := 0; start < len(boxes); start += 4 {
		end := min(start+4, len(boxes))
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes[start:end]...))
		b.WriteString("\n")
	}

	return b.String()
}

func (m StatsModel) renderStatBox(label, value string, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(value)
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	model := NewStatsModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
