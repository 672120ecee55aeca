// Package tui renders the --tui views of the workbench CLI with Bubble Tea.
//
// Views are read-only and take the same payloads the json, yaml, and table
// renderers print, so a TUI never shows data the plain output lacks.
package tui

import "github.com/charmbracelet/lipgloss"

// Palette. Run types and states each get a fixed color so a trace tree
// reads the same in every view.
var (
	primaryColor   = lipgloss.Color("#7C3AED")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	highlightColor = lipgloss.Color("#3B82F6")
	textColor      = lipgloss.Color("#FFFFFF")

	chainColor = lipgloss.Color("#A78BFA")
	llmColor   = lipgloss.Color("#38BDF8")
	toolColor  = lipgloss.Color("#FBBF24")
)

// Layout styles.
var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).MarginBottom(1)
	LabelStyle = lipgloss.NewStyle().Foreground(mutedColor).Width(12)
	ValueStyle = lipgloss.NewStyle().Foreground(textColor)
	HelpStyle  = lipgloss.NewStyle().Foreground(mutedColor).MarginTop(1)
	BoxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	// SelectedStyle marks the cursor row of the run tree.
	SelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(highlightColor)
)

// Stat box styles. The border and value colors are set per box.
var (
	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)
	StatValueStyle = lipgloss.NewStyle().Bold(true).Align(lipgloss.Center)
	StatLabelStyle = lipgloss.NewStyle().Foreground(mutedColor).Align(lipgloss.Center)
)

var (
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
)

// StateStyle returns the style for a run state.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case "succeeded":
		return successStyle
	case "running":
		return warningStyle
	case "failed":
		return errorStyle
	default:
		return ValueStyle
	}
}

// RunTypeStyle returns the style for a run type tag.
func RunTypeStyle(runType string) lipgloss.Style {
	switch runType {
	case "chain":
		return lipgloss.NewStyle().Foreground(chainColor)
	case "llm":
		return lipgloss.NewStyle().Foreground(llmColor)
	case "tool":
		return lipgloss.NewStyle().Foreground(toolColor)
	default:
		return lipgloss.NewStyle().Foreground(mutedColor)
	}
}
