package tui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/workbench/cli/reader"
	"github.com/pithecene-io/workbench/evaluate"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{ViewInspectTrace, true},
		{ViewStatsTraces, true},
		{ViewStatsEval, true},

		// Not supported: list and mutating commands
		{"list_traces", false},
		{"chain_show", false},
		{"inspect_chain", false},
		{"version", false},
		{"unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			got := IsTUISupported(tt.viewType)
			if got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	err := Run("list_traces", nil)
	if err == nil {
		t.Error("Expected error for unsupported view type")
	}
}

func sampleTrace() *reader.InspectTraceResponse {
	msg := "tool failed"
	return &reader.InspectTraceResponse{
		RunID:     "run-1",
		Name:      "Agent",
		State:     reader.StateSucceeded,
		StartedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Runs: []reader.TraceNode{
			{RunID: "run-1", Name: "Agent", RunType: "chain", State: reader.StateSucceeded, Duration: "1s", Input: "hi"},
			{RunID: "run-2", Name: "EchoLLM", RunType: "llm", State: reader.StateSucceeded, Depth: 1, Duration: "200ms"},
			{RunID: "run-3", Name: "search", RunType: "tool", State: reader.StateFailed, Depth: 1, Duration: "10ms", Error: &msg},
		},
	}
}

func TestInspectModel_CursorMoves(t *testing.T) {
	var m tea.Model = NewInspectModel(ViewInspectTrace, sampleTrace())

	down := tea.KeyMsg{Type: tea.KeyDown}
	for range 5 {
		m, _ = m.Update(down)
	}
	if got := m.(InspectModel).cursor; got != 2 {
		t.Fatalf("cursor = %d after overshooting down, want 2", got)
	}
	view := m.View()
	if !strings.Contains(view, "run-3") || !strings.Contains(view, "tool failed") {
		t.Errorf("selected run details missing:\n%s", view)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if got := m.(InspectModel).cursor; got != 1 {
		t.Errorf("cursor = %d after up, want 1", got)
	}
}

func TestInspectModel_Quit(t *testing.T) {
	m := NewInspectModel(ViewInspectTrace, sampleTrace())
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if next.View() != "" {
		t.Error("view should be empty after quit")
	}
}

func TestInspectModel_WrongData(t *testing.T) {
	m := NewInspectModel(ViewInspectTrace, "not a trace")
	if !strings.Contains(m.View(), "Invalid data type") {
		t.Errorf("unexpected view: %s", m.View())
	}
}

func TestTreeLines_Indents(t *testing.T) {
	out := TreeLines(sampleTrace().Runs, -1)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if !strings.Contains(lines[0], "  Agent [chain]") {
		t.Errorf("root line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "    EchoLLM [llm]") {
		t.Errorf("child line = %q", lines[1])
	}
}

func TestRenderStatsStatic(t *testing.T) {
	traces := RenderStatsStatic(ViewStatsTraces, &reader.TraceStats{Traces: 3, Succeeded: 2, Failed: 1, MeanDuration: "1.5s"})
	for _, want := range []string{"Trace Statistics", "Succeeded", "1.5s"} {
		if !strings.Contains(traces, want) {
			t.Errorf("stats_traces missing %q", want)
		}
	}

	eval := RenderStatsStatic(ViewStatsEval, []evaluate.ColumnSummary{
		{Column: "__model-exact", Stat: evaluate.StatMean, Value: 0.5, Count: 2},
	})
	if !strings.Contains(eval, "model-exact") || !strings.Contains(eval, "0.50") {
		t.Errorf("stats_eval missing summary:\n%s", eval)
	}

	empty := RenderStatsStatic(ViewStatsEval, []evaluate.ColumnSummary(nil))
	if !strings.Contains(empty, "No generated columns") {
		t.Errorf("empty stats_eval:\n%s", empty)
	}
}

func TestRunTypeStyle_DistinctPerType(t *testing.T) {
	seen := make(map[string]string)
	for _, rt := range []string{"chain", "llm", "tool", "other"} {
		fg := fmt.Sprint(RunTypeStyle(rt).GetForeground())
		if prev, ok := seen[fg]; ok {
			t.Errorf("%s and %s share color %s", prev, rt, fg)
		}
		seen[fg] = rt
	}
}
