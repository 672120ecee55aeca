// Package reader provides the read-side views for the workbench CLI.
//
// Views are built from already-loaded task data (trace records, chains,
// evaluations) so every read-only command renders the same payloads in
// json, table, yaml, or TUI form.
package reader

import "time"

// Run states.
const (
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
	StateRunning   = "running"
)

// TraceListItem is one row of traces list.
type TraceListItem struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Runs      int       `json:"runs"`
	Duration  string    `json:"duration"`
	StartedAt time.Time `json:"started_at"`
}

// TraceNode is one run inside an inspected trace, in depth-first order.
type TraceNode struct {
	RunID    string  `json:"run_id"`
	Name     string  `json:"name"`
	RunType  string  `json:"run_type"`
	State    string  `json:"state"`
	Depth    int     `json:"depth"`
	Duration string  `json:"duration"`
	Input    string  `json:"input,omitempty"`
	Output   string  `json:"output,omitempty"`
	Error    *string `json:"error,omitempty"`
	Events   int     `json:"events"`
}

// InspectTraceResponse describes one trace tree.
type InspectTraceResponse struct {
	RunID     string      `json:"run_id"`
	Name      string      `json:"name"`
	State     string      `json:"state"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   *time.Time  `json:"ended_at"`
	Tags      []string    `json:"tags"`
	Runs      []TraceNode `json:"runs"`
}

// TraceStats aggregates a set of traces.
type TraceStats struct {
	Traces       int    `json:"traces"`
	Succeeded    int    `json:"succeeded"`
	Failed       int    `json:"failed"`
	Runs         int    `json:"runs"`
	ChainRuns    int    `json:"chain_runs"`
	LLMRuns      int    `json:"llm_runs"`
	ToolRuns     int    `json:"tool_runs"`
	MeanDuration string `json:"mean_duration"`
}

// ListTracesOptions filters traces list.
type ListTracesOptions struct {
	State string
	Limit int
}

// ChainElementItem is one row of chain list.
type ChainElementItem struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
	Type    string `json:"type"`
	Args    string `json:"args"`
}

// ExportedItem is one trace read back from an export dataset.
type ExportedItem struct {
	Task      string    `json:"task"`
	Day       string    `json:"day"`
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Runs      int       `json:"runs"`
	StartedAt time.Time `json:"started_at"`
}
