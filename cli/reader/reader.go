package reader

import (
	"sort"
	"time"

	"github.com/pithecene-io/workbench/chain"
	"github.com/pithecene-io/workbench/lode"
	"github.com/pithecene-io/workbench/types"
)

// ListTraces returns list rows for traces, newest first.
// A non-zero Limit keeps only the newest Limit rows after filtering.
func ListTraces(traces []*types.RunRecord, opts ListTracesOptions) []TraceListItem {
	items := make([]TraceListItem, 0, len(traces))
	for _, r := range traces {
		state := stateOf(r)
		if opts.State != "" && state != opts.State {
			continue
		}
		items = append(items, TraceListItem{
			RunID:     r.ID.String(),
			Name:      r.Name,
			State:     state,
			Runs:      r.Count(),
			Duration:  formatDuration(r),
			StartedAt: r.StartTime,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].StartedAt.After(items[j].StartedAt)
	})
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

// InspectTrace describes the trace whose run id starts with id.
func InspectTrace(traces []*types.RunRecord, id string) (*InspectTraceResponse, error) {
	r, err := MatchRunID(traces, id)
	if err != nil {
		return nil, err
	}

	resp := &InspectTraceResponse{
		RunID:     r.ID.String(),
		Name:      r.Name,
		State:     stateOf(r),
		StartedAt: r.StartTime,
		EndedAt:   r.EndTime,
		Tags:      r.Tags,
	}
	var walk func(n *types.RunRecord, depth int)
	walk = func(n *types.RunRecord, depth int) {
		resp.Runs = append(resp.Runs, TraceNode{
			RunID:    n.ID.String(),
			Name:     n.Name,
			RunType:  n.RunType,
			State:    stateOf(n),
			Depth:    depth,
			Duration: formatDuration(n),
			Input:    Preview(n.Inputs),
			Output:   Preview(n.Outputs),
			Error:    n.Error,
			Events:   len(n.Events),
		})
		for _, child := range n.ChildRuns {
			walk(child, depth+1)
		}
	}
	walk(r, 0)
	return resp, nil
}

// StatsTraces aggregates traces and all of their runs.
func StatsTraces(traces []*types.RunRecord) *TraceStats {
	stats := &TraceStats{Traces: len(traces)}
	var total time.Duration
	for _, r := range traces {
		if r.Failed() {
			stats.Failed++
		} else {
			stats.Succeeded++
		}
		total += r.Duration()
		r.Walk(func(n *types.RunRecord) bool {
			stats.Runs++
			switch n.RunType {
			case types.RunTypeChain:
				stats.ChainRuns++
			case types.RunTypeLLM:
				stats.LLMRuns++
			case types.RunTypeTool:
				stats.ToolRuns++
			}
			return true
		})
	}
	if len(traces) > 0 {
		stats.MeanDuration = (total / time.Duration(len(traces))).Round(time.Millisecond).String()
	} else {
		stats.MeanDuration = "0s"
	}
	return stats
}

// ListExported returns one row per exported trace, in the order given.
func ListExported(traces []lode.ExportedTrace) []ExportedItem {
	items := make([]ExportedItem, 0, len(traces))
	for _, tr := range traces {
		items = append(items, ExportedItem{
			Task:      tr.Task,
			Day:       tr.Day,
			RunID:     tr.Record.ID.String(),
			Name:      tr.Record.Name,
			State:     stateOf(tr.Record),
			Runs:      tr.Record.Count(),
			StartedAt: tr.Record.StartTime,
		})
	}
	return items
}

// ListChain returns one row per chain element. Row and column counts are
// those of the element's own file, not of the joined result.
func ListChain(c *chain.Chain) []ChainElementItem {
	elems := c.Elements()
	items := make([]ChainElementItem, 0, len(elems))
	for i, e := range elems {
		item := ChainElementItem{
			Index: i,
			Name:  e.Name(),
			Type:  string(e.Combination.Kind),
			Args:  combinationArgs(e.Combination),
		}
		if item.Type == "" {
			item.Type = "concat"
		}
		if f, err := e.Source.Frame(); err == nil {
			item.Rows = f.Len()
			item.Columns = len(f.Columns)
		}
		items = append(items, item)
	}
	return items
}

func stateOf(r *types.RunRecord) string {
	switch {
	case r.Failed():
		return StateFailed
	case r.EndTime == nil:
		return StateRunning
	default:
		return StateSucceeded
	}
}

func formatDuration(r *types.RunRecord) string {
	if r.EndTime == nil {
		return "-"
	}
	return r.Duration().Round(time.Millisecond).String()
}
