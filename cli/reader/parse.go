package reader

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pithecene-io/workbench/evaluate"
	"github.com/pithecene-io/workbench/source"
	"github.com/pithecene-io/workbench/types"
)

// Errors returned by MatchRunID.
var (
	ErrTraceNotFound = errors.New("trace not found")
	ErrAmbiguousID   = errors.New("run id prefix is ambiguous")
)

// PreviewLen bounds Preview output, in runes.
const PreviewLen = 60

// MatchRunID returns the trace whose id equals id or starts with it.
func MatchRunID(traces []*types.RunRecord, id string) (*types.RunRecord, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrTraceNotFound)
	}

	var found *types.RunRecord
	for _, r := range traces {
		full := r.ID.String()
		if full == id {
			return r, nil
		}
		if strings.HasPrefix(full, id) {
			if found != nil {
				return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, id)
			}
			found = r
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrTraceNotFound, id)
	}
	return found, nil
}

// Preview renders a run's inputs or outputs as one short line.
// A single entry shows only its value; several show key=value pairs in
// key order.
func Preview(values map[string]any) string {
	if len(values) == 0 {
		return ""
	}
	var s string
	if len(values) == 1 {
		for _, v := range values {
			s = evaluate.Text(v)
		}
	} else {
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+evaluate.Text(values[k]))
		}
		s = strings.Join(parts, " ")
	}
	return truncate(strings.Join(strings.Fields(s), " "), PreviewLen)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func combinationArgs(c source.Combination) string {
	if !c.IsMerge() {
		if c.Concat.Join == "" {
			return "join=outer"
		}
		return "join=" + c.Concat.Join
	}
	m := c.Merge
	how := m.How
	if how == "" {
		how = "inner"
	}
	parts := []string{"how=" + how}
	if len(m.On) > 0 {
		parts = append(parts, "on="+strings.Join(m.On, ","))
	}
	if len(m.LeftOn) > 0 {
		parts = append(parts, "left_on="+strings.Join(m.LeftOn, ","))
	}
	if len(m.RightOn) > 0 {
		parts = append(parts, "right_on="+strings.Join(m.RightOn, ","))
	}
	if len(m.Suffixes) > 0 {
		parts = append(parts, "suffixes="+strings.Join(m.Suffixes, ","))
	}
	return strings.Join(parts, " ")
}
