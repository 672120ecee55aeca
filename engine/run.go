// Package engine is the execution side of tracing: it opens and closes runs
// around model code and notifies listeners.
//
// Runs nest through Config: Start returns a child Config whose runs are
// parented to the run just opened. Listeners receive the live *Run; a
// listener that keeps state must copy what it needs (see Tracer).
package engine

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/workbench/types"
)

// EventNewToken is the name of a streamed-token event.
const EventNewToken = "new_token"

// Run is one in-flight or finished operation.
type Run struct {
	ID                 uuid.UUID
	ParentID           *uuid.UUID
	TraceID            uuid.UUID
	DottedOrder        string
	Name               string
	RunType            string
	StartTime          time.Time
	EndTime            *time.Time
	Inputs             map[string]any
	Outputs            map[string]any
	Error              *string
	Events             []types.Event
	Tags               []string
	Extra              map[string]any
	Serialized         map[string]any
	ReferenceExampleID *uuid.UUID
	Children           []*Run
}

// IsRoot reports whether the run has no parent.
func (r *Run) IsRoot() bool {
	return r.ParentID == nil
}

// Record converts r and its children into a RunRecord tree.
// Maps and slices are copied one level deep; values are shared.
func (r *Run) Record() *types.RunRecord {
	rec := &types.RunRecord{
		ID:                 r.ID,
		Name:               r.Name,
		StartTime:          r.StartTime,
		EndTime:            r.EndTime,
		RunType:            r.RunType,
		Inputs:             copyMap(r.Inputs),
		Outputs:            copyMap(r.Outputs),
		Error:              r.Error,
		Tags:               append([]string(nil), r.Tags...),
		Extra:              copyMap(r.Extra),
		Serialized:         copyMap(r.Serialized),
		ReferenceExampleID: r.ReferenceExampleID,
		ParentRunID:        r.ParentID,
		DottedOrder:        r.DottedOrder,
	}
	traceID := r.TraceID
	rec.TraceID = &traceID

	if r.Events != nil {
		rec.Events = make([]types.Event, len(r.Events))
		for i, e := range r.Events {
			rec.Events[i] = copyMap(e)
		}
	}
	if r.Children != nil {
		rec.ChildRuns = make([]*types.RunRecord, len(r.Children))
		for i, child := range r.Children {
			rec.ChildRuns[i] = child.Record()
		}
	}
	return rec
}

// clone returns a copy of r without children.
func (r *Run) clone() *Run {
	c := *r
	c.Inputs = copyMap(r.Inputs)
	c.Outputs = copyMap(r.Outputs)
	c.Extra = copyMap(r.Extra)
	c.Tags = append([]string(nil), r.Tags...)
	c.Events = append([]types.Event(nil), r.Events...)
	c.Children = nil
	return &c
}

// dottedOrder returns the ordering key for a run started at t.
// Keys sort lexically in start order within a trace.
func dottedOrder(parent string, t time.Time, id uuid.UUID) string {
	stamp := t.UTC().Format("20060102T150405.000000Z")
	own := strings.Replace(stamp, ".", "", 1) + id.String()
	if parent == "" {
		return own
	}
	return parent + "." + own
}

func copyMap[M ~map[string]any](m M) M {
	if m == nil {
		return nil
	}
	out := make(M, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
