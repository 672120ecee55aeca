package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/workbench/types"
)

// Tracer is a Listener that assembles finished trace trees.
//
// It keeps its own copy of every open run, keyed by id, and attaches each
// child to its parent's copy in start order. When a root run closes,
// successfully or not, the assembled tree is handed to the persist hook and
// forgotten.
type Tracer struct {
	runs    map[uuid.UUID]*Run
	persist func(*Run)
}

// NewTracer creates a tracer that calls persist for each finished root.
func NewTracer(persist func(*Run)) *Tracer {
	return &Tracer{runs: make(map[uuid.UUID]*Run), persist: persist}
}

// Open returns the number of runs not yet closed.
func (t *Tracer) Open() int {
	return len(t.runs)
}

// OnRunStart records the run and links it under its parent.
func (t *Tracer) OnRunStart(run *Run) {
	c := run.clone()
	t.runs[c.ID] = c
	if c.ParentID == nil {
		return
	}
	if parent, ok := t.runs[*c.ParentID]; ok {
		parent.Children = append(parent.Children, c)
	}
}

// OnRunEnd records outputs and end time.
func (t *Tracer) OnRunEnd(run *Run) {
	c, ok := t.runs[run.ID]
	if !ok {
		return
	}
	c.EndTime = run.EndTime
	c.Outputs = copyMap(run.Outputs)
	c.Error = nil
	t.finish(c)
}

// OnRunError records the error and end time.
func (t *Tracer) OnRunError(run *Run) {
	c, ok := t.runs[run.ID]
	if !ok {
		return
	}
	c.EndTime = run.EndTime
	c.Outputs = nil
	c.Error = run.Error
	t.finish(c)
}

// OnToken appends a new_token event to the run.
func (t *Tracer) OnToken(run *Run, token string) {
	c, ok := t.runs[run.ID]
	if !ok {
		return
	}
	c.Events = append(c.Events, types.Event{
		"name":   EventNewToken,
		"time":   time.Now().UTC().Format(time.RFC3339Nano),
		"kwargs": map[string]any{"token": token},
	})
}

func (t *Tracer) finish(c *Run) {
	// Children stay reachable from their parent's copy until the root closes.
	delete(t.runs, c.ID)
	if c.ParentID == nil && t.persist != nil {
		t.persist(c)
	}
}
