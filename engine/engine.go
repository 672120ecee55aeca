package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/workbench/types"
)

// Listener receives run lifecycle notifications.
//
// Calls happen synchronously on the goroutine driving the model, in the
// order the model produces them. A run gets exactly one of OnRunEnd or
// OnRunError.
type Listener interface {
	OnRunStart(run *Run)
	OnRunEnd(run *Run)
	OnRunError(run *Run)
	OnToken(run *Run, token string)
}

// Model is code that can be invoked under tracing.
type Model interface {
	Invoke(ctx context.Context, input map[string]any, cfg Config) (map[string]any, error)
}

// Named is implemented by models that name their root run.
type Named interface {
	Name() string
}

// Config carries listeners and run options through an invocation.
// The zero value traces nothing and opens root runs.
type Config struct {
	Listeners []Listener
	Tags      []string
	// Metadata is stored under extra["metadata"] of runs opened with this config.
	Metadata map[string]any
	// RunName overrides the name of the next run opened. Not inherited.
	RunName string
	// Serialized describes the invoked object. Root runs only.
	Serialized map[string]any
	// ReferenceExampleID links the root run to a dataset example.
	ReferenceExampleID *uuid.UUID

	parent *Run
}

// Parent returns the run new runs will be nested under, or nil.
func (c Config) Parent() *Run {
	return c.parent
}

// Handle closes a run opened by Start.
type Handle struct {
	run       *Run
	listeners []Listener
	done      bool
}

// Start opens a run and notifies listeners. The returned Config opens
// children of this run.
func Start(cfg Config, name, runType string, inputs map[string]any) (*Handle, Config) {
	if cfg.RunName != "" {
		name = cfg.RunName
	}
	start := time.Now().UTC()
	run := &Run{
		ID:        uuid.New(),
		Name:      name,
		RunType:   runType,
		StartTime: start,
		Inputs:    inputs,
		Tags:      append([]string(nil), cfg.Tags...),
	}
	if cfg.Metadata != nil {
		run.Extra = map[string]any{"metadata": copyMap(cfg.Metadata)}
	}

	if p := cfg.parent; p != nil {
		parentID := p.ID
		run.ParentID = &parentID
		run.TraceID = p.TraceID
		run.DottedOrder = dottedOrder(p.DottedOrder, start, run.ID)
	} else {
		run.TraceID = run.ID
		run.DottedOrder = dottedOrder("", start, run.ID)
		run.Serialized = cfg.Serialized
		run.ReferenceExampleID = cfg.ReferenceExampleID
	}

	for _, l := range cfg.Listeners {
		l.OnRunStart(run)
	}

	child := cfg
	child.RunName = ""
	child.Serialized = nil
	child.ReferenceExampleID = nil
	child.parent = run
	return &Handle{run: run, listeners: cfg.Listeners}, child
}

// Run returns the live run.
func (h *Handle) Run() *Run {
	return h.run
}

// Token reports one streamed token.
func (h *Handle) Token(token string) {
	if h.done {
		return
	}
	for _, l := range h.listeners {
		l.OnToken(h.run, token)
	}
}

// End closes the run with outputs. A nil map is stored as empty so that a
// successful run is always distinguishable from a failed one.
func (h *Handle) End(outputs map[string]any) {
	if h.done {
		return
	}
	h.done = true
	if outputs == nil {
		outputs = map[string]any{}
	}
	end := time.Now().UTC()
	h.run.EndTime = &end
	h.run.Outputs = outputs
	for _, l := range h.listeners {
		l.OnRunEnd(h.run)
	}
}

// Fail closes the run with err. Outputs are cleared.
func (h *Handle) Fail(err error) {
	if h.done {
		return
	}
	h.done = true
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	end := time.Now().UTC()
	h.run.EndTime = &end
	h.run.Outputs = nil
	h.run.Error = &msg
	for _, l := range h.listeners {
		l.OnRunError(h.run)
	}
}

// Done reports whether End or Fail has been called.
func (h *Handle) Done() bool {
	return h.done
}

// Trace runs fn inside a new run and closes it with fn's result.
func Trace(cfg Config, name, runType string, inputs map[string]any, fn func(Config) (map[string]any, error)) (map[string]any, error) {
	h, child := Start(cfg, name, runType, inputs)
	out, err := fn(child)
	if err != nil {
		h.Fail(err)
		return nil, err
	}
	h.End(out)
	return out, nil
}

// Invoke calls m inside a chain run named after the model.
func Invoke(ctx context.Context, m Model, input map[string]any, cfg Config) (map[string]any, error) {
	name := "Model"
	if n, ok := m.(Named); ok {
		name = n.Name()
	}
	return Trace(cfg, name, types.RunTypeChain, input, func(child Config) (map[string]any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return m.Invoke(ctx, input, child)
	})
}
