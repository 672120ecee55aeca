// Package types defines core domain types for the workbench.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Run types used by the built-in models. RunType is free-form; these are
// the values the engine itself emits.
const (
	RunTypeChain = "chain"
	RunTypeLLM   = "llm"
	RunTypeTool  = "tool"
)

// ErrOutputsOnError is returned by Validate for a record carrying both
// an error and outputs.
var ErrOutputsOnError = errors.New("run with error must not have outputs")

// Event is one streamed sub-event of a run. Every event has a "name".
type Event map[string]any

// Name returns the event name, or "" if absent.
func (e Event) Name() string {
	s, _ := e["name"].(string)
	return s
}

// RunRecord is one node of a trace tree.
// Outputs is nil when the run ended in error.
type RunRecord struct {
	ID                 uuid.UUID      `json:"id"`
	Name               string         `json:"name"`
	StartTime          time.Time      `json:"start_time"`
	EndTime            *time.Time     `json:"end_time"`
	RunType            string         `json:"run_type"`
	Inputs             map[string]any `json:"inputs"`
	Outputs            map[string]any `json:"outputs"`
	Error              *string        `json:"error"`
	Events             []Event        `json:"events"`
	ChildRuns          []*RunRecord   `json:"child_runs"`
	Tags               []string       `json:"tags"`
	Extra              map[string]any `json:"extra"`
	Serialized         map[string]any `json:"serialized"`
	ReferenceExampleID *uuid.UUID     `json:"reference_example_id"`
	ParentRunID        *uuid.UUID     `json:"parent_run_id"`
	TraceID            *uuid.UUID     `json:"trace_id"`
	DottedOrder        string         `json:"dotted_order"`
}

// RecordSource is anything convertible to a RunRecord: engine runs and
// RunRecords themselves.
type RecordSource interface {
	Record() *RunRecord
}

// Record returns r itself.
func (r *RunRecord) Record() *RunRecord {
	return r
}

// IsRoot reports whether r has no parent.
func (r *RunRecord) IsRoot() bool {
	return r.ParentRunID == nil
}

// Failed reports whether r ended in error.
func (r *RunRecord) Failed() bool {
	return r.Error != nil
}

// Validate checks the error/outputs exclusivity for r and its descendants.
func (r *RunRecord) Validate() error {
	var err error
	r.Walk(func(n *RunRecord) bool {
		if n.Error != nil && n.Outputs != nil {
			err = ErrOutputsOnError
			return false
		}
		return true
	})
	return err
}

// Walk visits r and its descendants depth-first in child order.
// Returning false from fn stops the walk.
func (r *RunRecord) Walk(fn func(*RunRecord) bool) bool {
	if !fn(r) {
		return false
	}
	for _, child := range r.ChildRuns {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// Count returns the number of runs in the tree rooted at r.
func (r *RunRecord) Count() int {
	n := 0
	r.Walk(func(*RunRecord) bool {
		n++
		return true
	})
	return n
}

// Duration returns the run's wall time, or 0 while it is still running.
func (r *RunRecord) Duration() time.Duration {
	if r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
