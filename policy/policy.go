// Package policy decides when a trace store is written to disk.
//
// A policy wraps a Store by composition: it forwards additions, keeps its own
// counter state, and triggers Save according to its cadence. One policy is
// constructed per task.
package policy

import (
	"sync"

	"github.com/pithecene-io/workbench/types"
)

// Store is the persistence surface a policy drives.
// tracelog.Store satisfies it.
type Store interface {
	// AddTrace appends a root run. Returns nil when the run is not a root.
	AddTrace(src types.RecordSource) *types.RunRecord

	// Traces returns the stored roots in insertion order.
	Traces() []*types.RunRecord

	// Save writes the whole store.
	Save() error
}

// Policy is a Store with a save cadence.
type Policy interface {
	// AddTrace forwards to the store and saves if the cadence says so.
	// The stored record is returned even when the triggered save fails.
	AddTrace(src types.RecordSource) (*types.RunRecord, error)

	// Traces returns the underlying store's traces.
	Traces() []*types.RunRecord

	// Save forces a write regardless of cadence.
	Save() error

	// Stats returns a consistent snapshot of the policy counters.
	Stats() Stats
}

// Stats are policy observability counters.
type Stats struct {
	// TotalTraces is the number of AddTrace calls.
	TotalTraces int64
	// TracesStored is the number of additions the store accepted.
	TracesStored int64
	// TracesRejected is the number of non-root runs refused.
	TracesRejected int64
	// SaveCount is the number of successful saves.
	SaveCount int64
	// SaveErrors is the number of failed saves.
	SaveErrors int64
	// Pending is the number of stored traces not yet saved.
	Pending int64
}

// statsRecorder is a mutex-guarded Stats shared by the policies.
//
// Lock discipline: the plain methods take the recorder lock. IntervalPolicy
// holds its own lock across add-and-save and uses the Locked variants.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// recordAdd counts one addition. stored reports whether the store accepted it.
func (r *statsRecorder) recordAdd(stored bool) {
	r.mu.Lock()
	r.recordAddLocked(stored)
	r.mu.Unlock()
}

// recordSave counts one save attempt.
func (r *statsRecorder) recordSave(err error) {
	r.mu.Lock()
	r.recordSaveLocked(err)
	r.mu.Unlock()
}

// --- Locked variants ---
// Caller must hold the owning policy's lock.

func (r *statsRecorder) recordAddLocked(stored bool) {
	r.stats.TotalTraces++
	if stored {
		r.stats.TracesStored++
		r.stats.Pending++
	} else {
		r.stats.TracesRejected++
	}
}

func (r *statsRecorder) recordSaveLocked(err error) {
	if err != nil {
		r.stats.SaveErrors++
		return
	}
	r.stats.SaveCount++
	r.stats.Pending = 0
}

func (r *statsRecorder) snapshotLocked() Stats {
	return r.stats
}
