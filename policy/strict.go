package policy

import (
	"fmt"

	"github.com/pithecene-io/workbench/types"
)

// StrictPolicy saves the store after every stored trace.
//
// Equivalent to an IntervalPolicy with N=1 but without a counter: every
// accepted addition is followed by a full write, and a failed write is
// returned to the caller.
type StrictPolicy struct {
	store Store
	stats statsRecorder
}

// NewStrictPolicy wraps store with a save per addition.
func NewStrictPolicy(store Store) *StrictPolicy {
	return &StrictPolicy{store: store}
}

// AddTrace forwards src and saves if the store accepted it.
func (p *StrictPolicy) AddTrace(src types.RecordSource) (*types.RunRecord, error) {
	rec := p.store.AddTrace(src)
	p.stats.recordAdd(rec != nil)
	if rec == nil {
		return nil, nil
	}

	err := p.store.Save()
	p.stats.recordSave(err)
	if err != nil {
		return rec, fmt.Errorf("save trace %s: %w", rec.ID, err)
	}
	return rec, nil
}

// Traces returns the store's traces.
func (p *StrictPolicy) Traces() []*types.RunRecord {
	return p.store.Traces()
}

// Save writes the store.
func (p *StrictPolicy) Save() error {
	err := p.store.Save()
	p.stats.recordSave(err)
	return err
}

// Stats returns a snapshot of policy counters.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}
