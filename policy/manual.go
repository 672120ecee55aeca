package policy

import "github.com/pithecene-io/workbench/types"

// ManualPolicy never saves on its own. Traces accumulate in the store until
// Save is called explicitly, e.g. at the end of a batch run.
type ManualPolicy struct {
	store Store
	stats statsRecorder
}

// NewManualPolicy wraps store without a save cadence.
func NewManualPolicy(store Store) *ManualPolicy {
	return &ManualPolicy{store: store}
}

// AddTrace forwards src to the store.
func (p *ManualPolicy) AddTrace(src types.RecordSource) (*types.RunRecord, error) {
	rec := p.store.AddTrace(src)
	p.stats.recordAdd(rec != nil)
	return rec, nil
}

// Traces returns the store's traces.
func (p *ManualPolicy) Traces() []*types.RunRecord {
	return p.store.Traces()
}

// Save writes the store.
func (p *ManualPolicy) Save() error {
	err := p.store.Save()
	p.stats.recordSave(err)
	return err
}

// Stats returns a snapshot of policy counters.
func (p *ManualPolicy) Stats() Stats {
	return p.stats.snapshot()
}
