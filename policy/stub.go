package policy

import (
	"sync"

	"github.com/pithecene-io/workbench/types"
)

// StubStore is an in-memory Store that records saves without persisting.
// Used for tests and dry runs.
type StubStore struct {
	mu sync.Mutex

	traces []*types.RunRecord
	// saved is the trace count at the last successful save.
	saved int

	// SaveCalls is the number of Save calls, including failures.
	SaveCalls int64

	// ErrorOnSave, if non-nil, is returned by Save.
	ErrorOnSave error
}

// NewStubStore creates an empty stub store.
func NewStubStore() *StubStore {
	return &StubStore{}
}

// AddTrace appends root runs and ignores everything else.
func (s *StubStore) AddTrace(src types.RecordSource) *types.RunRecord {
	if src == nil {
		return nil
	}
	rec := src.Record()
	if rec == nil || !rec.IsRoot() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces = append(s.traces, rec)
	return rec
}

// Traces returns a copy of the stored slice.
func (s *StubStore) Traces() []*types.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.RunRecord, len(s.traces))
	copy(out, s.traces)
	return out
}

// Save marks the current traces as persisted unless ErrorOnSave is set.
func (s *StubStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.SaveCalls++
	if s.ErrorOnSave != nil {
		return s.ErrorOnSave
	}
	s.saved = len(s.traces)
	return nil
}

// Saved returns how many traces the last successful save covered.
func (s *StubStore) Saved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}
