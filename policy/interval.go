package policy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pithecene-io/workbench/log"
	"github.com/pithecene-io/workbench/types"
)

// ErrInvalidInterval is returned when the save interval is below 1.
var ErrInvalidInterval = errors.New("invalid save interval: must be >= 1")

// IntervalPolicy saves the store every N successful additions.
//
// The counter starts at 0 and only counts additions the store accepted, so
// with N=1 the first stored trace is saved immediately. Rejected (non-root)
// additions neither count nor save.
type IntervalPolicy struct {
	store  Store
	every  int64
	logger *log.Logger

	mu    sync.Mutex // guards count and serializes add-and-save
	count int64
	stats statsRecorder
}

// NewIntervalPolicy wraps store with a save every N additions.
func NewIntervalPolicy(store Store, every int, logger *log.Logger) (*IntervalPolicy, error) {
	if every < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidInterval, every)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &IntervalPolicy{store: store, every: int64(every), logger: logger}, nil
}

// Every returns N.
func (p *IntervalPolicy) Every() int {
	return int(p.every)
}

// AddTrace forwards src to the store and saves when the count reaches a
// multiple of N.
func (p *IntervalPolicy) AddTrace(src types.RecordSource) (*types.RunRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := p.store.AddTrace(src)
	p.stats.recordAddLocked(rec != nil)
	if rec == nil {
		return nil, nil
	}

	p.count++
	if p.count%p.every != 0 {
		return rec, nil
	}

	err := p.store.Save()
	p.stats.recordSaveLocked(err)
	if err != nil {
		p.logger.Error("trace save failed", map[string]any{
			"count": p.count,
			"error": err.Error(),
		})
		return rec, fmt.Errorf("save after %d traces: %w", p.count, err)
	}
	return rec, nil
}

// Traces returns the store's traces.
func (p *IntervalPolicy) Traces() []*types.RunRecord {
	return p.store.Traces()
}

// Save writes the store immediately without touching the counter.
func (p *IntervalPolicy) Save() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.store.Save()
	p.stats.recordSaveLocked(err)
	return err
}

// Stats returns a snapshot taken under the policy lock.
func (p *IntervalPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshotLocked()
}
