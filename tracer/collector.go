// Package tracer turns finished engine runs into persisted traces.
package tracer

import (
	"go.uber.org/multierr"

	"github.com/pithecene-io/workbench/engine"
	"github.com/pithecene-io/workbench/log"
	"github.com/pithecene-io/workbench/metrics"
	"github.com/pithecene-io/workbench/policy"
	"github.com/pithecene-io/workbench/types"
)

// DefaultDenylist names the events stripped before persistence.
var DefaultDenylist = []string{engine.EventNewToken}

// Options configures a Collector.
type Options struct {
	// Logger defaults to a no-op logger.
	Logger *log.Logger
	// Metrics may be nil.
	Metrics *metrics.Collector
	// Denylist overrides DefaultDenylist when non-nil.
	Denylist []string
}

// Collector is an engine.Listener that persists finished root runs.
//
// Runs that ended in error are never stored. For the rest, denylisted events
// are removed from every run in the tree before the record goes to the
// policy. Save failures do not interrupt the model; they are logged and
// collected in Err.
type Collector struct {
	*engine.Tracer

	policy   policy.Policy
	logger   *log.Logger
	metrics  *metrics.Collector
	denylist map[string]struct{}
	err      error
}

// NewCollector creates a collector feeding pol.
func NewCollector(pol policy.Policy, opts Options) *Collector {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	names := opts.Denylist
	if names == nil {
		names = DefaultDenylist
	}
	deny := make(map[string]struct{}, len(names))
	for _, n := range names {
		deny[n] = struct{}{}
	}

	c := &Collector{
		policy:   pol,
		logger:   logger,
		metrics:  opts.Metrics,
		denylist: deny,
	}
	c.Tracer = engine.NewTracer(c.persist)
	return c
}

// OnRunStart counts the run and forwards to the tree builder.
func (c *Collector) OnRunStart(run *engine.Run) {
	c.metrics.IncRunStarted()
	c.Tracer.OnRunStart(run)
}

// OnRunEnd counts the run and forwards to the tree builder.
func (c *Collector) OnRunEnd(run *engine.Run) {
	c.metrics.IncRunCompleted()
	c.Tracer.OnRunEnd(run)
}

// OnRunError counts the run and forwards to the tree builder.
func (c *Collector) OnRunError(run *engine.Run) {
	c.metrics.IncRunFailed()
	c.Tracer.OnRunError(run)
}

// Err returns every save error seen so far, combined.
func (c *Collector) Err() error {
	return c.err
}

// Traces returns the policy's traces.
func (c *Collector) Traces() []*types.RunRecord {
	return c.policy.Traces()
}

func (c *Collector) persist(run *engine.Run) {
	if run.Outputs == nil {
		c.metrics.IncTraceRejected()
		c.logger.Debug("errored trace not persisted", map[string]any{
			"run_id": run.ID.String(),
			"name":   run.Name,
		})
		return
	}

	rec := run.Record()
	stripped := c.strip(rec)
	c.metrics.AddEventsStripped(stripped)

	stored, err := c.policy.AddTrace(rec)
	if stored != nil {
		c.metrics.IncTracePersisted()
	} else {
		c.metrics.IncTraceRejected()
	}
	if err != nil {
		c.err = multierr.Append(c.err, err)
		c.logger.Error("trace persistence failed", map[string]any{
			"run_id": run.ID.String(),
			"error":  err.Error(),
		})
	}
}

// strip removes denylisted events from rec and its descendants.
// Returns the number of events removed.
func (c *Collector) strip(rec *types.RunRecord) int {
	removed := 0
	rec.Walk(func(r *types.RunRecord) bool {
		if len(r.Events) == 0 {
			return true
		}
		kept := r.Events[:0:0]
		for _, e := range r.Events {
			if _, deny := c.denylist[e.Name()]; deny {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		r.Events = kept
		return true
	})
	return removed
}
