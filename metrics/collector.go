// Package metrics provides per-session counters for a workbench task.
//
// The Collector accumulates counters while a command runs. It is a leaf
// package with no internal dependencies. Save-cadence counters are absorbed
// from policy.Stats at the end of a session rather than recorded live,
// avoiding double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
type Snapshot struct {
	// Runs observed through the engine callbacks
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64

	// Trace persistence
	TracesPersisted int64
	TracesRejected  int64
	EventsStripped  int64

	// Save cadence (absorbed from policy.Stats)
	Saves        int64
	SaveFailures int64

	// Source chain
	ChainRecomputes int64
	CombineFailures int64

	// Process models
	ModelLaunchSuccess int64
	ModelLaunchFailure int64
	IPCDecodeErrors    int64

	// Lode export
	ExportWriteSuccess int64
	ExportWriteFailure int64

	// Dimensions (informational, set at construction)
	Task           string
	Policy         string
	Model          string
	StorageBackend string
}

// Collector accumulates counters for one session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	runsStarted   int64
	runsCompleted int64
	runsFailed    int64

	tracesPersisted int64
	tracesRejected  int64
	eventsStripped  int64

	saves        int64
	saveFailures int64

	chainRecomputes int64
	combineFailures int64

	modelLaunchSuccess int64
	modelLaunchFailure int64
	ipcDecodeErrors    int64

	exportWriteSuccess int64
	exportWriteFailure int64

	task           string
	policy         string
	model          string
	storageBackend string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(task, policy, model, storageBackend string) *Collector {
	return &Collector{
		task:           task,
		policy:         policy,
		model:          model,
		storageBackend: storageBackend,
	}
}

// add applies fn under the lock. Nil-receiver safe.
func (c *Collector) add(fn func()) {
	if c == nil {
		return
	}
	c.mu.Lock()
	fn()
	c.mu.Unlock()
}

// --- Runs ---

// IncRunStarted records a run start notification.
func (c *Collector) IncRunStarted() { c.add(func() { c.runsStarted++ }) }

// IncRunCompleted records a run that ended with outputs.
func (c *Collector) IncRunCompleted() { c.add(func() { c.runsCompleted++ }) }

// IncRunFailed records a run that ended in error.
func (c *Collector) IncRunFailed() { c.add(func() { c.runsFailed++ }) }

// --- Trace persistence ---

// IncTracePersisted records a root run accepted by the trace store.
func (c *Collector) IncTracePersisted() { c.add(func() { c.tracesPersisted++ }) }

// IncTraceRejected records a run the trace store refused (non-root or errored).
func (c *Collector) IncTraceRejected() { c.add(func() { c.tracesRejected++ }) }

// AddEventsStripped records events removed before persistence.
func (c *Collector) AddEventsStripped(n int) {
	c.add(func() { c.eventsStripped += int64(n) })
}

// --- Source chain ---

// IncChainRecompute records a rebuild of the combined source graph.
func (c *Collector) IncChainRecompute() { c.add(func() { c.chainRecomputes++ }) }

// IncCombineFailure records a concat or merge that failed.
func (c *Collector) IncCombineFailure() { c.add(func() { c.combineFailures++ }) }

// --- Process models ---

// IncModelLaunchSuccess records a model process that started.
func (c *Collector) IncModelLaunchSuccess() { c.add(func() { c.modelLaunchSuccess++ }) }

// IncModelLaunchFailure records a model process that failed to start.
func (c *Collector) IncModelLaunchFailure() { c.add(func() { c.modelLaunchFailure++ }) }

// IncIPCDecodeErrors records a frame decode error.
func (c *Collector) IncIPCDecodeErrors() { c.add(func() { c.ipcDecodeErrors++ }) }

// --- Lode export ---
// Export counters are per-call, not per-record.

// IncExportWriteSuccess records a successful Lode write.
func (c *Collector) IncExportWriteSuccess() { c.add(func() { c.exportWriteSuccess++ }) }

// IncExportWriteFailure records a failed Lode write.
func (c *Collector) IncExportWriteFailure() { c.add(func() { c.exportWriteFailure++ }) }

// AbsorbPolicyStats copies save counters from policy.Stats.
// Called once at the end of a session with the final policy snapshot.
func (c *Collector) AbsorbPolicyStats(saves, saveFailures int64) {
	c.add(func() {
		c.saves = saves
		c.saveFailures = saveFailures
	})
}

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		RunsStarted:   c.runsStarted,
		RunsCompleted: c.runsCompleted,
		RunsFailed:    c.runsFailed,

		TracesPersisted: c.tracesPersisted,
		TracesRejected:  c.tracesRejected,
		EventsStripped:  c.eventsStripped,

		Saves:        c.saves,
		SaveFailures: c.saveFailures,

		ChainRecomputes: c.chainRecomputes,
		CombineFailures: c.combineFailures,

		ModelLaunchSuccess: c.modelLaunchSuccess,
		ModelLaunchFailure: c.modelLaunchFailure,
		IPCDecodeErrors:    c.ipcDecodeErrors,

		ExportWriteSuccess: c.exportWriteSuccess,
		ExportWriteFailure: c.exportWriteFailure,

		Task:           c.task,
		Policy:         c.policy,
		Model:          c.model,
		StorageBackend: c.storageBackend,
	}
}
