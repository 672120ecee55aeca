package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("tasks/demo", "interval", "echo", "fs")

	c.IncRunStarted()
	c.IncRunStarted()
	c.IncRunCompleted()
	c.IncRunFailed()
	c.IncTracePersisted()
	c.IncTraceRejected()
	c.IncTraceRejected()
	c.AddEventsStripped(5)
	c.AddEventsStripped(2)
	c.IncChainRecompute()
	c.IncCombineFailure()
	c.IncModelLaunchSuccess()
	c.IncModelLaunchFailure()
	c.IncIPCDecodeErrors()
	c.IncExportWriteSuccess()
	c.IncExportWriteFailure()

	s := c.Snapshot()

	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"RunsStarted", s.RunsStarted, 2},
		{"RunsCompleted", s.RunsCompleted, 1},
		{"RunsFailed", s.RunsFailed, 1},
		{"TracesPersisted", s.TracesPersisted, 1},
		{"TracesRejected", s.TracesRejected, 2},
		{"EventsStripped", s.EventsStripped, 7},
		{"ChainRecomputes", s.ChainRecomputes, 1},
		{"CombineFailures", s.CombineFailures, 1},
		{"ModelLaunchSuccess", s.ModelLaunchSuccess, 1},
		{"ModelLaunchFailure", s.ModelLaunchFailure, 1},
		{"IPCDecodeErrors", s.IPCDecodeErrors, 1},
		{"ExportWriteSuccess", s.ExportWriteSuccess, 1},
		{"ExportWriteFailure", s.ExportWriteFailure, 1},
	}
	for _, tt := range checks {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestCollector_Dimensions(t *testing.T) {
	s := NewCollector("tasks/eval", "strict", "process", "s3").Snapshot()

	if s.Task != "tasks/eval" {
		t.Errorf("Task = %q, want %q", s.Task, "tasks/eval")
	}
	if s.Policy != "strict" {
		t.Errorf("Policy = %q, want %q", s.Policy, "strict")
	}
	if s.Model != "process" {
		t.Errorf("Model = %q, want %q", s.Model, "process")
	}
	if s.StorageBackend != "s3" {
		t.Errorf("StorageBackend = %q, want %q", s.StorageBackend, "s3")
	}
}

func TestCollector_AbsorbPolicyStats(t *testing.T) {
	c := NewCollector("t", "interval", "echo", "")
	c.AbsorbPolicyStats(4, 1)
	c.AbsorbPolicyStats(6, 1)

	s := c.Snapshot()
	if s.Saves != 6 {
		t.Errorf("Saves = %d, want 6 (absorb replaces, not adds)", s.Saves)
	}
	if s.SaveFailures != 1 {
		t.Errorf("SaveFailures = %d, want 1", s.SaveFailures)
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("t", "strict", "echo", "")
	c.IncRunStarted()

	s1 := c.Snapshot()
	c.IncRunStarted()
	c.IncRunCompleted()

	if s1.RunsStarted != 1 || s1.RunsCompleted != 0 {
		t.Errorf("s1 changed after mutation: %+v", s1)
	}
	s2 := c.Snapshot()
	if s2.RunsStarted != 2 || s2.RunsCompleted != 1 {
		t.Errorf("s2 = %+v, want RunsStarted=2 RunsCompleted=1", s2)
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	c.IncRunStarted()
	c.IncRunCompleted()
	c.IncRunFailed()
	c.IncTracePersisted()
	c.IncTraceRejected()
	c.AddEventsStripped(3)
	c.IncChainRecompute()
	c.IncCombineFailure()
	c.IncModelLaunchSuccess()
	c.IncModelLaunchFailure()
	c.IncIPCDecodeErrors()
	c.IncExportWriteSuccess()
	c.IncExportWriteFailure()
	c.AbsorbPolicyStats(1, 1)

	if s := c.Snapshot(); s != (Snapshot{}) {
		t.Errorf("nil collector snapshot = %+v, want zero", s)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("t", "strict", "echo", "")
	const goroutines = 10
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.IncRunStarted()
				c.AddEventsStripped(1)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)
	if s.RunsStarted != want {
		t.Errorf("RunsStarted = %d, want %d", s.RunsStarted, want)
	}
	if s.EventsStripped != want {
		t.Errorf("EventsStripped = %d, want %d", s.EventsStripped, want)
	}
}
