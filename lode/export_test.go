package lode

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/workbench/codec"
	"github.com/pithecene-io/workbench/metrics"
	"github.com/pithecene-io/workbench/types"
)

func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func testCodec(t *testing.T) *codec.Codec {
	t.Helper()
	reg := codec.NewRegistry(types.Namespace)
	if err := types.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return codec.New(reg, codec.WithEnv(nil))
}

func rootRecord(name string, start time.Time) *types.RunRecord {
	id := uuid.New()
	end := start.Add(time.Second)
	child := &types.RunRecord{
		ID:          uuid.New(),
		Name:        "llm",
		RunType:     types.RunTypeLLM,
		StartTime:   start,
		EndTime:     &end,
		Outputs:     map[string]any{},
		ParentRunID: &id,
		TraceID:     &id,
	}
	return &types.RunRecord{
		ID:        id,
		Name:      name,
		RunType:   types.RunTypeChain,
		StartTime: start,
		EndTime:   &end,
		Inputs:    map[string]any{"input": &types.Message{Role: types.RoleUser, Content: "hi"}},
		Outputs:   map[string]any{"output": &types.Message{Role: types.RoleAssistant, Content: "hello"}},
		ChildRuns: []*types.RunRecord{child},
		TraceID:   &id,
	}
}

func TestExport_WriteAndRead(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	ds, err := NewDataset("", factory)
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	if ds.ID() != DefaultDataset {
		t.Errorf("ID = %q, want %q", ds.ID(), DefaultDataset)
	}

	c := testCodec(t)
	m := metrics.NewCollector("demo", "interval", "echo", "fs")
	exp := NewExporter(ds, "demo", c, nil, m)

	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	a, b := rootRecord("first", t1), rootRecord("second", t2)

	n, err := exp.Export(t.Context(), []*types.RunRecord{b, a, a.ChildRuns[0]})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 2 {
		t.Fatalf("exported %d, want 2 (child ignored)", n)
	}

	// Re-export writes nothing new.
	n, err = exp.Export(t.Context(), []*types.RunRecord{a, b})
	if err != nil {
		t.Fatalf("second Export: %v", err)
	}
	if n != 0 {
		t.Errorf("second export wrote %d, want 0", n)
	}
	if s := m.Snapshot(); s.ExportWriteSuccess != 1 {
		t.Errorf("ExportWriteSuccess = %d, want 1", s.ExportWriteSuccess)
	}

	got, err := ReadExport(t.Context(), ds, "demo", c, nil)
	if err != nil {
		t.Fatalf("ReadExport: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("read %d traces, want 2", len(got))
	}
	if got[0].Record.ID != a.ID || got[1].Record.ID != b.ID {
		t.Errorf("order = %s, %s; want start time order", got[0].Record.Name, got[1].Record.Name)
	}
	if got[0].Day != "2026-03-01" || got[0].Task != "demo" {
		t.Errorf("partition = %s/%s", got[0].Task, got[0].Day)
	}
	msg, ok := got[0].Record.Outputs["output"].(*types.Message)
	if !ok || msg.Content != "hello" {
		t.Errorf("output = %#v, want revived message", got[0].Record.Outputs["output"])
	}
	if len(got[0].Record.ChildRuns) != 1 || got[0].Record.ChildRuns[0].Name != "llm" {
		t.Errorf("children = %+v", got[0].Record.ChildRuns)
	}
}

func TestReadExport_FiltersByTask(t *testing.T) {
	factory := sharedFactory(lode.NewMemory())
	ds, err := NewDataset("traces", factory)
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	c := testCodec(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for _, task := range []string{"a", "ab"} {
		if _, err := NewExporter(ds, task, c, nil, nil).Export(t.Context(), []*types.RunRecord{rootRecord(task, start)}); err != nil {
			t.Fatalf("Export %s: %v", task, err)
		}
	}

	got, err := ReadExport(t.Context(), ds, "a", c, nil)
	if err != nil {
		t.Fatalf("ReadExport: %v", err)
	}
	if len(got) != 1 || got[0].Record.Name != "a" {
		t.Errorf("task a = %+v", got)
	}

	all, err := ReadExport(t.Context(), ds, "", c, nil)
	if err != nil {
		t.Fatalf("ReadExport all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all tasks = %d, want 2", len(all))
	}
}

func TestReadExport_Empty(t *testing.T) {
	ds, err := NewDataset("traces", sharedFactory(lode.NewMemory()))
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	got, err := ReadExport(t.Context(), ds, "", testCodec(t), nil)
	if err != nil {
		t.Fatalf("ReadExport: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d traces from empty dataset", len(got))
	}
}

func TestNewDatasetFS(t *testing.T) {
	ds, err := NewDatasetFS("traces", t.TempDir())
	if err != nil {
		t.Fatalf("NewDatasetFS: %v", err)
	}
	n, err := NewExporter(ds, "demo", testCodec(t), nil, nil).Export(t.Context(),
		[]*types.RunRecord{rootRecord("fs", time.Now())})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 1 {
		t.Errorf("exported %d, want 1", n)
	}
}

func TestParseS3Path(t *testing.T) {
	tests := []struct {
		in, bucket, prefix string
	}{
		{"bucket", "bucket", ""},
		{"bucket/traces", "bucket", "traces"},
		{"bucket/a/b", "bucket", "a/b"},
	}
	for _, tt := range tests {
		b, p := ParseS3Path(tt.in)
		if b != tt.bucket || p != tt.prefix {
			t.Errorf("ParseS3Path(%q) = %q, %q", tt.in, b, p)
		}
	}
	if err := (&S3Config{}).Validate(); err == nil {
		t.Error("empty bucket accepted")
	}
}

func TestMatchesPartitionValue(t *testing.T) {
	if !matchesPartitionValue("traces/task=a/day=2026-03-01/x.jsonl", "task", "a") {
		t.Error("exact segment not matched")
	}
	if matchesPartitionValue("traces/task=ab/day=2026-03-01/x.jsonl", "task", "a") {
		t.Error("prefix segment matched")
	}
}
