package source_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pithecene-io/workbench/frame"
	"github.com/pithecene-io/workbench/source"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// countingSource counts Frame calls.
type countingSource struct {
	f     *frame.Frame
	err   error
	calls int
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Frame() (*frame.Frame, error) {
	s.calls++
	return s.f, s.err
}

func TestTabular_LoadAndDelete(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.csv", "id,x\n1,a\n")

	src, err := source.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src.Name() != "a.csv" {
		t.Errorf("Name = %q, want a.csv", src.Name())
	}
	f, _ := src.Frame()
	if f.Len() != 1 {
		t.Errorf("rows = %d, want 1", f.Len())
	}

	if err := src.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := src.Delete(); err != nil {
		t.Errorf("second Delete: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("file still exists")
	}
}

func TestCombined_Memoizes(t *testing.T) {
	left := &countingSource{f: frame.New([]string{"id"}, []any{int64(1)})}
	right := &countingSource{f: frame.New([]string{"id"}, []any{int64(2)})}
	c := source.NewCombined(left, right, source.Concat())

	first, err := c.Frame()
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	second, _ := c.Frame()
	if first != second {
		t.Error("second Frame call returned a different frame")
	}
	if left.calls != 1 || right.calls != 1 {
		t.Errorf("operand calls = %d/%d, want 1/1", left.calls, right.calls)
	}
	if first.Len() != 2 {
		t.Errorf("rows = %d, want 2", first.Len())
	}
}

func TestCombined_ErrorsNotCached(t *testing.T) {
	boom := errors.New("boom")
	right := &countingSource{err: boom}
	c := source.NewCombined(nil, right, source.Concat())

	if _, err := c.Frame(); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	right.err = nil
	right.f = frame.New([]string{"a"}, []any{int64(1)})
	f, err := c.Frame()
	if err != nil || f.Len() != 1 {
		t.Errorf("Frame after recovery = %v, %v", f, err)
	}
}

func TestCombined_ConcatWithEmptyLeft(t *testing.T) {
	right := frame.New([]string{"id", "x"}, []any{int64(1), "a"})
	tests := []struct {
		name string
		left source.Source
	}{
		{"no left", nil},
		{"zero-row left", source.NewTabular("empty.csv", frame.New([]string{"other"}))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := source.NewCombined(tt.left, source.NewTabular("b.csv", right), source.Concat())
			got, err := c.Frame()
			if err != nil {
				t.Fatalf("Frame: %v", err)
			}
			if !frame.Equal(got, right) {
				t.Errorf("got %+v, want right frame unchanged", got)
			}
		})
	}
}

func TestCombined_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	a, err := source.Load(writeFile(t, dir, "a.csv", "id,x\n1,a\n2,b\n"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := source.Load(writeFile(t, dir, "b.csv", "id,x\n3,c\n"))
	if err != nil {
		t.Fatal(err)
	}
	labels, err := source.Load(writeFile(t, dir, "labels.jsonl", `{"id": 1, "label": "yes"}`+"\n"+`{"id": 3, "label": "no"}`+"\n"))
	if err != nil {
		t.Fatal(err)
	}

	ab := source.NewCombined(a, b, source.Concat())
	all := source.NewCombined(ab, labels, source.Merge(frame.MergeArgs{How: frame.JoinInner, On: frame.Keys{"id"}}))

	got, err := all.Frame()
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	want := frame.New([]string{"id", "x", "label"},
		[]any{int64(1), "a", "yes"},
		[]any{int64(3), "c", "no"})
	if !frame.Equal(got, want) {
		t.Errorf("got  %+v\nwant %+v", got, want)
	}
	if all.Name() != "a.csv+b.csv+labels.jsonl" {
		t.Errorf("Name = %q", all.Name())
	}
}

func TestCombination_JSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want source.Combination
	}{
		{"concat", `{"type":"concat","args":{"join":"inner"}}`, source.Combination{Kind: source.KindConcat, Concat: source.ConcatArgs{Join: "inner"}}},
		{"concat no args", `{"type":"concat"}`, source.Concat()},
		{"merge", `{"type":"merge","args":{"how":"left","on":"id"}}`, source.Merge(frame.MergeArgs{How: "left", On: frame.Keys{"id"}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got source.Combination
			if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got.Kind != tt.want.Kind || got.Concat != tt.want.Concat || got.Merge.How != tt.want.Merge.How ||
				len(got.Merge.On) != len(tt.want.Merge.On) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}

			data, err := json.Marshal(got)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var again source.Combination
			if err := json.Unmarshal(data, &again); err != nil {
				t.Fatalf("re-Unmarshal %s: %v", data, err)
			}
			if again.Kind != got.Kind {
				t.Errorf("kind changed through %s", data)
			}
		})
	}

	var bad source.Combination
	if err := json.Unmarshal([]byte(`{"type":"zip"}`), &bad); !errors.Is(err, source.ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}
}
