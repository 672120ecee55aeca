package frame

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestReadCSV_InfersColumnTypes(t *testing.T) {
	in := "id,score,ok,name,mixed\n1,0.5,true,ada,1\n2,,False,,x\n"
	f, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}

	want := New(
		[]string{"id", "score", "ok", "name", "mixed"},
		[]any{int64(1), 0.5, true, "ada", "1"},
		[]any{int64(2), nil, false, nil, "x"},
	)
	if !Equal(f, want) {
		t.Errorf("frame = %+v\nwant    %+v", f, want)
	}
}

func TestReadCSV_Empty(t *testing.T) {
	f, err := ReadCSV(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if !f.Empty() {
		t.Errorf("frame = %+v, want empty", f)
	}
}

func TestReadJSONL_KeyOrderAndNumbers(t *testing.T) {
	in := `{"b": 1, "a": 2.5}

{"a": 3, "c": {"x": 1}, "b": null}
`
	f, err := ReadJSONL(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	if !reflect.DeepEqual(f.Columns, []string{"b", "a", "c"}) {
		t.Errorf("columns = %v, want [b a c]", f.Columns)
	}
	if f.Rows[0][0] != int64(1) || f.Rows[0][1] != 2.5 || f.Rows[0][2] != nil {
		t.Errorf("row 0 = %v", f.Rows[0])
	}
	if f.Rows[1][0] != nil || f.Rows[1][1] != int64(3) {
		t.Errorf("row 1 = %v", f.Rows[1])
	}
	if _, ok := f.Rows[1][2].(map[string]any); !ok {
		t.Errorf("nested value = %T, want map", f.Rows[1][2])
	}
}

func TestReadJSONL_NotObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"array", "[1,2]\n"},
		{"two objects on one line", "{\"a\":1}{\"a\":2}\n"},
		{"trailing garbage", "{\"a\":1} garbage\n"},
		{"trailing garbage on a later line", "{\"a\":1}\n{\"a\":2},\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ReadJSONL(strings.NewReader(tt.input))
			if err == nil {
				t.Fatalf("expected error, got columns %v rows %v", f.Columns, f.Rows)
			}
		})
	}
}

func TestReadJSONL_TrailingWhitespace(t *testing.T) {
	f, err := ReadJSONL(strings.NewReader("{\"a\":1}  \t\n\n{\"a\":2}\r\n"))
	if err != nil {
		t.Fatalf("ReadJSONL failed: %v", err)
	}
	if f.Len() != 2 {
		t.Errorf("Len = %d, want 2", f.Len())
	}
}

func TestReadFile_UnsupportedFormat(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "data.xlsx"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestWriteFile_RoundTrip(t *testing.T) {
	f := New(
		[]string{"id", "score", "name"},
		[]any{int64(1), 2.0, "ada"},
		[]any{int64(2), 0.25, nil},
	)

	for _, name := range []string{"out.csv", "out.jsonl"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			if err := WriteFile(path, f); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			got, err := ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if !Equal(got, f) {
				t.Errorf("round trip = %+v\nwant         %+v", got, f)
			}
			if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
				t.Error("temp file left behind")
			}
		})
	}
}

func TestFrame_ColumnEdits(t *testing.T) {
	f := New([]string{"a"}, []any{int64(1)}, []any{int64(2)})

	if err := f.SetColumn("b", []any{"x", "y"}); err != nil {
		t.Fatalf("SetColumn: %v", err)
	}
	if err := f.Set(1, "b", "z"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := f.Get(1, "b"); v != "z" {
		t.Errorf("Get = %v, want z", v)
	}
	if err := f.SetColumn("b", []any{"only one"}); err == nil {
		t.Error("expected length mismatch error")
	}
	if !f.DropColumn("a") || f.DropColumn("a") {
		t.Error("DropColumn should report existence once")
	}
	if _, err := f.Get(0, "a"); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("err = %v, want ErrUnknownColumn", err)
	}
	if _, err := f.Row(5); !errors.Is(err, ErrRowOutOfRange) {
		t.Errorf("err = %v, want ErrRowOutOfRange", err)
	}
}
