// Package frame is a small column-ordered table used by the source chain.
//
// Cells hold nil (null), int64, float64, bool, string, or nested JSON
// values from JSONL input. Column order is significant and preserved by
// every operation.
package frame

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
)

// Errors returned by frame operations.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrUnknownColumn     = errors.New("unknown column")
	ErrRowOutOfRange     = errors.New("row out of range")
	ErrInvalidJoin       = errors.New("invalid join")
)

// Frame is an ordered table of rows. Every row has len(Columns) cells.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// New creates a frame. Short rows are padded with nulls.
func New(columns []string, rows ...[]any) *Frame {
	f := &Frame{Columns: slices.Clone(columns), Rows: make([][]any, 0, len(rows))}
	for _, r := range rows {
		f.Rows = append(f.Rows, f.fit(r))
	}
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// Empty reports whether the frame has no rows or no columns.
func (f *Frame) Empty() bool {
	return f == nil || len(f.Rows) == 0 || len(f.Columns) == 0
}

// Index returns the position of column name, or -1.
func (f *Frame) Index(name string) int {
	return slices.Index(f.Columns, name)
}

// Has reports whether the frame has column name.
func (f *Frame) Has(name string) bool {
	return f.Index(name) >= 0
}

// Column returns a copy of the values in column name.
func (f *Frame) Column(name string) ([]any, error) {
	i := f.Index(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	out := make([]any, len(f.Rows))
	for r, row := range f.Rows {
		out[r] = row[i]
	}
	return out, nil
}

// Row returns row i keyed by column name.
func (f *Frame) Row(i int) (map[string]any, error) {
	if i < 0 || i >= len(f.Rows) {
		return nil, fmt.Errorf("%w: %d of %d", ErrRowOutOfRange, i, len(f.Rows))
	}
	out := make(map[string]any, len(f.Columns))
	for c, name := range f.Columns {
		out[name] = f.Rows[i][c]
	}
	return out, nil
}

// Records returns every row keyed by column name.
func (f *Frame) Records() []map[string]any {
	out := make([]map[string]any, len(f.Rows))
	for i := range f.Rows {
		out[i], _ = f.Row(i)
	}
	return out
}

// Get returns one cell.
func (f *Frame) Get(row int, col string) (any, error) {
	c := f.Index(col)
	if c < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, col)
	}
	if row < 0 || row >= len(f.Rows) {
		return nil, fmt.Errorf("%w: %d of %d", ErrRowOutOfRange, row, len(f.Rows))
	}
	return f.Rows[row][c], nil
}

// Set replaces one cell.
func (f *Frame) Set(row int, col string, v any) error {
	c := f.Index(col)
	if c < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, col)
	}
	if row < 0 || row >= len(f.Rows) {
		return fmt.Errorf("%w: %d of %d", ErrRowOutOfRange, row, len(f.Rows))
	}
	f.Rows[row][c] = v
	return nil
}

// SetColumn replaces column name, or appends it if absent.
// values must have one entry per row.
func (f *Frame) SetColumn(name string, values []any) error {
	if len(values) != len(f.Rows) {
		return fmt.Errorf("column %s: %d values for %d rows", name, len(values), len(f.Rows))
	}
	c := f.Index(name)
	if c < 0 {
		f.Columns = append(f.Columns, name)
		for r := range f.Rows {
			f.Rows[r] = append(f.Rows[r], values[r])
		}
		return nil
	}
	for r := range f.Rows {
		f.Rows[r][c] = values[r]
	}
	return nil
}

// DropColumn removes column name. Reports whether it existed.
func (f *Frame) DropColumn(name string) bool {
	c := f.Index(name)
	if c < 0 {
		return false
	}
	f.Columns = slices.Delete(f.Columns, c, c+1)
	for r := range f.Rows {
		f.Rows[r] = slices.Delete(f.Rows[r], c, c+1)
	}
	return true
}

// Clone returns a copy whose rows can be mutated independently.
// Nested cell values are shared.
func (f *Frame) Clone() *Frame {
	out := &Frame{Columns: slices.Clone(f.Columns), Rows: make([][]any, len(f.Rows))}
	for i, r := range f.Rows {
		out.Rows[i] = slices.Clone(r)
	}
	return out
}

// Equal reports whether a and b have the same columns and cells.
func Equal(a, b *Frame) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Len() != b.Len() || !slices.Equal(a.Columns, b.Columns) {
		return false
	}
	return a.Len() == 0 || reflect.DeepEqual(a.Rows, b.Rows)
}

func (f *Frame) fit(row []any) []any {
	out := make([]any, len(f.Columns))
	copy(out, row)
	return out
}
