package frame

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/pithecene-io/workbench/iox"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

var errTrailingData = errors.New("trailing data after object")

// maxLine bounds one JSONL record.
const maxLine = 16 * 1024 * 1024

// Format identifies a file encoding by extension.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// FormatOf returns the format for path's extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".jsonl":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

// ReadFile reads a CSV or JSONL file.
func ReadFile(path string) (*Frame, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(file)

	if format == FormatCSV {
		return ReadCSV(file)
	}
	return ReadJSONL(file)
}

// ReadCSV reads a header row followed by records. Each column is typed as
// int64, float64, or bool when every non-empty cell parses as such, and as
// string otherwise. Empty cells are null.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return New(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var raw [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		raw = append(raw, rec)
	}

	f := &Frame{Columns: header, Rows: make([][]any, len(raw))}
	for i := range raw {
		f.Rows[i] = make([]any, len(header))
	}
	for c := range header {
		parse := inferColumn(raw, c)
		for i, rec := range raw {
			if c < len(rec) && rec[c] != "" {
				f.Rows[i][c] = parse(rec[c])
			}
		}
	}
	return f, nil
}

func inferColumn(raw [][]string, c int) func(string) any {
	ints, floats, bools := true, true, true
	for _, rec := range raw {
		if c >= len(rec) || rec[c] == "" {
			continue
		}
		s := rec[c]
		if ints {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				ints = false
			}
		}
		if floats {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				floats = false
			}
		}
		if bools {
			if _, ok := parseBool(s); !ok {
				bools = false
			}
		}
	}
	switch {
	case ints:
		return func(s string) any { n, _ := strconv.ParseInt(s, 10, 64); return n }
	case floats:
		return func(s string) any { x, _ := strconv.ParseFloat(s, 64); return x }
	case bools:
		return func(s string) any { b, _ := parseBool(s); return b }
	default:
		return func(s string) any { return s }
	}
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// ReadJSONL reads one JSON object per line. Columns appear in first-seen
// key order. Top-level numbers become int64 when integral, else float64.
func ReadJSONL(r io.Reader) (*Frame, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	f := &Frame{}
	index := map[string]int{}
	line := 0
	for sc.Scan() {
		line++
		data := bytes.TrimSpace(sc.Bytes())
		if len(data) == 0 {
			continue
		}

		row := make([]any, len(f.Columns))
		iter := jsonAPI.BorrowIterator(data)
		if iter.WhatIsNext() != jsoniter.ObjectValue {
			jsonAPI.ReturnIterator(iter)
			return nil, fmt.Errorf("jsonl line %d: not an object", line)
		}
		iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
			v := readValue(it)
			c, ok := index[key]
			if !ok {
				c = len(f.Columns)
				index[key] = c
				f.Columns = append(f.Columns, key)
				row = append(row, nil)
			}
			row[c] = v
			return true
		})
		err := iter.Error
		if err == nil {
			// Only whitespace may follow the object.
			iter.WhatIsNext()
			if iter.Error != io.EOF {
				err = errTrailingData
			}
		}
		jsonAPI.ReturnIterator(iter)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("jsonl line %d: %w", line, err)
		}
		f.Rows = append(f.Rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl: %w", err)
	}

	// Rows read before a column first appeared are short.
	for i, row := range f.Rows {
		if len(row) < len(f.Columns) {
			f.Rows[i] = f.fit(row)
		}
	}
	return f, nil
}

func readValue(it *jsoniter.Iterator) any {
	switch it.WhatIsNext() {
	case jsoniter.NumberValue:
		return normalizeNumber(it.ReadNumber())
	case jsoniter.StringValue:
		return it.ReadString()
	case jsoniter.BoolValue:
		return it.ReadBool()
	case jsoniter.NilValue:
		it.ReadNil()
		return nil
	default:
		return it.Read()
	}
}

func normalizeNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	return f
}

// WriteFile writes f as CSV or JSONL according to path's extension.
func WriteFile(path string, f *Frame) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if format == FormatCSV {
		err = WriteCSV(file, f)
	} else {
		err = WriteJSONL(file, f)
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}

// WriteCSV writes a header row and one record per row. Nulls are empty.
func WriteCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns); err != nil {
		return err
	}
	rec := make([]string, len(f.Columns))
	for _, row := range f.Rows {
		for c, v := range row {
			rec[c] = formatCell(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		// Keep a decimal point so the column reads back as float.
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatFloat(x, 'f', 1, 64)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		data, err := jsonAPI.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}

// WriteJSONL writes one object per row with keys in column order.
func WriteJSONL(w io.Writer, f *Frame) error {
	stream := jsoniter.NewStream(jsonAPI, w, 4096)
	for _, row := range f.Rows {
		stream.WriteObjectStart()
		for c, name := range f.Columns {
			if c > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(name)
			writeCell(stream, row[c])
		}
		stream.WriteObjectEnd()
		stream.WriteRaw("\n")
		if stream.Error != nil {
			return stream.Error
		}
	}
	return stream.Flush()
}

func writeCell(stream *jsoniter.Stream, v any) {
	if x, ok := v.(float64); ok && x == math.Trunc(x) && math.Abs(x) < 1e15 {
		stream.WriteRaw(strconv.FormatFloat(x, 'f', 1, 64))
		return
	}
	stream.WriteVal(v)
}
