package evaluate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pithecene-io/workbench/frame"
	"github.com/pithecene-io/workbench/log"
)

// DataFile is the evaluation table's file name inside a task directory.
const DataFile = "eval_data.jsonl"

// Generated column names.
const (
	InputColumn   = "__input"
	ExampleColumn = "__example"
)

// ErrInvalidConfig is returned for a config that cannot produce columns.
var ErrInvalidConfig = errors.New("invalid evaluation config")

// Output is one formatted output column.
type Output struct {
	Name   string `json:"name" yaml:"name"`
	Format string `json:"format" yaml:"format"`
}

// EvaluatorRef names an evaluator column and selects its type.
type EvaluatorRef struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Config selects how rows become inputs, examples, and outputs.
//
// Input and each output Format are templates over the row's columns.
// Example is a column name; its value is copied as is.
type Config struct {
	Input      string         `json:"input" yaml:"input"`
	Example    string         `json:"example" yaml:"example"`
	Outputs    []Output       `json:"outputs" yaml:"outputs"`
	Evaluators []EvaluatorRef `json:"evaluators" yaml:"evaluators"`
}

// Validate checks names are present and unique and evaluator types exist.
func (c Config) Validate() error {
	seen := make(map[string]bool)
	for _, o := range c.Outputs {
		if o.Name == "" {
			return fmt.Errorf("%w: output without name", ErrInvalidConfig)
		}
		if seen[o.Name] {
			return fmt.Errorf("%w: duplicate output %q", ErrInvalidConfig, o.Name)
		}
		seen[o.Name] = true
	}
	seen = make(map[string]bool)
	for _, r := range c.Evaluators {
		if r.Name == "" {
			return fmt.Errorf("%w: evaluator without name", ErrInvalidConfig)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate evaluator %q", ErrInvalidConfig, r.Name)
		}
		seen[r.Name] = true
		if _, err := Lookup(r.Type); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// OutputColumn returns the column holding output name.
func OutputColumn(name string) string {
	return "__" + name
}

// EvalColumn returns the column holding evaluator eval's score of output.
func EvalColumn(output, eval string) string {
	return OutputColumn(output) + "-" + eval
}

// Evaluation is the persisted evaluation table for one task.
// It has a single owner; no locking is performed.
type Evaluation struct {
	path   string
	cfg    Config
	source *frame.Frame
	data   *frame.Frame
	logger *log.Logger
}

// Open loads the table at path, or derives it from src when the file is
// missing or unreadable. Missing generated columns are added and the table
// is saved.
func Open(path string, cfg Config, src *frame.Frame, logger *log.Logger) (*Evaluation, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Evaluation{path: path, cfg: cfg, source: src, logger: logger}
	data, err := frame.ReadFile(path)
	switch {
	case err == nil && len(data.Columns) > 0:
		e.data = data
	case err != nil && !errors.Is(err, os.ErrNotExist):
		logger.Warn("evaluation data unreadable, rebuilding from source", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		fallthrough
	default:
		e.data = cloneOrEmpty(src)
	}

	if err := e.complete(); err != nil {
		return nil, err
	}
	return e, e.Save()
}

// SetConfig applies cfg. Generated columns whose definition changed are
// dropped and rebuilt; unchanged columns, including manual scores, are kept.
// When src differs from the frame the evaluation was built on, the table
// restarts from src.
func (e *Evaluation) SetConfig(cfg Config, src *frame.Frame) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data := e.data
	if src != e.source {
		data = cloneOrEmpty(src)
	} else {
		data = data.Clone()
	}

	if cfg.Input != e.cfg.Input {
		data.DropColumn(InputColumn)
	}
	if cfg.Example != e.cfg.Example {
		data.DropColumn(ExampleColumn)
	}
	for i, o := range e.cfg.Outputs {
		if i >= len(cfg.Outputs) || cfg.Outputs[i].Format == o.Format {
			continue
		}
		col := OutputColumn(o.Name)
		stale := []string{col}
		for _, name := range data.Columns {
			if strings.HasPrefix(name, col+"-") {
				stale = append(stale, name)
			}
		}
		for _, name := range stale {
			data.DropColumn(name)
		}
	}

	prev := *e
	e.cfg, e.source, e.data = cfg, src, data
	if err := e.complete(); err != nil {
		*e = prev
		return err
	}
	return e.Save()
}

// complete adds every configured column the table lacks.
func (e *Evaluation) complete() error {
	missing := e.missingColumns()
	if len(missing) == 0 {
		return nil
	}
	if e.cfg.Example != "" && e.data.Len() > 0 && !e.data.Has(e.cfg.Example) {
		return fmt.Errorf("example: %w: %s", frame.ErrUnknownColumn, e.cfg.Example)
	}

	values := make(map[string][]any, len(missing))
	for i := 0; i < e.data.Len(); i++ {
		row, _ := e.data.Row(i)
		cells, err := e.derive(row)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		for _, col := range missing {
			values[col] = append(values[col], cells[col])
		}
	}
	for _, col := range missing {
		v := values[col]
		if v == nil {
			v = []any{}
		}
		if err := e.data.SetColumn(col, v); err != nil {
			return err
		}
	}

	e.logger.Debug("evaluation columns added", map[string]any{
		"columns": missing,
		"rows":    e.data.Len(),
	})
	return nil
}

// Columns lists the generated columns for the current config, in order.
func (e *Evaluation) Columns() []string {
	cols := []string{InputColumn, ExampleColumn}
	for _, o := range e.cfg.Outputs {
		cols = append(cols, OutputColumn(o.Name))
		for _, r := range e.cfg.Evaluators {
			cols = append(cols, EvalColumn(o.Name, r.Name))
		}
	}
	return cols
}

func (e *Evaluation) missingColumns() []string {
	var out []string
	for _, c := range e.Columns() {
		if !e.data.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// derive computes every generated cell for one source row.
func (e *Evaluation) derive(row map[string]any) (map[string]any, error) {
	cells := make(map[string]any)

	input, err := Format(e.cfg.Input, row)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	cells[InputColumn] = input

	var example any
	if e.cfg.Example != "" {
		example = row[e.cfg.Example]
	}
	cells[ExampleColumn] = example

	for _, o := range e.cfg.Outputs {
		out, err := Format(o.Format, row)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", o.Name, err)
		}
		cells[OutputColumn(o.Name)] = out
		for _, r := range e.cfg.Evaluators {
			ev, _ := Lookup(r.Type)
			cells[EvalColumn(o.Name, r.Name)] = ev.Evaluate(out, Text(example))
		}
	}
	return cells, nil
}

// Save writes the table to its path.
func (e *Evaluation) Save() error {
	if err := frame.WriteFile(e.path, e.data); err != nil {
		return fmt.Errorf("save evaluation: %w", err)
	}
	return nil
}

// Path returns the table's file path.
func (e *Evaluation) Path() string {
	return e.path
}

// Name returns the table's file name.
func (e *Evaluation) Name() string {
	return filepath.Base(e.path)
}

// Config returns the active config.
func (e *Evaluation) Config() Config {
	return e.cfg
}

// Frame returns the table. Callers must not mutate it.
func (e *Evaluation) Frame() *frame.Frame {
	return e.data
}

// Len returns the number of rows.
func (e *Evaluation) Len() int {
	return e.data.Len()
}

// OutputView is one output of a row with its scores by evaluator column.
type OutputView struct {
	Name  string
	Value any
	Evals map[string]any
}

// Row is the generated view of one table row.
type Row struct {
	Index   int
	Input   any
	Example any
	Outputs []OutputView
}

// Get returns the generated view of row i.
func (e *Evaluation) Get(i int) (Row, error) {
	rec, err := e.data.Row(i)
	if err != nil {
		return Row{}, err
	}
	r := Row{Index: i, Input: rec[InputColumn], Example: rec[ExampleColumn]}
	for _, o := range e.cfg.Outputs {
		v := OutputView{Name: o.Name, Value: rec[OutputColumn(o.Name)], Evals: make(map[string]any)}
		for _, ref := range e.cfg.Evaluators {
			col := EvalColumn(o.Name, ref.Name)
			v.Evals[col] = rec[col]
		}
		r.Outputs = append(r.Outputs, v)
	}
	return r, nil
}

// Set replaces one cell and saves the table.
func (e *Evaluation) Set(i int, col string, v any) error {
	if err := e.data.Set(i, col, v); err != nil {
		return err
	}
	return e.Save()
}

// ColumnSummary aggregates one generated column.
type ColumnSummary struct {
	Column string  `json:"column"`
	Stat   string  `json:"stat"`
	Value  float64 `json:"value"`
	Count  int     `json:"count"`
}

// Summary stats.
const (
	StatMean       = "mean"
	StatMeanLength = "mean_length"
)

// Summary aggregates each generated column present in the table: the mean
// of numbers and booleans, or the mean rune length of strings. Nulls are
// skipped; columns with no values or mixed kinds are omitted.
func (e *Evaluation) Summary() []ColumnSummary {
	var out []ColumnSummary
	for _, col := range e.data.Columns {
		if !strings.HasPrefix(col, "__") {
			continue
		}
		values, _ := e.data.Column(col)
		if s, ok := summarize(col, values); ok {
			out = append(out, s)
		}
	}
	return out
}

func summarize(col string, values []any) (ColumnSummary, bool) {
	var (
		sum     float64
		n       int
		numeric bool
		textual bool
	)
	for _, v := range values {
		switch x := v.(type) {
		case nil:
			continue
		case bool:
			numeric = true
			if x {
				sum++
			}
		case int64:
			numeric = true
			sum += float64(x)
		case float64:
			numeric = true
			sum += x
		case string:
			textual = true
			sum += float64(utf8.RuneCountInString(x))
		default:
			return ColumnSummary{}, false
		}
		n++
	}
	if n == 0 || numeric == textual {
		return ColumnSummary{}, false
	}
	stat := StatMean
	if textual {
		stat = StatMeanLength
	}
	return ColumnSummary{Column: col, Stat: stat, Value: sum / float64(n), Count: n}, true
}

func cloneOrEmpty(f *frame.Frame) *frame.Frame {
	if f == nil {
		return frame.New(nil)
	}
	return f.Clone()
}
