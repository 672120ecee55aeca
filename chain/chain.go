// Package chain is the ordered list of tabular sources behind an evaluation
// task.
//
// Each element pairs a source with the Combination that joins it onto
// everything before it. The structure (paths and combinations, not data)
// is persisted as config.json in the chain directory. Deleting or moving an
// element resets the combinations it affects to concat, since merge keys
// chosen for the old order may no longer exist.
package chain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/multierr"

	"github.com/pithecene-io/workbench/frame"
	"github.com/pithecene-io/workbench/log"
	"github.com/pithecene-io/workbench/metrics"
	"github.com/pithecene-io/workbench/source"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ConfigFile is the name of the structure file inside the chain directory.
const ConfigFile = "config.json"

// Errors returned by chain operations.
var (
	ErrOutOfRange       = errors.New("element index out of range")
	ErrMergeUnavailable = errors.New("merge not available for this element")
	ErrNotMerge         = errors.New("element is not a merge")
	ErrNoMatches        = errors.New("no files matched")
)

// Element is one source and how it joins onto its predecessors.
type Element struct {
	Source      *source.Tabular
	Combination source.Combination
}

// Name returns the source name.
func (e *Element) Name() string {
	return e.Source.Name()
}

// Chain is the element list plus a memoized join graph over it.
// It has a single owner; no locking is performed.
type Chain struct {
	dir     string
	logger  *log.Logger
	metrics *metrics.Collector

	elems   []*Element
	graph   []*source.Combined
	dirty   bool
	skipped error
}

// Open loads the chain stored in dir, creating dir if needed.
//
// Elements whose file or combination cannot be loaded are skipped; see
// Skipped. The config is written back immediately so it always reflects
// what was loaded.
func Open(dir string, logger *log.Logger, m *metrics.Collector) (*Chain, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chain dir: %w", err)
	}

	c := &Chain{dir: dir, logger: logger, metrics: m, dirty: true}
	c.load()
	if err := c.Save(); err != nil {
		return nil, err
	}
	return c, nil
}

// Dir returns the chain directory.
func (c *Chain) Dir() string {
	return c.dir
}

// Skipped returns the combined load errors of elements dropped by Open.
func (c *Chain) Skipped() error {
	return c.skipped
}

// Len returns the number of elements.
func (c *Chain) Len() int {
	return len(c.elems)
}

// Element returns element i.
func (c *Chain) Element(i int) (*Element, error) {
	if i < 0 || i >= len(c.elems) {
		return nil, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(c.elems))
	}
	return c.elems[i], nil
}

// Elements returns the elements in order. The slice is a copy.
func (c *Chain) Elements() []*Element {
	out := make([]*Element, len(c.elems))
	copy(out, c.elems)
	return out
}

// Find returns the index of the element whose source is named name.
func (c *Chain) Find(name string) (int, bool) {
	for i, e := range c.elems {
		if e.Name() == name {
			return i, true
		}
	}
	return -1, false
}

// Insert appends src. The first element is always a concat.
func (c *Chain) Insert(src *source.Tabular, comb source.Combination) {
	if len(c.elems) == 0 {
		comb = source.Concat()
	}
	c.elems = append(c.elems, &Element{Source: src, Combination: comb})
	c.dirty = true
}

// Delete removes element i and its backing file. The element that followed
// it is reset to concat.
func (c *Chain) Delete(i int) error {
	e, err := c.Element(i)
	if err != nil {
		return err
	}
	c.elems = append(c.elems[:i], c.elems[i+1:]...)
	c.reset(i)
	c.dirty = true

	return multierr.Append(c.Save(), e.Source.Delete())
}

// MoveDown swaps element i with its successor. The swapped pair and the
// element now following them are reset to concat. Out-of-range moves,
// including moving the last element down, do nothing.
func (c *Chain) MoveDown(i int) error {
	if i < 0 || i+1 >= len(c.elems) {
		return nil
	}
	c.elems[i], c.elems[i+1] = c.elems[i+1], c.elems[i]
	c.reset(i, i+1, i+2)
	c.dirty = true
	return c.Save()
}

// MoveUp swaps element i with its predecessor.
func (c *Chain) MoveUp(i int) error {
	return c.MoveDown(i - 1)
}

func (c *Chain) reset(idx ...int) {
	for _, i := range idx {
		if i >= 0 && i < len(c.elems) {
			c.elems[i].Combination = source.Concat()
		}
	}
}

// Options lists the combination kinds element i may use. Concat is always
// offered. Merge is offered when the element has a predecessor and both the
// accumulated predecessor frame and the element's own frame have rows.
func (c *Chain) Options(i int) ([]source.Kind, error) {
	if _, err := c.Element(i); err != nil {
		return nil, err
	}
	if c.mergeable(i) {
		return []source.Kind{source.KindConcat, source.KindMerge}, nil
	}
	return []source.Kind{source.KindConcat}, nil
}

func (c *Chain) mergeable(i int) bool {
	if i <= 0 || i >= len(c.elems) {
		return false
	}
	prev, err := c.FrameAt(i - 1)
	if err != nil || prev.Empty() {
		return false
	}
	own, _ := c.elems[i].Source.Frame()
	return !own.Empty()
}

// SetKind switches element i to kind. Switching to merge fills default
// arguments: an inner join on the first column the two sides share, or on
// the first column of each side when they share none.
func (c *Chain) SetKind(i int, kind source.Kind) error {
	e, err := c.Element(i)
	if err != nil {
		return err
	}

	switch kind {
	case source.KindConcat:
		e.Combination = source.Concat()
	case source.KindMerge:
		if !c.mergeable(i) {
			return fmt.Errorf("%w: %s", ErrMergeUnavailable, e.Name())
		}
		left, _ := c.FrameAt(i - 1)
		right, _ := e.Source.Frame()
		lk, rk := defaultKeys(left, right)
		e.Combination = source.Merge(frame.MergeArgs{
			How:     frame.JoinInner,
			LeftOn:  frame.Keys{lk},
			RightOn: frame.Keys{rk},
		})
	default:
		return fmt.Errorf("%w: %s", source.ErrUnknownKind, kind)
	}

	c.dirty = true
	return c.Save()
}

func defaultKeys(left, right *frame.Frame) (string, string) {
	for _, col := range left.Columns {
		if right.Has(col) {
			return col, col
		}
	}
	return left.Columns[0], right.Columns[0]
}

// SetCombination replaces element i's combination. A merge is only accepted
// where Options offers it.
func (c *Chain) SetCombination(i int, comb source.Combination) error {
	e, err := c.Element(i)
	if err != nil {
		return err
	}
	if comb.IsMerge() && !c.mergeable(i) {
		return fmt.Errorf("%w: %s", ErrMergeUnavailable, e.Name())
	}
	e.Combination = comb
	c.dirty = true
	return c.Save()
}

// UpdateMerge overlays the non-empty fields of patch onto element i's merge
// arguments.
func (c *Chain) UpdateMerge(i int, patch frame.MergeArgs) error {
	e, err := c.Element(i)
	if err != nil {
		return err
	}
	if !e.Combination.IsMerge() {
		return fmt.Errorf("%w: %s", ErrNotMerge, e.Name())
	}

	args := &e.Combination.Merge
	if patch.How != "" {
		args.How = patch.How
	}
	if patch.On != nil {
		args.On = patch.On
		args.LeftOn, args.RightOn = nil, nil
	}
	if patch.LeftOn != nil {
		args.LeftOn = patch.LeftOn
		args.On = nil
	}
	if patch.RightOn != nil {
		args.RightOn = patch.RightOn
		args.On = nil
	}
	if patch.Suffixes != nil {
		args.Suffixes = patch.Suffixes
	}

	c.dirty = true
	return c.Save()
}

// Frame returns the frame of the whole chain. An empty chain yields an
// empty frame.
func (c *Chain) Frame() (*frame.Frame, error) {
	if len(c.elems) == 0 {
		return frame.New(nil), nil
	}
	return c.FrameAt(len(c.elems) - 1)
}

// FrameAt returns the frame accumulated through element i. Join failures
// are returned; the chain structure is unaffected.
func (c *Chain) FrameAt(i int) (*frame.Frame, error) {
	if _, err := c.Element(i); err != nil {
		return nil, err
	}
	c.rebuild()

	f, err := c.graph[i].Frame()
	if err != nil {
		c.metrics.IncCombineFailure()
		return nil, err
	}
	return f, nil
}

// rebuild replaces the join graph after a mutation. Unchanged chains keep
// their memoized frames.
func (c *Chain) rebuild() {
	if !c.dirty {
		return
	}
	c.graph = make([]*source.Combined, len(c.elems))
	var prev source.Source
	for i, e := range c.elems {
		c.graph[i] = source.NewCombined(prev, e.Source, e.Combination)
		prev = c.graph[i]
	}
	c.dirty = false
	c.metrics.IncChainRecompute()
}

// Add copies a CSV or JSONL file into the chain directory and links it.
// An element with the same file name gets the new source and keeps its
// combination; otherwise a concat element is appended.
func (c *Chain) Add(path string) (*Element, error) {
	f, err := frame.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("add %s: %w", filepath.Base(path), err)
	}
	dest := filepath.Join(c.dir, filepath.Base(path))
	if err := frame.WriteFile(dest, f); err != nil {
		return nil, fmt.Errorf("add %s: %w", filepath.Base(path), err)
	}
	src := source.NewTabular(dest, f)

	var e *Element
	if i, ok := c.Find(src.Name()); ok {
		e = c.elems[i]
		e.Source = src
		c.dirty = true
	} else {
		c.Insert(src, source.Concat())
		e = c.elems[len(c.elems)-1]
	}

	c.logger.Info("source added", map[string]any{
		"name": src.Name(),
		"rows": f.Len(),
	})
	return e, c.Save()
}

// AddGlob adds every CSV or JSONL file matching pattern, in lexical order.
// Supports ** patterns. Returns the names added.
func (c *Chain) AddGlob(pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)

	var added []string
	for _, m := range matches {
		if _, err := frame.FormatOf(m); err != nil {
			continue
		}
		e, err := c.Add(m)
		if err != nil {
			return added, err
		}
		added = append(added, e.Name())
	}
	if len(added) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatches, pattern)
	}
	return added, nil
}
