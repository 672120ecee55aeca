// Package source provides the tabular inputs of an evaluation task.
//
// A Tabular source wraps one CSV or JSONL file. A Combined source joins two
// sources with a Combination and memoizes the result: once computed, its
// frame never changes. To reflect an upstream change, build a new Combined.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pithecene-io/workbench/frame"
)

// Source is anything that yields a frame.
type Source interface {
	Name() string
	Frame() (*frame.Frame, error)
}

// Tabular is an immutable frame loaded from a file. Its identity is the path.
type Tabular struct {
	path  string
	frame *frame.Frame
}

// Load reads a CSV or JSONL file.
func Load(path string) (*Tabular, error) {
	f, err := frame.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load source %s: %w", filepath.Base(path), err)
	}
	return &Tabular{path: path, frame: f}, nil
}

// NewTabular wraps an in-memory frame under path without touching disk.
func NewTabular(path string, f *frame.Frame) *Tabular {
	return &Tabular{path: path, frame: f}
}

// Path returns the backing file path.
func (t *Tabular) Path() string {
	return t.path
}

// Name returns the final path segment.
func (t *Tabular) Name() string {
	return filepath.Base(t.path)
}

// Frame returns the loaded frame. It never fails.
func (t *Tabular) Frame() (*frame.Frame, error) {
	return t.frame, nil
}

// Delete removes the backing file. Deleting twice is not an error.
func (t *Tabular) Delete() error {
	if err := os.Remove(t.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete source %s: %w", t.Name(), err)
	}
	return nil
}

// Combined joins two sources. Left may be nil.
type Combined struct {
	left        Source
	right       Source
	combination Combination

	frame *frame.Frame
}

// NewCombined creates a lazy combination of left and right.
func NewCombined(left, right Source, c Combination) *Combined {
	return &Combined{left: left, right: right, combination: c}
}

// Name joins the operand names with "+".
func (c *Combined) Name() string {
	if c.left == nil {
		return c.right.Name()
	}
	return c.left.Name() + "+" + c.right.Name()
}

// Combination returns the configured combination.
func (c *Combined) Combination() Combination {
	return c.combination
}

// Frame computes the combined frame on first call and returns the cached
// result afterwards. Errors are not cached.
//
// With no left operand, or a concat onto a left frame without rows, the
// result is the right frame.
func (c *Combined) Frame() (*frame.Frame, error) {
	if c.frame != nil {
		return c.frame, nil
	}

	right, err := c.right.Frame()
	if err != nil {
		return nil, err
	}
	if c.left == nil {
		c.frame = right
		return right, nil
	}
	left, err := c.left.Frame()
	if err != nil {
		return nil, err
	}
	if !c.combination.IsMerge() && left.Len() == 0 {
		c.frame = right
		return right, nil
	}

	out, err := c.combination.Evaluate(left, right)
	if err != nil {
		return nil, fmt.Errorf("combine %s: %w", c.Name(), err)
	}
	c.frame = out
	return out, nil
}
