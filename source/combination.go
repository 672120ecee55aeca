package source

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/pithecene-io/workbench/frame"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind selects a combination operation.
type Kind string

const (
	KindConcat Kind = "concat"
	KindMerge  Kind = "merge"
)

// ErrUnknownKind is returned for a combination type other than concat or merge.
var ErrUnknownKind = errors.New("unknown combination type")

// ConcatArgs configures a concat.
type ConcatArgs struct {
	// Join is outer (default) or inner.
	Join string `json:"join,omitempty"`
}

// Combination describes how a source is joined to what precedes it.
// The zero value is a default concat.
type Combination struct {
	Kind   Kind
	Concat ConcatArgs
	Merge  frame.MergeArgs
}

// Concat returns the default concat combination.
func Concat() Combination {
	return Combination{Kind: KindConcat}
}

// Merge returns a merge combination with args.
func Merge(args frame.MergeArgs) Combination {
	return Combination{Kind: KindMerge, Merge: args}
}

// IsMerge reports whether c is a merge.
func (c Combination) IsMerge() bool {
	return c.Kind == KindMerge
}

// Evaluate applies c to two frames.
func (c Combination) Evaluate(left, right *frame.Frame) (*frame.Frame, error) {
	switch c.Kind {
	case "", KindConcat:
		return frame.Concat(left, right, c.Concat.Join)
	case KindMerge:
		return frame.Merge(left, right, c.Merge)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, c.Kind)
	}
}

type wireCombination struct {
	Type Kind                `json:"type"`
	Args jsoniter.RawMessage `json:"args,omitempty"`
}

// MarshalJSON encodes c as {"type": ..., "args": {...}}.
func (c Combination) MarshalJSON() ([]byte, error) {
	kind := c.Kind
	if kind == "" {
		kind = KindConcat
	}
	var args any = c.Concat
	if kind == KindMerge {
		args = c.Merge
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireCombination{Type: kind, Args: raw})
}

// UnmarshalJSON decodes the {"type": ..., "args": {...}} form.
func (c *Combination) UnmarshalJSON(data []byte) error {
	var w wireCombination
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*c = Combination{Kind: w.Type}
	switch w.Type {
	case "", KindConcat:
		c.Kind = KindConcat
		if len(w.Args) > 0 {
			return json.Unmarshal(w.Args, &c.Concat)
		}
	case KindMerge:
		if len(w.Args) > 0 {
			return json.Unmarshal(w.Args, &c.Merge)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, w.Type)
	}
	return nil
}
