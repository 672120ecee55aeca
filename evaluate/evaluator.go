// Package evaluate scores formatted model outputs against examples.
//
// An Evaluation is a table derived from the chain frame: one row per input
// row, plus generated columns for the formatted input, the example, each
// output, and each (output, evaluator) score. The table is persisted as
// JSONL so manual scores survive reopening.
package evaluate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownEvaluator is returned by Lookup for an unregistered type.
var ErrUnknownEvaluator = errors.New("unknown evaluator")

// Evaluator scores one output against one example.
type Evaluator interface {
	// Type is the registry name.
	Type() string
	Evaluate(output, example string) any
	// Default is the score before evaluation or for manual review.
	Default() any
}

// FullMatch scores true when output equals example.
type FullMatch struct{}

func (FullMatch) Type() string                        { return "full_match" }
func (FullMatch) Evaluate(output, example string) any { return output == example }
func (FullMatch) Default() any                        { return false }

// PartialMatch scores true when output is contained in example.
type PartialMatch struct{}

func (PartialMatch) Type() string { return "partial_match" }
func (PartialMatch) Evaluate(output, example string) any {
	return strings.Contains(example, output)
}
func (PartialMatch) Default() any { return false }

// Manual always yields the default; the score is set by hand later.
type Manual struct{}

func (Manual) Type() string                { return "manual" }
func (Manual) Evaluate(string, string) any { return false }
func (Manual) Default() any                { return false }

var builtins = map[string]Evaluator{
	FullMatch{}.Type():    FullMatch{},
	PartialMatch{}.Type(): PartialMatch{},
	Manual{}.Type():       Manual{},
}

// Lookup returns the built-in evaluator registered as typ.
func Lookup(typ string) (Evaluator, error) {
	e, ok := builtins[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s (want one of %s)", ErrUnknownEvaluator, typ, strings.Join(Types(), ", "))
	}
	return e, nil
}

// Types lists the built-in evaluator types, sorted.
func Types() []string {
	out := make([]string, 0, len(builtins))
	for k := range builtins {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
