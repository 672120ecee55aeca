package frame

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Join kinds for Concat and Merge.
const (
	JoinInner = "inner"
	JoinOuter = "outer"
	JoinLeft  = "left"
	JoinRight = "right"
)

// Default merge suffixes for overlapping non-key columns.
const (
	DefaultLeftSuffix  = "_x"
	DefaultRightSuffix = "_y"
)

// ErrNoMergeKeys is returned when no keys are given and the frames share no
// column.
var ErrNoMergeKeys = errors.New("no merge keys: frames share no column")

// Concat stacks right's rows under left's.
//
// With join "outer" (or empty) the result has the union of columns in
// first-seen order and missing cells are null. With "inner" it keeps only
// the columns both frames have, in left's order.
func Concat(left, right *Frame, join string) (*Frame, error) {
	var cols []string
	switch join {
	case "", JoinOuter:
		cols = slices.Clone(left.Columns)
		for _, c := range right.Columns {
			if !slices.Contains(cols, c) {
				cols = append(cols, c)
			}
		}
	case JoinInner:
		for _, c := range left.Columns {
			if right.Has(c) {
				cols = append(cols, c)
			}
		}
	default:
		return nil, fmt.Errorf("%w: concat join %q (want inner or outer)", ErrInvalidJoin, join)
	}

	out := &Frame{Columns: cols, Rows: make([][]any, 0, left.Len()+right.Len())}
	for _, src := range []*Frame{left, right} {
		pick := make([]int, len(cols))
		for i, c := range cols {
			pick[i] = src.Index(c)
		}
		for _, row := range src.Rows {
			r := make([]any, len(cols))
			for i, p := range pick {
				if p >= 0 {
					r[i] = row[p]
				}
			}
			out.Rows = append(out.Rows, r)
		}
	}
	return out, nil
}

// MergeArgs configures a relational join.
type MergeArgs struct {
	// How is inner (default), left, right, or outer.
	How string `json:"how,omitempty"`
	// On names key columns present in both frames.
	On Keys `json:"on,omitempty"`
	// LeftOn and RightOn name key columns pairwise when names differ.
	LeftOn  Keys `json:"left_on,omitempty"`
	RightOn Keys `json:"right_on,omitempty"`
	// Suffixes are appended to overlapping non-key columns. Default _x, _y.
	Suffixes []string `json:"suffixes,omitempty"`
}

// Merge joins left and right on key columns.
//
// A key column with the same name on both sides appears once; for rows with
// no left match its value comes from the right row. Null keys never match.
// Row order follows left for inner and left joins, right for right joins,
// and for outer joins left order followed by unmatched right rows.
func Merge(left, right *Frame, args MergeArgs) (*Frame, error) {
	how := args.How
	if how == "" {
		how = JoinInner
	}
	switch how {
	case JoinInner, JoinLeft, JoinRight, JoinOuter:
	default:
		return nil, fmt.Errorf("%w: merge how %q", ErrInvalidJoin, how)
	}

	leftKeys, rightKeys, err := resolveKeys(left, right, args)
	if err != nil {
		return nil, err
	}
	suffixes := args.Suffixes
	if len(suffixes) == 0 {
		suffixes = []string{DefaultLeftSuffix, DefaultRightSuffix}
	}
	if len(suffixes) != 2 {
		return nil, fmt.Errorf("merge suffixes: want 2, got %d", len(suffixes))
	}

	li := indexes(left, leftKeys)
	ri := indexes(right, rightKeys)

	// Right key columns sharing the left key's name are folded into the left one.
	shared := map[int]int{} // right col -> left col
	for k := range ri {
		if leftKeys[k] == rightKeys[k] {
			shared[ri[k]] = li[k]
		}
	}
	var rightCols []int
	for c := range right.Columns {
		if _, ok := shared[c]; !ok {
			rightCols = append(rightCols, c)
		}
	}

	cols := make([]string, 0, len(left.Columns)+len(rightCols))
	rightNames := make(map[string]bool, len(rightCols))
	for _, c := range rightCols {
		rightNames[right.Columns[c]] = true
	}
	for _, name := range left.Columns {
		if rightNames[name] {
			name += suffixes[0]
		}
		cols = append(cols, name)
	}
	for _, c := range rightCols {
		name := right.Columns[c]
		if left.Has(name) {
			name += suffixes[1]
		}
		cols = append(cols, name)
	}

	row := func(l, r []any) []any {
		out := make([]any, 0, len(cols))
		if l != nil {
			out = append(out, l...)
		} else {
			out = append(out, make([]any, len(left.Columns))...)
			for rc, lc := range shared {
				out[lc] = r[rc]
			}
		}
		for _, c := range rightCols {
			if r != nil {
				out = append(out, r[c])
			} else {
				out = append(out, nil)
			}
		}
		return out
	}

	out := &Frame{Columns: cols}

	if how == JoinRight {
		byLeft := buildIndex(left, li)
		for _, r := range right.Rows {
			matches := byLeft[rowKey(r, ri)]
			if len(matches) == 0 {
				out.Rows = append(out.Rows, row(nil, r))
				continue
			}
			for _, m := range matches {
				out.Rows = append(out.Rows, row(left.Rows[m], r))
			}
		}
		return out, nil
	}

	byRight := buildIndex(right, ri)
	matched := make([]bool, len(right.Rows))
	for _, l := range left.Rows {
		matches := byRight[rowKey(l, li)]
		if len(matches) == 0 {
			if how == JoinLeft || how == JoinOuter {
				out.Rows = append(out.Rows, row(l, nil))
			}
			continue
		}
		for _, m := range matches {
			matched[m] = true
			out.Rows = append(out.Rows, row(l, right.Rows[m]))
		}
	}
	if how == JoinOuter {
		for i, r := range right.Rows {
			if !matched[i] {
				out.Rows = append(out.Rows, row(nil, r))
			}
		}
	}
	return out, nil
}

func resolveKeys(left, right *Frame, args MergeArgs) ([]string, []string, error) {
	var lk, rk []string
	switch {
	case len(args.On) > 0:
		lk, rk = args.On, args.On
	case len(args.LeftOn) > 0 || len(args.RightOn) > 0:
		if len(args.LeftOn) != len(args.RightOn) {
			return nil, nil, fmt.Errorf("%w: left_on has %d keys, right_on has %d",
				ErrInvalidJoin, len(args.LeftOn), len(args.RightOn))
		}
		lk, rk = args.LeftOn, args.RightOn
	default:
		for _, c := range left.Columns {
			if right.Has(c) {
				lk = append(lk, c)
			}
		}
		if len(lk) == 0 {
			return nil, nil, ErrNoMergeKeys
		}
		rk = lk
	}

	for _, k := range lk {
		if !left.Has(k) {
			return nil, nil, fmt.Errorf("%w: %s (left)", ErrUnknownColumn, k)
		}
	}
	for _, k := range rk {
		if !right.Has(k) {
			return nil, nil, fmt.Errorf("%w: %s (right)", ErrUnknownColumn, k)
		}
	}
	return lk, rk, nil
}

func indexes(f *Frame, names []string) []int {
	out := make([]int, len(names))
	for i, n := range names {
		out[i] = f.Index(n)
	}
	return out
}

// buildIndex maps key tuples to row positions in f.
func buildIndex(f *Frame, keyCols []int) map[string][]int {
	idx := make(map[string][]int, len(f.Rows))
	for i, r := range f.Rows {
		k := rowKey(r, keyCols)
		if k == "" {
			continue
		}
		idx[k] = append(idx[k], i)
	}
	return idx
}

// rowKey encodes the key cells of row. Returns "" if any key is null.
// Integral floats encode like ints so 1 and 1.0 match.
func rowKey(row []any, keyCols []int) string {
	var b strings.Builder
	for _, c := range keyCols {
		switch v := row[c].(type) {
		case nil:
			return ""
		case int64:
			b.WriteString("n:" + strconv.FormatInt(v, 10))
		case float64:
			if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
				b.WriteString("n:" + strconv.FormatInt(int64(v), 10))
			} else {
				b.WriteString("f:" + strconv.FormatFloat(v, 'g', -1, 64))
			}
		case string:
			b.WriteString("s:" + v)
		case bool:
			b.WriteString("b:" + strconv.FormatBool(v))
		default:
			b.WriteString(fmt.Sprintf("v:%v", v))
		}
		b.WriteByte(0)
	}
	return b.String()
}
