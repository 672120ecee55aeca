package evaluate

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// ErrMissingField is returned when a template names a column the row lacks.
var ErrMissingField = errors.New("missing field")

// ErrBadTemplate is returned for an unbalanced brace.
var ErrBadTemplate = errors.New("bad template")

// Format renders tmpl against row. {name} is replaced by the row's value
// for column name; {{ and }} produce literal braces.
func Format(tmpl string, row map[string]any) (string, error) {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		switch ch {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed { at %d", ErrBadTemplate, i)
			}
			name := tmpl[i+1 : i+1+end]
			v, ok := row[name]
			if !ok {
				return "", fmt.Errorf("%w: %s", ErrMissingField, name)
			}
			b.WriteString(Text(v))
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: single } at %d", ErrBadTemplate, i)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), nil
}

// Text renders a cell value for display and comparison. Null is empty.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatFloat(x, 'f', 1, 64)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}
