package frame

import (
	"fmt"
	"strings"
)

// Keys is a list of column names. In JSON it accepts a list, a single
// name, or a string holding a JSON list (as typed into a form field).
type Keys []string

// UnmarshalJSON implements json.Unmarshaler.
func (k *Keys) UnmarshalJSON(data []byte) error {
	var list []string
	if err := jsonAPI.Unmarshal(data, &list); err == nil {
		*k = list
		return nil
	}

	var s string
	if err := jsonAPI.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("keys: want list or string, got %s", data)
	}
	parsed, err := ParseKeys(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKeys parses a comma list, a JSON list, or a single name.
// Blank input yields nil.
func ParseKeys(s string) (Keys, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "[") {
		var list []string
		if err := jsonAPI.Unmarshal([]byte(s), &list); err != nil {
			return nil, fmt.Errorf("keys %q: %w", s, err)
		}
		return list, nil
	}
	var out Keys
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}
