// Package config handles workbench.yaml loading and validation.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envRef matches $${ (an escaped literal), ${VAR} and ${VAR:-default}.
var envRef = regexp.MustCompile(`\$\$\{|\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv expands environment references in a config file before it is
// parsed. See Expand.
func ExpandEnv(input string) string {
	return Expand(input, os.LookupEnv)
}

// Expand replaces ${VAR} with lookup(VAR) and ${VAR:-default} with default
// when VAR is unset or empty. $${ yields a literal ${. Unset variables
// without a default expand to nothing; required fields such as
// model.command fail validation afterwards.
func Expand(input string, lookup func(string) (string, bool)) string {
	matches := envRef.FindAllStringSubmatchIndex(input, -1)
	if matches == nil {
		return input
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(input[last:m[0]])
		last = m[1]

		if m[2] < 0 {
			b.WriteString("${")
			continue
		}
		if v, ok := lookup(input[m[2]:m[3]]); ok && v != "" {
			b.WriteString(v)
		} else if m[4] >= 0 {
			b.WriteString(input[m[4]:m[5]])
		}
	}
	b.WriteString(input[last:])
	return b.String()
}
