package config

import "testing"

func TestExpand(t *testing.T) {
	env := map[string]string{
		"MODEL_BIN": "/usr/local/bin/agent",
		"USER_A":    "alice",
		"USER_B":    "bob",
		"EMPTY":     "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set", "command: ${MODEL_BIN}", "command: /usr/local/bin/agent"},
		{"unset", "value: ${NOPE}", "value: "},
		{"default when unset", "dir: ${NOPE:-.}", "dir: ."},
		{"default ignored when set", "${USER_A:-nobody}", "alice"},
		{"default when empty", "${EMPTY:-fallback}", "fallback"},
		{"empty default", "[${NOPE:-}]", "[]"},
		{"several", "${USER_A}:${USER_B}", "alice:bob"},
		{"escaped", "format: \"$${literal}\"", "format: \"${literal}\""},
		{"bare dollar", "cost: $5", "cost: $5"},
		{"no refs", "no variables here", "no variables here"},
		{"unterminated", "value: ${USER_A", "value: ${USER_A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expand(tt.input, lookup); got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExpandEnv_UsesProcessEnvironment(t *testing.T) {
	t.Setenv("WORKBENCH_TEST_KEY", "sk-test")

	input := `model:
  kind: process
  command: agent
  api_key: ${WORKBENCH_TEST_KEY}
  dir: ${WORKBENCH_TEST_DIR_UNSET:-.}`
	want := `model:
  kind: process
  command: agent
  api_key: sk-test
  dir: .`

	if got := ExpandEnv(input); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}
