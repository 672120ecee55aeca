package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	t.Setenv("TEST_WORKBENCH_KEY", "sk-123")
	yaml := `task_dir: ./tasks/demo
timeout: 2m
trace:
  policy: interval
  save_every: 5
model:
  kind: process
  command: ./agent
  args: ["--fast"]
  env:
    MODE: test
  api_key: ${TEST_WORKBENCH_KEY}
export:
  dataset: traces
  backend: s3
  path: my-bucket/workbench
  region: us-east-1
  endpoint: http://localhost:9000
  s3_path_style: true
eval:
  input: "Q: {question}"
  example: answer
  outputs:
    - name: model
      format: "{prediction}"
  evaluators:
    - name: exact
      type: full_match
log:
  level: info
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	assertEqual(t, "task_dir", cfg.TaskDir, "./tasks/demo")
	assertEqual(t, "trace.policy", cfg.Trace.Policy, "interval")
	assertEqual(t, "model.kind", cfg.Model.Kind, "process")
	assertEqual(t, "model.command", cfg.Model.Command, "./agent")
	assertEqual(t, "model.api_key", cfg.Model.APIKey, "sk-123")
	assertEqual(t, "model.env.MODE", cfg.Model.Env["MODE"], "test")
	assertEqual(t, "export.backend", cfg.Export.Backend, "s3")
	assertEqual(t, "export.path", cfg.Export.Path, "my-bucket/workbench")
	assertEqual(t, "export.endpoint", cfg.Export.Endpoint, "http://localhost:9000")
	assertEqual(t, "eval.input", cfg.Eval.Input, "Q: {question}")
	assertEqual(t, "eval.example", cfg.Eval.Example, "answer")
	assertEqual(t, "log.level", cfg.Log.Level, "info")

	if cfg.Trace.SaveEvery != 5 {
		t.Errorf("trace.save_every: got %d, want 5", cfg.Trace.SaveEvery)
	}
	if cfg.Timeout.Duration != 2*time.Minute {
		t.Errorf("timeout: got %v, want 2m", cfg.Timeout.Duration)
	}
	if !cfg.Export.S3PathStyle {
		t.Error("export.s3_path_style: got false, want true")
	}
	if len(cfg.Model.Args) != 1 || cfg.Model.Args[0] != "--fast" {
		t.Errorf("model.args: got %v", cfg.Model.Args)
	}
	if len(cfg.Eval.Outputs) != 1 || cfg.Eval.Outputs[0].Format != "{prediction}" {
		t.Errorf("eval.outputs: got %+v", cfg.Eval.Outputs)
	}
	if len(cfg.Eval.Evaluators) != 1 || cfg.Eval.Evaluators[0].Type != "full_match" {
		t.Errorf("eval.evaluators: got %+v", cfg.Eval.Evaluators)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeTemp(t, "trace: [unclosed\n"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "invalid YAML") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	yaml := `task_dir: ./demo
bogus_key: should_fail
`
	_, err := Load(writeTemp(t, yaml))
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "bogus_key") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_UnknownNestedKeyRejected(t *testing.T) {
	yaml := `export:
  backend: fs
  path: ./data
  unknown_field: bad
`
	_, err := Load(writeTemp(t, yaml))
	if err == nil {
		t.Fatal("expected error for unknown nested key, got nil")
	}
	if !strings.Contains(err.Error(), "unknown_field") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_WhitespaceOnlyConfig(t *testing.T) {
	cfg, err := Load(writeTemp(t, "   \n  \n  \n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TaskDir != "" || cfg.Model.Kind != "" {
		t.Errorf("expected zero config, got %+v", cfg)
	}
}

func TestLoad_CommentsOnlyConfig(t *testing.T) {
	cfg, err := Load(writeTemp(t, "# This is a comment\n# Another comment\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TaskDir != "" {
		t.Errorf("expected zero config, got %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown policy", "trace:\n  policy: sometimes\n", "trace.policy"},
		{"negative save_every", "trace:\n  save_every: -1\n", "trace.save_every"},
		{"unknown model", "model:\n  kind: oracle\n", "model.kind"},
		{"process without command", "model:\n  kind: process\n", "model.command"},
		{"unknown backend", "export:\n  backend: ftp\n", "export.backend"},
		{"s3 without bucket", "export:\n  backend: s3\n", "export.path"},
		{"bad log level", "log:\n  level: loud\n", "log.level"},
		{"unknown evaluator", "eval:\n  evaluators:\n    - name: x\n      type: vibes\n", "eval"},
		{"duplicate output", "eval:\n  outputs:\n    - name: a\n    - name: a\n", "eval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Trace:  TraceConfig{Policy: "nope"},
		Export: ExportConfig{Backend: "nope"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, field := range []string{"trace.policy", "export.backend"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestDuration_InvalidFormat(t *testing.T) {
	_, err := Load(writeTemp(t, "timeout: not-a-duration\n"))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDuration_EmptyIsZero(t *testing.T) {
	cfg, err := Load(writeTemp(t, "timeout: \"\"\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Timeout.Duration != 0 {
		t.Errorf("expected zero duration, got %v", cfg.Timeout.Duration)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := LoadOptional("")
	if err != nil {
		t.Fatalf("LoadOptional without file: %v", err)
	}
	if cfg == nil || cfg.TaskDir != "" {
		t.Fatalf("expected empty config, got %+v", cfg)
	}

	if err := os.WriteFile(DefaultFile, []byte("task_dir: found\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional("")
	if err != nil {
		t.Fatalf("LoadOptional with default file: %v", err)
	}
	assertEqual(t, "task_dir", cfg.TaskDir, "found")

	if _, err := LoadOptional(filepath.Join(dir, "other.yaml")); err == nil {
		t.Error("explicit missing path should fail")
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "workbench.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
