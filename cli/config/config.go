package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/workbench/evaluate"
	"github.com/pithecene-io/workbench/log"
)

// Config represents a workbench.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	TaskDir string          `yaml:"task_dir"`
	Timeout Duration        `yaml:"timeout"`
	Trace   TraceConfig     `yaml:"trace"`
	Model   ModelConfig     `yaml:"model"`
	Export  ExportConfig    `yaml:"export"`
	Eval    evaluate.Config `yaml:"eval"`
	Log     LogConfig       `yaml:"log"`
}

// TraceConfig holds trace persistence defaults.
type TraceConfig struct {
	// Policy is one of interval, strict, manual.
	Policy    string `yaml:"policy"`
	SaveEvery int    `yaml:"save_every"`
	// Denylist replaces the default stripped event names when set.
	Denylist []string `yaml:"denylist,omitempty"`
}

// ModelConfig selects the model invoked by chat.
type ModelConfig struct {
	// Kind is echo or process.
	Kind    string            `yaml:"kind"`
	Prefix  string            `yaml:"prefix,omitempty"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Dir     string            `yaml:"dir,omitempty"`
	APIKey  string            `yaml:"api_key,omitempty"`
}

// ExportConfig holds trace export defaults.
type ExportConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// LogConfig holds logging defaults.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Accepted enum values.
const (
	PolicyInterval = "interval"
	PolicyStrict   = "strict"
	PolicyManual   = "manual"

	ModelEcho    = "echo"
	ModelProcess = "process"

	BackendFS = "fs"
	BackendS3 = "s3"
)

// Validate checks enum fields and cross-field requirements.
// Empty values are valid and resolve to command defaults.
func (c *Config) Validate() error {
	var errs []error

	switch c.Trace.Policy {
	case "", PolicyInterval, PolicyStrict, PolicyManual:
	default:
		errs = append(errs, fmt.Errorf("trace.policy: unknown policy %q", c.Trace.Policy))
	}
	if c.Trace.SaveEvery < 0 {
		errs = append(errs, fmt.Errorf("trace.save_every: must be >= 1, got %d", c.Trace.SaveEvery))
	}

	switch c.Model.Kind {
	case "", ModelEcho:
	case ModelProcess:
		if c.Model.Command == "" {
			errs = append(errs, errors.New("model.command: required for process models"))
		}
	default:
		errs = append(errs, fmt.Errorf("model.kind: unknown kind %q", c.Model.Kind))
	}

	switch c.Export.Backend {
	case "", BackendFS, BackendS3:
	default:
		errs = append(errs, fmt.Errorf("export.backend: unknown backend %q", c.Export.Backend))
	}
	if c.Export.Backend == BackendS3 && c.Export.Path == "" {
		errs = append(errs, errors.New("export.path: bucket required for s3 backend"))
	}

	if c.Log.Level != "" {
		if _, err := log.ParseLevel(c.Log.Level); err != nil {
			errs = append(errs, fmt.Errorf("log.level: %w", err))
		}
	}
	if c.Timeout.Duration < 0 {
		errs = append(errs, errors.New("timeout: must not be negative"))
	}

	if err := c.Eval.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("eval: %w", err))
	}
	return errors.Join(errs...)
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
