package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/workbench/chain"
	"github.com/pithecene-io/workbench/cli/config"
	"github.com/pithecene-io/workbench/codec"
	"github.com/pithecene-io/workbench/evaluate"
	"github.com/pithecene-io/workbench/log"
	"github.com/pithecene-io/workbench/metrics"
	"github.com/pithecene-io/workbench/model"
	"github.com/pithecene-io/workbench/tracelog"
	"github.com/pithecene-io/workbench/types"
)

// Task directory layout.
const (
	LogFile    = "chat.log"
	DataDir    = "data"
	ArchiveDir = "archive"
	ExportDir  = "export"
)

// Exit codes.
const (
	exitSuccess     = 0
	exitModelError  = 1
	exitConfigError = 2
	exitSaveFailure = 3
)

// task is everything a command needs to work on one task directory.
type task struct {
	cfg     *config.Config
	dir     string
	name    string
	logger  *log.Logger
	metrics *metrics.Collector
	codec   *codec.Codec
}

// openTask loads the config and resolves the task directory. Flags
// override config values. Configuration problems exit with exitConfigError.
func openTask(c *cli.Context) (*task, error) {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfigError)
	}

	dir := cfg.TaskDir
	if v := c.String("task"); v != "" {
		dir = v
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cli.Exit(fmt.Sprintf("cannot create task directory %s: %v", dir, err), exitConfigError)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if v := c.String("log-level"); v != "" {
		level = v
	}
	if level == "" {
		level = "warn"
	}
	logger, err := log.New(log.Options{Task: filepath.Base(abs), Level: level, Output: c.App.ErrWriter})
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfigError)
	}

	reg := codec.NewRegistry(types.Namespace)
	if err := types.Register(reg); err != nil {
		return nil, err
	}
	if err := model.Register(reg); err != nil {
		return nil, err
	}
	secrets := map[string]string{}
	if cfg.Model.APIKey != "" {
		secrets[model.APIKeyEnv] = cfg.Model.APIKey
	}

	return &task{
		cfg:    cfg,
		dir:    abs,
		name:   filepath.Base(abs),
		logger: logger,
		codec:  codec.New(reg, codec.WithSecrets(secrets)),
		metrics: metrics.NewCollector(
			filepath.Base(abs),
			orDefault(cfg.Trace.Policy, config.PolicyInterval),
			orDefault(cfg.Model.Kind, config.ModelEcho),
			orDefault(cfg.Export.Backend, config.BackendFS),
		),
	}, nil
}

func (t *task) logPath() string  { return filepath.Join(t.dir, LogFile) }
func (t *task) dataDir() string  { return filepath.Join(t.dir, DataDir) }
func (t *task) evalPath() string { return filepath.Join(t.dir, evaluate.DataFile) }

// traces opens the task's trace log.
func (t *task) traces() *tracelog.Store {
	return tracelog.Open(t.logPath(), t.codec, t.logger)
}

// chain opens the task's source chain, warning about skipped elements.
func (t *task) chain() (*chain.Chain, error) {
	ch, err := chain.Open(t.dataDir(), t.logger, t.metrics)
	if err != nil {
		return nil, err
	}
	if skipped := ch.Skipped(); skipped != nil {
		t.logger.Warn("chain elements skipped", map[string]any{"error": skipped.Error()})
	}
	return ch, nil
}

// element resolves a chain element by name or index.
func element(ch *chain.Chain, ref string) (int, error) {
	if i, ok := ch.Find(ref); ok {
		return i, nil
	}
	if i, err := strconv.Atoi(ref); err == nil && i >= 0 && i < ch.Len() {
		return i, nil
	}
	return -1, cli.Exit(fmt.Sprintf("no chain element %q", ref), 1)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
