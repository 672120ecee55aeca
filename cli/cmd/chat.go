package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/workbench/cli/config"
	"github.com/pithecene-io/workbench/codec"
	"github.com/pithecene-io/workbench/engine"
	"github.com/pithecene-io/workbench/iox"
	"github.com/pithecene-io/workbench/metrics"
	"github.com/pithecene-io/workbench/model"
	"github.com/pithecene-io/workbench/policy"
	"github.com/pithecene-io/workbench/tracer"
)

// ChatCommand returns the chat command.
// chat run is the only command that invokes a model.
func ChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Talk to a model and record traces",
		Subcommands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Invoke the model once per message (arguments, or stdin lines)",
				ArgsUsage: "[message...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "model",
						Usage: "Model kind: echo or process (overrides model.kind)",
					},
					&cli.StringFlag{
						Name:  "command",
						Usage: "Model command for process models (overrides model.command)",
					},
					&cli.StringFlag{
						Name:  "policy",
						Usage: "Save policy: interval, strict, manual (overrides trace.policy)",
					},
					&cli.IntFlag{
						Name:  "save-every",
						Usage: "Save after every N stored traces (interval policy)",
					},
					&cli.BoolFlag{
						Name:  "save",
						Usage: "Save the trace log once more after the last message",
					},
					&cli.StringSliceFlag{
						Name:  "tag",
						Usage: "Tag attached to every root run",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Per-message timeout (overrides timeout)",
					},
					&cli.BoolFlag{
						Name:  "quiet",
						Usage: "Do not stream tokens",
					},
				},
				Action: chatRunAction,
			},
		},
	}
}

// chatChoice holds the resolved chat settings.
type chatChoice struct {
	policy    string
	saveEvery int
	timeout   time.Duration
	model     config.ModelConfig
}

func resolveChat(c *cli.Context, cfg *config.Config) (chatChoice, error) {
	choice := chatChoice{
		policy:    orDefault(cfg.Trace.Policy, config.PolicyInterval),
		saveEvery: cfg.Trace.SaveEvery,
		timeout:   cfg.Timeout.Duration,
		model:     cfg.Model,
	}
	if v := c.String("policy"); v != "" {
		choice.policy = v
	}
	if c.IsSet("save-every") {
		choice.saveEvery = c.Int("save-every")
	}
	if choice.saveEvery == 0 {
		choice.saveEvery = 1
	}
	if c.IsSet("timeout") {
		choice.timeout = c.Duration("timeout")
	}
	if v := c.String("model"); v != "" {
		choice.model.Kind = v
	}
	if v := c.String("command"); v != "" {
		choice.model.Command = v
	}
	choice.model.Kind = orDefault(choice.model.Kind, config.ModelEcho)

	// Re-validate: flags bypass the config file checks.
	check := config.Config{
		Trace: config.TraceConfig{Policy: choice.policy, SaveEvery: choice.saveEvery},
		Model: choice.model,
	}
	return choice, check.Validate()
}

func chatRunAction(c *cli.Context) error {
	t, err := openTask(c)
	if err != nil {
		return err
	}
	defer iox.DiscardErr(t.logger.Sync)

	choice, err := resolveChat(c, t.cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid chat config: %v", err), exitConfigError)
	}
	t.metrics = metrics.NewCollector(t.name, choice.policy, choice.model.Kind,
		orDefault(t.cfg.Export.Backend, config.BackendFS))

	m, err := buildModel(choice.model, t)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	pol, err := buildPolicy(choice, t)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	var denylist []string
	if len(t.cfg.Trace.Denylist) > 0 {
		denylist = t.cfg.Trace.Denylist
	}
	collector := tracer.NewCollector(pol, tracer.Options{
		Logger:   t.logger,
		Metrics:  t.metrics,
		Denylist: denylist,
	})
	listeners := []engine.Listener{collector}
	if !c.Bool("quiet") {
		listeners = append(listeners, tracer.NewStreamer(c.App.Writer))
	}
	ecfg := engine.Config{
		Listeners:  listeners,
		Tags:       c.StringSlice("tag"),
		Serialized: t.codec.Represent(m.(codec.Serializable)),
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed := 0
	err = eachMessage(c, func(text string) error {
		callCtx, cancel := withTimeout(ctx, choice.timeout)
		defer cancel()
		if _, err := engine.Invoke(callCtx, m, model.Input(text), ecfg); err != nil {
			failed++
			t.logger.Warn("model invocation failed", map[string]any{"error": err.Error()})
		}
		return ctx.Err()
	})
	if err != nil && ctx.Err() == nil {
		return err
	}

	if c.Bool("save") {
		if err := pol.Save(); err != nil {
			return cli.Exit(fmt.Sprintf("trace save failed: %v", err), exitSaveFailure)
		}
	}

	stats := pol.Stats()
	t.metrics.AbsorbPolicyStats(stats.SaveCount, stats.SaveErrors)
	logChatSummary(t, stats)

	if err := collector.Err(); err != nil {
		return cli.Exit(fmt.Sprintf("trace save failed: %v", err), exitSaveFailure)
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d message(s) failed", failed), exitModelError)
	}
	return nil
}

// eachMessage calls fn with the joined arguments, or with every non-blank
// stdin line when there are none. A prompt is shown when stdin is a terminal.
func eachMessage(c *cli.Context, fn func(string) error) error {
	if c.NArg() > 0 {
		return fn(strings.Join(c.Args().Slice(), " "))
	}

	in := io.Reader(os.Stdin)
	if c.App.Reader != nil {
		in = c.App.Reader
	}
	prompt := isStdinTTY() && in == io.Reader(os.Stdin)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		if prompt {
			fmt.Fprint(c.App.ErrWriter, "> ")
		}
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := fn(text); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func buildModel(mc config.ModelConfig, t *task) (engine.Model, error) {
	switch mc.Kind {
	case config.ModelEcho:
		return &model.Echo{Prefix: mc.Prefix}, nil
	case config.ModelProcess:
		return &model.Process{
			Command: mc.Command,
			Args:    mc.Args,
			Env:     mc.Env,
			Dir:     mc.Dir,
			APIKey:  mc.APIKey,
			Logger:  t.logger,
			Metrics: t.metrics,
		}, nil
	default:
		return nil, fmt.Errorf("unknown model kind: %s (must be echo or process)", mc.Kind)
	}
}

func buildPolicy(choice chatChoice, t *task) (policy.Policy, error) {
	store := t.traces()
	switch choice.policy {
	case config.PolicyInterval:
		return policy.NewIntervalPolicy(store, choice.saveEvery, t.logger)
	case config.PolicyStrict:
		return policy.NewStrictPolicy(store), nil
	case config.PolicyManual:
		return policy.NewManualPolicy(store), nil
	default:
		return nil, fmt.Errorf("unknown policy: %s (must be interval, strict, or manual)", choice.policy)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func logChatSummary(t *task, stats policy.Stats) {
	snap := t.metrics.Snapshot()
	t.logger.Info("chat finished", map[string]any{
		"policy":           snap.Policy,
		"model":            snap.Model,
		"runs_started":     snap.RunsStarted,
		"runs_failed":      snap.RunsFailed,
		"traces_persisted": snap.TracesPersisted,
		"traces_rejected":  snap.TracesRejected,
		"events_stripped":  snap.EventsStripped,
		"saves":            stats.SaveCount,
		"save_failures":    stats.SaveErrors,
		"pending":          stats.Pending,
	})
}

// isStdinTTY returns true if stdin is a terminal.
func isStdinTTY() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
