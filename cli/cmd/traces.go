package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	lodeapi "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/workbench/archive"
	"github.com/pithecene-io/workbench/cli/config"
	"github.com/pithecene-io/workbench/cli/reader"
	"github.com/pithecene-io/workbench/cli/render"
	"github.com/pithecene-io/workbench/cli/tui"
	"github.com/pithecene-io/workbench/iox"
	"github.com/pithecene-io/workbench/lode"
	"github.com/pithecene-io/workbench/metrics"
)

// TracesCommand returns the traces command with subcommands.
// Everything except export and archive is read-only.
func TracesCommand() *cli.Command {
	return &cli.Command{
		Name:  "traces",
		Usage: "Read, export, and archive recorded traces",
		Subcommands: []*cli.Command{
			tracesListCommand(),
			tracesInspectCommand(),
			tracesStatsCommand(),
			tracesExportCommand(),
			tracesExportedCommand(),
			tracesArchiveCommand(),
		},
	}
}

func tracesListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List root traces, newest first",
		Flags: withReadOnly(
			&cli.StringFlag{
				Name:  "state",
				Usage: "Filter by state: succeeded, failed, running",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of traces to return (0 = no limit)",
			},
		),
		Action: tracesListAction,
	}
}

func tracesListAction(c *cli.Context) error {
	if err := rejectTUI(c, "traces list"); err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	state := c.String("state")
	switch state {
	case "", reader.StateSucceeded, reader.StateFailed, reader.StateRunning:
	default:
		return cli.Exit(fmt.Sprintf("invalid state: %q (must be succeeded, failed, or running)", state), 1)
	}

	t, err := openTask(c)
	if err != nil {
		return err
	}
	store := t.traces()
	return r.Render(reader.ListTraces(store.Traces(), reader.ListTracesOptions{
		State: state,
		Limit: c.Int("limit"),
	}))
}

func tracesInspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Inspect one trace and its run tree",
		ArgsUsage: "<run-id>",
		Flags:     ReadOnlyFlags(),
		Action:    tracesInspectAction,
	}
}

func tracesInspectAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("run-id required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	t, err := openTask(c)
	if err != nil {
		return err
	}

	resp, err := reader.InspectTrace(t.traces().Traces(), c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectTrace, resp)
	}
	if r.Format() != render.FormatTable {
		return r.Render(resp)
	}

	// Table: summary first, then one row per run.
	summary := *resp
	summary.Runs = nil
	if err := r.Render(summary); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer)
	return r.Render(resp.Runs)
}

func tracesStatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Aggregate trace and run counts",
		Flags:  ReadOnlyFlags(),
		Action: tracesStatsAction,
	}
}

func tracesStatsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	t, err := openTask(c)
	if err != nil {
		return err
	}

	stats := reader.StatsTraces(t.traces().Traces())
	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsTraces, stats)
	}
	return r.Render(stats)
}

// exportFlags are shared by export and exported. Unset flags fall back to
// the export section of the config.
func exportFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Storage backend: fs or s3 (overrides export.backend)",
		},
		&cli.StringFlag{
			Name:  "path",
			Usage: "Directory (fs) or bucket/prefix (s3) (overrides export.path)",
		},
		&cli.StringFlag{
			Name:  "dataset",
			Usage: "Dataset id (overrides export.dataset)",
		},
		&cli.StringFlag{
			Name:  "region",
			Usage: "AWS region for s3 (overrides export.region)",
		},
		&cli.StringFlag{
			Name:  "endpoint",
			Usage: "Custom S3 endpoint URL (overrides export.endpoint)",
		},
		&cli.BoolFlag{
			Name:  "s3-path-style",
			Usage: "Force path-style S3 addressing (overrides export.s3_path_style)",
		},
	}
}

// exportTarget is the resolved export destination.
type exportTarget struct {
	backend string
	path    string
	dataset string
}

// openDataset resolves the export flags against cfg and opens the dataset.
func openDataset(c *cli.Context, t *task) (lodeapi.Dataset, exportTarget, error) {
	ec := t.cfg.Export
	target := exportTarget{
		backend: orDefault(c.String("backend"), orDefault(ec.Backend, config.BackendFS)),
		path:    orDefault(c.String("path"), ec.Path),
		dataset: orDefault(c.String("dataset"), orDefault(ec.Dataset, lode.DefaultDataset)),
	}

	switch target.backend {
	case config.BackendFS:
		if target.path == "" {
			target.path = filepath.Join(t.dir, ExportDir)
		}
		if err := os.MkdirAll(target.path, 0o755); err != nil {
			return nil, target, cli.Exit(fmt.Sprintf("cannot create export directory: %v", err), exitConfigError)
		}
		ds, err := lode.NewDatasetFS(target.dataset, target.path)
		return ds, target, err

	case config.BackendS3:
		bucket, prefix := lode.ParseS3Path(target.path)
		s3cfg := lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       orDefault(c.String("region"), ec.Region),
			Endpoint:     orDefault(c.String("endpoint"), ec.Endpoint),
			UsePathStyle: ec.S3PathStyle || c.Bool("s3-path-style"),
		}
		if err := s3cfg.Validate(); err != nil {
			return nil, target, cli.Exit(fmt.Sprintf("invalid export config: %v", err), exitConfigError)
		}
		ds, err := lode.NewDatasetS3(c.Context, target.dataset, s3cfg)
		return ds, target, err

	default:
		return nil, target, cli.Exit(
			fmt.Sprintf("unknown export backend: %s (must be fs or s3)", target.backend), exitConfigError)
	}
}

func tracesExportCommand() *cli.Command {
	return &cli.Command{
		Name:   "export",
		Usage:  "Write traces not yet exported to a partitioned dataset",
		Flags:  append(exportFlags(), FormatFlag, NoColorFlag),
		Action: tracesExportAction,
	}
}

// exportResult is rendered after an export.
type exportResult struct {
	Dataset string `json:"dataset"`
	Backend string `json:"backend"`
	Path    string `json:"path"`
	Written int    `json:"written"`
	Total   int    `json:"total"`
}

func tracesExportAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	t, err := openTask(c)
	if err != nil {
		return err
	}
	defer iox.DiscardErr(t.logger.Sync)

	ds, target, err := openDataset(c, t)
	if err != nil {
		return exportExit(err)
	}
	snap := t.metrics.Snapshot()
	t.metrics = metrics.NewCollector(t.name, snap.Policy, snap.Model, target.backend)

	traces := t.traces().Traces()
	written, err := lode.NewExporter(ds, t.name, t.codec, t.logger, t.metrics).Export(c.Context, traces)
	if err != nil {
		return exportExit(err)
	}
	snap = t.metrics.Snapshot()
	t.logger.Info("export finished", map[string]any{
		"dataset":       target.dataset,
		"backend":       snap.StorageBackend,
		"written":       written,
		"write_success": snap.ExportWriteSuccess,
		"write_failure": snap.ExportWriteFailure,
	})
	return r.Render(exportResult{
		Dataset: target.dataset,
		Backend: target.backend,
		Path:    target.path,
		Written: written,
		Total:   len(traces),
	})
}

func tracesExportedCommand() *cli.Command {
	return &cli.Command{
		Name:  "exported",
		Usage: "List traces already in the export dataset",
		Flags: append(exportFlags(),
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Include every task in the dataset",
			},
			FormatFlag, NoColorFlag,
		),
		Action: tracesExportedAction,
	}
}

func tracesExportedAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	t, err := openTask(c)
	if err != nil {
		return err
	}

	ds, _, err := openDataset(c, t)
	if err != nil {
		return exportExit(err)
	}
	taskName := t.name
	if c.Bool("all") {
		taskName = ""
	}
	traces, err := lode.ReadExport(c.Context, ds, taskName, t.codec, t.logger)
	if err != nil {
		return exportExit(err)
	}
	return r.Render(reader.ListExported(traces))
}

// exportExit maps storage failures to exitSaveFailure. cli exit errors pass
// through unchanged.
func exportExit(err error) error {
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return err
	}
	return cli.Exit(fmt.Sprintf("export failed: %v", err), exitSaveFailure)
}

func tracesArchiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "archive",
		Usage: "Compress the trace log, or restore it from an archive",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Usage: "Archive destination (default: <task>/archive/chat.log.zst)",
			},
			&cli.StringFlag{
				Name:  "restore",
				Usage: "Replace the trace log with the contents of this archive",
			},
			FormatFlag,
			NoColorFlag,
		},
		Action: tracesArchiveAction,
	}
}

// archiveResult is rendered after an archive or restore.
type archiveResult struct {
	Source       string  `json:"source"`
	Destination  string  `json:"destination"`
	Uncompressed int64   `json:"uncompressed,omitempty"`
	Compressed   int64   `json:"compressed,omitempty"`
	Ratio        float64 `json:"ratio,omitempty"`
}

func tracesArchiveAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	t, err := openTask(c)
	if err != nil {
		return err
	}

	if src := c.String("restore"); src != "" {
		if err := archive.Restore(t.logPath(), src); err != nil {
			return cli.Exit(fmt.Sprintf("restore failed: %v", err), exitSaveFailure)
		}
		t.logger.Info("trace log restored", map[string]any{"archive": src})
		return r.Render(archiveResult{Source: src, Destination: t.logPath()})
	}

	dest := c.String("out")
	if dest == "" {
		dest = filepath.Join(t.dir, ArchiveDir, LogFile+archive.Ext)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return cli.Exit(fmt.Sprintf("cannot create archive directory: %v", err), exitSaveFailure)
	}
	stats, err := archive.Write(dest, t.logPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cli.Exit("no trace log to archive", 1)
		}
		return cli.Exit(fmt.Sprintf("archive failed: %v", err), exitSaveFailure)
	}
	t.logger.Info("trace log archived", map[string]any{
		"dest":         dest,
		"uncompressed": stats.Uncompressed,
		"compressed":   stats.Compressed,
	})
	return r.Render(archiveResult{
		Source:       t.logPath(),
		Destination:  dest,
		Uncompressed: stats.Uncompressed,
		Compressed:   stats.Compressed,
		Ratio:        stats.Ratio(),
	})
}

// rejectTUI returns an error when --tui is set on a command without a TUI view.
func rejectTUI(c *cli.Context, command string) error {
	if c.Bool("tui") {
		return cli.Exit(fmt.Sprintf("--tui is not supported for %s", command), 1)
	}
	return nil
}
