// Package cmd provides CLI commands for the workbench binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for select read-only commands (inspect, stats).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect, stats only)",
	}
)

// GlobalFlags returns the flags accepted before any command. Subcommands
// read them through the context lineage.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to workbench.yaml (default: ./workbench.yaml if present)",
			EnvVars: []string{"WORKBENCH_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "task",
			Aliases: []string{"t"},
			Usage:   "Task directory (overrides task_dir)",
			EnvVars: []string{"WORKBENCH_TASK"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error (overrides log.level)",
		},
	}
}

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// withReadOnly appends the read-only flags to flags.
func withReadOnly(flags ...cli.Flag) []cli.Flag {
	return append(flags, ReadOnlyFlags()...)
}
