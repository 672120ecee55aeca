package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/workbench/types"
)

// NewApp assembles the workbench command tree. The caller sets the exit
// handler and, in tests, the reader and writers.
func NewApp(commit string) *cli.App {
	return &cli.App{
		Name:    "workbench",
		Usage:   "Record model traces and evaluate outputs over tabular data",
		Version: fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:   GlobalFlags(),
		Commands: []*cli.Command{
			ChatCommand(),
			TracesCommand(),
			ChainCommand(),
			EvalCommand(),
			VersionCommand(commit),
		},
	}
}
