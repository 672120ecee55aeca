package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/workbench/cli/render"
	"github.com/pithecene-io/workbench/types"
)

// VersionResponse is the response for the version command.
// Version is also the trace format version written by the codec.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// VersionCommand returns the version command. It never opens a task.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		if err := rejectTUI(c, "version"); err != nil {
			return err
		}
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		return r.Render(VersionResponse{
			Version: types.Version,
			Commit:  commit,
		})
	}
}
