package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/workbench/cli/render"
	"github.com/pithecene-io/workbench/cli/tui"
	"github.com/pithecene-io/workbench/evaluate"
	"github.com/pithecene-io/workbench/frame"
)

// EvalCommand returns the eval command with subcommands.
// The evaluation table is built from the joined chain frame and the eval
// section of the config.
func EvalCommand() *cli.Command {
	return &cli.Command{
		Name:  "eval",
		Usage: "Build and score the evaluation table",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Create the evaluation table, or add missing generated columns",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rebuild",
						Usage: "Discard the saved table, including manual scores, and derive it again",
					},
					FormatFlag,
					NoColorFlag,
				},
				Action: evalRunAction,
			},
			{
				Name:      "show",
				Usage:     "Show the evaluation table, or one row of it",
				ArgsUsage: "[row]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of rows to show (0 = all)",
					},
					FormatFlag,
					NoColorFlag,
				},
				Action: evalShowAction,
			},
			{
				Name:      "set",
				Usage:     "Set one cell, e.g. a manual score",
				ArgsUsage: "<row> <column> <value>",
				Action:    evalSetAction,
			},
			{
				Name:   "stats",
				Usage:  "Summarize the generated columns",
				Flags:  ReadOnlyFlags(),
				Action: evalStatsAction,
			},
		},
	}
}

// openEvaluation joins the chain and opens the task's evaluation table.
func openEvaluation(t *task) (*evaluate.Evaluation, error) {
	ch, err := t.chain()
	if err != nil {
		return nil, err
	}
	src, err := ch.Frame()
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("combine failed: %v", err), 1)
	}
	ev, err := evaluate.Open(t.evalPath(), t.cfg.Eval, src, t.logger)
	if err != nil {
		if errors.Is(err, evaluate.ErrInvalidConfig) {
			return nil, cli.Exit(err.Error(), exitConfigError)
		}
		return nil, cli.Exit(fmt.Sprintf("evaluation failed: %v", err), 1)
	}
	return ev, nil
}

func evalRunAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	t, err := openTask(c)
	if err != nil {
		return err
	}

	if c.Bool("rebuild") {
		if err := os.Remove(t.evalPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cli.Exit(fmt.Sprintf("cannot remove %s: %v", t.evalPath(), err), exitSaveFailure)
		}
	}
	ev, err := openEvaluation(t)
	if err != nil {
		return err
	}
	t.logger.Info("evaluation ready", map[string]any{
		"path":    ev.Path(),
		"rows":    ev.Len(),
		"columns": len(ev.Columns()),
	})
	return r.Render(summaryOrEmpty(ev.Summary()))
}

// evalRow is the rendered form of one evaluation row.
type evalRow struct {
	Index   int          `json:"index"`
	Input   any          `json:"input"`
	Example any          `json:"example"`
	Outputs []evalOutput `json:"outputs"`
}

type evalOutput struct {
	Name   string         `json:"name"`
	Output any            `json:"output"`
	Scores map[string]any `json:"scores"`
}

func evalShowAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	t, err := openTask(c)
	if err != nil {
		return err
	}
	ev, err := openEvaluation(t)
	if err != nil {
		return err
	}

	if c.NArg() == 0 {
		return r.RenderFrame(head(ev.Frame(), c.Int("limit")))
	}

	i, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid row %q", c.Args().First()), 1)
	}
	row, err := ev.Get(i)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	view := evalRow{Index: row.Index, Input: row.Input, Example: row.Example, Outputs: []evalOutput{}}
	for _, o := range row.Outputs {
		view.Outputs = append(view.Outputs, evalOutput{Name: o.Name, Output: o.Value, Scores: o.Evals})
	}
	if r.Format() != render.FormatTable {
		return r.Render(view)
	}

	// Table: one line per cell of the row.
	rec, _ := ev.Frame().Row(i)
	cells := frame.New([]string{"column", "value"})
	for _, col := range ev.Frame().Columns {
		cells.Rows = append(cells.Rows, []any{col, rec[col]})
	}
	return r.RenderFrame(cells)
}

func evalSetAction(c *cli.Context) error {
	if c.NArg() < 3 {
		return cli.Exit("row, column, and value required", 1)
	}
	i, err := strconv.Atoi(c.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid row %q", c.Args().Get(0)), 1)
	}

	t, err := openTask(c)
	if err != nil {
		return err
	}
	ev, err := openEvaluation(t)
	if err != nil {
		return err
	}

	col := c.Args().Get(1)
	if !ev.Frame().Has(col) && ev.Frame().Has("__"+col) {
		col = "__" + col
	}
	if err := ev.Set(i, col, parseCell(c.Args().Get(2))); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "set row %d %s\n", i, col)
	return nil
}

// parseCell reads a typed value: bool, then integer, then float, then text.
// "null" clears the cell.
func parseCell(s string) any {
	if s == "null" {
		return nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func evalStatsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	t, err := openTask(c)
	if err != nil {
		return err
	}
	ev, err := openEvaluation(t)
	if err != nil {
		return err
	}

	summary := summaryOrEmpty(ev.Summary())
	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsEval, summary)
	}
	return r.Render(summary)
}

func summaryOrEmpty(s []evaluate.ColumnSummary) []evaluate.ColumnSummary {
	if s == nil {
		return []evaluate.ColumnSummary{}
	}
	return s
}
