package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/workbench/chain"
	"github.com/pithecene-io/workbench/cli/reader"
	"github.com/pithecene-io/workbench/cli/render"
	"github.com/pithecene-io/workbench/frame"
	"github.com/pithecene-io/workbench/source"
)

// ChainCommand returns the chain command with subcommands.
// Elements are addressed by file name or index.
func ChainCommand() *cli.Command {
	return &cli.Command{
		Name:  "chain",
		Usage: "Build the chain of tabular sources behind an evaluation",
		Subcommands: []*cli.Command{
			chainAddCommand(),
			chainListCommand(),
			chainRemoveCommand(),
			chainMoveCommand("up", "Move an element one place up", (*chain.Chain).MoveUp),
			chainMoveCommand("down", "Move an element one place down", (*chain.Chain).MoveDown),
			chainSetCommand(),
			chainOptionsCommand(),
			chainShowCommand(),
		},
	}
}

func chainAddCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Copy CSV or JSONL files into the chain (globs and ** supported)",
		ArgsUsage: "<path|glob>...",
		Action:    chainAddAction,
	}
}

func chainAddAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("at least one path required", 1)
	}
	t, err := openTask(c)
	if err != nil {
		return err
	}
	ch, err := t.chain()
	if err != nil {
		return err
	}

	sugar := t.logger.Sugar()
	for _, arg := range c.Args().Slice() {
		if isGlob(arg) {
			names, err := ch.AddGlob(arg)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			sugar.Infof("glob %s matched %d file(s)", arg, len(names))
			for _, name := range names {
				fmt.Fprintf(c.App.Writer, "added %s\n", name)
			}
			continue
		}
		e, err := ch.Add(arg)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		fmt.Fprintf(c.App.Writer, "added %s\n", e.Name())
	}
	return nil
}

func isGlob(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

func chainListCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List chain elements and their combinations",
		Flags:  ReadOnlyFlags(),
		Action: chainListAction,
	}
}

func chainListAction(c *cli.Context) error {
	if err := rejectTUI(c, "chain list"); err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	t, err := openTask(c)
	if err != nil {
		return err
	}
	ch, err := t.chain()
	if err != nil {
		return err
	}
	return r.Render(reader.ListChain(ch))
}

func chainRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Remove an element and delete its file",
		ArgsUsage: "<name|index>",
		Action: func(c *cli.Context) error {
			return withElement(c, func(ch *chain.Chain, i int) error {
				name := ch.Elements()[i].Name()
				if err := ch.Delete(i); err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "removed %s\n", name)
				return nil
			})
		},
	}
}

func chainMoveCommand(name, usage string, move func(*chain.Chain, int) error) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<name|index>",
		Action: func(c *cli.Context) error {
			return withElement(c, move)
		},
	}
}

func chainSetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Change how an element joins onto the elements before it",
		ArgsUsage: "<name|index>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "type",
				Usage: "Combination: concat or merge (merge fills default keys)",
			},
			&cli.StringFlag{
				Name:  "join",
				Usage: "Concat column handling: outer or inner",
			},
			&cli.StringFlag{
				Name:  "how",
				Usage: "Merge join type: inner, left, right, outer",
			},
			&cli.StringFlag{
				Name:  "on",
				Usage: "Merge key column(s) present on both sides, comma separated",
			},
			&cli.StringFlag{
				Name:  "left-on",
				Usage: "Merge key column(s) of the preceding frame",
			},
			&cli.StringFlag{
				Name:  "right-on",
				Usage: "Merge key column(s) of this element",
			},
			&cli.StringFlag{
				Name:  "suffixes",
				Usage: "Suffixes for overlapping columns, e.g. _x,_y",
			},
		},
		Action: chainSetAction,
	}
}

func chainSetAction(c *cli.Context) error {
	patch, err := mergePatch(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	return withElement(c, func(ch *chain.Chain, i int) error {
		if kind := c.String("type"); kind != "" {
			if err := ch.SetKind(i, source.Kind(kind)); err != nil {
				return err
			}
		}
		if join := c.String("join"); join != "" {
			comb := ch.Elements()[i].Combination
			if comb.IsMerge() {
				return fmt.Errorf("--join applies to concat elements only")
			}
			comb.Concat.Join = join
			if err := ch.SetCombination(i, comb); err != nil {
				return err
			}
		}
		if patch != nil {
			if err := ch.UpdateMerge(i, *patch); err != nil {
				return err
			}
		}
		// Surface join errors now rather than at evaluation time.
		_, err := ch.FrameAt(i)
		return err
	})
}

// mergePatch collects the merge flags. Nil means none were given.
func mergePatch(c *cli.Context) (*frame.MergeArgs, error) {
	var patch frame.MergeArgs
	set := false

	if how := c.String("how"); how != "" {
		patch.How = how
		set = true
	}
	for _, kf := range []struct {
		flag string
		dst  *frame.Keys
	}{
		{"on", &patch.On},
		{"left-on", &patch.LeftOn},
		{"right-on", &patch.RightOn},
	} {
		v := c.String(kf.flag)
		if v == "" {
			continue
		}
		keys, err := frame.ParseKeys(v)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", kf.flag, err)
		}
		*kf.dst = keys
		set = true
	}
	if v := c.String("suffixes"); v != "" {
		parts := strings.Split(v, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("--suffixes: want two comma separated values, got %q", v)
		}
		patch.Suffixes = parts
		set = true
	}

	if !set {
		return nil, nil
	}
	return &patch, nil
}

// chainOption is one combination kind offered for an element.
type chainOption struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func chainOptionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "options",
		Usage:     "List the combinations an element may use",
		ArgsUsage: "<name|index>",
		Flags:     []cli.Flag{FormatFlag, NoColorFlag},
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return withElement(c, func(ch *chain.Chain, i int) error {
				kinds, err := ch.Options(i)
				if err != nil {
					return err
				}
				opts := make([]chainOption, 0, len(kinds))
				for _, k := range kinds {
					opts = append(opts, chainOption{Name: ch.Elements()[i].Name(), Kind: string(k)})
				}
				return r.Render(opts)
			})
		},
	}
}

func chainShowCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show the joined frame",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "upto",
				Usage: "Stop at this element (name or index)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of rows to show (0 = all)",
			},
			FormatFlag,
			NoColorFlag,
		},
		Action: chainShowAction,
	}
}

func chainShowAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	t, err := openTask(c)
	if err != nil {
		return err
	}
	ch, err := t.chain()
	if err != nil {
		return err
	}

	var f *frame.Frame
	if ref := c.String("upto"); ref != "" {
		i, err := element(ch, ref)
		if err != nil {
			return err
		}
		f, err = ch.FrameAt(i)
		if err != nil {
			return cli.Exit(fmt.Sprintf("combine failed: %v", err), 1)
		}
	} else {
		f, err = ch.Frame()
		if err != nil {
			return cli.Exit(fmt.Sprintf("combine failed: %v", err), 1)
		}
	}
	return r.RenderFrame(head(f, c.Int("limit")))
}

// head returns the first n rows of f, or f itself when n <= 0.
func head(f *frame.Frame, n int) *frame.Frame {
	if n <= 0 || f.Len() <= n {
		return f
	}
	return frame.New(f.Columns, f.Rows[:n]...)
}

// withElement opens the chain, resolves the first argument to an element
// index, and calls fn. Errors from fn exit with status 1.
func withElement(c *cli.Context, fn func(*chain.Chain, int) error) error {
	if c.NArg() < 1 {
		return cli.Exit("element name or index required", 1)
	}
	t, err := openTask(c)
	if err != nil {
		return err
	}
	ch, err := t.chain()
	if err != nil {
		return err
	}
	i, err := element(ch, c.Args().First())
	if err != nil {
		return err
	}
	if err := fn(ch, i); err != nil {
		return exitErr(err)
	}
	return nil
}

// exitErr wraps err in a status 1 exit unless it already carries a code.
func exitErr(err error) error {
	if _, ok := err.(cli.ExitCoder); ok {
		return err
	}
	return cli.Exit(err.Error(), 1)
}
