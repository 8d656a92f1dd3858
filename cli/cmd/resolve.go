package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tractography/cli/config"
	"github.com/justapithecus/tractography/cli/reader"
	"github.com/justapithecus/tractography/cli/render"
	"github.com/justapithecus/tractography/cli/tui"
	"github.com/justapithecus/tractography/pipeline"
	"github.com/justapithecus/tractography/runtime"
	"github.com/justapithecus/tractography/types"
)

// ResolveCommand returns the resolve command.
// It resolves the inputs of the selected stages without running anything.
func ResolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Resolve the input files of every participant for the selected stages",
		ArgsUsage: "[<bids_dir>]",
		Flags:     append(datasetFlags(), TUIReadOnlyFlags()...),
		Action:    resolveAction,
	}
}

func resolveAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), runtime.ExitCodeInputError)
	}
	applyPositional(c, cfg)

	resolved, err := resolveDataset(cfg)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeInputError)
	}

	out := make([]reader.ResolvedParticipant, 0, len(resolved))
	for _, ds := range resolved {
		out = append(out, reader.DescribeResolved(ds))
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewResolve, out)
	}
	return r.Render(out)
}

// resolveDataset opens the configured dataset and resolves the inputs of
// the selected stages.
func resolveDataset(cfg *config.Config) ([]*types.ResolvedDataset, error) {
	dsCfg, err := datasetConfig(cfg)
	if err != nil {
		return nil, err
	}
	ds, err := pipeline.OpenDataset(dsCfg)
	if err != nil {
		return nil, err
	}
	return ds.Resolve(selection(cfg).Stages())
}
