package cmd

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tractography/lode"
	"github.com/justapithecus/tractography/pipeline"
	"github.com/justapithecus/tractography/runtime"
	"github.com/justapithecus/tractography/types"
)

// GraphCommand returns the graph command.
// It composes the stage graphs of one participant and prints them as DOT.
// Nothing is launched and nothing is archived.
func GraphCommand() *cli.Command {
	return &cli.Command{
		Name:      "graph",
		Usage:     "Print the composed stage graph of one participant as DOT",
		ArgsUsage: "[<bids_dir>]",
		Flags: append(datasetFlags(),
			&cli.StringFlag{
				Name:  "participant",
				Usage: "Participant whose graph to print (default: the first resolved)",
			},
			&cli.StringFlag{
				Name:  "stage",
				Usage: "Print only this top-level stage",
			},
			&cli.StringFlag{
				Name:  "template-t1w",
				Usage: "Template T1w image registered to each subject",
			},
			&cli.StringFlag{
				Name:  "rois-dir",
				Usage: "Directory of template-space seed ROIs (*.nii.gz)",
			},
			&cli.StringFlag{
				Name:  "run-uuid",
				Usage: "Run ID used in output directory names",
				Value: "graph",
			},
		),
		Action: graphAction,
	}
}

func graphAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), runtime.ExitCodeInputError)
	}
	applyPositional(c, cfg)
	if cfg.RunUUID == "" {
		cfg.RunUUID = c.String("run-uuid")
	}

	resolved, err := resolveDataset(cfg)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeInputError)
	}
	ds, err := pickParticipant(resolved, c.String("participant"))
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeInputError)
	}

	stages := selection(cfg).Stages()
	if name := c.String("stage"); name != "" {
		sel, err := pipeline.ParseStages([]string{name})
		if err != nil {
			return cli.Exit(err.Error(), runtime.ExitCodeInputError)
		}
		want := sel.Stages()[0]
		if !slices.Contains(stages, want) {
			return cli.Exit(fmt.Sprintf("stage %s is not selected (selected: %v)", want, stages), runtime.ExitCodeInputError)
		}
		stages = []string{want}
	}

	// The graph does not depend on the shrink distance.
	shrink, err := shrinkOptions(cfg, nil)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeInputError)
	}
	asm, err := pipeline.NewAssembler(pipeline.Options{
		RunID:        cfg.RunUUID,
		Workers:      max(cfg.Nprocs, 1),
		Archive:      lode.NewStubArchive(),
		Shrink:       shrink,
		TemplateT1w:  cfg.Template.T1w,
		Tractography: tractographyParams(cfg),
	})
	if err != nil {
		return err
	}
	plan, err := asm.Plan(ds, stages)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeInputError)
	}

	out := c.App.Writer
	if out == nil {
		out = os.Stdout
	}
	return writePlanDOT(out, plan)
}

// pickParticipant returns the resolved dataset of subject, or the first one.
func pickParticipant(resolved []*types.ResolvedDataset, subject string) (*types.ResolvedDataset, error) {
	if len(resolved) == 0 {
		return nil, fmt.Errorf("no participants resolved")
	}
	if subject == "" {
		return resolved[0], nil
	}
	label := strings.TrimPrefix(subject, "sub-")
	for _, ds := range resolved {
		if ds.Identity().Subject == label {
			return ds, nil
		}
	}
	return nil, fmt.Errorf("participant %s not resolved", subject)
}

// writePlanDOT writes one DOT digraph per planned stage.
func writePlanDOT(w io.Writer, plan *runtime.Plan) error {
	for i, ps := range plan.Stages {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "// %s -> %s/%s\n", ps.Name, ps.OutputDir, runtime.GraphFile); err != nil {
			return err
		}
		if err := ps.Graph.WriteDOT(w); err != nil {
			return err
		}
	}
	return nil
}
