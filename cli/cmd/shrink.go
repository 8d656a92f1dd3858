package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tractography/cli/render"
	"github.com/justapithecus/tractography/log"
	"github.com/justapithecus/tractography/pipeline"
	"github.com/justapithecus/tractography/runtime"
	"github.com/justapithecus/tractography/surface"
)

// ShrinkResponse is the result of the shrink command.
type ShrinkResponse struct {
	Out        string  `json:"out"`
	DistanceMm float64 `json:"distance_mm"`
	Vertices   int     `json:"vertices"`
	Steps      int     `json:"steps"`
	Frozen     int     `json:"frozen"`
}

// ShrinkCommand returns the shrink command.
func ShrinkCommand() *cli.Command {
	return &cli.Command{
		Name:   "shrink",
		Usage:  "Shrink a surface into the white matter along its signed distance gradient",
		Flags:  ShrinkFlags(),
		Action: ShrinkAction,
	}
}

// ShrinkFlags returns the flags of the surface shrink. They are shared
// with the standalone shrink-surface binary.
func ShrinkFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "surface",
			Usage:    "Surface to shrink (GIFTI)",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "reference",
			Usage:    "Reference volume (NIfTI)",
			Required: true,
		},
		&cli.Float64Flag{
			Name:     "mm",
			Usage:    "How much to shrink the surface into the white matter",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "out",
			Usage:    "Output surface (GIFTI)",
			Required: true,
		},
		&cli.Float64Flag{
			Name:  "step-mm",
			Usage: "Step length in millimetres",
			Value: surface.DefaultStepMm,
		},
		&cli.StringFlag{
			Name:  "degenerate",
			Usage: "Zero-gradient vertex policy: freeze or fail",
			Value: string(surface.PolicyFreeze),
		},
		&cli.StringFlag{
			Name:  "wb-command",
			Usage: "Path to wb_command",
			Value: pipeline.ProgramWorkbench,
		},
		&cli.StringFlag{
			Name:  "work-dir",
			Usage: "Scratch directory for the distance field (default: a temp directory)",
		},
		FormatFlag,
		NoColorFlag,
	}
}

// ShrinkAction shrinks one surface file.
func ShrinkAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	policy, err := surface.ParseDegeneratePolicy(c.String("degenerate"))
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeInputError)
	}
	opts := surface.Options{
		DistanceMm: c.Float64("mm"),
		StepMm:     c.Float64("step-mm"),
		Degenerate: policy,
	}
	if err := opts.Validate(); err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeInputError)
	}

	workDir := c.String("work-dir")
	if workDir == "" {
		workDir, err = os.MkdirTemp("", "shrink_surface_")
		if err != nil {
			return err
		}
		defer func() { _ = os.RemoveAll(workDir) }()
	} else if err := os.MkdirAll(workDir, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := &runtime.ToolRunner{
		Programs: map[string]string{pipeline.ProgramWorkbench: c.String("wb-command")},
		Logger:   log.Nop(),
	}
	p := &surface.Projector{
		Generator: pipeline.WorkbenchGenerator(runner, "shrink_surface"),
		Options:   opts,
	}
	report, err := p.ShrinkFile(ctx, c.String("surface"), c.String("reference"), c.String("out"), workDir)
	if err != nil {
		return cli.Exit(fmt.Sprintf("shrink failed: %v", err), runtime.ExitCode(runtime.ClassifyError(err).Status))
	}

	return r.Render(&ShrinkResponse{
		Out:        c.String("out"),
		DistanceMm: opts.DistanceMm,
		Vertices:   report.Vertices,
		Steps:      report.Steps,
		Frozen:     len(report.Frozen),
	})
}
