package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tractography/adapter"
	"github.com/justapithecus/tractography/cli/config"
	"github.com/justapithecus/tractography/lode"
	"github.com/justapithecus/tractography/log"
	"github.com/justapithecus/tractography/metrics"
	"github.com/justapithecus/tractography/pipeline"
	"github.com/justapithecus/tractography/runtime"
	"github.com/justapithecus/tractography/types"
)

// RunCommand returns the run command.
// This is the only command that launches external tools.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run the selected stages for every participant (the only execution entrypoint)",
		ArgsUsage: "[<bids_dir> [<output_dir>]]",
		Flags: slices.Concat(datasetFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:    "work-dir",
				Aliases: []string{"w"},
				Usage:   "Scratch directory for intermediate results (default: a temp directory)",
			},
			&cli.IntFlag{
				Name:  "nprocs",
				Usage: "Maximum concurrent stages within one participant run",
			},
			&cli.IntFlag{
				Name:  "parallel",
				Usage: "Maximum concurrent participant runs",
			},
			&cli.StringFlag{
				Name:  "run-uuid",
				Usage: "Run ID (default: <YYYYMMDD-HHMMSS>_<first participant>)",
			},
			&cli.StringFlag{
				Name:  "template-t1w",
				Usage: "Template T1w image registered to each subject",
			},
			&cli.StringFlag{
				Name:  "rois-dir",
				Usage: "Directory of template-space seed ROIs (*.nii.gz)",
			},
			&cli.Float64Flag{
				Name:  "shrink-mm",
				Usage: "How far to shrink the white surfaces, in millimetres",
			},
			&cli.Float64Flag{
				Name:  "shrink-step-mm",
				Usage: "Shrink step length in millimetres",
			},
			&cli.StringFlag{
				Name:  "degenerate",
				Usage: "Zero-gradient vertex policy: freeze or fail",
			},
			&cli.StringSliceFlag{
				Name:  "tool",
				Usage: "Program override as name=path (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "fail-fast",
				Usage: "Stop starting participant runs after the first failure",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the run summary",
			},
		}, archiveFlags(), adapterFlags()),
		Action: runAction,
	}
}

// runPlan is everything a participant run needs, resolved before any
// tool is launched.
type runPlan struct {
	runID    string
	stages   []string
	workRoot string
	nprocs   int
	parallel int
	source   archiveSourceConfig
	assemble pipeline.Options
	datasets map[string]*types.ResolvedDataset
	items    []runtime.WorkItem
}

// archiveSourceConfig is the archive location shared by every participant run.
type archiveSourceConfig struct {
	backend string
	open    func(ctx context.Context, cfg lode.Config) (lode.Archive, error)
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), runtime.ExitCodeInputError)
	}
	applyPositional(c, cfg)

	plan, err := prepareRun(cfg, c.StringSlice("tool"), time.Now())
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeInputError)
	}

	ad, err := buildAdapter(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid adapter config: %v", err), runtime.ExitCodeInputError)
	}
	if ad != nil {
		defer func() { _ = ad.Close() }()
	}

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	out := c.App.Writer
	if out == nil {
		out = os.Stdout
	}
	if !c.Bool("quiet") {
		fmt.Fprintf(out, "run_id=%s, participants=%d, stages=%s, parallel=%d\n",
			plan.runID, len(plan.items), strings.Join(plan.stages, ","), plan.parallel)
	}

	op := runtime.NewOperator(runtime.FanOutConfig{
		Parallel: plan.parallel,
		FailFast: c.Bool("fail-fast"),
	}, plan.factory(ad))
	result := op.Run(ctx, plan.items)

	if !c.Bool("quiet") {
		runtime.PrintFanOutSummary(out, result)
		if len(result.Results) == 1 {
			for _, res := range result.Results {
				printRunResult(out, res)
			}
		}
	}
	return cli.Exit("", runtime.ExitCode(result.WorstOutcome()))
}

// prepareRun resolves every participant, validates the settings that stage
// assembly consumes and composes each participant's graph. Nothing is
// launched or archived here, so every error is an input error.
func prepareRun(cfg *config.Config, tools []string, now time.Time) (*runPlan, error) {
	stages := selection(cfg).Stages()

	dsCfg, err := datasetConfig(cfg)
	if err != nil {
		return nil, err
	}
	ds, err := pipeline.OpenDataset(dsCfg)
	if err != nil {
		return nil, err
	}
	resolved, err := ds.Resolve(stages)
	if err != nil {
		return nil, err
	}

	shrink, err := shrinkOptions(cfg, stages)
	if err != nil {
		return nil, err
	}
	progs, err := programs(cfg, tools)
	if err != nil {
		return nil, err
	}
	src, err := archiveSource(cfg)
	if err != nil {
		return nil, err
	}

	runID := cfg.RunUUID
	if runID == "" {
		first := ""
		if len(resolved) > 0 {
			first = resolved[0].Identity().Subject
		}
		runID = pipeline.NewRunID(now, first)
	}

	plan := &runPlan{
		runID:    runID,
		stages:   stages,
		workRoot: cfg.WorkDir,
		nprocs:   max(cfg.Nprocs, 1),
		parallel: max(cfg.Parallel, 1),
		source: archiveSourceConfig{
			backend: src.Backend,
			open: func(ctx context.Context, lc lode.Config) (lode.Archive, error) {
				client, err := openArchive(ctx, src, lc)
				if err != nil {
					return nil, err
				}
				return client, nil
			},
		},
		assemble: pipeline.Options{
			RunID:        runID,
			Shrink:       shrink,
			TemplateT1w:  cfg.Template.T1w,
			Tractography: tractographyParams(cfg),
			Runner:       &runtime.ToolRunner{Programs: progs},
		},
		datasets: make(map[string]*types.ResolvedDataset, len(resolved)),
	}
	if plan.workRoot == "" {
		plan.workRoot = filepath.Join(os.TempDir(), "tractography_work_"+runID)
	}
	for _, r := range resolved {
		id := r.Identity()
		item := runtime.WorkItem{Subject: id.Subject, Session: id.Session}
		plan.datasets[item.Key()] = r
		plan.items = append(plan.items, item)
	}

	// Every graph must compose before the fan-out starts a tool.
	check := plan.assemble
	check.Archive = lode.NewStubArchive()
	asm, err := pipeline.NewAssembler(check)
	if err != nil {
		return nil, err
	}
	for _, item := range plan.items {
		if _, err := asm.Plan(plan.datasets[item.Key()], stages); err != nil {
			return nil, fmt.Errorf("%s: %w", item.Key(), err)
		}
	}
	return plan, nil
}

// factory returns the run factory of the fan-out. Each participant run
// gets its own archive client, collector, logger and work directory.
// Setup failures become the outcome of that run.
func (p *runPlan) factory(ad adapter.Adapter) runtime.RunFactory {
	return func(ctx context.Context, item runtime.WorkItem) (*runtime.RunResult, error) {
		meta := &types.RunMeta{
			RunID:   p.runID,
			Subject: item.Subject,
			Session: item.Session,
			Stages:  p.stages,
		}
		logger := log.NewLogger(meta)
		collector := metrics.NewCollector(p.source.backend, p.runID, item.Subject, item.Session)

		failed := func(err error) (*runtime.RunResult, error) {
			logger.Error("participant run setup failed", map[string]any{"error": err.Error()})
			return &runtime.RunResult{RunMeta: meta, Outcome: runtime.ClassifyError(err)}, nil
		}

		client, err := p.source.open(ctx, lode.Config{
			RunID:   p.runID,
			Subject: item.Subject,
			Session: item.Session,
		})
		if err != nil {
			return failed(err)
		}
		archive := lode.NewInstrumentedArchive(client, collector)
		defer func() {
			if err := archive.Close(); err != nil {
				logger.Warn("failed to close archive", map[string]any{"error": err.Error()})
			}
		}()

		opts := p.assemble
		opts.Workers = p.nprocs
		opts.Archive = archive
		opts.Collector = collector
		opts.Logger = logger
		runner := *opts.Runner
		runner.Collector = collector
		runner.Logger = logger
		opts.Runner = &runner

		asm, err := pipeline.NewAssembler(opts)
		if err != nil {
			return failed(err)
		}
		orch, err := runtime.NewRunOrchestrator(&runtime.RunConfig{
			RunMeta:   meta,
			Planner:   asm.Planner(p.datasets[item.Key()], p.stages),
			WorkDir:   filepath.Join(p.workRoot, item.Key()),
			Archive:   archive,
			Adapter:   ad,
			Collector: collector,
			Logger:    logger,
		})
		if err != nil {
			return failed(err)
		}
		return orch.Execute(ctx)
	}
}

// printRunResult writes the outcome of a single participant run.
func printRunResult(w io.Writer, result *runtime.RunResult) {
	fmt.Fprintf(w, "\n=== Run Result ===\n")
	fmt.Fprintf(w, "Run ID:       %s\n", result.RunMeta.RunID)
	fmt.Fprintf(w, "Subject:      %s\n", result.RunMeta.Subject)
	if result.RunMeta.Session != "" {
		fmt.Fprintf(w, "Session:      %s\n", result.RunMeta.Session)
	}
	fmt.Fprintf(w, "Stages:       %s\n", strings.Join(result.RunMeta.Stages, ", "))
	fmt.Fprintf(w, "Outcome:      %s\n", result.Outcome.Status)
	fmt.Fprintf(w, "Message:      %s\n", result.Outcome.Message)
	if result.Outcome.FailedStage != "" {
		fmt.Fprintf(w, "Failed Stage: %s\n", result.Outcome.FailedStage)
	}
	fmt.Fprintf(w, "Duration:     %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Artifacts:    %d\n", result.Artifacts)
	for _, dir := range result.OutputDirs {
		fmt.Fprintf(w, "Output:       %s\n", dir)
	}
}
