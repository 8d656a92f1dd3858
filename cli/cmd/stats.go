package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tractography/cli/render"
	"github.com/justapithecus/tractography/lode"
)

// StatsCommand returns the stats command with subcommands.
// Stats returns aggregated, derived facts.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show aggregated statistics (runs, metrics)",
		Subcommands: []*cli.Command{
			statsRunsCommand(),
			statsMetricsCommand(),
		},
	}
}

// statsFilterFlags narrow the records a stats command aggregates.
func statsFilterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "run-id", Usage: "Only this run ID"},
		&cli.StringFlag{Name: "subject", Usage: "Only this subject label"},
		&cli.StringFlag{Name: "session", Usage: "Only this session label"},
	}
}

func statsFilter(c *cli.Context) lode.Filter {
	return lode.Filter{
		RunID:   c.String("run-id"),
		Subject: c.String("subject"),
		Session: c.String("session"),
	}
}

func statsRunsCommand() *cli.Command {
	return &cli.Command{
		Name:   "runs",
		Usage:  "Show participant run statistics",
		Flags:  append(append(TUIReadOnlyFlags(), archiveReadFlags()...), statsFilterFlags()...),
		Action: statsRunsAction,
	}
}

func statsRunsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, readTimeout)
	defer cancel()

	rd, err := openReader(ctx, c)
	if err != nil {
		return err
	}
	stats, err := rd.StatsRuns(ctx, statsFilter(c))
	if err != nil {
		return fmt.Errorf("failed to read run records: %w", err)
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_runs", stats)
	}
	return r.Render(stats)
}

func statsMetricsCommand() *cli.Command {
	return &cli.Command{
		Name:   "metrics",
		Usage:  "Show the latest metrics snapshot (stages, tools, shrink, archive)",
		Flags:  append(append(TUIReadOnlyFlags(), archiveReadFlags()...), statsFilterFlags()...),
		Action: statsMetricsAction,
	}
}

func statsMetricsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, readTimeout)
	defer cancel()

	rd, err := openReader(ctx, c)
	if err != nil {
		return err
	}
	snapshot, err := rd.StatsMetrics(ctx, statsFilter(c))
	if err != nil {
		return fmt.Errorf("failed to read metrics from Lode: %w", err)
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_metrics", snapshot)
	}
	return r.Render(snapshot)
}
