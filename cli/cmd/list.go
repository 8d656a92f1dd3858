package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tractography/cli/reader"
	"github.com/justapithecus/tractography/cli/render"
	"github.com/justapithecus/tractography/runtime"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// readTimeout bounds manifest queries of read-only commands.
const readTimeout = 30 * time.Second

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// openReader opens the manifest reader named by the config file and flags.
func openReader(ctx context.Context, c *cli.Context) (*reader.Reader, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("invalid configuration: %v", err), runtime.ExitCodeInputError)
	}
	src, err := archiveSource(cfg)
	if err != nil {
		return nil, cli.Exit(err.Error(), runtime.ExitCodeInputError)
	}
	rd, err := reader.Open(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return rd, nil
}

// ListCommand returns the list command with subcommands.
// List returns thin slices, not inspect-level detail.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List archived entities (runs)",
		Subcommands: []*cli.Command{
			listRunsCommand(),
		},
	}
}

func listRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List participant runs, most recent first",
		Flags: append(append(ReadOnlyFlags(), archiveReadFlags()...),
			&cli.StringFlag{
				Name:  "subject",
				Usage: "Filter by subject label",
			},
			&cli.StringFlag{
				Name:  "outcome",
				Usage: "Filter by outcome: success, input_error, tool_failure, archive_failure, canceled",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: listRunsAction,
	}
}

func listRunsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for list commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", 1)
	}

	ctx, cancel := context.WithTimeout(c.Context, readTimeout)
	defer cancel()

	rd, err := openReader(ctx, c)
	if err != nil {
		return err
	}

	opts := reader.ListRunsOptions{
		Subject: c.String("subject"),
		Outcome: c.String("outcome"),
		Limit:   c.Int("limit"),
	}
	results, err := rd.ListRuns(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(results) > listWarningThreshold && opts.Limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(results))
	}

	return r.Render(results)
}

// notFound maps a missing run to exit code 1.
func notFound(err error, what string) error {
	if errors.Is(err, reader.ErrRunNotFound) {
		return cli.Exit(fmt.Sprintf("%s: %v", what, err), 1)
	}
	return err
}
