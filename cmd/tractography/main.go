// Package main provides the tractography CLI entrypoint.
//
// `run` is the only command that launches external tools. Every other
// command is read-only.
//
// Usage:
//
//	tractography <command> [subcommand] [options]
//
// Exit codes for `run`:
//   - 0: every participant run succeeded
//   - 1: input error (resolution, filter, wiring or naming)
//   - 2: external tool failure
//   - 3: archive failure
//   - 130: canceled
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tractography/cli/cmd"
	"github.com/justapithecus/tractography/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "tractography",
		Usage:          "Diffusion MRI tractography pipeline",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.ResolveCommand(),
			cmd.GraphCommand(),
			cmd.ShrinkCommand(),
			cmd.InspectCommand(),
			cmd.StatsCommand(),
			cmd.ListCommand(),
			cmd.DebugCommand(),
			cmd.VersionCommand("", commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(exitStatus(os.Stderr, err))
}

// exitStatus writes the message of err to w, if it has one worth printing,
// and returns the process exit code.
func exitStatus(w io.Writer, err error) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() is empty or "exit status N"
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(w, msg)
		}
		return code
	}

	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
