package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tractography/cli/render"
	"github.com/justapithecus/tractography/naming"
	"github.com/justapithecus/tractography/types"
)

// VersionResponse is the response for the version command.
// Reports the canonical project version (lockstep across all components).
type VersionResponse struct {
	Version      string `json:"version"`
	Commit       string `json:"commit"`
	RulesVersion string `json:"rules_version"`
}

// VersionCommand returns the version command.
// All components share a single version (lockstep versioning).
func VersionCommand(_, commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		// TUI not supported for version command
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		resp := VersionResponse{
			Version:      types.Version,
			Commit:       commit,
			RulesVersion: naming.RulesVersion,
		}

		return r.Render(resp)
	}
}
