package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tractography/bids"
	"github.com/justapithecus/tractography/cli/render"
	"github.com/justapithecus/tractography/naming"
)

// EntitiesResponse is the decoding of one dataset path.
type EntitiesResponse struct {
	Path     string            `json:"path"`
	Label    string            `json:"label,omitempty"`
	Entities map[string]string `json:"entities"`
}

// NameResponse is the archive destination of one artifact.
type NameResponse struct {
	Artifact     string `json:"artifact"`
	Source       string `json:"source"`
	Destination  string `json:"destination"`
	RulesVersion string `json:"rules_version"`
}

// DebugCommand returns the debug command with subcommands.
// Debug commands are opt-in diagnostic tools. They never touch the dataset
// or the archive.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Diagnostic tools (entities, name)",
		Subcommands: []*cli.Command{
			debugEntitiesCommand(),
			debugNameCommand(),
		},
	}
}

func debugEntitiesCommand() *cli.Command {
	return &cli.Command{
		Name:      "entities",
		Usage:     "Decode the entities of dataset file paths",
		ArgsUsage: "<path>...",
		Flags:     ReadOnlyFlags(),
		Action:    debugEntitiesAction,
	}
}

func debugEntitiesAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("at least one path required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for debug commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	out := make([]EntitiesResponse, 0, c.NArg())
	for _, p := range c.Args().Slice() {
		e := bids.ParseEntities(p)
		resp := EntitiesResponse{Path: p, Entities: e}
		// Files without a subject have no label.
		if label, err := naming.Label(e); err == nil {
			resp.Label = label
		}
		out = append(out, resp)
	}
	return r.Render(out)
}

func debugNameCommand() *cli.Command {
	return &cli.Command{
		Name:      "name",
		Usage:     "Show where an artifact produced from a source file is archived",
		ArgsUsage: "<artifact> <source-path>",
		Flags:     ReadOnlyFlags(),
		Action:    debugNameAction,
	}
}

func debugNameAction(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.Exit("artifact and source path required", 1)
	}
	artifact, source := c.Args().Get(0), c.Args().Get(1)

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	table, err := naming.BuildPaths(bids.ParseEntities(source), naming.DefaultRules())
	if err != nil {
		return cli.Exit(fmt.Sprintf("naming failed: %v", err), 1)
	}
	dest, err := table.Destination(artifact, source)
	if err != nil {
		return cli.Exit(fmt.Sprintf("naming failed: %v", err), 1)
	}

	return r.Render(&NameResponse{
		Artifact:     artifact,
		Source:       source,
		Destination:  dest,
		RulesVersion: naming.RulesVersion,
	})
}
