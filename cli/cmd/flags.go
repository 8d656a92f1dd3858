// Package cmd provides CLI commands for the tractography binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tractography/lode"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for select read-only commands (resolve, inspect, stats).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (resolve, inspect, stats only)",
	}

	// ConfigFlag points at a tractography.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to a tractography.yaml config file",
		EnvVars: []string{"TRACTOGRAPHY_CONFIG"},
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// TUIReadOnlyFlags returns flags for commands that support TUI mode.
// This is an alias for ReadOnlyFlags, kept for documentation clarity.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}

// archiveFlags locate the archive. Unset flags fall back to the config file.
func archiveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "archive-backend",
			Usage: "Archive backend: fs or s3",
		},
		&cli.StringFlag{
			Name:  "archive-path",
			Usage: "Archive root (fs: directory, s3: bucket/prefix). Defaults to the output directory",
		},
		&cli.StringFlag{
			Name:  "archive-dataset",
			Usage: "Lode dataset ID of run manifests (default: \"" + lode.DefaultDataset + "\")",
		},
		&cli.StringFlag{
			Name:  "archive-region",
			Usage: "AWS region for the s3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "archive-endpoint",
			Usage: "Custom S3 endpoint URL for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "archive-s3-path-style",
			Usage: "Force path-style S3 addressing",
		},
	}
}

// archiveReadFlags are the flags of commands reading run manifests.
func archiveReadFlags() []cli.Flag {
	return append([]cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:  "output-dir",
			Usage: "Output directory used as the fs archive root when --archive-path is unset",
		},
	}, archiveFlags()...)
}

// datasetFlags locate the dataset and select participants and stages.
func datasetFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:  "bids-dir",
			Usage: "Root of the raw BIDS dataset (or first positional argument)",
		},
		&cli.StringFlag{
			Name:  "output-dir",
			Usage: "Output directory (or second positional argument)",
		},
		&cli.StringSliceFlag{
			Name:    "derivatives",
			Aliases: []string{"d"},
			Usage:   "Search these paths for precomputed derivatives",
		},
		&cli.StringSliceFlag{
			Name:  "participant-label",
			Usage: "Subject labels to process (the sub- prefix is optional)",
		},
		&cli.StringSliceFlag{
			Name:  "session-label",
			Usage: "Session labels to process (the ses- prefix is optional)",
		},
		&cli.StringFlag{
			Name:  "session-policy",
			Usage: "Multi-session handling without --session-label: each, first or any",
		},
		&cli.StringFlag{
			Name:  "bids-filter-file",
			Usage: "JSON file refining the queries per file type",
		},
		&cli.BoolFlag{
			Name:  "preproc",
			Usage: "Run diffusion preprocessing",
		},
		&cli.BoolFlag{
			Name:  "recon",
			Usage: "Run surface reconstruction",
		},
		&cli.BoolFlag{
			Name:  "tracto",
			Usage: "Run tractography (reads earlier stage outputs from the dataset)",
		},
	}
}

// adapterFlags configure the run completed notification.
func adapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Run completed adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Webhook endpoint or redis://host:port/db URL",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel",
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Webhook header as key=value (repeatable)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-notification timeout",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Notification retry attempts",
		},
	}
}
