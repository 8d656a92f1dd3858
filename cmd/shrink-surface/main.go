// Package main provides the standalone surface shrink entrypoint.
//
// It moves every vertex of a GIFTI surface along the gradient of the
// signed distance field generated by wb_command, then writes the result.
//
// Usage:
//
//	shrink-surface -surface <in.surf.gii> -reference <ribbon.nii.gz> -mm <distance> -out <out.surf.gii>
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tractography/cli/cmd"
	"github.com/justapithecus/tractography/types"
)

func main() {
	app := &cli.App{
		Name:    "shrink-surface",
		Usage:   "Shrink a surface into the white matter",
		Version: types.Version,
		Flags:   cmd.ShrinkFlags(),
		Action:  cmd.ShrinkAction,
		ExitErrHandler: func(_ *cli.Context, err error) {
			if err == nil {
				return
			}
			var exitCoder cli.ExitCoder
			if errors.As(err, &exitCoder) {
				if msg := exitCoder.Error(); msg != "" {
					fmt.Fprintln(os.Stderr, msg)
				}
				os.Exit(exitCoder.ExitCode())
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		},
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}
