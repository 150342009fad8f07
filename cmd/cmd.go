// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package cmd contains the command-line interface (CLI) for the module.
package cmd

import (
	"fmt"
	"os"

	"github.com/matt-FFFFFF/procpool"
	"github.com/matt-FFFFFF/procpool/cmd/inherit"
	"github.com/matt-FFFFFF/procpool/cmd/parallel"
	"github.com/matt-FFFFFF/procpool/cmd/run"
	"github.com/matt-FFFFFF/procpool/cmd/testsuite"
	"github.com/urfave/cli/v3"
)

// RootCmd is the root command for the CLI.
var RootCmd = &cli.Command{
	Commands: []*cli.Command{
		run.RunCmd,
		parallel.ParallelCmd,
		testsuite.TestsuiteCmd,
		inherit.InheritCmd,
		inherit.InheritChildCmd,
	},
	Writer:    os.Stdout,
	ErrWriter: os.Stderr,
	Name:      "procpool",
	Description: `Procpool runs independent OS-process tasks on a small, fixed
worker pool. Tasks are pulled lazily from a caller-supplied source, each
child's output is buffered and reported contiguously, and completion
callbacks may request a graceful early stop while running tasks drain.`,
	Usage:     "procpool parallel --jobs 2 -- sh -c 'echo hello'",
	Version:   fmt.Sprintf("%s (commit: %s)", procpool.Version, procpool.Commit),
	Copyright: "Copyright (c) matt-FFFFFF 2025. All rights reserved.",
	Authors: []any{
		"Matt White (matt-FFFFFF)",
	},
	EnableShellCompletion: true,
}
