// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package testsuite

import (
	"context"
	"errors"
	"fmt"

	"github.com/matt-FFFFFF/procpool/internal/testsuite"
	"github.com/urfave/cli/v3"
)

const (
	jobsFlag      = "jobs"
	immediateFlag = "immediate"
	quietFlag     = "quiet"
	verboseFlag   = "verbose"
	traceFlag     = "trace"
)

// TestsuiteCmd discovers test scripts in the current directory and runs
// them in parallel.
var TestsuiteCmd = &cli.Command{
	Name: "testsuite",
	Description: `Run the test scripts in the current directory, up to N at a time.
Scripts are named like t0000-description.sh; positional arguments are
glob patterns that select a subset of them.`,
	ArgsUsage: " [PATTERN...]",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    jobsFlag,
			Aliases: []string{"j"},
			Usage:   "Run N tests in parallel. Values below 1 use the number of CPU cores available.",
			Value:   1,
		},
		&cli.BoolFlag{
			Name:    immediateFlag,
			Aliases: []string{"i"},
			Usage:   "Stop at first failed test case(s)",
		},
		&cli.BoolFlag{
			Name:    quietFlag,
			Aliases: []string{"q"},
			Usage:   "Be terse",
		},
		&cli.BoolFlag{
			Name:    verboseFlag,
			Aliases: []string{"v"},
			Usage:   "Be verbose",
		},
		&cli.BoolFlag{
			Name:    traceFlag,
			Aliases: []string{"x"},
			Usage:   "Trace shell commands",
		},
	},
	Action: actionFunc,
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	tests, err := testsuite.Discover(".", cmd.Args().Slice())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if len(tests) == 0 {
		return cli.Exit("No tests match!", 1)
	}

	suite := &testsuite.Suite{
		Tests:     tests,
		Quiet:     cmd.Bool(quietFlag),
		Immediate: cmd.Bool(immediateFlag),
		Verbose:   cmd.Bool(verboseFlag),
		Trace:     cmd.Bool(traceFlag),
	}

	jobs := testsuite.NormalizeJobs(cmd.Int(jobsFlag), len(tests))
	fmt.Fprintf(cmd.ErrWriter, "Running %d tests (%d at a time)\n", len(tests), jobs)

	code, err := suite.Run(ctx, jobs, cmd.ErrWriter)

	if len(suite.Failed) > 0 {
		fmt.Fprintf(cmd.ErrWriter, "%d tests failed:\n\n", len(suite.Failed))

		for _, name := range suite.Failed {
			fmt.Fprintf(cmd.ErrWriter, "\t%s\n", name)
		}
	}

	if err != nil && !errors.Is(err, testsuite.ErrTestFailed) {
		return cli.Exit(err.Error(), 1)
	}

	if code != 0 {
		return cli.Exit("", code)
	}

	return nil
}
