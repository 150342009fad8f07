// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package parallel

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"slices"

	"github.com/matt-FFFFFF/procpool/internal/childproc"
	"github.com/matt-FFFFFF/procpool/internal/pool"
	"github.com/urfave/cli/v3"
)

const (
	jobsFlag = "jobs"
	modeFlag = "mode"

	// ModeNormal runs a fixed number of preloaded tasks to completion.
	ModeNormal = "normal"
	// ModeAbort requests a quick stop from the first completion callback.
	ModeAbort = "abort"
	// ModeNoJobs exercises a task source that has no work to hand out.
	ModeNoJobs = "no-jobs"

	preloadedTaskCount = 4
)

// ParallelCmd runs the same command several times through the scheduler,
// with callback wiring selected by --mode.
var ParallelCmd = &cli.Command{
	Name: "parallel",
	Description: `Run the given command several times on a fixed worker pool.
The task source preloads each task's report with output before the child
starts, demonstrating that a task's output stays contiguous even though
tasks run concurrently.`,
	ArgsUsage: " -- CMD [ARGS...]",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    jobsFlag,
			Aliases: []string{"j"},
			Usage:   "Run up to N tasks in parallel. Defaults to the number of CPU cores available.",
			Value:   0,
		},
		&cli.StringFlag{
			Name:        modeFlag,
			Aliases:     []string{"m"},
			Usage:       "Callback wiring: normal, abort or no-jobs",
			Value:       ModeNormal,
			DefaultText: ModeNormal,
			OnlyOnce:    true,
		},
	},
	Action: actionFunc,
}

// preloadedSource hands out the same argument vector a fixed number of
// times, seeding each task's buffer before the child starts. The cap is
// instance state, so concurrent runs do not share a counter.
type preloadedSource struct {
	args      []string
	remaining int
	issued    int
}

func (s *preloadedSource) next(cmd *childproc.Cmd, out *bytes.Buffer) (int, bool) {
	if s.remaining == 0 {
		return 0, false
	}

	s.remaining--

	cmd.Args = slices.Clone(s.args)
	out.WriteString("preloaded output of a child\n")

	s.issued++

	return s.issued, true
}

func noJob(_ *childproc.Cmd, out *bytes.Buffer) (int, bool) {
	out.WriteString("no further jobs available\n")

	return 0, false
}

func quickStop(_ childproc.ExitResult, out *bytes.Buffer, _ int) int {
	out.WriteString("asking for a quick stop\n")

	return 1
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	jobs := cmd.Int(jobsFlag)
	if jobs < 1 {
		jobs = runtime.NumCPU()
	}

	opts := pool.Options[int]{
		Jobs:   jobs,
		Output: cmd.ErrWriter,
	}

	switch mode := cmd.String(modeFlag); mode {
	case ModeNormal, ModeAbort:
		args := cmd.Args().Slice()
		if len(args) == 0 {
			return cli.Exit("Please provide a command to run", 1)
		}

		src := &preloadedSource{args: args, remaining: preloadedTaskCount}
		opts.NextTask = src.next

		if mode == ModeAbort {
			opts.TaskFinished = quickStop
		}
	case ModeNoJobs:
		opts.NextTask = noJob
		opts.TaskFinished = quickStop
	default:
		return cli.Exit(fmt.Sprintf("unknown mode %q", mode), 1)
	}

	agg, err := pool.Run(ctx, opts)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if agg != 0 {
		return cli.Exit("", agg)
	}

	return nil
}
