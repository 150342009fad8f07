// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package run

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/matt-FFFFFF/procpool/internal/childproc"
	"github.com/urfave/cli/v3"
)

const (
	envFlag            = "env"
	expectNotFoundFlag = "expect-not-found"
)

// RunCmd runs a single command and passes its exit code through.
var RunCmd = &cli.Command{
	Name: "run",
	Description: `Run a single command and pass its exit code through.
With --expect-not-found, the command is expected to fail to start because
the executable does not exist; the exit code is then 0 only when start
failed with the OS not-found indicator.`,
	ArgsUsage: " -- CMD [ARGS...]",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    envFlag,
			Aliases: []string{"e"},
			Usage: "Set an environment variable for the child, formatted as KEY=VALUE. " +
				"Specify multiple times for multiple variables.",
			OnlyOnce: false,
		},
		&cli.BoolFlag{
			Name:        expectNotFoundFlag,
			Usage:       "Expect the command to fail to start because the executable does not exist",
			Value:       false,
			DefaultText: "false",
			OnlyOnce:    true,
		},
	},
	Action: actionFunc,
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		return cli.Exit("Please provide a command to run", 1)
	}

	env, err := parseEnv(cmd.StringSlice(envFlag))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	proc := &childproc.Cmd{
		Args: args,
		Env:  env,
	}

	if cmd.Bool(expectNotFoundFlag) {
		err := proc.Start(ctx)
		if errors.Is(err, exec.ErrNotFound) {
			return nil
		}

		if err == nil {
			_, _ = proc.Wait() // reap the unexpected child
		}

		return cli.Exit(fmt.Sprintf("FAIL: expected %q to be missing", args[0]), 1)
	}

	res, err := proc.Run(ctx)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if !res.Success() {
		code := res.Code
		if code < 0 {
			code = 1
		}

		return cli.Exit("", code)
	}

	return nil
}

func parseEnv(specs []string) (map[string]string, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	env := make(map[string]string, len(specs))

	for _, spec := range specs {
		k, v, ok := strings.Cut(spec, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid env specifier %q: expected KEY=VALUE", spec)
		}

		env[k] = v
	}

	return env, nil
}
