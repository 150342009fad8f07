// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package inherit

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/matt-FFFFFF/procpool/internal/childproc"
	"github.com/urfave/cli/v3"
)

// InheritCmd verifies that a descriptor open in the parent does not leak
// into a spawned child: it opens a temporary file, starts the child, and
// must still be able to close and delete the file while the child runs.
var InheritCmd = &cli.Command{
	Name: "inherited-handle",
	Description: `Check that process-local file handles are not inherited by children.
A temporary file is opened, a child is spawned reading from a stdin pipe,
and the file is closed and deleted while the child is still running.`,
	Action: parentAction,
}

// InheritChildCmd is the child side of the inherited-handle check. It
// reads all of standard input and echoes what it received.
var InheritChildCmd = &cli.Command{
	Name:   "inherited-handle-child",
	Hidden: true,
	Action: childAction,
}

func parentAction(ctx context.Context, cmd *cli.Command) error {
	tmp, err := os.CreateTemp("", "out-*")
	if err != nil {
		return cli.Exit("Could not create temporary file: "+err.Error(), 1)
	}

	path := tmp.Name()

	self, err := os.Executable()
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(path)

		return cli.Exit("Could not locate own executable: "+err.Error(), 1)
	}

	proc := &childproc.Cmd{
		Args:   []string{self, "inherited-handle-child"},
		Stdin:  childproc.Pipe,
		Stdout: childproc.Discard,
		Stderr: childproc.Discard,
	}

	if err := proc.Start(ctx); err != nil {
		_ = tmp.Close()
		_ = os.Remove(path)

		return cli.Exit("Could not start child process: "+err.Error(), 1)
	}

	// The child is running. Deleting the file now only succeeds when its
	// descriptor stayed local to the parent.
	if err := tmp.Close(); err != nil {
		return cli.Exit(fmt.Sprintf("Could not close '%s': %v", path, err), 1)
	}

	if err := os.Remove(path); err != nil {
		return cli.Exit(fmt.Sprintf("Could not delete '%s': %v", path, err), 1)
	}

	// EOF on stdin lets the child finish.
	if err := proc.CloseStdin(); err != nil {
		return cli.Exit("Child did not finish: "+err.Error(), 1)
	}

	res, err := proc.Wait()
	if err != nil || !res.Success() {
		return cli.Exit("Child did not finish", 1)
	}

	return nil
}

func childAction(_ context.Context, cmd *cli.Command) error {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return cli.Exit("Could not read stdin: "+err.Error(), 1)
	}

	fmt.Fprintf(cmd.Writer, "Received %s\n", data)

	return nil
}
