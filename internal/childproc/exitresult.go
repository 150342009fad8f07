// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package childproc

import (
	"os"
	"strconv"
)

// ExitResult is the discriminated outcome of a finished child process:
// either an exit code, or termination by a signal.
type ExitResult struct {
	// Code is the exit code of the process, or -1 when it was
	// terminated by a signal.
	Code int
	// Signaled is true when the process was terminated by a signal
	// rather than exiting on its own.
	Signaled bool

	state *os.ProcessState
}

// Success reports whether the process exited with code zero.
func (r ExitResult) Success() bool {
	return !r.Signaled && r.Code == 0
}

// String returns a human-readable description of the exit status.
func (r ExitResult) String() string {
	if r.state != nil {
		return r.state.String()
	}

	if r.Signaled {
		return "terminated by signal"
	}

	return "exit status " + strconv.Itoa(r.Code)
}
