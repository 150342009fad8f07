// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package testsuite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/matt-FFFFFF/procpool/internal/childproc"
	"github.com/matt-FFFFFF/procpool/internal/pool"
	"github.com/spf13/afero"
)

// FsFactory returns the filesystem used for test discovery.
// It is a variable so tests can substitute an in-memory filesystem.
var FsFactory = func() afero.Fs {
	return afero.NewOsFs()
}

var (
	// ErrNoTests is returned when discovery found no matching test scripts.
	ErrNoTests = errors.New("no tests match")
	// ErrBadPattern is returned when a filter pattern is not valid glob syntax.
	ErrBadPattern = errors.New("invalid test pattern")
	// ErrReadDir is returned when the test directory cannot be read.
	ErrReadDir = errors.New("could not read test directory")
	// ErrTestFailed marks one failed test in the aggregated run error.
	ErrTestFailed = errors.New("test failed")
)

// Suite drives a set of shell test scripts through the scheduler and
// collects failures. Callback state needs no locking: the scheduler
// dispatches callbacks one at a time.
type Suite struct {
	// Tests holds the discovered test names, in discovery order.
	Tests []string
	// Dir is the directory the scripts run in. Empty means the
	// current working directory.
	Dir string
	// Failed accumulates the names of tests that failed or failed to
	// start. It is never truncated during a run.
	Failed []string

	// Flags forwarded to each test script.
	Quiet     bool
	Immediate bool
	Verbose   bool
	Trace     bool

	next int
}

// Discover scans dir for test scripts named like t0000-description.sh
// and filters them against the given glob patterns. A name is included
// when it matches any pattern; no patterns means include all.
func Discover(dir string, patterns []string) ([]string, error) {
	fs := FsFactory()

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, errors.Join(ErrReadDir, err)
	}

	var tests []string

	for _, entry := range entries {
		name := entry.Name()
		if !isTestScript(name) {
			continue
		}

		if len(patterns) == 0 {
			tests = append(tests, name)
			continue
		}

		for _, pattern := range patterns {
			ok, err := doublestar.Match(pattern, name)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrBadPattern, pattern)
			}

			if ok {
				tests = append(tests, name)
				break
			}
		}
	}

	return tests, nil
}

// isTestScript reports whether name has the test script shape:
// 't', four digits, a hyphen, an arbitrary suffix and a ".sh" extension.
func isTestScript(name string) bool {
	const minLen = len("t0000-.sh")

	if len(name) < minLen || name[0] != 't' || name[5] != '-' {
		return false
	}

	for _, c := range name[1:5] {
		if c < '0' || c > '9' {
			return false
		}
	}

	return strings.HasSuffix(name, ".sh")
}

// NormalizeJobs converts a requested job count into an effective one:
// non-positive requests use the available parallelism, and the count is
// clamped down to the number of tests so no slot sits idle.
func NormalizeJobs(jobs, tests int) int {
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	if jobs > tests {
		jobs = tests
	}

	return jobs
}

// Run executes every test in the suite, up to jobs at a time, writing
// each test's output contiguously to w. It returns 1 when any test
// failed or failed to start, together with an error naming each failure.
func (s *Suite) Run(ctx context.Context, jobs int, w io.Writer) (int, error) {
	if len(s.Tests) == 0 {
		return 1, ErrNoTests
	}

	jobs = NormalizeJobs(jobs, len(s.Tests))

	agg, err := pool.Run(ctx, pool.Options[string]{
		Jobs:         jobs,
		NextTask:     s.nextTest,
		StartFailure: s.testStartFailed,
		TaskFinished: s.testFinished,
		Output:       w,
	})
	if err != nil {
		return 1, err
	}

	if len(s.Failed) > 0 {
		var merr *multierror.Error
		for _, name := range s.Failed {
			merr = multierror.Append(merr, fmt.Errorf("%w: %s", ErrTestFailed, name))
		}

		return 1, merr.ErrorOrNil()
	}

	if agg != 0 {
		return 1, nil
	}

	return 0, nil
}

func (s *Suite) nextTest(cmd *childproc.Cmd, out *bytes.Buffer) (string, bool) {
	if s.next >= len(s.Tests) {
		return "", false
	}

	name := s.Tests[s.next]
	s.next++

	cmd.Args = []string{"sh", name}
	cmd.Cwd = s.Dir

	if s.Quiet {
		cmd.Args = append(cmd.Args, "--quiet")
	}

	if s.Immediate {
		cmd.Args = append(cmd.Args, "-i")
	}

	if s.Verbose {
		cmd.Args = append(cmd.Args, "-v")
	}

	if s.Trace {
		cmd.Args = append(cmd.Args, "-x")
	}

	fmt.Fprintf(out, "Output of '%s':\n", name)

	return name, true
}

func (s *Suite) testFinished(result childproc.ExitResult, out *bytes.Buffer, name string) int {
	status := "SUCCESS"
	if !result.Success() {
		s.Failed = append(s.Failed, name)
		status = "FAIL"
	}

	fmt.Fprintf(out, "%s: '%s'\n", status, name)

	return 0
}

func (s *Suite) testStartFailed(out *bytes.Buffer, name string) int {
	s.Failed = append(s.Failed, name)
	fmt.Fprintf(out, "FAILED TO START: '%s'\n", name)

	return 0
}
