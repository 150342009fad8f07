// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package childproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/matt-FFFFFF/procpool/internal/ctxlog"
)

var (
	// ErrNoArgs is returned when Start is called on a handle with an empty argument vector.
	ErrNoArgs = errors.New("argument vector is empty")
	// ErrStartFailed is returned when the process could not be launched.
	// It is joined with the OS cause, so exec.ErrNotFound and
	// os.ErrPermission remain visible through errors.Is.
	ErrStartFailed = errors.New("could not start process")
	// ErrWaitFailed is returned when the OS-level wait on the process failed.
	// This is distinct from the child exiting non-zero, which is a normal result.
	ErrWaitFailed = errors.New("could not wait for process")
	// ErrAlreadyStarted is returned when Start is called more than once.
	ErrAlreadyStarted = errors.New("process already started")
	// ErrNotStarted is returned when Wait is called before Start.
	ErrNotStarted = errors.New("process not started")
	// ErrAlreadyFinished is returned when Wait is called after the process has been reaped.
	ErrAlreadyFinished = errors.New("process already finished")
	// ErrBadRedirect is returned when a redirection mode is not valid for a stream.
	ErrBadRedirect = errors.New("invalid redirection mode for stream")
	// ErrFailedToCreatePipe is returned when the operating system pipe could not be created.
	ErrFailedToCreatePipe = errors.New("failed to create pipe")
)

// RedirectMode controls where one of the child's standard streams is connected.
type RedirectMode int

const (
	// Inherit connects the stream to the corresponding stream of the parent.
	Inherit RedirectMode = iota
	// Discard connects the stream to the null device.
	Discard
	// Pipe connects the stream to a pipe whose parent end is accessible
	// via StdinPipe, StdoutPipe or StderrPipe.
	Pipe
	// MergeStdout is valid for Stderr only and connects the child's
	// stderr to the same descriptor as its stdout.
	MergeStdout
)

type procState int

const (
	stateUnstarted procState = iota
	stateRunning
	stateFinished
)

// Cmd represents one OS child process: its argument vector, environment
// overrides and per-stream redirection policy. A handle transitions
// Unstarted -> Running -> Finished exactly once and is not safe for
// concurrent use.
type Cmd struct {
	// Args is the argument vector. Args[0] is the executable, resolved
	// via PATH when it does not contain a path separator.
	Args []string
	// Env holds variables appended to the parent environment.
	Env map[string]string
	// Cwd is the working directory for the child. Empty means the parent's.
	Cwd string

	// Redirection policy per stream. Fixed at start time.
	Stdin  RedirectMode
	Stdout RedirectMode
	Stderr RedirectMode

	state   procState
	process *os.Process

	stdinW  *os.File // parent write end of the stdin pipe
	stdoutR *os.File // parent read end of the stdout pipe
	stderrR *os.File // parent read end of the stderr pipe
}

// Pid returns the OS process identifier, or 0 before Start.
func (c *Cmd) Pid() int {
	if c.process == nil {
		return 0
	}

	return c.process.Pid
}

// Start spawns the child process. It returns ErrStartFailed joined with
// the OS cause when the executable cannot be located or exec fails; this
// is distinguishable from a process that ran and exited non-zero, which
// is reported by Wait as a normal ExitResult.
//
// Pipe descriptors created here are close-on-exec, so they are never
// inadvertently inherited by unrelated children; only the three standard
// streams are passed to this child.
func (c *Cmd) Start(ctx context.Context) error {
	if c.state != stateUnstarted {
		return ErrAlreadyStarted
	}

	if len(c.Args) == 0 {
		return ErrNoArgs
	}

	logger := ctxlog.Logger(ctx).With("args", c.Args)

	path, err := exec.LookPath(c.Args[0])
	if err != nil {
		return errors.Join(ErrStartFailed, err)
	}

	env := os.Environ()
	for k, v := range c.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	// Descriptors opened for this start, closed in the parent once the
	// child holds its own copies, or on any failure path.
	var childOwned []*os.File

	cleanup := func() {
		for _, f := range childOwned {
			_ = f.Close()
		}

		c.closeParentEnds()
	}

	files := make([]*os.File, 3)

	switch c.Stdin {
	case Inherit:
		files[0] = os.Stdin
	case Discard:
		f, err := os.Open(os.DevNull)
		if err != nil {
			return errors.Join(ErrStartFailed, err)
		}

		files[0] = f
		childOwned = append(childOwned, f)
	case Pipe:
		r, w, err := os.Pipe()
		if err != nil {
			cleanup()
			return errors.Join(ErrStartFailed, ErrFailedToCreatePipe, err)
		}

		files[0] = r
		c.stdinW = w
		childOwned = append(childOwned, r)
	default:
		cleanup()
		return fmt.Errorf("%w: stdin %d", ErrBadRedirect, c.Stdin)
	}

	files[1], err = c.setupOutStream(c.Stdout, os.Stdout, &c.stdoutR, &childOwned)
	if err != nil {
		cleanup()
		return err
	}

	switch c.Stderr {
	case MergeStdout:
		files[2] = files[1]
	default:
		files[2], err = c.setupOutStream(c.Stderr, os.Stderr, &c.stderrR, &childOwned)
		if err != nil {
			cleanup()
			return err
		}
	}

	ps, err := os.StartProcess(path, c.Args, &os.ProcAttr{
		Dir:   c.Cwd,
		Env:   env,
		Files: files,
	})
	if err != nil {
		cleanup()
		return errors.Join(ErrStartFailed, err)
	}

	// The child has its own copies now; release ours so pipe readers
	// see EOF when the child exits.
	for _, f := range childOwned {
		_ = f.Close()
	}

	c.process = ps
	c.state = stateRunning

	logger.Debug("process started", "pid", ps.Pid)

	return nil
}

// setupOutStream opens the descriptor the child will receive for stdout
// or stderr. For Pipe, the parent read end is stored in parentEnd.
func (c *Cmd) setupOutStream(mode RedirectMode, inherited *os.File, parentEnd **os.File, childOwned *[]*os.File) (*os.File, error) {
	switch mode {
	case Inherit:
		return inherited, nil
	case Discard:
		f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			return nil, errors.Join(ErrStartFailed, err)
		}

		*childOwned = append(*childOwned, f)

		return f, nil
	case Pipe:
		r, w, err := os.Pipe()
		if err != nil {
			return nil, errors.Join(ErrStartFailed, ErrFailedToCreatePipe, err)
		}

		*parentEnd = r
		*childOwned = append(*childOwned, w)

		return w, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrBadRedirect, mode)
	}
}

// Wait blocks until the process exits and returns its ExitResult.
// A non-zero exit or death by signal is a normal result, not an error;
// ErrWaitFailed is returned only when the OS-level wait itself failed.
func (c *Cmd) Wait() (ExitResult, error) {
	switch c.state {
	case stateUnstarted:
		return ExitResult{}, ErrNotStarted
	case stateFinished:
		return ExitResult{}, ErrAlreadyFinished
	case stateRunning:
	}

	state, err := c.process.Wait()
	c.state = stateFinished

	// The write end of the stdin pipe is useless once the child is gone.
	_ = c.CloseStdin()

	if err != nil {
		return ExitResult{}, errors.Join(ErrWaitFailed, err)
	}

	return ExitResult{
		Code:     state.ExitCode(),
		Signaled: !state.Exited(),
		state:    state,
	}, nil
}

// Run starts the process and waits for it to complete.
func (c *Cmd) Run(ctx context.Context) (ExitResult, error) {
	if err := c.Start(ctx); err != nil {
		return ExitResult{}, err
	}

	return c.Wait()
}

// StdinPipe returns the parent write end of the stdin pipe, or nil when
// stdin is not piped or has been closed.
func (c *Cmd) StdinPipe() *os.File { return c.stdinW }

// StdoutPipe returns the parent read end of the stdout pipe, or nil when
// stdout is not piped. When Stderr is MergeStdout the child's stderr
// arrives on the same pipe.
func (c *Cmd) StdoutPipe() *os.File { return c.stdoutR }

// StderrPipe returns the parent read end of the stderr pipe, or nil when
// stderr is not piped.
func (c *Cmd) StderrPipe() *os.File { return c.stderrR }

// CloseStdin closes the parent write end of the stdin pipe, signalling
// EOF to a child reading from it. It is a no-op when stdin was not piped
// and is safe to call more than once.
func (c *Cmd) CloseStdin() error {
	if c.stdinW == nil {
		return nil
	}

	err := c.stdinW.Close()
	c.stdinW = nil

	return err
}

// CloseStdout releases the parent read end of the stdout pipe.
// Safe to call more than once.
func (c *Cmd) CloseStdout() error {
	if c.stdoutR == nil {
		return nil
	}

	err := c.stdoutR.Close()
	c.stdoutR = nil

	return err
}

// CloseStderr releases the parent read end of the stderr pipe.
// Safe to call more than once.
func (c *Cmd) CloseStderr() error {
	if c.stderrR == nil {
		return nil
	}

	err := c.stderrR.Close()
	c.stderrR = nil

	return err
}

func (c *Cmd) closeParentEnds() {
	_ = c.CloseStdin()
	_ = c.CloseStdout()
	_ = c.CloseStderr()
}
