// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/matt-FFFFFF/procpool/internal/childproc"
	"github.com/matt-FFFFFF/procpool/internal/ctxlog"
)

const maxBufferSize = 8 * 1024 * 1024 // 8MB per task

var (
	// ErrInvalidJobs is returned when the job count is less than one.
	// Callers normalize "use available parallelism" requests themselves.
	ErrInvalidJobs = errors.New("job count must be at least 1")
	// ErrNoSource is returned when no task source was supplied.
	ErrNoSource = errors.New("no task source supplied")
	// ErrNoTask is returned when the task source signalled a task but
	// populated no argument vector. This is a programming error in the
	// caller and fails the run loudly.
	ErrNoTask = errors.New("task source signalled a task but populated no argument vector")
	// ErrBufferOverflow is returned when a task's output exceeds the max size.
	ErrBufferOverflow = fmt.Errorf("output exceeds max size of %d bytes", maxBufferSize)
	// ErrFailedToReadBuffer is returned when the buffer from the operating system pipe could not be read.
	ErrFailedToReadBuffer = errors.New("failed to read buffer")
)

// NextTaskFunc is polled by the scheduler whenever a slot is free.
// Implementations populate cmd, may write a preamble into out, and
// return the task's correlation value. ok is false when no more tasks
// are available; the pull sequence is strictly monotonic, so correlation
// values map 1:1 to pull order.
type NextTaskFunc[T any] func(cmd *childproc.Cmd, out *bytes.Buffer) (task T, ok bool)

// StartFailureFunc is invoked when a task's process failed to launch at
// all. out holds the accumulated buffer including the failure reason.
// The return value ORs into the aggregate result.
type StartFailureFunc[T any] func(out *bytes.Buffer, task T) int

// TaskFinishedFunc is invoked when a started task's process has exited.
// The return value ORs into the aggregate result; a non-zero value also
// requests a graceful early stop: no further tasks are pulled, but
// already-running processes drain normally.
type TaskFinishedFunc[T any] func(result childproc.ExitResult, out *bytes.Buffer, task T) int

// Options configures one scheduler run. T is the caller-defined
// correlation value linking a pulled task to its completion report;
// caller state shared between callbacks needs no locking because
// callbacks execute one at a time on the coordinator.
type Options[T any] struct {
	// Jobs is the fixed number of task slots. Must be at least 1.
	Jobs int
	// NextTask produces work. Required.
	NextTask NextTaskFunc[T]
	// StartFailure handles tasks whose process never launched. Optional.
	StartFailure StartFailureFunc[T]
	// TaskFinished handles tasks whose process exited. Optional.
	TaskFinished TaskFinishedFunc[T]
	// Output receives each task's buffered output as one contiguous
	// write when the task completes. Defaults to os.Stderr.
	Output io.Writer
}

type slot[T any] struct {
	index int
	buf   bytes.Buffer
	task  T
	cmd   *childproc.Cmd
}

type completion struct {
	slot    int
	result  childproc.ExitResult
	waitErr error
	readErr error
}

type runner[T any] struct {
	opts      Options[T]
	slots     []*slot[T]
	free      []int
	running   int
	stopping  bool
	exhausted bool
	agg       int
	fatal     error
	done      chan completion
}

// Run executes tasks pulled from opts.NextTask on a fixed pool of
// opts.Jobs slots. One coordinator starts processes, waits for any to
// finish, and dispatches callbacks sequentially in completion order.
// Exactly one of StartFailure or TaskFinished is invoked per pulled task.
//
// It returns the bitwise OR of every callback's return value. The error
// is non-nil only for scheduler-fatal conditions: an OS-level wait
// failure, a task source that breaks protocol, or invalid options.
// Cancelling ctx is a cooperative stop: no further tasks are pulled and
// running processes drain; the scheduler never kills a child, so a hung
// child hangs the run.
func Run[T any](ctx context.Context, opts Options[T]) (int, error) {
	if opts.Jobs < 1 {
		return 0, ErrInvalidJobs
	}

	if opts.NextTask == nil {
		return 0, ErrNoSource
	}

	if opts.StartFailure == nil {
		opts.StartFailure = func(*bytes.Buffer, T) int { return 0 }
	}

	if opts.TaskFinished == nil {
		opts.TaskFinished = func(childproc.ExitResult, *bytes.Buffer, T) int { return 0 }
	}

	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	r := &runner[T]{
		opts: opts,
		done: make(chan completion, opts.Jobs),
	}

	for i := range opts.Jobs {
		r.slots = append(r.slots, &slot[T]{index: i})
		r.free = append(r.free, i)
	}

	logger := ctxlog.Logger(ctx).With("jobs", opts.Jobs)
	logger.Debug("scheduler run starting")

	for {
		for len(r.free) > 0 && !r.stopping && !r.exhausted {
			if ctx.Err() != nil {
				logger.Debug("context cancelled, no further tasks will be pulled")

				r.stopping = true

				break
			}

			r.startOne(ctx)
		}

		if r.running == 0 {
			break
		}

		r.finishOne(ctx, <-r.done)
	}

	logger.Debug("scheduler run finished", "aggregate", r.agg)

	return r.agg, r.fatal
}

// startOne pulls the next task into a free slot and starts its process.
// A start failure is dispatched immediately and leaves the slot free, so
// it never counts toward the running total.
func (r *runner[T]) startOne(ctx context.Context) {
	s := r.slots[r.free[len(r.free)-1]]
	s.buf.Reset()

	cmd := &childproc.Cmd{
		// Children must not compete for the coordinator's stdin, and
		// their output is buffered per slot: stdout and stderr share
		// one pipe so a task's bytes stay in write order.
		Stdin:  childproc.Discard,
		Stdout: childproc.Pipe,
		Stderr: childproc.MergeStdout,
	}

	task, ok := r.opts.NextTask(cmd, &s.buf)
	if !ok {
		r.exhausted = true

		r.flush(ctx, s)

		return
	}

	if len(cmd.Args) == 0 {
		r.fatal = errors.Join(r.fatal, ErrNoTask)
		r.stopping = true

		return
	}

	if err := cmd.Start(ctx); err != nil {
		fmt.Fprintf(&s.buf, "failed to start %q: %v\n", cmd.Args[0], err)
		r.agg |= r.opts.StartFailure(&s.buf, task)
		r.flush(ctx, s)

		return
	}

	s.cmd = cmd
	s.task = task
	r.free = r.free[:len(r.free)-1]
	r.running++

	ctxlog.Debug(ctx, "task started", "slot", s.index, "pid", cmd.Pid())

	go func() {
		// The slot's buffer is owned by this goroutine until the
		// completion is delivered back to the coordinator. Draining
		// the pipe before waiting keeps the child from blocking on a
		// full pipe.
		readErr := copyUpToMax(&s.buf, cmd.StdoutPipe(), maxBufferSize)
		res, waitErr := cmd.Wait()
		_ = cmd.CloseStdout()

		r.done <- completion{slot: s.index, result: res, waitErr: waitErr, readErr: readErr}
	}()
}

// finishOne dispatches one completion on the coordinator.
func (r *runner[T]) finishOne(ctx context.Context, c completion) {
	s := r.slots[c.slot]
	r.running--
	r.free = append(r.free, c.slot)

	switch {
	case errors.Is(c.readErr, ErrBufferOverflow):
		fmt.Fprintf(&s.buf, "(output truncated at %d bytes)\n", maxBufferSize)
	case c.readErr != nil:
		r.fatal = errors.Join(r.fatal, c.readErr)
		r.stopping = true
	}

	if c.waitErr != nil {
		// Process bookkeeping is no longer reliable; stop pulling and
		// let in-flight tasks drain. The task's buffered output is
		// still reported.
		r.fatal = errors.Join(r.fatal, c.waitErr)
		r.stopping = true

		r.flush(ctx, s)

		return
	}

	if r.stopping {
		// A stop was requested before this task finished: it drains
		// without a completion report, but its output is not lost.
		r.flush(ctx, s)

		return
	}

	code := r.opts.TaskFinished(c.result, &s.buf, s.task)
	r.agg |= code

	if code != 0 {
		ctxlog.Debug(ctx, "early stop requested", "slot", s.index)

		r.stopping = true
	}

	r.flush(ctx, s)
}

// flush writes the slot's buffered output as one contiguous block and
// resets the slot. Buffers are only ever flushed on the coordinator, so
// task output is never interleaved.
func (r *runner[T]) flush(ctx context.Context, s *slot[T]) {
	if s.buf.Len() > 0 {
		if _, err := r.opts.Output.Write(s.buf.Bytes()); err != nil {
			ctxlog.Error(ctx, "failed to write task output", "slot", s.index, "error", err)
		}
	}

	s.buf.Reset()
	s.cmd = nil

	var zero T
	s.task = zero
}

// copyUpToMax copies r into buf up to max bytes. On overflow it drains
// the remainder so a child writing more than max is not blocked, and
// returns ErrBufferOverflow.
func copyUpToMax(buf *bytes.Buffer, r io.Reader, maxBytes int64) error {
	if r == nil {
		return nil
	}

	n, err := io.CopyN(buf, r, maxBytes+1)
	if err != nil && err != io.EOF {
		return errors.Join(ErrFailedToReadBuffer, err)
	}

	if n > maxBytes {
		buf.Truncate(buf.Len() - 1)
		_, _ = io.Copy(io.Discard, r)

		return ErrBufferOverflow
	}

	return nil
}
