// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pool

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/matt-FFFFFF/procpool/internal/childproc"
	"github.com/matt-FFFFFF/procpool/internal/ctxlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func testContext(t *testing.T) context.Context {
	t.Helper()

	return ctxlog.New(context.Background(), ctxlog.DefaultLogger)
}

// fixedSource yields the same argument vector a fixed number of times,
// using the pull index as the correlation value. The cap is instance
// state, never a shared counter.
type fixedSource struct {
	args      []string
	remaining int
	issued    int
}

func (s *fixedSource) next(cmd *childproc.Cmd, _ *bytes.Buffer) (int, bool) {
	if s.remaining == 0 {
		return 0, false
	}

	s.remaining--

	cmd.Args = append([]string{}, s.args...)
	s.issued++

	return s.issued - 1, true
}

func TestRun_InvalidJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	_, err := Run(testContext(t), Options[int]{Jobs: 0})
	require.ErrorIs(t, err, ErrInvalidJobs)
}

func TestRun_NoSource(t *testing.T) {
	defer goleak.VerifyNone(t)

	_, err := Run(testContext(t), Options[int]{Jobs: 1})
	require.ErrorIs(t, err, ErrNoSource)
}

func TestRun_NoTasksAvailable(t *testing.T) {
	defer goleak.VerifyNone(t)

	var out bytes.Buffer

	pulls := 0
	completions := 0

	agg, err := Run(testContext(t), Options[int]{
		Jobs: 2,
		NextTask: func(_ *childproc.Cmd, buf *bytes.Buffer) (int, bool) {
			pulls++
			buf.WriteString("no further jobs available\n")

			return 0, false
		},
		TaskFinished: func(_ childproc.ExitResult, _ *bytes.Buffer, _ int) int {
			completions++
			return 0
		},
		Output: &out,
	})

	require.NoError(t, err)
	assert.Equal(t, 0, agg, "expected aggregate 0 when the source is empty")
	assert.Equal(t, 1, pulls, "expected no further pulls after the source is exhausted")
	assert.Equal(t, 0, completions, "expected zero completion callbacks")
	assert.Equal(t, "no further jobs available\n", out.String())
}

func TestRun_AllSuccess(t *testing.T) {
	defer goleak.VerifyNone(t)

	const taskCount = 6

	src := &fixedSource{args: []string{"true"}, remaining: taskCount}
	seen := map[int]int{}

	agg, err := Run(testContext(t), Options[int]{
		Jobs:     3,
		NextTask: src.next,
		TaskFinished: func(result childproc.ExitResult, _ *bytes.Buffer, task int) int {
			seen[task]++

			assert.True(t, result.Success(), "expected every task to succeed")

			return 0
		},
		Output: &bytes.Buffer{},
	})

	require.NoError(t, err)
	assert.Equal(t, 0, agg)
	assert.Len(t, seen, taskCount, "expected one completion per pulled task")

	for task, n := range seen {
		assert.Equal(t, 1, n, "task %d reported %d times", task, n)
	}
}

func TestRun_AggregateIsORofCallbackResults(t *testing.T) {
	defer goleak.VerifyNone(t)

	// Start failures OR into the aggregate without requesting a stop, so
	// distinct bits from successive tasks all survive; the last task's
	// completion contributes the final bit.
	argvs := [][]string{
		{"definitely-not-a-real-command-procpool"},
		{"definitely-not-a-real-command-procpool"},
		{"definitely-not-a-real-command-procpool"},
		{"true"},
	}

	next := 0

	agg, err := Run(testContext(t), Options[int]{
		Jobs: 1,
		NextTask: func(cmd *childproc.Cmd, _ *bytes.Buffer) (int, bool) {
			if next >= len(argvs) {
				return 0, false
			}

			cmd.Args = argvs[next]
			next++

			return next - 1, true
		},
		StartFailure: func(_ *bytes.Buffer, task int) int {
			return 1 << task
		},
		TaskFinished: func(result childproc.ExitResult, _ *bytes.Buffer, task int) int {
			require.True(t, result.Success())

			return 1 << task
		},
		Output: &bytes.Buffer{},
	})

	require.NoError(t, err)
	assert.Equal(t, 0b1111, agg)
	assert.Equal(t, len(argvs), next, "start failures must not stop the pulls")
}

func TestRun_PreloadedOutput(t *testing.T) {
	defer goleak.VerifyNone(t)

	const preloaded = "preloaded output of a child\n"

	var out bytes.Buffer

	completions := 0
	src := &fixedSource{args: []string{"true"}, remaining: 4}

	agg, err := Run(testContext(t), Options[int]{
		Jobs: 2,
		NextTask: func(cmd *childproc.Cmd, buf *bytes.Buffer) (int, bool) {
			task, ok := src.next(cmd, buf)
			if ok {
				buf.WriteString(preloaded)
			}

			return task, ok
		},
		TaskFinished: func(_ childproc.ExitResult, buf *bytes.Buffer, _ int) int {
			completions++

			assert.Contains(t, buf.String(), preloaded, "expected each task's buffer to carry its preloaded text")

			return 0
		},
		Output: &out,
	})

	require.NoError(t, err)
	assert.Equal(t, 0, agg)
	assert.Equal(t, 4, completions)
	assert.Equal(t, 4, strings.Count(out.String(), preloaded))
}

func TestRun_AbortStopsPullsButDrains(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &fixedSource{args: []string{"sh", "-c", "sleep 0.1"}, remaining: 4}
	completions := 0

	agg, err := Run(testContext(t), Options[int]{
		Jobs:     2,
		NextTask: src.next,
		TaskFinished: func(_ childproc.ExitResult, _ *bytes.Buffer, _ int) int {
			completions++
			return 1
		},
		Output: &bytes.Buffer{},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, agg, "expected the abort request in the aggregate")
	assert.Equal(t, 1, completions, "expected exactly one completion before the stop")
	assert.Equal(t, 2, src.issued, "expected no pulls after the stop was requested")
}

func TestRun_StartFailureAndCompletionAreExclusive(t *testing.T) {
	defer goleak.VerifyNone(t)

	argvs := [][]string{
		{"definitely-not-a-real-command-procpool"},
		{"true"},
	}

	next := 0
	startFailures := map[int]int{}
	completions := map[int]int{}

	agg, err := Run(testContext(t), Options[int]{
		Jobs: 2,
		NextTask: func(cmd *childproc.Cmd, _ *bytes.Buffer) (int, bool) {
			if next >= len(argvs) {
				return 0, false
			}

			cmd.Args = argvs[next]
			next++

			return next - 1, true
		},
		StartFailure: func(buf *bytes.Buffer, task int) int {
			startFailures[task]++

			assert.Contains(t, buf.String(), "failed to start", "expected a human-readable reason in the buffer")

			return 2
		},
		TaskFinished: func(_ childproc.ExitResult, _ *bytes.Buffer, task int) int {
			completions[task]++
			return 0
		},
		Output: &bytes.Buffer{},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, agg, "expected the start-failure result in the aggregate")
	assert.Equal(t, map[int]int{0: 1}, startFailures)
	assert.Equal(t, map[int]int{1: 1}, completions)
}

func TestRun_ProtocolMisuse(t *testing.T) {
	defer goleak.VerifyNone(t)

	_, err := Run(testContext(t), Options[int]{
		Jobs: 1,
		NextTask: func(_ *childproc.Cmd, _ *bytes.Buffer) (int, bool) {
			// Signals a task without populating the argument vector.
			return 0, true
		},
		Output: &bytes.Buffer{},
	})

	require.ErrorIs(t, err, ErrNoTask)
}

func TestRun_ConcurrencyIsBounded(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &fixedSource{args: []string{"sh", "-c", "sleep 0.2"}, remaining: 4}

	start := time.Now()
	agg, err := Run(testContext(t), Options[int]{
		Jobs:     2,
		NextTask: src.next,
		Output:   &bytes.Buffer{},
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 0, agg)
	assert.GreaterOrEqual(t, elapsed, 380*time.Millisecond, "4 tasks at 2 a time need at least two rounds")
	assert.Less(t, elapsed, 750*time.Millisecond, "expected the rounds to overlap within each batch")
}

func TestRun_OutputIsContiguousPerTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	var out bytes.Buffer

	markers := []string{"alpha", "bravo", "charlie"}
	next := 0

	agg, err := Run(testContext(t), Options[string]{
		Jobs: 3,
		NextTask: func(cmd *childproc.Cmd, buf *bytes.Buffer) (string, bool) {
			if next >= len(markers) {
				return "", false
			}

			m := markers[next]
			next++

			cmd.Args = []string{"sh", "-c", "for i in 1 2 3 4 5; do echo " + m + "; done"}
			buf.WriteString("begin " + m + "\n")

			return m, true
		},
		TaskFinished: func(_ childproc.ExitResult, buf *bytes.Buffer, m string) int {
			buf.WriteString("end " + m + "\n")
			return 0
		},
		Output: &out,
	})

	require.NoError(t, err)
	assert.Equal(t, 0, agg)

	// Each task's block must be contiguous: nothing from another task
	// between its begin and end lines.
	text := out.String()
	for _, m := range markers {
		begin := strings.Index(text, "begin "+m)
		end := strings.Index(text, "end "+m)
		require.GreaterOrEqual(t, begin, 0)
		require.Greater(t, end, begin)

		block := text[begin:end]
		for _, other := range markers {
			if other == m {
				continue
			}

			assert.NotContains(t, block, other, "task %q output interleaved with %q", m, other)
		}
	}
}

func TestRun_ContextCancelStopsPulls(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(testContext(t))

	src := &fixedSource{args: []string{"sh", "-c", "sleep 0.1"}, remaining: 100}

	agg, err := Run(ctx, Options[int]{
		Jobs: 2,
		NextTask: func(cmd *childproc.Cmd, buf *bytes.Buffer) (int, bool) {
			task, ok := src.next(cmd, buf)
			if task == 1 {
				// Cancel mid-fill: the already-pulled tasks drain, no
				// further pulls happen.
				cancel()
			}

			return task, ok
		},
		Output: &bytes.Buffer{},
	})

	require.NoError(t, err)
	assert.Equal(t, 0, agg)
	assert.LessOrEqual(t, src.issued, 2, "expected no pulls after cancellation")
}

func TestRun_ConcurrentSchedulers(t *testing.T) {
	defer goleak.VerifyNone(t)

	var eg errgroup.Group

	for range 4 {
		eg.Go(func() error {
			src := &fixedSource{args: []string{"true"}, remaining: 8}

			agg, err := Run(testContext(t), Options[int]{
				Jobs:     4,
				NextTask: src.next,
				Output:   &bytes.Buffer{},
			})
			if err != nil {
				return err
			}

			assert.Equal(t, 0, agg)

			return nil
		})
	}

	require.NoError(t, eg.Wait())
}

func TestCopyUpToMax_Overflow(t *testing.T) {
	var buf bytes.Buffer

	buf.WriteString("preamble|")

	err := copyUpToMax(&buf, strings.NewReader("0123456789"), 4)
	require.ErrorIs(t, err, ErrBufferOverflow)
	assert.Equal(t, "preamble|0123", buf.String(), "expected the copy to stop at the limit")
}

func TestCopyUpToMax_NilReader(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, copyUpToMax(&buf, nil, 4))
	assert.Zero(t, buf.Len())
}
