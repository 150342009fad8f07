// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package parallel

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/matt-FFFFFF/procpool/internal/childproc"
	"github.com/matt-FFFFFF/procpool/internal/ctxlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestPreloadedSource(t *testing.T) {
	src := &preloadedSource{args: []string{"true"}, remaining: 2}

	var buf bytes.Buffer

	cmd := &childproc.Cmd{}
	task, ok := src.next(cmd, &buf)
	require.True(t, ok)
	assert.Equal(t, 1, task)
	assert.Equal(t, []string{"true"}, cmd.Args)
	assert.Equal(t, "preloaded output of a child\n", buf.String())

	// Each task gets its own argument vector.
	cmd.Args[0] = "mutated"
	assert.Equal(t, "true", src.args[0])

	task, ok = src.next(&childproc.Cmd{}, &buf)
	require.True(t, ok)
	assert.Equal(t, 2, task, "correlation values follow pull order")

	_, ok = src.next(&childproc.Cmd{}, &buf)
	assert.False(t, ok, "the source is exhausted after its cap")
}

func TestNoJob(t *testing.T) {
	var buf bytes.Buffer

	_, ok := noJob(&childproc.Cmd{}, &buf)
	assert.False(t, ok)
	assert.Equal(t, "no further jobs available\n", buf.String())
}

func TestQuickStop(t *testing.T) {
	var buf bytes.Buffer

	code := quickStop(childproc.ExitResult{}, &buf, 1)
	assert.Equal(t, 1, code, "the stop request must reach the aggregate")
	assert.Equal(t, "asking for a quick stop\n", buf.String())
}

func TestParallelCmd_Normal(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := ctxlog.New(context.Background(), ctxlog.DefaultLogger)

	var out bytes.Buffer

	ParallelCmd.ErrWriter = &out

	err := ParallelCmd.Run(ctx, []string{"parallel", "--jobs", "2", "--", "true"})
	require.NoError(t, err)
	assert.Equal(t, preloadedTaskCount, strings.Count(out.String(), "preloaded output of a child\n"))
}
