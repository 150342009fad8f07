// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(buf *bytes.Buffer, level slog.Level) *PrettyHandler {
	return NewPrettyHandler(&slog.HandlerOptions{Level: level}, WithDestinationWriter(buf))
}

func TestPrettyHandler_Handle(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(newTestHandler(&buf, slog.LevelDebug))

	logger.Info("hello world", "answer", 42)

	out := buf.String()
	assert.Contains(t, out, "INFO:")
	assert.Contains(t, out, "hello world")
	assert.Contains(t, out, "answer")
	assert.Contains(t, out, "42")
}

func TestPrettyHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer

	h := newTestHandler(&buf, slog.LevelWarn)

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestPrettyHandler_NoAttrs(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(newTestHandler(&buf, slog.LevelDebug))

	logger.Warn("plain message")

	out := buf.String()
	assert.Contains(t, out, "plain message")
	assert.NotContains(t, out, "{", "expected no attribute block for a record without attrs")
}

func TestPrettyHandler_ColourOption(t *testing.T) {
	var plain, coloured bytes.Buffer

	slog.New(NewPrettyHandler(&slog.HandlerOptions{Level: slog.LevelDebug},
		WithDestinationWriter(&plain),
	)).Info("hello")

	slog.New(NewPrettyHandler(&slog.HandlerOptions{Level: slog.LevelDebug},
		WithDestinationWriter(&coloured),
		WithColour(),
	)).Info("hello")

	assert.NotContains(t, plain.String(), "\033[", "expected no escape codes without the colour option")
	assert.Contains(t, coloured.String(), "\033[", "expected escape codes with the colour option")
}

func TestPrettyHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer

	base := newTestHandler(&buf, slog.LevelDebug)
	logger := slog.New(base).With("component", "pool")

	logger.Info("task started")

	require.Contains(t, buf.String(), "component")
	assert.Contains(t, buf.String(), "pool")
}
