// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package signalbroker delivers termination signals to the watchdog.
// The first signal of a type lets in-flight child processes drain; the
// second signal of the same type cancels the context, which the
// scheduler treats as a cooperative stop.
package signalbroker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/matt-FFFFFF/procpool/internal/ctxlog"
)

// defaultSignals are the signals subscribed to when the caller names none.
var defaultSignals = []os.Signal{
	os.Interrupt,
	syscall.SIGINT,
	syscall.SIGTERM,
	syscall.SIGQUIT,
}

// New subscribes to the given termination signals and returns the
// delivery channel. With no signals it subscribes to the default set.
func New(ctx context.Context, sigs ...os.Signal) chan os.Signal {
	if len(sigs) == 0 {
		sigs = defaultSignals
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	ctxlog.Debug(ctx, "signal broker subscribed", "signals", sigs)

	return ch
}
