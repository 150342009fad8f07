// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package signalbroker

import (
	"context"
	"os"

	"github.com/matt-FFFFFF/procpool/internal/ctxlog"
)

// Watch monitors the signal channel and handles signals.
// The first signal of a type is a no-op so that in-flight child processes
// can drain; the second signal of the same type cancels the context.
func Watch(ctx context.Context, sigCh chan os.Signal, cancel context.CancelFunc) {
	sigMap := make(map[os.Signal]struct{})
	for sig := range sigCh {
		if _, ok := sigMap[sig]; ok {
			ctxlog.Logger(ctx).Info("watchdog", "detail", "received second signal of type, cancelling", "signal", sig.String())
			close(sigCh)
			cancel()

			return
		}

		ctxlog.Logger(ctx).Info("watchdog", "detail", "received first signal of type, draining", "signal", sig.String())

		sigMap[sig] = struct{}{}
	}
}
