// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main contains the procpool command-line interface (CLI).
package main

import (
	"context"
	"os"

	"github.com/matt-FFFFFF/procpool/cmd"
	"github.com/matt-FFFFFF/procpool/internal/ctxlog"
	"github.com/matt-FFFFFF/procpool/internal/signalbroker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = ctxlog.New(ctx, ctxlog.DefaultLogger)
	defer cancel()

	sigCh := signalbroker.New(ctx)

	go signalbroker.Watch(ctx, sigCh, cancel)

	// Scenario commands pass child exit codes through via cli.Exit, which
	// the cli package turns into os.Exit before Run returns.
	err := cmd.RootCmd.Run(ctx, os.Args)

	if ctx.Err() != nil {
		ctxlog.Logger(ctx).Error("command terminated due to cancellation", "error", ctx.Err())
		os.Exit(1)
	}

	if err != nil {
		ctxlog.Logger(ctx).Error("command failed", "error", err)
		os.Exit(1)
	}
}
