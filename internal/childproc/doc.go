// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package childproc provides a handle for one OS child process: its
// argument vector, environment overrides, and a redirection policy per
// standard stream (inherit, discard, pipe). A launch failure is reported
// distinctly from a started process that exits non-zero.
//
// Pipe descriptors owned by a handle are close-on-exec, so concurrently
// started children never inherit each other's pipes, and descriptors
// local to the parent never leak into a child unless deliberately passed.
package childproc
