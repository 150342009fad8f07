// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package pool schedules independent OS-process tasks on a fixed pool of
// worker slots. Work is pulled lazily through a caller-supplied task
// source, so the job count provides backpressure without materializing a
// task queue. Each task's output is buffered and reported as one
// contiguous block; completion callbacks run one at a time on the
// coordinator in the order processes finish, and may request a graceful
// early stop.
package pool
