// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package testsuite discovers shell test scripts and runs them in
// parallel through the scheduler, collecting the names of failed tests.
package testsuite
