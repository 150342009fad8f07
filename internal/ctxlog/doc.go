// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package ctxlog provides a context-aware logger built on slog.
// The default handler is a pretty console handler that formats log
// messages in a human-readable way; a JSON handler is also available.
package ctxlog
