// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for ai-sidebar-local:
// UTF-8 safe truncation, whitespace collapsing, and crash-safe atomic
// file writes.
package util
