// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and persists sidebar settings.
//
// Settings live in TOML at ~/.aisidebar/config.toml (AISIDEBAR_HOME
// overrides the directory). Loading applies defaults, then the file,
// then AISIDEBAR_* environment variables, then validation. Saves are
// atomic and mode 0600.
//
// Watch re-reads the file when it changes on disk, debounced, so the
// daemon can pick up a new default model without a restart.
package config
