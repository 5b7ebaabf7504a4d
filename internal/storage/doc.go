// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for the sidebar.
//
// The Store defines the upsert/delete/query semantics; the persistence
// medium behind it is an injected KV interface with four drivers:
//
//   - memory: in-process map, for tests and ephemeral runs
//   - file:   one JSON file per key, atomic writes with fsync
//   - sqlite: single-table database (modernc.org/sqlite, pure Go)
//   - redis:  shared instance for multi-host setups
//
// Persistence failures are logged and swallowed by policy: a storage
// problem must never lose the in-memory conversation mid-session.
package storage
