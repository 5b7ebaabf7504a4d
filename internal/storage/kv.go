// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"sync"
)

// =============================================================================
// KEY-VALUE MEDIUM
// =============================================================================

// KV is the injected persistence medium. The store defines upsert/delete
// semantics on top of it; the medium only moves opaque bytes. All drivers
// treat a missing key as (nil, false, nil), not an error.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, keys ...string) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// ErrUnknownDriver is returned by Open for an unrecognized driver name.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Open creates a KV for the named driver. dsn is the base directory for
// "file", the database path for "sqlite", and the address for "redis";
// it is ignored for "memory".
func Open(driver, dsn string) (KV, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemoryKV(), nil
	case DriverFile:
		return NewFileKV(dsn)
	case DriverSQLite:
		return NewSQLiteKV(dsn)
	case DriverRedis:
		return NewRedisKV(dsn), nil
	default:
		return nil, ErrUnknownDriver
	}
}

// =============================================================================
// MEMORY DRIVER
// =============================================================================

// MemoryKV is the in-process driver, used by tests and as the fallback
// when no persistence is configured.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV creates an empty in-memory KV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	return cp, true, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key] = cp
	return nil
}

func (m *MemoryKV) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *MemoryKV) Close() error { return nil }
