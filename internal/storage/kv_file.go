// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/duahaudo/ai-sidebar-local/internal/util"
)

// FileKV stores each key as one JSON file under a base directory.
// Writes are atomic with fsync so a crash never leaves a partial value.
type FileKV struct {
	baseDir string
}

// NewFileKV creates a file-backed KV rooted at baseDir, creating the
// directory if needed.
func NewFileKV(baseDir string) (*FileKV, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &FileKV{baseDir: baseDir}, nil
}

func (f *FileKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (f *FileKV) Set(_ context.Context, key string, value []byte) error {
	return util.AtomicWriteFile(f.path(key), value, 0644)
}

func (f *FileKV) Remove(_ context.Context, keys ...string) error {
	for _, k := range keys {
		if err := os.Remove(f.path(k)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (f *FileKV) Close() error { return nil }

// path maps a key to its file. Keys are flat names (e.g. "conversations");
// separators are flattened so a key can never escape the base directory.
func (f *FileKV) path(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(f.baseDir, safe+".json")
}
