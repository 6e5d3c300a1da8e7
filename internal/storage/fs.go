/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// FSStore keeps objects as plain files under a root directory.
type FSStore struct {
	rootDir string
	logger  zerolog.Logger
}

// NewFSStore creates a filesystem-backed store rooted at rootDir.
func NewFSStore(rootDir string, logger zerolog.Logger) *FSStore {
	return &FSStore{
		rootDir: rootDir,
		logger:  logger.With().Str("component", "fs_storage").Logger(),
	}
}

// Put writes the object, creating parent directories as needed.
func (s *FSStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	fullPath := filepath.Join(s.rootDir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(fullPath, body, 0644); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}

	s.logger.Debug().
		Str("key", key).
		Int("bytes", len(body)).
		Msg("Object written")

	return nil
}

// Get reads an object back. Missing objects surface os.ErrNotExist.
func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	fullPath := filepath.Join(s.rootDir, filepath.FromSlash(key))

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	return data, nil
}

// List returns the keys of all objects under the given prefix, in
// walk order. A missing root yields an empty list.
func (s *FSStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.rootDir, path)
		if err != nil {
			return err
		}

		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	return keys, nil
}

// CheckAccess verifies the root directory exists and is writable,
// creating it if necessary.
func (s *FSStore) CheckAccess(ctx context.Context) error {
	if err := os.MkdirAll(s.rootDir, 0755); err != nil {
		return fmt.Errorf("storage root not writable: %w", err)
	}

	info, err := os.Stat(s.rootDir)
	if err != nil {
		return fmt.Errorf("storage root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root is not a directory: %s", s.rootDir)
	}

	return nil
}
