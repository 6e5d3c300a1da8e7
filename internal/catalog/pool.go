/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pool is the in-memory snapshot of the catalog file. Reload swaps the
// whole item slice and bumps the version; readers hold the returned slice
// as read-only.
type Pool struct {
	mu       sync.RWMutex
	logger   zerolog.Logger
	path     string
	items    []Item
	version  int64
	loadedAt time.Time
}

// NewPool creates an empty pool bound to a catalog file path. Call Reload
// to populate it.
func NewPool(path string, logger zerolog.Logger) *Pool {
	return &Pool{
		path:   path,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// Reload re-reads the catalog file. On any error the previous snapshot is
// kept (an empty pool stays empty) and the error is returned for the
// caller to report; generation continues against whatever is loaded.
func (p *Pool) Reload() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		p.logger.Warn().Err(err).Str("path", p.path).Msg("catalog file unreadable, keeping previous snapshot")
		return 0, fmt.Errorf("read catalog %s: %w", p.path, err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		p.logger.Warn().Err(err).Str("path", p.path).Msg("catalog file malformed, keeping previous snapshot")
		return 0, fmt.Errorf("parse catalog %s: %w", p.path, err)
	}

	kept := items[:0]
	for i := range items {
		items[i].normalize()
		if items[i].ID == 0 || items[i].Title == "" {
			p.logger.Debug().Int("tmdb_id", items[i].ID).Msg("dropping catalog entry without id or title")
			continue
		}
		kept = append(kept, items[i])
	}

	p.mu.Lock()
	p.items = kept
	p.version++
	p.loadedAt = time.Now()
	version := p.version
	p.mu.Unlock()

	p.logger.Info().
		Int("items", len(kept)).
		Int64("version", version).
		Msg("catalog loaded")
	return len(kept), nil
}

// Snapshot returns the current items and the pool version they belong to.
// The slice must not be mutated.
func (p *Pool) Snapshot() ([]Item, int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.items, p.version
}

// Version returns the current pool version. Zero means never loaded.
func (p *Pool) Version() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

// Len returns the number of items in the current snapshot.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// Find returns the item with the given id from the current snapshot.
func (p *Pool) Find(id int) (*Item, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i := range p.items {
		if p.items[i].ID == id {
			return &p.items[i], true
		}
	}
	return nil, false
}
