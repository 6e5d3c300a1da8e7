/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog holds the immutable content pool the guide engine draws
// from. The pool file is produced by an external collector; this package
// only loads, normalizes, and snapshots it.
package catalog

import (
	"strings"

	"github.com/zapperlabs/zapper/internal/models"
)

// Provider is one streaming service an item is watchable on.
type Provider struct {
	ID   int    `json:"provider_id"`
	Name string `json:"provider_name"`
	Logo string `json:"logo_path"`
}

// Item is a single movie or series in the pool.
type Item struct {
	ID            int                `json:"tmdb_id"`
	Kind          models.ContentKind `json:"media_type"`
	Title         string             `json:"title"`
	OriginalTitle string             `json:"original_title"`
	Synopsis      string             `json:"overview"`
	Genres        []int              `json:"genres"`
	Year          int                `json:"year"`
	Decade        int                `json:"decade"`
	VoteAverage   float64            `json:"vote_average"`
	VoteCount     int                `json:"vote_count"`
	Keywords      []string           `json:"keywords"`
	Universes     []string           `json:"universes"`
	Countries     []string           `json:"origin_countries"`
	Language      string             `json:"original_language"`
	Runtime       *int               `json:"runtime"` // minutes; nil when the collector had none
	Providers     []Provider         `json:"providers"`
	PosterPath    string             `json:"poster_path"`
	BackdropPath  string             `json:"backdrop_path"`
}

// Watchable reports whether the item has at least one provider.
// Items without providers are never scheduled.
func (it *Item) Watchable() bool {
	return len(it.Providers) > 0
}

// PrimaryProvider returns the first listed provider, or nil.
func (it *Item) PrimaryProvider() *Provider {
	if len(it.Providers) == 0 {
		return nil
	}
	return &it.Providers[0]
}

// HasGenre reports whether the item carries the given genre id.
func (it *Item) HasGenre(id int) bool {
	for _, g := range it.Genres {
		if g == id {
			return true
		}
	}
	return false
}

// HasUniverse reports whether the item belongs to the given franchise tag.
func (it *Item) HasUniverse(name string) bool {
	for _, u := range it.Universes {
		if strings.EqualFold(u, name) {
			return true
		}
	}
	return false
}

// normalize fixes up collector quirks: TMDB calls series "tv", and older
// pool files omit the derived decade.
func (it *Item) normalize() {
	if it.Kind == "tv" {
		it.Kind = models.KindSeries
	}
	if it.Decade == 0 && it.Year > 0 {
		it.Decade = (it.Year / 10) * 10
	}
}
