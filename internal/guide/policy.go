/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package guide

import (
	"time"

	"github.com/zapperlabs/zapper/internal/catalog"
	"github.com/zapperlabs/zapper/internal/models"
)

// DurationPolicy decides how long an item occupies the grid when its
// metadata has no runtime, and enforces the series floor.
type DurationPolicy struct {
	MovieFallback  time.Duration
	SeriesFallback time.Duration
	SeriesMinimum  time.Duration
}

// DefaultDurationPolicy mirrors typical broadcast padding: feature films
// block 90 minutes, episodes 45, and nothing shorter than half an hour.
func DefaultDurationPolicy() DurationPolicy {
	return DurationPolicy{
		MovieFallback:  90 * time.Minute,
		SeriesFallback: 45 * time.Minute,
		SeriesMinimum:  30 * time.Minute,
	}
}

// Runtime returns the slot duration for an item under this policy.
func (p DurationPolicy) Runtime(it *catalog.Item) time.Duration {
	switch it.Kind {
	case models.KindSeries:
		dur := p.SeriesFallback
		if it.Runtime != nil && *it.Runtime > 0 {
			dur = time.Duration(*it.Runtime) * time.Minute
		}
		if dur < p.SeriesMinimum {
			dur = p.SeriesMinimum
		}
		return dur
	default:
		if it.Runtime != nil && *it.Runtime > 0 {
			return time.Duration(*it.Runtime) * time.Minute
		}
		return p.MovieFallback
	}
}
