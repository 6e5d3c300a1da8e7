/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package guide turns the catalog pool and channel slot plans into
// deterministic daily program schedules.
package guide

import (
	"fmt"
	"time"

	"github.com/zapperlabs/zapper/internal/models"
)

// Program is one scheduled broadcast. Immutable once emitted; regenerating
// a day replaces the whole schedule.
type Program struct {
	ID           string             `json:"id"`
	ChannelID    string             `json:"channel_id"`
	ItemID       int                `json:"item_id"`
	Kind         models.ContentKind `json:"kind"`
	Title        string             `json:"title"`
	Synopsis     string             `json:"synopsis,omitempty"`
	Runtime      int                `json:"runtime"` // minutes
	Start        time.Time          `json:"start"`
	End          time.Time          `json:"end"`
	SlotLabel    string             `json:"slot_label"`
	ProviderName string             `json:"provider_name,omitempty"`
	ProviderLogo string             `json:"provider_logo,omitempty"`
	DeepLink     string             `json:"deep_link,omitempty"`
	PosterPath   string             `json:"poster_path,omitempty"`
	BackdropPath string             `json:"backdrop_path,omitempty"`
}

// DaySchedule is the generated program list for one channel-day.
type DaySchedule struct {
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	Date        string    `json:"date"` // "2006-01-02" in the guide timezone
	Programs    []Program `json:"programs"`
	GeneratedAt time.Time `json:"generated_at"`
	PoolVersion int64     `json:"pool_version"`
}

// programID builds the synthetic program identifier from channel, start
// and catalog id.
func programID(channelID string, itemID int, start time.Time) string {
	return fmt.Sprintf("%s_%d_%s", channelID, itemID, start.Format(time.RFC3339))
}

// NowPlaying returns the program whose [start, end) window contains at,
// or nil when the channel is off air at that instant.
func NowPlaying(s *DaySchedule, at time.Time) *Program {
	if s == nil {
		return nil
	}
	for i := range s.Programs {
		p := &s.Programs[i]
		if !at.Before(p.Start) && at.Before(p.End) {
			return p
		}
	}
	return nil
}
