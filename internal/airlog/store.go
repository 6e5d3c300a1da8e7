/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package airlog is the durable movie cooldown ledger. The full airing
// history stays in memory for matching; every change is written through
// to the airings table so repeat protection survives restarts.
package airlog

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zapperlabs/zapper/internal/guide"
	"github.com/zapperlabs/zapper/internal/models"
)

// Store implements guide.CooldownLedger with write-through persistence.
// Reads never touch the database; a failed write is logged and the
// in-process state stays authoritative, so guide generation never fails
// on airing bookkeeping.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
	mem    *guide.MemoryCooldown
}

// Open loads the airing history into memory and returns the store.
func Open(db *gorm.DB, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "airlog").Logger(),
		mem:    guide.NewMemoryCooldown(),
	}

	var rows []models.Airing
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load airings: %w", err)
	}
	for _, row := range rows {
		s.mem.MarkAired(row.ChannelID, row.ItemID, row.LastAired.UTC())
	}

	s.logger.Info().Int("airings", len(rows)).Msg("airing history loaded")
	return s, nil
}

// LastAired returns the recorded day for (channel, item), if any.
func (s *Store) LastAired(channelID string, itemID int) (time.Time, bool) {
	return s.mem.LastAired(channelID, itemID)
}

// MarkAired records that the item ran on the given day, replacing any
// earlier record.
func (s *Store) MarkAired(channelID string, itemID int, day time.Time) {
	s.mem.MarkAired(channelID, itemID, day)

	row := models.Airing{
		ChannelID: channelID,
		ItemID:    itemID,
		LastAired: day,
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}, {Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_aired", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		s.logger.Warn().Err(err).Str("channel", channelID).Int("item", itemID).Msg("airing write failed, cooldown kept in memory only")
	}
}

// ClearDay removes every record on the channel dated exactly day.
func (s *Store) ClearDay(channelID string, day time.Time) {
	s.mem.ClearDay(channelID, day)

	err := s.db.Where("channel_id = ? AND last_aired = ?", channelID, day).Delete(&models.Airing{}).Error
	if err != nil {
		s.logger.Warn().Err(err).Str("channel", channelID).Msg("airing delete failed")
	}
}
