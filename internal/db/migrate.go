/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/zapperlabs/zapper/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.Channel{},
		&models.TimeSlot{},
		&models.Airing{},
		&models.AdminKey{},
		&models.AuditLog{},
	); err != nil {
		return err
	}

	if err := applyPostgresChannelNameGuard(database); err != nil {
		return err
	}
	if err := backfillSlotPositions(database); err != nil {
		return err
	}

	return nil
}

// applyPostgresChannelNameGuard enforces case-insensitive channel name
// uniqueness. Channels arrive from hand-edited blueprints, and "Retro" vs
// "retro" is always a mistake.
func applyPostgresChannelNameGuard(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_name_ci ON channels (LOWER(name))`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres channel name guard: %w", err)
	}

	return nil
}

// backfillSlotPositions assigns slot positions on channels imported before
// positions existed. Those rows all carry position 0; ordering by wall-clock
// start reproduces the intended sequence.
func backfillSlotPositions(database *gorm.DB) error {
	type row struct {
		ID        string
		ChannelID string
		Start     string
		Position  int
	}
	var rows []row
	if err := database.
		Model(&models.TimeSlot{}).
		Select("id, channel_id, start, position").
		Order("channel_id").
		Find(&rows).Error; err != nil {
		return fmt.Errorf("backfill slot positions query: %w", err)
	}

	byChannel := make(map[string][]row)
	for _, r := range rows {
		byChannel[r.ChannelID] = append(byChannel[r.ChannelID], r)
	}

	for channelID, slots := range byChannel {
		if len(slots) < 2 {
			continue
		}
		needs := true
		for _, s := range slots {
			if s.Position != 0 {
				needs = false
				break
			}
		}
		if !needs {
			continue
		}

		sort.SliceStable(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })
		for pos, s := range slots {
			if err := database.Model(&models.TimeSlot{}).
				Where("id = ?", s.ID).
				Update("position", pos).Error; err != nil {
				return fmt.Errorf("backfill slot positions for channel %s: %w", channelID, err)
			}
		}
	}

	return nil
}
