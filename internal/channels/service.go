/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package channels owns the channel lineup: persistence, the blueprint
// exchange format, and mutation events for cache invalidation.
package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/zapperlabs/zapper/internal/events"
	"github.com/zapperlabs/zapper/internal/models"
)

var (
	ErrNotFound = errors.New("channel not found")
	ErrExists   = errors.New("channel already exists")
)

// Service handles channel lineup CRUD and blueprint import/export.
type Service struct {
	db     *gorm.DB
	bus    events.Broker
	logger zerolog.Logger
}

// NewService creates a channel service.
func NewService(db *gorm.DB, bus events.Broker, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "channels").Logger(),
	}
}

func slotsInOrder(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// List returns every channel, highest priority first, slots in day order.
func (s *Service) List(ctx context.Context) ([]models.Channel, error) {
	var channels []models.Channel
	if err := s.db.WithContext(ctx).
		Preload("Slots", slotsInOrder).
		Order("priority DESC, id ASC").
		Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}

// ListEnabled returns the active lineup the guide engine runs against.
func (s *Service) ListEnabled(ctx context.Context) ([]models.Channel, error) {
	var channels []models.Channel
	if err := s.db.WithContext(ctx).
		Preload("Slots", slotsInOrder).
		Where("enabled = ?", true).
		Order("priority DESC, id ASC").
		Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("list enabled channels: %w", err)
	}
	return channels, nil
}

// Get returns one channel with its slots.
func (s *Service) Get(ctx context.Context, id string) (*models.Channel, error) {
	var ch models.Channel
	err := s.db.WithContext(ctx).
		Preload("Slots", slotsInOrder).
		First(&ch, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", id, err)
	}
	return &ch, nil
}

// Create persists a new channel. A missing id is derived from the name.
func (s *Service) Create(ctx context.Context, ch *models.Channel) error {
	if err := normalizeChannel(ch); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Channel{}).Where("id = ?", ch.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("channel %s: %w", ch.ID, ErrExists)
		}
		return tx.Create(ch).Error
	})
	if err != nil {
		if errors.Is(err, ErrExists) {
			return err
		}
		return fmt.Errorf("create channel %s: %w", ch.ID, err)
	}

	s.logger.Info().Str("channel", ch.ID).Int("slots", len(ch.Slots)).Msg("channel created")
	s.bus.Publish(events.EventChannelCreated, events.Payload{"channel_id": ch.ID})
	return nil
}

// Update replaces a channel and its whole slot plan.
func (s *Service) Update(ctx context.Context, ch *models.Channel) error {
	if ch.ID == "" {
		return fmt.Errorf("channel id is required")
	}
	if err := normalizeChannel(ch); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceChannel(tx, ch, false)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("update channel %s: %w", ch.ID, err)
	}

	s.logger.Info().Str("channel", ch.ID).Int("slots", len(ch.Slots)).Msg("channel updated")
	s.bus.Publish(events.EventChannelUpdated, events.Payload{"channel_id": ch.ID})
	return nil
}

// Delete removes a channel, its slots, and its airing history.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ch models.Channel
		if err := tx.First(&ch, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Where("channel_id = ?", id).Delete(&models.TimeSlot{}).Error; err != nil {
			return err
		}
		if err := tx.Where("channel_id = ?", id).Delete(&models.Airing{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Channel{ID: id}).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete channel %s: %w", id, err)
	}

	s.logger.Info().Str("channel", id).Msg("channel deleted")
	s.bus.Publish(events.EventChannelDeleted, events.Payload{"channel_id": id})
	return nil
}

// replaceChannel swaps a stored channel for ch inside tx. With create
// set, a missing row is created instead of failing.
func replaceChannel(tx *gorm.DB, ch *models.Channel, create bool) error {
	var existing models.Channel
	switch err := tx.First(&existing, "id = ?", ch.ID).Error; {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if !create {
			return ErrNotFound
		}
		return tx.Create(ch).Error
	case err != nil:
		return err
	}

	// Save writes every column, so carry over what must survive.
	ch.CreatedAt = existing.CreatedAt

	if err := tx.Where("channel_id = ?", ch.ID).Delete(&models.TimeSlot{}).Error; err != nil {
		return err
	}

	slots := ch.Slots
	ch.Slots = nil
	err := tx.Save(ch).Error
	ch.Slots = slots
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		return nil
	}
	return tx.Create(&slots).Error
}

// normalizeChannel fills derived fields and validates slot windows: a
// slug id from the name when missing, slot ids, sequential positions,
// and the parent id on every slot.
func normalizeChannel(ch *models.Channel) error {
	ch.Name = strings.TrimSpace(ch.Name)
	if ch.Name == "" {
		return fmt.Errorf("channel name is required")
	}
	if ch.ID == "" {
		ch.ID = slugify(ch.Name)
	}
	if ch.ID == "" {
		return fmt.Errorf("channel id cannot be derived from name %q", ch.Name)
	}

	for i := range ch.Slots {
		slot := &ch.Slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		slot.ChannelID = ch.ID
		slot.Position = i
		if err := validateClock(slot.Start); err != nil {
			return fmt.Errorf("slot %d start: %w", i, err)
		}
		if err := validateClock(slot.End); err != nil {
			return fmt.Errorf("slot %d end: %w", i, err)
		}
	}
	return nil
}

func validateClock(s string) error {
	if _, err := time.Parse("15:04", s); err != nil {
		return fmt.Errorf("invalid clock time %q, want HH:MM", s)
	}
	return nil
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Blueprint is the external lineup exchange format, also used for the
// startup seed file: {"channels":[...]} with filter dimensions flat on
// each slot object.
type Blueprint struct {
	Channels []BlueprintChannel `json:"channels"`
}

// BlueprintChannel is one channel in the blueprint.
type BlueprintChannel struct {
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name"`
	Icon     string          `json:"icon,omitempty"`
	Priority int             `json:"priority,omitempty"`
	Enabled  *bool           `json:"enabled,omitempty"` // nil means enabled
	Slots    []BlueprintSlot `json:"slots"`
}

// BlueprintSlot is one slot in the blueprint, filter fields inline.
type BlueprintSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Label string `json:"label,omitempty"`
	models.SlotFilter
}

// ImportResult contains the result of a blueprint import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportBlueprint syncs the stored lineup to the blueprint: listed
// channels are created or replaced, channels the blueprint no longer
// lists are removed. A bad channel is reported and skipped without
// aborting the rest.
func (s *Service) ImportBlueprint(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var bp Blueprint
	if err := json.NewDecoder(r).Decode(&bp); err != nil {
		return nil, fmt.Errorf("decode blueprint: %w", err)
	}

	result := &ImportResult{}
	listed := make(map[string]bool, len(bp.Channels))

	for i := range bp.Channels {
		ch := bp.Channels[i].ToChannel()
		if err := normalizeChannel(ch); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("channel %d (%s): %v", i, bp.Channels[i].Name, err))
			continue
		}
		if listed[ch.ID] {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("duplicate channel id %s", ch.ID))
			continue
		}
		// A listed channel is never pruned, even if applying it fails.
		listed[ch.ID] = true

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return replaceChannel(tx, ch, true)
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("channel %s: %v", ch.ID, err))
			continue
		}
		result.Imported++
	}

	var existing []models.Channel
	if err := s.db.WithContext(ctx).Find(&existing).Error; err != nil {
		return result, fmt.Errorf("list channels for prune: %w", err)
	}
	for i := range existing {
		if listed[existing[i].ID] {
			continue
		}
		if err := s.Delete(ctx, existing[i].ID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("remove channel %s: %v", existing[i].ID, err))
		}
	}

	s.logger.Info().
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("blueprint import completed")
	s.bus.Publish(events.EventLineupImported, events.Payload{"imported": result.Imported})

	return result, nil
}

// ExportBlueprint renders the current lineup in the blueprint format.
func (s *Service) ExportBlueprint(ctx context.Context) (*Blueprint, error) {
	channels, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	bp := &Blueprint{Channels: make([]BlueprintChannel, 0, len(channels))}
	for i := range channels {
		bp.Channels = append(bp.Channels, blueprintFromChannel(&channels[i]))
	}
	return bp, nil
}

// SeedFromFile loads a blueprint into an empty database. An existing
// lineup wins over the file, so admin edits survive restarts.
func (s *Service) SeedFromFile(ctx context.Context, path string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Channel{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count channels: %w", err)
	}
	if count > 0 {
		s.logger.Info().Int64("channels", count).Str("path", path).Msg("lineup already present, skipping blueprint seed")
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open blueprint %s: %w", path, err)
	}
	defer f.Close()

	result, err := s.ImportBlueprint(ctx, f)
	if err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		s.logger.Warn().Strs("errors", result.Errors).Msg("blueprint seed completed with errors")
	}
	s.logger.Info().Int("channels", result.Imported).Str("path", path).Msg("lineup seeded from blueprint")
	return nil
}

// ToChannel converts the blueprint form to the stored model. Slot ids
// and positions are filled in by the service on write.
func (bc *BlueprintChannel) ToChannel() *models.Channel {
	enabled := true
	if bc.Enabled != nil {
		enabled = *bc.Enabled
	}
	ch := &models.Channel{
		ID:       bc.ID,
		Name:     bc.Name,
		Icon:     bc.Icon,
		Priority: bc.Priority,
		Enabled:  enabled,
		Slots:    make([]models.TimeSlot, 0, len(bc.Slots)),
	}
	for _, slot := range bc.Slots {
		ch.Slots = append(ch.Slots, models.TimeSlot{
			Start:  slot.Start,
			End:    slot.End,
			Label:  slot.Label,
			Filter: slot.SlotFilter,
		})
	}
	return ch
}

func blueprintFromChannel(ch *models.Channel) BlueprintChannel {
	enabled := ch.Enabled
	bc := BlueprintChannel{
		ID:       ch.ID,
		Name:     ch.Name,
		Icon:     ch.Icon,
		Priority: ch.Priority,
		Enabled:  &enabled,
		Slots:    make([]BlueprintSlot, 0, len(ch.Slots)),
	}
	for _, slot := range ch.Slots {
		bc.Slots = append(bc.Slots, BlueprintSlot{
			Start:      slot.Start,
			End:        slot.End,
			Label:      slot.Label,
			SlotFilter: slot.Filter,
		})
	}
	return bc
}
