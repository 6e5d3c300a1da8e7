/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package archive persists generated channel days as JSON documents so
// past guides stay replayable after the in-memory cache drops them.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zapperlabs/zapper/internal/config"
	"github.com/zapperlabs/zapper/internal/guide"
	"github.com/zapperlabs/zapper/internal/storage"
)

// Service writes day schedules to an object store, one document per
// channel per date.
type Service struct {
	store  storage.ObjectStore
	logger zerolog.Logger
}

// New creates the archive service for the configured backend. A "none"
// backend returns (nil, nil); callers skip archiving when the service
// is nil.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	var store storage.ObjectStore

	switch cfg.Archive {
	case "", config.ArchiveNone:
		return nil, nil
	case config.ArchiveFS:
		store = storage.NewFSStore(cfg.ArchiveDir, logger)
	case config.ArchiveS3:
		s3store, err := storage.NewS3Store(ctx, storage.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PathStyle: cfg.S3PathStyle,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 archive: %w", err)
		}
		store = s3store
	default:
		return nil, fmt.Errorf("unsupported archive backend %q", cfg.Archive)
	}

	svc := NewWithStore(store, logger)
	if err := store.CheckAccess(ctx); err != nil {
		return nil, fmt.Errorf("archive backend not accessible: %w", err)
	}

	return svc, nil
}

// NewWithStore builds the service over an explicit store.
func NewWithStore(store storage.ObjectStore, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "archive").Logger(),
	}
}

// Key returns the object key for one channel day.
func Key(date, channelID string) string {
	return fmt.Sprintf("guides/%s/%s.json", date, channelID)
}

// Store writes one generated day. Errors are logged here and returned;
// the refresher treats them as non-fatal.
func (s *Service) Store(ctx context.Context, sched *guide.DaySchedule) error {
	data, err := json.MarshalIndent(sched, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}

	key := Key(sched.Date, sched.ChannelID)
	if err := s.store.Put(ctx, key, data, "application/json"); err != nil {
		s.logger.Warn().
			Err(err).
			Str("channel_id", sched.ChannelID).
			Str("date", sched.Date).
			Msg("Failed to archive schedule")
		return err
	}

	s.logger.Debug().
		Str("channel_id", sched.ChannelID).
		Str("date", sched.Date).
		Int("programs", len(sched.Programs)).
		Msg("Schedule archived")

	return nil
}

// Load reads an archived day back.
func (s *Service) Load(ctx context.Context, channelID, date string) (*guide.DaySchedule, error) {
	data, err := s.store.Get(ctx, Key(date, channelID))
	if err != nil {
		return nil, err
	}

	var sched guide.DaySchedule
	if err := json.Unmarshal(data, &sched); err != nil {
		return nil, fmt.Errorf("failed to decode archived schedule: %w", err)
	}

	return &sched, nil
}

// Dates lists the dates that have at least one archived channel day,
// in lexical (chronological) order.
func (s *Service) Dates(ctx context.Context) ([]string, error) {
	keys, err := s.store.List(ctx, "guides/")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var dates []string
	for _, key := range keys {
		// guides/<date>/<channel>.json
		parts := strings.Split(key, "/")
		if len(parts) != 3 {
			continue
		}
		if _, ok := seen[parts[1]]; !ok {
			seen[parts[1]] = struct{}{}
			dates = append(dates, parts[1])
		}
	}
	sort.Strings(dates)

	return dates, nil
}
