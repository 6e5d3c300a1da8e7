/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package refresher keeps the guide warm. A ticker loop pre-generates the
// horizon days for every enabled channel, and the same service is the read
// path the API goes through: Redis first, then the engine.
package refresher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zapperlabs/zapper/internal/cache"
	"github.com/zapperlabs/zapper/internal/channels"
	"github.com/zapperlabs/zapper/internal/events"
	"github.com/zapperlabs/zapper/internal/guide"
	"github.com/zapperlabs/zapper/internal/models"
	"github.com/zapperlabs/zapper/internal/telemetry"
)

// Archiver persists generated schedules for replay. Satisfied by
// *archive.Service.
type Archiver interface {
	Store(ctx context.Context, sched *guide.DaySchedule) error
}

// Service orchestrates periodic guide generation.
type Service struct {
	engine   *guide.Engine
	channels *channels.Service
	bus      events.Broker
	cache    *cache.Cache
	archive  Archiver
	logger   zerolog.Logger
	interval time.Duration
	horizon  int

	warnMu     sync.Mutex
	warnedKeys map[string]struct{}

	mu        sync.Mutex
	lastPrune time.Time
}

// New constructs the refresher service.
func New(engine *guide.Engine, channelSvc *channels.Service, bus events.Broker, interval time.Duration, horizonDays int, logger zerolog.Logger) *Service {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if horizonDays < 1 {
		horizonDays = 1
	}
	return &Service{
		engine:     engine,
		channels:   channelSvc,
		bus:        bus,
		interval:   interval,
		horizon:    horizonDays,
		logger:     logger.With().Str("component", "refresher").Logger(),
		warnedKeys: make(map[string]struct{}),
	}
}

// SetCache sets the Redis cache the service writes generated days through to.
func (s *Service) SetCache(c *cache.Cache) {
	s.cache = c
}

// Location returns the guide timezone.
func (s *Service) Location() *time.Location {
	return s.engine.Location()
}

// SetArchive sets the archive sink for freshly generated days.
func (s *Service) SetArchive(a Archiver) {
	s.archive = a
}

// Run executes the refresh loop until the context is cancelled. The first
// pass happens immediately so a cold start serves a warm guide.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Int("horizon_days", s.horizon).Msg("refresher loop started")
	s.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("refresher loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// Refresh triggers an immediate pass, outside the ticker. Used after a
// catalog reload so the caches are rebuilt before the next tick.
func (s *Service) Refresh(ctx context.Context) {
	s.refresh(ctx)
}

func (s *Service) refresh(ctx context.Context) {
	telemetry.RefreshTicksTotal.Inc()

	lineup, err := s.lineup(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("refresher failed to load lineup")
		telemetry.RefreshErrorsTotal.WithLabelValues("load_channels").Inc()
		return
	}
	if len(lineup) == 0 {
		s.warnOnce("no_enabled_channels", func(e *zerolog.Event) {
			e.Msg("no enabled channels, nothing to generate")
		})
		return
	}

	now := time.Now().In(s.engine.Location())
	passStart := time.Now().UTC()
	programs := 0
	for d := 0; d < s.horizon; d++ {
		day := now.AddDate(0, 0, d)
		for _, sched := range s.engine.Day(ctx, lineup, day) {
			programs += len(sched.Programs)
			s.storeSchedule(ctx, sched)
			// Days the engine served from its cache keep their original
			// GeneratedAt and were archived when first built.
			if s.archive != nil && !sched.GeneratedAt.Before(passStart) {
				if err := s.archive.Store(ctx, sched); err != nil {
					telemetry.RefreshErrorsTotal.WithLabelValues("archive").Inc()
				}
			}
		}
	}

	s.logger.Info().
		Int("channels", len(lineup)).
		Int("days", s.horizon).
		Int("programs", programs).
		Msg("guide refreshed")

	s.bus.Publish(events.EventGuideGenerated, events.Payload{
		"date":     now.Format("2006-01-02"),
		"days":     s.horizon,
		"channels": len(lineup),
	})

	s.maybePrune()
}

// DaySchedule returns one channel's schedule for the calendar day containing
// at: from Redis when warm, otherwise generated against the full enabled
// lineup and written back through.
func (s *Service) DaySchedule(ctx context.Context, channelID string, at time.Time) (*guide.DaySchedule, error) {
	date := at.In(s.engine.Location()).Format("2006-01-02")

	if s.cache != nil {
		if sched, ok := s.cache.GetDaySchedule(ctx, channelID, date); ok {
			return sched, nil
		}
	}

	lineup, err := s.lineup(ctx)
	if err != nil {
		return nil, err
	}
	known := false
	for i := range lineup {
		if lineup[i].ID == channelID {
			known = true
			break
		}
	}
	if !known {
		return nil, channels.ErrNotFound
	}

	sched := s.engine.ChannelDay(ctx, lineup, channelID, at)
	if sched == nil {
		return nil, fmt.Errorf("channel %s produced no schedule for %s", channelID, date)
	}
	s.storeSchedule(ctx, sched)
	return sched, nil
}

// NowPlaying returns the program on air for one channel at the given
// instant. A program that started before midnight lives in the previous
// day's schedule, so that day is checked when today has no hit. A nil
// program with a nil error means the channel is off air.
func (s *Service) NowPlaying(ctx context.Context, channelID string, at time.Time) (*guide.Program, error) {
	sched, err := s.DaySchedule(ctx, channelID, at)
	if err != nil {
		return nil, err
	}
	if prog := guide.NowPlaying(sched, at); prog != nil {
		return prog, nil
	}

	prev, err := s.DaySchedule(ctx, channelID, at.AddDate(0, 0, -1))
	if err != nil {
		s.logger.Debug().Err(err).Str("channel", channelID).Msg("previous day lookup failed")
		return nil, nil
	}
	return guide.NowPlaying(prev, at), nil
}

// Lineup returns the enabled channels, slots included, priority descending.
func (s *Service) Lineup(ctx context.Context) ([]models.Channel, error) {
	return s.lineup(ctx)
}

func (s *Service) lineup(ctx context.Context) ([]models.Channel, error) {
	return s.channels.ListEnabled(ctx)
}

func (s *Service) storeSchedule(ctx context.Context, sched *guide.DaySchedule) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetDaySchedule(ctx, sched); err != nil {
		s.logger.Debug().Err(err).Str("channel", sched.ChannelID).Str("date", sched.Date).Msg("failed to cache schedule")
	}
}

// maybePrune drops engine-cached days older than a week. Runs at most once
// per hour.
func (s *Service) maybePrune() {
	s.mu.Lock()
	if time.Since(s.lastPrune) < time.Hour {
		s.mu.Unlock()
		return
	}
	s.lastPrune = time.Now()
	s.mu.Unlock()

	cutoff := time.Now().In(s.engine.Location()).AddDate(0, 0, -7)
	if removed := s.engine.Prune(cutoff); removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("pruned stale guide days")
	}
}

func (s *Service) warnOnce(key string, logFn func(e *zerolog.Event)) {
	s.warnMu.Lock()
	if s.warnedKeys == nil {
		s.warnedKeys = make(map[string]struct{})
	}
	if _, ok := s.warnedKeys[key]; ok {
		s.warnMu.Unlock()
		return
	}
	s.warnedKeys[key] = struct{}{}
	s.warnMu.Unlock()

	logFn(s.logger.Warn())
}
