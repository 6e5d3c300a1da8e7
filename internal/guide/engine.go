/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package guide

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zapperlabs/zapper/internal/catalog"
	"github.com/zapperlabs/zapper/internal/models"
	"github.com/zapperlabs/zapper/internal/telemetry"
)

// State tracks one channel-day through generation.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateCached  State = "cached"
	StateFailed  State = "failed"
)

type cacheKey struct {
	channelID string
	date      string
}

type cacheEntry struct {
	state       State
	schedule    *DaySchedule
	poolVersion int64
	err         error
}

// Engine builds deterministic daily schedules. Generation is synchronous
// and serialized; results are cached per channel-day and tied to the pool
// version they were built from.
type Engine struct {
	pool         *catalog.Pool
	cooldown     CooldownLedger
	policy       DurationPolicy
	cooldownDays int
	loc          *time.Location
	logger       zerolog.Logger

	runMu sync.Mutex // one run at a time; the hour ledger is per run

	mu    sync.Mutex // guards cache
	cache map[cacheKey]*cacheEntry
}

// NewEngine creates a guide engine. A nil location falls back to UTC and a
// non-positive cooldown to the 7 day default.
func NewEngine(pool *catalog.Pool, cooldown CooldownLedger, policy DurationPolicy, cooldownDays int, loc *time.Location, logger zerolog.Logger) *Engine {
	if cooldownDays <= 0 {
		cooldownDays = 7
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		pool:         pool,
		cooldown:     cooldown,
		policy:       policy,
		cooldownDays: cooldownDays,
		loc:          loc,
		logger:       logger.With().Str("component", "guide").Logger(),
		cache:        make(map[cacheKey]*cacheEntry),
	}
}

// Location returns the timezone slot windows resolve in.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Day returns the schedules for every given channel on the calendar day
// containing at, generating whatever is not already cached. Channels are
// processed by descending priority, ties keeping the given order; a broken
// channel yields its partial result and never aborts the rest.
func (e *Engine) Day(ctx context.Context, channels []models.Channel, at time.Time) []*DaySchedule {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "guide", "Day")
	defer span.End()

	anchor := e.dayAnchor(at)
	isoDate := anchor.Format("2006-01-02")
	items, poolVersion := e.pool.Snapshot()

	telemetry.AddSpanAttributes(span, map[string]any{
		"guide.date":      isoDate,
		"guide.channels":  len(channels),
		"guide.pool_size": len(items),
	})

	ordered := make([]models.Channel, len(channels))
	copy(ordered, channels)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	hours := NewHourLedger()
	schedules := make([]*DaySchedule, len(ordered))

	// Cached days claim their hours first, so a selectively invalidated
	// channel never double-books an hour another channel already holds.
	for i := range ordered {
		key := cacheKey{channelID: ordered[i].ID, date: isoDate}
		if cached := e.cachedSchedule(key, poolVersion); cached != nil {
			hours.SeedSchedule(cached)
			schedules[i] = cached
		}
	}

	for i := range ordered {
		if schedules[i] != nil {
			continue
		}
		ch := &ordered[i]
		key := cacheKey{channelID: ch.ID, date: isoDate}

		e.setState(key, StateRunning, nil, poolVersion, nil)
		sched, err := e.generateChannel(ctx, ch, anchor, isoDate, items, poolVersion, hours)
		if err != nil {
			e.logger.Warn().Err(err).Str("channel", ch.ID).Str("date", isoDate).Msg("channel generation failed")
			telemetry.GuideErrorsTotal.WithLabelValues(ch.ID, "generate").Inc()
			e.setState(key, StateFailed, sched, poolVersion, err)
			schedules[i] = sched
			continue
		}
		e.setState(key, StateCached, sched, poolVersion, nil)
		schedules[i] = sched
	}

	results := make([]*DaySchedule, 0, len(ordered))
	for _, s := range schedules {
		if s != nil {
			results = append(results, s)
		}
	}
	return results
}

// ChannelDay runs Day over the full lineup and returns the one requested
// channel, so hour exclusivity is still decided against every channel.
func (e *Engine) ChannelDay(ctx context.Context, channels []models.Channel, channelID string, at time.Time) *DaySchedule {
	for _, s := range e.Day(ctx, channels, at) {
		if s.ChannelID == channelID {
			return s
		}
	}
	return nil
}

// State reports where a channel-day currently is.
func (e *Engine) State(channelID string, at time.Time) State {
	key := cacheKey{channelID: channelID, date: e.dayAnchor(at).Format("2006-01-02")}
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.cache[key]; ok {
		return entry.state
	}
	return StateIdle
}

// Invalidate drops every cached day for one channel, after a config edit.
func (e *Engine) Invalidate(channelID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.cache {
		if key.channelID == channelID {
			delete(e.cache, key)
		}
	}
	e.logger.Debug().Str("channel", channelID).Msg("channel cache invalidated")
}

// InvalidateAll drops every cached day, after a catalog reload. Entries
// built from an older pool version would age out on access anyway; this
// reclaims them eagerly.
func (e *Engine) InvalidateAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[cacheKey]*cacheEntry)
	e.logger.Debug().Msg("guide cache invalidated")
}

// Prune drops cached days strictly before the cutoff's calendar day and
// returns how many were removed.
func (e *Engine) Prune(cutoff time.Time) int {
	iso := e.dayAnchor(cutoff).Format("2006-01-02")
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for key := range e.cache {
		if key.date < iso {
			delete(e.cache, key)
			removed++
		}
	}
	return removed
}

func (e *Engine) cachedSchedule(key cacheKey, poolVersion int64) *DaySchedule {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.cache[key]
	if !ok || entry.state != StateCached || entry.poolVersion != poolVersion {
		return nil
	}
	return entry.schedule
}

func (e *Engine) setState(key cacheKey, state State, sched *DaySchedule, poolVersion int64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache[key] = &cacheEntry{state: state, schedule: sched, poolVersion: poolVersion, err: err}
}

func (e *Engine) dayAnchor(at time.Time) time.Time {
	t := at.In(e.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc)
}

// generateChannel builds one channel-day: per slot, resolve the absolute
// window, filter, order, pack. The named return keeps whatever was built
// when a slot panics, so the partial result is still recorded.
func (e *Engine) generateChannel(ctx context.Context, ch *models.Channel, anchor time.Time, isoDate string, items []catalog.Item, poolVersion int64, hours *HourLedger) (sched *DaySchedule, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s: %v", ch.ID, r)
		}
	}()

	buildStart := time.Now()
	_, span := telemetry.StartSpan(ctx, "guide", "generateChannel")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{
		"guide.channel": ch.ID,
		"guide.date":    isoDate,
	})

	day := DateOf(anchor, e.loc)

	// The previous pass over this day must not cooldown-block its own
	// regeneration.
	e.cooldown.ClearDay(ch.ID, day)

	slots := make([]models.TimeSlot, len(ch.Slots))
	copy(slots, ch.Slots)
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Position < slots[j].Position })

	sched = &DaySchedule{
		ChannelID:   ch.ID,
		ChannelName: ch.Name,
		Date:        isoDate,
		Programs:    make([]Program, 0, 16),
		GeneratedAt: time.Now().UTC(),
		PoolVersion: poolVersion,
	}

	var lastEnd time.Time
	for idx := range slots {
		slot := &slots[idx]

		winStart, winEnd, werr := resolveWindow(anchor, slot, e.loc)
		if werr != nil {
			e.logger.Warn().Err(werr).Str("channel", ch.ID).Str("slot", slot.Label).Msg("slot window invalid, skipping")
			continue
		}

		effective := winStart
		if lastEnd.After(effective) {
			effective = lastEnd
		}
		if !effective.Before(winEnd) {
			e.logger.Debug().Str("channel", ch.ID).Str("slot", slot.Label).Msg("slot window already consumed by overrun")
			continue
		}

		preds := compileFilter(slot.Filter)
		preds = append(preds, watchable{}, outsideCooldown{
			ledger:    e.cooldown,
			channelID: ch.ID,
			day:       day,
			window:    e.cooldownDays,
		})

		eligible := filterItems(items, preds)
		if len(eligible) == 0 {
			e.logger.Warn().Str("channel", ch.ID).Str("slot", slot.Label).Str("date", isoDate).Msg("no eligible items for slot, leaving gap")
			telemetry.GuideGapsTotal.WithLabelValues(ch.ID).Inc()
			continue
		}

		programs := fillSlot(fillRequest{
			channelID: ch.ID,
			label:     slot.Label,
			items:     Order(eligible, Seed(ch.ID, isoDate, idx)),
			start:     effective,
			end:       winEnd,
			day:       day,
			policy:    e.policy,
			cooldown:  e.cooldown,
			hours:     hours,
		})
		if len(programs) == 0 {
			e.logger.Warn().Str("channel", ch.ID).Str("slot", slot.Label).Str("date", isoDate).Msg("nothing fit the slot, leaving gap")
			telemetry.GuideGapsTotal.WithLabelValues(ch.ID).Inc()
			continue
		}

		sched.Programs = append(sched.Programs, programs...)
		lastEnd = programs[len(programs)-1].End
	}

	sort.SliceStable(sched.Programs, func(i, j int) bool {
		return sched.Programs[i].Start.Before(sched.Programs[j].Start)
	})

	telemetry.GuideBuildDuration.WithLabelValues(ch.ID).Observe(time.Since(buildStart).Seconds())
	telemetry.GuideProgramsTotal.WithLabelValues(ch.ID).Add(float64(len(sched.Programs)))
	e.logger.Info().
		Str("channel", ch.ID).
		Str("date", isoDate).
		Int("programs", len(sched.Programs)).
		Msg("channel day generated")

	return sched, nil
}

// resolveWindow turns a slot's wall-clock times into absolute bounds on
// the anchor day. An end at or before the start rolls into the next day.
func resolveWindow(anchor time.Time, slot *models.TimeSlot, loc *time.Location) (time.Time, time.Time, error) {
	sh, sm, err := parseHM(slot.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("slot start %q: %w", slot.Start, err)
	}
	eh, em, err := parseHM(slot.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("slot end %q: %w", slot.End, err)
	}

	start := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), sh, sm, 0, 0, loc)
	end := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), eh, em, 0, 0, loc)
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

func parseHM(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
