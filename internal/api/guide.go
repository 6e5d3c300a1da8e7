/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zapperlabs/zapper/internal/cache"
	"github.com/zapperlabs/zapper/internal/catalog"
	"github.com/zapperlabs/zapper/internal/channels"
	"github.com/zapperlabs/zapper/internal/guide"
	"github.com/zapperlabs/zapper/internal/models"
	"github.com/zapperlabs/zapper/internal/providers"
)

const (
	defaultGuideHours = 4
	maxGuideWindow    = 24 * time.Hour
)

type channelSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
	Priority int    `json:"priority"`
	Enabled  bool   `json:"enabled"`
}

type guideEntry struct {
	Channel    channelSummary  `json:"channel"`
	Programs   []guide.Program `json:"programs"`
	NowPlaying *guide.Program  `json:"now_playing"`
}

type nowPlayingEntry struct {
	Channel channelSummary `json:"channel"`
	Program guide.Program  `json:"program"`
}

type providerLink struct {
	ProviderName string `json:"provider_name"`
	LogoPath     string `json:"logo_path,omitempty"`
	DeepLink     string `json:"deep_link,omitempty"`
}

func summarize(ch *models.Channel) channelSummary {
	return channelSummary{
		ID:       ch.ID,
		Name:     ch.Name,
		Icon:     ch.Icon,
		Priority: ch.Priority,
		Enabled:  ch.Enabled,
	}
}

// handleChannels returns the enabled lineup, priority first. Served
// from the Redis channel list when warm.
func (a *API) handleChannels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if a.cache != nil {
		if cached, ok := a.cache.GetChannelList(ctx); ok {
			writeJSON(w, http.StatusOK, map[string]any{
				"channels": cached,
				"count":    len(cached),
			})
			return
		}
	}

	lineup, err := a.guideSvc.Lineup(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("list channels failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	list := make([]cache.CachedChannel, 0, len(lineup))
	for i := range lineup {
		ch := &lineup[i]
		list = append(list, cache.CachedChannel{
			ID:       ch.ID,
			Name:     ch.Name,
			Icon:     ch.Icon,
			Priority: ch.Priority,
			Enabled:  ch.Enabled,
		})
	}
	if a.cache != nil {
		_ = a.cache.SetChannelList(ctx, list)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channels": list,
		"count":    len(list),
	})
}

// handleGuide returns the grid window for all enabled channels.
func (a *API) handleGuide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	loc := a.guideSvc.Location()
	now := time.Now().In(loc)

	start := now
	if s := r.URL.Query().Get("start"); s != "" {
		t, err := parseQueryTime(s, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start")
			return
		}
		start = t
	}

	hours := defaultGuideHours
	if h := r.URL.Query().Get("hours"); h != "" {
		n, err := strconv.Atoi(h)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_hours")
			return
		}
		hours = n
	}

	end := start.Add(time.Duration(hours) * time.Hour)
	if e := r.URL.Query().Get("end"); e != "" {
		t, err := parseQueryTime(e, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end")
			return
		}
		end = t
	}

	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "invalid_range")
		return
	}
	if end.Sub(start) > maxGuideWindow {
		end = start.Add(maxGuideWindow)
	}

	lineup, err := a.guideSvc.Lineup(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("list channels failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	entries := make([]guideEntry, 0, len(lineup))
	for i := range lineup {
		ch := &lineup[i]
		programs, err := a.channelPrograms(ctx, ch.ID, start, end)
		if err != nil {
			a.logger.Error().Err(err).Str("channel_id", ch.ID).Msg("guide generation failed")
		}
		entries = append(entries, guideEntry{
			Channel:    summarize(ch),
			Programs:   programsInRange(programs, start, end),
			NowPlaying: nowPlayingIn(programs, now),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"start_time":   start.Format(time.RFC3339),
		"end_time":     end.Format(time.RFC3339),
		"current_time": now.Format(time.RFC3339),
		"guide":        entries,
	})
}

// channelPrograms returns the channel's full schedule covering the
// window, merging the next day when the window crosses midnight.
func (a *API) channelPrograms(ctx context.Context, channelID string, start, end time.Time) ([]guide.Program, error) {
	sched, err := a.guideSvc.DaySchedule(ctx, channelID, start)
	if err != nil {
		return nil, err
	}
	programs := sched.Programs

	loc := a.guideSvc.Location()
	if end.In(loc).Format("2006-01-02") > start.In(loc).Format("2006-01-02") {
		next, err := a.guideSvc.DaySchedule(ctx, channelID, start.AddDate(0, 0, 1))
		if err != nil {
			a.logger.Debug().Err(err).Str("channel_id", channelID).Msg("next day generation failed")
		} else {
			programs = append(programs, next.Programs...)
		}
	}

	return programs, nil
}

// programsInRange keeps programs overlapping [start, end).
func programsInRange(programs []guide.Program, start, end time.Time) []guide.Program {
	out := make([]guide.Program, 0, len(programs))
	for _, p := range programs {
		if p.End.After(start) && p.Start.Before(end) {
			out = append(out, p)
		}
	}
	return out
}

// nowPlayingIn returns the program whose [start, end) contains at.
func nowPlayingIn(programs []guide.Program, at time.Time) *guide.Program {
	for i := range programs {
		p := &programs[i]
		if !at.Before(p.Start) && at.Before(p.End) {
			out := *p
			return &out
		}
	}
	return nil
}

// handleNowPlaying returns what is on right now across the lineup.
// Off-air channels are omitted.
func (a *API) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().In(a.guideSvc.Location())

	lineup, err := a.guideSvc.Lineup(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("list channels failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	list := make([]nowPlayingEntry, 0, len(lineup))
	for i := range lineup {
		ch := &lineup[i]
		prog, err := a.guideSvc.NowPlaying(ctx, ch.ID, now)
		if err != nil {
			a.logger.Error().Err(err).Str("channel_id", ch.ID).Msg("now playing lookup failed")
			continue
		}
		if prog == nil {
			continue
		}
		list = append(list, nowPlayingEntry{Channel: summarize(ch), Program: *prog})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"current_time": now.Format(time.RFC3339),
		"now_playing":  list,
	})
}

// handleChannelSchedule returns one channel's full generated day.
func (a *API) handleChannelSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channelID := chi.URLParam(r, "channelID")
	loc := a.guideSvc.Location()

	at := time.Now().In(loc)
	if d := r.URL.Query().Get("date"); d != "" {
		t, err := time.ParseInLocation("2006-01-02", d, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date")
			return
		}
		at = t
	}

	ch, err := a.channels.Get(ctx, channelID)
	if err != nil {
		if errors.Is(err, channels.ErrNotFound) {
			writeError(w, http.StatusNotFound, "channel_not_found")
			return
		}
		a.logger.Error().Err(err).Str("channel_id", channelID).Msg("channel lookup failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	sched, err := a.guideSvc.DaySchedule(ctx, channelID, at)
	if err != nil {
		if errors.Is(err, channels.ErrNotFound) {
			writeError(w, http.StatusNotFound, "channel_not_found")
			return
		}
		a.logger.Error().Err(err).Str("channel_id", channelID).Msg("schedule generation failed")
		writeError(w, http.StatusInternalServerError, "generation_failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channel":     summarize(ch),
		"date":        sched.Date,
		"programs":    sched.Programs,
		"now_playing": guide.NowPlaying(sched, time.Now().In(loc)),
	})
}

// handleProgramProviders returns where a catalog item can be watched,
// with deep links resolved from the provider table.
func (a *API) handleProgramProviders(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.Atoi(chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_item_id")
		return
	}

	item, ok := a.pool.Find(itemID)
	if !ok {
		writeError(w, http.StatusNotFound, "item_not_found")
		return
	}

	links := make([]providerLink, 0, len(item.Providers))
	for _, p := range item.Providers {
		links = append(links, providerLink{
			ProviderName: p.Name,
			LogoPath:     p.Logo,
			DeepLink:     providers.DeepLink(p.Name, item.Title),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"item_id":   item.ID,
		"kind":      item.Kind,
		"title":     item.Title,
		"providers": links,
	})
}

func (a *API) handleGenres(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalog.Genres())
}

// parseQueryTime accepts RFC3339 or a bare date in the guide timezone.
func parseQueryTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	return time.ParseInLocation("2006-01-02", s, loc)
}
