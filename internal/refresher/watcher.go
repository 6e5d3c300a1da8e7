/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package refresher

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/zapperlabs/zapper/internal/events"
)

// NowPlayingWatcher publishes a bus event whenever a channel's
// now-playing program changes. Websocket clients subscribe to the bus
// rather than each polling the engine.
type NowPlayingWatcher struct {
	svc      *Service
	bus      events.Broker
	interval time.Duration
	logger   zerolog.Logger
	last     map[string]string
}

// NewNowPlayingWatcher creates a watcher polling at interval.
func NewNowPlayingWatcher(svc *Service, bus events.Broker, interval time.Duration, logger zerolog.Logger) *NowPlayingWatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &NowPlayingWatcher{
		svc:      svc,
		bus:      bus,
		interval: interval,
		logger:   logger.With().Str("component", "nowplaying_watcher").Logger(),
		last:     make(map[string]string),
	}
}

// Run sweeps until the context is cancelled.
func (w *NowPlayingWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *NowPlayingWatcher) sweep(ctx context.Context) {
	lineup, err := w.svc.Lineup(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("lineup load failed")
		return
	}

	now := time.Now().In(w.svc.Location())
	current := make(map[string]string, len(lineup))

	for i := range lineup {
		ch := &lineup[i]

		prog, err := w.svc.NowPlaying(ctx, ch.ID, now)
		if err != nil {
			w.logger.Error().Err(err).Str("channel_id", ch.ID).Msg("now playing lookup failed")
			// A failed lookup is not a transition.
			current[ch.ID] = w.last[ch.ID]
			continue
		}

		key := ""
		if prog != nil {
			key = prog.ID
		}
		current[ch.ID] = key
		if key == w.last[ch.ID] {
			continue
		}

		payload := events.Payload{
			"channel_id":   ch.ID,
			"channel_name": ch.Name,
			"icon":         ch.Icon,
			"timestamp":    now.Format(time.RFC3339),
		}
		if prog != nil {
			payload["program"] = prog
		}
		w.bus.Publish(events.EventNowPlaying, payload)

		w.logger.Debug().
			Str("channel_id", ch.ID).
			Str("program_id", key).
			Msg("now playing transition")
	}

	w.last = current
}
