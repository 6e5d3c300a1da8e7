/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/zapperlabs/zapper/internal/events"
	"github.com/zapperlabs/zapper/internal/telemetry"
)

type wsMessage struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// handleNowPlayingWS streams now-playing transitions to the client.
// An optional channel query parameter narrows the stream to one
// channel.
func (a *API) handleNowPlayingWS(w http.ResponseWriter, r *http.Request) {
	channelFilter := r.URL.Query().Get("channel")

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	a.logger.Debug().Str("channel", channelFilter).Msg("now playing websocket connected")

	ctx := r.Context()

	sub := a.bus.Subscribe(events.EventNowPlaying)
	defer a.bus.Unsubscribe(events.EventNowPlaying, sub)

	if err := a.sendNowPlayingSnapshot(ctx, conn, channelFilter); err != nil {
		a.logger.Debug().Err(err).Msg("initial snapshot send failed")
		conn.Close(ws.StatusInternalError, "send failed")
		return
	}

	// Read loop only to notice the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(15 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return

		case <-done:
			conn.Close(ws.StatusNormalClosure, "client disconnected")
			return

		case <-pingTicker.C:
			if err := a.sendWS(ctx, conn, wsMessage{Type: "ping", Timestamp: time.Now()}); err != nil {
				a.logger.Debug().Err(err).Msg("ping failed")
				conn.Close(ws.StatusInternalError, "ping failed")
				return
			}

		case payload, ok := <-sub:
			if !ok {
				conn.Close(ws.StatusNormalClosure, "bus closed")
				return
			}
			if channelFilter != "" {
				if id, _ := payload["channel_id"].(string); id != channelFilter {
					continue
				}
			}
			data, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			msg := wsMessage{Type: "now_playing", Timestamp: time.Now(), Data: data}
			if err := a.sendWS(ctx, conn, msg); err != nil {
				a.logger.Debug().Err(err).Msg("send update failed")
				conn.Close(ws.StatusInternalError, "send failed")
				return
			}
		}
	}
}

// sendNowPlayingSnapshot pushes the current state so the client does
// not wait for the first transition.
func (a *API) sendNowPlayingSnapshot(ctx context.Context, conn *ws.Conn, channelFilter string) error {
	now := time.Now().In(a.guideSvc.Location())

	lineup, err := a.guideSvc.Lineup(ctx)
	if err != nil {
		return err
	}

	list := make([]nowPlayingEntry, 0, len(lineup))
	for i := range lineup {
		ch := &lineup[i]
		if channelFilter != "" && ch.ID != channelFilter {
			continue
		}
		prog, err := a.guideSvc.NowPlaying(ctx, ch.ID, now)
		if err != nil || prog == nil {
			continue
		}
		list = append(list, nowPlayingEntry{Channel: summarize(ch), Program: *prog})
	}

	data, err := json.Marshal(map[string]any{
		"current_time": now.Format(time.RFC3339),
		"now_playing":  list,
	})
	if err != nil {
		return err
	}

	return a.sendWS(ctx, conn, wsMessage{Type: "snapshot", Timestamp: time.Now(), Data: data})
}

func (a *API) sendWS(ctx context.Context, conn *ws.Conn, msg wsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, data)
}
