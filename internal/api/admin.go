/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zapperlabs/zapper/internal/audit"
	"github.com/zapperlabs/zapper/internal/auth"
	"github.com/zapperlabs/zapper/internal/channels"
	"github.com/zapperlabs/zapper/internal/events"
	"github.com/zapperlabs/zapper/internal/logbuffer"
	"github.com/zapperlabs/zapper/internal/models"
	"github.com/zapperlabs/zapper/internal/version"
)

func (a *API) handleAdminChannelsList(w http.ResponseWriter, r *http.Request) {
	chs, err := a.channels.List(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list channels failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, chs)
}

func (a *API) handleAdminChannelCreate(w http.ResponseWriter, r *http.Request) {
	var req channels.BlueprintChannel
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	ch := req.ToChannel()
	if err := a.channels.Create(r.Context(), ch); err != nil {
		if errors.Is(err, channels.ErrExists) {
			writeError(w, http.StatusConflict, "channel_exists")
			return
		}
		a.logger.Warn().Err(err).Str("name", req.Name).Msg("channel create rejected")
		writeError(w, http.StatusBadRequest, "invalid_channel")
		return
	}

	payload := a.auditContext(r)
	payload["resource_type"] = "channel"
	payload["resource_id"] = ch.ID
	payload["name"] = ch.Name
	a.bus.Publish(events.EventAuditChannelCreate, payload)

	writeJSON(w, http.StatusCreated, ch)
}

func (a *API) handleAdminChannelGet(w http.ResponseWriter, r *http.Request) {
	ch, err := a.channels.Get(r.Context(), chi.URLParam(r, "channelID"))
	if err != nil {
		if errors.Is(err, channels.ErrNotFound) {
			writeError(w, http.StatusNotFound, "channel_not_found")
			return
		}
		a.logger.Error().Err(err).Msg("channel lookup failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (a *API) handleAdminChannelUpdate(w http.ResponseWriter, r *http.Request) {
	var req channels.BlueprintChannel
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	ch := req.ToChannel()
	// The URL names the channel; the body cannot move it.
	ch.ID = chi.URLParam(r, "channelID")

	if err := a.channels.Update(r.Context(), ch); err != nil {
		if errors.Is(err, channels.ErrNotFound) {
			writeError(w, http.StatusNotFound, "channel_not_found")
			return
		}
		a.logger.Warn().Err(err).Str("channel_id", ch.ID).Msg("channel update rejected")
		writeError(w, http.StatusBadRequest, "invalid_channel")
		return
	}

	payload := a.auditContext(r)
	payload["resource_type"] = "channel"
	payload["resource_id"] = ch.ID
	a.bus.Publish(events.EventAuditChannelUpdate, payload)

	writeJSON(w, http.StatusOK, ch)
}

func (a *API) handleAdminChannelDelete(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	if err := a.channels.Delete(r.Context(), channelID); err != nil {
		if errors.Is(err, channels.ErrNotFound) {
			writeError(w, http.StatusNotFound, "channel_not_found")
			return
		}
		a.logger.Error().Err(err).Str("channel_id", channelID).Msg("channel delete failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	payload := a.auditContext(r)
	payload["resource_type"] = "channel"
	payload["resource_id"] = channelID
	a.bus.Publish(events.EventAuditChannelDelete, payload)

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (a *API) handleAdminBlueprint(w http.ResponseWriter, r *http.Request) {
	bp, err := a.channels.ExportBlueprint(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("blueprint export failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, bp)
}

// handleAdminImport replaces the lineup with the posted blueprint.
func (a *API) handleAdminImport(w http.ResponseWriter, r *http.Request) {
	result, err := a.channels.ImportBlueprint(r.Context(), r.Body)
	if err != nil {
		a.logger.Warn().Err(err).Msg("blueprint import rejected")
		writeError(w, http.StatusBadRequest, "invalid_blueprint")
		return
	}

	payload := a.auditContext(r)
	payload["resource_type"] = "lineup"
	payload["imported"] = result.Imported
	payload["skipped"] = result.Skipped
	a.bus.Publish(events.EventAuditLineupImport, payload)

	writeJSON(w, http.StatusOK, result)
}

// handleAdminReload re-reads the content pool file and kicks off a
// refresh pass so the caches rebuild against the new pool.
func (a *API) handleAdminReload(w http.ResponseWriter, r *http.Request) {
	count, err := a.pool.Reload()
	if err != nil {
		a.logger.Error().Err(err).Msg("catalog reload failed")
		writeError(w, http.StatusInternalServerError, "reload_failed")
		return
	}

	a.bus.Publish(events.EventCatalogReload, events.Payload{"items": count})

	payload := a.auditContext(r)
	payload["resource_type"] = "catalog"
	payload["items"] = count
	a.bus.Publish(events.EventAuditCatalogReload, payload)

	go a.guideSvc.Refresh(context.Background())

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "reload-started",
		"items":  count,
	})
}

// handleAdminRefresh forces a guide regeneration pass without touching
// the catalog.
func (a *API) handleAdminRefresh(w http.ResponseWriter, r *http.Request) {
	payload := a.auditContext(r)
	payload["resource_type"] = "guide"
	a.bus.Publish(events.EventAuditGuideRefresh, payload)

	go a.guideSvc.Refresh(context.Background())

	writeJSON(w, http.StatusOK, map[string]string{"status": "refresh-started"})
}

func (a *API) handleAdminKeysList(w http.ResponseWriter, r *http.Request) {
	keys, err := auth.ListAPIKeys(a.db)
	if err != nil {
		a.logger.Error().Err(err).Msg("list api keys failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (a *API) handleAdminKeyCreate(w http.ResponseWriter, r *http.Request) {
	var req keyCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}

	expiresIn := time.Duration(req.ExpiresInDays) * 24 * time.Hour
	plaintext, key, err := auth.GenerateAPIKey(req.Name, expiresIn)
	if err != nil {
		a.logger.Error().Err(err).Msg("api key generation failed")
		writeError(w, http.StatusInternalServerError, "key_generation_failed")
		return
	}
	if err := a.db.WithContext(r.Context()).Create(key).Error; err != nil {
		a.logger.Error().Err(err).Msg("api key save failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	payload := a.auditContext(r)
	payload["resource_type"] = "api_key"
	payload["resource_id"] = key.ID.String()
	payload["name"] = key.Name
	a.bus.Publish(events.EventAuditAPIKeyCreate, payload)

	// The plaintext key is shown once, here, and never stored.
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         key.ID,
		"name":       key.Name,
		"key":        plaintext,
		"key_prefix": key.KeyPrefix,
		"expires_at": key.ExpiresAt,
	})
}

func (a *API) handleAdminKeyRevoke(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "keyID")

	if err := auth.RevokeAPIKey(a.db, keyID); err != nil {
		if errors.Is(err, auth.ErrAPIKeyNotFound) {
			writeError(w, http.StatusNotFound, "key_not_found")
			return
		}
		a.logger.Error().Err(err).Str("key_id", keyID).Msg("api key revoke failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	payload := a.auditContext(r)
	payload["resource_type"] = "api_key"
	payload["resource_id"] = keyID
	a.bus.Publish(events.EventAuditAPIKeyRevoke, payload)

	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// handleAdminLogs serves recent log output from the in-memory ring.
func (a *API) handleAdminLogs(w http.ResponseWriter, r *http.Request) {
	if a.logBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "logs_unavailable")
		return
	}

	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		Search:     q.Get("search"),
		Limit:      100,
		Descending: true,
	}
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = t
	}
	if s := q.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			params.Limit = n
		}
	}

	entries := a.logBuffer.Query(params)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":    entries,
		"count":      len(entries),
		"components": a.logBuffer.GetComponents(),
		"stats":      a.logBuffer.Stats(),
	})
}

// handleAdminStatus reports the running version and service health facts.
// Update info is included only when a newer release is known.
func (a *API) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"version": version.Version,
		"catalog": map[string]any{
			"items":   a.pool.Len(),
			"version": a.pool.Version(),
		},
		"cache_available": a.cache != nil && a.cache.IsAvailable(),
	}
	if a.updates != nil {
		if info := a.updates.Info(); info != nil && info.UpdateAvailable {
			status["update"] = info
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleAdminAuditList(w http.ResponseWriter, r *http.Request) {
	filters := audit.QueryFilters{}
	q := r.URL.Query()

	if s := q.Get("action"); s != "" {
		action := models.AuditAction(s)
		filters.Action = &action
	}
	if s := q.Get("start"); s != "" {
		t, err := parseQueryTime(s, a.guideSvc.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start")
			return
		}
		filters.StartTime = &t
	}
	if s := q.Get("end"); s != "" {
		t, err := parseQueryTime(s, a.guideSvc.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end")
			return
		}
		filters.EndTime = &t
	}
	if s := q.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			filters.Limit = n
		}
	}
	if s := q.Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			filters.Offset = n
		}
	}

	entries, total, err := a.auditSvc.Query(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("audit query failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
	})
}
