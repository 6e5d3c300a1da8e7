/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api serves the public guide endpoints and the admin surface.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/zapperlabs/zapper/internal/audit"
	"github.com/zapperlabs/zapper/internal/auth"
	"github.com/zapperlabs/zapper/internal/cache"
	"github.com/zapperlabs/zapper/internal/catalog"
	"github.com/zapperlabs/zapper/internal/channels"
	"github.com/zapperlabs/zapper/internal/events"
	"github.com/zapperlabs/zapper/internal/logbuffer"
	"github.com/zapperlabs/zapper/internal/refresher"
	"github.com/zapperlabs/zapper/internal/version"
)

// API exposes HTTP handlers.
type API struct {
	db         *gorm.DB
	guideSvc   *refresher.Service
	channels   *channels.Service
	pool       *catalog.Pool
	cache      *cache.Cache
	auditSvc   *audit.Service
	bus        events.Broker
	logBuffer  *logbuffer.Buffer
	updates    *version.Checker
	adminToken string
	logger     zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, guideSvc *refresher.Service, channelSvc *channels.Service, pool *catalog.Pool, cacheSvc *cache.Cache, auditSvc *audit.Service, bus events.Broker, adminToken string, logger zerolog.Logger) *API {
	return &API{
		db:         db,
		guideSvc:   guideSvc,
		channels:   channelSvc,
		pool:       pool,
		cache:      cacheSvc,
		auditSvc:   auditSvc,
		bus:        bus,
		adminToken: adminToken,
		logger:     logger.With().Str("component", "api").Logger(),
	}
}

// SetLogBuffer attaches the in-memory log ring served by the admin logs
// endpoint.
func (a *API) SetLogBuffer(buf *logbuffer.Buffer) {
	a.logBuffer = buf
}

// SetUpdateChecker attaches the release checker surfaced by the admin
// status endpoint.
func (a *API) SetUpdateChecker(c *version.Checker) {
	a.updates = c
}

type keyCreateRequest struct {
	Name          string `json:"name"`
	ExpiresInDays int    `json:"expires_in_days"`
}

// Routes mounts API routes on the provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		// Public guide endpoints (no auth required)
		r.Get("/channels", a.handleChannels)
		r.Get("/guide", a.handleGuide)
		r.Get("/guide/xmltv", a.handleGuideXMLTV)
		r.Get("/now-playing", a.handleNowPlaying)
		r.Get("/channels/{channelID}/schedule", a.handleChannelSchedule)
		r.Get("/programs/{itemID}/providers", a.handleProgramProviders)
		r.Get("/genres", a.handleGenres)
		r.Get("/ws/now-playing", a.handleNowPlayingWS)

		// Admin endpoints (API key or bootstrap token)
		r.Group(func(ar chi.Router) {
			ar.Use(auth.Middleware(a.db, a.adminToken))

			ar.Route("/admin", func(r chi.Router) {
				r.Route("/channels", func(r chi.Router) {
					r.Get("/", a.handleAdminChannelsList)
					r.Post("/", a.handleAdminChannelCreate)
					r.Get("/blueprint", a.handleAdminBlueprint)
					r.Route("/{channelID}", func(r chi.Router) {
						r.Get("/", a.handleAdminChannelGet)
						r.Put("/", a.handleAdminChannelUpdate)
						r.Delete("/", a.handleAdminChannelDelete)
					})
				})

				r.Post("/import", a.handleAdminImport)
				r.Post("/reload", a.handleAdminReload)
				r.Post("/refresh", a.handleAdminRefresh)

				r.Route("/keys", func(r chi.Router) {
					r.Get("/", a.handleAdminKeysList)
					r.Post("/", a.handleAdminKeyCreate)
					r.Delete("/{keyID}", a.handleAdminKeyRevoke)
				})

				r.Get("/audit", a.handleAdminAuditList)
				r.Get("/logs", a.handleAdminLogs)
				r.Get("/status", a.handleAdminStatus)
			})
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// auditContext extracts caller and request info for audit events.
func (a *API) auditContext(r *http.Request) events.Payload {
	payload := events.Payload{
		"ip_address": r.RemoteAddr,
		"user_agent": r.UserAgent(),
	}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims != nil {
		payload["key_prefix"] = claims.KeyPrefix
		if claims.Bootstrap {
			payload["key_prefix"] = "bootstrap"
		}
	}
	return payload
}
