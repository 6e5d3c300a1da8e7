/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/zapperlabs/zapper/internal/airlog"
	"github.com/zapperlabs/zapper/internal/api"
	"github.com/zapperlabs/zapper/internal/archive"
	"github.com/zapperlabs/zapper/internal/audit"
	"github.com/zapperlabs/zapper/internal/cache"
	"github.com/zapperlabs/zapper/internal/catalog"
	"github.com/zapperlabs/zapper/internal/channels"
	"github.com/zapperlabs/zapper/internal/config"
	"github.com/zapperlabs/zapper/internal/db"
	"github.com/zapperlabs/zapper/internal/events"
	"github.com/zapperlabs/zapper/internal/eventbus"
	"github.com/zapperlabs/zapper/internal/guide"
	"github.com/zapperlabs/zapper/internal/leadership"
	"github.com/zapperlabs/zapper/internal/logbuffer"
	"github.com/zapperlabs/zapper/internal/refresher"
	"github.com/zapperlabs/zapper/internal/telemetry"
	"github.com/zapperlabs/zapper/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db          *gorm.DB
	cache       *cache.Cache
	pool        *catalog.Pool
	engine      *guide.Engine
	channelSvc  *channels.Service
	guideSvc    *refresher.Service
	leaderAware *refresher.LeaderAwareRefresher
	watcher     *refresher.NowPlayingWatcher
	auditSvc    *audit.Service
	api         *api.API
	bus         events.Broker
	logBuffer   *logbuffer.Buffer
	updates     *version.Checker

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("zapper-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for WebSocket connections
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:    addr,
		Handler: srv.router,
		// Keep the header deadline to protect against slowloris. Write
		// deadline stays off so websocket sessions are not cut; the
		// middleware timeout (60s) covers the plain routes.
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       0,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	if err := db.RegisterCallbacks(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	bus, busCloser, err := eventbus.New(s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	s.bus = bus
	s.DeferClose(busCloser)

	// Redis cache for generated schedules and the lineup list
	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = s.cfg.RedisAddr
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	scheduleCache, err := cache.New(cacheCfg, s.logger)
	if err != nil {
		s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
	} else {
		s.cache = scheduleCache
		s.DeferClose(func() error { return s.cache.Close() })
	}

	s.pool = catalog.NewPool(s.cfg.CatalogPath, s.logger)
	if count, err := s.pool.Reload(); err != nil {
		// The admin reload endpoint can recover once the file appears, so
		// a missing catalog keeps the server up but empty.
		s.logger.Error().Err(err).Str("path", s.cfg.CatalogPath).Msg("catalog load failed, starting with an empty pool")
	} else {
		s.logger.Info().Int("items", count).Str("path", s.cfg.CatalogPath).Msg("catalog loaded")
	}

	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		s.logger.Warn().Err(err).Str("timezone", s.cfg.Timezone).Msg("invalid guide timezone, falling back to UTC")
		loc = time.UTC
	}

	cooldown, err := airlog.Open(database, s.logger)
	if err != nil {
		return fmt.Errorf("open airing history: %w", err)
	}

	policy := guide.DefaultDurationPolicy()
	if s.cfg.MovieFallbackMinutes > 0 {
		policy.MovieFallback = time.Duration(s.cfg.MovieFallbackMinutes) * time.Minute
	}
	if s.cfg.SeriesFallbackMinutes > 0 {
		policy.SeriesFallback = time.Duration(s.cfg.SeriesFallbackMinutes) * time.Minute
	}
	if s.cfg.SeriesMinimumMinutes > 0 {
		policy.SeriesMinimum = time.Duration(s.cfg.SeriesMinimumMinutes) * time.Minute
	}

	s.engine = guide.NewEngine(s.pool, cooldown, policy, s.cfg.CooldownDays, loc, s.logger)
	s.channelSvc = channels.NewService(database, s.bus, s.logger)

	if s.cfg.ChannelsPath != "" {
		if err := s.channelSvc.SeedFromFile(context.Background(), s.cfg.ChannelsPath); err != nil {
			return fmt.Errorf("seed channel blueprint: %w", err)
		}
	}

	s.auditSvc = audit.NewService(database, s.bus, s.logger)

	s.guideSvc = refresher.New(s.engine, s.channelSvc, s.bus, s.cfg.RefreshEvery(), s.cfg.GuideHorizon(), s.logger)
	if s.cache != nil {
		s.guideSvc.SetCache(s.cache)
	}

	archiveSvc, err := archive.New(context.Background(), s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("initialize guide archive: %w", err)
	}
	if archiveSvc != nil {
		s.guideSvc.SetArchive(archiveSvc)
		s.logger.Info().Str("backend", string(s.cfg.Archive)).Msg("guide archive enabled")
	}

	// Leader election keeps multi-instance deployments from generating
	// the same guide concurrently.
	if s.cfg.LeaderElectionEnabled {
		electionConfig := leadership.ElectionConfig{
			RedisAddr:       s.cfg.RedisAddr,
			RedisPassword:   s.cfg.RedisPassword,
			RedisDB:         s.cfg.RedisDB,
			ElectionKey:     "zapper:leader:refresher",
			LeaseDuration:   15 * time.Second,
			RenewalInterval: 5 * time.Second,
			RetryInterval:   2 * time.Second,
			InstanceID:      s.cfg.InstanceID,
		}

		election, err := leadership.NewElection(electionConfig, s.logger)
		if err != nil {
			return fmt.Errorf("create leader election: %w", err)
		}

		s.leaderAware = refresher.NewLeaderAware(s.guideSvc, election, s.logger)
		s.DeferClose(func() error { return s.leaderAware.Stop() })

		s.logger.Info().
			Str("redis_addr", s.cfg.RedisAddr).
			Str("instance_id", electionConfig.InstanceID).
			Msg("leader election enabled for refresher")
	}

	s.watcher = refresher.NewNowPlayingWatcher(s.guideSvc, s.bus, 30*time.Second, s.logger)

	s.updates = version.NewChecker(s.logger)

	s.api = api.New(database, s.guideSvc, s.channelSvc, s.pool, s.cache, s.auditSvc, s.bus, s.cfg.AdminToken, s.logger)
	if s.logBuffer != nil {
		s.api.SetLogBuffer(s.logBuffer)
	}
	s.api.SetUpdateChecker(s.updates)

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// LogBuffer returns the server's log buffer for attaching to zerolog.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	if s.guideSvc == nil && s.auditSvc == nil && s.watcher == nil && s.db == nil && s.cache == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Generation loop: leader-aware if configured, otherwise direct
	if s.leaderAware != nil {
		if err := s.leaderAware.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("leader-aware refresher failed to start")
		}
	} else if s.guideSvc != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.guideSvc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("refresher loop exited")
			}
		}()
	}

	if s.auditSvc != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.auditSvc.Start(ctx)
		}()
	}

	if s.watcher != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("now playing watcher exited")
			}
		}()
	}

	if s.db != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					db.UpdateConnectionMetrics(s.db)
				}
			}
		}()
	}

	// Engine caches do not self-heal on lineup edits, so the listener
	// runs even without Redis.
	if s.engine != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.runCacheInvalidationListener(ctx)
		}()
	}

	if s.updates != nil {
		s.updates.Start(ctx)
	}
}

// runCacheInvalidationListener drops stale cached schedules when the
// lineup or the catalog changes under them.
func (s *Server) runCacheInvalidationListener(ctx context.Context) {
	channelCreated := s.bus.Subscribe(events.EventChannelCreated)
	channelUpdated := s.bus.Subscribe(events.EventChannelUpdated)
	channelDeleted := s.bus.Subscribe(events.EventChannelDeleted)
	lineupImported := s.bus.Subscribe(events.EventLineupImported)
	catalogReload := s.bus.Subscribe(events.EventCatalogReload)

	defer func() {
		s.bus.Unsubscribe(events.EventChannelCreated, channelCreated)
		s.bus.Unsubscribe(events.EventChannelUpdated, channelUpdated)
		s.bus.Unsubscribe(events.EventChannelDeleted, channelDeleted)
		s.bus.Unsubscribe(events.EventLineupImported, lineupImported)
		s.bus.Unsubscribe(events.EventCatalogReload, catalogReload)
	}()

	s.logger.Info().Msg("cache invalidation listener started")

	invalidateChannel := func(payload events.Payload, cause string) {
		channelID, _ := payload["channel_id"].(string)
		if channelID == "" {
			return
		}
		s.logger.Debug().Str("channel_id", channelID).Str("cause", cause).Msg("invalidating channel caches")
		if s.cache != nil {
			s.cache.InvalidateChannel(ctx, channelID)
		}
		s.engine.Invalidate(channelID)
	}

	invalidateEverything := func(cause string) {
		s.logger.Debug().Str("cause", cause).Msg("invalidating all caches")
		if s.cache != nil {
			s.cache.InvalidateAll(ctx)
		}
		s.engine.InvalidateAll()
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cache invalidation listener stopped")
			return

		case payload := <-channelCreated:
			invalidateChannel(payload, "channel created")

		case payload := <-channelUpdated:
			invalidateChannel(payload, "channel updated")

		case payload := <-channelDeleted:
			invalidateChannel(payload, "channel deleted")

		case <-lineupImported:
			invalidateEverything("lineup imported")

		case <-catalogReload:
			invalidateEverything("catalog reloaded")
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := `{"status":"ok"`
		if s.leaderAware != nil {
			if s.leaderAware.IsLeader() {
				response += `,"leader":true`
			} else {
				response += `,"leader":false`
			}
		}
		response += `}`
		_, _ = w.Write([]byte(response))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}
