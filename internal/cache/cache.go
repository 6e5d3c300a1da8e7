/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for generated
// schedules and the channel lineup.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/zapperlabs/zapper/internal/guide"
	"github.com/zapperlabs/zapper/internal/telemetry"
)

// Default TTL values for different cache types
const (
	DefaultScheduleTTL = 6 * time.Hour
	DefaultChannelsTTL = 5 * time.Minute
)

// Key prefixes for Redis cache
const (
	KeySchedule = "zapper:cache:schedule:" // + channel_id:date
	KeyChannels = "zapper:cache:channels"
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL overrides
	ScheduleTTL time.Duration
	ChannelsTTL time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		ScheduleTTL:    DefaultScheduleTTL,
		ChannelsTTL:    DefaultChannelsTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback. With
// Redis down every lookup is a miss and the engine's own cache carries
// the load, so nothing here is ever fatal.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// delete removes a key from cache.
func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// deletePattern deletes all keys matching a pattern.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	// Use SCAN to find keys (safer than KEYS for production)
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

func scheduleKey(channelID, date string) string {
	return KeySchedule + channelID + ":" + date
}

// Schedule caching methods

// GetDaySchedule retrieves a cached channel-day schedule.
func (c *Cache) GetDaySchedule(ctx context.Context, channelID, date string) (*guide.DaySchedule, bool) {
	if !c.IsAvailable() {
		return nil, false
	}

	var sched guide.DaySchedule
	found, err := c.get(ctx, scheduleKey(channelID, date), &sched)
	if err != nil || !found {
		telemetry.CacheMissesTotal.WithLabelValues("schedule").Inc()
		return nil, false
	}

	telemetry.CacheHitsTotal.WithLabelValues("schedule").Inc()
	c.logger.Debug().Str("channel", channelID).Str("date", date).Msg("schedule cache hit")
	return &sched, true
}

// SetDaySchedule caches a generated channel-day schedule.
func (c *Cache) SetDaySchedule(ctx context.Context, sched *guide.DaySchedule) error {
	if sched == nil {
		return nil
	}
	c.logger.Debug().Str("channel", sched.ChannelID).Str("date", sched.Date).Int("programs", len(sched.Programs)).Msg("caching schedule")
	return c.set(ctx, scheduleKey(sched.ChannelID, sched.Date), sched, c.config.ScheduleTTL)
}

// Channel lineup caching methods

// CachedChannel is the lineup summary served by the public channels
// endpoint.
type CachedChannel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
	Priority int    `json:"priority"`
	Enabled  bool   `json:"enabled"`
}

// GetChannelList retrieves the cached channel lineup.
func (c *Cache) GetChannelList(ctx context.Context) ([]CachedChannel, bool) {
	if !c.IsAvailable() {
		return nil, false
	}

	var channels []CachedChannel
	found, err := c.get(ctx, KeyChannels, &channels)
	if err != nil || !found {
		telemetry.CacheMissesTotal.WithLabelValues("channels").Inc()
		return nil, false
	}

	telemetry.CacheHitsTotal.WithLabelValues("channels").Inc()
	c.logger.Debug().Int("count", len(channels)).Msg("channel list cache hit")
	return channels, true
}

// SetChannelList caches the channel lineup.
func (c *Cache) SetChannelList(ctx context.Context, channels []CachedChannel) error {
	c.logger.Debug().Int("count", len(channels)).Msg("caching channel list")
	return c.set(ctx, KeyChannels, channels, c.config.ChannelsTTL)
}

// InvalidateChannelList removes the channel lineup from cache.
func (c *Cache) InvalidateChannelList(ctx context.Context) error {
	c.logger.Debug().Msg("invalidating channel list cache")
	return c.delete(ctx, KeyChannels)
}

// Bulk invalidation methods

// InvalidateChannel removes all cached schedules for one channel plus
// the lineup list, after a channel edit.
func (c *Cache) InvalidateChannel(ctx context.Context, channelID string) error {
	c.logger.Debug().Str("channel", channelID).Msg("invalidating channel caches")

	if err := c.deletePattern(ctx, scheduleKey(channelID, "*")); err != nil {
		return err
	}
	return c.InvalidateChannelList(ctx)
}

// InvalidateAll removes all cached data, after a catalog reload.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	c.logger.Debug().Msg("invalidating all caches")
	return c.deletePattern(ctx, "zapper:cache:*")
}
