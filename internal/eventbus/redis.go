/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/zapperlabs/zapper/internal/events"
)

// RedisBus fans events out across instances over Redis pub/sub. Local
// subscribers always get their copy through the embedded in-process bus,
// so a Redis outage degrades to node-local delivery instead of silence.
type RedisBus struct {
	client *redis.Client
	logger zerolog.Logger
	local  *events.Bus
	nodeID string

	mu        sync.Mutex
	receivers map[events.EventType]*redis.PubSub
	refs      map[events.EventType]int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Circuit breaker state
	useFallback bool
	failCount   int
	maxFails    int
	lastCheck   time.Time
	checkEvery  time.Duration
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Connection pooling
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	CheckInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		PoolSize:      10,
		MinIdleConns:  2,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxFailures:   5,
		CheckInterval: 30 * time.Second,
	}
}

// NewRedisBus creates a Redis-backed event bus. If Redis is unreachable
// the bus starts in node-local mode and retries on later publishes.
func NewRedisBus(cfg RedisConfig, nodeID string, logger zerolog.Logger) (*RedisBus, error) {
	ctx, cancel := context.WithCancel(context.Background())

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	rb := &RedisBus{
		client:     client,
		logger:     logger,
		local:      events.NewBus(),
		nodeID:     nodeID,
		receivers:  make(map[events.EventType]*redis.PubSub),
		refs:       make(map[events.EventType]int),
		ctx:        ctx,
		cancel:     cancel,
		maxFails:   cfg.MaxFailures,
		checkEvery: cfg.CheckInterval,
	}
	if rb.maxFails <= 0 {
		rb.maxFails = 5
	}
	if rb.checkEvery <= 0 {
		rb.checkEvery = 30 * time.Second
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis connection failed, events stay node local until it returns")
		rb.useFallback = true
		rb.lastCheck = time.Now()
		return rb, nil
	}

	logger.Info().Str("addr", cfg.Addr).Msg("Redis event bus initialized")
	return rb, nil
}

// Subscribe registers a subscriber for an event type.
func (rb *RedisBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := rb.local.Subscribe(eventType)

	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.refs[eventType]++
	if !rb.useFallback {
		rb.ensureReceiverLocked(eventType)
	}
	return sub
}

// ensureReceiverLocked starts the Redis receiver for eventType if one is
// not already running. Caller holds rb.mu.
func (rb *RedisBus) ensureReceiverLocked(eventType events.EventType) {
	if _, exists := rb.receivers[eventType]; exists {
		return
	}
	pubsub := rb.client.Subscribe(rb.ctx, topicFor(eventType))
	rb.receivers[eventType] = pubsub

	rb.wg.Add(1)
	go rb.receive(eventType, pubsub)
}

// receive handles incoming Redis pub/sub messages for one event type.
func (rb *RedisBus) receive(eventType events.EventType, pubsub *redis.PubSub) {
	defer rb.wg.Done()

	ch := pubsub.Channel()

	rb.logger.Debug().Str("event_type", string(eventType)).Msg("started Redis message receiver")

	for {
		select {
		case <-rb.ctx.Done():
			rb.logger.Debug().Str("event_type", string(eventType)).Msg("stopping Redis message receiver")
			return

		case msg, ok := <-ch:
			if !ok {
				rb.mu.Lock()
				if rb.receivers[eventType] == pubsub {
					delete(rb.receivers, eventType)
				}
				closing := rb.ctx.Err() != nil || rb.useFallback
				rb.mu.Unlock()
				if !closing {
					rb.logger.Warn().Str("event_type", string(eventType)).Msg("Redis channel closed")
					rb.handleFailure()
				}
				return
			}

			remote, err := unmarshalMessage([]byte(msg.Payload))
			if err != nil {
				rb.logger.Error().Err(err).Msg("failed to unmarshal Redis message")
				continue
			}

			// Skip messages from ourselves (prevent echo)
			if remote.NodeID == rb.nodeID {
				continue
			}

			rb.local.Publish(eventType, remote.Payload)

			rb.logger.Debug().
				Str("event_type", string(eventType)).
				Str("source_node", remote.NodeID).
				Msg("delivered Redis event to local subscribers")
		}
	}
}

// Publish sends an event payload to all subscribers (local and remote).
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	// Always deliver locally first
	rb.local.Publish(eventType, payload)

	rb.mu.Lock()
	down := rb.useFallback
	rb.mu.Unlock()

	if down {
		if err := rb.tryReconnect(); err != nil {
			return
		}
	}

	data, err := marshalMessage(eventType, payload, rb.nodeID)
	if err != nil {
		rb.logger.Error().Err(err).Msg("failed to marshal Redis message")
		return
	}

	ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
	defer cancel()

	if err := rb.client.Publish(ctx, topicFor(eventType), data).Err(); err != nil {
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to Redis")
		rb.handleFailure()
		return
	}

	rb.mu.Lock()
	rb.failCount = 0
	rb.mu.Unlock()

	rb.logger.Debug().
		Str("event_type", string(eventType)).
		Str("node_id", rb.nodeID).
		Msg("published event to Redis")
}

// Unsubscribe removes a subscriber.
func (rb *RedisBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	rb.local.Unsubscribe(eventType, sub)

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.refs[eventType] > 0 {
		rb.refs[eventType]--
	}
	if rb.refs[eventType] > 0 {
		return
	}
	delete(rb.refs, eventType)

	if pubsub, exists := rb.receivers[eventType]; exists {
		pubsub.Close()
		delete(rb.receivers, eventType)
		rb.logger.Debug().Str("event_type", string(eventType)).Msg("closed Redis subscription")
	}
}

// Close closes the Redis connection and all subscriptions.
func (rb *RedisBus) Close() error {
	rb.logger.Info().Msg("closing Redis event bus")

	if rb.cancel != nil {
		rb.cancel()
	}
	rb.wg.Wait()

	rb.mu.Lock()
	for eventType, pubsub := range rb.receivers {
		pubsub.Close()
		delete(rb.receivers, eventType)
	}
	rb.mu.Unlock()

	if rb.client != nil {
		if err := rb.client.Close(); err != nil {
			rb.logger.Error().Err(err).Msg("failed to close Redis client")
			return err
		}
	}

	rb.logger.Info().Msg("Redis event bus closed")
	return nil
}

// handleFailure implements circuit breaker logic.
func (rb *RedisBus) handleFailure() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.failCount++

	if rb.failCount < rb.maxFails || rb.useFallback {
		return
	}

	rb.logger.Warn().
		Int("fail_count", rb.failCount).
		Msg("Redis failure threshold reached, switching to node-local delivery")

	rb.useFallback = true
	rb.lastCheck = time.Now()

	// Tear down receivers; tryReconnect rebuilds them once Redis is back.
	for eventType, pubsub := range rb.receivers {
		pubsub.Close()
		delete(rb.receivers, eventType)
	}
}

// tryReconnect attempts to leave fallback mode. Rate limited so a dead
// Redis does not add a ping to every publish.
func (rb *RedisBus) tryReconnect() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if !rb.useFallback {
		return nil
	}
	if time.Since(rb.lastCheck) < rb.checkEvery {
		return fmt.Errorf("too soon to retry")
	}
	rb.lastCheck = time.Now()

	ctx, cancel := context.WithTimeout(rb.ctx, 5*time.Second)
	defer cancel()

	if err := rb.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis still unavailable: %w", err)
	}

	rb.useFallback = false
	rb.failCount = 0

	for eventType, n := range rb.refs {
		if n > 0 {
			rb.ensureReceiverLocked(eventType)
		}
	}

	rb.logger.Info().Msg("reconnected to Redis, resuming distributed delivery")
	return nil
}
