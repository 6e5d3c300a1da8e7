/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus provides distributed event bus backends. Single
// instance deployments use the in-process bus from internal/events;
// Redis or NATS backends mirror the same events across instances.
package eventbus

import (
	"github.com/rs/zerolog"

	"github.com/zapperlabs/zapper/internal/config"
	"github.com/zapperlabs/zapper/internal/events"
)

// New builds the event bus backend selected by configuration. The
// returned closer is a no-op for the in-memory backend.
func New(cfg *config.Config, logger zerolog.Logger) (events.Broker, func() error, error) {
	switch cfg.EventBus {
	case config.EventBusRedis:
		rcfg := DefaultRedisConfig()
		rcfg.Addr = cfg.RedisAddr
		rcfg.Password = cfg.RedisPassword
		rcfg.DB = cfg.RedisDB
		bus, err := NewRedisBus(rcfg, NodeIdentity(cfg.InstanceID), logger)
		if err != nil {
			return nil, nil, err
		}
		return bus, bus.Close, nil

	case config.EventBusNATS:
		ncfg := DefaultNATSConfig()
		if cfg.NATSURL != "" {
			ncfg.URL = cfg.NATSURL
		}
		bus, err := NewNATSBus(ncfg, NodeIdentity(cfg.InstanceID), logger)
		if err != nil {
			return nil, nil, err
		}
		return bus, bus.Close, nil

	default:
		return events.NewBus(), func() error { return nil }, nil
	}
}
