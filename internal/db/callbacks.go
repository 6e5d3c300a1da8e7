/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/zapperlabs/zapper/internal/telemetry"
)

const _startTime = "gorm:start_time"

// RegisterCallbacks hooks the telemetry timers into every CRUD stage.
func RegisterCallbacks(database *gorm.DB) error {
	cb := database.Callback()
	regs := []struct {
		name     string
		register func(string, func(*gorm.DB)) error
		handler  func(*gorm.DB)
	}{
		{"telemetry:before_create", cb.Create().Before("gorm:create").Register, startTimer},
		{"telemetry:after_create", cb.Create().After("gorm:create").Register, observe("create")},
		{"telemetry:before_query", cb.Query().Before("gorm:query").Register, startTimer},
		{"telemetry:after_query", cb.Query().After("gorm:query").Register, observe("query")},
		{"telemetry:before_update", cb.Update().Before("gorm:update").Register, startTimer},
		{"telemetry:after_update", cb.Update().After("gorm:update").Register, observe("update")},
		{"telemetry:before_delete", cb.Delete().Before("gorm:delete").Register, startTimer},
		{"telemetry:after_delete", cb.Delete().After("gorm:delete").Register, observe("delete")},
	}

	for _, r := range regs {
		if err := r.register(r.name, r.handler); err != nil {
			return err
		}
	}
	return nil
}

func startTimer(database *gorm.DB) {
	database.InstanceSet(_startTime, time.Now())
}

// observe builds the after-callback for one operation: observe the duration
// and count real errors. ErrRecordNotFound is an answer, not an error.
func observe(operation string) func(*gorm.DB) {
	return func(database *gorm.DB) {
		value, ok := database.InstanceGet(_startTime)
		if !ok {
			return
		}
		started, ok := value.(time.Time)
		if !ok {
			return
		}

		table := database.Statement.Table
		if table == "" {
			table = "unknown"
		}
		telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(time.Since(started).Seconds())

		if database.Error != nil && !errors.Is(database.Error, gorm.ErrRecordNotFound) {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, "query_error").Inc()
		}
	}
}

// UpdateConnectionMetrics refreshes the connection pool gauge. Called on a
// timer from the server.
func UpdateConnectionMetrics(database *gorm.DB) {
	sqlDB, err := database.DB()
	if err != nil {
		return
	}
	telemetry.DatabaseConnectionsActive.Set(float64(sqlDB.Stats().OpenConnections))
}
