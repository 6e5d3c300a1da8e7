/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

// Audit action constants for all sensitive operations.
const (
	AuditActionChannelCreate AuditAction = "channel.create"
	AuditActionChannelUpdate AuditAction = "channel.update"
	AuditActionChannelDelete AuditAction = "channel.delete"
	AuditActionLineupImport  AuditAction = "lineup.import"
	AuditActionCatalogReload AuditAction = "catalog.reload"
	AuditActionGuideRefresh  AuditAction = "guide.refresh"
	AuditActionAPIKeyCreate  AuditAction = "apikey.create"
	AuditActionAPIKeyRevoke  AuditAction = "apikey.revoke"
)

// AuditLog records sensitive operations for security and compliance.
type AuditLog struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	Timestamp    time.Time      `gorm:"index:idx_audit_timestamp;not null"`
	KeyPrefix    string         `gorm:"type:varchar(16)"` // Which admin key acted; empty for the bootstrap token
	Action       AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null"`
	ResourceType string         `gorm:"type:varchar(64)"` // "channel", "catalog", "apikey"
	ResourceID   string         `gorm:"type:varchar(64)"` // ID of the affected resource
	Details      map[string]any `gorm:"type:jsonb;serializer:json"`
	IPAddress    string         `gorm:"type:varchar(45)"` // IPv4 or IPv6
	UserAgent    string         `gorm:"type:varchar(512)"`
	CreatedAt    time.Time
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
