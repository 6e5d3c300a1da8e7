/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AdminKey represents an API key for the admin surface.
type AdminKey struct {
	ID         string     `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string     `gorm:"not null" json:"name"`
	KeyHash    string     `gorm:"not null" json:"-"`
	KeyPrefix  string     `gorm:"size:11" json:"key_prefix"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  time.Time  `gorm:"not null" json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsExpired returns true if the key has expired.
func (k *AdminKey) IsExpired() bool {
	return time.Now().After(k.ExpiresAt)
}

// IsRevoked returns true if the key has been revoked.
func (k *AdminKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// IsValid returns true if the key is neither expired nor revoked.
func (k *AdminKey) IsValid() bool {
	return !k.IsExpired() && !k.IsRevoked()
}
