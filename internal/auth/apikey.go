/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zapperlabs/zapper/internal/models"
)

// API key constants
const (
	APIKeyPrefix      = "zp_"
	APIKeyRandomBytes = 24 // 24 bytes = 48 hex chars ≈ 192 bits entropy

	// DefaultKeyLifetime applies when key creation names no expiry.
	DefaultKeyLifetime = 90 * 24 * time.Hour
)

// ErrAPIKeyNotFound is returned when an API key doesn't exist.
var ErrAPIKeyNotFound = errors.New("api key not found")

// ErrAPIKeyExpired is returned when an API key has expired.
var ErrAPIKeyExpired = errors.New("api key expired")

// ErrAPIKeyRevoked is returned when an API key has been revoked.
var ErrAPIKeyRevoked = errors.New("api key revoked")

// Claims carries the authenticated identity of an admin request.
type Claims struct {
	KeyID     string
	KeyName   string
	KeyPrefix string
	Bootstrap bool // authenticated with the configured admin token
}

// GenerateAPIKey creates a new admin API key.
// Returns the plaintext key (to show once) and the model to store.
func GenerateAPIKey(name string, expiresIn time.Duration) (string, *models.AdminKey, error) {
	randomBytes := make([]byte, APIKeyRandomBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", nil, err
	}

	// The key on the wire: zp_<hex encoded random bytes>
	randomHex := hex.EncodeToString(randomBytes)
	plaintextKey := APIKeyPrefix + randomHex

	hash := sha256.Sum256([]byte(plaintextKey))
	keyHash := hex.EncodeToString(hash[:])

	// Display prefix (zp_xxxxxxxx)
	keyPrefix := plaintextKey[:11]

	if expiresIn <= 0 {
		expiresIn = DefaultKeyLifetime
	}

	adminKey := &models.AdminKey{
		ID:        uuid.NewString(),
		Name:      name,
		KeyHash:   keyHash,
		KeyPrefix: keyPrefix,
		ExpiresAt: time.Now().Add(expiresIn),
	}

	return plaintextKey, adminKey, nil
}

// ValidateAPIKey validates an API key and returns claims if valid.
// Also updates the LastUsedAt timestamp.
func ValidateAPIKey(db *gorm.DB, plaintextKey string) (*Claims, error) {
	hash := sha256.Sum256([]byte(plaintextKey))
	keyHash := hex.EncodeToString(hash[:])

	var adminKey models.AdminKey
	result := db.Where("key_hash = ?", keyHash).First(&adminKey)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrAPIKeyNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}

	if adminKey.IsRevoked() {
		return nil, ErrAPIKeyRevoked
	}
	if adminKey.IsExpired() {
		return nil, ErrAPIKeyExpired
	}

	// Update last used timestamp (fire and forget)
	now := time.Now()
	go db.Model(&adminKey).Update("last_used_at", now)

	return &Claims{
		KeyID:     adminKey.ID,
		KeyName:   adminKey.Name,
		KeyPrefix: adminKey.KeyPrefix,
	}, nil
}

// RevokeAPIKey revokes an API key.
func RevokeAPIKey(db *gorm.DB, keyID string) error {
	now := time.Now()
	result := db.Model(&models.AdminKey{}).
		Where("id = ?", keyID).
		Update("revoked_at", now)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}

// ListAPIKeys returns all admin keys, newest first.
func ListAPIKeys(db *gorm.DB) ([]models.AdminKey, error) {
	var keys []models.AdminKey
	err := db.Order("created_at DESC").Find(&keys).Error

	return keys, err
}

// DeleteAPIKey permanently deletes an API key. Use RevokeAPIKey for soft delete.
func DeleteAPIKey(db *gorm.DB, keyID string) error {
	result := db.Where("id = ?", keyID).Delete(&models.AdminKey{})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}
