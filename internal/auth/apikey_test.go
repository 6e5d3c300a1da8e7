package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/zapperlabs/zapper/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.AdminKey{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestGenerateAPIKeyShape(t *testing.T) {
	plaintext, key, err := GenerateAPIKey("deploy", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if !strings.HasPrefix(plaintext, APIKeyPrefix) {
		t.Errorf("plaintext %q missing the %q prefix", plaintext, APIKeyPrefix)
	}
	if len(plaintext) != len(APIKeyPrefix)+APIKeyRandomBytes*2 {
		t.Errorf("plaintext length = %d, want %d", len(plaintext), len(APIKeyPrefix)+APIKeyRandomBytes*2)
	}
	if key.KeyPrefix != plaintext[:11] {
		t.Errorf("KeyPrefix = %q, want %q", key.KeyPrefix, plaintext[:11])
	}
	if key.KeyHash == "" || strings.Contains(key.KeyHash, plaintext) {
		t.Error("KeyHash must be set and never contain the plaintext")
	}
	if key.Name != "deploy" {
		t.Errorf("Name = %q, want deploy", key.Name)
	}

	other, _, err := GenerateAPIKey("deploy", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if other == plaintext {
		t.Error("two generated keys are identical")
	}
}

func TestGenerateAPIKeyDefaultsExpiry(t *testing.T) {
	_, key, err := GenerateAPIKey("deploy", 0)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if until := time.Until(key.ExpiresAt); until < DefaultKeyLifetime-time.Minute || until > DefaultKeyLifetime+time.Minute {
		t.Errorf("default expiry %v from now, want about %v", until, DefaultKeyLifetime)
	}
}

func TestValidateAPIKey(t *testing.T) {
	db := newTestDB(t)

	plaintext, key, err := GenerateAPIKey("deploy", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if err := db.Create(key).Error; err != nil {
		t.Fatalf("store key: %v", err)
	}

	claims, err := ValidateAPIKey(db, plaintext)
	if err != nil {
		t.Fatalf("ValidateAPIKey: %v", err)
	}
	if claims.KeyName != "deploy" || claims.KeyPrefix != key.KeyPrefix || claims.Bootstrap {
		t.Errorf("claims = %+v, want deploy/%s non-bootstrap", claims, key.KeyPrefix)
	}

	if _, err := ValidateAPIKey(db, APIKeyPrefix+strings.Repeat("0", APIKeyRandomBytes*2)); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("unknown key error = %v, want ErrAPIKeyNotFound", err)
	}
}

func TestValidateAPIKeyRejectsExpiredAndRevoked(t *testing.T) {
	db := newTestDB(t)

	expiredPlain, expired, err := GenerateAPIKey("expired", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	expired.ExpiresAt = time.Now().Add(-time.Hour)
	if err := db.Create(expired).Error; err != nil {
		t.Fatalf("store key: %v", err)
	}
	if _, err := ValidateAPIKey(db, expiredPlain); !errors.Is(err, ErrAPIKeyExpired) {
		t.Errorf("expired key error = %v, want ErrAPIKeyExpired", err)
	}

	revokedPlain, revoked, err := GenerateAPIKey("revoked", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if err := db.Create(revoked).Error; err != nil {
		t.Fatalf("store key: %v", err)
	}
	if err := RevokeAPIKey(db, revoked.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	if _, err := ValidateAPIKey(db, revokedPlain); !errors.Is(err, ErrAPIKeyRevoked) {
		t.Errorf("revoked key error = %v, want ErrAPIKeyRevoked", err)
	}
}

func TestRevokeAPIKeyUnknown(t *testing.T) {
	db := newTestDB(t)
	if err := RevokeAPIKey(db, "nope"); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("RevokeAPIKey(nope) error = %v, want ErrAPIKeyNotFound", err)
	}
}

func TestDeleteAPIKey(t *testing.T) {
	db := newTestDB(t)

	_, key, err := GenerateAPIKey("deploy", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if err := db.Create(key).Error; err != nil {
		t.Fatalf("store key: %v", err)
	}

	if err := DeleteAPIKey(db, key.ID); err != nil {
		t.Fatalf("DeleteAPIKey: %v", err)
	}
	keys, err := ListAPIKeys(db)
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("got %d keys after delete, want 0", len(keys))
	}
	if err := DeleteAPIKey(db, key.ID); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("second delete error = %v, want ErrAPIKeyNotFound", err)
	}
}
