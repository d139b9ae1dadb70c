package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// UserSettings stores per-user preferences, the effective billing plan and
// the user's API key for machine access to the chat API.
type UserSettings struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UserID           uint           `gorm:"uniqueIndex" json:"user_id"`
	Plan             string         `gorm:"type:varchar(50);default:'free'" json:"plan"`
	APIKeyHash       string         `gorm:"type:char(64);default:''" json:"-"`
	APIKeyPrefix     string         `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	APIKeyCreatedAt  *time.Time     `json:"api_key_created_at"`
	APIKeyLastUsedAt *time.Time     `json:"api_key_last_used_at"`
	APIKeyRevokedAt  *time.Time     `json:"api_key_revoked_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiKeyPrefix = "fxa_"

// GetOrCreateUserSettings returns existing settings or creates defaults
func GetOrCreateUserSettings(db *gorm.DB, userID uint) (*UserSettings, error) {
	var us UserSettings
	if err := db.Where("user_id = ?", userID).First(&us).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			us = UserSettings{UserID: userID, Plan: "free"}
			if err := db.Create(&us).Error; err != nil {
				return nil, err
			}
			return &us, nil
		}
		return nil, err
	}
	return &us, nil
}

// GenerateAPIKey creates a new plaintext API key, stores only its SHA-256 hash
// and returns the plaintext exactly once.
func (us *UserSettings) GenerateAPIKey() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	key := apiKeyPrefix + strings.ToLower(apiKeyEncoding.EncodeToString(raw))
	sum := sha256.Sum256([]byte(key))

	now := time.Now()
	us.APIKeyHash = hex.EncodeToString(sum[:])
	us.APIKeyPrefix = key[:len(apiKeyPrefix)+6]
	us.APIKeyCreatedAt = &now
	us.APIKeyLastUsedAt = nil
	us.APIKeyRevokedAt = nil

	return key, nil
}

// RevokeAPIKey invalidates the stored key without deleting the audit fields.
func (us *UserSettings) RevokeAPIKey() {
	now := time.Now()
	us.APIKeyRevokedAt = &now
}

// HasActiveAPIKey reports whether a non-revoked API key is stored.
func (us *UserSettings) HasActiveAPIKey() bool {
	return us.APIKeyHash != "" && us.APIKeyRevokedAt == nil
}

// HashAPIKey returns the storage hash of a plaintext API key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// ValidateAPIKeyFormat checks the expected key shape before hitting the database.
func ValidateAPIKeyFormat(key string) error {
	if !strings.HasPrefix(key, apiKeyPrefix) {
		return fmt.Errorf("api key must start with %q", apiKeyPrefix)
	}
	if len(key) < len(apiKeyPrefix)+16 {
		return fmt.Errorf("api key too short")
	}
	return nil
}
