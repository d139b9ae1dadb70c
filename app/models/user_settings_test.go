package models

import (
	"strings"
	"testing"
)

func TestGenerateAPIKey(t *testing.T) {
	us := &UserSettings{UserID: 1}

	key, err := us.GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	if !strings.HasPrefix(key, apiKeyPrefix) {
		t.Fatalf("key %q missing prefix %q", key, apiKeyPrefix)
	}
	if us.APIKeyHash == "" || us.APIKeyHash == key {
		t.Fatalf("hash must be set and must not equal the plaintext key")
	}
	if us.APIKeyHash != HashAPIKey(key) {
		t.Fatalf("stored hash does not match HashAPIKey of plaintext")
	}
	if !strings.HasPrefix(key, us.APIKeyPrefix) {
		t.Fatalf("display prefix %q is not a prefix of the key", us.APIKeyPrefix)
	}
	if !us.HasActiveAPIKey() {
		t.Fatal("expected freshly generated key to be active")
	}
}

func TestRevokeAPIKey(t *testing.T) {
	us := &UserSettings{UserID: 1}
	if _, err := us.GenerateAPIKey(); err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}

	us.RevokeAPIKey()
	if us.HasActiveAPIKey() {
		t.Fatal("revoked key must not be active")
	}
}

func TestValidateAPIKeyFormat(t *testing.T) {
	if err := ValidateAPIKeyFormat("fxa_abcdefghijklmnopqrstuvwx"); err != nil {
		t.Fatalf("expected valid format, got %v", err)
	}
	if err := ValidateAPIKeyFormat("wrong_prefix"); err == nil {
		t.Fatal("expected error for wrong prefix")
	}
	if err := ValidateAPIKeyFormat("fxa_short"); err == nil {
		t.Fatal("expected error for short key")
	}
}
