package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/skillmatrix/internal/domain"
)

// ErrInvalidAPIKey is returned when an API key is not found or the hash does not match.
var ErrInvalidAPIKey = errors.New("auth: invalid API key")

const (
	apiKeyPrefix    = "skm_"
	apiKeyRandLen   = 16 // 16 bytes = 32 hex chars
	apiKeyPrefixLen = 12 // "skm_" + 8 hex chars used for lookup
)

// BootstrapAdmin is the identity returned for the configured admin key.
var BootstrapAdmin = domain.User{ID: 0, Name: "bootstrap admin", Role: domain.UserRoleAdmin}

// GenerateAPIKey creates a new API key, stores the SHA-256 hash, and returns
// the raw key (shown to the user once). Key format: "skm_" + 32 random hex chars.
func (s *Service) GenerateAPIKey(ctx context.Context, userID int64, name string, ttl time.Duration) (string, *domain.APIKey, error) {
	raw := make([]byte, apiKeyRandLen)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("auth.GenerateAPIKey: %w", err)
	}

	rawKey := apiKeyPrefix + hex.EncodeToString(raw)

	now := time.Now()
	key := &domain.APIKey{
		UserID:    userID,
		Name:      name,
		KeyHash:   hashAPIKey(rawKey),
		Prefix:    rawKey[:apiKeyPrefixLen],
		CreatedAt: now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		key.ExpiresAt = &exp
	}

	if err := s.apiKeys.Create(ctx, key); err != nil {
		return "", nil, fmt.Errorf("auth.GenerateAPIKey: %w", err)
	}

	return rawKey, key, nil
}

// ValidateAPIKey resolves a raw key to its owner. The configured admin key is
// checked first; otherwise the key is looked up by prefix and its SHA-256
// hash compared.
func (s *Service) ValidateAPIKey(ctx context.Context, rawKey string) (*domain.User, error) {
	if s.isAdminKey(rawKey) {
		admin := BootstrapAdmin
		return &admin, nil
	}

	if len(rawKey) < apiKeyPrefixLen {
		return nil, fmt.Errorf("auth.ValidateAPIKey: %w", ErrInvalidAPIKey)
	}

	apiKey, err := s.apiKeys.GetByPrefix(ctx, rawKey[:apiKeyPrefixLen])
	if err != nil {
		return nil, fmt.Errorf("auth.ValidateAPIKey: %w", ErrInvalidAPIKey)
	}

	if apiKey.KeyHash != hashAPIKey(rawKey) {
		return nil, fmt.Errorf("auth.ValidateAPIKey: %w", ErrInvalidAPIKey)
	}

	if apiKey.ExpiresAt != nil && apiKey.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("auth.ValidateAPIKey: key expired: %w", ErrInvalidAPIKey)
	}

	user, err := s.users.GetByID(ctx, apiKey.UserID)
	if err != nil {
		return nil, fmt.Errorf("auth.ValidateAPIKey: %w", err)
	}

	if updateErr := s.apiKeys.UpdateLastUsed(ctx, apiKey.ID); updateErr != nil {
		log.Warn().Err(updateErr).Int64("api_key_id", apiKey.ID).Msg("auth.ValidateAPIKey: failed to update last_used_at")
	}

	return user, nil
}

// ListAPIKeys returns the keys owned by a user.
func (s *Service) ListAPIKeys(ctx context.Context, userID int64) ([]*domain.APIKey, error) {
	keys, err := s.apiKeys.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("auth.ListAPIKeys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKey deletes one of the user's keys.
func (s *Service) RevokeAPIKey(ctx context.Context, userID, keyID int64) error {
	if err := s.apiKeys.Delete(ctx, userID, keyID); err != nil {
		return fmt.Errorf("auth.RevokeAPIKey: %w", err)
	}
	return nil
}

func hashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
