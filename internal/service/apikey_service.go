package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"custodial-wallet-backend/internal/core/domain"
	"custodial-wallet-backend/internal/core/ports"
	"custodial-wallet-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// apiKeySecretPrefix marks plaintext secrets so leaked ones are recognizable
// in logs and scanners.
const apiKeySecretPrefix = "cwk_"

// apikeyService implements ports.APIKeyService.
type apikeyService struct {
	keyRepo    ports.APIKeyRepository
	userRepo   ports.UserRepository
	hashSvc    ports.HashService
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewAPIKeyService creates a new API key service.
func NewAPIKeyService(
	keyRepo ports.APIKeyRepository,
	userRepo ports.UserRepository,
	hashSvc ports.HashService,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) ports.APIKeyService {
	return &apikeyService{
		keyRepo:    keyRepo,
		userRepo:   userRepo,
		hashSvc:    hashSvc,
		transactor: transactor,
		log:        log,
	}
}

// Create mints a new API key. The plaintext secret is returned once and only
// its Argon2id hash is stored.
func (s *apikeyService) Create(ctx context.Context, req ports.CreateAPIKeyRequest) (*ports.APIKeyWithSecret, error) {
	if req.Name == "" {
		return nil, apperror.Validation("Key name is required")
	}
	if len(req.Permissions) == 0 {
		return nil, apperror.Validation("At least one permission is required")
	}

	now := time.Now().UTC()
	expiresAt, err := domain.ParseExpiry(req.Expiry, now)
	if err != nil {
		return nil, apperror.ErrInvalidExpiryFormat()
	}

	return s.mint(ctx, req.UserID, req.Name, req.Permissions, expiresAt, now)
}

// Rollover re-issues an expired key: same name and permissions, fresh secret
// and expiry. Keys that have not yet expired cannot be rolled over; revoke
// and recreate instead. Revoked keys are refused outright, a stricter gate
// than expiry alone: revocation is the kill switch, and rollover must not
// resurrect a killed key even after it expires.
func (s *apikeyService) Rollover(ctx context.Context, userID, keyID uuid.UUID, expiry string) (*ports.APIKeyWithSecret, error) {
	key, err := s.keyRepo.GetByID(ctx, keyID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if key == nil || key.UserID != userID || key.Revoked {
		return nil, apperror.ErrNotFound("API key")
	}

	now := time.Now().UTC()
	if !key.IsExpired(now) {
		return nil, apperror.ErrKeyNotExpired()
	}

	expiresAt, err := domain.ParseExpiry(expiry, now)
	if err != nil {
		return nil, apperror.ErrInvalidExpiryFormat()
	}

	return s.mint(ctx, userID, key.Name, key.Permissions, expiresAt, now)
}

// Revoke deactivates a key. Revocation is permanent and idempotent; the row
// is kept for the audit trail.
func (s *apikeyService) Revoke(ctx context.Context, userID, keyID uuid.UUID) error {
	key, err := s.keyRepo.GetByID(ctx, keyID)
	if err != nil {
		return apperror.InternalError(err)
	}
	if key == nil || key.UserID != userID {
		return apperror.ErrNotFound("API key")
	}
	if key.Revoked {
		return nil
	}

	if err := s.keyRepo.Revoke(ctx, keyID, time.Now().UTC()); err != nil {
		return apperror.InternalError(err)
	}

	s.log.Info().
		Str("key_id", keyID.String()).
		Str("user_id", userID.String()).
		Msg("api key revoked")
	return nil
}

// List returns all of the user's keys, including revoked and expired ones.
func (s *apikeyService) List(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	keys, err := s.keyRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return keys, nil
}

// Validate resolves a presented plaintext secret to its active key by
// scanning active keys and verifying against each hash. Expiry and
// revocation are re-checked from storage on every call; there is no cached
// validity.
func (s *apikeyService) Validate(ctx context.Context, secret string) (*domain.APIKey, error) {
	if secret == "" {
		return nil, apperror.ErrInvalidAPIKey()
	}

	now := time.Now().UTC()
	keys, err := s.keyRepo.ListActive(ctx, now)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	for i := range keys {
		match, err := s.hashSvc.Verify(secret, keys[i].HashedSecret)
		if err != nil {
			s.log.Warn().Err(err).Str("key_id", keys[i].ID.String()).Msg("api key hash verify failed")
			continue
		}
		if match {
			if err := s.keyRepo.TouchLastUsed(ctx, keys[i].ID, now); err != nil {
				s.log.Warn().Err(err).Str("key_id", keys[i].ID.String()).Msg("could not touch api key last_used_at")
			}
			return &keys[i], nil
		}
	}

	return nil, apperror.ErrInvalidAPIKey()
}

// mint checks the active-key ceiling and inserts in one atomic unit. The
// user row lock serializes concurrent mints for the same user, so the count
// observed here is the count that commits; without it two creates at
// count 4 would both pass.
func (s *apikeyService) mint(ctx context.Context, userID uuid.UUID, name string, permissions []string, expiresAt, now time.Time) (*ports.APIKeyWithSecret, error) {
	// Hash before taking the lock; Argon2id is deliberately slow.
	secret, err := newAPIKeySecret()
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	hashed, err := s.hashSvc.Hash(secret)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	user, err := s.userRepo.GetByIDForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if user == nil {
		return nil, apperror.ErrNotFound("User")
	}

	active, err := s.keyRepo.ListActiveByUser(ctx, dbTx, userID, now)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if len(active) >= domain.MaxActiveAPIKeys {
		return nil, apperror.ErrKeyLimitExceeded(domain.MaxActiveAPIKeys)
	}

	key := &domain.APIKey{
		ID:           uuid.New(),
		UserID:       userID,
		Name:         name,
		HashedSecret: hashed,
		Permissions:  permissions,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
	}
	if err := s.keyRepo.Create(ctx, dbTx, key); err != nil {
		return nil, apperror.InternalError(err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit api key: %w", err))
	}

	s.log.Info().
		Str("key_id", key.ID.String()).
		Str("user_id", userID.String()).
		Time("expires_at", expiresAt).
		Msg("api key created")

	return &ports.APIKeyWithSecret{Key: key, Secret: secret}, nil
}

// newAPIKeySecret draws a 256-bit random secret.
func newAPIKeySecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key secret: %w", err)
	}
	return apiKeySecretPrefix + hex.EncodeToString(b), nil
}
