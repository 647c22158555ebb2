package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"custodial-wallet-backend/internal/core/domain"
	"custodial-wallet-backend/internal/core/ports"
	"custodial-wallet-backend/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type apikeyTestDeps struct {
	svc        ports.APIKeyService
	keyRepo    *mocks.MockAPIKeyRepository
	userRepo   *mocks.MockUserRepository
	hashSvc    *mocks.MockHashService
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func setupAPIKeyService(t *testing.T) *apikeyTestDeps {
	ctrl := gomock.NewController(t)
	d := &apikeyTestDeps{
		keyRepo:    mocks.NewMockAPIKeyRepository(ctrl),
		userRepo:   mocks.NewMockUserRepository(ctrl),
		hashSvc:    mocks.NewMockHashService(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewAPIKeyService(d.keyRepo, d.userRepo, d.hashSvc, d.transactor, zerolog.Nop())
	return d
}

func activeKeys(userID uuid.UUID, n int) []domain.APIKey {
	keys := make([]domain.APIKey, n)
	for i := range keys {
		keys[i] = domain.APIKey{
			ID:        uuid.New(),
			UserID:    userID,
			ExpiresAt: time.Now().UTC().Add(time.Hour),
		}
	}
	return keys
}

func TestAPIKeyService_Create_Success(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	userID := uuid.New()

	d.hashSvc.EXPECT().Hash(gomock.Any()).
		DoAndReturn(func(secret string) (string, error) {
			assert.True(t, strings.HasPrefix(secret, "cwk_"))
			return "hashed-secret", nil
		})
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.userRepo.EXPECT().GetByIDForUpdate(ctx, tx, userID).Return(&domain.User{ID: userID}, nil)
	d.keyRepo.EXPECT().ListActiveByUser(ctx, tx, userID, gomock.Any()).Return(activeKeys(userID, 2), nil)
	d.keyRepo.EXPECT().Create(ctx, tx, gomock.Any()).
		Do(func(_ context.Context, _ any, key *domain.APIKey) {
			assert.Equal(t, "ci-deploy", key.Name)
			assert.Equal(t, "hashed-secret", key.HashedSecret)
			assert.False(t, key.Revoked)
		}).Return(nil)

	result, err := d.svc.Create(ctx, ports.CreateAPIKeyRequest{
		UserID:      userID,
		Name:        "ci-deploy",
		Permissions: []string{domain.PermissionWalletWrite},
		Expiry:      "30D",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Secret, "cwk_"))
	assert.NotEqual(t, result.Secret, result.Key.HashedSecret)
}

func TestAPIKeyService_Create_LimitExceeded(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	userID := uuid.New()

	d.hashSvc.EXPECT().Hash(gomock.Any()).Return("hashed-secret", nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.userRepo.EXPECT().GetByIDForUpdate(ctx, tx, userID).Return(&domain.User{ID: userID}, nil)
	// The count is read under the user row lock, inside the same atomic
	// unit as the insert. No Create reaches the repository.
	d.keyRepo.EXPECT().ListActiveByUser(ctx, tx, userID, gomock.Any()).
		Return(activeKeys(userID, domain.MaxActiveAPIKeys), nil)

	_, err := d.svc.Create(ctx, ports.CreateAPIKeyRequest{
		UserID:      userID,
		Name:        "one-too-many",
		Permissions: []string{"wallet:read"},
		Expiry:      "1D",
	})
	assert.Equal(t, "KEY_001", appErrCode(t, err))
}

func TestAPIKeyService_Create_InvalidExpiry(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	for _, expiry := range []string{"", "30", "1W", "1h"} {
		_, err := d.svc.Create(context.Background(), ports.CreateAPIKeyRequest{
			UserID:      uuid.New(),
			Name:        "bad-expiry",
			Permissions: []string{"wallet:read"},
			Expiry:      expiry,
		})
		assert.Equal(t, "VAL_002", appErrCode(t, err), "expiry %q", expiry)
	}
}

func TestAPIKeyService_Rollover_Success(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	expired := &domain.APIKey{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        "ci-deploy",
		Permissions: []string{domain.PermissionWalletWrite},
		ExpiresAt:   time.Now().UTC().Add(-time.Hour),
	}

	tx := &mockTx{}
	d.keyRepo.EXPECT().GetByID(ctx, expired.ID).Return(expired, nil)
	d.hashSvc.EXPECT().Hash(gomock.Any()).Return("new-hash", nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.userRepo.EXPECT().GetByIDForUpdate(ctx, tx, userID).Return(&domain.User{ID: userID}, nil)
	d.keyRepo.EXPECT().ListActiveByUser(ctx, tx, userID, gomock.Any()).Return(activeKeys(userID, 1), nil)
	d.keyRepo.EXPECT().Create(ctx, tx, gomock.Any()).
		Do(func(_ context.Context, _ any, key *domain.APIKey) {
			assert.Equal(t, expired.Name, key.Name)
			assert.Equal(t, expired.Permissions, key.Permissions)
			assert.NotEqual(t, expired.ID, key.ID)
			assert.True(t, key.ExpiresAt.After(time.Now()))
		}).Return(nil)

	result, err := d.svc.Rollover(ctx, userID, expired.ID, "30D")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Secret, "cwk_"))
}

func TestAPIKeyService_Rollover_NotExpired(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	active := &domain.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}

	d.keyRepo.EXPECT().GetByID(ctx, active.ID).Return(active, nil)

	_, err := d.svc.Rollover(ctx, userID, active.ID, "30D")
	assert.Equal(t, "KEY_002", appErrCode(t, err))
}

func TestAPIKeyService_Rollover_RevokedKey(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	revokedAt := time.Now().UTC().Add(-2 * time.Hour)
	// Revoked and long expired. Revocation still wins: the key is gone for
	// good and cannot be rolled into a fresh one.
	key := &domain.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Revoked:   true,
		RevokedAt: &revokedAt,
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}

	d.keyRepo.EXPECT().GetByID(ctx, key.ID).Return(key, nil)

	_, err := d.svc.Rollover(ctx, userID, key.ID, "30D")
	assert.Equal(t, "WAL_002", appErrCode(t, err))
}

func TestAPIKeyService_Rollover_WrongOwner(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	key := &domain.APIKey{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}

	d.keyRepo.EXPECT().GetByID(ctx, key.ID).Return(key, nil)

	_, err := d.svc.Rollover(ctx, uuid.New(), key.ID, "30D")
	assert.Equal(t, "WAL_002", appErrCode(t, err))
}

func TestAPIKeyService_Revoke_Idempotent(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	revokedAt := time.Now().UTC().Add(-time.Minute)
	key := &domain.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Revoked:   true,
		RevokedAt: &revokedAt,
	}

	d.keyRepo.EXPECT().GetByID(ctx, key.ID).Return(key, nil)
	// No second Revoke call reaches the repository.

	err := d.svc.Revoke(ctx, userID, key.ID)
	assert.NoError(t, err)
}

func TestAPIKeyService_Validate_Match(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	keys := []domain.APIKey{
		{ID: uuid.New(), HashedSecret: "hash-a"},
		{ID: uuid.New(), HashedSecret: "hash-b", Permissions: []string{domain.PermissionWalletWrite}},
	}

	d.keyRepo.EXPECT().ListActive(ctx, gomock.Any()).Return(keys, nil)
	d.hashSvc.EXPECT().Verify("cwk_secret", "hash-a").Return(false, nil)
	d.hashSvc.EXPECT().Verify("cwk_secret", "hash-b").Return(true, nil)
	d.keyRepo.EXPECT().TouchLastUsed(ctx, keys[1].ID, gomock.Any()).Return(nil)

	key, err := d.svc.Validate(ctx, "cwk_secret")
	require.NoError(t, err)
	assert.Equal(t, keys[1].ID, key.ID)
	assert.True(t, key.HasPermission(domain.PermissionWalletWrite))
}

func TestAPIKeyService_Validate_NoMatch(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	keys := []domain.APIKey{{ID: uuid.New(), HashedSecret: "hash-a"}}

	d.keyRepo.EXPECT().ListActive(ctx, gomock.Any()).Return(keys, nil)
	d.hashSvc.EXPECT().Verify("cwk_wrong", "hash-a").Return(false, nil)

	_, err := d.svc.Validate(ctx, "cwk_wrong")
	assert.Equal(t, "AUTH_003", appErrCode(t, err))
}

func TestAPIKeyService_Validate_EmptySecret(t *testing.T) {
	d := setupAPIKeyService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.Validate(context.Background(), "")
	assert.Equal(t, "AUTH_003", appErrCode(t, err))
}
