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

type authTestDeps struct {
	svc        ports.AuthService
	userRepo   *mocks.MockUserRepository
	walletRepo *mocks.MockWalletRepository
	tokenSvc   *mocks.MockTokenService
	ctrl       *gomock.Controller
}

func setupAuthService(t *testing.T) *authTestDeps {
	ctrl := gomock.NewController(t)
	d := &authTestDeps{
		userRepo:   mocks.NewMockUserRepository(ctrl),
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		tokenSvc:   mocks.NewMockTokenService(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewAuthService(d.userRepo, d.walletRepo, d.tokenSvc, zerolog.Nop())
	return d
}

func TestAuthService_LoginWithIdentity_FirstLogin(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	identity := ports.Identity{
		GoogleSub: "google-sub-123",
		Email:     "user@example.com",
	}
	expiresAt := time.Now().Add(time.Hour)

	d.userRepo.EXPECT().GetByGoogleSub(ctx, identity.GoogleSub).Return(nil, nil)
	d.userRepo.EXPECT().Create(ctx, gomock.Any()).
		Do(func(_ context.Context, u *domain.User) {
			assert.Equal(t, identity.GoogleSub, u.GoogleSub)
			assert.Equal(t, identity.Email, u.Email)
		}).Return(nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, gomock.Any()).Return(nil, nil)
	d.walletRepo.EXPECT().WalletNumberExists(ctx, gomock.Any()).Return(false, nil)
	d.walletRepo.EXPECT().Create(ctx, gomock.Any()).
		Do(func(_ context.Context, w *domain.Wallet) {
			assert.True(t, strings.HasPrefix(w.WalletNumber, "WAL"))
			assert.True(t, w.Balance.IsZero())
			assert.True(t, w.IsActive)
		}).Return(nil)
	d.tokenSvc.EXPECT().Generate(gomock.Any(), identity.Email).Return("jwt-token", expiresAt, nil)

	result, err := d.svc.LoginWithIdentity(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", result.Token)
	assert.Equal(t, identity.Email, result.User.Email)
}

func TestAuthService_LoginWithIdentity_ReturningUser(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	user := &domain.User{
		ID:        uuid.New(),
		GoogleSub: "google-sub-123",
		Email:     "user@example.com",
	}
	wallet := &domain.Wallet{ID: uuid.New(), UserID: user.ID, WalletNumber: "WALAB12C3"}

	d.userRepo.EXPECT().GetByGoogleSub(ctx, user.GoogleSub).Return(user, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, user.ID).Return(wallet, nil)
	d.tokenSvc.EXPECT().Generate(user.ID, user.Email).Return("jwt-token", time.Now().Add(time.Hour), nil)

	result, err := d.svc.LoginWithIdentity(ctx, ports.Identity{
		GoogleSub: user.GoogleSub,
		Email:     user.Email,
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)
}

func TestAuthService_LoginWithIdentity_MissingIdentity(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.LoginWithIdentity(context.Background(), ports.Identity{})
	assert.Equal(t, "AUTH_001", appErrCode(t, err))
}

func TestAuthService_LoginWithIdentity_WalletNumberCollision(t *testing.T) {
	d := setupAuthService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	user := &domain.User{ID: uuid.New(), GoogleSub: "sub", Email: "user@example.com"}

	d.userRepo.EXPECT().GetByGoogleSub(ctx, user.GoogleSub).Return(user, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, user.ID).Return(nil, nil)
	// First draw collides, second is free.
	first := d.walletRepo.EXPECT().WalletNumberExists(ctx, gomock.Any()).Return(true, nil)
	d.walletRepo.EXPECT().WalletNumberExists(ctx, gomock.Any()).Return(false, nil).After(first)
	d.walletRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.tokenSvc.EXPECT().Generate(user.ID, user.Email).Return("jwt-token", time.Now().Add(time.Hour), nil)

	_, err := d.svc.LoginWithIdentity(ctx, ports.Identity{GoogleSub: user.GoogleSub, Email: user.Email})
	require.NoError(t, err)
}
