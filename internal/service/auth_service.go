package service

import (
	"context"
	"fmt"
	"time"

	"custodial-wallet-backend/internal/core/domain"
	"custodial-wallet-backend/internal/core/ports"
	"custodial-wallet-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// walletNumberAttempts bounds the uniqueness retry loop for wallet numbers.
const walletNumberAttempts = 5

// authService implements ports.AuthService.
type authService struct {
	userRepo   ports.UserRepository
	walletRepo ports.WalletRepository
	tokenSvc   ports.TokenService
	log        zerolog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(
	userRepo ports.UserRepository,
	walletRepo ports.WalletRepository,
	tokenSvc ports.TokenService,
	log zerolog.Logger,
) ports.AuthService {
	return &authService{
		userRepo:   userRepo,
		walletRepo: walletRepo,
		tokenSvc:   tokenSvc,
		log:        log,
	}
}

// LoginWithIdentity upserts the user behind a verified external identity,
// provisions a wallet on first login, and issues a session token.
func (s *authService) LoginWithIdentity(ctx context.Context, identity ports.Identity) (*ports.LoginResult, error) {
	if identity.GoogleSub == "" || identity.Email == "" {
		return nil, apperror.ErrAuthenticationRequired()
	}

	user, err := s.userRepo.GetByGoogleSub(ctx, identity.GoogleSub)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	if user == nil {
		user = &domain.User{
			ID:        uuid.New(),
			GoogleSub: identity.GoogleSub,
			Email:     identity.Email,
			Name:      identity.Name,
			Picture:   identity.Picture,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, apperror.InternalError(err)
		}
		s.log.Info().
			Str("user_id", user.ID.String()).
			Str("email", user.Email).
			Msg("user registered")
	}

	if err := s.ensureWallet(ctx, user.ID); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokenSvc.Generate(user.ID, user.Email)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	return &ports.LoginResult{
		User:      user,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// ensureWallet creates the user's wallet if it does not exist yet.
func (s *authService) ensureWallet(ctx context.Context, userID uuid.UUID) error {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return apperror.InternalError(err)
	}
	if wallet != nil {
		return nil
	}

	number, err := s.uniqueWalletNumber(ctx)
	if err != nil {
		return apperror.InternalError(err)
	}

	now := time.Now().UTC()
	wallet = &domain.Wallet{
		ID:           uuid.New(),
		UserID:       userID,
		WalletNumber: number,
		Balance:      decimal.Zero,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.walletRepo.Create(ctx, wallet); err != nil {
		return apperror.InternalError(err)
	}

	s.log.Info().
		Str("user_id", userID.String()).
		Str("wallet_number", number).
		Msg("wallet provisioned")
	return nil
}

// uniqueWalletNumber draws wallet numbers until one is free. The space is
// 36^6 per prefix, so collisions are rare; the loop is a safety bound.
func (s *authService) uniqueWalletNumber(ctx context.Context) (string, error) {
	for i := 0; i < walletNumberAttempts; i++ {
		number, err := domain.NewWalletNumber()
		if err != nil {
			return "", err
		}
		exists, err := s.walletRepo.WalletNumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", fmt.Errorf("could not allocate unique wallet number after %d attempts", walletNumberAttempts)
}
