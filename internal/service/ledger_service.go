package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"custodial-wallet-backend/internal/core/domain"
	"custodial-wallet-backend/internal/core/ports"
	"custodial-wallet-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ledgerService implements ports.LedgerService.
type ledgerService struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	auditRepo  ports.TransactionAuditRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	auditRepo ports.TransactionAuditRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) ports.LedgerService {
	return &ledgerService{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		auditRepo:  auditRepo,
		transactor: transactor,
		log:        log,
	}
}

// GetWallet returns the user's wallet.
func (s *ledgerService) GetWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}
	return wallet, nil
}

// GetBalance returns the user's current balance, read directly from storage.
func (s *ledgerService) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	wallet, err := s.GetWallet(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return wallet.Balance, nil
}

// GetHistory returns a page of the user's transactions.
func (s *ledgerService) GetHistory(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	txs, total, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return txs, total, nil
}

// GetTransaction returns one of the user's transactions by ID.
func (s *ledgerService) GetTransaction(ctx context.Context, userID, transactionID uuid.UUID) (*domain.Transaction, error) {
	tx, err := s.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if tx == nil || tx.UserID != userID {
		return nil, apperror.ErrNotFound("Transaction")
	}
	return tx, nil
}

// Transfer moves funds between two wallets atomically. Both wallet rows are
// locked in deterministic ID order, so two opposing transfers cannot
// deadlock. The transfer writes two ledger rows (debit and credit) sharing
// one reference, plus an audit side-record per row.
func (s *ledgerService) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	if !domain.ValidAmount(req.Amount) {
		return nil, apperror.ErrInvalidAmount()
	}

	source, err := s.walletRepo.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if source == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}

	dest, err := s.walletRepo.GetByWalletNumber(ctx, req.DestinationWalletNo)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if dest == nil || !dest.IsActive {
		return nil, apperror.ErrNotFound("Destination wallet")
	}
	if dest.ID == source.ID {
		return nil, apperror.ErrSelfTransfer()
	}

	reference, err := domain.NewTransferReference()
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Lock both wallets, lowest ID first
	source, dest, err = s.lockPair(ctx, dbTx, source.ID, dest.ID)
	if err != nil {
		return nil, err
	}

	if !source.HasSufficientBalance(req.Amount) {
		return nil, apperror.ErrInsufficientFunds()
	}

	newSourceBalance := source.Balance.Sub(req.Amount)
	newDestBalance := dest.Balance.Add(req.Amount)

	if err := s.walletRepo.UpdateBalance(ctx, dbTx, source.ID, newSourceBalance); err != nil {
		return nil, apperror.InternalError(err)
	}
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, dest.ID, newDestBalance); err != nil {
		return nil, apperror.InternalError(err)
	}

	now := time.Now().UTC()
	debit := &domain.Transaction{
		ID:                  uuid.New(),
		UserID:              source.UserID,
		Type:                domain.TransactionTypeTransfer,
		Amount:              req.Amount,
		Description:         req.Description,
		Status:              domain.TransactionStatusCompleted,
		Reference:           reference,
		SourceWalletID:      &source.ID,
		DestinationWalletID: &dest.ID,
		FeeAmount:           decimal.Zero,
		CreatedAt:           now,
		CompletedAt:         &now,
	}
	credit := &domain.Transaction{
		ID:                  uuid.New(),
		UserID:              dest.UserID,
		Type:                domain.TransactionTypeTransfer,
		Amount:              req.Amount,
		Description:         req.Description,
		Status:              domain.TransactionStatusCompleted,
		Reference:           reference,
		SourceWalletID:      &source.ID,
		DestinationWalletID: &dest.ID,
		FeeAmount:           decimal.Zero,
		CreatedAt:           now,
		CompletedAt:         &now,
	}

	if err := s.txRepo.Create(ctx, dbTx, debit); err != nil {
		return nil, apperror.InternalError(err)
	}
	if err := s.txRepo.Create(ctx, dbTx, credit); err != nil {
		return nil, apperror.InternalError(err)
	}

	kobo := domain.NairaToKobo(req.Amount)
	if err := s.auditRepo.Create(ctx, dbTx, transferAudit(debit.ID, kobo, dest.WalletNumber, now)); err != nil {
		return nil, apperror.InternalError(err)
	}
	if err := s.auditRepo.Create(ctx, dbTx, transferAudit(credit.ID, kobo, source.WalletNumber, now)); err != nil {
		return nil, apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit transfer: %w", err))
	}

	s.log.Info().
		Str("reference", reference).
		Str("source_wallet", source.WalletNumber).
		Str("destination_wallet", dest.WalletNumber).
		Str("amount", req.Amount.StringFixed(2)).
		Msg("transfer completed")

	return &ports.TransferResult{
		Reference: reference,
		Debit:     debit,
		Credit:    credit,
	}, nil
}

// lockPair acquires FOR UPDATE locks on two wallets in ascending ID order and
// returns them as (source, dest) regardless of lock order.
func (s *ledgerService) lockPair(ctx context.Context, dbTx pgx.Tx, sourceID, destID uuid.UUID) (*domain.Wallet, *domain.Wallet, error) {
	first, second := sourceID, destID
	if bytes.Compare(destID[:], sourceID[:]) < 0 {
		first, second = destID, sourceID
	}

	a, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, first)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	b, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, second)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if a == nil || b == nil {
		return nil, nil, apperror.ErrNotFound("Wallet")
	}

	if a.ID == sourceID {
		return a, b, nil
	}
	return b, a, nil
}

func transferAudit(transactionID uuid.UUID, kobo int64, counterparty string, now time.Time) *domain.TransactionAudit {
	return &domain.TransactionAudit{
		TransactionID:      transactionID,
		SchemaVersion:      domain.AuditSchemaVersion,
		AmountKobo:         &kobo,
		CounterpartyWallet: &counterparty,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
