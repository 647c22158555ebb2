package service

import (
	"context"
	"encoding/json"
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

// EventChargeSuccess is the only gateway event that settles a deposit.
const EventChargeSuccess = "charge.success"

// DepositConfig holds the ledger policy applied to deposits.
type DepositConfig struct {
	MinDeposit  decimal.Decimal
	Currency    string
	CallbackURL string
}

// depositService implements ports.DepositService.
type depositService struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	auditRepo  ports.TransactionAuditRepository
	transactor ports.DBTransactor
	gateway    ports.PaymentGateway
	cfg        DepositConfig
	log        zerolog.Logger
}

// NewDepositService creates a new deposit service.
func NewDepositService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	auditRepo ports.TransactionAuditRepository,
	transactor ports.DBTransactor,
	gateway ports.PaymentGateway,
	cfg DepositConfig,
	log zerolog.Logger,
) ports.DepositService {
	return &depositService{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		auditRepo:  auditRepo,
		transactor: transactor,
		gateway:    gateway,
		cfg:        cfg,
		log:        log,
	}
}

// InitiateDeposit records a pending deposit and opens a hosted checkout with
// the gateway. The pending row is written before the gateway call so a
// gateway failure leaves an auditable failed transaction, never a dangling
// checkout.
func (s *depositService) InitiateDeposit(ctx context.Context, req ports.DepositRequest) (*ports.DepositIntent, error) {
	if !domain.ValidAmount(req.Amount) {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.Amount.LessThan(s.cfg.MinDeposit) {
		return nil, apperror.ErrDepositBelowMinimum(s.cfg.MinDeposit.StringFixed(2))
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}

	now := time.Now().UTC()
	reference, err := domain.NewDepositReference(req.UserID, now)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	kobo := domain.NairaToKobo(req.Amount)
	deposit := &domain.Transaction{
		ID:                  uuid.New(),
		UserID:              req.UserID,
		Type:                domain.TransactionTypeDeposit,
		Amount:              req.Amount,
		Status:              domain.TransactionStatusPending,
		Reference:           reference,
		DestinationWalletID: &wallet.ID,
		FeeAmount:           decimal.Zero,
		CreatedAt:           now,
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.txRepo.Create(ctx, dbTx, deposit); err != nil {
		return nil, apperror.InternalError(err)
	}
	audit := &domain.TransactionAudit{
		TransactionID: deposit.ID,
		SchemaVersion: domain.AuditSchemaVersion,
		AmountKobo:    &kobo,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.auditRepo.Create(ctx, dbTx, audit); err != nil {
		return nil, apperror.InternalError(err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit deposit: %w", err))
	}

	checkout, err := s.gateway.InitializeTransaction(ctx, ports.InitializeTransactionRequest{
		Email:       req.Email,
		AmountKobo:  kobo,
		Reference:   reference,
		CallbackURL: s.cfg.CallbackURL,
		Currency:    s.cfg.Currency,
	})
	if err != nil {
		s.failDeposit(ctx, deposit.ID, audit, "gateway initialization failed")
		return nil, err
	}

	s.log.Info().
		Str("reference", reference).
		Str("user_id", req.UserID.String()).
		Str("amount", req.Amount.StringFixed(2)).
		Msg("deposit initiated")

	return &ports.DepositIntent{
		AuthorizationURL: checkout.AuthorizationURL,
		AccessCode:       checkout.AccessCode,
		Reference:        checkout.Reference,
		Transaction:      deposit,
	}, nil
}

// ProcessWebhook settles a deposit from a gateway event. The caller has
// already authenticated the delivery against the raw body. Redelivered
// events for settled deposits are acknowledged without effect.
func (s *depositService) ProcessWebhook(ctx context.Context, event ports.WebhookEvent) error {
	if event.Event != EventChargeSuccess {
		s.log.Debug().Str("event", event.Event).Msg("ignoring webhook event type")
		return nil
	}
	return s.settle(ctx, event.Data.Reference, event.Data.AmountKobo, event.Raw)
}

// VerifyDeposit reconciles a pending deposit against the gateway's verify
// endpoint. It backstops lost webhooks: if the gateway reports success, the
// deposit settles exactly as a webhook would have settled it.
func (s *depositService) VerifyDeposit(ctx context.Context, userID uuid.UUID, reference string) (*domain.Transaction, error) {
	deposit, err := s.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if deposit == nil || deposit.UserID != userID {
		return nil, apperror.ErrNotFound("Transaction")
	}

	if deposit.IsPending() {
		gwTx, err := s.gateway.VerifyTransaction(ctx, reference)
		if err != nil {
			return nil, err
		}
		if gwTx.Status == "success" {
			if err := s.settle(ctx, reference, gwTx.AmountKobo, nil); err != nil {
				return nil, err
			}
			deposit, err = s.txRepo.GetByReference(ctx, reference)
			if err != nil {
				return nil, apperror.InternalError(err)
			}
		}
	}

	return deposit, nil
}

// settle is the single settlement path for a deposit reference. It locks the
// transaction row, so concurrent deliveries serialize and at most one credits
// the wallet. An amount mismatch marks the deposit failed and is surfaced,
// never corrected.
func (s *depositService) settle(ctx context.Context, reference string, amountKobo int64, payload json.RawMessage) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	deposit, err := s.txRepo.GetByReferenceForUpdate(ctx, dbTx, reference)
	if err != nil {
		return apperror.InternalError(err)
	}
	if deposit == nil {
		// Not a deposit we initiated. Refuse it; a reference we never
		// issued must never be treated as settled.
		s.log.Warn().Str("reference", reference).Msg("webhook for unknown reference")
		return apperror.ErrNotFound("Transaction")
	}
	if deposit.IsTerminal() {
		s.log.Debug().
			Str("reference", reference).
			Str("status", string(deposit.Status)).
			Msg("deposit already settled, ignoring redelivery")
		return nil
	}

	now := time.Now().UTC()
	expectedKobo := domain.NairaToKobo(deposit.Amount)
	if amountKobo != expectedKobo {
		reason := fmt.Sprintf("amount mismatch: webhook %d kobo, recorded %d kobo", amountKobo, expectedKobo)
		if err := s.txRepo.UpdateStatus(ctx, dbTx, deposit.ID, domain.TransactionStatusFailed, nil); err != nil {
			return apperror.InternalError(err)
		}
		if err := s.updateAudit(ctx, dbTx, deposit.ID, &reason, payload, now); err != nil {
			return err
		}
		if err := dbTx.Commit(ctx); err != nil {
			return apperror.InternalError(fmt.Errorf("commit failed deposit: %w", err))
		}
		s.log.Error().
			Str("reference", reference).
			Int64("webhook_kobo", amountKobo).
			Int64("expected_kobo", expectedKobo).
			Msg("deposit amount mismatch")
		return apperror.ErrAmountMismatch()
	}

	if deposit.DestinationWalletID == nil {
		return apperror.InternalError(fmt.Errorf("deposit %s has no destination wallet", deposit.ID))
	}
	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, *deposit.DestinationWalletID)
	if err != nil {
		return apperror.InternalError(err)
	}
	if wallet == nil {
		return apperror.ErrNotFound("Wallet")
	}

	if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, wallet.Balance.Add(deposit.Amount)); err != nil {
		return apperror.InternalError(err)
	}
	if err := s.txRepo.UpdateStatus(ctx, dbTx, deposit.ID, domain.TransactionStatusCompleted, &now); err != nil {
		return apperror.InternalError(err)
	}
	if err := s.updateAudit(ctx, dbTx, deposit.ID, nil, payload, now); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit deposit settlement: %w", err))
	}

	s.log.Info().
		Str("reference", reference).
		Str("amount", deposit.Amount.StringFixed(2)).
		Msg("deposit settled")
	return nil
}

func (s *depositService) updateAudit(ctx context.Context, dbTx pgx.Tx, transactionID uuid.UUID, failureReason *string, payload json.RawMessage, now time.Time) error {
	audit, err := s.auditRepo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return apperror.InternalError(err)
	}
	if audit == nil {
		audit = &domain.TransactionAudit{
			TransactionID: transactionID,
			SchemaVersion: domain.AuditSchemaVersion,
			CreatedAt:     now,
		}
		audit.FailureReason = failureReason
		if payload != nil {
			audit.GatewayPayload = payload
		}
		audit.UpdatedAt = now
		if err := s.auditRepo.Create(ctx, dbTx, audit); err != nil {
			return apperror.InternalError(err)
		}
		return nil
	}

	if failureReason != nil {
		audit.FailureReason = failureReason
	}
	if payload != nil {
		audit.GatewayPayload = payload
	}
	audit.UpdatedAt = now
	if err := s.auditRepo.Update(ctx, dbTx, audit); err != nil {
		return apperror.InternalError(err)
	}
	return nil
}

// failDeposit marks an initiated deposit failed after a gateway error. Best
// effort: settlement correctness does not depend on it, a pending row with a
// dead reference can never be credited.
func (s *depositService) failDeposit(ctx context.Context, transactionID uuid.UUID, audit *domain.TransactionAudit, reason string) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failDeposit: begin tx")
		return
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.txRepo.UpdateStatus(ctx, dbTx, transactionID, domain.TransactionStatusFailed, nil); err != nil {
		s.log.Error().Err(err).Msg("failDeposit: update status")
		return
	}
	audit.FailureReason = &reason
	audit.UpdatedAt = time.Now().UTC()
	if err := s.auditRepo.Update(ctx, dbTx, audit); err != nil {
		s.log.Error().Err(err).Msg("failDeposit: update audit")
		return
	}
	if err := dbTx.Commit(ctx); err != nil {
		s.log.Error().Err(err).Msg("failDeposit: commit")
	}
}
