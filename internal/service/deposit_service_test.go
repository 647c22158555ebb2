package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"custodial-wallet-backend/internal/core/domain"
	"custodial-wallet-backend/internal/core/ports"
	"custodial-wallet-backend/internal/core/ports/mocks"
	"custodial-wallet-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type depositTestDeps struct {
	svc        ports.DepositService
	walletRepo *mocks.MockWalletRepository
	txRepo     *mocks.MockTransactionRepository
	auditRepo  *mocks.MockTransactionAuditRepository
	transactor *mocks.MockDBTransactor
	gateway    *mocks.MockPaymentGateway
	ctrl       *gomock.Controller
}

func setupDepositService(t *testing.T) *depositTestDeps {
	ctrl := gomock.NewController(t)
	d := &depositTestDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		auditRepo:  mocks.NewMockTransactionAuditRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		gateway:    mocks.NewMockPaymentGateway(ctrl),
		ctrl:       ctrl,
	}
	cfg := DepositConfig{
		MinDeposit:  decimal.RequireFromString("50.00"),
		Currency:    "NGN",
		CallbackURL: "https://app.example.com/deposit/callback",
	}
	d.svc = NewDepositService(d.walletRepo, d.txRepo, d.auditRepo, d.transactor, d.gateway, cfg, zerolog.Nop())
	return d
}

func pendingDeposit(userID uuid.UUID, walletID uuid.UUID, amount string) *domain.Transaction {
	return &domain.Transaction{
		ID:                  uuid.New(),
		UserID:              userID,
		Type:                domain.TransactionTypeDeposit,
		Amount:              decimal.RequireFromString(amount),
		Status:              domain.TransactionStatusPending,
		Reference:           "dep_a1b2c3d4e5f60718",
		DestinationWalletID: &walletID,
		FeeAmount:           decimal.Zero,
	}
}

func TestDepositService_InitiateDeposit_Success(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	userID := uuid.New()
	wallet := &domain.Wallet{ID: uuid.New(), UserID: userID, WalletNumber: "WALAAAAAA", IsActive: true}

	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(wallet, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).
		Do(func(_ context.Context, _ any, tr *domain.Transaction) {
			assert.Equal(t, domain.TransactionStatusPending, tr.Status)
			assert.True(t, strings.HasPrefix(tr.Reference, "dep_"))
			assert.Equal(t, wallet.ID, *tr.DestinationWalletID)
		}).Return(nil)
	d.auditRepo.EXPECT().Create(ctx, tx, gomock.Any()).
		Do(func(_ context.Context, _ any, a *domain.TransactionAudit) {
			require.NotNil(t, a.AmountKobo)
			assert.Equal(t, int64(10000), *a.AmountKobo)
		}).Return(nil)
	d.gateway.EXPECT().InitializeTransaction(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, req ports.InitializeTransactionRequest) (*ports.InitializeTransactionResponse, error) {
			assert.Equal(t, int64(10000), req.AmountKobo)
			assert.Equal(t, "NGN", req.Currency)
			return &ports.InitializeTransactionResponse{
				AuthorizationURL: "https://checkout.paystack.test/xyz",
				AccessCode:       "xyz",
				Reference:        req.Reference,
			}, nil
		})

	intent, err := d.svc.InitiateDeposit(ctx, ports.DepositRequest{
		UserID: userID,
		Email:  "user@example.com",
		Amount: decimal.RequireFromString("100.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.test/xyz", intent.AuthorizationURL)
	assert.True(t, strings.HasPrefix(intent.Reference, "dep_"))
}

func TestDepositService_InitiateDeposit_BelowMinimum(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.InitiateDeposit(context.Background(), ports.DepositRequest{
		UserID: uuid.New(),
		Email:  "user@example.com",
		Amount: decimal.RequireFromString("49.99"),
	})
	assert.Equal(t, "PAY_002", appErrCode(t, err))
}

func TestDepositService_InitiateDeposit_GatewayFailure(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	userID := uuid.New()
	wallet := &domain.Wallet{ID: uuid.New(), UserID: userID, IsActive: true}

	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(wallet, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil).Times(2)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.auditRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.gateway.EXPECT().InitializeTransaction(ctx, gomock.Any()).
		Return(nil, apperror.ErrGatewayFailure(errors.New("connection refused")))
	// The in-flight deposit is marked failed before the error surfaces.
	d.txRepo.EXPECT().UpdateStatus(ctx, tx, gomock.Any(), domain.TransactionStatusFailed, nil).Return(nil)
	d.auditRepo.EXPECT().Update(ctx, tx, gomock.Any()).
		Do(func(_ context.Context, _ any, a *domain.TransactionAudit) {
			require.NotNil(t, a.FailureReason)
		}).Return(nil)

	_, err := d.svc.InitiateDeposit(ctx, ports.DepositRequest{
		UserID: userID,
		Email:  "user@example.com",
		Amount: decimal.RequireFromString("100.00"),
	})
	assert.Equal(t, "GW_001", appErrCode(t, err))
}

func TestDepositService_ProcessWebhook_IgnoresOtherEvents(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	err := d.svc.ProcessWebhook(context.Background(), ports.WebhookEvent{
		Event: "charge.failed",
		Data:  ports.WebhookEventData{Reference: "dep_x"},
	})
	assert.NoError(t, err)
}

func TestDepositService_ProcessWebhook_SettlesDeposit(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	userID := uuid.New()
	wallet := &domain.Wallet{ID: uuid.New(), UserID: userID, Balance: decimal.RequireFromString("20.00")}
	deposit := pendingDeposit(userID, wallet.ID, "100.00")
	payload := json.RawMessage(`{"event":"charge.success"}`)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, deposit.Reference).Return(deposit, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, wallet.ID, gomock.Any()).
		Do(func(_ context.Context, _ any, _ uuid.UUID, balance decimal.Decimal) {
			assert.True(t, balance.Equal(decimal.RequireFromString("120.00")))
		}).Return(nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, tx, deposit.ID, domain.TransactionStatusCompleted, gomock.Any()).Return(nil)
	d.auditRepo.EXPECT().GetByTransactionID(ctx, deposit.ID).Return(&domain.TransactionAudit{
		TransactionID: deposit.ID,
		SchemaVersion: domain.AuditSchemaVersion,
	}, nil)
	d.auditRepo.EXPECT().Update(ctx, tx, gomock.Any()).
		Do(func(_ context.Context, _ any, a *domain.TransactionAudit) {
			assert.Equal(t, payload, a.GatewayPayload)
		}).Return(nil)

	err := d.svc.ProcessWebhook(ctx, ports.WebhookEvent{
		Event: EventChargeSuccess,
		Data: ports.WebhookEventData{
			Reference:  deposit.Reference,
			Status:     "success",
			AmountKobo: 10000,
		},
		Raw: payload,
	})
	assert.NoError(t, err)
}

func TestDepositService_ProcessWebhook_RedeliveryIsNoOp(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	deposit := pendingDeposit(uuid.New(), uuid.New(), "100.00")
	deposit.Status = domain.TransactionStatusCompleted

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, deposit.Reference).Return(deposit, nil)
	// No balance update, no status change: the wallet is credited exactly once.

	err := d.svc.ProcessWebhook(ctx, ports.WebhookEvent{
		Event: EventChargeSuccess,
		Data: ports.WebhookEventData{
			Reference:  deposit.Reference,
			AmountKobo: 10000,
		},
	})
	assert.NoError(t, err)
}

func TestDepositService_ProcessWebhook_AmountMismatch(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	deposit := pendingDeposit(uuid.New(), uuid.New(), "100.00")

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, deposit.Reference).Return(deposit, nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, tx, deposit.ID, domain.TransactionStatusFailed, nil).Return(nil)
	d.auditRepo.EXPECT().GetByTransactionID(ctx, deposit.ID).Return(&domain.TransactionAudit{
		TransactionID: deposit.ID,
		SchemaVersion: domain.AuditSchemaVersion,
	}, nil)
	d.auditRepo.EXPECT().Update(ctx, tx, gomock.Any()).
		Do(func(_ context.Context, _ any, a *domain.TransactionAudit) {
			require.NotNil(t, a.FailureReason)
			assert.Contains(t, *a.FailureReason, "amount mismatch")
		}).Return(nil)

	err := d.svc.ProcessWebhook(ctx, ports.WebhookEvent{
		Event: EventChargeSuccess,
		Data: ports.WebhookEventData{
			Reference:  deposit.Reference,
			AmountKobo: 9999, // recorded amount is 10000 kobo
		},
	})
	assert.Equal(t, "PAY_001", appErrCode(t, err))
}

func TestDepositService_ProcessWebhook_UnknownReference(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "dep_unknown").Return(nil, nil)

	// A reference we never issued is refused, nothing is written.
	err := d.svc.ProcessWebhook(ctx, ports.WebhookEvent{
		Event: EventChargeSuccess,
		Data:  ports.WebhookEventData{Reference: "dep_unknown", AmountKobo: 10000},
	})
	assert.Equal(t, "WAL_002", appErrCode(t, err))
}

func TestDepositService_VerifyDeposit_AlreadySettled(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	deposit := pendingDeposit(uuid.New(), uuid.New(), "100.00")
	deposit.Status = domain.TransactionStatusCompleted

	d.txRepo.EXPECT().GetByReference(ctx, deposit.Reference).Return(deposit, nil)
	// No gateway call for a settled deposit.

	result, err := d.svc.VerifyDeposit(ctx, deposit.UserID, deposit.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, result.Status)
}

func TestDepositService_VerifyDeposit_PendingAtGateway(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	deposit := pendingDeposit(uuid.New(), uuid.New(), "100.00")

	d.txRepo.EXPECT().GetByReference(ctx, deposit.Reference).Return(deposit, nil)
	d.gateway.EXPECT().VerifyTransaction(ctx, deposit.Reference).Return(&ports.GatewayTransaction{
		Reference: deposit.Reference,
		Status:    "abandoned",
	}, nil)

	result, err := d.svc.VerifyDeposit(ctx, deposit.UserID, deposit.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, result.Status)
}

func TestDepositService_VerifyDeposit_WrongOwner(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	deposit := pendingDeposit(uuid.New(), uuid.New(), "100.00")

	d.txRepo.EXPECT().GetByReference(ctx, deposit.Reference).Return(deposit, nil)

	_, err := d.svc.VerifyDeposit(ctx, uuid.New(), deposit.Reference)
	assert.Equal(t, "WAL_002", appErrCode(t, err))
}
