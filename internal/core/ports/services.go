package ports

import (
	"context"
	"encoding/json"
	"time"

	"custodial-wallet-backend/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HashService handles secret hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(userID uuid.UUID, email string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
	Email  string
}

// WebhookVerifier authenticates gateway webhook deliveries against the raw
// request body before any parsing happens.
type WebhookVerifier interface {
	Verify(payload []byte, signature string) bool
}

// PaymentGateway is the outbound Paystack API surface. Implementations are
// injected, never reached through package-level state, so tests can substitute
// a fake without touching globals.
type PaymentGateway interface {
	InitializeTransaction(ctx context.Context, req InitializeTransactionRequest) (*InitializeTransactionResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*GatewayTransaction, error)
}

// InitializeTransactionRequest holds the fields sent to the gateway when
// starting a hosted checkout. AmountKobo is the minor-unit integer amount.
type InitializeTransactionRequest struct {
	Email       string
	AmountKobo  int64
	Reference   string
	CallbackURL string
	Currency    string
}

// InitializeTransactionResponse is the gateway's checkout handle.
type InitializeTransactionResponse struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// GatewayTransaction is the gateway's view of a transaction, as returned by
// the verify endpoint.
type GatewayTransaction struct {
	Reference  string
	Status     string
	AmountKobo int64
	Currency   string
	PaidAt     *time.Time
	Channel    string
}

// WebhookEvent is a parsed gateway webhook delivery. Raw preserves the exact
// payload bytes for the audit trail.
type WebhookEvent struct {
	Event string
	Data  WebhookEventData
	Raw   json.RawMessage
}

// WebhookEventData carries the charge fields the reconciliation flow reads.
type WebhookEventData struct {
	Reference  string
	Status     string
	AmountKobo int64
	Currency   string
	PaidAt     *time.Time
}

// --- Service Ports (Business Logic) ---

// AuthService defines authentication business logic.
type AuthService interface {
	// LoginWithIdentity upserts the user for a verified external identity and
	// issues a session token. A wallet is provisioned on first login.
	LoginWithIdentity(ctx context.Context, identity Identity) (*LoginResult, error)
}

// Identity is a verified external identity assertion (e.g. a Google profile).
type Identity struct {
	GoogleSub string
	Email     string
	Name      *string
	Picture   *string
}

// LoginResult holds the issued session and the associated user.
type LoginResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// LedgerService defines wallet balance and transfer business logic.
type LedgerService interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	GetHistory(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	GetTransaction(ctx context.Context, userID, transactionID uuid.UUID) (*domain.Transaction, error)
}

// TransferRequest holds validated input for a wallet-to-wallet transfer.
type TransferRequest struct {
	UserID              uuid.UUID
	DestinationWalletNo string
	Amount              decimal.Decimal
	Description         *string
}

// TransferResult holds both ledger rows written by a transfer. Debit and
// Credit share one reference.
type TransferResult struct {
	Reference string
	Debit     *domain.Transaction
	Credit    *domain.Transaction
}

// DepositService defines gateway-backed deposit business logic.
type DepositService interface {
	InitiateDeposit(ctx context.Context, req DepositRequest) (*DepositIntent, error)
	// ProcessWebhook settles a pending deposit from a gateway event. It must
	// be idempotent: redelivered events for a settled deposit are no-ops.
	ProcessWebhook(ctx context.Context, event WebhookEvent) error
	VerifyDeposit(ctx context.Context, userID uuid.UUID, reference string) (*domain.Transaction, error)
}

// DepositRequest holds validated input for initiating a deposit.
type DepositRequest struct {
	UserID uuid.UUID
	Email  string
	Amount decimal.Decimal
}

// DepositIntent is the hosted-checkout handle returned to the client.
type DepositIntent struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
	Transaction      *domain.Transaction
}

// APIKeyService defines the API key lifecycle.
type APIKeyService interface {
	Create(ctx context.Context, req CreateAPIKeyRequest) (*APIKeyWithSecret, error)
	// Rollover re-issues an expired key with the same name and permissions.
	// Keys that have not yet expired cannot be rolled over.
	Rollover(ctx context.Context, userID, keyID uuid.UUID, expiry string) (*APIKeyWithSecret, error)
	Revoke(ctx context.Context, userID, keyID uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error)
	// Validate resolves a presented plaintext secret to its active key, or an
	// authentication error. It never reveals which stored key was closest.
	Validate(ctx context.Context, secret string) (*domain.APIKey, error)
}

// CreateAPIKeyRequest holds validated input for minting a key.
type CreateAPIKeyRequest struct {
	UserID      uuid.UUID
	Name        string
	Permissions []string
	Expiry      string
}

// APIKeyWithSecret pairs a stored key with its plaintext secret. The secret
// is surfaced exactly once, at mint time.
type APIKeyWithSecret struct {
	Key    *domain.APIKey
	Secret string
}
