package ports

import (
	"context"
	"time"

	"custodial-wallet-backend/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByGoogleSub(ctx context.Context, sub string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// GetByIDForUpdate locks the user row for the duration of the
	// transaction. Key minting serializes on it.
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error)
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByWalletNumber(ctx context.Context, walletNumber string) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error
	WalletNumberExists(ctx context.Context, walletNumber string) (bool, error)
}

// TransactionRepository defines persistence operations for ledger transactions.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, completedAt *time.Time) error
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
// Offset is a raw row offset, not a page number.
type TransactionListParams struct {
	UserID uuid.UUID
	Status *domain.TransactionStatus
	Type   *domain.TransactionType
	Offset int
	Limit  int
}

// TransactionAuditRepository persists the typed side-record per transaction.
type TransactionAuditRepository interface {
	Create(ctx context.Context, tx pgx.Tx, audit *domain.TransactionAudit) error
	Update(ctx context.Context, tx pgx.Tx, audit *domain.TransactionAudit) error
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.TransactionAudit, error)
}

// APIKeyRepository defines persistence operations for API keys.
// Keys are never deleted; revocation and expiry keep the history intact.
type APIKeyRepository interface {
	// Create inserts within a transaction block so the per-user ceiling
	// check and the insert commit together.
	Create(ctx context.Context, tx pgx.Tx, key *domain.APIKey) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error)
	// ListActiveByUser reads under the same transaction that holds the user
	// row lock during minting.
	ListActiveByUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID, now time.Time) ([]domain.APIKey, error)
	// ListActive returns every non-revoked, non-expired key in the system.
	// Key validation scans and verifies against these; there is no lookup
	// table keyed by secret.
	ListActive(ctx context.Context, now time.Time) ([]domain.APIKey, error)
	Revoke(ctx context.Context, id uuid.UUID, revokedAt time.Time) error
	TouchLastUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
