package postgres

import (
	"context"
	"errors"
	"fmt"

	"custodial-wallet-backend/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionAuditRepo implements ports.TransactionAuditRepository.
type TransactionAuditRepo struct {
	pool Pool
}

// NewTransactionAuditRepo creates a new TransactionAuditRepo.
func NewTransactionAuditRepo(pool Pool) *TransactionAuditRepo {
	return &TransactionAuditRepo{pool: pool}
}

// Create inserts the audit side-record for a transaction. Called in the same
// transaction block as the ledger row it describes.
func (r *TransactionAuditRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.TransactionAudit) error {
	query := `INSERT INTO transaction_audits
		(transaction_id, schema_version, amount_kobo, counterparty_wallet, failure_reason, gateway_payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		a.TransactionID, a.SchemaVersion, a.AmountKobo, a.CounterpartyWallet,
		a.FailureReason, a.GatewayPayload, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction audit: %w", err)
	}
	return nil
}

// Update rewrites the mutable audit fields within a transaction block.
func (r *TransactionAuditRepo) Update(ctx context.Context, tx pgx.Tx, a *domain.TransactionAudit) error {
	query := `UPDATE transaction_audits
		SET amount_kobo = $1, counterparty_wallet = $2, failure_reason = $3,
			gateway_payload = $4, updated_at = $5
		WHERE transaction_id = $6`

	tag, err := tx.Exec(ctx, query,
		a.AmountKobo, a.CounterpartyWallet, a.FailureReason,
		a.GatewayPayload, a.UpdatedAt, a.TransactionID,
	)
	if err != nil {
		return fmt.Errorf("update transaction audit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction audit not found: %s", a.TransactionID)
	}
	return nil
}

// GetByTransactionID fetches the audit record for a transaction.
func (r *TransactionAuditRepo) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.TransactionAudit, error) {
	query := `SELECT transaction_id, schema_version, amount_kobo, counterparty_wallet, failure_reason, gateway_payload, created_at, updated_at
		FROM transaction_audits WHERE transaction_id = $1`

	a := &domain.TransactionAudit{}
	err := r.pool.QueryRow(ctx, query, transactionID).Scan(
		&a.TransactionID, &a.SchemaVersion, &a.AmountKobo, &a.CounterpartyWallet,
		&a.FailureReason, &a.GatewayPayload, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction audit: %w", err)
	}
	return a, nil
}
