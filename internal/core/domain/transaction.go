package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeTransfer   TransactionType = "transfer"
	TransactionTypeFee        TransactionType = "fee"
	TransactionTypeRefund     TransactionType = "refund"
)

// TransactionStatus represents the lifecycle state of a transaction.
// completed, failed and cancelled are terminal; no transition leaves them.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Transaction is the immutable audit record of one ledger event. Once
// completed, amount and wallet linkage never change. A transfer produces
// exactly two rows (debit side and credit side) sharing one reference.
type Transaction struct {
	ID                  uuid.UUID         `json:"id"`
	UserID              uuid.UUID         `json:"user_id"`
	Type                TransactionType   `json:"transaction_type"`
	Amount              decimal.Decimal   `json:"amount"`
	Description         *string           `json:"description,omitempty"`
	Status              TransactionStatus `json:"status"`
	Reference           string            `json:"reference"`
	SourceWalletID      *uuid.UUID        `json:"source_wallet_id,omitempty"`
	DestinationWalletID *uuid.UUID        `json:"destination_wallet_id,omitempty"`
	FeeAmount           decimal.Decimal   `json:"fee_amount"`
	CreatedAt           time.Time         `json:"created_at"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty"`
}

// NewTransferReference returns a reference of the form transfer_<16 hex>.
// Both rows of a transfer share it.
func NewTransferReference() (string, error) {
	return newReference("transfer")
}

// maxReferenceLen is the gateway's ceiling on transaction references.
const maxReferenceLen = 50

// NewDepositReference returns a reference of the form
// dep_<uid8>_<unixnano>_<rand8>, truncated to the gateway's maximum length.
// It is sent to the gateway at initiation and echoed back by webhooks; the
// user, timestamp and random components together make collisions across
// retries and users practically impossible.
func NewDepositReference(userID uuid.UUID, now time.Time) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating reference: %w", err)
	}
	ref := fmt.Sprintf("dep_%s_%d_%s",
		hex.EncodeToString(userID[:4]), now.UnixNano(), hex.EncodeToString(b))
	if len(ref) > maxReferenceLen {
		ref = ref[:maxReferenceLen]
	}
	return ref, nil
}

func newReference(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating reference: %w", err)
	}
	return prefix + "_" + hex.EncodeToString(b), nil
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted ||
		t.Status == TransactionStatusFailed ||
		t.Status == TransactionStatusCancelled
}

// IsCompleted returns true if the transaction settled successfully.
func (t *Transaction) IsCompleted() bool {
	return t.Status == TransactionStatusCompleted
}

// IsPending returns true if the transaction still awaits a terminal outcome.
func (t *Transaction) IsPending() bool {
	return t.Status == TransactionStatusPending
}

// NetAmount returns the amount after fees.
func (t *Transaction) NetAmount() decimal.Decimal {
	return t.Amount.Sub(t.FeeAmount)
}
