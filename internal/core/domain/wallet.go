package domain

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet represents a user's ledger account. One wallet per user; the wallet
// number is globally unique, assigned at creation and never reused.
type Wallet struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	WalletNumber string          `json:"wallet_number"`
	Balance      decimal.Decimal `json:"balance"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// HasSufficientBalance reports whether the wallet can cover amount.
func (w *Wallet) HasSufficientBalance(amount decimal.Decimal) bool {
	return w.Balance.GreaterThanOrEqual(amount)
}

// Credit adds amount to the in-memory balance. Persistence happens through
// the ledger inside an atomic unit; this never fails for a valid wallet.
func (w *Wallet) Credit(amount decimal.Decimal) {
	w.Balance = w.Balance.Add(amount)
}

// Debit subtracts amount from the in-memory balance.
// Returns false without mutating when the balance is insufficient.
func (w *Wallet) Debit(amount decimal.Decimal) bool {
	if !w.HasSufficientBalance(amount) {
		return false
	}
	w.Balance = w.Balance.Sub(amount)
	return true
}

const walletNumberSuffixLen = 6

var walletNumberAlphabet = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

// NewWalletNumber generates a candidate wallet number: "WAL" followed by six
// random alphanumeric characters, e.g. WAL12A3B4. Uniqueness is enforced by
// the caller against the store.
func NewWalletNumber() (string, error) {
	buf := make([]byte, walletNumberSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating wallet number: %w", err)
	}
	for i := range buf {
		buf[i] = walletNumberAlphabet[int(buf[i])%len(walletNumberAlphabet)]
	}
	return "WAL" + string(buf), nil
}
