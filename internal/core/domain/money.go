package domain

import (
	"github.com/shopspring/decimal"
)

// Monetary policy: all amounts are fixed-point decimals with exactly two
// fractional digits. Floating point never touches balance arithmetic.
// The gateway's minor unit is the kobo: 1 naira = 100 kobo.

// MaxTransactionAmount is the configured per-operation ceiling.
var MaxTransactionAmount = decimal.RequireFromString("1000000.00")

// DefaultMinDeposit is the deposit floor enforced at initiation.
var DefaultMinDeposit = decimal.RequireFromString("50.00")

// ValidAmount reports whether amount is positive, within the ceiling, and has
// at most two fractional digits.
func ValidAmount(amount decimal.Decimal) bool {
	if !amount.IsPositive() {
		return false
	}
	if amount.GreaterThan(MaxTransactionAmount) {
		return false
	}
	return amount.Exponent() >= -2 || amount.Equal(amount.Round(2))
}

// NairaToKobo converts a major-unit amount to the gateway's minor unit using
// exact integer arithmetic. The amount must already satisfy ValidAmount.
func NairaToKobo(amount decimal.Decimal) int64 {
	return amount.Shift(2).IntPart()
}

// KoboToNaira converts a minor-unit amount back to the ledger's major unit.
// Round-trips exactly for every valid two-decimal amount.
func KoboToNaira(kobo int64) decimal.Decimal {
	return decimal.New(kobo, -2)
}
