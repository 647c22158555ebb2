package dto

import (
	"time"

	"custodial-wallet-backend/internal/core/domain"

	"github.com/shopspring/decimal"
)

// LoginRequest carries a verified external identity. The OAuth code exchange
// happens upstream; this endpoint trades the verified profile for a session.
type LoginRequest struct {
	GoogleSub string  `json:"google_sub" binding:"required"`
	Email     string  `json:"email" binding:"required,email"`
	Name      *string `json:"name,omitempty"`
	Picture   *string `json:"picture,omitempty"`
}

// LoginResponse is the response body for a successful login.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"` // Unix timestamp
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	WalletNumber string          `json:"wallet_number"`
	Balance      decimal.Decimal `json:"balance"`
	Currency     string          `json:"currency"`
	IsActive     bool            `json:"is_active"`
}

// TransferRequest is the request body for a wallet-to-wallet transfer.
type TransferRequest struct {
	RecipientWalletNumber string          `json:"recipient_wallet_number" binding:"required,len=9"`
	Amount                decimal.Decimal `json:"amount" binding:"required"`
	Description           *string         `json:"description,omitempty" binding:"omitempty,max=255"`
}

// TransferResponse is the response body for a completed transfer.
type TransferResponse struct {
	Reference     string          `json:"reference"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
}

// DepositRequest is the request body for initiating a deposit.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// DepositResponse is the hosted-checkout handle returned to the client.
type DepositResponse struct {
	TransactionID    string          `json:"transaction_id"`
	Reference        string          `json:"reference"`
	AuthorizationURL string          `json:"authorization_url"`
	Amount           decimal.Decimal `json:"amount"`
	Message          string          `json:"message"`
}

// TransactionResponse is one ledger row in API form.
type TransactionResponse struct {
	ID          string          `json:"id"`
	Type        string          `json:"transaction_type"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	Reference   string          `json:"reference"`
	Description *string         `json:"description,omitempty"`
	CreatedAt   string          `json:"created_at"`
	CompletedAt *string         `json:"completed_at,omitempty"`
}

// TransactionListResponse wraps a paginated transaction history page.
type TransactionListResponse struct {
	Items  []TransactionResponse `json:"items"`
	Total  int64                 `json:"total"`
	Offset int                   `json:"offset"`
	Limit  int                   `json:"limit"`
}

// WebhookAck is the minimal acknowledgement body for webhook deliveries.
type WebhookAck struct {
	Status string `json:"status"`
}

// CreateAPIKeyRequest is the request body for minting an API key.
type CreateAPIKeyRequest struct {
	Name        string   `json:"name" binding:"required,min=1,max=100"`
	Permissions []string `json:"permissions" binding:"required,min=1"`
	Expiry      string   `json:"expiry" binding:"required"`
}

// RolloverAPIKeyRequest is the request body for rolling over an expired key.
type RolloverAPIKeyRequest struct {
	KeyID  string `json:"key_id" binding:"required,uuid"`
	Expiry string `json:"expiry" binding:"required"`
}

// APIKeyResponse is a stored key in API form. The secret never appears here.
type APIKeyResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	ExpiresAt   string   `json:"expires_at"`
	Revoked     bool     `json:"revoked"`
	LastUsedAt  *string  `json:"last_used_at,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

// APIKeyCreatedResponse pairs a freshly minted key with its plaintext secret.
// This is the only place the secret ever leaves the system.
type APIKeyCreatedResponse struct {
	Key    APIKeyResponse `json:"key"`
	Secret string         `json:"secret"`
}

// ToTransactionResponse maps a domain transaction to its API form.
func ToTransactionResponse(tx *domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:          tx.ID.String(),
		Type:        string(tx.Type),
		Amount:      tx.Amount,
		Status:      string(tx.Status),
		Reference:   tx.Reference,
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt.UTC().Format(time.RFC3339),
	}
	if tx.CompletedAt != nil {
		completed := tx.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &completed
	}
	return resp
}

// ToAPIKeyResponse maps a domain API key to its API form.
func ToAPIKeyResponse(key *domain.APIKey) APIKeyResponse {
	resp := APIKeyResponse{
		ID:          key.ID.String(),
		Name:        key.Name,
		Permissions: key.Permissions,
		ExpiresAt:   key.ExpiresAt.UTC().Format(time.RFC3339),
		Revoked:     key.Revoked,
		CreatedAt:   key.CreatedAt.UTC().Format(time.RFC3339),
	}
	if key.LastUsedAt != nil {
		lastUsed := key.LastUsedAt.UTC().Format(time.RFC3339)
		resp.LastUsedAt = &lastUsed
	}
	return resp
}
