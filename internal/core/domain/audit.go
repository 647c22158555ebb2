package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditSchemaVersion is the current TransactionAudit schema version.
const AuditSchemaVersion = 1

// TransactionAudit is the typed side-record attached to a Transaction.
// It replaces an open-ended metadata map: failure reasons and gateway payload
// snapshots live here, keyed by transaction id, so the audit trail stays
// schema-checkable.
type TransactionAudit struct {
	TransactionID      uuid.UUID       `json:"transaction_id"`
	SchemaVersion      int             `json:"schema_version"`
	AmountKobo         *int64          `json:"amount_kobo,omitempty"`
	CounterpartyWallet *string         `json:"counterparty_wallet,omitempty"`
	FailureReason      *string         `json:"failure_reason,omitempty"`
	GatewayPayload     json.RawMessage `json:"gateway_payload,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}
