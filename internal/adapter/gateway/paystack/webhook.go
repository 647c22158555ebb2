package paystack

import (
	"encoding/json"
	"fmt"
	"time"

	"custodial-wallet-backend/internal/core/ports"
)

// webhookPayload mirrors the body Paystack POSTs to the webhook endpoint.
// Only the fields the reconciliation flow reads are decoded.
type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string     `json:"reference"`
		Status    string     `json:"status"`
		Amount    int64      `json:"amount"` // kobo
		Currency  string     `json:"currency"`
		PaidAt    *time.Time `json:"paid_at"`
	} `json:"data"`
}

// ParseWebhook decodes a raw webhook body into a ports.WebhookEvent. The raw
// bytes are preserved on the event for the audit trail. Callers must verify
// the signature against the same bytes before parsing.
func ParseWebhook(raw []byte) (*ports.WebhookEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decoding webhook payload: %w", err)
	}
	if payload.Event == "" {
		return nil, fmt.Errorf("webhook payload missing event field")
	}

	return &ports.WebhookEvent{
		Event: payload.Event,
		Data: ports.WebhookEventData{
			Reference:  payload.Data.Reference,
			Status:     payload.Data.Status,
			AmountKobo: payload.Data.Amount,
			Currency:   payload.Data.Currency,
			PaidAt:     payload.Data.PaidAt,
		},
		Raw: json.RawMessage(raw),
	}, nil
}
