package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// SignatureVerifier implements ports.WebhookVerifier for Paystack webhooks.
// Paystack signs the raw request body with HMAC-SHA512 using the account's
// secret key and sends the hex digest in the x-paystack-signature header.
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier creates a verifier bound to the gateway secret key.
func NewSignatureVerifier(secretKey string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secretKey)}
}

// Verify checks the signature against the raw body in constant time.
// Verification always runs on the exact bytes received, before any parsing.
func (v *SignatureVerifier) Verify(payload []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha512.New, v.secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}
