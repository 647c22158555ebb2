package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// MaxActiveAPIKeys is the per-user ceiling on simultaneously active keys.
const MaxActiveAPIKeys = 5

// PermissionWalletWrite gates ledger-mutating calls made with an API key.
const PermissionWalletWrite = "wallet:write"

// APIKey is a bearer credential for programmatic access. The plaintext secret
// is returned exactly once at creation; only the Argon2id hash is stored.
// Keys are never deleted, only revoked, so the audit trail survives.
type APIKey struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Name         string     `json:"name"`
	HashedSecret string     `json:"-"`
	Permissions  []string   `json:"permissions"`
	ExpiresAt    time.Time  `json:"expires_at"`
	Revoked      bool       `json:"revoked"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IsExpired reports whether the key is past its expiry at the given instant.
func (k *APIKey) IsExpired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// IsActive reports whether the key is neither revoked nor expired.
func (k *APIKey) IsActive(now time.Time) bool {
	return !k.Revoked && !k.IsExpired(now)
}

// HasPermission checks whether the key carries the given capability string.
func (k *APIKey) HasPermission(permission string) bool {
	for _, p := range k.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// Revoke marks the key revoked at the given instant. Idempotent.
func (k *APIKey) Revoke(now time.Time) {
	if k.Revoked {
		return
	}
	k.Revoked = true
	k.RevokedAt = &now
}

var expiryPattern = regexp.MustCompile(`^(\d+)([HDMY])$`)

// ParseExpiry converts an expiry code like "1H", "2D", "3M" or "4Y" into an
// absolute expiry relative to now. Month and year arithmetic is calendar-based.
func ParseExpiry(code string, now time.Time) (time.Time, error) {
	m := expiryPattern.FindStringSubmatch(code)
	if m == nil {
		return time.Time{}, fmt.Errorf("invalid expiry format %q", code)
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return time.Time{}, fmt.Errorf("invalid expiry amount %q", m[1])
	}

	switch m[2] {
	case "H":
		return now.Add(time.Duration(n) * time.Hour), nil
	case "D":
		return now.AddDate(0, 0, n), nil
	case "M":
		return now.AddDate(0, n, 0), nil
	case "Y":
		return now.AddDate(n, 0, 0), nil
	}
	return time.Time{}, fmt.Errorf("unsupported expiry unit %q", m[2])
}

// ValidExpiryFormat reports whether code matches the expiry grammar.
func ValidExpiryFormat(code string) bool {
	_, err := ParseExpiry(code, time.Now())
	return err == nil
}
