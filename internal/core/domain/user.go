package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account holder authenticated by an external identity
// provider. The provider exchange happens outside this service; we only store
// the verified subject identifier it produces.
type User struct {
	ID        uuid.UUID `json:"id"`
	GoogleSub string    `json:"-"`
	Email     string    `json:"email"`
	Name      *string   `json:"name,omitempty"`
	Picture   *string   `json:"picture,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
