package auth

import (
	"time"

	"github.com/google/uuid"
)

// ServiceToken authenticates a caller of the administrative API. The secret
// half is stored bcrypt-hashed; the plaintext exists only in the issue
// response.
type ServiceToken struct {
	ID         uuid.UUID
	UserID     int64
	Name       string
	SecretHash string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// Revoked reports whether the token has been withdrawn.
func (t ServiceToken) Revoked() bool {
	return t.RevokedAt != nil
}
