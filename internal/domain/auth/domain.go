package auth

import (
	"time"

	"github.com/google/uuid"
)

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	SubjectID string
	Issuer    string
	Audience  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ClientContext is advisory metadata about the client that presented a credential.
type ClientContext struct {
	UserAgent string `json:"user_agent,omitempty"`
	IP        string `json:"ip,omitempty"`
	Origin    string `json:"origin,omitempty"`
}

// RefreshToken is the persisted record of a refresh credential. Only the hash of
// the secret is ever stored.
type RefreshToken struct {
	ID           uuid.UUID
	SubjectID    string
	TokenHash    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	ReplacedByID *uuid.UUID
	Client       ClientContext
}

// Usable reports whether the record can still be exchanged at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.Check(now) == nil
}

// Check returns ErrRefreshRevoked or ErrRefreshExpired when the record is not usable.
// Revocation wins over expiry so that replays of rotated secrets are always reported as such.
func (t *RefreshToken) Check(now time.Time) error {
	if t.RevokedAt != nil {
		return ErrRefreshRevoked
	}
	if !t.ExpiresAt.After(now) {
		return ErrRefreshExpired
	}
	return nil
}
